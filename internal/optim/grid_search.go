// Package optim tunes controller settings by exhaustive search.
package optim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strconv"

	"github.com/san-kum/tanksim/internal/config"
	"github.com/san-kum/tanksim/internal/dynamo"
	"github.com/san-kum/tanksim/internal/experiment"
)

// Candidate is one evaluated grid point. Score is +Inf when the run could
// not be built or diverged.
type Candidate struct {
	Params map[string]float64
	Score  float64
	Err    error
}

func (c Candidate) OK() bool { return c.Err == nil && !math.IsInf(c.Score, 1) }

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	workers    int
	logger     *slog.Logger
}

// NewGridSearch searches the cartesian product of ranges; params are config
// keys such as "kp" or "ki".
func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) == 0 || len(params) != len(ranges) {
		return nil, fmt.Errorf("optim: %d params with %d ranges", len(params), len(ranges))
	}
	for i, r := range ranges {
		if len(r) == 0 {
			return nil, fmt.Errorf("optim: empty range for %s", params[i])
		}
	}
	return &GridSearch{
		paramNames: params,
		ranges:     ranges,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

func (g *GridSearch) WithWorkers(n int) *GridSearch {
	g.workers = n
	return g
}

func (g *GridSearch) WithLogger(l *slog.Logger) *GridSearch {
	g.logger = l
	return g
}

// Points enumerates the grid, last parameter varying fastest.
func (g *GridSearch) Points() []map[string]float64 {
	var out []map[string]float64
	g.enumerate(0, map[string]float64{}, &out)
	return out
}

func (g *GridSearch) enumerate(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		p := make(map[string]float64, len(current))
		for k, v := range current {
			p[k] = v
		}
		*out = append(*out, p)
		return
	}
	for _, val := range g.ranges[depth] {
		current[g.paramNames[depth]] = val
		g.enumerate(depth+1, current, out)
	}
	delete(current, g.paramNames[depth])
}

// Search runs base once per grid point and returns all candidates ordered
// by ascending metric, best first. Grid points whose config is invalid or
// whose run fails are kept with an error and score +Inf.
func (g *GridSearch) Search(ctx context.Context, base *config.Config, metric string) ([]Candidate, error) {
	points := g.Points()
	candidates := make([]Candidate, len(points))

	_, err := dynamo.RunEnsemble(ctx, len(points), g.workers, func(ctx context.Context, idx int) (*dynamo.Result, error) {
		c := Candidate{Params: points[idx], Score: math.Inf(1)}
		defer func() { candidates[idx] = c }()

		cfg, err := g.configure(base, points[idx])
		if err != nil {
			c.Err = err
			return nil, nil
		}
		res, err := experiment.Run(ctx, cfg, experiment.WithLogger(g.logger))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			c.Err = err
			return nil, nil
		}
		v, ok := res.Metrics[metric]
		if !ok {
			c.Err = fmt.Errorf("optim: unknown metric %q", metric)
			return nil, nil
		}
		if !math.IsNaN(v) {
			c.Score = v
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score < candidates[j].Score
	})

	if !candidates[0].OK() {
		errs := make([]error, 0, len(candidates))
		for _, c := range candidates {
			errs = append(errs, c.Err)
		}
		return candidates, fmt.Errorf("optim: no grid point produced a score: %w", errors.Join(errs...))
	}
	g.logger.Info("grid search done", "points", len(points), "metric", metric,
		"best", candidates[0].Score, "params", candidates[0].Params)
	return candidates, nil
}

func (g *GridSearch) configure(base *config.Config, params map[string]float64) (*config.Config, error) {
	cfg := base.Clone()
	name := cfg.Name
	for _, k := range g.paramNames {
		v := strconv.FormatFloat(params[k], 'g', -1, 64)
		if err := cfg.Set(k, v); err != nil {
			return nil, err
		}
		name += " " + k + "=" + v
	}
	cfg.Name = name
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Linspace returns n evenly spaced values from lo to hi inclusive.
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}
	return out
}
