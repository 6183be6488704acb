package experiment

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/san-kum/tanksim/internal/config"
	"github.com/san-kum/tanksim/internal/dynamo"
)

// Sweep runs independent configurations concurrently with at most workers
// in flight and returns results in input order. Each run gets its own
// simulator, controller and integrator.
func Sweep(ctx context.Context, cfgs []*config.Config, workers int, logger *slog.Logger) ([]*dynamo.Result, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return dynamo.RunEnsemble(ctx, len(cfgs), workers, func(ctx context.Context, idx int) (*dynamo.Result, error) {
		res, err := Run(ctx, cfgs[idx], WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("run %d (%s): %w", idx, cfgs[idx].Name, err)
		}
		return res, nil
	})
}
