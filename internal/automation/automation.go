// Package automation runs scripted batches of experiments described in
// yaml: scenarios of independent runs and one-parameter sweeps.
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/tanksim/internal/config"
	"github.com/san-kum/tanksim/internal/dynamo"
	"github.com/san-kum/tanksim/internal/experiment"
)

// Scenario defines a scripted simulation sequence
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep describes one run: a preset or the defaults, optionally
// overlaid with a config file and then with individual keys. A non-empty
// SaveAs names the stored run.
type ScenarioStep struct {
	Name   string            `yaml:"name"`
	Preset string            `yaml:"preset,omitempty"`
	Config string            `yaml:"config,omitempty"`
	Set    map[string]string `yaml:"set,omitempty"`
	SaveAs string            `yaml:"save_as,omitempty"`
}

// Build resolves the step into a configuration.
func (s ScenarioStep) Build() (*config.Config, error) {
	cfg := config.Default()
	if s.Preset != "" {
		if cfg = config.Preset(s.Preset); cfg == nil {
			return nil, fmt.Errorf("%w: unknown preset %q", dynamo.ErrInvalidParameter, s.Preset)
		}
	}
	if s.Config != "" {
		if err := config.LoadInto(cfg, s.Config); err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(s.Set))
	for k := range s.Set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := cfg.Set(k, s.Set[k]); err != nil {
			return nil, err
		}
	}

	if s.Name != "" {
		cfg.Name = s.Name
	}
	return cfg, nil
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}

	return &scenario, nil
}

type StepResult struct {
	Step   ScenarioStep
	Config *config.Config
	Result *dynamo.Result
}

// RunScenario executes all steps in a scenario concurrently. Results keep
// the order of the steps.
func RunScenario(ctx context.Context, scenario *Scenario, workers int, logger *slog.Logger) ([]StepResult, error) {
	cfgs := make([]*config.Config, len(scenario.Steps))
	for i, step := range scenario.Steps {
		cfg, err := step.Build()
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		cfgs[i] = cfg
	}

	results, err := experiment.Sweep(ctx, cfgs, workers, logger)
	if err != nil {
		return nil, err
	}

	out := make([]StepResult, len(results))
	for i, res := range results {
		out[i] = StepResult{Step: scenario.Steps[i], Config: cfgs[i], Result: res}
	}
	return out, nil
}

// ParameterSweep runs the base configuration once per value of Param.
// Values, when given, take precedence over the Min/Max/NumSteps range.
type ParameterSweep struct {
	Base     ScenarioStep `yaml:"base"`
	Param    string       `yaml:"param"`
	Values   []float64    `yaml:"values,omitempty"`
	Min      float64      `yaml:"min"`
	Max      float64      `yaml:"max"`
	NumSteps int          `yaml:"num_steps"`
}

// SweepResult holds results from a parameter sweep
type SweepResult struct {
	ParamValue float64
	Config     *config.Config
	Result     *dynamo.Result
}

func LoadSweep(path string) (*ParameterSweep, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var sweep ParameterSweep
	if err := yaml.Unmarshal(data, &sweep); err != nil {
		return nil, err
	}

	return &sweep, nil
}

// Points returns the parameter values to visit.
func (p *ParameterSweep) Points() ([]float64, error) {
	if len(p.Values) > 0 {
		return append([]float64(nil), p.Values...), nil
	}
	switch {
	case p.NumSteps < 1:
		return nil, fmt.Errorf("%w: sweep needs values or num_steps >= 1", dynamo.ErrInvalidParameter)
	case p.NumSteps == 1:
		return []float64{p.Min}, nil
	}
	points := make([]float64, p.NumSteps)
	step := (p.Max - p.Min) / float64(p.NumSteps-1)
	for i := range points {
		points[i] = p.Min + float64(i)*step
	}
	return points, nil
}

// RunSweep executes a parameter sweep
func RunSweep(ctx context.Context, sweep *ParameterSweep, workers int, logger *slog.Logger) ([]SweepResult, error) {
	points, err := sweep.Points()
	if err != nil {
		return nil, err
	}

	cfgs := make([]*config.Config, len(points))
	for i, v := range points {
		cfg, err := sweep.Base.Build()
		if err != nil {
			return nil, err
		}
		if err := cfg.Set(sweep.Param, strconv.FormatFloat(v, 'g', -1, 64)); err != nil {
			return nil, err
		}
		cfg.Name = fmt.Sprintf("%s %s=%g", cfg.Name, sweep.Param, v)
		cfgs[i] = cfg
	}

	results, err := experiment.Sweep(ctx, cfgs, workers, logger)
	if err != nil {
		return nil, err
	}

	out := make([]SweepResult, len(results))
	for i, res := range results {
		out[i] = SweepResult{ParamValue: points[i], Config: cfgs[i], Result: res}
	}
	return out, nil
}
