package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/san-kum/tanksim/internal/config"
	"github.com/san-kum/tanksim/internal/dynamo"
)

var (
	dataDir    string
	logLevel   string
	envFile    string
	configFile string
	preset     string
	overrides  []string
	workers    int
)

// shortcut flags that map onto config keys
var shortcuts = []struct {
	flag, key, usage string
}{
	{"kp", "kp", "proportional gain"},
	{"ki", "ki", "integral gain"},
	{"kd", "kd", "derivative gain"},
	{"controller", "controller", "controller kind (pi, pid, pid-backcalc, open-loop)"},
	{"integrator", "integrator", "integrator (euler, rk4)"},
	{"ts", "sample_period", "control sample period in s"},
	{"dt", "fine_step_size", "integration step in s"},
	{"time", "run_duration", "run duration in s"},
	{"t0", "initial_temperature", "initial temperature"},
	{"setpoint", "setpoint_schedule", "setpoint: a number or a yaml schedule"},
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "tanksim",
		Short:         "heated stirred-tank temperature control simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadDotEnv(envFile)
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".tanksim", "data directory for stored runs")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with TANKSIM_* overrides")

	rootCmd.AddCommand(
		runCommand(),
		liveCommand(),
		listCommand(),
		showCommand(),
		deleteCommand(),
		plotCommand(),
		exportCSVCommand(),
		exportJSONCommand(),
		exportSVGCommand(),
		presetsCommand(),
		sweepCommand(),
		scenarioCommand(),
		tuneCommand(),
		compareCommand(),
		verifyCommand(),
		serveCommand(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		if errors.Is(err, dynamo.ErrInvalidParameter) || errors.Is(err, dynamo.ErrInvalidGains) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// describe names the failure kind and, for validation errors, the offending
// parameter.
func describe(err error) string {
	var pe *dynamo.ParameterError
	if errors.As(err, &pe) {
		return fmt.Sprintf("error: %v\n  parameter: %s\n  value:     %g\n  reason:    %s",
			pe.Kind, pe.Param, pe.Value, pe.Reason)
	}
	var se *dynamo.SimulationError
	if errors.As(err, &se) {
		return fmt.Sprintf("error: %v\n  tick: %d\n  time: %gs", se.Wrapped, se.Step, se.Time)
	}
	return "error: " + err.Error()
}

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func newLogger() (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

// addConfigFlags registers the flags that select and override a config.
func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&preset, "preset", "", "start from a named preset")
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "yaml config file")
	cmd.Flags().StringArrayVar(&overrides, "set", nil, "override a config key: --set key=value (repeatable)")
	for _, s := range shortcuts {
		cmd.Flags().String(s.flag, "", s.usage+" (config key "+s.key+")")
	}
}

// buildConfig resolves preset < file < env < flags.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if preset != "" {
		if cfg = config.Preset(preset); cfg == nil {
			return nil, fmt.Errorf("%w: unknown preset %q (available: %s)",
				dynamo.ErrInvalidParameter, preset, strings.Join(config.ListPresets(), ", "))
		}
	}
	if configFile != "" {
		if err := config.LoadInto(cfg, configFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	for _, s := range shortcuts {
		if f := cmd.Flags().Lookup(s.flag); f != nil && f.Changed {
			if err := cfg.Set(s.key, f.Value.String()); err != nil {
				return nil, err
			}
		}
	}
	for _, kv := range overrides {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("--set %q: want key=value", kv)
		}
		if err := cfg.Set(strings.TrimSpace(key), val); err != nil {
			return nil, err
		}
	}
	if cfg.Name == "" {
		cfg.Name = "run"
	}
	return cfg, nil
}
