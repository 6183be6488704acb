package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/tanksim/internal/analysis"
	"github.com/san-kum/tanksim/internal/config"
	"github.com/san-kum/tanksim/internal/dynamo"
	"github.com/san-kum/tanksim/internal/experiment"
	"github.com/san-kum/tanksim/internal/setpoint"
	"github.com/san-kum/tanksim/internal/sim"
	"github.com/san-kum/tanksim/internal/storage"
	"github.com/san-kum/tanksim/internal/tui"
)

func runCommand() *cobra.Command {
	var (
		noSave     bool
		showPlot   bool
		sqlitePath string
		dumpConfig bool
		wallClock  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "run a simulation and store the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(cmd)
			if err != nil {
				return err
			}
			if dumpConfig {
				return printYAML(cfg)
			}
			logger, err := newLogger()
			if err != nil {
				return err
			}

			runID := storage.NewID()
			opts := []experiment.Option{experiment.WithLogger(logger.With("id", runID))}
			if wallClock > 0 {
				opts = append(opts, experiment.WithStop(sim.WallClock(wallClock)))
			}

			exp, err := experiment.New(cfg, opts...)
			if err != nil {
				return err
			}

			var rec *storage.SQLiteRecorder
			if sqlitePath != "" {
				rec, err = storage.NewSQLiteRecorder(sqlitePath, runID, cfg.Name, 0)
				if err != nil {
					return err
				}
				exp.AddObserver(rec)
			}

			fmt.Printf("running %s...\n", cfg.Name)
			start := time.Now()
			result, runErr := exp.Run(cmd.Context())
			elapsed := time.Since(start)

			if rec != nil {
				if err := rec.Close(); err != nil && runErr == nil {
					runErr = err
				}
			}
			if result == nil {
				return runErr
			}

			if !noSave {
				st := storage.New(dataDir)
				if err := st.Init(); err != nil {
					return err
				}
				if _, err := st.SaveAs(runID, cfg, result); err != nil {
					return err
				}
				fmt.Printf("run id: %s\n", runID)
			}
			fmt.Printf("completed in %v\n", elapsed)

			printResult(cfg, result)
			if showPlot {
				printPlot(result.Trajectory, 12)
			}
			return runErr
		},
	}

	addConfigFlags(cmd)
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")
	cmd.Flags().BoolVar(&showPlot, "plot", false, "plot temperature and setpoint")
	cmd.Flags().StringVar(&sqlitePath, "sqlite", "", "also record samples into this SQLite database")
	cmd.Flags().BoolVar(&dumpConfig, "dump-config", false, "print the resolved config as yaml and exit")
	cmd.Flags().DurationVar(&wallClock, "wall-clock", 0, "stop after this much real time")
	return cmd
}

func liveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "live",
		Short: "step a simulation interactively in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(cmd)
			if err != nil {
				return err
			}
			exp, err := experiment.New(cfg)
			if err != nil {
				return err
			}
			_, err = tea.NewProgram(tui.NewLive(exp), tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
	addConfigFlags(cmd)
	return cmd
}

func printResult(cfg *config.Config, result *dynamo.Result) {
	last := result.Trajectory.Last()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "status:\t%s (%s)\n", result.Status, result.StopReason)
	fmt.Fprintf(w, "ticks:\t%d\n", result.Ticks)
	fmt.Fprintf(w, "fine steps:\t%d\n", result.FineSteps)
	fmt.Fprintf(w, "final temperature:\t%.4f\n", last.Temperature)
	fmt.Fprintf(w, "final setpoint:\t%.4f\n", last.Setpoint)
	fmt.Fprintf(w, "final command:\t%.4g\n", last.Command)
	w.Flush()

	for _, warn := range result.Warnings {
		fmt.Printf("warning: %s\n", warn)
	}

	if cfg.SetpointSchedule.Type == "" || cfg.SetpointSchedule.Type == setpoint.TypeConstant {
		if step, err := analysis.Step(result.Trajectory, cfg.SetpointSchedule.Final(), 0.02); err == nil {
			fmt.Println("\nstep response:")
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "  rise time:\t%.1fs\n", step.RiseTime)
			fmt.Fprintf(w, "  peak:\t%.4f at %.1fs\n", step.Peak, step.PeakTime)
			fmt.Fprintf(w, "  overshoot:\t%.2f%%\n", step.Overshoot)
			if step.Settled {
				fmt.Fprintf(w, "  settling time:\t%.1fs\n", step.SettlingTime)
			} else {
				fmt.Fprintf(w, "  settling time:\tnot settled\n")
			}
			fmt.Fprintf(w, "  steady-state error:\t%.4g\n", step.SteadyStateError)
			w.Flush()
		}
	}

	printMetrics(result.Metrics)
}

func printMetrics(m map[string]float64) {
	if len(m) == 0 {
		return
	}
	fmt.Println("\nmetrics:")
	for _, name := range sortedKeys(m) {
		fmt.Printf("  %s: %.6g\n", name, m[name])
	}
}

func printPlot(tr dynamo.Trajectory, height int) {
	if len(tr) < 2 {
		fmt.Println("no data to plot")
		return
	}
	fmt.Println()
	fmt.Println(asciigraph.PlotMany([][]float64{tr.Temperatures(), tr.Setpoints()},
		asciigraph.Height(height),
		asciigraph.Width(80),
		asciigraph.SeriesColors(asciigraph.Red, asciigraph.Green),
		asciigraph.Caption(fmt.Sprintf("temperature / setpoint, %.0fs", tr.Last().Time-tr[0].Time))))
	fmt.Println()
	fmt.Println(asciigraph.Plot(tr.Commands()[1:],
		asciigraph.Height(height/2),
		asciigraph.Width(80),
		asciigraph.SeriesColors(asciigraph.Cyan),
		asciigraph.Caption("heater command")))
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
