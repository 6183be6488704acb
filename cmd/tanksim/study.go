package main

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/tanksim/internal/analysis"
	"github.com/san-kum/tanksim/internal/automation"
	"github.com/san-kum/tanksim/internal/config"
	"github.com/san-kum/tanksim/internal/control"
	"github.com/san-kum/tanksim/internal/dynamo"
	"github.com/san-kum/tanksim/internal/experiment"
	"github.com/san-kum/tanksim/internal/optim"
	"github.com/san-kum/tanksim/internal/storage"
)

func sweepCommand() *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "sweep [sweep.yaml]",
		Short: "run one config per value of a parameter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sw, err := automation.LoadSweep(args[0])
			if err != nil {
				return err
			}
			logger, err := newLogger()
			if err != nil {
				return err
			}
			results, err := automation.RunSweep(cmd.Context(), sw, workers, logger)
			if err != nil {
				return err
			}

			var st *storage.Store
			if save {
				st = storage.New(dataDir)
				if err := st.Init(); err != nil {
					return err
				}
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "%s\tFINAL\tIAE\tISE\tENERGY\tSAT\tID\n", strings.ToUpper(sw.Param))
			for _, r := range results {
				id := "-"
				if st != nil {
					if id, err = st.Save(r.Config, r.Result); err != nil {
						return err
					}
				}
				m := r.Result.Metrics
				fmt.Fprintf(w, "%g\t%.4f\t%.5g\t%.5g\t%.5g\t%.1f%%\t%s\n",
					r.ParamValue, r.Result.Trajectory.Last().Temperature,
					m["iae"], m["ise"], m["heater_energy"], 100*m["saturation"], id)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent runs (default GOMAXPROCS)")
	cmd.Flags().BoolVar(&save, "save", false, "store every run")
	return cmd
}

func scenarioCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario [scenario.yaml]",
		Short: "run the steps of a scenario file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := automation.LoadScenario(args[0])
			if err != nil {
				return err
			}
			logger, err := newLogger()
			if err != nil {
				return err
			}
			results, err := automation.RunScenario(cmd.Context(), sc, workers, logger)
			if err != nil {
				return err
			}

			st := storage.New(dataDir)
			if err := st.Init(); err != nil {
				return err
			}

			fmt.Printf("scenario: %s\n", sc.Name)
			if sc.Description != "" {
				fmt.Printf("  %s\n", sc.Description)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STEP\tFINAL\tIAE\tWARNINGS\tID")
			for _, r := range results {
				id := "-"
				if r.Step.SaveAs != "" {
					cfg := r.Config.Clone()
					cfg.Name = r.Step.SaveAs
					if id, err = st.Save(cfg, r.Result); err != nil {
						return err
					}
				}
				fmt.Fprintf(w, "%s\t%.4f\t%.5g\t%d\t%s\n",
					r.Config.Name, r.Result.Trajectory.Last().Temperature,
					r.Result.Metrics["iae"], len(r.Result.Warnings), id)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent runs (default GOMAXPROCS)")
	return cmd
}

func tuneCommand() *cobra.Command {
	var (
		kpRange, kiRange, kdRange string
		metric                    string
		top                       int
	)
	cmd := &cobra.Command{
		Use:   "tune",
		Short: "grid-search controller gains that minimise a metric",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := buildConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger()
			if err != nil {
				return err
			}

			var names []string
			var ranges [][]float64
			for _, r := range []struct{ key, spec string }{{"kp", kpRange}, {"ki", kiRange}, {"kd", kdRange}} {
				if r.spec == "" {
					continue
				}
				vals, err := parseRange(r.spec)
				if err != nil {
					return fmt.Errorf("--%s-range: %w", r.key, err)
				}
				names = append(names, r.key)
				ranges = append(ranges, vals)
			}
			if len(names) == 0 {
				return fmt.Errorf("give at least one of --kp-range, --ki-range, --kd-range")
			}
			if len(names) == 3 && base.Controller == string(control.KindPI) {
				base.Controller = string(control.KindPID)
			}

			gs, err := optim.NewGridSearch(names, ranges)
			if err != nil {
				return err
			}
			start := time.Now()
			cands, err := gs.WithWorkers(workers).WithLogger(logger).Search(cmd.Context(), base, metric)
			if err != nil {
				return err
			}

			fmt.Printf("%d grid points in %v, metric %s\n\n", len(cands), time.Since(start).Round(time.Millisecond), metric)
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RANK\t"+strings.ToUpper(strings.Join(names, "\t"))+"\t"+strings.ToUpper(metric))
			for i, c := range cands {
				if i >= top || !c.OK() {
					break
				}
				row := []string{strconv.Itoa(i + 1)}
				for _, n := range names {
					row = append(row, strconv.FormatFloat(c.Params[n], 'g', 6, 64))
				}
				row = append(row, strconv.FormatFloat(c.Score, 'g', 6, 64))
				fmt.Fprintln(w, strings.Join(row, "\t"))
			}
			return w.Flush()
		},
	}
	addConfigFlags(cmd)
	cmd.Flags().StringVar(&kpRange, "kp-range", "", "kp grid as lo:hi:n or a comma list")
	cmd.Flags().StringVar(&kiRange, "ki-range", "", "ki grid as lo:hi:n or a comma list")
	cmd.Flags().StringVar(&kdRange, "kd-range", "", "kd grid as lo:hi:n or a comma list")
	cmd.Flags().StringVar(&metric, "metric", "iae", "metric to minimise (iae, ise, heater_energy, control_effort, saturation)")
	cmd.Flags().IntVar(&top, "top", 5, "number of candidates to print")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent runs (default GOMAXPROCS)")
	return cmd
}

// parseRange accepts "lo:hi:n" or "a,b,c".
func parseRange(spec string) ([]float64, error) {
	if parts := strings.Split(spec, ":"); len(parts) == 3 {
		lo, err1 := strconv.ParseFloat(parts[0], 64)
		hi, err2 := strconv.ParseFloat(parts[1], 64)
		n, err3 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil || err3 != nil || n < 1 {
			return nil, fmt.Errorf("bad range %q", spec)
		}
		return optim.Linspace(lo, hi, n), nil
	}
	var out []float64
	for _, f := range strings.Split(spec, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("bad value %q in %q", f, spec)
		}
		out = append(out, v)
	}
	return out, nil
}

func compareCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [integrator...]",
		Short: "run one config with several integrators and compare the trajectories",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := buildConfig(cmd)
			if err != nil {
				return err
			}

			type run struct {
				name    string
				result  *dynamo.Result
				elapsed time.Duration
			}
			runs := make([]run, 0, len(args))
			for _, name := range args {
				cfg := base.Clone()
				cfg.Integrator = name
				start := time.Now()
				res, err := experiment.Run(cmd.Context(), cfg)
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				runs = append(runs, run{name: name, result: res, elapsed: time.Since(start)})
			}

			ref := runs[0]
			fmt.Printf("reference: %s\n\n", ref.name)
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "INTEGRATOR\tFINE STEPS\tTIME\tFINAL\tMAX |ΔT|\tRMS ΔT\tWARNINGS")
			for _, r := range runs {
				d, err := analysis.Compare(ref.result.Trajectory, r.result.Trajectory)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%d\t%v\t%.6f\t%.3g\t%.3g\t%d\n",
					r.name, r.result.FineSteps, r.elapsed.Round(time.Microsecond),
					r.result.Trajectory.Last().Temperature, d.MaxAbs, d.RMS, len(r.result.Warnings))
			}
			return w.Flush()
		},
	}
	addConfigFlags(cmd)
	return cmd
}

func verifyCommand() *cobra.Command {
	var (
		power  float64
		levels int
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "check each integrator against the exact open-loop solution",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := buildConfig(cmd)
			if err != nil {
				return err
			}
			base.Controller = string(control.KindOpenLoop)
			if cmd.Flags().Changed("power") || base.OpenLoopPower == 0 {
				base.OpenLoopPower = power
			}
			if levels < 2 {
				levels = 2
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "INTEGRATOR\tDT\tMAX ERROR\tORDER")
			for _, name := range experiment.NewRegistry().ListIntegrators() {
				prev := math.NaN()
				for lvl := 0; lvl < levels; lvl++ {
					cfg := base.Clone()
					cfg.Integrator = name
					cfg.FineStepSize = base.FineStepSize / math.Pow(2, float64(lvl))

					errMax, err := openLoopError(cmd, cfg)
					if err != nil {
						return fmt.Errorf("%s dt=%g: %w", name, cfg.FineStepSize, err)
					}
					order := "-"
					if lvl > 0 {
						order = fmt.Sprintf("%.2f", analysis.Order(prev, errMax, 2))
					}
					fmt.Fprintf(w, "%s\t%g\t%.3e\t%s\n", name, cfg.FineStepSize, errMax, order)
					prev = errMax
				}
			}
			return w.Flush()
		},
	}
	addConfigFlags(cmd)
	cmd.Flags().Float64Var(&power, "power", 5000, "constant heater power")
	cmd.Flags().IntVar(&levels, "levels", 3, "number of step halvings")
	return cmd
}

func openLoopError(cmd *cobra.Command, cfg *config.Config) (float64, error) {
	exp, err := experiment.New(cfg)
	if err != nil {
		return 0, err
	}
	res, err := exp.Run(cmd.Context())
	if err != nil {
		return 0, err
	}
	tr := res.Trajectory
	u := tr.Last().Command
	tank := exp.Tank()
	d := analysis.AgainstReference(tr, func(t float64) float64 {
		return tank.OpenLoop(cfg.InitialTemperature, u, t)
	})
	return d.MaxAbs, nil
}
