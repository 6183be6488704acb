package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/tanksim/internal/config"
	"github.com/san-kum/tanksim/internal/dynamo"
	"github.com/san-kum/tanksim/internal/export"
	"github.com/san-kum/tanksim/internal/storage"
)

func listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := storage.New(dataDir).List()
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("no runs found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTIME\tDURATION\tTS\tINTEG\tCTRL\tFINAL\tSTATUS")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.0fs\t%gs\t%s\t%s\t%.3f\t%s\n",
					run.ID,
					run.Name,
					run.Timestamp.Local().Format("2006-01-02 15:04:05"),
					run.Duration,
					run.SamplePeriod,
					run.Integrator,
					run.Controller,
					run.Final,
					run.StopReason,
				)
			}
			return w.Flush()
		},
	}
}

func showCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show [run_id]",
		Short: "show a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := storage.New(dataDir)
			meta, err := st.Load(args[0])
			if err != nil {
				return err
			}
			cfg, err := st.LoadConfig(args[0])
			if err != nil {
				return err
			}
			tr, err := st.LoadTrajectory(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("run: %s (%s)\n", meta.ID, meta.Name)
			fmt.Printf("time: %s\n", meta.Timestamp.Local().Format("2006-01-02 15:04:05"))
			fmt.Printf("plant: V=%g m³, P_max=%g, q_in=%g, UA=%g\n",
				cfg.TankVolume, cfg.HeaterMaxPower, cfg.InletFlowRate, cfg.HeatLossCoefficient)
			fmt.Printf("controller: %s kp=%g ki=%g kd=%g, integrator: %s\n",
				cfg.Controller, cfg.Kp, cfg.Ki, cfg.Kd, cfg.Integrator)
			fmt.Printf("samples: %d\n\n", len(tr))
			printResult(cfg, resultFromStored(meta, tr))
			return nil
		},
	}
}

func deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [run_id...]",
		Short: "delete stored runs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := storage.New(dataDir)
			for _, id := range args {
				if err := st.Delete(id); err != nil {
					return err
				}
				fmt.Printf("deleted %s\n", id)
			}
			return nil
		},
	}
}

func plotCommand() *cobra.Command {
	var height int
	cmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := storage.New(dataDir)
			meta, err := st.Load(args[0])
			if err != nil {
				return err
			}
			tr, err := st.LoadTrajectory(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("run: %s (%s)\n", meta.ID, meta.Name)
			printPlot(tr, height)
			return nil
		},
	}
	cmd.Flags().IntVar(&height, "height", 15, "plot height in rows")
	return cmd
}

func exportCSVCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export a run's trajectory to CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := storage.New(dataDir).LoadTrajectory(args[0])
			if err != nil {
				return err
			}
			return writeOutput(out, func(w io.Writer) error { return storage.WriteCSV(w, tr) })
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	return cmd
}

func exportJSONCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export a run's metadata and trajectory to JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := storage.New(dataDir)
			return writeOutput(out, func(w io.Writer) error { return st.ExportJSON(w, args[0]) })
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	return cmd
}

func exportSVGCommand() *cobra.Command {
	var (
		out  string
		opts = export.DefaultSVGOptions()
	)
	cmd := &cobra.Command{
		Use:   "export-svg [run_id]",
		Short: "render a run's trajectory as SVG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := storage.New(dataDir)
			meta, err := st.Load(args[0])
			if err != nil {
				return err
			}
			tr, err := st.LoadTrajectory(args[0])
			if err != nil {
				return err
			}
			if opts.Title == "" {
				opts.Title = meta.Name
			}
			if out == "" {
				out = meta.ID + ".svg"
			}
			if err := writeOutput(out, func(w io.Writer) error { return export.WriteSVG(w, tr, opts) }); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default <run_id>.svg)")
	cmd.Flags().IntVar(&opts.Width, "width", opts.Width, "image width")
	cmd.Flags().IntVar(&opts.Height, "height", opts.Height, "image height")
	cmd.Flags().StringVar(&opts.Title, "title", "", "image title (default run name)")
	return cmd
}

func presetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "presets [name]",
		Short: "list presets, or print one as yaml",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				for _, name := range config.ListPresets() {
					p := config.Preset(name)
					fmt.Printf("  %-14s %s, kp=%g ki=%g, setpoint %g\n",
						name, p.Controller, p.Kp, p.Ki, p.SetpointSchedule.Final())
				}
				return nil
			}
			p := config.Preset(args[0])
			if p == nil {
				return fmt.Errorf("unknown preset: %s (available: %v)", args[0], config.ListPresets())
			}
			return printYAML(p)
		},
	}
}

// resultFromStored rebuilds the parts of a result that printResult needs.
func resultFromStored(meta *storage.RunMetadata, tr dynamo.Trajectory) *dynamo.Result {
	res := &dynamo.Result{
		Trajectory: tr,
		StopReason: meta.StopReason,
		Warnings:   meta.Warnings,
		Metrics:    meta.Metrics,
		Ticks:      meta.Ticks,
		FineSteps:  meta.FineSteps,
	}
	switch meta.Status {
	case dynamo.StatusCompleted.String():
		res.Status = dynamo.StatusCompleted
	case dynamo.StatusRunning.String():
		res.Status = dynamo.StatusRunning
	}
	return res
}

func printYAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	defer enc.Close()
	return enc.Encode(v)
}

func writeOutput(path string, write func(io.Writer) error) error {
	if path == "" || path == "-" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := write(f); err != nil {
		return err
	}
	return f.Close()
}
