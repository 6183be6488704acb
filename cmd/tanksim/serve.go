package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/san-kum/tanksim/internal/server"
	"github.com/san-kum/tanksim/internal/storage"
)

func serveCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "serve stored runs over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			st := storage.New(dataDir)
			if err := st.Init(); err != nil {
				return err
			}
			return server.New(st, logger).ListenAndServe(cmd.Context(), addr, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "listen address")
	return cmd
}
