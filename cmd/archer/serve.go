package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/go-mizu/archer"
	archerserver "github.com/go-mizu/archer/server"
)

// newServeCmd starts the query and admin socket server, with a --forking
// flag selecting the connection-concurrency model. Non-forking serves one
// connection at a time (strict serial command processing); forking serves
// each connection on its own goroutine instead of a forked process, capped
// by a semaphore.Weighted in package server when --max-connections is set
// and unbounded when it is 0.
func newServeCmd() *cobra.Command {
	var port int
	var adminPort int
	var forking bool
	var maxConns int64

	c := &cobra.Command{
		Use:   "serve",
		Short: "Start the query and admin socket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := archer.Open(dataDirFlag(cmd))
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer idx.Close()

			if adminPort == 0 {
				adminPort = port + 1
			}
			cfg := archerserver.DefaultConfig(
				fmt.Sprintf(":%d", port),
				fmt.Sprintf(":%d", adminPort),
			)
			if !forking {
				cfg.MaxConnections = 1
			} else if maxConns > 0 {
				cfg.MaxConnections = maxConns
			}

			srv := archerserver.New(idx, cfg, archerserver.WithLogger(idx.Logger()))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx)
		},
	}

	c.Flags().IntVar(&port, "port", 8313, "query socket port (--query-server PORT)")
	c.Flags().IntVar(&adminPort, "admin-port", 0, "admin socket port (default: port+1)")
	c.Flags().BoolVar(&forking, "forking", false, "serve query connections concurrently instead of one at a time (--query-forking-server)")
	c.Flags().Int64Var(&maxConns, "max-connections", 0, "cap on concurrently served forking connections (0 = unbounded)")

	return c
}
