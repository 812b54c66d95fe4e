package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brainless/csvexplorer/internal/api"
	"github.com/brainless/csvexplorer/internal/jobs"
	"github.com/brainless/csvexplorer/internal/log"
	"github.com/brainless/csvexplorer/internal/shutdown"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the CSV proxy and dataset API server",
		Long: `Run the HTTP server. It exposes the CSV proxy used for restricted portals
(POST /api/proxy/csv), the healthcare dataset page lookup, the dataset cache API
and background import jobs. With --static it also serves the landing page.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setupApp(cmd)
			if err != nil {
				return err
			}

			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = a.config.ServerAddr
			}
			static, _ := cmd.Flags().GetBool("static")

			jobManager := jobs.NewManager(jobs.ManagerConfig{MaxWorkers: a.config.MaxJobs})
			server := api.NewServer(addr, a.importer, jobManager, api.ServerConfig{
				ServeStatic:     static,
				TrustedDomains:  a.config.TrustedDomains,
				UpstreamTimeout: a.config.FetchTimeout,
				MaxBodyBytes:    a.config.MaxBodyBytes,
				ChunkSize:       a.config.ChunkSize,
				SampleSize:      a.config.SampleSize,
				Workers:         a.config.Workers,
			})

			sm := shutdown.NewManager(shutdown.DefaultManagerConfig())
			hooks := []shutdown.Hook{
				shutdown.ServerHook(server, 10*time.Second),
				shutdown.JobsHook(jobManager.Stop, 30*time.Second),
				shutdown.NewFuncHook("fetch-client", shutdown.PriorityJobs+1, 0, func(ctx context.Context) error {
					a.client.Close()
					return nil
				}),
				shutdown.StoreHook(a.store),
			}
			for _, h := range hooks {
				if err := sm.Register(h); err != nil {
					return err
				}
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			errc := make(chan error, 1)
			go func() {
				errc <- server.Start()
				cancel()
			}()

			fmt.Fprintf(cmd.OutOrStdout(), "CSV Explorer server listening on %s\n", addr)
			shutdownErr := sm.Wait(ctx)

			if err := <-errc; err != nil {
				return err
			}
			if shutdownErr != nil {
				log.Logger.Warnf("Shutdown finished with errors: %v", shutdownErr)
			}
			return nil
		},
	}

	serveCmd.Flags().String("addr", "", "Listen address (default from config, :3000)")
	serveCmd.Flags().Bool("static", false, "Serve the embedded landing page at /")
	return serveCmd
}
