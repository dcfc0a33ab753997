package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/pokeref/pkg/logging"
	"github.com/Sternrassler/pokeref/pkg/resource"
	"github.com/spf13/cobra"
)

func newServeCmd(configPath *string) *cobra.Command {
	var (
		addr string
		warm bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := a.server(cfg)
			if err != nil {
				return err
			}

			go a.cache.Run(ctx, cfg.Cache.CollectInterval)

			if warm {
				warmLists(ctx, a)
			}

			return srv.ListenAndServe(ctx, cfg.Server.Addr, cfg.Server.ShutdownTimeout)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&warm, "warm", false, "prefetch every list query on startup")
	return cmd
}

// warmLists queues a prefetch for every list query.
func warmLists(ctx context.Context, a *app) {
	logger := logging.NewLogger("serve")
	kinds := append([]resource.Kind{resource.Pokemon}, resource.Aggregated...)
	for _, kind := range kinds {
		if err := a.queries.PrefetchList(ctx, kind); err != nil {
			logger.Warn().Err(err).Str("kind", kind.String()).Msg("Warm-up prefetch rejected")
		}
	}
}
