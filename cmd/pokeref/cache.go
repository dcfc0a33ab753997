package main

import (
	"context"
	"fmt"

	"github.com/Sternrassler/pokeref/pkg/cache/sqlite"
	"github.com/Sternrassler/pokeref/pkg/config"
	"github.com/Sternrassler/pokeref/pkg/queries"
	"github.com/Sternrassler/pokeref/pkg/resource"
	"github.com/Sternrassler/pokeref/pkg/rpc"
	"github.com/spf13/cobra"
)

func newCacheCmd(configPath *string) *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and invalidate the query cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if server != "" {
				client, err := rpc.NewClient(rpc.DefaultClientConfig(server))
				if err != nil {
					return err
				}
				defer func() { _ = client.Close() }()

				stats, err := client.CacheStats(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Entries:     %d\nHits:        %d\nMisses:      %d\nLoads:       %d\nLoad errors: %d\n",
					stats.Entries, stats.Hits, stats.Misses, stats.Loads, stats.LoadErrors)
				return nil
			}

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Cache.Store != config.StoreSQLite {
				return fmt.Errorf("local stats need the %s store, use --server for a running instance", config.StoreSQLite)
			}
			store, err := sqlite.New(cfg.Cache.SQLitePath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			n, err := store.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored records: %d\n", n)
			return nil
		},
	}

	var expiredOnly bool
	clearCmd := &cobra.Command{
		Use:   "clear [kind] [name]",
		Short: "Invalidate cached queries of a kind, or one detail query",
		Args: func(cmd *cobra.Command, args []string) error {
			if expiredOnly {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.RangeArgs(1, 2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if expiredOnly {
				return purgeExpired(cmd, *configPath)
			}

			kind, err := resource.ParseKind(args[0])
			if err != nil {
				return err
			}
			var name string
			if len(args) == 2 {
				name = args[1]
			}

			var removed int
			if server != "" {
				client, err := rpc.NewClient(rpc.DefaultClientConfig(server))
				if err != nil {
					return err
				}
				defer func() { _ = client.Close() }()

				if removed, err = client.InvalidateCache(cmd.Context(), kind, name); err != nil {
					return err
				}
			} else if removed, err = clearLocal(cmd.Context(), *configPath, kind, name); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached queries.\n", removed)
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&expiredOnly, "expired", false, "only purge expired records from the sqlite store")

	cmd.PersistentFlags().StringVar(&server, "server", "", "base URL of a running pokeref server")
	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}

// clearLocal deletes the kind's queries, or one detail query, from the
// configured persistent store.
func clearLocal(ctx context.Context, configPath string, kind resource.Kind, name string) (int, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return 0, err
	}
	if cfg.Cache.Store == config.StoreMemory {
		return 0, fmt.Errorf("the %s store lives in the server process, use --server", config.StoreMemory)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer func() { _ = store.Close() }()

	prefix := queries.Keys(kind).All()
	if name != "" {
		prefix = queries.Keys(kind).Detail(name)
	}
	return store.DeletePrefix(ctx, prefix)
}

func purgeExpired(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Cache.Store != config.StoreSQLite {
		return fmt.Errorf("--expired needs the %s store", config.StoreSQLite)
	}

	store, err := sqlite.New(cfg.Cache.SQLitePath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	n, err := store.PurgeExpired(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Purged %d expired records.\n", n)
	return nil
}
