package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Sternrassler/pokeref/pkg/resource"
	"github.com/Sternrassler/pokeref/pkg/rpc"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Output formats of the fetch command.
const (
	outputJSON = "json"
	outputYAML = "yaml"
)

func newFetchCmd(configPath *string) *cobra.Command {
	var (
		server string
		output string
	)

	cmd := &cobra.Command{
		Use:   "fetch <kind> [name]",
		Short: "Fetch a list, or one item by name, and print it",
		Long: `Fetch runs one query and prints the result.

Without --server the query runs in-process against the PokeAPI using the
configured cache store. With --server it is sent to a running pokeref.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != outputJSON && output != outputYAML {
				return fmt.Errorf("unknown output format %q (want %s or %s)", output, outputJSON, outputYAML)
			}

			kind, err := resource.ParseKind(args[0])
			if err != nil {
				return err
			}
			var name string
			if len(args) == 2 {
				name = args[1]
			}

			procs, closeFn, err := procedures(cmd.Context(), *configPath, server)
			if err != nil {
				return err
			}
			defer closeFn()

			var out any
			if name == "" {
				out, err = rpc.List(cmd.Context(), procs, kind)
			} else {
				out, err = rpc.GetByName(cmd.Context(), procs, kind, name)
			}
			if err != nil {
				return err
			}
			if name != "" && out == nil {
				return fmt.Errorf("%s %q not found", kind, name)
			}

			return render(cmd.OutOrStdout(), output, out)
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "base URL of a running pokeref server")
	cmd.Flags().StringVarP(&output, "output", "o", outputJSON, "output format: json or yaml")
	return cmd
}

// procedures returns the remote client when server is set, otherwise the
// in-process cached queries. The close func releases either.
func procedures(ctx context.Context, configPath, server string) (rpc.Procedures, func(), error) {
	if server != "" {
		client, err := rpc.NewClient(rpc.DefaultClientConfig(server))
		if err != nil {
			return nil, nil, err
		}
		return client, func() { _ = client.Close() }, nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return a.queries, func() { _ = a.Close() }, nil
}

// render writes v as indented JSON or as YAML. YAML goes through the JSON
// form so field names match the wire format.
func render(w io.Writer, format string, v any) error {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	if format == outputJSON {
		_, err = fmt.Fprintln(w, string(body))
		return err
	}

	var generic any
	if err := json.Unmarshal(body, &generic); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return enc.Close()
}
