package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nullisland/tileserv/internal/config"
	"github.com/nullisland/tileserv/internal/server"
)

// Options defines the CLI flags and env vars for the tile server.
// Flags: --config, --host, --port
// Env vars: SERVICE_HOST, SERVICE_PORT (via humacli's automatic
// SERVICE_ prefix); the config file's own DATABASE_URL/CA_ROOT_FILE/
// DANGER_ACCEPT_INVALID_CERTS/DEFAULT_SRID env vars are read directly
// by config.PgConfig.Finalize, per the precedence rule below.
type Options struct {
	Config string `doc:"Path to the YAML config file" short:"c" default:"tileserv.yaml"`
	Host   string `doc:"Host to bind to" default:"0.0.0.0"`
	Port   int    `doc:"Port to listen on" short:"p" default:"3000"`
}

// loadConfig reads and finalizes opts.Config, copying the CLI's
// host/port options over whatever the file declared. Both options always
// carry a value (their defaults are 0.0.0.0 and 3000), so the file's own
// host/port never take effect; the server also binds to opts directly.
func loadConfig(opts *Options) (*config.Config, error) {
	cfg, err := config.LoadRaw(opts.Config)
	if err != nil {
		return nil, err
	}

	if opts.Host != "" {
		cfg.Host = opts.Host
	}
	if opts.Port != 0 {
		cfg.Port = opts.Port
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newServer(ctx context.Context, opts *Options) (*server.Server, *config.Resolved, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, nil, err
	}

	resolved, err := config.Resolve(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	srv := server.New(server.Config{
		Host: opts.Host,
		Port: fmt.Sprintf("%d", opts.Port),
	}, resolved.Registry)
	return srv, resolved, nil
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		ctx := context.Background()
		srv, resolved, err := newServer(ctx, opts)
		if err != nil {
			log.Fatalf("failed to start: %v", err)
		}

		hooks.OnStart(func() {
			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			slog.Info("tileserv starting", "addr", addr, "sources", resolved.Registry.Len())
			if err := http.ListenAndServe(addr, srv); err != nil {
				log.Fatalf("server error: %v", err)
			}
		})

		hooks.OnStop(func() {
			resolved.Pools.Close()
		})
	})

	cli.Root().Use = "tileserv"
	cli.Root().Short = "Vector tile server backed by PostGIS and PMTiles sources"
	cli.Root().Version = "1.0.0"

	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export the OpenAPI document (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			ctx := context.Background()
			srv, _, err := newServer(ctx, opts)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error building server: %v\n", err)
				os.Exit(1)
			}
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	cli.Run()
}
