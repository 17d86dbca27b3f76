package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/vulnrecon/internal/api"
)

var (
	serveListen    string
	serveCatalog   string
	serveRateLimit int
)

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve curation sessions over HTTP",
	Long: `Runs the JSON API on listen_addr. Sessions live in the configured local
store; other vulnrecon instances reach them with --server.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.ServerURL != "" {
			return &ValidationError{Message: "serve cannot be combined with --server"}
		}

		manager, store, err := openManager(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		addr := serveListen
		if addr == "" {
			addr = cfg.ListenAddr
		}
		catalogPath := serveCatalog
		if catalogPath == "" {
			catalogPath = cfg.CatalogPath
		}

		srv := api.NewServer(manager, api.Config{
			CatalogPath: catalogPath,
			RateLimit:   serveRateLimit,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return srv.ListenAndServe(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "",
		"listen address (default: listen_addr from config)")
	serveCmd.Flags().StringVar(&serveCatalog, "catalog", "",
		"catalog file (default: catalog_path from config)")
	serveCmd.Flags().IntVar(&serveRateLimit, "rate-limit", api.DefaultRateLimitRequests,
		"requests per minute per client IP")
}
