package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"podhound/internal/config"
	"podhound/internal/debuglog"
	"podhound/internal/feed"
	"podhound/internal/search"
	"podhound/internal/server"
	"podhound/internal/storage"
	"podhound/internal/validation"
)

// Version is the version of the application, set at build time
var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "podhound",
		Short:         "Discover, store and refresh podcast feeds",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "path to configuration file")

	root.AddCommand(serveCmd())
	root.AddCommand(discoverCmd())
	root.AddCommand(generateConfigCmd())
	root.AddCommand(versionCmd())

	return root
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	var (
		addr       string
		dbPath     string
		quiet      bool
		permissive bool
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Starts the podhound HTTP server on a local port.

The server exposes feed discovery, feed management, episode listing,
refresh and search endpoints under /api. A browser or any HTTP client is
the user interface.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if addr != "" {
				cfg.Server.Addr = addr
			}
			if dbPath != "" {
				cfg.Database.Path = dbPath
			}

			if err := debuglog.Setup(debuglog.ParseLevel(cfg.Log.Level), cfg.Log.Path); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
			}
			defer debuglog.Close()

			if !quiet {
				showBanner()
			}

			store, err := storage.NewStore(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			manager := feed.NewManager(store, cfg)
			if permissive {
				manager.SetPermissiveValidation(true)
			}
			if force {
				manager.SetForceRefresh(true)
			}

			var searcher search.Searcher
			if cfg.Database.SearchIndex != "" {
				engine, searchErr := search.NewBleveEngine(store, cfg.Database.SearchIndex)
				if searchErr != nil {
					fmt.Fprintf(os.Stderr, "Warning: search disabled: %v\n", searchErr)
				} else {
					defer engine.Close()
					manager.SetIndexListener(engine)
					searcher = engine
				}
			}

			app := server.New(&server.Config{
				Store:    store,
				Manager:  manager,
				Searcher: searcher,
			})

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

			errChan := make(chan error, 1)
			go func() {
				fmt.Printf("podhound listening on http://%s\n", cfg.Server.Addr)
				errChan <- app.Listen(cfg.Server.Addr)
			}()

			select {
			case err := <-errChan:
				return err
			case <-quit:
				fmt.Println("Gracefully shutting down...")
				return app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout)
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&dbPath, "db", "", "path to database file (overrides config)")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "skip startup banner")
	cmd.Flags().BoolVar(&permissive, "permissive", false, "allow localhost and private-IP URLs")
	cmd.Flags().BoolVar(&force, "force-refresh", false, "ignore ETag/Last-Modified caching on feed fetches")

	return cmd
}

func discoverCmd() *cobra.Command {
	var permissive bool

	cmd := &cobra.Command{
		Use:   "discover <page-url>",
		Short: "Find podcast feeds on a web page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			validator := validation.NewURLValidator()
			if permissive {
				validator = validation.NewPermissiveURLValidator()
			}

			resolver := feed.NewResolver(cfg, validator)
			feeds, err := resolver.Discover(context.Background(), args[0])
			if err != nil {
				return err
			}

			if len(feeds) == 0 {
				fmt.Println("No feeds found.")
				return nil
			}

			for _, f := range feeds {
				title := f.Title
				if title == "" {
					title = "(untitled)"
				}
				fmt.Printf("%s\n  %s (%d episodes)\n", title, f.URL, f.EpisodeCount)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&permissive, "permissive", false, "allow localhost and private-IP URLs")

	return cmd
}

func generateConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate-config",
		Short: "Write a default config file",
		RunE: func(_ *cobra.Command, _ []string) error {
			home, _ := os.UserHomeDir()
			configFile := filepath.Join(home, ".config", "podhound", "config.toml")

			if err := config.GenerateDefaultConfig(configFile); err != nil {
				return fmt.Errorf("generating config: %w", err)
			}
			fmt.Printf("Generated default configuration at: %s\n", configFile)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("podhound %s\n", Version)
			fmt.Println("podcast feed discovery and aggregation")
		},
	}
}
