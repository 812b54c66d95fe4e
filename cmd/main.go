package main

import (
	"fmt"
	"os"

	"github.com/brainless/csvexplorer/internal/config"
	"github.com/brainless/csvexplorer/internal/fetch"
	"github.com/brainless/csvexplorer/internal/importer"
	"github.com/brainless/csvexplorer/internal/log"
	"github.com/brainless/csvexplorer/internal/storage"
	"github.com/brainless/csvexplorer/internal/tui"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "csvexplorer",
		Short: "Fetch, cache and explore public CSV datasets",
		Long: `CSV Explorer downloads CSV files from public data portals, caches them
locally in chunks with an inferred schema, and renders a reference page with
a data dictionary, sample queries and DKAN SQL examples.

Restricted portals such as data.healthcare.gov are fetched through the
built-in CSV proxy ('csvexplorer serve').`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("storage-path", "p", "", "Set storage path for the dataset cache")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().Bool("ephemeral", false, "Keep datasets in memory for this run only")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newListCmd(), newShowCmd(), newRowsCmd(), newClearCmd(), newReferenceCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newShellCmd())

	return rootCmd
}

// app holds the components every command shares
type app struct {
	config   config.Config
	store    *storage.LazyStore
	client   *fetch.Client
	importer *importer.Importer
}

// setupApp loads configuration and wires storage, fetch client and importer.
// The SQLite database is only opened when a command first touches it.
func setupApp(cmd *cobra.Command) (*app, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	log.InitLogger(verbose)

	if err := config.InitConfig(); err != nil {
		return nil, fmt.Errorf("failed to initialize config: %w", err)
	}
	cfg := config.AppConfig
	if path, _ := cmd.Flags().GetString("storage-path"); path != "" {
		cfg.StoragePath = path
	}

	ephemeral, _ := cmd.Flags().GetBool("ephemeral")
	store := storage.NewLazyStore(func() (storage.Store, error) {
		if ephemeral {
			log.Logger.Debug("Using in-memory dataset cache")
			return storage.NewMemoryStore(), nil
		}
		log.Logger.Debugf("Opening dataset cache in %s", cfg.StoragePath)
		return storage.NewSQLiteStore(cfg.StoragePath)
	})
	cached, err := storage.NewCachedStore(store, cfg.CacheEntries)
	if err != nil {
		return nil, err
	}

	client := fetch.NewClient(fetch.Config{
		Timeout:           cfg.FetchTimeout,
		ProxyURL:          cfg.ProxyURL,
		RestrictedDomains: cfg.RestrictedDomains,
		MaxBodyBytes:      cfg.MaxBodyBytes,
	})

	return &app{
		config:   cfg,
		store:    store,
		client:   client,
		importer: importer.New(cached, client),
	}, nil
}

func (a *app) close() {
	a.client.Close()
	if err := a.store.Close(); err != nil {
		log.Logger.Warnf("Failed to close dataset cache: %v", err)
	}
}

func (a *app) importOptions(cmd *cobra.Command) importer.Options {
	opts := importer.Options{
		ChunkSize:  a.config.ChunkSize,
		SampleSize: a.config.SampleSize,
	}
	if cmd.Flags().Lookup("chunk-size") != nil {
		if n, _ := cmd.Flags().GetInt("chunk-size"); n > 0 {
			opts.ChunkSize = n
		}
	}
	if cmd.Flags().Lookup("force") != nil {
		opts.Force, _ = cmd.Flags().GetBool("force")
	}
	return opts
}

// shell returns a non-interactive shell for one-shot commands
func (a *app) shell(cmd *cobra.Command) *tui.Shell {
	return tui.NewShell(a.importer, tui.ShellConfig{
		ChunkSize: a.config.ChunkSize,
		Workers:   a.config.Workers,
		Out:       cmd.OutOrStdout(),
	})
}

// runShellCommand executes args through the shell command set
func runShellCommand(cmd *cobra.Command, args ...string) error {
	a, err := setupApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()
	return a.shell(cmd).ExecuteArgs(args)
}

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start the interactive shell",
		Long:  "Start an interactive shell with command history and tab completion of cached dataset URLs.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setupApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			return tui.NewShell(a.importer, tui.ShellConfig{
				HistoryFile: a.config.HistoryFile,
				ChunkSize:   a.config.ChunkSize,
				Workers:     a.config.Workers,
				Out:         cmd.OutOrStdout(),
			}).Run()
		},
	}
}

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration settings",
		Long:  "Show configuration or change the storage path of the dataset cache.",
	}

	setStorageCmd := &cobra.Command{
		Use:   "set-storage [path]",
		Short: "Set the storage path for the dataset cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, _ := cmd.Flags().GetBool("verbose")
			log.InitLogger(verbose)
			if err := config.InitConfig(); err != nil {
				return fmt.Errorf("failed to initialize config: %w", err)
			}
			if err := config.SetStoragePath(args[0]); err != nil {
				return fmt.Errorf("failed to set storage path: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Storage path set to: %s\n", args[0])
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setupApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			c := a.config
			fmt.Fprintln(out, "Current configuration:")
			fmt.Fprintf(out, "  Storage path:       %s\n", c.StoragePath)
			fmt.Fprintf(out, "  Chunk size:         %d\n", c.ChunkSize)
			fmt.Fprintf(out, "  Sample size:        %d\n", c.SampleSize)
			fmt.Fprintf(out, "  Fetch timeout:      %s\n", c.FetchTimeout)
			fmt.Fprintf(out, "  Proxy URL:          %s\n", c.ProxyURL)
			fmt.Fprintf(out, "  Restricted domains: %v\n", c.RestrictedDomains)
			fmt.Fprintf(out, "  Trusted domains:    %v\n", c.TrustedDomains)
			fmt.Fprintf(out, "  Server address:     %s\n", c.ServerAddr)
			fmt.Fprintf(out, "  Cache entries:      %d\n", c.CacheEntries)
			fmt.Fprintf(out, "  Workers:            %d\n", c.Workers)
			fmt.Fprintf(out, "  Max jobs:           %d\n", c.MaxJobs)
			fmt.Fprintf(out, "  Max body bytes:     %d\n", c.MaxBodyBytes)
			return nil
		},
	}

	configCmd.AddCommand(setStorageCmd, showCmd)
	return configCmd
}
