package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/warp/variance-engine/config"
	"github.com/warp/variance-engine/logger"
	"github.com/warp/variance-engine/store/sqlite"
)

type rootOptions struct {
	configPath string
	dbPath     string
	logLevel   string
	jsonOut    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "variance",
		Short: "Budget-vs-actual variance analysis",
		Long: `variance matches budget line items against actuals, classifies each
variance by severity, rolls child accounts into their parents and ranks
the findings as insights.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "variance.toml", "TOML config path")
	rootCmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level")
	rootCmd.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "Print JSON instead of tables")

	rootCmd.AddCommand(newAnalyzeCmd(opts))
	rootCmd.AddCommand(newHistoryCmd(opts))
	rootCmd.AddCommand(newThresholdsCmd(opts))

	return rootCmd
}

// env is what every command works against.
type env struct {
	cfg   config.Config
	log   zerolog.Logger
	store *sqlite.Store
}

func (o *rootOptions) open(ctx context.Context, stderr io.Writer) (*env, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.dbPath != "" {
		cfg.Storage.SQLitePath = o.dbPath
	}

	defaults, err := cfg.DefaultThresholds()
	if err != nil {
		return nil, err
	}

	log := logger.NewWithWriter(zerolog.ConsoleWriter{Out: stderr, NoColor: true}).
		Level(logger.ParseLevel(o.logLevel))

	store, err := sqlite.New(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, err
	}
	store.WithDefaultThresholds(defaults)

	// No janitor runs between invocations.
	if n, err := store.PurgeExpired(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to purge expired cache entries")
	} else if n > 0 {
		log.Debug().Int64("count", n).Msg("purged expired cache entries")
	}

	return &env{cfg: cfg, log: log, store: store}, nil
}

func (e *env) Close() error {
	return e.store.Close()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
