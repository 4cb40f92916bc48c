package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/slogemann1/gemini-tagesschau-mirror/internal/config"
	"github.com/slogemann1/gemini-tagesschau-mirror/internal/logging"
	"github.com/slogemann1/gemini-tagesschau-mirror/internal/pagecache"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "gemini-tagesschau-mirror",
	Short: "Serve tagesschau.de news as Gemini pages",
	Long: `gemini-tagesschau-mirror sits behind a Gemini server. For every request the
server connects, sends the CGI argument vector as NUL-terminated strings and
reads back one status byte; the page itself is written to the output path
named in the arguments.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to the YAML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// openStore builds the configured cache backend. The returned closer is
// never nil.
func openStore(cfg config.Config) (pagecache.Store, io.Closer, error) {
	switch cfg.Cache.Backend {
	case config.BackendSQLite:
		store, err := pagecache.NewSQLiteStore(cfg.Cache.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		store, err := pagecache.NewFileStore(cfg.Cache.Dir)
		if err != nil {
			return nil, nil, err
		}
		return store, io.NopCloser(nil), nil
	}
}

// openCache loads the config and wires the page cache on top of the store.
func openCache(logger *slog.Logger) (*pagecache.Cache, io.Closer, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	store, closer, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return pagecache.New(store, pagecache.Options{
		TTL:           cfg.Cache.TTL,
		SweepInterval: cfg.Cache.SweepInterval,
		Logger:        logger,
	}), closer, nil
}

func stderrLogger(level slog.Leveler) *slog.Logger {
	return logging.NewLogger(os.Stderr, level)
}
