package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/slogemann1/gemini-tagesschau-mirror/internal/config"
	"github.com/slogemann1/gemini-tagesschau-mirror/internal/gateway"
	"github.com/slogemann1/gemini-tagesschau-mirror/internal/gemtext"
	"github.com/slogemann1/gemini-tagesschau-mirror/internal/logging"
	"github.com/slogemann1/gemini-tagesschau-mirror/internal/pagecache"
	"github.com/slogemann1/gemini-tagesschau-mirror/internal/server"
	"github.com/slogemann1/gemini-tagesschau-mirror/internal/tagesschau"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Listen for requests from the Gemini server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	var level slog.LevelVar
	level.Set(logging.LevelFromString(cfg.Log.Level))
	logger := stderrLogger(&level)

	failures, failureFile, err := logging.OpenFailureLog(cfg.Log.FailureFile)
	if err != nil {
		return err
	}
	defer failureFile.Close()

	store, closer, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	cache := pagecache.New(store, pagecache.Options{
		TTL:           cfg.Cache.TTL,
		SweepInterval: cfg.Cache.SweepInterval,
		Logger:        logger.WithGroup("cache"),
	})

	client, err := tagesschau.NewClient(cfg.Upstream.BaseURL,
		tagesschau.WithTimeout(cfg.Upstream.Timeout),
		tagesschau.WithUserAgent(cfg.Upstream.UserAgent))
	if err != nil {
		return fmt.Errorf("upstream client: %w", err)
	}

	renderer := gemtext.New(client,
		gemtext.WithBaseURL(cfg.GeminiBaseURL),
		gemtext.WithLogger(logger))

	dispatcher := gateway.NewDispatcher(renderer, cache,
		gateway.WithLogger(logger),
		gateway.WithFailureLog(failures))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.Watch(ctx, configPath, logger, func(next config.Config) {
		level.Set(logging.LevelFromString(next.Log.Level))
		unchanged := cfg
		unchanged.Log.Level = next.Log.Level
		if next != unchanged {
			logger.Info("only log.level is applied at runtime; restart for other changes")
		}
	}); err != nil {
		logger.Warn("config reload disabled", "error", err)
	}

	srv := &server.Server{
		Addr:            cfg.Listen,
		Handler:         dispatcher,
		Sweeper:         cache,
		MaxConns:        cfg.Server.MaxConnections,
		MaxRequestBytes: cfg.Server.MaxRequestBytes,
		ReadTimeout:     cfg.Server.ReadTimeout,
		FrameComplete:   gateway.HasAllArgs,
		FrameIdle:       cfg.Server.FrameIdle,
		Logger:          logger,
	}

	err = srv.ListenAndServe(ctx)
	cache.Wait()
	if err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
