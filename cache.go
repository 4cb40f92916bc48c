package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Maintain the page cache",
}

var cacheSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired pages",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, closer, err := openCache(stderrLogger(slog.LevelWarn))
		if err != nil {
			return err
		}
		defer closer.Close()

		removed, err := cache.Sweep()
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired pages\n", removed)
		return err
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached page",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, closer, err := openCache(stderrLogger(slog.LevelWarn))
		if err != nil {
			return err
		}
		defer closer.Close()

		if err := cache.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheSweepCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
