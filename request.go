package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/slogemann1/gemini-tagesschau-mirror/internal/config"
	"github.com/slogemann1/gemini-tagesschau-mirror/internal/server"
)

var (
	requestAddr    string
	requestTimeout time.Duration
)

var requestCmd = &cobra.Command{
	Use:   "request [args...]",
	Short: "Send one argument vector to a running gateway",
	Long: `Send the given arguments to the gateway the way the Gemini server does and
exit with the status byte it answers with.

Examples:
  gemini-tagesschau-mirror request "unique_file_path='/tmp/page.gmi'" "action='getHomepage'"
  gemini-tagesschau-mirror request "unique_file_path='/tmp/page.gmi'" "action='getRegional'" "query='3'"`,
	RunE: runRequest,
}

func init() {
	requestCmd.Flags().StringVar(&requestAddr, "addr", "", "Gateway address (default: listen from config)")
	requestCmd.Flags().DurationVar(&requestTimeout, "timeout", time.Minute, "Give up after this long")
	rootCmd.AddCommand(requestCmd)
}

func runRequest(cmd *cobra.Command, args []string) error {
	addr := requestAddr
	if addr == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		addr = cfg.Listen
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	status, err := server.Send(ctx, addr, args)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "status %d\n", status)
	if status != 0 {
		os.Exit(int(status))
	}
	return nil
}
