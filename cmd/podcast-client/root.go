package main

import (
	"time"

	"github.com/spf13/cobra"
)

// Flag names.
const (
	flagServer  = "server"
	flagJSON    = "json"
	flagTimeout = "timeout"
)

const (
	defaultServerURL = "http://127.0.0.1:8080"
	defaultTimeout   = 30 * time.Second
)

// commandContext carries the persistent flag values shared by subcommands.
type commandContext struct {
	serverURL string
	jsonOut   bool
	timeout   time.Duration
}

func (c *commandContext) api() *apiClient {
	return newAPIClient(c.serverURL, c.timeout)
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{serverURL: defaultServerURL, jsonOut: false, timeout: defaultTimeout}

	rootCmd := &cobra.Command{
		Use:           "podcast-client",
		Short:         "Submit and track podcast generation jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.serverURL, flagServer, defaultServerURL, "Base URL of the podcast service")
	rootCmd.PersistentFlags().BoolVar(&ctx.jsonOut, flagJSON, false, "Write JSON instead of a table")
	rootCmd.PersistentFlags().DurationVar(&ctx.timeout, flagTimeout, defaultTimeout, "Request timeout")

	rootCmd.AddCommand(newSubmitCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newStageCommand(ctx))

	return rootCmd
}
