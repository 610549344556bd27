package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "limiterd",
		Short: "Multi-tenant fixed-window rate limiter",
		Long: `limiterd serves a single global rate-limit policy and per-client request
buckets over HTTP, backed by memory, Redis, SQLite or MySQL.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newServeCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
