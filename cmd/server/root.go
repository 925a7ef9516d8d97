package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagConfig    string
	flagLogLevel  string
	flagLogFormat string
)

var rootCmd = &cobra.Command{
	Use:   "devmeet",
	Short: "Room-scoped WebRTC signaling relay",
	Long: `devmeet relays WebRTC offers, answers and ICE candidates between browsers
that share a room. Media never passes through it.

Running devmeet without a subcommand is the same as "devmeet serve".`,
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to a TOML config file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "trace, debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "console or json")

	addServeFlags(rootCmd)
	rootCmd.AddCommand(serveCmd, probeCmd)
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
