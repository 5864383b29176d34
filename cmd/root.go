// Package cmd implements the presence CLI.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "presence",
	Short: "Embedding-based attendance tracking",
	Long: `Presence is an attendance system built on face embeddings. It matches
camera probes against a gallery of enrolled identities and keeps a
deduplicated ledger of who showed up to which session, and when.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
