// Package main provides the entry point for the trial matcher CLI and HTTP API server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Flags shared by every subcommand
var (
	configPath  string
	apiKey      string
	databaseURL string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "trial_matcher",
	Short: "Clinical trial eligibility matcher",
	Long: `Trial matcher turns free-text eligibility criteria into typed criteria, evaluates patient
profiles against them and explains every decision.

Configuration can be loaded from a JSON file using --config. Command-line flags override
config file values, and GEMINI_API_KEY / DATABASE_URL are read from the environment.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Gemini API Key (optional, defaults to GEMINI_API_KEY env var)")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print detailed debug information")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
