package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "callisto",
	Short: "Callisto - Ollama to OpenAI translation proxy",
	Long: `Callisto is a protocol translation proxy. It accepts requests in the
Ollama API format and forwards them to an OpenAI-compatible upstream,
translating requests, responses, and streaming formats in both directions.

Tools built for a local Ollama instance can point at Callisto and talk to
any OpenAI-compatible backend, with:
  - Ollama NDJSON streaming backed by upstream SSE streams
  - Model name mapping with hot reload
  - Retry with exponential backoff and a circuit breaker
  - Prometheus metrics and per-request usage accounting`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
}
