package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "modality-router",
	Short: "Route a description of someone's difficulties to CBT or DBT",
	Long: `modality-router recommends Cognitive Behavioral Therapy or Dialectical
Behavior Therapy for a free-text description, backed by a labelled reference
corpus, keyword rules and a crisis-language override.

Configuration is read from --config (YAML or TOML) and MODALITY_* environment
variables, e.g. MODALITY_DATABASE_PATH or MODALITY_EMBEDDING_PROVIDER.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (YAML or TOML)")
}

func main() {
	// stdout is reserved for command output and the MCP protocol
	rootCmd.SetErr(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
