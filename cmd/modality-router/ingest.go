package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/modality-router/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <corpus.toml>...",
	Short: "Load labelled reference documents into the index",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	var docs []ingest.DocumentInput
	for _, path := range args {
		loaded, err := ingest.LoadCorpus(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		docs = append(docs, loaded...)
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	stats, err := a.ingester.Ingest(ctx, docs)
	if stats != nil {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Documents ingested: %d\n", stats.DocumentsIngested)
		fmt.Fprintf(out, "Documents failed:   %d\n", stats.DocumentsFailed)
		fmt.Fprintf(out, "Chunks created:     %d (%d embedded)\n", stats.ChunksCreated, stats.ChunksEmbedded)
		fmt.Fprintf(out, "Duration:           %s\n", stats.Duration)
		for _, msg := range stats.ErrorMessages {
			fmt.Fprintf(out, "  error: %s\n", msg)
		}
	}
	return err
}
