package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/dshills/modality-router/pkg/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index statistics",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	status, err := a.store.GetStatus(ctx)
	if err != nil {
		return err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		Headers("Field", "Value").
		Row("Backend", status.Backend).
		Row("Schema version", status.SchemaVersion).
		Row("Documents", strconv.Itoa(status.DocumentsCount)).
		Row("Chunks", strconv.Itoa(status.ChunksCount)).
		Row("CBT chunks", strconv.Itoa(status.ChunksByModality[types.ModalityCBT])).
		Row("DBT chunks", strconv.Itoa(status.ChunksByModality[types.ModalityDBT])).
		Row("Dimension", strconv.Itoa(status.Dimension)).
		Row("Index size", fmt.Sprintf("%.2f MB", status.IndexSizeMB)).
		Row("Embedder", a.embedder.Provider()+"/"+a.embedder.Model())

	fmt.Fprintln(cmd.OutOrStdout(), t)
	return nil
}
