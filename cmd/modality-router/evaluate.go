package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/modality-router/internal/evaluate"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <cases.toml>",
	Short: "Score the router against labelled queries",
	Long: `Classify every [[cases]] entry and report accuracy, per-class
precision/recall/F1 and a confusion matrix.

  [[cases]]
  query = "I keep thinking I'm a failure"
  expected_approach = "cbt"`,
	Args: cobra.ExactArgs(1),
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().BoolP("verbose", "v", false, "list misclassified cases")
	evaluateCmd.Flags().Int("workers", 0, "concurrent classifications (default: number of CPUs)")
	evaluateCmd.Flags().Float64("min-accuracy", 0, "exit with an error when accuracy is below this value")
	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cases, err := evaluate.LoadCases(args[0])
	if err != nil {
		return err
	}
	verbose, _ := cmd.Flags().GetBool("verbose")
	workers, _ := cmd.Flags().GetInt("workers")
	minAccuracy, _ := cmd.Flags().GetFloat64("min-accuracy")

	ctx := cmd.Context()
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	report, err := evaluate.Run(ctx, a.service, cases, evaluate.Options{Workers: workers})
	if err != nil {
		return err
	}
	if err := evaluate.Render(cmd.OutOrStdout(), report, verbose); err != nil {
		return err
	}

	if report.Accuracy < minAccuracy {
		return fmt.Errorf("accuracy %.3f below required %.3f", report.Accuracy, minAccuracy)
	}
	return nil
}
