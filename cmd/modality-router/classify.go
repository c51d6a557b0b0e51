package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/modality-router/internal/classifier"
	"github.com/dshills/modality-router/pkg/types"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <description...>",
	Short: "Recommend CBT or DBT for a description",
	Example: `  modality-router classify "I keep thinking everyone hates me"
  modality-router classify --concern work --goal "sleep better" "I can't switch off at night"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().StringSlice("concern", nil, "concern to add to the retrieval query (repeatable)")
	classifyCmd.Flags().StringSlice("goal", nil, "goal to add to the retrieval query (repeatable)")
	classifyCmd.Flags().StringSlice("symptom", nil, "symptom to add to the retrieval query (repeatable)")
	classifyCmd.Flags().String("previous", "", "approach tried before (cbt or dbt)")
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	uc, err := userContextFromFlags(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	result, err := a.service.Classify(ctx, classifier.Request{
		Query:       strings.Join(args, " "),
		UserContext: uc,
	})
	if err != nil && !errors.Is(err, classifier.ErrRetrieval) {
		return err
	}
	if err != nil {
		a.logger.Warn("classification degraded", "error", err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func userContextFromFlags(cmd *cobra.Command) (*types.UserContext, error) {
	concerns, _ := cmd.Flags().GetStringSlice("concern")
	goals, _ := cmd.Flags().GetStringSlice("goal")
	symptoms, _ := cmd.Flags().GetStringSlice("symptom")
	previous, _ := cmd.Flags().GetString("previous")

	if len(concerns)+len(goals)+len(symptoms) == 0 && previous == "" {
		return nil, nil
	}
	uc := &types.UserContext{Concerns: concerns, Goals: goals, Symptoms: symptoms}
	if previous != "" {
		m, err := types.ParseModality(previous)
		if err != nil || !m.IsTarget() {
			return nil, fmt.Errorf("--previous must be cbt or dbt, got %q", previous)
		}
		uc.PreviousApproach = string(m)
	}
	return uc, nil
}
