package evaluate

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))
	titleStyle  = lipgloss.NewStyle().Bold(true)
	missStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

// Render writes the report as terminal tables. Misclassified cases are
// listed when verbose is set.
func Render(w io.Writer, r *Report, verbose bool) error {
	summary := fmt.Sprintf("Accuracy %.1f%% (%d/%d), %d errors, %s",
		r.Accuracy*100, r.Correct, r.Total, r.Errors, r.Duration.Round(time.Millisecond))
	if _, err := fmt.Fprintln(w, titleStyle.Render(summary)); err != nil {
		return err
	}

	metrics := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("Class", "Precision", "Recall", "F1", "Support")
	for _, l := range Labels {
		m := r.PerClass[l]
		metrics.Row(string(l), fmtRatio(m.Precision), fmtRatio(m.Recall), fmtRatio(m.F1), strconv.Itoa(m.Support))
	}
	if _, err := fmt.Fprintln(w, metrics); err != nil {
		return err
	}

	headers := []string{"expected \\ predicted"}
	for _, l := range Labels {
		headers = append(headers, string(l))
	}
	confusion := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...)
	for _, expected := range Labels {
		row := []string{string(expected)}
		for _, predicted := range Labels {
			row = append(row, strconv.Itoa(r.Confusion[expected][predicted]))
		}
		confusion.Row(row...)
	}
	if _, err := fmt.Fprintln(w, confusion); err != nil {
		return err
	}

	if !verbose {
		return nil
	}
	for _, res := range r.Results {
		if res.Correct {
			continue
		}
		line := fmt.Sprintf("expected %s, got %s (%.2f): %s", res.Case.Expected, res.Predicted, res.Confidence, res.Case.Query)
		if res.Error != "" {
			line += " [" + res.Error + "]"
		}
		if _, err := fmt.Fprintln(w, missStyle.Render(line)); err != nil {
			return err
		}
	}
	return nil
}

func fmtRatio(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
