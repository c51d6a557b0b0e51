package evaluate

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/modality-router/internal/classifier"
	"github.com/dshills/modality-router/pkg/types"
)

// Labels are the classes scored by the harness, in report order
var Labels = []types.Modality{types.ModalityCBT, types.ModalityDBT, types.ModalityUnknown}

// Classifier is the part of classifier.Service the harness needs
type Classifier interface {
	Classify(ctx context.Context, req classifier.Request) (*types.ClassificationResult, error)
}

// CaseResult is the outcome of one case
type CaseResult struct {
	Case       Case
	Predicted  types.Modality
	Confidence float64
	Correct    bool
	Error      string
}

// ClassMetrics holds one-vs-rest scores for a label
type ClassMetrics struct {
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Report aggregates a run
type Report struct {
	Total     int
	Correct   int
	Errors    int
	Accuracy  float64
	PerClass  map[types.Modality]ClassMetrics
	Confusion map[types.Modality]map[types.Modality]int // expected -> predicted -> count
	Results   []CaseResult
	Duration  time.Duration
}

// Options tunes a run
type Options struct {
	Workers int
}

// Run classifies every case and scores the predictions. Classification
// errors count as the returned prediction (unknown for retrieval failures);
// only cancellation aborts the run.
func Run(ctx context.Context, c Classifier, cases []Case, opts Options) (*Report, error) {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	start := time.Now()
	results := make([]CaseResult, len(cases))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i := range cases {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := c.Classify(gctx, classifier.Request{Query: cases[i].Query, UserContext: cases[i].UserContext})
			if gctx.Err() != nil {
				return gctx.Err()
			}
			results[i] = score(cases[i], res, err)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := Summarize(results)
	report.Duration = time.Since(start)
	return report, nil
}

func score(c Case, res *types.ClassificationResult, err error) CaseResult {
	out := CaseResult{Case: c, Predicted: types.ModalityUnknown}
	if res != nil {
		out.Predicted = res.RecommendedApproach
		out.Confidence = res.Confidence
	}
	if err != nil {
		out.Error = err.Error()
	}
	out.Correct = out.Predicted == c.Expected
	return out
}

// Summarize computes accuracy, per-class metrics and the confusion matrix
func Summarize(results []CaseResult) *Report {
	r := &Report{
		Total:     len(results),
		PerClass:  make(map[types.Modality]ClassMetrics, len(Labels)),
		Confusion: make(map[types.Modality]map[types.Modality]int, len(Labels)),
		Results:   results,
	}
	for _, l := range Labels {
		r.Confusion[l] = make(map[types.Modality]int, len(Labels))
	}

	predicted := make(map[types.Modality]int)
	for _, res := range results {
		row, ok := r.Confusion[res.Case.Expected]
		if !ok {
			row = make(map[types.Modality]int)
			r.Confusion[res.Case.Expected] = row
		}
		row[res.Predicted]++
		predicted[res.Predicted]++
		if res.Correct {
			r.Correct++
		}
		if res.Error != "" {
			r.Errors++
		}
	}
	if r.Total > 0 {
		r.Accuracy = float64(r.Correct) / float64(r.Total)
	}

	for _, l := range Labels {
		tp := r.Confusion[l][l]
		support := 0
		for _, n := range r.Confusion[l] {
			support += n
		}
		m := ClassMetrics{Support: support}
		if predicted[l] > 0 {
			m.Precision = float64(tp) / float64(predicted[l])
		}
		if support > 0 {
			m.Recall = float64(tp) / float64(support)
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		r.PerClass[l] = m
	}
	return r
}
