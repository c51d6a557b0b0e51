package classifier

import (
	"math"

	"github.com/dshills/modality-router/pkg/types"
)

// tally is the weighted vote over retrieved candidates
type tally struct {
	Winner     types.Modality
	Loser      types.Modality
	WinnerVote float64
	LoserVote  float64
	Raw        float64
	Margin     float64
}

// vote sums candidate scores per modality and normalizes by the total.
// An exact tie goes to CBT. ok is false when there is no signal at all.
func vote(candidates []types.CandidateMatch) (t tally, ok bool) {
	var cbt, dbt float64
	for _, c := range candidates {
		switch c.Modality {
		case types.ModalityCBT:
			cbt += c.Score
		case types.ModalityDBT:
			dbt += c.Score
		}
	}
	total := cbt + dbt
	if total <= 0 {
		return tally{}, false
	}

	t = tally{Winner: types.ModalityCBT, Loser: types.ModalityDBT, WinnerVote: cbt / total, LoserVote: dbt / total}
	if dbt > cbt {
		t = tally{Winner: types.ModalityDBT, Loser: types.ModalityCBT, WinnerVote: dbt / total, LoserVote: cbt / total}
	}
	t.Raw = t.WinnerVote / (t.WinnerVote + t.LoserVote)
	t.Margin = t.WinnerVote - t.LoserVote
	return t, true
}

// calibrate discounts thin margins and lifts clear ones
func calibrate(raw, margin float64) float64 {
	switch {
	case margin < 0.1:
		return math.Max(0.5, raw*0.8)
	case margin < 0.3:
		return math.Min(0.9, raw*1.1)
	default:
		return math.Min(0.95, raw*1.2)
	}
}

// temperatureScale applies sigmoid(logit(c)/t). It is the identity when t
// is not positive or c is at a boundary.
func temperatureScale(c, t float64) float64 {
	if t <= 0 || c <= 0 || c >= 1 {
		return c
	}
	logit := math.Log(c / (1 - c))
	return 1 / (1 + math.Exp(-logit/t))
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
