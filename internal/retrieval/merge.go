package retrieval

import (
	"sort"
	"strings"

	"github.com/dshills/modality-router/internal/storage"
	"github.com/dshills/modality-router/pkg/types"
)

// merge combines dense and keyword hits keyed by chunk id. A chunk found
// by both searches is blended; a keyword-only hit is scaled by the keyword
// weight alone; a dense-only hit keeps its similarity.
func merge(dense []storage.VectorResult, keyword []storage.TextResult, semanticWeight, keywordWeight float64) []types.CandidateMatch {
	byID := make(map[int64]*types.CandidateMatch, len(dense)+len(keyword))
	order := make([]int64, 0, len(dense)+len(keyword))

	for _, d := range dense {
		if _, ok := byID[d.ChunkID]; ok {
			continue
		}
		byID[d.ChunkID] = &types.CandidateMatch{
			ChunkID:    d.ChunkID,
			DocumentID: d.DocumentID,
			Text:       d.Content,
			Modality:   d.Modality,
			Score:      d.Similarity,
			Source:     types.SourceDense,
			DenseScore: d.Similarity,
		}
		order = append(order, d.ChunkID)
	}

	for _, k := range keyword {
		if c, ok := byID[k.ChunkID]; ok {
			if c.Source == types.SourceDense {
				c.KeywordScore = k.Score
				c.Score = clamp01(semanticWeight*c.DenseScore + keywordWeight*k.Score)
				c.Source = types.SourceHybrid
			}
			continue
		}
		byID[k.ChunkID] = &types.CandidateMatch{
			ChunkID:      k.ChunkID,
			DocumentID:   k.DocumentID,
			Text:         k.Content,
			Modality:     k.Modality,
			Score:        clamp01(keywordWeight * k.Score),
			Source:       types.SourceKeyword,
			KeywordScore: k.Score,
		}
		order = append(order, k.ChunkID)
	}

	out := make([]types.CandidateMatch, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	sortCandidates(out)
	return out
}

// rerank rescores candidates as 0.7·blended + 0.2·term density + 0.1·structure
func rerank(candidates []types.CandidateMatch, terms []string) {
	for i := range candidates {
		c := &candidates[i]
		c.Score = clamp01(0.7*c.Score + 0.2*termDensity(c.Text, terms) + 0.1*structuralCompleteness(c.Text))
	}
	sortCandidates(candidates)
}

// termDensity is the fraction of query terms literally present in text
func termDensity(text string, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	found := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			found++
		}
	}
	return float64(found) / float64(len(terms))
}

// structuralCompleteness rewards multi-sentence passages with varied vocabulary
func structuralCompleteness(text string) float64 {
	words := tokenize(text)
	if len(words) == 0 {
		return 0
	}

	sentences := 0
	for _, r := range text {
		if r == '.' || r == '!' || r == '?' {
			sentences++
		}
	}
	if sentences == 0 {
		sentences = 1
	}
	sentenceScore := min(float64(sentences)/3, 1)

	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[w] = struct{}{}
	}
	varietyScore := float64(len(unique)) / float64(len(words))

	lengthScore := min(float64(len(words))/50, 1)

	return (sentenceScore + varietyScore + lengthScore) / 3
}

func sortCandidates(c []types.CandidateMatch) {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].Score == c[j].Score {
			return c[i].ChunkID < c[j].ChunkID
		}
		return c[i].Score > c[j].Score
	})
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
