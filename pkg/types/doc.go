// Package types provides shared type definitions for the modality router.
//
// Modality is the closed set of answers the router gives: cbt, dbt or
// unknown. CandidateMatch carries a retrieved chunk through the hybrid
// search pipeline, tagged with the search that produced it:
//
//	match := types.CandidateMatch{
//	    ChunkID:  42,
//	    Text:     "Distress tolerance skills help you survive a crisis...",
//	    Modality: types.ModalityDBT,
//	    Score:    0.81,
//	    Source:   types.SourceHybrid,
//	}
//
// ClassificationResult is the payload returned to callers. Scores and
// confidences are always in [0, 1].
package types
