// Package classifier turns retrieved evidence into one calibrated therapy
// recommendation.
//
// Each request moves through fixed steps, recorded in the result's
// DecisionPath:
//
//  1. Safety: crisis language forces DBT at high confidence and stops.
//  2. Retrieval vote: candidate scores are summed per modality and
//     normalized; the raw confidence is calibrated by the vote margin.
//  3. Fallback: below MinConfidence the rule classifier runs on the raw
//     query and replaces the retrieval answer if it is more confident.
//     If both stay below the floor the answer is unknown.
//  4. Expert rules: curated phrase boosts may override or nudge.
//  5. Temperature scaling, then clamping to [ConfidenceMin, ConfidenceMax].
//
// Empty queries return unknown with zero confidence. Index failures return
// unknown with ErrorKind set alongside an error wrapping ErrRetrieval.
package classifier
