// Package rules holds the hand-tuned tables used around retrieval:
//
//   - SafetyChecker: literal self-harm and suicidal phrasings that force DBT
//   - FallbackClassifier: weighted keyword scoring used when retrieval is
//     not confident enough
//   - ExpertRules: phrase boosts and direct mappings that adjust a decision
//
// All patterns are compiled once at construction and every type is safe
// for concurrent use.
package rules
