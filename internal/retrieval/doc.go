// Package retrieval finds reference chunks that support a query.
//
// Dense and keyword search run concurrently against the index. Dense hits
// are over-fetched and then filtered by a cutoff computed per query:
//
//	cutoff = max(similarity_floor, quantile(pool, percentile))
//
// optionally raised by a per-modality floor. A single global threshold
// favours whichever modality has denser embeddings; the per-query cutoff
// normalises for that. If the cutoff removes every hit, the MinKeep best
// are kept.
//
// Keyword search uses stop-word filtered tokens and adjacent-word bigrams.
// Results are merged by chunk id:
//
//	both searches:  semantic_weight·dense + keyword_weight·keyword  (hybrid)
//	keyword only:   keyword_weight·keyword                          (keyword)
//	dense only:     dense                                           (dense)
//
// and optionally reranked as 0.7·blended + 0.2·term density + 0.1·structure.
package retrieval
