package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dshills/modality-router/pkg/types"
)

// searchVector performs vector similarity search using cosine similarity
func searchVector(ctx context.Context, q querier, queryVector []float32, modality string, limit int) ([]VectorResult, error) {
	if limit <= 0 || isZeroVector(queryVector) {
		return []VectorResult{}, nil
	}
	// Use optimized SQL-based search when sqlite-vec is available
	if VectorExtensionAvailable {
		return searchVectorOptimized(ctx, q, queryVector, modality, limit)
	}
	// Fall back to Go-based computation for purego builds
	return searchVectorFallback(ctx, q, queryVector, modality, limit)
}

// searchVectorOptimized uses sqlite-vec extension for SQL-based vector similarity search
func searchVectorOptimized(ctx context.Context, q querier, queryVector []float32, modality string, limit int) ([]VectorResult, error) {
	// vec_distance_cosine returns a distance; 1 - distance is the similarity
	query := `
		SELECT id, document_id, content, modality,
		       1.0 - vec_distance_cosine(embedding, ?) AS similarity
		FROM chunks
		WHERE dimension = ?
		  AND (? = '' OR modality = ?)
		ORDER BY similarity DESC
		LIMIT ?
	`
	rows, err := q.QueryContext(ctx, query,
		serializeVector(queryVector), len(queryVector), modality, modality, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]VectorResult, 0, limit)
	for rows.Next() {
		var r VectorResult
		var m string
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Content, &m, &r.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.Modality = types.Modality(m)
		r.Similarity = clampSimilarity(r.Similarity)
		results = append(results, r)
	}
	return results, rows.Err()
}

// searchVectorFallback scores every chunk of matching dimension in Go
func searchVectorFallback(ctx context.Context, q querier, queryVector []float32, modality string, limit int) ([]VectorResult, error) {
	query := `
		SELECT id, document_id, content, modality, embedding
		FROM chunks
		WHERE dimension = ?
		  AND (? = '' OR modality = ?)
	`
	rows, err := q.QueryContext(ctx, query, len(queryVector), modality, modality)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]VectorResult, 0, limit)
	for rows.Next() {
		var r VectorResult
		var m string
		var blob []byte
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Content, &m, &blob); err != nil {
			return nil, err
		}
		vector := deserializeVector(blob)
		if len(vector) != len(queryVector) {
			continue
		}
		r.Modality = types.Modality(m)
		r.Similarity = clampSimilarity(cosineSimilarity(queryVector, vector))
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity == results[j].Similarity {
			return results[i].ChunkID < results[j].ChunkID
		}
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// searchText performs BM25 full-text search using FTS5
func searchText(ctx context.Context, q querier, terms []string, modality string, limit int) ([]TextResult, error) {
	match := buildFTSMatch(terms)
	if match == "" || limit <= 0 {
		return []TextResult{}, nil
	}

	// bm25 is negative; more negative is a better match
	query := `
		SELECT c.id, c.document_id, c.content, c.modality, bm25(chunks_fts) AS score
		FROM chunks_fts
		INNER JOIN chunks c ON c.id = chunks_fts.rowid
		WHERE chunks_fts MATCH ?
		  AND (? = '' OR c.modality = ?)
		ORDER BY score
		LIMIT ?
	`
	rows, err := q.QueryContext(ctx, query, match, modality, modality, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]TextResult, 0, limit)
	for rows.Next() {
		var r TextResult
		var m string
		var bm25 float64
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Content, &m, &bm25); err != nil {
			return nil, err
		}
		r.Modality = types.Modality(m)
		r.Score = math.Abs(bm25)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	normalizeTextScores(results)
	return results, nil
}

// buildFTSMatch turns search terms into an FTS5 OR query. Every term is
// quoted so FTS5 operators in user text are treated as literals, and
// multi-word terms become phrase queries.
func buildFTSMatch(terms []string) string {
	quoted := make([]string, 0, len(terms))
	seen := make(map[string]bool, len(terms))
	for _, term := range terms {
		term = strings.Join(strings.Fields(term), " ")
		if term == "" || seen[term] {
			continue
		}
		seen[term] = true
		quoted = append(quoted, `"`+strings.ReplaceAll(term, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " OR ")
}

// normalizeTextScores scales positive rank scores so the best is 1
func normalizeTextScores(results []TextResult) {
	var maxScore float64
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	for i := range results {
		if maxScore > 0 {
			results[i].Score /= maxScore
		} else {
			results[i].Score = 0
		}
	}
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// clampSimilarity maps cosine similarity into [0, 1]; opposed vectors count as unrelated
func clampSimilarity(s float64) float64 {
	if s < 0 || math.IsNaN(s) {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func isZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// CosineSimilarity is an exported helper for testing
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
