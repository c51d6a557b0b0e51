// Package storage persists the labelled reference corpus and answers the
// two queries retrieval needs: nearest neighbours by cosine similarity and
// keyword matches ranked by the backend's full-text engine.
//
// # Backends
//
// SQLite is the default. Chunks keep their embedding as a little-endian
// float32 blob and an FTS5 external-content table mirrors chunk text.
// Two builds are supported:
//
//   - purego (default): modernc.org/sqlite, cosine computed in Go
//   - sqlite_vec: github.com/mattn/go-sqlite3 with vec_distance_cosine
//
// PostgreSQL uses pgvector for an HNSW cosine index and a generated
// tsvector column for keyword search.
//
// # Data model
//
//   - documents: one row per reference text, labelled cbt or dbt
//   - chunks: immutable spans of a document with their embedding; the
//     modality is copied from the document so every search can filter
//     without a join
//
// Deleting a document removes its chunks. Updating a chunk is rejected.
//
// # Usage
//
//	store, err := storage.Open(ctx, storage.Options{Driver: "sqlite", Path: "corpus.db"}, logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	doc := &storage.Document{Modality: types.ModalityDBT, Title: "Distress tolerance"}
//	if err := store.AddDocument(ctx, doc); err != nil {
//	    return err
//	}
//	err = store.AddChunks(ctx, []*storage.Chunk{
//	    {DocumentID: doc.ID, SeqIndex: 0, Content: text, Embedding: vec},
//	})
//
//	hits, err := store.NearestNeighbors(ctx, queryVec, types.ModalityUnknown, 10)
//
// Similarities below zero are reported as zero. Keyword scores are scaled
// so the best match in a result set is 1.
package storage
