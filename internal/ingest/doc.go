// Package ingest loads labelled reference documents into the index.
//
// Documents arrive as DocumentInput values, usually decoded from a TOML
// corpus file:
//
//	[[documents]]
//	modality = "cbt"
//	title = "Thought records"
//	text = """
//	Write down the situation and the automatic thought.
//
//	Rate how strongly you believe it, then list the evidence."""
//
// Text is split into chunks on blank lines; pre-split chunks may be given as
// [[documents.chunks]] tables instead. Chunks without an embedding are sent
// to the embedder in batches before the document and its chunks are written.
//
// Ingest processes documents in batches on a bounded worker pool. A failing
// document never leaves a partial write behind and does not stop the run;
// failures are counted in Statistics.ErrorMessages.
package ingest
