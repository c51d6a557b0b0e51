// Package mcp implements the Model Context Protocol (MCP) server for the
// modality router.
//
// The server exposes three tools to MCP clients:
//   - classify_therapy_approach: recommend CBT or DBT for a description
//   - ingest_corpus: load labelled reference documents from a TOML file
//   - get_status: report index statistics and health
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Stdout carries protocol messages only; logs go to stderr.
//
// # Tool: classify_therapy_approach
//
//	Request:
//	{
//	  "name": "classify_therapy_approach",
//	  "arguments": {
//	    "query": "I can't stop thinking everyone hates me",
//	    "user_context": {"concerns": ["work"], "previous_approach": "dbt"}
//	  }
//	}
//
//	Response:
//	{
//	  "request_id": "6f1c...",
//	  "recommended_approach": "cbt",
//	  "confidence": 0.87,
//	  "therapy_info": {"name": "Cognitive Behavioral Therapy", ...},
//	  "supporting_evidence": ["..."],
//	  "recommended_techniques": [{"name": "Thought Record", ...}],
//	  "alternative_approach": "dbt",
//	  "decision_path": ["retrieval_vote", "expert_rules"]
//	}
//
// An empty query is not an error; it is answered with "unknown" and
// confidence 0. When the index cannot be read the tool still answers
// "unknown" and sets error_kind to "retrieval".
//
// # Tool: ingest_corpus
//
//	Request:  {"name": "ingest_corpus", "arguments": {"path": "/data/corpus.toml"}}
//	Response: {"ingested": true, "documents_ingested": 12, "chunks_created": 48, ...}
//
// Only one ingestion runs at a time; a concurrent call fails with
// ErrorCodeIngestInProgress.
//
// # Errors
//
// Failures are returned as *MCPError with JSON-RPC style codes:
//
//	-32602  invalid parameters
//	-32603  internal error
//	-32001  corpus file not found
//	-32002  ingestion in progress
//	-32003  corpus could not be parsed
package mcp
