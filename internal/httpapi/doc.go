// Package httpapi exposes the classifier over HTTP with gin.
//
// Routes:
//
//	GET    /healthz             index reachability
//	POST   /v1/classify         {"query": "...", "user_context": {...}}
//	GET    /v1/status           corpus statistics
//	GET    /v1/documents        optional ?modality=cbt|dbt
//	DELETE /v1/documents/:id    removes a document and its chunks
//
// Every reply uses the Response envelope; the classification result is in
// data. A degraded classification still returns 200 with error_kind set.
package httpapi
