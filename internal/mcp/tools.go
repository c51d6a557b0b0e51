package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/modality-router/internal/classifier"
	"github.com/dshills/modality-router/internal/ingest"
	"github.com/dshills/modality-router/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams    = -32602 // Invalid method parameters
	ErrorCodeInternalError    = -32603 // Internal JSON-RPC error
	ErrorCodeCorpusNotFound   = -32001 // Corpus file missing or unreadable
	ErrorCodeIngestInProgress = -32002 // Another ingestion is already running
	ErrorCodeInvalidCorpus    = -32003 // Corpus file could not be parsed
)

// handleClassify handles the classify_therapy_approach tool invocation
func (s *Server) handleClassify(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "query parameter is required", map[string]interface{}{
			"param":  "query",
			"reason": "missing or not a string",
		})
	}

	uc, err := parseUserContext(args["user_context"])
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid user_context", map[string]interface{}{
			"param":  "user_context",
			"reason": err.Error(),
		})
	}

	result, err := s.classifier.Classify(ctx, classifier.Request{Query: query, UserContext: uc})
	if err != nil {
		if result == nil {
			return nil, newMCPError(ErrorCodeInternalError, "classification failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		// the unknown result is still a valid answer for the caller
		s.logger.Warn("classification degraded", "request_id", result.RequestID, "error", err)
	}

	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleIngestCorpus handles the ingest_corpus tool invocation
func (s *Server) handleIngestCorpus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	if err := validateCorpusPath(path); err != nil {
		code := ErrorCodeInvalidParams
		if errors.Is(err, ErrPathNotFound) || errors.Is(err, ErrPathNotReadable) {
			code = ErrorCodeCorpusNotFound
		}
		return nil, newMCPError(code, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	docs, err := ingest.LoadCorpus(path)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidCorpus, "failed to load corpus", map[string]interface{}{
			"error": err.Error(),
		})
	}

	stats, err := s.ingester.Ingest(ctx, docs)
	if errors.Is(err, ingest.ErrInProgress) {
		return nil, newMCPError(ErrorCodeIngestInProgress, "ingestion already in progress", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "ingestion failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"ingested":           true,
		"documents_ingested": stats.DocumentsIngested,
		"documents_failed":   stats.DocumentsFailed,
		"chunks_created":     stats.ChunksCreated,
		"chunks_embedded":    stats.ChunksEmbedded,
		"duration_ms":        stats.Duration.Milliseconds(),
	}

	if len(stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.storage.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	byModality := make(map[string]int, len(status.ChunksByModality))
	for m, n := range status.ChunksByModality {
		byModality[string(m)] = n
	}

	response := map[string]interface{}{
		"backend":        status.Backend,
		"schema_version": status.SchemaVersion,
		"statistics": map[string]interface{}{
			"documents_count":    status.DocumentsCount,
			"chunks_count":       status.ChunksCount,
			"chunks_by_modality": byModality,
			"dimension":          status.Dimension,
			"index_size_mb":      fmt.Sprintf("%.2f", status.IndexSizeMB),
		},
		"health": map[string]interface{}{
			"database_accessible":  status.Health.DatabaseAccessible,
			"embeddings_available": status.Health.EmbeddingsAvailable,
			"fts_indexes_built":    status.Health.FTSIndexesBuilt,
		},
	}
	if s.embedder != nil {
		response["embedder"] = map[string]interface{}{
			"provider":  s.embedder.Provider(),
			"model":     s.embedder.Model(),
			"dimension": s.embedder.Dimension(),
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// parseUserContext converts the optional user_context argument
func parseUserContext(raw interface{}) (*types.UserContext, error) {
	if raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, errors.New("must be an object")
	}

	uc := &types.UserContext{}
	var err error
	if uc.Concerns, err = stringSlice(m, "concerns"); err != nil {
		return nil, err
	}
	if uc.Goals, err = stringSlice(m, "goals"); err != nil {
		return nil, err
	}
	if uc.Symptoms, err = stringSlice(m, "symptoms"); err != nil {
		return nil, err
	}
	if prev, ok := m["previous_approach"].(string); ok && prev != "" {
		mod, err := types.ParseModality(prev)
		if err != nil || !mod.IsTarget() {
			return nil, fmt.Errorf("previous_approach must be cbt or dbt, got %q", prev)
		}
		uc.PreviousApproach = string(mod)
	}
	return uc, nil
}

func stringSlice(m map[string]interface{}, key string) ([]string, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%s must be an array of strings", key)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s must be an array of strings", key)
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// validateCorpusPath checks that path names a readable TOML file
func validateCorpusPath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	if info.IsDir() {
		return ErrIsDirectory
	}

	if !strings.EqualFold(filepath.Ext(path), ".toml") {
		return ErrNotTOML
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrIsDirectory     = errors.New("path is a directory")
	ErrNotTOML         = errors.New("corpus must be a .toml file")
)
