package mcp

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/modality-router/internal/classifier"
	"github.com/dshills/modality-router/internal/embedder"
	"github.com/dshills/modality-router/internal/ingest"
	"github.com/dshills/modality-router/internal/storage"
	"github.com/dshills/modality-router/pkg/types"
)

const (
	// ServerName is the MCP server name
	ServerName = "modality-router"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Classifier is the part of classifier.Service the server needs
type Classifier interface {
	Classify(ctx context.Context, req classifier.Request) (*types.ClassificationResult, error)
}

// Deps are the components exposed as tools. Storage and the embedder stay
// owned by the caller.
type Deps struct {
	Classifier Classifier
	Ingester   *ingest.Ingester
	Storage    storage.Storage
	Embedder   embedder.Embedder
	Logger     *slog.Logger
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp        *server.MCPServer
	classifier Classifier
	ingester   *ingest.Ingester
	storage    storage.Storage
	embedder   embedder.Embedder
	logger     *slog.Logger
}

// NewServer creates a new MCP server instance
func NewServer(deps Deps) (*Server, error) {
	if deps.Classifier == nil || deps.Storage == nil {
		return nil, errors.New("classifier and storage are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{
		mcp:        server.NewMCPServer(ServerName, ServerVersion),
		classifier: deps.Classifier,
		ingester:   deps.Ingester,
		storage:    deps.Storage,
		embedder:   deps.Embedder,
		logger:     deps.Logger,
	}
	s.registerTools()
	return s, nil
}

// Serve runs the MCP server on stdio until the client disconnects or ctx
// is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(classifyTool(), s.handleClassify)
	if s.ingester != nil {
		s.mcp.AddTool(ingestCorpusTool(), s.handleIngestCorpus)
	}
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
