package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dshills/modality-router/internal/classifier"
	"github.com/dshills/modality-router/internal/storage"
	"github.com/dshills/modality-router/pkg/types"
)

// Response is the envelope for every API reply
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type classifyRequest struct {
	Query       string             `json:"query"`
	UserContext *types.UserContext `json:"user_context"`
}

func (s *Server) success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Code: http.StatusOK, Message: "Success", Data: data})
}

func (s *Server) error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{Code: code, Message: message})
}

func (s *Server) handleHealth(c *gin.Context) {
	if _, err := s.storage.GetStatus(c.Request.Context()); err != nil {
		s.error(c, http.StatusServiceUnavailable, "index unavailable: "+err.Error())
		return
	}
	s.success(c, gin.H{"status": "ok"})
}

func (s *Server) handleClassify(c *gin.Context) {
	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.error(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if uc := req.UserContext; uc != nil && uc.PreviousApproach != "" {
		m, err := types.ParseModality(uc.PreviousApproach)
		if err != nil || !m.IsTarget() {
			s.error(c, http.StatusBadRequest, "previous_approach must be cbt or dbt")
			return
		}
		uc.PreviousApproach = string(m)
	}

	result, err := s.classifier.Classify(c.Request.Context(), classifier.Request{
		Query:       req.Query,
		UserContext: req.UserContext,
	})
	if err != nil {
		if result == nil {
			s.error(c, http.StatusInternalServerError, err.Error())
			return
		}
		s.logger.Warn("classification degraded", "request_id", result.RequestID, "error", err)
	}
	s.success(c, result)
}

func (s *Server) handleStatus(c *gin.Context) {
	status, err := s.storage.GetStatus(c.Request.Context())
	if err != nil {
		s.error(c, http.StatusInternalServerError, err.Error())
		return
	}
	s.success(c, gin.H{
		"backend":            status.Backend,
		"schema_version":     status.SchemaVersion,
		"documents_count":    status.DocumentsCount,
		"chunks_count":       status.ChunksCount,
		"chunks_by_modality": status.ChunksByModality,
		"dimension":          status.Dimension,
		"index_size_mb":      status.IndexSizeMB,
	})
}

func (s *Server) handleListDocuments(c *gin.Context) {
	var modality types.Modality
	if raw := c.Query("modality"); raw != "" {
		m, err := types.ParseModality(raw)
		if err != nil {
			s.error(c, http.StatusBadRequest, err.Error())
			return
		}
		modality = m
	}

	docs, err := s.storage.ListDocuments(c.Request.Context(), modality)
	if err != nil {
		s.error(c, http.StatusInternalServerError, err.Error())
		return
	}

	items := make([]gin.H, 0, len(docs))
	for _, d := range docs {
		items = append(items, gin.H{
			"id":         d.ID,
			"modality":   d.Modality,
			"title":      d.Title,
			"source":     d.Source,
			"metadata":   d.Metadata,
			"created_at": d.CreatedAt,
		})
	}
	s.success(c, items)
}

func (s *Server) handleDeleteDocument(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		s.error(c, http.StatusBadRequest, "invalid document id")
		return
	}

	err = s.storage.DeleteDocument(c.Request.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.error(c, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		s.error(c, http.StatusInternalServerError, err.Error())
		return
	}
	s.success(c, gin.H{"deleted": id})
}
