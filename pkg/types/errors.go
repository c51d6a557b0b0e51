package types

import "errors"

// Domain errors for type validation
var (
	ErrInvalidChunkID        = errors.New("invalid chunk ID")
	ErrInvalidModality       = errors.New("invalid modality")
	ErrInvalidRelevanceScore = errors.New("relevance score must be between 0 and 1")
	ErrEmptyContent          = errors.New("content cannot be empty")
	ErrInvalidSource         = errors.New("invalid match source")
)

// ErrorKind classifies a failure attached to a ClassificationResult
type ErrorKind string

const (
	ErrorKindNone      ErrorKind = ""
	ErrorKindRetrieval ErrorKind = "retrieval"
	ErrorKindInput     ErrorKind = "input"
)
