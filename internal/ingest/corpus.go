package ingest

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/modality-router/pkg/types"
)

// DocumentInput is one labelled reference document to ingest. Either Chunks
// or Text must be set; Text is split with SplitText.
type DocumentInput struct {
	Modality types.Modality    `toml:"modality" json:"modality"`
	Title    string            `toml:"title" json:"title"`
	Source   string            `toml:"source" json:"source,omitempty"`
	Text     string            `toml:"text" json:"text,omitempty"`
	Metadata map[string]string `toml:"metadata" json:"metadata,omitempty"`
	Chunks   []ChunkInput      `toml:"chunks" json:"chunks,omitempty"`
}

// ChunkInput is a pre-split span of a document. A nil Embedding is
// generated at ingest time.
type ChunkInput struct {
	Content   string            `toml:"content" json:"content"`
	Metadata  map[string]string `toml:"metadata" json:"metadata,omitempty"`
	Embedding []float32         `toml:"-" json:"-"`
}

type corpusFile struct {
	Documents []DocumentInput `toml:"documents"`
}

// ParseCorpus decodes a TOML corpus with one [[documents]] table per document
func ParseCorpus(data []byte) ([]DocumentInput, error) {
	var f corpusFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCorpus, err)
	}
	for i := range f.Documents {
		m, err := types.ParseModality(string(f.Documents[i].Modality))
		if err != nil {
			return nil, fmt.Errorf("%w: document %d: %w", ErrInvalidCorpus, i, err)
		}
		f.Documents[i].Modality = m
	}
	return f.Documents, nil
}

// LoadCorpus reads and parses a TOML corpus file
func LoadCorpus(path string) ([]DocumentInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	return ParseCorpus(data)
}
