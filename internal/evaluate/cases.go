package evaluate

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/modality-router/pkg/types"
)

var ErrInvalidCases = errors.New("invalid evaluation cases")

// Case is one labelled query
type Case struct {
	Query       string             `toml:"query" json:"query"`
	Expected    types.Modality     `toml:"expected_approach" json:"expected_approach"`
	UserContext *types.UserContext `toml:"user_context" json:"user_context,omitempty"`
}

type caseFile struct {
	Cases []Case `toml:"cases"`
}

// ParseCases decodes [[cases]] tables from TOML
func ParseCases(data []byte) ([]Case, error) {
	var f caseFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCases, err)
	}
	for i := range f.Cases {
		if strings.TrimSpace(f.Cases[i].Query) == "" {
			return nil, fmt.Errorf("%w: case %d has no query", ErrInvalidCases, i)
		}
		m, err := types.ParseModality(string(f.Cases[i].Expected))
		if err != nil {
			return nil, fmt.Errorf("%w: case %d: %w", ErrInvalidCases, i, err)
		}
		f.Cases[i].Expected = m
	}
	return f.Cases, nil
}

// LoadCases reads a TOML case file
func LoadCases(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cases: %w", err)
	}
	return ParseCases(data)
}
