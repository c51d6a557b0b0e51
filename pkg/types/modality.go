package types

import (
	"fmt"
	"strings"
)

// Modality is a therapeutic approach the router can recommend
type Modality string

const (
	ModalityCBT     Modality = "cbt"
	ModalityDBT     Modality = "dbt"
	ModalityUnknown Modality = "unknown"
)

// ParseModality converts user input to a Modality, accepting any case
func ParseModality(s string) (Modality, error) {
	switch Modality(strings.ToLower(strings.TrimSpace(s))) {
	case ModalityCBT:
		return ModalityCBT, nil
	case ModalityDBT:
		return ModalityDBT, nil
	case ModalityUnknown:
		return ModalityUnknown, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidModality, s)
	}
}

// IsTarget reports whether m is one of the two routable modalities
func (m Modality) IsTarget() bool {
	return m == ModalityCBT || m == ModalityDBT
}

// Opposite returns the other routable modality.
// Unknown maps to CBT, the default tie-break target.
func (m Modality) Opposite() Modality {
	if m == ModalityCBT {
		return ModalityDBT
	}
	return ModalityCBT
}

// Targets lists the routable modalities in tie-break order
func Targets() []Modality {
	return []Modality{ModalityCBT, ModalityDBT}
}
