package query

import (
	"fmt"
	"strings"

	"github.com/j4cko/hdf5-metadataindex/internal/index"
	"github.com/j4cko/hdf5-metadataindex/internal/value"
)

// AttributeRequest asks for an attribute called Name satisfying Condition.
type AttributeRequest struct {
	Name      string
	Condition AttributeCondition
}

// Matches reports whether attr satisfies the request.
func (r AttributeRequest) Matches(attr index.Attribute) (bool, error) {
	return r.Condition.Matches(attr, r.Name)
}

// SearchMode selects how the payloads of matching datasets are combined.
type SearchMode uint8

const (
	First SearchMode = iota
	Average
	Concatenate
	All
)

func (m SearchMode) String() string {
	switch m {
	case First:
		return "FIRST"
	case Average:
		return "AVERAGE"
	case Concatenate:
		return "CONCATENATE"
	case All:
		return "ALL"
	default:
		return fmt.Sprintf("SearchMode(%d)", uint8(m))
	}
}

// ParseSearchMode parses a search mode name, ignoring case.
func ParseSearchMode(s string) (SearchMode, error) {
	switch strings.ToUpper(s) {
	case "FIRST":
		return First, nil
	case "AVERAGE":
		return Average, nil
	case "CONCATENATE":
		return Concatenate, nil
	case "ALL":
		return All, nil
	default:
		return First, fmt.Errorf("%w: unknown search mode %q", value.ErrParse, s)
	}
}

// Request is a conjunction of attribute, file and dataset conditions.
type Request struct {
	AttrRequests []AttributeRequest
	FileRequests []FileCondition
	DsetRequests []DatasetCondition
	SearchMode   SearchMode
}

// Matches reports whether d satisfies every condition of r: each attribute
// request must be met by at least one of its attributes.
func (r Request) Matches(d index.DatasetSpec) (bool, error) {
	for _, c := range r.DsetRequests {
		if !c.Matches(d.Datasetname, d.Location) {
			return false, nil
		}
	}
	for _, ar := range r.AttrRequests {
		ok, err := anyAttribute(ar, d.Attributes)
		if err != nil {
			return false, fmt.Errorf("attribute %q of %s: %w", ar.Name, d.Datasetname, err)
		}
		if !ok {
			return false, nil
		}
	}
	for _, c := range r.FileRequests {
		if !c.Matches(d.File) {
			return false, nil
		}
	}
	return true, nil
}

func anyAttribute(ar AttributeRequest, attrs []index.Attribute) (bool, error) {
	for _, a := range attrs {
		ok, err := ar.Matches(a)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Filter returns the entries of idx that match r, in their original order.
func Filter(idx index.Index, r Request) (index.Index, error) {
	out := make(index.Index, 0, len(idx))
	for _, d := range idx {
		ok, err := r.Matches(d)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, d)
		}
	}
	return out, nil
}
