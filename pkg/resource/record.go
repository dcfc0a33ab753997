package resource

import (
	"errors"
	"fmt"
)

// ErrInvalidRecord indicates an upstream record that does not match its schema.
var ErrInvalidRecord = errors.New("invalid record")

// ListEntry is the minimal reference returned by a list endpoint.
type ListEntry struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// NamedResource is a PokeAPI cross reference to another resource.
type NamedResource struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ListPage is the body of a list endpoint.
type ListPage struct {
	Count    int         `json:"count"`
	Next     *string     `json:"next"`
	Previous *string     `json:"previous"`
	Results  []ListEntry `json:"results"`
}

// Validate checks the page carries a results array with named entries.
func (p *ListPage) Validate() error {
	if p.Results == nil {
		return fmt.Errorf("%w: list body has no results", ErrInvalidRecord)
	}
	for i, entry := range p.Results {
		if entry.Name == "" {
			return fmt.Errorf("%w: list entry %d has no name", ErrInvalidRecord, i)
		}
	}
	return nil
}

// Detail is implemented by every per-kind detail schema.
type Detail interface {
	RecordID() int
	RecordName() string
}

// ValidateDetail checks the minimum contract every detail record carries:
// a positive id and the name it was requested under.
func ValidateDetail(d Detail, name string) error {
	if d.RecordID() <= 0 {
		return fmt.Errorf("%w: %q has no id", ErrInvalidRecord, name)
	}
	if d.RecordName() != name {
		return fmt.Errorf("%w: requested %q, got %q", ErrInvalidRecord, name, d.RecordName())
	}
	return nil
}

// EnrichedItem is a list entry joined with its detail record.
type EnrichedItem[D Detail] struct {
	ListEntry
	Details D `json:"details"`
}

// Find returns the first item named name, or nil.
func Find[D Detail](items []EnrichedItem[D], name string) *EnrichedItem[D] {
	for i := range items {
		if items[i].Name == name {
			return &items[i]
		}
	}
	return nil
}
