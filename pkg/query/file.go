package query

import (
	"fmt"
	"os"
	"time"

	"sigs.k8s.io/yaml"
)

// Spec is the serialized form of a standing query.
type Spec struct {
	// Name identifies the query in logs and in the emitted solutions.
	Name string `json:"name"`
	// Where is the graph pattern in the syntax accepted by Parse.
	Where string `json:"where"`
	// TTL is the lifetime of partial results, e.g., "30s". Empty means no expiry.
	TTL string `json:"ttl,omitempty"`
	// QueueSize is the capacity of the delivery queue.
	QueueSize int `json:"queueSize,omitempty"`
	// Policy is the full-queue policy, either "block" or "drop".
	Policy string `json:"policy,omitempty"`
}

// File is a set of query specs.
type File struct {
	Queries []Spec `json:"queries"`
}

// ParseTTL returns the TTL of the spec.
func (s *Spec) ParseTTL() (time.Duration, error) {
	if s.TTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.TTL)
	if err != nil {
		return 0, fmt.Errorf("query %q: invalid ttl: %w", s.Name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("query %q: negative ttl %s", s.Name, d)
	}
	return d, nil
}

// Compile parses the graph pattern of the spec.
func (s *Spec) Compile() (*Query, error) {
	if s.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrInvalidQuery)
	}
	if _, err := s.ParseTTL(); err != nil {
		return nil, err
	}
	switch s.Policy {
	case "", "block", "drop":
	default:
		return nil, fmt.Errorf("query %q: unknown policy %q", s.Name, s.Policy)
	}
	return Parse(s.Name, s.Where)
}

// Unmarshal parses a YAML (or JSON) query file.
func Unmarshal(b []byte) (*File, error) {
	var f File
	if err := yaml.UnmarshalStrict(b, &f); err != nil {
		return nil, fmt.Errorf("failed to parse query file: %w", err)
	}
	names := map[string]bool{}
	for _, s := range f.Queries {
		if names[s.Name] {
			return nil, fmt.Errorf("%w: duplicate query name %q", ErrInvalidQuery, s.Name)
		}
		names[s.Name] = true
	}
	return &f, nil
}

// LoadFile reads a query file from disk.
func LoadFile(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Unmarshal(b)
}
