// Package toolreg manages installed tools: the registry document, the
// staged installer, and the verifying loader that turns a tool invocation
// into an execution ticket.
//
// A tool is a directory holding manifest.json and tool.py. Installation
// records a hash per file; the loader re-verifies the full file set and
// every hash before proposing execution, so a tampered tool can never run.
package toolreg

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/Mindburn-Labs/warden/pkg/store"
)

// Entry is one registered tool version.
type Entry struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Path        string            `json:"path"`
	Hashes      map[string]string `json:"hashes"`
	Enabled     bool              `json:"enabled"`
	Aliases     []string          `json:"aliases,omitempty"`
	Examples    []string          `json:"examples,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	InputSchema json.RawMessage   `json:"input_schema,omitempty"`
}

// registryDoc is the on-disk document shape.
type registryDoc struct {
	Tools []Entry `json:"tools"`
}

// Registry is the durable tool catalog, rewritten atomically on every
// mutation.
type Registry struct {
	mu   sync.Mutex
	path string
}

// NewRegistry creates a registry backed by the JSON document at path.
func NewRegistry(path string) *Registry {
	return &Registry{path: path}
}

func (r *Registry) load() (registryDoc, error) {
	var doc registryDoc
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("toolreg: read registry: %w", err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("toolreg: decode registry: %w", err)
	}
	return doc, nil
}

// Register adds or replaces the entry for (name, version).
func (r *Registry) Register(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return err
	}
	kept := doc.Tools[:0]
	for _, t := range doc.Tools {
		if t.Name == e.Name && t.Version == e.Version {
			continue
		}
		kept = append(kept, t)
	}
	doc.Tools = append(kept, e)
	return store.AtomicWriteJSON(r.path, doc)
}

// Find returns the first enabled tool matching name or one of its aliases,
// case-insensitively, or nil.
func (r *Registry) Find(name string) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil, nil
	}
	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	for i := range doc.Tools {
		t := &doc.Tools[i]
		if !t.Enabled {
			continue
		}
		candidates := append([]string{t.Name}, t.Aliases...)
		for _, c := range candidates {
			if strings.ToLower(c) == needle {
				return t, nil
			}
		}
	}
	return nil, nil
}

// List returns every enabled tool.
func (r *Registry) List() ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(doc.Tools))
	for _, t := range doc.Tools {
		if t.Enabled {
			out = append(out, t)
		}
	}
	return out, nil
}

// SetEnabled flips a tool's enabled flag across all its versions.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return err
	}
	found := false
	for i := range doc.Tools {
		if strings.EqualFold(doc.Tools[i].Name, name) {
			doc.Tools[i].Enabled = enabled
			found = true
		}
	}
	if !found {
		return fmt.Errorf("toolreg: tool not found: %s", name)
	}
	return store.AtomicWriteJSON(r.path, doc)
}
