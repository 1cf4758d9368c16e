package server

import (
	"context"
	"sort"
	"sync"
	"time"

	cl "github.com/gofhir/codelists"
	"github.com/gofhir/codelists/rules"
)

// Entry is the latest normalized state of one codelist.
type Entry struct {
	Name      string     `json:"name"`
	File      string     `json:"file"`
	Result    *cl.Result `json:"result"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Store keeps the latest result per codelist in memory. It is a sink, so
// the updater can write to it alongside the CSV and Postgres sinks.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	now     func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

// Name returns the sink name.
func (s *Store) Name() string {
	return "memory"
}

// Write replaces the stored result of list.
func (s *Store) Write(ctx context.Context, list *rules.Codelist, result *cl.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[list.Name] = &Entry{
		Name:      list.Name,
		File:      list.OutputFile(),
		Result:    result,
		UpdatedAt: s.now(),
	}
	return nil
}

// Get returns the entry for name.
func (s *Store) Get(name string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	return e, ok
}

// List returns every entry sorted by name.
func (s *Store) List() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
