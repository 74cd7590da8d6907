package vault

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aide-sh/aide/internal/ctxutil"
	aideerrors "github.com/aide-sh/aide/internal/errors"
)

// MemStore is an in-memory Store used by tests and the check command.
// It honors the same contract as FileStore: Relocate is atomic under the
// store mutex, and destinations are never overwritten.
type MemStore struct {
	mu      sync.Mutex
	records map[Location]map[string][]byte
}

// NewMemStore creates an empty in-memory store with all locations present.
func NewMemStore() *MemStore {
	records := make(map[Location]map[string][]byte, len(AllLocations))
	for _, loc := range AllLocations {
		records[loc] = make(map[string][]byte)
	}
	return &MemStore{records: records}
}

// List returns record names in a location, sorted.
func (s *MemStore) List(ctx context.Context, loc Location, ext string) ([]string, error) {
	if err := s.check(ctx, loc, ""); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.records[loc]))
	for name := range s.records[loc] {
		if ext != "" && !strings.HasSuffix(name, ext) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Read returns a record's content.
func (s *MemStore) Read(ctx context.Context, loc Location, name string) ([]byte, error) {
	if err := s.check(ctx, loc, name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.records[loc][name]
	if !ok {
		return nil, fmt.Errorf("failed to read %s/%s: %w", loc, name, aideerrors.ErrTaskNotFound)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Create writes a new record, failing if the name is taken.
func (s *MemStore) Create(ctx context.Context, loc Location, name string, data []byte) error {
	if err := s.check(ctx, loc, name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[loc][name]; ok {
		return fmt.Errorf("failed to create %s/%s: %w", loc, name, aideerrors.ErrTaskExists)
	}
	s.records[loc][name] = append([]byte(nil), data...)
	return nil
}

// Put writes a record, replacing existing content.
func (s *MemStore) Put(ctx context.Context, loc Location, name string, data []byte) error {
	if err := s.check(ctx, loc, name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[loc][name] = append([]byte(nil), data...)
	return nil
}

// Append appends content to an existing record.
func (s *MemStore) Append(ctx context.Context, loc Location, name string, data []byte) error {
	if err := s.check(ctx, loc, name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[loc][name]
	if !ok {
		return fmt.Errorf("failed to append to %s/%s: %w", loc, name, aideerrors.ErrTaskNotFound)
	}
	s.records[loc][name] = append(existing, data...)
	return nil
}

// Relocate moves a record between locations.
func (s *MemStore) Relocate(ctx context.Context, from, to Location, name string) error {
	return s.RelocateRenamed(ctx, from, to, name, name)
}

// RelocateRenamed moves a record between locations under a new name.
func (s *MemStore) RelocateRenamed(ctx context.Context, from, to Location, name, newName string) error {
	if err := s.check(ctx, from, name); err != nil {
		return err
	}
	if err := s.check(ctx, to, newName); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.records[from][name]
	if !ok {
		return fmt.Errorf("failed to relocate %s/%s: %w", from, name, aideerrors.ErrTaskNotFound)
	}
	if _, exists := s.records[to][newName]; exists {
		return fmt.Errorf("failed to relocate %s/%s to %s/%s: %w", from, name, to, newName, aideerrors.ErrDestinationExists)
	}
	s.records[to][newName] = data
	delete(s.records[from], name)
	return nil
}

// Exists reports whether a record is present in a location.
func (s *MemStore) Exists(ctx context.Context, loc Location, name string) (bool, error) {
	if err := s.check(ctx, loc, name); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.records[loc][name]
	return ok, nil
}

// Remove deletes a record from a location.
func (s *MemStore) Remove(ctx context.Context, loc Location, name string) error {
	if err := s.check(ctx, loc, name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[loc][name]; !ok {
		return fmt.Errorf("failed to remove %s/%s: %w", loc, name, aideerrors.ErrTaskNotFound)
	}
	delete(s.records[loc], name)
	return nil
}

func (s *MemStore) check(ctx context.Context, loc Location, name string) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	if !validLocations[loc] {
		return fmt.Errorf("%w: %q", aideerrors.ErrUnknownLocation, loc)
	}
	if name == "" {
		return nil
	}
	return ValidateName(name)
}

// Ensure MemStore implements Store.
var _ Store = (*MemStore)(nil)
