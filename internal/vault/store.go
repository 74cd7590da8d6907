// Package vault implements the durable task state store.
//
// State is represented purely by which vault location holds a task's
// record: a transition is an atomic relocate via a single rename, and the
// relocate itself is the processing marker. The Store interface keeps the
// moving parts (classifier, processor, approval handler) testable against
// an in-memory fake without touching real files.
//
// Import rules:
//   - CAN import: internal/constants, internal/ctxutil, internal/domain,
//     internal/errors, internal/flock, std lib
//   - MUST NOT import: internal/workflow, internal/orchestrator, internal/cli
package vault

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	aideerrors "github.com/aide-sh/aide/internal/errors"

	"github.com/aide-sh/aide/internal/constants"
	"github.com/aide-sh/aide/internal/ctxutil"
)

// Directory and file permission constants.
const (
	dirPerm  = 0o750 // Secure directory permissions
	filePerm = 0o600 // Secure file permissions
)

// Location names a vault directory. Five of these are task states; the
// rest are overlays (Plans), intake (Inbox), scratch (Drafts), and engine
// storage (MultiStep, Logs, Briefings).
type Location string

// Vault locations.
const (
	Inbox           Location = constants.InboxDir
	NeedsAction     Location = constants.NeedsActionDir
	Plans           Location = constants.PlansDir
	PendingApproval Location = constants.PendingApprovalDir
	Approved        Location = constants.ApprovedDir
	Done            Location = constants.DoneDir
	Drafts          Location = constants.DraftsDir
	MultiStep       Location = constants.MultiStepDir
	Logs            Location = constants.LogsDir
	Briefings       Location = constants.BriefingsDir
)

// AllLocations lists every directory the vault must contain.
//
//nolint:gochecknoglobals // Read-only lookup table
var AllLocations = []Location{
	Inbox, NeedsAction, Plans, PendingApproval, Approved, Done,
	Drafts, MultiStep, Logs, Briefings,
}

// validLocations is the membership set for location validation.
//
//nolint:gochecknoglobals // Read-only lookup table
var validLocations = func() map[Location]bool {
	m := make(map[Location]bool, len(AllLocations))
	for _, loc := range AllLocations {
		m[loc] = true
	}
	return m
}()

// String implements fmt.Stringer for convenient logging.
func (l Location) String() string {
	return string(l)
}

// Store defines the narrow persistence contract for vault records.
// All implementations must make Relocate atomic: a record is findable in
// exactly one location at any time, never both or neither.
type Store interface {
	// List returns record names in a location, sorted, filtered to the
	// given extension ("" for all).
	List(ctx context.Context, loc Location, ext string) ([]string, error)

	// Read returns a record's content. Returns ErrTaskNotFound if absent.
	Read(ctx context.Context, loc Location, name string) ([]byte, error)

	// Create writes a new record. Returns ErrTaskExists if the name is
	// already taken in the location.
	Create(ctx context.Context, loc Location, name string, data []byte) error

	// Put writes a record, atomically replacing any existing content.
	// Used for state files that are rewritten on every mutation.
	Put(ctx context.Context, loc Location, name string, data []byte) error

	// Append appends content to an existing record. This is the only
	// permitted in-place mutation (rejection notes).
	Append(ctx context.Context, loc Location, name string, data []byte) error

	// Relocate moves a record between locations with a single atomic
	// rename. Returns ErrDestinationExists rather than overwriting.
	Relocate(ctx context.Context, from, to Location, name string) error

	// RelocateRenamed moves a record between locations, giving it a new
	// name at the destination (archival into Done uses timestamped names).
	RelocateRenamed(ctx context.Context, from, to Location, name, newName string) error

	// Exists reports whether a record is present in a location.
	Exists(ctx context.Context, loc Location, name string) (bool, error)

	// Remove deletes a record. Only the intake point uses this; Done is
	// append-only by contract and callers must never remove from it.
	Remove(ctx context.Context, loc Location, name string) error
}

// FileStore implements Store on a local vault directory tree.
type FileStore struct {
	root string
}

// NewFileStore creates a FileStore rooted at the given vault path.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("failed to create store: vault path %w", aideerrors.ErrEmptyValue)
	}
	return &FileStore{root: root}, nil
}

// Root returns the vault root path.
func (s *FileStore) Root() string {
	return s.root
}

// EnsureLocations creates the vault directory tree if missing.
func (s *FileStore) EnsureLocations() error {
	for _, loc := range AllLocations {
		if err := os.MkdirAll(filepath.Join(s.root, string(loc)), dirPerm); err != nil {
			return fmt.Errorf("failed to create vault location %s: %w", loc, err)
		}
	}
	return nil
}

// List returns record names in a location, sorted.
func (s *FileStore) List(ctx context.Context, loc Location, ext string) ([]string, error) {
	if err := s.check(ctx, loc, ""); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.locDir(loc))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", loc, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ext != "" && !strings.HasSuffix(entry.Name(), ext) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Read returns a record's content.
func (s *FileStore) Read(ctx context.Context, loc Location, name string) ([]byte, error) {
	if err := s.check(ctx, loc, name); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.recordPath(loc, name)) //#nosec G304 -- path is validated and constructed from trusted base
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read %s/%s: %w", loc, name, aideerrors.ErrTaskNotFound)
		}
		return nil, fmt.Errorf("failed to read %s/%s: %w", loc, name, err)
	}
	return data, nil
}

// Create writes a new record, failing if the name is taken.
func (s *FileStore) Create(ctx context.Context, loc Location, name string, data []byte) error {
	if err := s.check(ctx, loc, name); err != nil {
		return err
	}

	path := s.recordPath(loc, name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("failed to create %s/%s: %w", loc, name, aideerrors.ErrTaskExists)
	}
	if err := atomicWrite(path, data); err != nil {
		return fmt.Errorf("failed to create %s/%s: %w", loc, name, err)
	}
	return nil
}

// Put writes a record, replacing existing content atomically.
func (s *FileStore) Put(ctx context.Context, loc Location, name string, data []byte) error {
	if err := s.check(ctx, loc, name); err != nil {
		return err
	}
	if err := atomicWrite(s.recordPath(loc, name), data); err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", loc, name, err)
	}
	return nil
}

// Append appends content to an existing record and syncs it to disk.
func (s *FileStore) Append(ctx context.Context, loc Location, name string, data []byte) error {
	if err := s.check(ctx, loc, name); err != nil {
		return err
	}

	path := s.recordPath(loc, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("failed to append to %s/%s: %w", loc, name, aideerrors.ErrTaskNotFound)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, filePerm) //#nosec G304 -- path is validated and constructed from trusted base
	if err != nil {
		return fmt.Errorf("failed to append to %s/%s: %w", loc, name, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to append to %s/%s: %w", loc, name, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s/%s: %w", loc, name, err)
	}
	return nil
}

// Relocate moves a record between locations with a single rename.
func (s *FileStore) Relocate(ctx context.Context, from, to Location, name string) error {
	return s.RelocateRenamed(ctx, from, to, name, name)
}

// RelocateRenamed moves a record between locations under a new name.
// The move is a single os.Rename: no copy-then-delete race, and a crash
// leaves the record findable in exactly one location.
func (s *FileStore) RelocateRenamed(ctx context.Context, from, to Location, name, newName string) error {
	if err := s.check(ctx, from, name); err != nil {
		return err
	}
	if err := s.check(ctx, to, newName); err != nil {
		return err
	}

	src := s.recordPath(from, name)
	dst := s.recordPath(to, newName)

	if _, err := os.Stat(src); os.IsNotExist(err) {
		return fmt.Errorf("failed to relocate %s/%s: %w", from, name, aideerrors.ErrTaskNotFound)
	}
	// Fail loudly rather than silently overwrite. The orchestrator tick is
	// the only writer across state locations, so this check cannot race
	// with another relocation of the same record.
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("failed to relocate %s/%s to %s/%s: %w", from, name, to, newName, aideerrors.ErrDestinationExists)
	}

	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to relocate %s/%s to %s: %w", from, name, to, err)
	}
	return nil
}

// Exists reports whether a record is present in a location.
func (s *FileStore) Exists(ctx context.Context, loc Location, name string) (bool, error) {
	if err := s.check(ctx, loc, name); err != nil {
		return false, err
	}
	_, err := os.Stat(s.recordPath(loc, name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat %s/%s: %w", loc, name, err)
}

// Remove deletes a record from a location.
func (s *FileStore) Remove(ctx context.Context, loc Location, name string) error {
	if err := s.check(ctx, loc, name); err != nil {
		return err
	}
	if err := os.Remove(s.recordPath(loc, name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s/%s: %w", loc, name, aideerrors.ErrTaskNotFound)
		}
		return fmt.Errorf("failed to remove %s/%s: %w", loc, name, err)
	}
	return nil
}

// check validates cancellation, location membership, and record names.
// name may be empty for location-level operations.
func (s *FileStore) check(ctx context.Context, loc Location, name string) error {
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

// ValidateName rejects record names that would escape their location.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("record name %w", aideerrors.ErrEmptyValue)
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", aideerrors.ErrPathTraversal, name)
	}
	return nil
}

func (s *FileStore) locDir(loc Location) string {
	return filepath.Join(s.root, string(loc))
}

func (s *FileStore) recordPath(loc Location, name string) string {
	return filepath.Join(s.locDir(loc), name)
}

// atomicWrite writes data to a file atomically using write-then-rename.
func atomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm) //#nosec G304 -- path is constructed internally
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write data: %w", err)
	}

	// Sync before rename so the rename never publishes a partial write.
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// Ensure FileStore implements Store.
var _ Store = (*FileStore)(nil)
