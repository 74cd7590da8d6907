package vault

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aideerrors "github.com/aide-sh/aide/internal/errors"
)

// newTestStore creates a FileStore rooted at a temp dir with all
// locations present.
func newTestStore(t *testing.T) *FileStore {
	t.Helper()

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.EnsureLocations())
	return store
}

// TestNewFileStore tests store construction.
func TestNewFileStore(t *testing.T) {
	t.Run("creates store with valid root", func(t *testing.T) {
		store, err := NewFileStore(t.TempDir())
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("rejects empty root", func(t *testing.T) {
		store, err := NewFileStore("")
		require.Error(t, err)
		require.ErrorIs(t, err, aideerrors.ErrEmptyValue)
		assert.Nil(t, store)
	})
}

// TestEnsureLocations tests vault directory creation.
func TestEnsureLocations(t *testing.T) {
	t.Run("creates all locations", func(t *testing.T) {
		root := t.TempDir()
		store, err := NewFileStore(root)
		require.NoError(t, err)
		require.NoError(t, store.EnsureLocations())

		for _, loc := range AllLocations {
			info, statErr := os.Stat(filepath.Join(root, string(loc)))
			require.NoError(t, statErr, "location %s should exist", loc)
			assert.True(t, info.IsDir())
		}
	})

	t.Run("is idempotent", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.EnsureLocations())
	})
}

// TestFileStoreCreateRead tests record creation and retrieval.
func TestFileStoreCreateRead(t *testing.T) {
	ctx := context.Background()

	t.Run("round-trips content", func(t *testing.T) {
		store := newTestStore(t)

		require.NoError(t, store.Create(ctx, NeedsAction, "task.md", []byte("hello")))

		data, err := store.Read(ctx, NeedsAction, "task.md")
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))
	})

	t.Run("create fails on existing record", func(t *testing.T) {
		store := newTestStore(t)

		require.NoError(t, store.Create(ctx, NeedsAction, "task.md", []byte("first")))
		err := store.Create(ctx, NeedsAction, "task.md", []byte("second"))
		require.ErrorIs(t, err, aideerrors.ErrTaskExists)

		// Original content untouched
		data, readErr := store.Read(ctx, NeedsAction, "task.md")
		require.NoError(t, readErr)
		assert.Equal(t, "first", string(data))
	})

	t.Run("read missing record returns not found", func(t *testing.T) {
		store := newTestStore(t)

		_, err := store.Read(ctx, NeedsAction, "absent.md")
		require.ErrorIs(t, err, aideerrors.ErrTaskNotFound)
	})

	t.Run("rejects unknown location", func(t *testing.T) {
		store := newTestStore(t)

		err := store.Create(ctx, Location("Nonexistent"), "task.md", []byte("x"))
		require.ErrorIs(t, err, aideerrors.ErrUnknownLocation)
	})

	t.Run("rejects path traversal names", func(t *testing.T) {
		store := newTestStore(t)

		for _, name := range []string{"../escape.md", "a/b.md", `a\b.md`, "foo..md"} {
			err := store.Create(ctx, NeedsAction, name, []byte("x"))
			require.ErrorIs(t, err, aideerrors.ErrPathTraversal, "name %q", name)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		store := newTestStore(t)

		cancelled, cancel := context.WithCancel(context.Background())
		cancel()

		err := store.Create(cancelled, NeedsAction, "task.md", []byte("x"))
		require.ErrorIs(t, err, context.Canceled)
	})
}

// TestFileStorePut tests atomic replacement.
func TestFileStorePut(t *testing.T) {
	ctx := context.Background()

	t.Run("creates when absent", func(t *testing.T) {
		store := newTestStore(t)

		require.NoError(t, store.Put(ctx, MultiStep, "state.yaml", []byte("v1")))

		data, err := store.Read(ctx, MultiStep, "state.yaml")
		require.NoError(t, err)
		assert.Equal(t, "v1", string(data))
	})

	t.Run("replaces existing content", func(t *testing.T) {
		store := newTestStore(t)

		require.NoError(t, store.Put(ctx, MultiStep, "state.yaml", []byte("v1")))
		require.NoError(t, store.Put(ctx, MultiStep, "state.yaml", []byte("v2")))

		data, err := store.Read(ctx, MultiStep, "state.yaml")
		require.NoError(t, err)
		assert.Equal(t, "v2", string(data))
	})

	t.Run("leaves no temp files behind", func(t *testing.T) {
		store := newTestStore(t)

		require.NoError(t, store.Put(ctx, MultiStep, "state.yaml", []byte("v1")))

		names, err := store.List(ctx, MultiStep, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"state.yaml"}, names)
	})
}

// TestFileStoreAppend tests in-place append.
func TestFileStoreAppend(t *testing.T) {
	ctx := context.Background()

	t.Run("appends to existing record", func(t *testing.T) {
		store := newTestStore(t)

		require.NoError(t, store.Create(ctx, PendingApproval, "task.md", []byte("body\n")))
		require.NoError(t, store.Append(ctx, PendingApproval, "task.md", []byte("note\n")))

		data, err := store.Read(ctx, PendingApproval, "task.md")
		require.NoError(t, err)
		assert.Equal(t, "body\nnote\n", string(data))
	})

	t.Run("fails on missing record", func(t *testing.T) {
		store := newTestStore(t)

		err := store.Append(ctx, PendingApproval, "absent.md", []byte("note"))
		require.ErrorIs(t, err, aideerrors.ErrTaskNotFound)
	})
}

// TestFileStoreRelocate tests atomic state transitions.
func TestFileStoreRelocate(t *testing.T) {
	ctx := context.Background()

	t.Run("moves record between locations", func(t *testing.T) {
		store := newTestStore(t)

		require.NoError(t, store.Create(ctx, NeedsAction, "task.md", []byte("content")))
		require.NoError(t, store.Relocate(ctx, NeedsAction, PendingApproval, "task.md"))

		// Findable in exactly one location
		inSrc, err := store.Exists(ctx, NeedsAction, "task.md")
		require.NoError(t, err)
		assert.False(t, inSrc)

		inDst, err := store.Exists(ctx, PendingApproval, "task.md")
		require.NoError(t, err)
		assert.True(t, inDst)

		data, err := store.Read(ctx, PendingApproval, "task.md")
		require.NoError(t, err)
		assert.Equal(t, "content", string(data))
	})

	t.Run("renames during move", func(t *testing.T) {
		store := newTestStore(t)

		require.NoError(t, store.Create(ctx, Approved, "task.md", []byte("content")))
		require.NoError(t, store.RelocateRenamed(ctx, Approved, Done, "task.md", "20260115_120000_completed_task.md"))

		inDst, err := store.Exists(ctx, Done, "20260115_120000_completed_task.md")
		require.NoError(t, err)
		assert.True(t, inDst)
	})

	t.Run("fails on missing source", func(t *testing.T) {
		store := newTestStore(t)

		err := store.Relocate(ctx, NeedsAction, PendingApproval, "absent.md")
		require.ErrorIs(t, err, aideerrors.ErrTaskNotFound)
	})

	t.Run("never overwrites destination", func(t *testing.T) {
		store := newTestStore(t)

		require.NoError(t, store.Create(ctx, NeedsAction, "task.md", []byte("source")))
		require.NoError(t, store.Create(ctx, PendingApproval, "task.md", []byte("existing")))

		err := store.Relocate(ctx, NeedsAction, PendingApproval, "task.md")
		require.ErrorIs(t, err, aideerrors.ErrDestinationExists)

		// Both records intact
		data, readErr := store.Read(ctx, NeedsAction, "task.md")
		require.NoError(t, readErr)
		assert.Equal(t, "source", string(data))

		data, readErr = store.Read(ctx, PendingApproval, "task.md")
		require.NoError(t, readErr)
		assert.Equal(t, "existing", string(data))
	})
}

// TestFileStoreList tests listing and filtering.
func TestFileStoreList(t *testing.T) {
	ctx := context.Background()

	t.Run("returns sorted names", func(t *testing.T) {
		store := newTestStore(t)

		require.NoError(t, store.Create(ctx, NeedsAction, "b.md", []byte("b")))
		require.NoError(t, store.Create(ctx, NeedsAction, "a.md", []byte("a")))
		require.NoError(t, store.Create(ctx, NeedsAction, "c.md", []byte("c")))

		names, err := store.List(ctx, NeedsAction, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"a.md", "b.md", "c.md"}, names)
	})

	t.Run("filters by extension", func(t *testing.T) {
		store := newTestStore(t)

		require.NoError(t, store.Create(ctx, MultiStep, "state.yaml", []byte("y")))
		require.NoError(t, store.Create(ctx, MultiStep, "readme.md", []byte("m")))

		names, err := store.List(ctx, MultiStep, ".yaml")
		require.NoError(t, err)
		assert.Equal(t, []string{"state.yaml"}, names)
	})

	t.Run("ignores subdirectories", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, os.MkdirAll(filepath.Join(store.Root(), string(NeedsAction), "sub"), 0o750))

		names, err := store.List(ctx, NeedsAction, "")
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("empty location lists empty", func(t *testing.T) {
		store := newTestStore(t)

		names, err := store.List(ctx, Drafts, "")
		require.NoError(t, err)
		assert.Empty(t, names)
	})
}

// TestFileStoreRemove tests record deletion.
func TestFileStoreRemove(t *testing.T) {
	ctx := context.Background()

	t.Run("removes existing record", func(t *testing.T) {
		store := newTestStore(t)

		require.NoError(t, store.Create(ctx, Inbox, "note.md", []byte("n")))
		require.NoError(t, store.Remove(ctx, Inbox, "note.md"))

		exists, err := store.Exists(ctx, Inbox, "note.md")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("fails on missing record", func(t *testing.T) {
		store := newTestStore(t)

		err := store.Remove(ctx, Inbox, "absent.md")
		require.ErrorIs(t, err, aideerrors.ErrTaskNotFound)
	})
}

// TestMemStoreContract runs the shared Store contract against MemStore.
func TestMemStoreContract(t *testing.T) {
	ctx := context.Background()

	t.Run("create read relocate", func(t *testing.T) {
		store := NewMemStore()

		require.NoError(t, store.Create(ctx, NeedsAction, "task.md", []byte("content")))

		err := store.Create(ctx, NeedsAction, "task.md", []byte("dup"))
		require.ErrorIs(t, err, aideerrors.ErrTaskExists)

		require.NoError(t, store.Relocate(ctx, NeedsAction, Approved, "task.md"))

		inSrc, err := store.Exists(ctx, NeedsAction, "task.md")
		require.NoError(t, err)
		assert.False(t, inSrc)

		data, err := store.Read(ctx, Approved, "task.md")
		require.NoError(t, err)
		assert.Equal(t, "content", string(data))
	})

	t.Run("relocate refuses overwrite", func(t *testing.T) {
		store := NewMemStore()

		require.NoError(t, store.Create(ctx, NeedsAction, "task.md", []byte("a")))
		require.NoError(t, store.Create(ctx, Approved, "task.md", []byte("b")))

		err := store.Relocate(ctx, NeedsAction, Approved, "task.md")
		require.ErrorIs(t, err, aideerrors.ErrDestinationExists)
	})

	t.Run("read returns a copy", func(t *testing.T) {
		store := NewMemStore()

		require.NoError(t, store.Create(ctx, NeedsAction, "task.md", []byte("abc")))

		data, err := store.Read(ctx, NeedsAction, "task.md")
		require.NoError(t, err)
		data[0] = 'z'

		again, err := store.Read(ctx, NeedsAction, "task.md")
		require.NoError(t, err)
		assert.Equal(t, "abc", string(again))
	})

	t.Run("append mutates in place", func(t *testing.T) {
		store := NewMemStore()

		require.NoError(t, store.Create(ctx, PendingApproval, "task.md", []byte("body\n")))
		require.NoError(t, store.Append(ctx, PendingApproval, "task.md", []byte("note\n")))

		data, err := store.Read(ctx, PendingApproval, "task.md")
		require.NoError(t, err)
		assert.Equal(t, "body\nnote\n", string(data))
	})
}

// TestValidateName tests record name validation.
func TestValidateName(t *testing.T) {
	t.Run("accepts normal names", func(t *testing.T) {
		for _, name := range []string{"task.md", "20260101_120000_pay_invoice.md", "state.yaml"} {
			require.NoError(t, ValidateName(name), "name %q", name)
		}
	})

	t.Run("rejects empty name", func(t *testing.T) {
		require.ErrorIs(t, ValidateName(""), aideerrors.ErrEmptyValue)
	})

	t.Run("rejects traversal", func(t *testing.T) {
		for _, name := range []string{"..", "../x", "a/b", `a\b`} {
			require.ErrorIs(t, ValidateName(name), aideerrors.ErrPathTraversal, "name %q", name)
		}
	})
}
