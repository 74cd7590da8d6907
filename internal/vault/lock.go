package vault

import (
	"fmt"
	"os"
	"path/filepath"

	aideerrors "github.com/aide-sh/aide/internal/errors"
	"github.com/aide-sh/aide/internal/flock"
)

// lockFileName is the vault's writer-lock file, kept outside the task
// locations so it never shows up as a record.
const lockFileName = ".aide.lock"

// Lock is an exclusive writer lock on a vault. The engine's sequential
// tick assumes it is the only writer; the lock enforces that across
// processes.
type Lock struct {
	file *os.File
}

// AcquireLock takes the exclusive writer lock for the vault rooted at
// root. It fails fast with ErrVaultLocked when another engine instance
// already holds it.
func AcquireLock(root string) (*Lock, error) {
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create vault root: %w", err)
	}

	path := filepath.Join(root, lockFileName)
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, filePerm) // #nosec G304 -- path is vault-rooted
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := flock.Exclusive(file.Fd()); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%w: %s", aideerrors.ErrVaultLocked, path)
	}

	// The PID makes `cat .aide.lock` useful when debugging a stuck lock.
	_ = file.Truncate(0)
	_, _ = fmt.Fprintf(file, "%d\n", os.Getpid())
	_ = file.Sync()

	return &Lock{file: file}, nil
}

// Release unlocks and closes the lock file. Safe to call once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	unlockErr := flock.Unlock(l.file.Fd())
	closeErr := l.file.Close()
	l.file = nil
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}
