// Package lock provides an exclusive advisory lock scoped to a vault
// path. Only one sync session may run against a vault at a time; the
// lock file records the holder so a crashed session can be detected and
// its stale lock reclaimed.
package lock

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrHeld is returned when another live process holds the vault lock.
var ErrHeld = errors.New("vault is locked by another sync session")

// info is the lock file payload.
type info struct {
	PID        int       `yaml:"pid"`
	Hostname   string    `yaml:"hostname"`
	VaultPath  string    `yaml:"vault_path"`
	AcquiredAt time.Time `yaml:"acquired_at"`
}

// Lock is a held vault lock. Release it on every exit path.
type Lock struct {
	path string
}

// fileFor derives the lock file path for a vault. The vault path is
// hashed so unrelated vaults never collide and the state directory
// stays flat.
func fileFor(stateDir, vaultPath string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(vaultPath)))
	return filepath.Join(stateDir, "locks", hex.EncodeToString(sum[:8])+".lock")
}

// Acquire takes the exclusive lock for vaultPath, reclaiming stale
// locks whose holder process is no longer alive.
func Acquire(stateDir, vaultPath string) (*Lock, error) {
	path := fileFor(stateDir, vaultPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			host, _ := os.Hostname()
			payload := info{
				PID:        os.Getpid(),
				Hostname:   host,
				VaultPath:  vaultPath,
				AcquiredAt: time.Now().UTC(),
			}
			enc := yaml.NewEncoder(f)
			if encErr := enc.Encode(payload); encErr != nil {
				f.Close()
				os.Remove(path)
				return nil, fmt.Errorf("write lock file: %w", encErr)
			}
			enc.Close()
			if err := f.Close(); err != nil {
				os.Remove(path)
				return nil, fmt.Errorf("write lock file: %w", err)
			}
			return &Lock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}

		holder, readErr := read(path)
		if readErr != nil {
			// Unreadable lock file: treat as stale debris.
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				return nil, fmt.Errorf("remove corrupt lock file: %w", rmErr)
			}
			continue
		}

		if processAlive(holder.PID) {
			return nil, fmt.Errorf("%w (pid %d on %s since %s)",
				ErrHeld, holder.PID, holder.Hostname,
				holder.AcquiredAt.Format(time.RFC3339))
		}

		// Holder is dead; reclaim and retry once.
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, fmt.Errorf("reclaim stale lock: %w", rmErr)
		}
	}

	return nil, ErrHeld
}

// Release frees the lock. Safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	err := os.Remove(l.path)
	l.path = ""
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// Path returns the lock file location, mainly for diagnostics.
func (l *Lock) Path() string {
	return l.path
}

func read(path string) (info, error) {
	var holder info
	data, err := os.ReadFile(path)
	if err != nil {
		return holder, err
	}
	if err := yaml.Unmarshal(data, &holder); err != nil {
		return holder, err
	}
	if holder.PID <= 0 {
		return holder, errors.New("lock file missing pid")
	}
	return holder, nil
}
