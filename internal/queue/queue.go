// Package queue persists the fact that local commits exist but could
// not be pushed, and replays them once connectivity returns.
//
// The record lives outside the repository in the state directory, so it
// survives process restarts and vault re-clones. There is at most one
// record per vault: recording again only refreshes it.
package queue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/notevault/vaultsync/internal/git"
)

// Reason labels why the last push attempt failed.
type Reason string

const (
	ReasonConnectivity Reason = "connectivity"
	ReasonAuth         Reason = "auth"
	ReasonUnknown      Reason = "unknown"
)

// ReasonFromError maps a classified push error onto a Reason.
func ReasonFromError(err error) Reason {
	switch git.FailureReason(err) {
	case "connectivity":
		return ReasonConnectivity
	case "auth":
		return ReasonAuth
	default:
		return ReasonUnknown
	}
}

// Record is the persisted PendingPush state.
type Record struct {
	Pending     bool      `json:"pending"`
	CommitCount int       `json:"commit_count"`
	Attempts    int       `json:"attempts"`
	LastAttempt time.Time `json:"last_attempt"`
	LastReason  Reason    `json:"last_reason"`
}

// FlushOutcome is the result of a flush attempt.
type FlushOutcome int

const (
	// Flushed means the push succeeded and the record was cleared.
	Flushed FlushOutcome = iota

	// StillUnreachable means the remote is still down; the record
	// stays and the session continues without blocking.
	StillUnreachable

	// AuthError means the push failed on credentials; the record
	// stays but the user must act before a retry can succeed.
	AuthError
)

// String returns the outcome label used in logs.
func (o FlushOutcome) String() string {
	switch o {
	case Flushed:
		return "flushed"
	case StillUnreachable:
		return "still-unreachable"
	case AuthError:
		return "auth-error"
	default:
		return "unknown"
	}
}

// Pusher attempts to transmit local commits; the syncer provides one
// backed by the repository boundary.
type Pusher interface {
	Push(ctx context.Context) error
}

// Store manages the PendingPush record for one vault.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore returns the queue store for a vault. State files are keyed
// by a hash of the vault path so multiple vaults never share a record.
func NewStore(stateDir, vaultPath string) *Store {
	sum := sha256.Sum256([]byte(filepath.Clean(vaultPath)))
	name := "pending-" + hex.EncodeToString(sum[:8]) + ".json"
	return &Store{path: filepath.Join(stateDir, "queue", name)}
}

// Record notes that commitCount local commits could not be pushed.
// Idempotent: an existing record is refreshed in place, never
// duplicated, and its attempt counter is preserved.
func (s *Store) Record(reason Reason, commitCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load()
	if err != nil {
		return err
	}

	rec.Pending = true
	rec.CommitCount = commitCount
	rec.Attempts++
	rec.LastAttempt = time.Now().UTC()
	rec.LastReason = reason

	return s.save(rec)
}

// HasPending reports whether unpushed commits are recorded.
func (s *Store) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load()
	return err == nil && rec.Pending
}

// Pending returns the current record. A zero record with Pending false
// is returned when nothing is queued.
func (s *Store) Pending() (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Clear removes the record. Called only after a verified successful
// push.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear pending push: %w", err)
	}
	return nil
}

// TryFlush attempts the recorded push once. On success the record is
// cleared; connectivity failures refresh the record and never escalate,
// authentication failures refresh the record and are surfaced so the
// user can fix credentials.
func (s *Store) TryFlush(ctx context.Context, pusher Pusher) (FlushOutcome, error) {
	if !s.HasPending() {
		return Flushed, nil
	}

	err := pusher.Push(ctx)
	if err == nil {
		if clearErr := s.Clear(); clearErr != nil {
			return Flushed, clearErr
		}
		return Flushed, nil
	}

	rec, _ := s.Pending()
	reason := ReasonFromError(err)
	if recErr := s.Record(reason, rec.CommitCount); recErr != nil {
		return StillUnreachable, recErr
	}

	if errors.Is(err, git.ErrAuth) {
		return AuthError, err
	}
	return StillUnreachable, nil
}

// load reads the record from disk; a missing file is an empty record.
func (s *Store) load() (Record, error) {
	var rec Record
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return rec, nil
		}
		return rec, fmt.Errorf("read pending push: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode pending push: %w", err)
	}
	return rec, nil
}

// save writes the record atomically via a temp file rename.
func (s *Store) save(rec Record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create queue dir: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode pending push: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write pending push: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("write pending push: %w", err)
	}
	return nil
}

// Policy computes the delay before the next opportunistic flush
// attempt. Fixed policy always waits the base interval; exponential
// doubles per attempt up to the cap.
type Policy struct {
	Exponential  bool
	BaseInterval time.Duration
	MaxInterval  time.Duration
}

// NextDelay returns how long to wait after the given attempt count.
func (p Policy) NextDelay(attempts int) time.Duration {
	if !p.Exponential || attempts <= 1 {
		return p.BaseInterval
	}
	d := p.BaseInterval
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= p.MaxInterval {
			return p.MaxInterval
		}
	}
	return d
}
