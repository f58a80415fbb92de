package git

import (
	"errors"
	"strings"
)

// Errors returned by repository operations.
//
// These form the error taxonomy the orchestrator works with. Check them
// with errors.Is():
//
//	if errors.Is(err, git.ErrConnectivity) {
//	    // remote unreachable, defer the push
//	}
var (
	// ErrConnectivity is returned when the remote cannot be reached.
	// Recoverable: the offline queue takes over, never fatal.
	ErrConnectivity = errors.New("remote unreachable")

	// ErrAuth is returned on credential or permission failures.
	// Fatal to the session; requires user remediation.
	ErrAuth = errors.New("authentication failed")

	// ErrConflicts is returned when a pull or stash apply reports
	// conflicted paths.
	ErrConflicts = errors.New("merge conflict")

	// ErrWorkingTree is returned when the working tree is in an
	// unexpected state (stash failure, stray conflict markers,
	// corrupt index).
	ErrWorkingTree = errors.New("working tree in unexpected state")

	// ErrUserAbort is returned when the user cancelled an interactive
	// step. Not an error report; the session ends as aborted.
	ErrUserAbort = errors.New("aborted by user")

	// ErrNothingToCommit is returned by Commit when the tree is clean.
	// Callers usually treat this as a no-op.
	ErrNothingToCommit = errors.New("nothing to commit")

	// ErrNotARepo is returned when the vault path is not inside a
	// git repository.
	ErrNotARepo = errors.New("not a git repository")

	// ErrNoRemoteBranch is returned when the tracked branch does not
	// exist on the remote yet.
	ErrNoRemoteBranch = errors.New("remote branch not found")
)

// IsDeferrable returns true if the error should be handed to the offline
// queue instead of failing the session.
func IsDeferrable(err error) bool {
	return errors.Is(err, ErrConnectivity)
}

// IsUserActionRequired returns true if the error can only be resolved by
// user intervention (re-keying, manual merge).
func IsUserActionRequired(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrAuth) || errors.Is(err, ErrConflicts)
}

// IsFatal returns true if the session cannot meaningfully continue.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrWorkingTree) || errors.Is(err, ErrNotARepo)
}

// connectivityPatterns match stderr from git/ssh when the network or the
// remote host is down. Matched case-insensitively.
var connectivityPatterns = []string{
	"could not resolve hostname",
	"could not resolve host",
	"connection timed out",
	"connection refused",
	"network is unreachable",
	"no route to host",
	"operation timed out",
	"failed to connect",
	"temporary failure in name resolution",
	"ssh: connect to host",
}

// authPatterns match stderr for credential and permission failures.
var authPatterns = []string{
	"permission denied (publickey",
	"authentication failed",
	"access denied",
	"could not read username",
	"could not read password",
	"invalid credentials",
	"publickey denied",
	"the requested url returned error: 403",
}

// conflictPatterns match pull/rebase/stash output reporting conflicts.
var conflictPatterns = []string{
	"conflict",
	"needs merge",
	"could not apply",
	"fix conflicts and then run",
}

// classify maps a failed command Result onto the error taxonomy.
// Returns nil when no pattern matches; callers fall back to a generic
// error carrying the command output.
func classify(res Result) error {
	out := strings.ToLower(res.Combined())

	for _, p := range authPatterns {
		if strings.Contains(out, p) {
			return ErrAuth
		}
	}
	for _, p := range connectivityPatterns {
		if strings.Contains(out, p) {
			return ErrConnectivity
		}
	}
	for _, p := range conflictPatterns {
		if strings.Contains(out, p) {
			return ErrConflicts
		}
	}

	return nil
}

// FailureReason labels an error for the offline queue record.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrConnectivity):
		return "connectivity"
	case errors.Is(err, ErrAuth):
		return "auth"
	default:
		return "unknown"
	}
}
