package git

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		want   error
	}{
		{"dns failure", "ssh: Could not resolve hostname github.com: Name or service not known", ErrConnectivity},
		{"timeout", "fatal: unable to access 'https://github.com/x/y/': Connection timed out", ErrConnectivity},
		{"refused", "connect to host github.com port 22: Connection refused", ErrConnectivity},
		{"no route", "connect to host 10.0.0.1 port 22: No route to host", ErrConnectivity},
		{"publickey", "git@github.com: Permission denied (publickey).", ErrAuth},
		{"http 403", "The requested URL returned error: 403", ErrAuth},
		{"bad credentials", "fatal: Authentication failed for 'https://github.com/x/y/'", ErrAuth},
		{"rebase conflict", "CONFLICT (content): Merge conflict in notes/daily.md", ErrConflicts},
		{"needs merge", "error: you need to resolve your current index first\nnotes/a.md: needs merge", ErrConflicts},
		{"could not apply", "error: could not apply f00ba4... add notes", ErrConflicts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(Result{ExitCode: 1, Stderr: tt.stderr})
			if !errors.Is(err, tt.want) {
				t.Errorf("classify(%q) = %v, want %v", tt.stderr, err, tt.want)
			}
		})
	}
}

func TestClassifyUnknown(t *testing.T) {
	err := classify(Result{ExitCode: 128, Stderr: "fatal: bad object HEAD"})
	if err != nil {
		t.Errorf("classify() = %v, want nil for unrecognized output", err)
	}
}

func TestFailWrapsClassified(t *testing.T) {
	err := fail("push", Result{ExitCode: 1, Stderr: "Permission denied (publickey)."})
	if !errors.Is(err, ErrAuth) {
		t.Errorf("fail() = %v, want ErrAuth", err)
	}

	err = fail("push", Result{ExitCode: 1, Stderr: "something odd"})
	if errors.Is(err, ErrAuth) || errors.Is(err, ErrConnectivity) || errors.Is(err, ErrConflicts) {
		t.Errorf("fail() classified unknown output as %v", err)
	}
}

func TestFailureReason(t *testing.T) {
	if got := FailureReason(ErrConnectivity); got != "connectivity" {
		t.Errorf("FailureReason(ErrConnectivity) = %q", got)
	}
	if got := FailureReason(ErrAuth); got != "auth" {
		t.Errorf("FailureReason(ErrAuth) = %q", got)
	}
	if got := FailureReason(errors.New("boom")); got != "unknown" {
		t.Errorf("FailureReason(other) = %q", got)
	}
}

func TestErrorPredicates(t *testing.T) {
	if !IsDeferrable(ErrConnectivity) {
		t.Error("IsDeferrable(ErrConnectivity) = false")
	}
	if IsDeferrable(ErrAuth) {
		t.Error("IsDeferrable(ErrAuth) = true")
	}
	if !IsUserActionRequired(ErrAuth) || !IsUserActionRequired(ErrConflicts) {
		t.Error("IsUserActionRequired() = false for auth/conflict")
	}
	if !IsFatal(ErrNotARepo) || !IsFatal(ErrWorkingTree) {
		t.Error("IsFatal() = false for fatal errors")
	}
	if IsFatal(nil) || IsUserActionRequired(nil) {
		t.Error("predicates returned true for nil error")
	}
}
