// Package conflict turns a set of conflicted paths into a clean
// working tree with an explicit, attributable decision.
//
// The resolver drives the sequence from "pull reported conflicts" to
// "working tree conflict-free", soliciting a strategy from the user
// interaction surface. Decisions apply to the whole batch of
// conflicted files; per-file granularity is an extension point, not
// current behavior.
package conflict

import "context"

// Decision is a user's conflict resolution choice. The type is closed:
// every decision site switches exhaustively over these values.
type Decision int

const (
	// DecisionNone means no choice was made (dialog cancelled).
	DecisionNone Decision = iota

	// DecisionKeepLocal discards incoming remote changes and keeps
	// the working copy for every conflicted path.
	DecisionKeepLocal

	// DecisionKeepRemote discards local changes and accepts the
	// incoming content for every conflicted path.
	DecisionKeepRemote

	// DecisionMergeManually defers to the user editing the files by
	// hand; resolution completes only once no conflict markers remain.
	DecisionMergeManually
)

// String returns the label used in logs and the history record.
func (d Decision) String() string {
	switch d {
	case DecisionKeepLocal:
		return "keep-local"
	case DecisionKeepRemote:
		return "keep-remote"
	case DecisionMergeManually:
		return "merge-manually"
	default:
		return "none"
	}
}

// Source identifies which operation produced the conflicts. Pull
// conflicts happen mid-rebase and finish with rebase --continue;
// stash-apply conflicts live directly in the working tree.
type Source int

const (
	SourcePull Source = iota
	SourceStashApply
)

// Set is one batch of conflicted paths awaiting resolution. Created
// when a pull or stash apply reports conflicts, discarded once the
// working tree is clean again.
type Set struct {
	// Paths are the conflicted files in the order git reported them.
	Paths []string

	// Source is the operation that produced the conflicts.
	Source Source

	// Decisions records the per-path choice once resolution ran.
	// Under batch policy every entry holds the same decision.
	Decisions map[string]Decision

	// Complete is set once the working tree is conflict-free.
	Complete bool
}

// NewSet builds a Set for the given conflicted paths.
func NewSet(paths []string, source Source) *Set {
	return &Set{
		Paths:     paths,
		Source:    source,
		Decisions: make(map[string]Decision, len(paths)),
	}
}

// markAll records the batch decision against every path.
func (s *Set) markAll(d Decision) {
	for _, p := range s.Paths {
		s.Decisions[p] = d
	}
}

// Outcome is the resolver's verdict.
type Outcome int

const (
	// Resolved means the working tree is clean and every path has an
	// attributed decision.
	Resolved Outcome = iota

	// Aborted means the user cancelled or resolution failed; the
	// repository was left pre-pull or clearly flagged conflicted.
	Aborted
)

// String returns the outcome label.
func (o Outcome) String() string {
	if o == Resolved {
		return "resolved"
	}
	return "aborted"
}

// Repository is the slice of the git boundary the resolver needs.
// *git.Repo satisfies it.
type Repository interface {
	ConflictedFiles(ctx context.Context) ([]string, error)
	CheckoutOurs(ctx context.Context, paths []string) error
	CheckoutTheirs(ctx context.Context, paths []string) error
	StagePaths(ctx context.Context, paths []string) error
	RebaseContinue(ctx context.Context) error
	RebaseAbort(ctx context.Context) error
	HasConflictMarkers(paths []string) ([]string, error)
	Dir() string
}

// UI is the slice of the user interaction surface the resolver needs.
type UI interface {
	// PromptConflict presents the conflicted paths and returns the
	// user's choice. DecisionNone means the dialog was cancelled.
	PromptConflict(paths []string) (Decision, error)

	// ConfirmManualMergeComplete asks whether manual editing is done.
	// changed lists conflicted files saved since the last prompt.
	ConfirmManualMergeComplete(changed []string) (bool, error)

	// Notify reports progress and problems without blocking.
	Notify(level NotifyLevel, message string)
}

// NotifyLevel grades notifications.
type NotifyLevel int

const (
	LevelInfo NotifyLevel = iota
	LevelWarn
	LevelError
)
