// Package syncer implements the sync orchestrator: the control loop
// that sequences stash, pull, editor session, commit, and push around
// one interactive editing run.
//
// The orchestrator composes the conflict resolver and the offline
// queue. Conflict detection interrupts it mid-pull, offline handling
// interrupts it mid-push; both resume at well-defined phases.
package syncer

import (
	"context"
	"log"
	"time"

	"github.com/notevault/vaultsync/internal/conflict"
	"github.com/notevault/vaultsync/internal/editor"
	"github.com/notevault/vaultsync/internal/netcheck"
	"github.com/notevault/vaultsync/internal/queue"
)

// Phase is the orchestrator's position in the sync cycle. Phases
// advance in strict order on the success path.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStashing
	PhasePulling
	PhaseConflictCheck
	PhaseConflictResolution
	PhaseResuming
	PhaseLaunchingEditor
	PhaseWaitingForEditorExit
	PhaseCommitting
	PhasePushing
	PhaseDone
	PhaseAborted
	PhaseFailed
)

var phaseNames = map[Phase]string{
	PhaseIdle:                 "idle",
	PhaseStashing:             "stashing",
	PhasePulling:              "pulling",
	PhaseConflictCheck:        "conflict-check",
	PhaseConflictResolution:   "conflict-resolution",
	PhaseResuming:             "resuming",
	PhaseLaunchingEditor:      "launching-editor",
	PhaseWaitingForEditorExit: "waiting-for-editor-exit",
	PhaseCommitting:           "committing",
	PhasePushing:              "pushing",
	PhaseDone:                 "done",
	PhaseAborted:              "aborted",
	PhaseFailed:               "failed",
}

// String returns the phase label used in logs and events.
func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return "unknown"
}

// Outcome is the final verdict of a sync session.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSuccess
	OutcomeSuccessOfflineDegraded
	OutcomeAborted
	OutcomeFailed
)

// String returns the outcome label.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeSuccessOfflineDegraded:
		return "success-offline-degraded"
	case OutcomeAborted:
		return "aborted"
	case OutcomeFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Session is one run of the orchestrator. It lives for the duration of
// Run and is not persisted; the history log keeps its own record.
type Session struct {
	VaultPath string
	Remote    string
	Branch    string
	StartedAt time.Time

	Phase   Phase
	Outcome Outcome

	// Offline marks an offline-degraded session (pull skipped).
	Offline bool

	// Conflicts counts conflicted paths seen this session.
	Conflicts int

	// Decision is the batch conflict decision, if any was made.
	Decision conflict.Decision

	// Committed and Pushed record what the session produced.
	Committed bool
	Pushed    bool

	stashed        bool
	conflictRounds int
}

// Repository is the slice of the git boundary the orchestrator needs.
// *git.Repo satisfies it.
type Repository interface {
	IsRepo(ctx context.Context) bool
	EnsureInitialCommit(ctx context.Context, message string) error
	Stash(ctx context.Context) (bool, error)
	StashPop(ctx context.Context) error
	PullRebase(ctx context.Context, remote, branch string) error
	ConflictedFiles(ctx context.Context) ([]string, error)
	Commit(ctx context.Context, message string) error
	Push(ctx context.Context, remote, branch string) error
	PushSetUpstream(ctx context.Context, remote, branch string) error
	AheadBehind(ctx context.Context, remote, branch string) (ahead, behind int, err error)
	RemoteBranchExists(ctx context.Context, remote, branch string) (bool, error)
	RemoteHost(ctx context.Context, remote string) (string, error)
}

// Resolver drives conflict resolution; *conflict.Resolver satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, set *conflict.Set) (conflict.Outcome, error)
}

// PendingQueue is the offline queue contract; *queue.Store satisfies it.
type PendingQueue interface {
	Record(reason queue.Reason, commitCount int) error
	HasPending() bool
	Pending() (queue.Record, error)
	TryFlush(ctx context.Context, pusher queue.Pusher) (queue.FlushOutcome, error)
	Clear() error
}

// Notifier is the non-prompting part of the user interaction surface.
type Notifier interface {
	Notify(level conflict.NotifyLevel, message string)
}

// Events receives session lifecycle callbacks, e.g. for the monitor
// feed. All methods must be non-blocking.
type Events interface {
	Phase(p Phase)
	Conflicts(paths []string, resolved bool, decision conflict.Decision)
	Queue(reason string, pending bool)
	Done(o Outcome)
}

// NopEvents discards all events.
type NopEvents struct{}

func (NopEvents) Phase(Phase)                                 {}
func (NopEvents) Conflicts([]string, bool, conflict.Decision) {}
func (NopEvents) Queue(string, bool)                          {}
func (NopEvents) Done(Outcome)                                {}

// Options wires a Syncer.
type Options struct {
	VaultPath string
	Remote    string
	Branch    string

	// CommitMessage is used for the post-editing commit,
	// InitialCommitMessage for bootstrapping an unborn repository.
	CommitMessage        string
	InitialCommitMessage string

	// LockDir is the state directory holding vault lock files. Empty
	// disables locking (tests that fake everything else).
	LockDir string

	Repo     Repository
	Resolver Resolver
	Queue    PendingQueue
	Editor   editor.Launcher
	Net      netcheck.Checker
	Notifier Notifier
	Events   Events
	Logger   *log.Logger
}

// Syncer runs sync sessions for one vault.
type Syncer struct {
	opts Options
	log  *log.Logger
}

// New builds a Syncer. Logger and Events fall back to defaults; the
// remaining options are required.
func New(opts Options) *Syncer {
	if opts.Events == nil {
		opts.Events = NopEvents{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Remote == "" {
		opts.Remote = "origin"
	}
	if opts.Branch == "" {
		opts.Branch = "main"
	}
	return &Syncer{opts: opts, log: opts.Logger}
}

// pushAdapter lets the offline queue reuse the session's push.
type pushAdapter struct {
	repo   Repository
	remote string
	branch string
}

func (p pushAdapter) Push(ctx context.Context) error {
	return p.repo.Push(ctx, p.remote, p.branch)
}
