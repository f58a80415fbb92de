package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/notevault/vaultsync/internal/conflict"
	"github.com/notevault/vaultsync/internal/git"
	"github.com/notevault/vaultsync/internal/lock"
	"github.com/notevault/vaultsync/internal/netcheck"
	"github.com/notevault/vaultsync/internal/queue"
)

// maxConflictRounds bounds conflict resolution per session: one round
// for the pull, one more if applying the stash conflicts again.
const maxConflictRounds = 2

// Run executes one full sync session and returns it with its final
// phase and outcome. The returned error carries the failure cause for
// Failed sessions; Aborted and offline-degraded sessions return nil.
func (s *Syncer) Run(ctx context.Context) (*Session, error) {
	sess := &Session{
		VaultPath: s.opts.VaultPath,
		Remote:    s.opts.Remote,
		Branch:    s.opts.Branch,
		StartedAt: time.Now().UTC(),
		Phase:     PhaseIdle,
	}

	if s.opts.LockDir != "" {
		held, err := lock.Acquire(s.opts.LockDir, s.opts.VaultPath)
		if err != nil {
			return s.fail(sess, err, "Another sync session is already running for this vault.")
		}
		defer held.Release()
	}

	defer func() { s.opts.Events.Done(sess.Outcome) }()

	if !s.opts.Repo.IsRepo(ctx) {
		return s.fail(sess, fmt.Errorf("%s: %w", s.opts.VaultPath, git.ErrNotARepo),
			"The vault is not a git repository.")
	}
	if err := s.opts.Repo.EnsureInitialCommit(ctx, s.opts.InitialCommitMessage); err != nil {
		return s.fail(sess, err, "Could not create the initial commit.")
	}

	online := s.probeConnectivity(ctx)
	if !online {
		sess.Offline = true
		s.notify(conflict.LevelWarn, "Remote unreachable; working offline. Changes will sync later.")
	}

	// Stashing
	s.setPhase(sess, PhaseStashing)
	stashed, err := s.opts.Repo.Stash(ctx)
	if err != nil {
		return s.fail(sess, err, "Could not set aside local changes; the vault was left untouched.")
	}
	sess.stashed = stashed

	// Pulling. Offline skips the pull but still restores the stash.
	s.setPhase(sess, PhasePulling)
	if online {
		if done, err := s.pull(ctx, sess); done {
			return sess, err
		}
	}

	// Resuming
	s.setPhase(sess, PhaseResuming)
	if done, err := s.popStash(ctx, sess); done {
		return sess, err
	}

	// Editor session
	s.setPhase(sess, PhaseLaunchingEditor)
	handle, err := s.opts.Editor.Launch(ctx, s.opts.VaultPath)
	if err != nil {
		return s.fail(sess, err, "Could not launch the editor.")
	}

	s.setPhase(sess, PhaseWaitingForEditorExit)
	select {
	case res := <-handle.Done():
		if res.Err != nil {
			s.log.Printf("Editor wait error: %v", res.Err)
		}
		s.log.Printf("Editor exited with code %d", res.Code)
	case <-ctx.Done():
		s.log.Println("Sync cancelled while waiting for editor exit")
		return s.abort(sess, ctx.Err())
	}

	// Committing
	s.setPhase(sess, PhaseCommitting)
	switch err := s.opts.Repo.Commit(ctx, s.opts.CommitMessage); {
	case err == nil:
		sess.Committed = true
	case errors.Is(err, git.ErrNothingToCommit):
		s.log.Println("No changes to commit")
	default:
		return s.fail(sess, err, "Could not commit the vault changes.")
	}

	// Pushing
	s.setPhase(sess, PhasePushing)
	return s.push(ctx, sess)
}

// pull rebases onto the remote branch, delegating conflicts to the
// resolver. The bool result is true when the session ended inside this
// step.
func (s *Syncer) pull(ctx context.Context, sess *Session) (bool, error) {
	exists, err := s.opts.Repo.RemoteBranchExists(ctx, s.opts.Remote, s.opts.Branch)
	if err != nil {
		if errors.Is(err, git.ErrConnectivity) {
			sess.Offline = true
			s.notify(conflict.LevelWarn, "Remote unreachable; working offline. Changes will sync later.")
			return false, nil
		}
		if errors.Is(err, git.ErrAuth) {
			_, ferr := s.fail(sess, err, "Authentication to the remote failed; fix your credentials and retry.")
			return true, ferr
		}
		_, ferr := s.fail(sess, err, "Could not reach the remote repository.")
		return true, ferr
	}
	if !exists {
		// Nothing to pull from yet; the push phase creates the branch.
		s.log.Printf("Remote branch %s/%s does not exist yet, skipping pull", s.opts.Remote, s.opts.Branch)
		return false, nil
	}

	err = s.opts.Repo.PullRebase(ctx, s.opts.Remote, s.opts.Branch)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, git.ErrConflicts):
		return s.resolveConflicts(ctx, sess, conflict.SourcePull)
	case errors.Is(err, git.ErrConnectivity):
		sess.Offline = true
		s.notify(conflict.LevelWarn, "Remote unreachable during pull; working offline.")
		return false, nil
	case errors.Is(err, git.ErrAuth):
		_, ferr := s.fail(sess, err, "Authentication to the remote failed; fix your credentials and retry.")
		return true, ferr
	default:
		_, ferr := s.fail(sess, err, "Pull failed; the vault was rolled back to its previous state.")
		return true, ferr
	}
}

// popStash re-applies the stash from the Stashing phase. A conflicted
// apply re-enters resolution once; a second conflicted round is fatal.
func (s *Syncer) popStash(ctx context.Context, sess *Session) (bool, error) {
	if !sess.stashed {
		return false, nil
	}
	// One pop per session: a conflicted apply leaves the user's changes
	// in the tree, so the resolution path must not pop again.
	sess.stashed = false

	err := s.opts.Repo.StashPop(ctx)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, git.ErrConflicts) {
		_, ferr := s.fail(sess, err, "Could not restore your local changes from the stash.")
		return true, ferr
	}

	s.log.Println("Stash apply produced conflicts")
	return s.resolveConflicts(ctx, sess, conflict.SourceStashApply)
}

// resolveConflicts runs one resolution round. The bool result is true
// when the session ended (aborted, failed, or too many rounds).
func (s *Syncer) resolveConflicts(ctx context.Context, sess *Session, source conflict.Source) (bool, error) {
	sess.conflictRounds++
	if sess.conflictRounds > maxConflictRounds {
		_, ferr := s.fail(sess, errors.New("conflicts recurred after stash apply"),
			"Conflicts keep recurring; resolve them by hand before syncing again.")
		return true, ferr
	}

	s.setPhase(sess, PhaseConflictCheck)
	paths, err := s.opts.Repo.ConflictedFiles(ctx)
	if err != nil {
		_, ferr := s.fail(sess, err, "Could not list the conflicted files.")
		return true, ferr
	}
	sess.Conflicts += len(paths)
	s.opts.Events.Conflicts(paths, false, conflict.DecisionNone)

	s.setPhase(sess, PhaseConflictResolution)
	set := conflict.NewSet(paths, source)
	outcome, err := s.opts.Resolver.Resolve(ctx, set)
	if outcome != conflict.Resolved {
		if err != nil {
			_, ferr := s.fail(sess, err, "Conflict resolution failed; the vault was rolled back.")
			return true, ferr
		}
		s.notify(conflict.LevelWarn, "Sync cancelled; the vault was rolled back to its previous state.")
		_, aerr := s.abort(sess, nil)
		return true, aerr
	}

	sess.Decision = decisionOf(set)
	s.opts.Events.Conflicts(paths, true, sess.Decision)

	if source == conflict.SourcePull {
		// Re-enter Resuming from here so the stash pop still happens.
		s.setPhase(sess, PhaseResuming)
		return s.popStash(ctx, sess)
	}
	return false, nil
}

// push flushes any queued commits and transmits this session's work.
// Connectivity failures degrade to a queued record; auth failures fail
// the session.
func (s *Syncer) push(ctx context.Context, sess *Session) (*Session, error) {
	pusher := pushAdapter{repo: s.opts.Repo, remote: s.opts.Remote, branch: s.opts.Branch}

	online := !sess.Offline
	if sess.Offline {
		// The network may have returned during the editing session.
		online = s.probeConnectivity(ctx)
	}
	if !online {
		return s.deferPush(sess, queue.ReasonConnectivity)
	}

	if s.opts.Queue.HasPending() {
		outcome, err := s.opts.Queue.TryFlush(ctx, pusher)
		s.opts.Events.Queue(string(queue.ReasonFromError(err)), s.opts.Queue.HasPending())
		switch outcome {
		case queue.AuthError:
			return s.fail(sess, err, "Authentication to the remote failed; queued changes were kept.")
		case queue.StillUnreachable:
			if err != nil {
				return s.fail(sess, err, "Could not update the queued changes record.")
			}
			return s.deferPush(sess, queue.ReasonConnectivity)
		}
		// Flushed: the queued push already transmitted everything,
		// including this session's commit.
		sess.Pushed = true
		return s.succeed(sess)
	}

	exists, err := s.opts.Repo.RemoteBranchExists(ctx, s.opts.Remote, s.opts.Branch)
	if err == nil && !exists {
		if err := s.opts.Repo.PushSetUpstream(ctx, s.opts.Remote, s.opts.Branch); err != nil {
			return s.pushFailed(sess, err)
		}
		sess.Pushed = true
		return s.succeed(sess)
	}

	ahead, _, err := s.opts.Repo.AheadBehind(ctx, s.opts.Remote, s.opts.Branch)
	if err != nil {
		if errors.Is(err, git.ErrNoRemoteBranch) {
			if err := s.opts.Repo.PushSetUpstream(ctx, s.opts.Remote, s.opts.Branch); err != nil {
				return s.pushFailed(sess, err)
			}
			sess.Pushed = true
			return s.succeed(sess)
		}
		return s.fail(sess, err, "Could not compare the vault with the remote.")
	}
	if ahead == 0 {
		s.log.Println("Nothing to push")
		return s.succeed(sess)
	}

	if err := s.opts.Repo.Push(ctx, s.opts.Remote, s.opts.Branch); err != nil {
		return s.pushFailed(sess, err)
	}
	if err := s.opts.Queue.Clear(); err != nil {
		s.log.Printf("Clearing queue record failed: %v", err)
	}
	sess.Pushed = true
	return s.succeed(sess)
}

// pushFailed routes a failed push: connectivity defers, anything else
// fails the session.
func (s *Syncer) pushFailed(sess *Session, err error) (*Session, error) {
	if errors.Is(err, git.ErrConnectivity) {
		return s.deferPush(sess, queue.ReasonConnectivity)
	}
	if errors.Is(err, git.ErrAuth) {
		return s.fail(sess, err, "Authentication to the remote failed; your commits are safe locally.")
	}
	return s.fail(sess, err, "Push failed; your commits are safe locally.")
}

// deferPush records unpushed work and completes the session
// offline-degraded. Local commits are never blocked on the network.
func (s *Syncer) deferPush(sess *Session, reason queue.Reason) (*Session, error) {
	count := 1
	if rec, err := s.opts.Queue.Pending(); err == nil && rec.Pending {
		count = rec.CommitCount
		if sess.Committed {
			count++
		}
	}
	if err := s.opts.Queue.Record(reason, count); err != nil {
		return s.fail(sess, err, "Could not record the pending push.")
	}
	s.opts.Events.Queue(string(reason), true)
	s.notify(conflict.LevelInfo, "Changes committed locally; they will be pushed when the remote is reachable.")

	sess.Offline = true
	sess.Phase = PhaseDone
	sess.Outcome = OutcomeSuccessOfflineDegraded
	s.opts.Events.Phase(PhaseDone)
	return sess, nil
}

func (s *Syncer) succeed(sess *Session) (*Session, error) {
	sess.Phase = PhaseDone
	sess.Outcome = OutcomeSuccess
	s.opts.Events.Phase(PhaseDone)
	s.log.Println("Sync complete")
	return sess, nil
}

func (s *Syncer) fail(sess *Session, err error, message string) (*Session, error) {
	failedIn := sess.Phase
	sess.Phase = PhaseFailed
	sess.Outcome = OutcomeFailed
	s.opts.Events.Phase(PhaseFailed)
	s.log.Printf("Sync failed in phase %s: %v", failedIn, err)
	if message != "" {
		s.notify(conflict.LevelError, message)
	}
	return sess, err
}

func (s *Syncer) abort(sess *Session, cause error) (*Session, error) {
	sess.Phase = PhaseAborted
	sess.Outcome = OutcomeAborted
	s.opts.Events.Phase(PhaseAborted)
	if cause != nil && !errors.Is(cause, context.Canceled) {
		return sess, cause
	}
	return sess, nil
}

func (s *Syncer) setPhase(sess *Session, p Phase) {
	sess.Phase = p
	s.log.Printf("Phase: %s", p)
	s.opts.Events.Phase(p)
}

func (s *Syncer) notify(level conflict.NotifyLevel, message string) {
	if s.opts.Notifier != nil {
		s.opts.Notifier.Notify(level, message)
	}
}

// probeConnectivity checks reachability of the remote's host, falling
// back to the default probe host when the remote URL is unparsable.
func (s *Syncer) probeConnectivity(ctx context.Context) bool {
	host, err := s.opts.Repo.RemoteHost(ctx, s.opts.Remote)
	if err != nil || host == "" {
		host = netcheck.DefaultHost
	}
	return s.opts.Net.Reachable(ctx, host)
}

// decisionOf extracts the batch decision recorded on a resolved set.
func decisionOf(set *conflict.Set) conflict.Decision {
	for _, d := range set.Decisions {
		return d
	}
	return conflict.DecisionNone
}
