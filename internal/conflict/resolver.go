package conflict

import (
	"context"
	"fmt"
	"log"
	"os"
)

// Resolver is the conflict resolution state machine.
type Resolver struct {
	repo   Repository
	ui     UI
	logger *log.Logger
}

// NewResolver builds a Resolver. A nil logger falls back to a stderr
// logger.
func NewResolver(repo Repository, ui UI, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.New(os.Stderr, "[conflict] ", log.LstdFlags)
	}
	return &Resolver{repo: repo, ui: ui, logger: logger}
}

// Resolve drives the set to completion. It returns Resolved only once
// the working tree holds no conflicted paths and no conflict markers;
// on Aborted the repository is left pre-pull (rebase aborted) or, for
// stash-apply conflicts, flagged conflicted for the user.
func (r *Resolver) Resolve(ctx context.Context, set *Set) (Outcome, error) {
	if len(set.Paths) == 0 {
		set.Complete = true
		return Resolved, nil
	}

	r.logger.Printf("Resolving %d conflicted file(s)", len(set.Paths))

	decision, err := r.ui.PromptConflict(set.Paths)
	if err != nil {
		return r.abort(ctx, set, fmt.Errorf("conflict prompt: %w", err))
	}

	switch decision {
	case DecisionKeepLocal:
		return r.resolveTakeSide(ctx, set, DecisionKeepLocal)
	case DecisionKeepRemote:
		return r.resolveTakeSide(ctx, set, DecisionKeepRemote)
	case DecisionMergeManually:
		return r.resolveManually(ctx, set)
	case DecisionNone:
		r.logger.Println("Conflict dialog cancelled")
		return r.abort(ctx, set, nil)
	default:
		return r.abort(ctx, set, fmt.Errorf("unknown decision %d", decision))
	}
}

// resolveTakeSide applies keep-local or keep-remote to the whole batch.
func (r *Resolver) resolveTakeSide(ctx context.Context, set *Set, d Decision) (Outcome, error) {
	r.logger.Printf("Applying %s to %d file(s)", d, len(set.Paths))

	var err error
	if d == DecisionKeepLocal {
		err = r.repo.CheckoutOurs(ctx, set.Paths)
	} else {
		err = r.repo.CheckoutTheirs(ctx, set.Paths)
	}
	if err != nil {
		return r.abort(ctx, set, fmt.Errorf("apply %s: %w", d, err))
	}

	if err := r.stageWithRetry(ctx, set.Paths); err != nil {
		return r.abort(ctx, set, err)
	}

	return r.finish(ctx, set, d)
}

// resolveManually waits for the user to edit the conflicted files and
// confirm, re-scanning for markers until none remain. Lingering markers
// re-prompt rather than completing.
func (r *Resolver) resolveManually(ctx context.Context, set *Set) (Outcome, error) {
	r.ui.Notify(LevelInfo, "Resolve the conflicts in your editor, then confirm here.")

	// Best effort: watch conflicted files so the confirm prompt can
	// show which ones were saved. Resolution works without it.
	watcher, err := NewSaveWatcher(r.repo.Dir(), set.Paths)
	if err != nil {
		r.logger.Printf("Save watcher unavailable: %v", err)
		watcher = nil
	}
	if watcher != nil {
		defer watcher.Close()
	}

	for {
		if err := ctx.Err(); err != nil {
			return r.abort(ctx, set, err)
		}

		var changed []string
		if watcher != nil {
			changed = watcher.Changed()
		}

		done, err := r.ui.ConfirmManualMergeComplete(changed)
		if err != nil {
			return r.abort(ctx, set, fmt.Errorf("manual merge confirm: %w", err))
		}
		if !done {
			r.logger.Println("Manual merge cancelled")
			return r.abort(ctx, set, nil)
		}

		remaining, err := r.repo.HasConflictMarkers(set.Paths)
		if err != nil {
			return r.abort(ctx, set, fmt.Errorf("marker scan: %w", err))
		}
		if len(remaining) == 0 {
			break
		}

		r.ui.Notify(LevelWarn, fmt.Sprintf(
			"%d file(s) still contain conflict markers; keep editing and confirm again.",
			len(remaining)))
	}

	if err := r.stageWithRetry(ctx, set.Paths); err != nil {
		return r.abort(ctx, set, err)
	}

	return r.finish(ctx, set, DecisionMergeManually)
}

// finish completes the in-progress operation and verifies the tree is
// conflict-free before declaring Resolved.
func (r *Resolver) finish(ctx context.Context, set *Set, d Decision) (Outcome, error) {
	if set.Source == SourcePull {
		if err := r.repo.RebaseContinue(ctx); err != nil {
			return r.abort(ctx, set, fmt.Errorf("rebase continue: %w", err))
		}
	}

	leftover, err := r.repo.ConflictedFiles(ctx)
	if err != nil {
		return r.abort(ctx, set, err)
	}
	if len(leftover) > 0 {
		return r.abort(ctx, set, fmt.Errorf("%d path(s) still conflicted after %s", len(leftover), d))
	}

	set.markAll(d)
	set.Complete = true
	r.logger.Printf("Conflicts resolved via %s", d)
	return Resolved, nil
}

// stageWithRetry stages the resolved paths, retrying a failed staging
// once before giving up.
func (r *Resolver) stageWithRetry(ctx context.Context, paths []string) error {
	err := r.repo.StagePaths(ctx, paths)
	if err == nil {
		return nil
	}

	r.logger.Printf("Staging failed, retrying once: %v", err)
	if err := r.repo.StagePaths(ctx, paths); err != nil {
		return fmt.Errorf("stage resolved files: %w", err)
	}
	return nil
}

// abort restores a deterministic state: pull conflicts roll back the
// rebase to the pre-pull tree; stash-apply conflicts stay in place and
// are reported so the user knows the tree is flagged conflicted.
func (r *Resolver) abort(ctx context.Context, set *Set, cause error) (Outcome, error) {
	if set.Source == SourcePull {
		// Use a fresh context: the abort must run even when the
		// caller's context was what cancelled us.
		abortCtx := ctx
		if ctx.Err() != nil {
			abortCtx = context.Background()
		}
		if err := r.repo.RebaseAbort(abortCtx); err != nil {
			r.logger.Printf("Rebase abort failed: %v", err)
			r.ui.Notify(LevelError, "Could not roll back the pull; the vault may need manual cleanup.")
		}
	} else {
		r.ui.Notify(LevelWarn, "Vault left with unresolved conflicts; resolve them before the next sync.")
	}

	set.Complete = false
	if cause != nil {
		return Aborted, cause
	}
	return Aborted, nil
}
