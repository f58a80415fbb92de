package git

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Repo exposes the repository operations the sync cycle needs, built on
// the Runner boundary. One Repo serves one vault working tree.
type Repo struct {
	runner Runner
	dir    string
}

// NewRepo returns a Repo for the vault at dir. The directory must be
// inside a git working tree; use IsRepo to probe first.
func NewRepo(runner Runner, dir string) *Repo {
	return &Repo{runner: runner, dir: dir}
}

// Dir returns the working tree path this Repo operates on.
func (r *Repo) Dir() string {
	return r.dir
}

func (r *Repo) git(ctx context.Context, args ...string) (Result, error) {
	res, err := r.runner.Run(ctx, r.dir, "git", args...)
	if err != nil {
		return res, fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return res, nil
}

// fail wraps a non-zero Result into a classified error, falling back to
// a generic wrapped error when no taxonomy pattern matches.
func fail(op string, res Result) error {
	if err := classify(res); err != nil {
		return fmt.Errorf("%s: %w: %s", op, err, res.Stderr)
	}
	return fmt.Errorf("%s failed (exit %d): %s", op, res.ExitCode, res.Combined())
}

// IsRepo reports whether the directory is inside a git working tree.
func (r *Repo) IsRepo(ctx context.Context) bool {
	res, err := r.git(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && res.ExitCode == 0
}

// GitDir returns the absolute path of the repository's .git directory.
func (r *Repo) GitDir(ctx context.Context) (string, error) {
	res, err := r.git(ctx, "rev-parse", "--git-dir")
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", ErrNotARepo
	}
	dir := res.Stdout
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(r.dir, dir)
	}
	return dir, nil
}

// CurrentBranch returns the checked-out branch name, or empty string in
// detached HEAD state.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	res, err := r.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fail("rev-parse", res)
	}
	if res.Stdout == "HEAD" {
		return "", nil
	}
	return res.Stdout, nil
}

// HasCommits reports whether the repository has at least one commit.
// False means HEAD is unborn (fresh init).
func (r *Repo) HasCommits(ctx context.Context) bool {
	res, err := r.git(ctx, "rev-parse", "--verify", "HEAD")
	return err == nil && res.ExitCode == 0
}

// HasChanges reports whether the working tree has uncommitted changes,
// including untracked files.
func (r *Repo) HasChanges(ctx context.Context) (bool, error) {
	res, err := r.git(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	if res.ExitCode != 0 {
		return false, fail("status", res)
	}
	return res.Stdout != "", nil
}

// ConflictedFiles returns the paths currently in unmerged state, in the
// order git reports them.
func (r *Repo) ConflictedFiles(ctx context.Context) ([]string, error) {
	res, err := r.git(ctx, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fail("diff", res)
	}
	if res.Stdout == "" {
		return nil, nil
	}
	return strings.Split(res.Stdout, "\n"), nil
}

// InRebase reports whether a rebase is in progress.
func (r *Repo) InRebase(ctx context.Context) bool {
	gitDir, err := r.GitDir(ctx)
	if err != nil {
		return false
	}
	for _, d := range []string{"rebase-merge", "rebase-apply"} {
		if _, err := os.Stat(filepath.Join(gitDir, d)); err == nil {
			return true
		}
	}
	return false
}

// Stash saves uncommitted changes, including untracked files. Returns
// true if anything was stashed. A clean tree is a no-op.
func (r *Repo) Stash(ctx context.Context) (bool, error) {
	dirty, err := r.HasChanges(ctx)
	if err != nil {
		return false, err
	}
	if !dirty {
		return false, nil
	}

	res, err := r.git(ctx, "stash", "push", "--include-untracked", "-m", "vaultsync auto-stash")
	if err != nil {
		return false, err
	}
	if res.ExitCode != 0 {
		return false, fmt.Errorf("stash: %w: %s", ErrWorkingTree, res.Combined())
	}
	return true, nil
}

// StashPop re-applies the most recent stash. A conflict during apply is
// returned as ErrConflicts; the stash entry is kept by git in that case.
func (r *Repo) StashPop(ctx context.Context) error {
	res, err := r.git(ctx, "stash", "pop")
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		if strings.Contains(res.Combined(), "No stash entries") {
			return nil
		}
		return fail("stash pop", res)
	}
	return nil
}

// PullRebase pulls the remote branch with rebase. Conflicted pulls
// return ErrConflicts and leave the repository mid-rebase for the
// resolver to finish or abort.
func (r *Repo) PullRebase(ctx context.Context, remote, branch string) error {
	res, err := r.git(ctx, "pull", "--rebase", remote, branch)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fail("pull", res)
	}
	return nil
}

// CheckoutOurs resolves the given conflicted paths to the local side.
func (r *Repo) CheckoutOurs(ctx context.Context, paths []string) error {
	return r.checkoutSide(ctx, "--ours", paths)
}

// CheckoutTheirs resolves the given conflicted paths to the remote side.
func (r *Repo) CheckoutTheirs(ctx context.Context, paths []string) error {
	return r.checkoutSide(ctx, "--theirs", paths)
}

func (r *Repo) checkoutSide(ctx context.Context, side string, paths []string) error {
	args := append([]string{"checkout", side, "--"}, paths...)
	res, err := r.git(ctx, args...)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fail("checkout "+side, res)
	}
	return nil
}

// StageAll stages every change in the working tree.
func (r *Repo) StageAll(ctx context.Context) error {
	res, err := r.git(ctx, "add", "-A")
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fail("add", res)
	}
	return nil
}

// StagePaths stages the named paths.
func (r *Repo) StagePaths(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"add", "--"}, paths...)
	res, err := r.git(ctx, args...)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fail("add", res)
	}
	return nil
}

// RebaseContinue resumes a rebase after conflicts were staged.
func (r *Repo) RebaseContinue(ctx context.Context) error {
	res, err := r.runner.Run(ctx, r.dir, "git", "-c", "core.editor=true", "rebase", "--continue")
	if err != nil {
		return fmt.Errorf("git rebase --continue: %w", err)
	}
	if res.ExitCode != 0 {
		return fail("rebase --continue", res)
	}
	return nil
}

// RebaseAbort abandons an in-progress rebase, restoring the pre-pull
// state.
func (r *Repo) RebaseAbort(ctx context.Context) error {
	res, err := r.git(ctx, "rebase", "--abort")
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fail("rebase --abort", res)
	}
	return nil
}

// Commit stages everything and commits with the given message. Returns
// ErrNothingToCommit when the tree is clean.
func (r *Repo) Commit(ctx context.Context, message string) error {
	if err := r.StageAll(ctx); err != nil {
		return err
	}

	res, err := r.git(ctx, "commit", "-m", message)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		if strings.Contains(strings.ToLower(res.Combined()), "nothing to commit") {
			return ErrNothingToCommit
		}
		return fail("commit", res)
	}
	return nil
}

// AheadBehind returns how many commits HEAD is ahead of and behind the
// remote tracking branch. Requires a prior fetch for accuracy; callers
// that only need "anything unpushed" can use it right after a push
// attempt.
func (r *Repo) AheadBehind(ctx context.Context, remote, branch string) (ahead, behind int, err error) {
	res, err := r.git(ctx, "rev-list", "--left-right", "--count",
		fmt.Sprintf("HEAD...%s/%s", remote, branch))
	if err != nil {
		return 0, 0, err
	}
	if res.ExitCode != 0 {
		return 0, 0, fmt.Errorf("rev-list: %w", ErrNoRemoteBranch)
	}

	fields := strings.Fields(res.Stdout)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("rev-list: unexpected output %q", res.Stdout)
	}
	ahead, _ = strconv.Atoi(fields[0])
	behind, _ = strconv.Atoi(fields[1])
	return ahead, behind, nil
}

// Fetch updates remote tracking refs.
func (r *Repo) Fetch(ctx context.Context, remote string) error {
	res, err := r.git(ctx, "fetch", remote)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fail("fetch", res)
	}
	return nil
}

// Push transmits local commits to the remote branch.
func (r *Repo) Push(ctx context.Context, remote, branch string) error {
	res, err := r.git(ctx, "push", remote, branch)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fail("push", res)
	}
	return nil
}

// PushSetUpstream pushes and records the upstream tracking branch. Used
// when the remote branch does not exist yet.
func (r *Repo) PushSetUpstream(ctx context.Context, remote, branch string) error {
	res, err := r.git(ctx, "push", "-u", remote, branch)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fail("push -u", res)
	}
	return nil
}

// RemoteBranchExists reports whether the branch exists on the remote.
// Network errors are classified like any other remote operation.
func (r *Repo) RemoteBranchExists(ctx context.Context, remote, branch string) (bool, error) {
	res, err := r.git(ctx, "ls-remote", "--heads", remote, branch)
	if err != nil {
		return false, err
	}
	if res.ExitCode != 0 {
		return false, fail("ls-remote", res)
	}
	return res.Stdout != "", nil
}

// RemoteURL returns the fetch URL of the named remote.
func (r *Repo) RemoteURL(ctx context.Context, remote string) (string, error) {
	res, err := r.git(ctx, "remote", "get-url", remote)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fail("remote get-url", res)
	}
	return res.Stdout, nil
}

// RemoteHost extracts the host name from the remote URL, for the
// connectivity probe. Handles both scp-like and URL syntax.
func (r *Repo) RemoteHost(ctx context.Context, remote string) (string, error) {
	raw, err := r.RemoteURL(ctx, remote)
	if err != nil {
		return "", err
	}
	return ParseRemoteHost(raw)
}

// ParseRemoteHost extracts the host from a git remote URL.
// Supports "git@host:path", "ssh://git@host/path" and "https://host/path".
func ParseRemoteHost(raw string) (string, error) {
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("parse remote url %q: %w", raw, err)
		}
		return u.Hostname(), nil
	}

	// scp-like syntax: [user@]host:path
	hostPart := raw
	if at := strings.Index(hostPart, "@"); at >= 0 {
		hostPart = hostPart[at+1:]
	}
	if colon := strings.Index(hostPart, ":"); colon >= 0 {
		hostPart = hostPart[:colon]
	}
	if hostPart == "" {
		return "", fmt.Errorf("cannot determine host from remote url %q", raw)
	}
	return hostPart, nil
}

// HasConflictMarkers scans the given working tree paths for unresolved
// conflict markers and returns the subset still containing them.
// Missing files are skipped: a path deleted during manual resolution is
// not a lingering conflict.
func (r *Repo) HasConflictMarkers(paths []string) ([]string, error) {
	var remaining []string
	for _, p := range paths {
		data, err := os.ReadFile(filepath.Join(r.dir, p))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("scan %s: %w", p, err)
		}
		if containsConflictMarker(string(data)) {
			remaining = append(remaining, p)
		}
	}
	return remaining, nil
}

// containsConflictMarker reports whether text has a git conflict marker
// at the start of a line.
func containsConflictMarker(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "<<<<<<< ") ||
			line == "=======" ||
			strings.HasPrefix(line, ">>>>>>> ") {
			return true
		}
	}
	return false
}

// EnsureInitialCommit bootstraps an unborn repository: writes a
// placeholder README if the vault is empty, then creates the first
// commit. No-op when a commit already exists.
func (r *Repo) EnsureInitialCommit(ctx context.Context, message string) error {
	if r.HasCommits(ctx) {
		return nil
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("read vault dir: %w", err)
	}
	empty := true
	for _, e := range entries {
		if e.Name() == ".git" {
			continue
		}
		empty = false
		break
	}
	if empty {
		readme := filepath.Join(r.dir, "README.md")
		content := "# Vault\n\nThis placeholder file was generated automatically to initialize the repository.\n"
		if err := os.WriteFile(readme, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write placeholder: %w", err)
		}
	}

	if err := r.Commit(ctx, message); err != nil {
		return fmt.Errorf("initial commit: %w", err)
	}
	return nil
}
