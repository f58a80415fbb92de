package git

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// setupTestRepo creates a temporary git repository for testing
func setupTestRepo(t *testing.T) (string, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "vaultsync-git-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	cmd := exec.Command("git", "init", "-b", "main")
	cmd.Dir = tmpDir
	if err := cmd.Run(); err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("failed to init git repo: %v", err)
	}

	// Configure git user for commits
	exec.Command("git", "-C", tmpDir, "config", "user.name", "Test User").Run()
	exec.Command("git", "-C", tmpDir, "config", "user.email", "test@example.com").Run()

	cleanup := func() {
		os.RemoveAll(tmpDir)
	}

	return tmpDir, cleanup
}

func mustGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

func TestIsRepo(t *testing.T) {
	repoPath, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewRepo(NewRunner(), repoPath)
	if !repo.IsRepo(ctx) {
		t.Error("IsRepo() = false for a git repository")
	}

	plainDir := t.TempDir()
	plain := NewRepo(NewRunner(), plainDir)
	if plain.IsRepo(ctx) {
		t.Error("IsRepo() = true for a plain directory")
	}
}

func TestCommitAndHasChanges(t *testing.T) {
	repoPath, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewRepo(NewRunner(), repoPath)

	writeFile(t, repoPath, "note.md", "# Note\n")

	dirty, err := repo.HasChanges(ctx)
	if err != nil {
		t.Fatalf("HasChanges() failed: %v", err)
	}
	if !dirty {
		t.Error("HasChanges() = false with untracked file")
	}

	if err := repo.Commit(ctx, "add note"); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	dirty, err = repo.HasChanges(ctx)
	if err != nil {
		t.Fatalf("HasChanges() failed: %v", err)
	}
	if dirty {
		t.Error("HasChanges() = true after commit")
	}

	if err := repo.Commit(ctx, "empty"); !errors.Is(err, ErrNothingToCommit) {
		t.Errorf("Commit() on clean tree = %v, want ErrNothingToCommit", err)
	}
}

func TestStashRoundTrip(t *testing.T) {
	repoPath, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewRepo(NewRunner(), repoPath)

	writeFile(t, repoPath, "note.md", "v1\n")
	if err := repo.Commit(ctx, "initial"); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	// Clean tree: stash is a no-op.
	stashed, err := repo.Stash(ctx)
	if err != nil {
		t.Fatalf("Stash() failed: %v", err)
	}
	if stashed {
		t.Error("Stash() = true on clean tree")
	}

	writeFile(t, repoPath, "note.md", "v2\n")
	writeFile(t, repoPath, "new.md", "untracked\n")

	stashed, err = repo.Stash(ctx)
	if err != nil {
		t.Fatalf("Stash() failed: %v", err)
	}
	if !stashed {
		t.Error("Stash() = false with dirty tree")
	}

	dirty, _ := repo.HasChanges(ctx)
	if dirty {
		t.Error("tree still dirty after stash")
	}

	if err := repo.StashPop(ctx); err != nil {
		t.Fatalf("StashPop() failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(repoPath, "note.md"))
	if err != nil || string(data) != "v2\n" {
		t.Errorf("note.md after pop = %q, %v; want v2", data, err)
	}
	if _, err := os.Stat(filepath.Join(repoPath, "new.md")); err != nil {
		t.Errorf("untracked file not restored: %v", err)
	}

	// Popping again with no stash entries is a no-op.
	if err := repo.StashPop(ctx); err != nil {
		t.Errorf("StashPop() with empty stash = %v, want nil", err)
	}
}

func TestStashPopConflict(t *testing.T) {
	repoPath, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewRepo(NewRunner(), repoPath)

	writeFile(t, repoPath, "note.md", "base\n")
	if err := repo.Commit(ctx, "initial"); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	writeFile(t, repoPath, "note.md", "stashed change\n")
	if _, err := repo.Stash(ctx); err != nil {
		t.Fatalf("Stash() failed: %v", err)
	}

	// Diverge the committed content so the pop conflicts.
	writeFile(t, repoPath, "note.md", "committed change\n")
	if err := repo.Commit(ctx, "diverge"); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	err := repo.StashPop(ctx)
	if !errors.Is(err, ErrConflicts) {
		t.Fatalf("StashPop() = %v, want ErrConflicts", err)
	}

	conflicted, err := repo.ConflictedFiles(ctx)
	if err != nil {
		t.Fatalf("ConflictedFiles() failed: %v", err)
	}
	if len(conflicted) != 1 || conflicted[0] != "note.md" {
		t.Errorf("ConflictedFiles() = %v, want [note.md]", conflicted)
	}
}

// setupRemotePair creates a bare origin plus two clones that have
// diverged on the same file.
func setupRemotePair(t *testing.T) (cloneA, cloneB string) {
	t.Helper()

	base := t.TempDir()
	origin := filepath.Join(base, "origin.git")
	cloneA = filepath.Join(base, "a")
	cloneB = filepath.Join(base, "b")

	if out, err := exec.Command("git", "init", "--bare", "-b", "main", origin).CombinedOutput(); err != nil {
		t.Fatalf("init bare failed: %v\n%s", err, out)
	}
	if out, err := exec.Command("git", "clone", origin, cloneA).CombinedOutput(); err != nil {
		t.Fatalf("clone failed: %v\n%s", err, out)
	}
	mustGit(t, cloneA, "config", "user.name", "Test User")
	mustGit(t, cloneA, "config", "user.email", "test@example.com")

	writeFile(t, cloneA, "note.md", "base\n")
	mustGit(t, cloneA, "add", "-A")
	mustGit(t, cloneA, "commit", "-m", "base")
	mustGit(t, cloneA, "push", "-u", "origin", "main")

	if out, err := exec.Command("git", "clone", origin, cloneB).CombinedOutput(); err != nil {
		t.Fatalf("clone failed: %v\n%s", err, out)
	}
	mustGit(t, cloneB, "config", "user.name", "Test User")
	mustGit(t, cloneB, "config", "user.email", "test@example.com")

	// B pushes a change; A commits a conflicting one.
	writeFile(t, cloneB, "note.md", "remote change\n")
	mustGit(t, cloneB, "add", "-A")
	mustGit(t, cloneB, "commit", "-m", "remote")
	mustGit(t, cloneB, "push", "origin", "main")

	writeFile(t, cloneA, "note.md", "local change\n")
	mustGit(t, cloneA, "add", "-A")
	mustGit(t, cloneA, "commit", "-m", "local")

	return cloneA, cloneB
}

func TestPullRebaseConflictAndResolve(t *testing.T) {
	cloneA, _ := setupRemotePair(t)

	ctx := context.Background()
	repo := NewRepo(NewRunner(), cloneA)

	err := repo.PullRebase(ctx, "origin", "main")
	if !errors.Is(err, ErrConflicts) {
		t.Fatalf("PullRebase() = %v, want ErrConflicts", err)
	}
	if !repo.InRebase(ctx) {
		t.Error("InRebase() = false mid-conflict")
	}

	conflicted, err := repo.ConflictedFiles(ctx)
	if err != nil {
		t.Fatalf("ConflictedFiles() failed: %v", err)
	}
	if len(conflicted) != 1 || conflicted[0] != "note.md" {
		t.Fatalf("ConflictedFiles() = %v, want [note.md]", conflicted)
	}

	remaining, err := repo.HasConflictMarkers(conflicted)
	if err != nil {
		t.Fatalf("HasConflictMarkers() failed: %v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("HasConflictMarkers() = %v, want note.md flagged", remaining)
	}

	if err := repo.CheckoutTheirs(ctx, conflicted); err != nil {
		t.Fatalf("CheckoutTheirs() failed: %v", err)
	}
	if err := repo.StagePaths(ctx, conflicted); err != nil {
		t.Fatalf("StagePaths() failed: %v", err)
	}
	if err := repo.RebaseContinue(ctx); err != nil {
		t.Fatalf("RebaseContinue() failed: %v", err)
	}

	if repo.InRebase(ctx) {
		t.Error("InRebase() = true after continue")
	}
	leftover, _ := repo.ConflictedFiles(ctx)
	if len(leftover) != 0 {
		t.Errorf("ConflictedFiles() = %v after resolution", leftover)
	}
}

func TestPullRebaseConflictAbort(t *testing.T) {
	cloneA, _ := setupRemotePair(t)

	ctx := context.Background()
	repo := NewRepo(NewRunner(), cloneA)

	if err := repo.PullRebase(ctx, "origin", "main"); !errors.Is(err, ErrConflicts) {
		t.Fatalf("PullRebase() = %v, want ErrConflicts", err)
	}
	if err := repo.RebaseAbort(ctx); err != nil {
		t.Fatalf("RebaseAbort() failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(cloneA, "note.md"))
	if err != nil || string(data) != "local change\n" {
		t.Errorf("note.md after abort = %q, %v; want pre-pull content", data, err)
	}
}

func TestAheadBehindAndPush(t *testing.T) {
	cloneA, _ := setupRemotePair(t)

	ctx := context.Background()
	repo := NewRepo(NewRunner(), cloneA)

	mustGit(t, cloneA, "fetch", "origin")
	ahead, behind, err := repo.AheadBehind(ctx, "origin", "main")
	if err != nil {
		t.Fatalf("AheadBehind() failed: %v", err)
	}
	if ahead != 1 || behind != 1 {
		t.Errorf("AheadBehind() = %d/%d, want 1/1 for diverged clones", ahead, behind)
	}

	exists, err := repo.RemoteBranchExists(ctx, "origin", "main")
	if err != nil {
		t.Fatalf("RemoteBranchExists() failed: %v", err)
	}
	if !exists {
		t.Error("RemoteBranchExists() = false for pushed branch")
	}

	exists, err = repo.RemoteBranchExists(ctx, "origin", "no-such-branch")
	if err != nil {
		t.Fatalf("RemoteBranchExists() failed: %v", err)
	}
	if exists {
		t.Error("RemoteBranchExists() = true for missing branch")
	}
}

func TestEnsureInitialCommit(t *testing.T) {
	repoPath, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewRepo(NewRunner(), repoPath)

	if repo.HasCommits(ctx) {
		t.Fatal("fresh repo reports commits")
	}

	if err := repo.EnsureInitialCommit(ctx, "first"); err != nil {
		t.Fatalf("EnsureInitialCommit() failed: %v", err)
	}
	if !repo.HasCommits(ctx) {
		t.Error("HasCommits() = false after bootstrap")
	}
	if _, err := os.Stat(filepath.Join(repoPath, "README.md")); err != nil {
		t.Errorf("placeholder README not created: %v", err)
	}

	// Idempotent on a repo that already has commits.
	if err := repo.EnsureInitialCommit(ctx, "again"); err != nil {
		t.Errorf("EnsureInitialCommit() second call = %v", err)
	}
}

func TestEnsureInitialCommitNonEmptyVault(t *testing.T) {
	repoPath, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewRepo(NewRunner(), repoPath)

	writeFile(t, repoPath, "existing.md", "notes\n")
	if err := repo.EnsureInitialCommit(ctx, "first"); err != nil {
		t.Fatalf("EnsureInitialCommit() failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(repoPath, "README.md")); !os.IsNotExist(err) {
		t.Error("placeholder README created despite existing content")
	}
}

func TestCurrentBranch(t *testing.T) {
	repoPath, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewRepo(NewRunner(), repoPath)

	writeFile(t, repoPath, "note.md", "x\n")
	if err := repo.Commit(ctx, "initial"); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	branch, err := repo.CurrentBranch(ctx)
	if err != nil {
		t.Fatalf("CurrentBranch() failed: %v", err)
	}
	if branch != "main" {
		t.Errorf("CurrentBranch() = %q, want main", branch)
	}
}

func TestParseRemoteHost(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"git@github.com:user/vault.git", "github.com"},
		{"https://github.com/user/vault.git", "github.com"},
		{"ssh://git@gitea.local:2222/user/vault.git", "gitea.local"},
		{"gitlab.com:user/vault.git", "gitlab.com"},
	}
	for _, tt := range tests {
		got, err := ParseRemoteHost(tt.raw)
		if err != nil {
			t.Errorf("ParseRemoteHost(%q) failed: %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRemoteHost(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}

	if _, err := ParseRemoteHost(":path-only"); err == nil {
		t.Error("ParseRemoteHost(\":path-only\") succeeded, want error")
	}
}

func TestContainsConflictMarker(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"clean", "# Note\nplain content\n", false},
		{"start marker", "<<<<<<< HEAD\nours\n=======\ntheirs\n>>>>>>> abc123\n", true},
		{"separator only", "before\n=======\nafter\n", true},
		{"mid-line arrows", "a <<<<<<< b\n", false},
		{"markdown rule lookalike", "title\n=====\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := containsConflictMarker(tt.text); got != tt.want {
				t.Errorf("containsConflictMarker() = %v, want %v", got, tt.want)
			}
		})
	}
}
