package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/notevault/vaultsync/internal/config"
	"github.com/notevault/vaultsync/internal/git"
	"github.com/notevault/vaultsync/internal/lock"
	"github.com/notevault/vaultsync/internal/queue"
)

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Push queued commits from an earlier offline session",
	RunE:  runFlush,
}

// repoPusher adapts the repository boundary to the queue's Pusher.
type repoPusher struct {
	repo   *git.Repo
	remote string
	branch string
}

func (p repoPusher) Push(ctx context.Context) error {
	return p.repo.Push(ctx, p.remote, p.branch)
}

func runFlush(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fatalf("load configuration: %w", err)
	}
	if cfg.VaultPath == "" {
		return fatalf("vault_path is not configured")
	}

	newLogger, closer := newLoggers(cfg)
	defer closer.Close()
	logger := newLogger("flush")

	stateDir, err := config.StateDir()
	if err != nil {
		return fatalf("%w", err)
	}
	vault, err := filepath.Abs(cfg.VaultPath)
	if err != nil {
		return fatalf("resolve vault path: %w", err)
	}

	held, err := lock.Acquire(stateDir, vault)
	if err != nil {
		return fatalf("%w", err)
	}
	defer held.Release()

	store := queue.NewStore(stateDir, vault)
	if !store.HasPending() {
		fmt.Println("Nothing queued.")
		return nil
	}

	runner := &git.ExecRunner{Timeout: cfg.NetTimeout}
	repo := git.NewRepo(runner, vault)

	outcome, err := store.TryFlush(cmd.Context(), repoPusher{
		repo:   repo,
		remote: cfg.Remote,
		branch: cfg.Branch,
	})
	logger.Printf("Flush attempt: %s", outcome)

	switch outcome {
	case queue.Flushed:
		fmt.Println("Queued commits pushed.")
		return nil
	case queue.AuthError:
		return fatalf("push rejected by the remote: %w", err)
	default:
		rec, _ := store.Pending()
		fmt.Printf("Remote still unreachable (attempt %d); commits remain queued.\n", rec.Attempts)
		return nil
	}
}
