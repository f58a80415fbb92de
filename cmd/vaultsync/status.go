package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/notevault/vaultsync/internal/config"
	"github.com/notevault/vaultsync/internal/git"
	"github.com/notevault/vaultsync/internal/history"
	"github.com/notevault/vaultsync/internal/queue"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vault, queue, and last session state",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fatalf("load configuration: %w", err)
	}
	if cfg.VaultPath == "" {
		return fatalf("vault_path is not configured")
	}

	stateDir, err := config.StateDir()
	if err != nil {
		return fatalf("%w", err)
	}
	vault, err := filepath.Abs(cfg.VaultPath)
	if err != nil {
		return fatalf("resolve vault path: %w", err)
	}

	fmt.Printf("Vault:  %s\n", vault)
	fmt.Printf("Remote: %s/%s\n", cfg.Remote, cfg.Branch)

	ctx := cmd.Context()
	runner := &git.ExecRunner{Timeout: cfg.NetTimeout}
	repo := git.NewRepo(runner, vault)
	if !repo.IsRepo(ctx) {
		fmt.Println("State:  not a git repository")
		return nil
	}
	if dirty, err := repo.HasChanges(ctx); err == nil {
		if dirty {
			fmt.Println("State:  uncommitted changes")
		} else {
			fmt.Println("State:  clean")
		}
	}

	store := queue.NewStore(stateDir, vault)
	rec, err := store.Pending()
	switch {
	case err != nil:
		fmt.Printf("Queue:  unreadable (%v)\n", err)
	case rec.Pending:
		policy := queue.Policy{
			Exponential:  cfg.Queue.Backoff == "exponential",
			BaseInterval: cfg.Queue.BaseInterval,
			MaxInterval:  cfg.Queue.MaxInterval,
		}
		next := rec.LastAttempt.Add(policy.NextDelay(rec.Attempts))
		fmt.Printf("Queue:  %d commit(s) pending (%s, attempt %d, retry after %s)\n",
			rec.CommitCount, rec.LastReason, rec.Attempts, next.Local().Format(time.Kitchen))
	default:
		fmt.Println("Queue:  empty")
	}

	printLastSession(ctx, stateDir, vault)
	return nil
}

func printLastSession(ctx context.Context, stateDir, vault string) {
	store, err := history.Open(filepath.Join(stateDir, "history.db"))
	if err != nil {
		return
	}
	defer store.Close()

	sessions, err := store.Recent(ctx, vault, 1)
	if err != nil || len(sessions) == 0 {
		return
	}
	last := sessions[0]
	fmt.Printf("Last:   %s at %s", last.Outcome, last.FinishedAt.Local().Format("2006-01-02 15:04"))
	if last.Conflicts > 0 {
		fmt.Printf(" (%d conflict(s), %s)", last.Conflicts, last.Decision)
	}
	fmt.Println()
}
