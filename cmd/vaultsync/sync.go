package main

import (
	"context"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/notevault/vaultsync/internal/conflict"
	"github.com/notevault/vaultsync/internal/config"
	"github.com/notevault/vaultsync/internal/editor"
	"github.com/notevault/vaultsync/internal/git"
	"github.com/notevault/vaultsync/internal/history"
	"github.com/notevault/vaultsync/internal/monitor"
	"github.com/notevault/vaultsync/internal/netcheck"
	"github.com/notevault/vaultsync/internal/queue"
	"github.com/notevault/vaultsync/internal/syncer"
	"github.com/notevault/vaultsync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one full sync cycle (the default command)",
	RunE:  runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fatalf("load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fatalf("invalid configuration: %w", err)
	}

	newLogger, closer := newLoggers(cfg)
	defer closer.Close()
	logger := newLogger("sync")

	stateDir, err := config.StateDir()
	if err != nil {
		return fatalf("%w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vault, err := filepath.Abs(cfg.VaultPath)
	if err != nil {
		return fatalf("resolve vault path: %w", err)
	}

	runner := &git.ExecRunner{Timeout: cfg.NetTimeout}
	repo := git.NewRepo(runner, vault)
	terminal := ui.NewTerminal(newLogger("ui"))
	resolver := conflict.NewResolver(repo, terminal, newLogger("conflict"))
	store := queue.NewStore(stateDir, vault)

	var events syncer.Events = syncer.NopEvents{}
	if flagMonitor || cfg.Monitor.Enabled {
		server := monitor.NewServer(cfg.Monitor.Port, newLogger("monitor"))
		if err := server.Start(); err != nil {
			return fatalf("%w", err)
		}
		defer server.Stop()
		events = monitorEvents{server: server}
	}

	s := syncer.New(syncer.Options{
		VaultPath:            vault,
		Remote:               cfg.Remote,
		Branch:               cfg.Branch,
		CommitMessage:        cfg.CommitMessage,
		InitialCommitMessage: cfg.InitialCommitMessage,
		LockDir:              stateDir,
		Repo:                 repo,
		Resolver:             resolver,
		Queue:                store,
		Editor:               editor.CommandLauncher{Command: cfg.EditorCommand},
		Net:                  netcheck.TCPChecker{Timeout: cfg.NetTimeout},
		Notifier:             terminal,
		Events:               events,
		Logger:               logger,
	})

	sess, runErr := s.Run(ctx)
	recordHistory(stateDir, sess, logger.Printf)

	if runErr != nil {
		return fatalf("sync failed: %w", runErr)
	}
	return nil
}

// recordHistory appends the session to the local history log.
// Best-effort: a broken history database never fails the sync.
func recordHistory(stateDir string, sess *syncer.Session, logf func(string, ...any)) {
	store, err := history.Open(filepath.Join(stateDir, "history.db"))
	if err != nil {
		logf("History unavailable: %v", err)
		return
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = store.RecordSession(ctx, history.Session{
		VaultPath:  sess.VaultPath,
		StartedAt:  sess.StartedAt,
		FinishedAt: time.Now().UTC(),
		Outcome:    sess.Outcome.String(),
		Phase:      sess.Phase.String(),
		Conflicts:  sess.Conflicts,
		Decision:   sess.Decision.String(),
		Pushed:     sess.Pushed,
	})
	if err != nil {
		logf("Recording session history failed: %v", err)
	}
}

// monitorEvents bridges syncer callbacks onto the websocket feed.
type monitorEvents struct {
	server *monitor.Server
}

func (m monitorEvents) Phase(p syncer.Phase) {
	m.server.Publish(monitor.NewEvent(monitor.EventPhaseChange, map[string]string{
		"phase": p.String(),
	}))
}

func (m monitorEvents) Conflicts(paths []string, resolved bool, d conflict.Decision) {
	m.server.Publish(monitor.NewEvent(monitor.EventConflict, map[string]any{
		"paths":    paths,
		"resolved": resolved,
		"decision": d.String(),
	}))
}

func (m monitorEvents) Queue(reason string, pending bool) {
	m.server.Publish(monitor.NewEvent(monitor.EventQueue, map[string]any{
		"reason":  reason,
		"pending": pending,
	}))
}

func (m monitorEvents) Done(o syncer.Outcome) {
	m.server.Publish(monitor.NewEvent(monitor.EventSessionDone, map[string]string{
		"outcome": o.String(),
	}))
}
