package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("VAULTSYNC_CONFIG_DIR", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() without config file failed: %v", err)
	}

	if cfg.Remote != "origin" {
		t.Errorf("Remote = %q, want origin", cfg.Remote)
	}
	if cfg.Branch != "main" {
		t.Errorf("Branch = %q, want main", cfg.Branch)
	}
	if cfg.CommitMessage != "Auto sync commit" {
		t.Errorf("CommitMessage = %q", cfg.CommitMessage)
	}
	if cfg.InitialCommitMessage != "Initial commit (auto-sync)" {
		t.Errorf("InitialCommitMessage = %q", cfg.InitialCommitMessage)
	}
	if cfg.NetTimeout != 30*time.Second {
		t.Errorf("NetTimeout = %v, want 30s", cfg.NetTimeout)
	}
	if cfg.Queue.Backoff != "fixed" || cfg.Queue.BaseInterval != time.Minute {
		t.Errorf("Queue = %+v, want fixed/1m defaults", cfg.Queue)
	}
	if cfg.Monitor.Enabled {
		t.Error("Monitor enabled by default")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VAULTSYNC_CONFIG_DIR", dir)

	content := `vault_path: /home/user/notes
editor_command: obsidian
branch: notes
queue:
  backoff: exponential
  base_interval: 2m
monitor:
  enabled: true
  port: 9100
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.VaultPath != "/home/user/notes" {
		t.Errorf("VaultPath = %q", cfg.VaultPath)
	}
	if cfg.EditorCommand != "obsidian" {
		t.Errorf("EditorCommand = %q", cfg.EditorCommand)
	}
	if cfg.Branch != "notes" {
		t.Errorf("Branch = %q, want notes", cfg.Branch)
	}
	if cfg.Remote != "origin" {
		t.Errorf("Remote = %q, default lost", cfg.Remote)
	}
	if cfg.Queue.Backoff != "exponential" || cfg.Queue.BaseInterval != 2*time.Minute {
		t.Errorf("Queue = %+v", cfg.Queue)
	}
	if !cfg.Monitor.Enabled || cfg.Monitor.Port != 9100 {
		t.Errorf("Monitor = %+v", cfg.Monitor)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("VAULTSYNC_CONFIG_DIR", t.TempDir())
	t.Setenv("VAULTSYNC_BRANCH", "laptop")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Branch != "laptop" {
		t.Errorf("Branch = %q, want env override laptop", cfg.Branch)
	}
}

func TestValidate(t *testing.T) {
	vault := t.TempDir()

	valid := &Config{
		VaultPath:     vault,
		EditorCommand: "obsidian",
		Queue:         QueueConfig{Backoff: "fixed"},
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() = %v for valid config", err)
	}

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing vault", Config{EditorCommand: "obsidian", Queue: QueueConfig{Backoff: "fixed"}}},
		{"missing editor", Config{VaultPath: vault, Queue: QueueConfig{Backoff: "fixed"}}},
		{"vault not a dir", Config{VaultPath: filepath.Join(vault, "missing"), EditorCommand: "x", Queue: QueueConfig{Backoff: "fixed"}}},
		{"bad backoff", Config{VaultPath: vault, EditorCommand: "x", Queue: QueueConfig{Backoff: "sometimes"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestStateDirOverride(t *testing.T) {
	t.Setenv("VAULTSYNC_STATE_DIR", "/tmp/vaultsync-state")

	dir, err := StateDir()
	if err != nil {
		t.Fatalf("StateDir() failed: %v", err)
	}
	if dir != "/tmp/vaultsync-state" {
		t.Errorf("StateDir() = %q", dir)
	}
}
