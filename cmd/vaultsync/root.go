package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/notevault/vaultsync/internal/config"
	"github.com/notevault/vaultsync/internal/logging"
)

var (
	flagVault   string
	flagEditor  string
	flagQuiet   bool
	flagMonitor bool
)

var rootCmd = &cobra.Command{
	Use:   "vaultsync",
	Short: "Keep a note vault in sync with its git remote around editing sessions",
	Long: `vaultsync wraps one editing session in a full sync cycle:

  1. Set aside local changes and pull the latest notes
  2. Resolve any merge conflicts interactively
  3. Launch your editor and wait for it to close
  4. Commit and push what changed

When the remote is unreachable the cycle still completes locally and
queues the push for a later run.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSync,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagVault, "vault", "", "vault directory (overrides vault_path)")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress log output on stderr")
	rootCmd.PersistentFlags().StringVar(&flagEditor, "editor", "", "editor command (overrides editor_command)")
	rootCmd.PersistentFlags().BoolVar(&flagMonitor, "monitor", false, "serve the live event feed while syncing")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(flushCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
}

// loadConfig reads configuration and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flagVault != "" {
		cfg.VaultPath = flagVault
	}
	if flagEditor != "" {
		cfg.EditorCommand = flagEditor
	}
	return cfg, nil
}

// newLoggers builds the prefix logger factory from config and flags.
func newLoggers(cfg *config.Config) (func(prefix string) *log.Logger, io.Closer) {
	return logging.New(logging.Options{File: cfg.LogFile, Quiet: flagQuiet})
}

func fatalf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return err
}
