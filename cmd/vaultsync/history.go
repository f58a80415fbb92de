package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/notevault/vaultsync/internal/config"
	"github.com/notevault/vaultsync/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent sync sessions",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum sessions to list")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fatalf("load configuration: %w", err)
	}

	stateDir, err := config.StateDir()
	if err != nil {
		return fatalf("%w", err)
	}

	store, err := history.Open(filepath.Join(stateDir, "history.db"))
	if err != nil {
		return fatalf("open history: %w", err)
	}
	defer store.Close()

	vault := ""
	if cfg.VaultPath != "" {
		if vault, err = filepath.Abs(cfg.VaultPath); err != nil {
			return fatalf("resolve vault path: %w", err)
		}
	}

	sessions, err := store.Recent(cmd.Context(), vault, historyLimit)
	if err != nil {
		return fatalf("read history: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tOUTCOME\tCONFLICTS\tDECISION\tPUSHED")
	for _, s := range sessions {
		pushed := "no"
		if s.Pushed {
			pushed = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			s.FinishedAt.Local().Format("2006-01-02 15:04"),
			s.Outcome, s.Conflicts, s.Decision, pushed)
	}
	return w.Flush()
}
