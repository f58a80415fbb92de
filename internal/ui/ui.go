// Package ui is the terminal implementation of the user interaction
// surface: conflict prompts, manual-merge confirmation, and status
// notifications.
//
// Prompts require an interactive terminal. Without one they fail
// closed: a prompt that cannot be shown reads as a cancelled dialog,
// so an unattended run aborts instead of guessing a resolution.
package ui

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/notevault/vaultsync/internal/conflict"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	pathStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

// Terminal renders prompts and notifications on the controlling
// terminal. It satisfies conflict.UI.
type Terminal struct {
	interactive bool
	logger      *log.Logger
}

// NewTerminal builds the surface, detecting interactivity and the
// terminal's color capabilities once at startup.
func NewTerminal(logger *log.Logger) *Terminal {
	if logger == nil {
		logger = log.New(os.Stderr, "[ui] ", log.LstdFlags)
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd())) &&
		term.IsTerminal(int(os.Stdout.Fd()))

	lipgloss.SetColorProfile(termenv.EnvColorProfile())

	return &Terminal{interactive: interactive, logger: logger}
}

// Interactive reports whether prompts can be shown.
func (t *Terminal) Interactive() bool {
	return t.interactive
}

// PromptConflict presents the conflicted paths and the three
// resolution strategies. A cancelled dialog returns DecisionNone.
func (t *Terminal) PromptConflict(paths []string) (conflict.Decision, error) {
	if !t.interactive {
		t.logger.Println("Conflict prompt skipped: no interactive terminal")
		return conflict.DecisionNone, nil
	}

	fmt.Fprintln(os.Stderr, headerStyle.Render("Merge conflict detected"))
	for _, p := range paths {
		fmt.Fprintln(os.Stderr, pathStyle.Render("  "+p))
	}

	decision := conflict.DecisionNone
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[conflict.Decision]().
			Title("How should these conflicts be resolved?").
			Description("The choice applies to all conflicted files.").
			Options(
				huh.NewOption("Keep local changes (your version)", conflict.DecisionKeepLocal),
				huh.NewOption("Keep remote changes (server version)", conflict.DecisionKeepRemote),
				huh.NewOption("Merge manually in your editor", conflict.DecisionMergeManually),
			).
			Value(&decision),
	))

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return conflict.DecisionNone, nil
		}
		return conflict.DecisionNone, fmt.Errorf("conflict prompt: %w", err)
	}
	return decision, nil
}

// ConfirmManualMergeComplete asks whether the user finished editing the
// conflicted files. changed lists files saved since the last prompt.
func (t *Terminal) ConfirmManualMergeComplete(changed []string) (bool, error) {
	if !t.interactive {
		return false, nil
	}

	description := "Confirm once every conflicted file has been edited and saved."
	if len(changed) > 0 {
		description = fmt.Sprintf("Saved since last check: %s", strings.Join(changed, ", "))
	}

	done := false
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Finished resolving the conflicts?").
			Description(description).
			Affirmative("Done").
			Negative("Cancel sync").
			Value(&done),
	))

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, fmt.Errorf("manual merge prompt: %w", err)
	}
	return done, nil
}

// Notify prints a status line. Notifications never block.
func (t *Terminal) Notify(level conflict.NotifyLevel, message string) {
	var rendered string
	switch level {
	case conflict.LevelWarn:
		rendered = warnStyle.Render("! ") + message
	case conflict.LevelError:
		rendered = errorStyle.Render("✗ ") + message
	default:
		rendered = infoStyle.Render("• ") + message
	}
	fmt.Fprintln(os.Stderr, rendered)
	t.logger.Println(message)
}
