// Package ui provides styled terminal output helpers for the CLI.
package ui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/northapp/northsync/internal/model"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6e3a1"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#f9e2af"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#f38ba8"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#89b4fa")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6c7086"))

	colorEnabled = termenv.NewOutput(os.Stdout).ColorProfile() != termenv.Ascii
)

func render(style lipgloss.Style, s string) string {
	if !colorEnabled {
		return s
	}
	return style.Render(s)
}

// RenderPass styles text for successful outcomes.
func RenderPass(s string) string { return render(passStyle, s) }

// RenderWarn styles text for outcomes needing attention.
func RenderWarn(s string) string { return render(warnStyle, s) }

// RenderFail styles text for failures.
func RenderFail(s string) string { return render(failStyle, s) }

// RenderAccent styles headings and identifiers.
func RenderAccent(s string) string { return render(accentStyle, s) }

// RenderMuted styles secondary detail.
func RenderMuted(s string) string { return render(mutedStyle, s) }

// FormatAmount renders a minor-unit amount as a currency string.
// Negative amounts keep the sign before the symbol: -$12.34.
func FormatAmount(minor int64, currency string) string {
	symbol := "$"
	switch currency {
	case "EUR":
		symbol = "€"
	case "GBP":
		symbol = "£"
	}
	neg := ""
	if minor < 0 {
		neg = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%s%d.%02d", neg, symbol, minor/100, minor%100)
}

// FormatStatus renders a sync status with outcome-appropriate color.
func FormatStatus(s model.SyncStatus) string {
	switch s {
	case model.StatusSuccess:
		return RenderPass(string(s))
	case model.StatusFailed:
		return RenderFail(string(s))
	case model.StatusConflictPending:
		return RenderWarn(string(s))
	case model.StatusSyncing:
		return RenderAccent(string(s))
	default:
		return RenderMuted(string(s))
	}
}
