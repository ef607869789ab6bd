// Package ui provides terminal styling for boardsync CLI output.
package ui

import (
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// IsTerminal reports whether stdout is attached to a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColor decides whether output gets styled. NO_COLOR and CLICOLOR=0
// disable color; CLICOLOR_FORCE enables it even without a TTY; otherwise
// color follows the terminal.
//
// NO_COLOR wins over CLICOLOR_FORCE, per https://no-color.org.
func ShouldUseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if termenv.EnvNoColor() {
		return false
	}
	if force := os.Getenv("CLICOLOR_FORCE"); force != "" && force != "0" {
		return true
	}
	return IsTerminal() && termenv.ColorProfile() != termenv.Ascii
}

// ShouldUseEmoji reports whether status icons may use emoji.
// BOARDSYNC_NO_EMOJI disables them; otherwise they follow the terminal.
func ShouldUseEmoji() bool {
	if os.Getenv("BOARDSYNC_NO_EMOJI") != "" {
		return false
	}
	return IsTerminal()
}
