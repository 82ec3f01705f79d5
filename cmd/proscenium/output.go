// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Console styling. Everything degrades to plain text when stdout is not a
// terminal.
var (
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	badStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	partnerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	directorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Italic(true)
	playerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	faintStyle    = lipgloss.NewStyle().Faint(true)
)

func stdoutIsTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func okMark() string {
	if !stdoutIsTTY() {
		return "[ok]"
	}
	return okStyle.Render("✓")
}

func badMark() string {
	if !stdoutIsTTY() {
		return "[fail]"
	}
	return badStyle.Render("✗")
}
