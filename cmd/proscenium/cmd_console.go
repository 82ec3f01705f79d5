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
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/ProsceniumAI/Proscenium/cmd/proscenium/config"
)

var (
	consoleScene  string
	consolePlayer string
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Join a scene as a player from the terminal",
	Long: `console connects to the stage server's play socket and runs the scene
interactively: your lines go up, the performers' lines come back as the
stage delivers them. Ctrl+C or Esc leaves the scene.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		scene := consoleScene
		if scene == "" {
			scene = config.Global.Player.Scene
		}
		player := consolePlayer
		if player == "" {
			player = config.Global.Player.ID
		}

		target, err := wsURL(scene, player, "")
		if err != nil {
			return err
		}
		conn, _, err := websocket.DefaultDialer.Dial(target, nil)
		if err != nil {
			return fmt.Errorf("could not reach the stage server at %s: %w",
				config.Global.Server.URL, err)
		}

		model := newConsoleModel(conn, scene)
		program := tea.NewProgram(model, tea.WithAltScreen())
		go model.readFrames(program)

		_, err = program.Run()
		conn.Close()
		return err
	},
}

func init() {
	consoleCmd.Flags().StringVar(&consoleScene, "scene", "", "scene to join")
	consoleCmd.Flags().StringVar(&consolePlayer, "player", "", "player id")
	rootCmd.AddCommand(consoleCmd)
}

// =============================================================================
// Wire frames
// =============================================================================

// serverFrame mirrors the stage server's outbound socket message.
type serverFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Scene     string `json:"scene,omitempty"`
	Text      string `json:"text,omitempty"`
	Speaker   string `json:"speaker,omitempty"`
	Priority  string `json:"priority,omitempty"`
	Error     string `json:"error,omitempty"`
}

// clientFrame mirrors the stage server's inbound socket message.
type clientFrame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type frameMsg serverFrame

// socketClosedMsg ends the program when the read loop stops.
type socketClosedMsg struct{ err error }

// =============================================================================
// Bubbletea model
// =============================================================================

// consoleModel is the bubbletea model for the play console: a transcript
// viewport over a single-line text input.
type consoleModel struct {
	viewport viewport.Model
	input    textinput.Model
	conn     *websocket.Conn
	scene    string

	sessionID string
	lines     []string
	ready     bool
	leaving   bool
	closeErr  error
}

func newConsoleModel(conn *websocket.Conn, scene string) *consoleModel {
	input := textinput.New()
	input.Prompt = "> "
	input.Placeholder = "say something"
	input.CharLimit = 2048
	input.Focus()

	return &consoleModel{
		input: input,
		conn:  conn,
		scene: scene,
	}
}

// readFrames pumps socket frames into the program. It owns the read side
// of the connection; writes happen only on the Update goroutine.
func (m *consoleModel) readFrames(program *tea.Program) {
	for {
		var frame serverFrame
		if err := m.conn.ReadJSON(&frame); err != nil {
			program.Send(socketClosedMsg{err: err})
			return
		}
		program.Send(frameMsg(frame))
	}
}

func (m *consoleModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		inputHeight := 2
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-inputHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - inputHeight
		}
		m.input.Width = msg.Width - len(m.input.Prompt) - 1
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.leave()
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.Reset()
			if err := m.conn.WriteJSON(clientFrame{Type: "turn", Text: text}); err != nil {
				m.append(badStyle.Render("connection lost: " + err.Error()))
				return m, tea.Quit
			}
			m.append(playerStyle.Render("you: ") + text)
			return m, nil
		}

	case frameMsg:
		m.handleFrame(serverFrame(msg))
		if msg.Type == "ended" {
			return m, tea.Quit
		}
		return m, nil

	case socketClosedMsg:
		if !m.leaving {
			m.closeErr = msg.err
		}
		return m, tea.Quit
	}

	var inputCmd, viewportCmd tea.Cmd
	m.input, inputCmd = m.input.Update(msg)
	m.viewport, viewportCmd = m.viewport.Update(msg)
	return m, tea.Batch(inputCmd, viewportCmd)
}

func (m *consoleModel) handleFrame(frame serverFrame) {
	switch frame.Type {
	case "session":
		m.sessionID = frame.SessionID
		title := "the stage is set"
		if frame.Scene != "" {
			title = "scene: " + frame.Scene
		}
		m.append(faintStyle.Render(title))
	case "line":
		style := partnerStyle
		if frame.Speaker == "director" {
			style = directorStyle
		}
		speaker := frame.Speaker
		if speaker == "" {
			speaker = "stage"
		}
		m.append(style.Render(speaker+": ") + frame.Text)
	case "wait":
		m.append(faintStyle.Render("(the performer needs a moment — try that again)"))
	case "busy":
		m.append(faintStyle.Render("(the stage is mid-beat — hold on)"))
	case "error":
		m.append(badStyle.Render("error: " + frame.Error))
	case "ended":
		m.append(faintStyle.Render("(the scene has ended)"))
	}
}

// leave tells the server the player is done. Best effort; quitting follows
// regardless.
func (m *consoleModel) leave() {
	m.leaving = true
	_ = m.conn.WriteJSON(clientFrame{Type: "end"})
}

func (m *consoleModel) append(line string) {
	m.lines = append(m.lines, line)
	m.refresh()
}

func (m *consoleModel) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

func (m *consoleModel) View() string {
	if !m.ready {
		return "joining the scene..."
	}
	return m.viewport.View() + "\n" + m.input.View()
}
