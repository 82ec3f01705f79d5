// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers exposes the stage server over HTTP: the websocket play
// surface and the /v1 admin API.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ProsceniumAI/Proscenium/services/stage/datatypes"
	"github.com/ProsceniumAI/Proscenium/services/stage/session"
	"github.com/ProsceniumAI/Proscenium/services/stage/telemetry"
)

// Client frame types.
const (
	ClientTypeStart = "start"
	ClientTypeTurn  = "turn"
	ClientTypeEnd   = "end"
)

// Server frame types.
const (
	ServerTypeSession = "session"
	ServerTypeLine    = "line"
	ServerTypeWait    = "wait"
	ServerTypeBusy    = "busy"
	ServerTypeEnded   = "ended"
	ServerTypeError   = "error"
)

// ClientMessage is one inbound frame on the play socket. Start fields are
// accepted for clients that prefer an explicit start frame over connect
// query parameters.
type ClientMessage struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Scene    string `json:"scene,omitempty"`
	PlayerID string `json:"player_id,omitempty"`
}

// ServerMessage is one outbound frame on the play socket.
type ServerMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Scene     string `json:"scene,omitempty"`
	ItemID    string `json:"item_id,omitempty"`
	Text      string `json:"text,omitempty"`
	Speaker   string `json:"speaker,omitempty"`
	Priority  string `json:"priority,omitempty"`
	Error     string `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	// Frames carry dialogue lines, not uploads.
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// wsTransport pushes delivery items down one websocket connection.
// gorilla/websocket allows a single concurrent writer, and both the
// delivery consumer and the read loop send frames, so every write
// serializes through mu.
type wsTransport struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (t *wsTransport) send(ctx context.Context, msg ServerMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.ws.SetWriteDeadline(deadline)
	}
	err := t.ws.WriteJSON(msg)
	if err != nil {
		slog.Debug("websocket write failed", "type", msg.Type, "error", err)
	}
	return err
}

// Deliver implements delivery.Transport.
func (t *wsTransport) Deliver(ctx context.Context, sessionID string, item datatypes.DeliveryItem) error {
	msg := ServerMessage{
		SessionID: sessionID,
		ItemID:    item.ID,
	}
	switch item.Kind {
	case datatypes.ItemWaitSignal:
		msg.Type = ServerTypeWait
	default:
		msg.Type = ServerTypeLine
		msg.Text = item.Text
		msg.Speaker = item.Speaker
		msg.Priority = item.Priority.String()
	}
	return t.send(ctx, msg)
}

// HandlePlay runs one session over a websocket.
//
// The session starts on connect: scene, player_id, and session_id come from
// query parameters (or from a first "start" frame), and the server answers
// with a session frame before any lines flow. Turns arrive as "turn"
// frames; delivered content, busy rejections, and wait signals flow back
// asynchronously. The session ends on an "end" frame or on disconnect, and
// either way the registry drains it completely.
func HandlePlay(registry *session.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("websocket upgrade failed", "error", err)
			return
		}
		defer ws.Close()

		sessionID := c.Query("session_id")
		if sessionID == "" {
			sessionID = uuid.New().String()
		}
		scene := c.Query("scene")
		playerID := c.Query("player_id")

		transport := &wsTransport{ws: ws}
		ctx := c.Request.Context()

		// A bare connect waits for an explicit start frame; any query
		// parameter means the client chose the implicit form.
		var pending *ClientMessage
		if c.Request.URL.RawQuery == "" {
			var first ClientMessage
			if err := ws.ReadJSON(&first); err != nil {
				slog.Info("websocket closed before start", "error", err.Error())
				return
			}
			switch first.Type {
			case ClientTypeStart:
				scene = first.Scene
				playerID = first.PlayerID
			case ClientTypeTurn:
				// Eager client: start on defaults and replay the turn once
				// the session exists.
				pending = &first
			case ClientTypeEnd:
				return
			default:
				_ = transport.send(ctx, ServerMessage{
					Type:  ServerTypeError,
					Error: "expected a start frame, got: " + first.Type,
				})
				return
			}
		}

		_ = startAndRun(ctx, registry, transport, sessionID, scene, playerID, pending)
	}
}

// startAndRun owns the session from registration to drain. pending, when
// non-nil, is a turn frame that arrived before the session existed.
func startAndRun(ctx context.Context, registry *session.Registry, transport *wsTransport,
	sessionID, scene, playerID string, pending *ClientMessage) error {

	ctx, span := telemetry.StartSpan(ctx, "stage.handlers", "Play")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("session.scene", scene),
	)

	// The ack goes out before the session starts so it always precedes the
	// opening line.
	if err := transport.send(ctx, ServerMessage{
		Type:      ServerTypeSession,
		SessionID: sessionID,
		Scene:     scene,
	}); err != nil {
		return err
	}

	sess, err := registry.OnSessionStart(ctx, sessionID, transport, session.StartOptions{
		PlayerID: playerID,
		Scene:    scene,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		msg := "failed to start session"
		if errors.Is(err, session.ErrSessionExists) {
			msg = "session id already in use"
		}
		_ = transport.send(ctx, ServerMessage{Type: ServerTypeError, Error: msg})
		return err
	}
	slog.Info("play socket connected",
		"session_id", sessionID,
		"player_id", sess.PlayerID,
	)

	if pending == nil || handleTurn(ctx, registry, transport, sessionID, pending.Text) {
		readLoop(ctx, registry, transport, sessionID)
	}

	// Idempotent: an admin force-end may have beaten us here.
	if err := registry.OnSessionEnd(sessionID); err != nil &&
		!errors.Is(err, session.ErrSessionNotFound) {
		slog.Warn("session end failed", "session_id", sessionID, "error", err)
	}
	_ = transport.send(ctx, ServerMessage{Type: ServerTypeEnded, SessionID: sessionID})
	return nil
}

func readLoop(ctx context.Context, registry *session.Registry, transport *wsTransport, sessionID string) {
	for {
		var msg ClientMessage
		if err := transport.ws.ReadJSON(&msg); err != nil {
			slog.Info("websocket client disconnected",
				"session_id", sessionID,
				"error", err.Error(),
			)
			return
		}

		switch msg.Type {
		case ClientTypeTurn:
			if !handleTurn(ctx, registry, transport, sessionID, msg.Text) {
				return
			}
		case ClientTypeEnd:
			return
		case ClientTypeStart:
			if transport.send(ctx, ServerMessage{
				Type:  ServerTypeError,
				Error: "session already running",
			}) != nil {
				return
			}
		default:
			if transport.send(ctx, ServerMessage{
				Type:  ServerTypeError,
				Error: "unknown message type: " + msg.Type,
			}) != nil {
				return
			}
		}
	}
}

// handleTurn submits one player action and maps rejections onto wire
// frames. It returns false when the loop should stop.
func handleTurn(ctx context.Context, registry *session.Registry, transport *wsTransport,
	sessionID, text string) bool {

	err := registry.OnUserTurn(sessionID, text)
	switch {
	case err == nil:
		return true
	case errors.Is(err, session.ErrSessionBusy):
		return transport.send(ctx, ServerMessage{Type: ServerTypeBusy, SessionID: sessionID}) == nil
	case errors.Is(err, datatypes.ErrEmptyTurn):
		return transport.send(ctx, ServerMessage{
			Type:  ServerTypeError,
			Error: "turn text is empty",
		}) == nil
	case errors.Is(err, session.ErrSessionClosed), errors.Is(err, session.ErrSessionNotFound):
		// The session is gone; tell the client and stop reading.
		_ = transport.send(ctx, ServerMessage{Type: ServerTypeEnded, SessionID: sessionID})
		return false
	default:
		slog.Warn("turn rejected", "session_id", sessionID, "error", err)
		return transport.send(ctx, ServerMessage{
			Type:  ServerTypeError,
			Error: err.Error(),
		}) == nil
	}
}
