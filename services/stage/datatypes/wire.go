// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Websocket wire messages exchanged with stage clients.
package datatypes

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// ErrEmptyTurn rejects turn frames with no text.
var ErrEmptyTurn = errors.New("turn text is empty")

// MaxTurnContentBytes caps a single player utterance. Checked as bytes, not
// runes, so oversized payloads are rejected before they reach the backend.
const MaxTurnContentBytes = 8 * 1024

// Client message types.
const (
	ClientTypeTurn = "turn"
	ClientTypeEnd  = "end"
)

// Server message types.
const (
	ServerTypeSession = "session"
	ServerTypeLine    = "line"
	ServerTypeBusy    = "busy"
	ServerTypeWait    = "wait"
	ServerTypeEnded   = "ended"
	ServerTypeError   = "error"
)

// wireValidate is the validator instance for wire datatypes.
var wireValidate *validator.Validate

func init() {
	wireValidate = validator.New()
	_ = wireValidate.RegisterValidation("turnbytes", validateTurnBytes)
}

func validateTurnBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxTurnContentBytes
}

// ClientMessage is one inbound frame from a stage client.
//
// # Fields
//
//   - Type: "turn" to submit an utterance, "end" to close the session.
//   - Text: the utterance for "turn" messages; at most 8KB.
type ClientMessage struct {
	Type string `json:"type" validate:"required,oneof=turn end"`
	Text string `json:"text,omitempty" validate:"turnbytes"`
}

// Validate checks the frame against its tags. Turn frames additionally
// require non-empty text.
func (m *ClientMessage) Validate() error {
	if err := wireValidate.Struct(m); err != nil {
		return err
	}
	if m.Type == ClientTypeTurn && m.Text == "" {
		return ErrEmptyTurn
	}
	return nil
}

// ServerMessage is one outbound frame to a stage client.
type ServerMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	ItemID    string `json:"item_id,omitempty"`
	Speaker   string `json:"speaker,omitempty"`
	Text      string `json:"text,omitempty"`
	Priority  string `json:"priority,omitempty"`
	Error     string `json:"error,omitempty"`
}

// LineMessage converts a delivery item to its wire form.
func LineMessage(item DeliveryItem) ServerMessage {
	if item.Kind == ItemWaitSignal {
		return ServerMessage{Type: ServerTypeWait, ItemID: item.ID}
	}
	return ServerMessage{
		Type:     ServerTypeLine,
		ItemID:   item.ID,
		Speaker:  item.Speaker,
		Text:     item.Text,
		Priority: item.Priority.String(),
	}
}
