// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/ProsceniumAI/Proscenium/services/genai"
	"github.com/ProsceniumAI/Proscenium/services/stage/content"
	"github.com/ProsceniumAI/Proscenium/services/stage/datatypes"
	"github.com/ProsceniumAI/Proscenium/services/stage/delivery"
	"github.com/ProsceniumAI/Proscenium/services/stage/profile"
)

// Registry lifecycle errors.
var (
	// ErrSessionExists rejects starting a session under an ID already in
	// use.
	ErrSessionExists = errors.New("session already exists")

	// ErrSessionNotFound is returned when routing an event to an unknown
	// session.
	ErrSessionNotFound = errors.New("session not found")
)

// StartOptions tunes a new session.
type StartOptions struct {
	// PlayerID binds the session to a durable profile. Empty defaults to
	// the session ID, which gives an anonymous single-session profile.
	PlayerID string

	// Scene names the content pack to play. Empty or unknown falls back
	// to the built-in blank stage.
	Scene string

	// Numbers and Strings override individual scene seed variables for
	// the first run.
	Numbers map[string]float64
	Strings map[string]string
}

// Registry owns every live session and routes connection-layer events to
// them.
//
// Thread Safety: safe for concurrent use.
type Registry struct {
	backend genai.Backend
	store   profile.Store
	library *content.Library
	cfg     Config

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry builds a registry. store and library may be nil: without a
// store, profiles live only in memory; without a library, every session
// plays the built-in blank stage.
func NewRegistry(backend genai.Backend, store profile.Store, library *content.Library, cfg Config) *Registry {
	return &Registry{
		backend:  backend,
		store:    store,
		library:  library,
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// OnSessionStart creates a session, loads or initializes its player
// profile, and delivers the scene's opening line through the given
// transport.
func (r *Registry) OnSessionStart(ctx context.Context, id string, transport delivery.Transport, opts StartOptions) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("session id is empty")
	}
	playerID := opts.PlayerID
	if playerID == "" {
		playerID = id
	}

	pack := r.resolvePack(opts.Scene)
	prof := r.loadProfile(ctx, playerID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		return nil, ErrSessionExists
	}
	s := newSession(deps{
		id:        id,
		playerID:  playerID,
		pack:      pack,
		profile:   prof,
		backend:   r.backend,
		store:     r.store,
		transport: transport,
		cfg:       r.cfg,
		numbers:   opts.Numbers,
		strings:   opts.Strings,
	})
	r.sessions[id] = s

	slog.Info("session started",
		"session_id", id,
		"player_id", playerID,
		"scene", pack.Scene,
	)
	return s, nil
}

// OnUserTurn routes one player utterance to its session.
func (r *Registry) OnUserTurn(id, text string) error {
	s, ok := r.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	return s.Turn(text)
}

// OnSessionEnd removes the session from the registry and tears it down.
// The call blocks until the session's turn task and consumer have drained
// and the final profile save has been attempted.
func (r *Registry) OnSessionEnd(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.End()
	return nil
}

// Get looks up a live session.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshots returns an admin view of every live session, sorted by ID.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		snaps = append(snaps, s.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ID < snaps[j].ID })
	return snaps
}

// CloseAll tears down every live session and waits for them. Used at
// server shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.End()
		}(s)
	}
	wg.Wait()
}

// resolvePack finds the requested scene, falling back to the built-in
// default so a session can always start.
func (r *Registry) resolvePack(scene string) *content.Pack {
	if r.library == nil || scene == "" {
		return content.DefaultPack()
	}
	pack, ok := r.library.Get(scene)
	if !ok {
		slog.Warn("unknown scene requested, using default pack",
			"scene", scene,
		)
		return content.DefaultPack()
	}
	return pack
}

// loadProfile fetches the player's durable profile. A missing profile
// starts from neutral; a failing store is logged and the session runs on
// an in-memory profile, to be persisted when the store recovers.
func (r *Registry) loadProfile(ctx context.Context, playerID string) *datatypes.PlayerProfile {
	if r.store == nil {
		return datatypes.NewPlayerProfile(playerID)
	}
	prof, err := r.store.Load(ctx, playerID)
	if err == nil {
		return prof
	}
	if !errors.Is(err, profile.ErrNotFound) {
		slog.Error("profile load failed, starting from neutral",
			"player_id", playerID,
			"error", err,
		)
	}
	return datatypes.NewPlayerProfile(playerID)
}
