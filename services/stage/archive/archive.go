// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package archive writes ended sessions to Weaviate for long-term recall.
//
// Archiving is best-effort and strictly off the turn path: the session layer
// hands over a finished record once, after the player disconnects. When no
// Weaviate URL is configured the server runs in lightweight mode and records
// are dropped silently.
package archive

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/ProsceniumAI/Proscenium/services/genai"
	"github.com/ProsceniumAI/Proscenium/services/stage/observability"
	"github.com/ProsceniumAI/Proscenium/services/stage/session"
)

// Weaviate class names.
const (
	ClassSession = "StageSession"
	ClassTurn    = "StageTurn"
)

// Long transcript entries are split before archiving so retrieval stays
// chunk-sized.
const (
	chunkSize    = 1000
	chunkOverlap = 100
)

// Summary generation runs cold; the title should be stable, not creative.
const (
	summaryMaxTokens   = 60
	summaryTemperature = 0.2
)

// beaconRef is the wire form of a Weaviate cross-reference.
type beaconRef struct {
	Beacon string `json:"beacon"`
}

// NewClient builds a Weaviate client from rawURL. An empty or invalid URL
// returns nil, which callers treat as lightweight mode.
func NewClient(rawURL string) *weaviate.Client {
	// Container runtimes sometimes pass quoted values through literally.
	rawURL = strings.Trim(rawURL, "\"' ")

	if rawURL == "" || !strings.Contains(rawURL, "http") {
		slog.Info("no weaviate url configured, running in lightweight mode")
		return nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		slog.Warn("weaviate url is invalid, running in lightweight mode",
			"url", rawURL,
			"error", err,
		)
		return nil
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsed.Host,
		Scheme: parsed.Scheme,
	})
	if err != nil {
		slog.Error("failed to create weaviate client, running in lightweight mode",
			"error", err,
		)
		return nil
	}
	return client
}

// Store implements session.Archiver on top of Weaviate.
type Store struct {
	client   *weaviate.Client
	backend  genai.Backend
	splitter textsplitter.TextSplitter
}

// New builds a Store. A nil client makes every operation a no-op; a nil
// backend skips summary generation and uses the fallback title.
func New(client *weaviate.Client, backend genai.Backend) *Store {
	return &Store{
		client:  client,
		backend: backend,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}
}

// Enabled reports whether the store has a live client behind it.
func (s *Store) Enabled() bool {
	return s != nil && s.client != nil
}

// EnsureSchema creates the archive classes if they are missing. StageSession
// is created first so StageTurn's cross-reference resolves.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	for _, class := range []*models.Class{sessionSchema(), turnSchema()} {
		_, err := s.client.Schema().ClassGetter().WithClassName(class.Class).Do(ctx)
		if err == nil {
			continue
		}
		if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
			return fmt.Errorf("create schema for class %s: %w", class.Class, err)
		}
		slog.Info("created archive schema", "class", class.Class)
	}
	return nil
}

// ArchiveSession writes one ended session and its transcript to Weaviate.
func (s *Store) ArchiveSession(ctx context.Context, rec session.SessionRecord) error {
	if !s.Enabled() {
		return nil
	}

	summary := s.summarize(ctx, rec)
	objects := buildObjects(rec, summary)

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return fmt.Errorf("archive session %s: %w", rec.SessionID, err)
	}

	written := 0
	for _, item := range resp {
		if item.Result != nil && item.Result.Status != nil && *item.Result.Status == "SUCCESS" {
			written++
			continue
		}
		if item.Result != nil && item.Result.Errors != nil {
			for _, e := range item.Result.Errors.Error {
				slog.Warn("archive batch item failed",
					"session_id", rec.SessionID,
					"error", e.Message,
				)
			}
		}
	}

	slog.Info("archived session",
		"session_id", rec.SessionID,
		"objects", written,
		"summary", summary,
	)
	return nil
}

// summarize asks the backend for a short scene title, falling back to a
// mechanical one when the backend is absent or unhelpful.
func (s *Store) summarize(ctx context.Context, rec session.SessionRecord) string {
	fallback := fmt.Sprintf("Scene %s, %d player actions", rec.Scene, rec.Actions)
	if len(fallback) > 100 {
		fallback = fallback[:100]
	}
	if s.backend == nil {
		return fallback
	}

	prompt := fmt.Sprintf(
		"Give a very short title (8 words max) for this roleplay scene:\n%s\nTitle:",
		rec.Transcript.Render(10),
	)
	temp := float32(summaryTemperature)
	maxTokens := summaryMaxTokens
	params := genai.Params{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
		Stop:        []string{"\n"},
	}

	start := time.Now()
	out, err := s.backend.Generate(ctx, prompt, params)
	if m := observability.DefaultMetrics; m != nil {
		m.ObserveBackend(observability.OpSummary, time.Since(start).Seconds(), err == nil)
	}
	out = strings.TrimSpace(out)
	if err != nil || out == "" {
		if err != nil {
			slog.Warn("session summary generation failed, using fallback",
				"session_id", rec.SessionID,
				"error", err,
			)
		}
		return fallback
	}
	return out
}

// buildObjects assembles the batch: one StageSession object followed by one
// StageTurn object per transcript chunk, all with deterministic IDs so a
// retried archive overwrites rather than duplicates.
func buildObjects(rec session.SessionRecord, summary string) []*models.Object {
	sessionUUID := archiveID("session", rec.SessionID, rec.StartedAt.UTC().Format(time.RFC3339Nano))

	objects := make([]*models.Object, 0, len(rec.Transcript)+1)
	objects = append(objects, &models.Object{
		Class: ClassSession,
		ID:    sessionUUID,
		Properties: map[string]interface{}{
			"session_id": rec.SessionID,
			"player_id":  rec.PlayerID,
			"scene":      rec.Scene,
			"summary":    summary,
			"started_at": rec.StartedAt.UnixMilli(),
			"ended_at":   rec.EndedAt.UnixMilli(),
			"actions":    rec.Actions,
			"turns":      len(rec.Transcript),
		},
	})

	beacon := []beaconRef{{
		Beacon: fmt.Sprintf("weaviate://localhost/%s/%s", ClassSession, sessionUUID),
	}}

	for i, entry := range rec.Transcript {
		for part, chunk := range splitEntry(entry.Text) {
			objects = append(objects, &models.Object{
				Class: ClassTurn,
				ID: archiveID("turn", string(sessionUUID),
					fmt.Sprintf("%d/%d/%s/%d", i, entry.Turn, entry.Role, part)),
				Properties: map[string]interface{}{
					"session_id":  rec.SessionID,
					"turn_number": entry.Turn,
					"actor":       entry.Role,
					"text":        chunk,
					"part":        part + 1,
					"inSession":   beacon,
				},
			})
		}
	}
	return objects
}

// splitEntry chunks one transcript entry. Text under the chunk size passes
// through untouched; splitter failures fall back to the whole text.
func splitEntry(text string) []string {
	if len(text) <= chunkSize {
		return []string{text}
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)
	chunks, err := splitter.SplitText(text)
	if err != nil || len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}

// archiveID derives a stable UUID from its parts.
func archiveID(parts ...string) strfmt.UUID {
	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	id, err := uuid.FromBytes(hash[:16])
	if err != nil {
		return strfmt.UUID(uuid.NewString())
	}
	return strfmt.UUID(id.String())
}

func sessionSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:               ClassSession,
		Description:         "Metadata for one ended roleplay session, including a summary.",
		Vectorizer:          "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{IndexTimestamps: true},
		Properties: []*models.Property{
			{
				Name:            "session_id",
				DataType:        []string{"text"},
				Description:     "The unique ID for the session.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "player_id",
				DataType:        []string{"text"},
				Description:     "The player who ran the session.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "scene",
				DataType:        []string{"text"},
				Description:     "The scene pack the session played.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "summary",
				DataType:     []string{"text"},
				Description:  "A short, generated title for the session.",
				Tokenization: "word",
			},
			{
				Name:            "started_at",
				DataType:        []string{"number"},
				Description:     "Unix milliseconds when the session began.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "ended_at",
				DataType:        []string{"number"},
				Description:     "Unix milliseconds when the session ended.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "actions",
				DataType:        []string{"int"},
				Description:     "How many player actions the session saw.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "turns",
				DataType:        []string{"int"},
				Description:     "How many transcript entries were archived.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

func turnSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:               ClassTurn,
		Description:         "One transcript utterance (or chunk of one) from an archived session.",
		Vectorizer:          "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{IndexTimestamps: true},
		Properties: []*models.Property{
			{
				Name:            "session_id",
				DataType:        []string{"text"},
				Description:     "The unique ID for the parent session.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "turn_number",
				DataType:        []string{"int"},
				Description:     "The player action count when this line was spoken.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "actor",
				DataType:        []string{"text"},
				Description:     "Who spoke: player, partner, or director.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "text",
				DataType:     []string{"text"},
				Description:  "The utterance text, chunked when long.",
				Tokenization: "word",
			},
			{
				Name:            "part",
				DataType:        []string{"int"},
				Description:     "1-indexed chunk number within the utterance.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "inSession",
				DataType:        []string{ClassSession},
				Description:     "A direct graph link to the parent session object.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}
