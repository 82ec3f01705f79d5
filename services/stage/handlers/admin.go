// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ProsceniumAI/Proscenium/services/stage/content"
	"github.com/ProsceniumAI/Proscenium/services/stage/datatypes"
	"github.com/ProsceniumAI/Proscenium/services/stage/profile"
	"github.com/ProsceniumAI/Proscenium/services/stage/session"
)

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "proscenium-stage"})
}

// ListSessions returns a snapshot of every live session.
func ListSessions(registry *session.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		snaps := registry.Snapshots()
		c.JSON(http.StatusOK, gin.H{
			"sessions": snaps,
			"count":    len(snaps),
		})
	}
}

// GetSession returns one session's snapshot.
func GetSession(registry *session.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		s, ok := registry.Get(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusOK, s.Snapshot())
	}
}

// GetSessionTranscript returns one session's full transcript.
func GetSessionTranscript(registry *session.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		s, ok := registry.Get(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"session_id": id,
			"transcript": s.Transcript(),
		})
	}
}

// EndSession force-ends a session. The call blocks until the session has
// drained, checkpointed, and archived, so the response means done.
func EndSession(registry *session.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		slog.Info("admin force-end requested", "session_id", id)

		if err := registry.OnSessionEnd(id); err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
			slog.Error("force-end failed", "session_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to end session"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ended", "session_id": id})
	}
}

// ListProfiles returns every stored player ID.
func ListProfiles(store profile.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "profile store disabled"})
			return
		}
		ids, err := store.List(c.Request.Context())
		if err != nil {
			slog.Error("profile list failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list profiles"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"players": ids, "count": len(ids)})
	}
}

// GetProfile returns one player's stored profile.
func GetProfile(store profile.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "profile store disabled"})
			return
		}
		playerID := c.Param("playerId")
		p, err := store.Load(c.Request.Context(), playerID)
		if err != nil {
			if errors.Is(err, profile.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
				return
			}
			slog.Error("profile load failed", "player_id", playerID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// PutProfile stores a player profile. The path parameter wins over any ID
// in the body, and out-of-range values are clamped rather than rejected.
func PutProfile(store profile.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "profile store disabled"})
			return
		}
		var p datatypes.PlayerProfile
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid profile body: " + err.Error()})
			return
		}
		p.PlayerID = c.Param("playerId")
		p.Normalize()

		if err := store.Save(c.Request.Context(), &p); err != nil {
			slog.Error("profile save failed", "player_id", p.PlayerID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save profile"})
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// DeleteProfile removes a player's stored profile.
func DeleteProfile(store profile.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "profile store disabled"})
			return
		}
		playerID := c.Param("playerId")
		if err := store.Delete(c.Request.Context(), playerID); err != nil {
			slog.Error("profile delete failed", "player_id", playerID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete profile"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted", "player_id": playerID})
	}
}

// ListScenes returns the loadable scene names. Without a content library
// only the built-in default scene exists.
func ListScenes(library *content.Library) gin.HandlerFunc {
	return func(c *gin.Context) {
		builtin := content.DefaultPack().Scene
		scenes := []string{builtin}
		if library != nil {
			for _, name := range library.Scenes() {
				if name != builtin {
					scenes = append(scenes, name)
				}
			}
		}
		c.JSON(http.StatusOK, gin.H{"scenes": scenes, "count": len(scenes)})
	}
}
