// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routes wires the stage server's route table.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ProsceniumAI/Proscenium/services/stage/content"
	"github.com/ProsceniumAI/Proscenium/services/stage/handlers"
	"github.com/ProsceniumAI/Proscenium/services/stage/profile"
	"github.com/ProsceniumAI/Proscenium/services/stage/session"
)

// SetupRoutes registers every stage endpoint. store and library may be nil;
// the affected handlers answer 503 or fall back to the built-in scene.
func SetupRoutes(router *gin.Engine, registry *session.Registry, store profile.Store,
	library *content.Library) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		// The play socket carries the whole session: start, turns,
		// deliveries, end.
		v1.GET("/play/ws", handlers.HandlePlay(registry))

		v1.GET("/scenes", handlers.ListScenes(library))

		sessions := v1.Group("/sessions")
		{
			sessions.GET("", handlers.ListSessions(registry))
			sessions.GET("/:sessionId", handlers.GetSession(registry))
			sessions.GET("/:sessionId/transcript", handlers.GetSessionTranscript(registry))
			sessions.DELETE("/:sessionId", handlers.EndSession(registry))
		}

		profiles := v1.Group("/profiles")
		{
			profiles.GET("", handlers.ListProfiles(store))
			profiles.GET("/:playerId", handlers.GetProfile(store))
			profiles.PUT("/:playerId", handlers.PutProfile(store))
			profiles.DELETE("/:playerId", handlers.DeleteProfile(store))
		}
	}
}
