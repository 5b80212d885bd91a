// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/datachat/server/handlers"
	"github.com/AleutianAI/datachat/server/middleware"
	"github.com/AleutianAI/datachat/services/agent"
	"github.com/AleutianAI/datachat/services/exports"
	"github.com/AleutianAI/datachat/services/history"
	"github.com/AleutianAI/datachat/services/uploads"
)

func SetupRoutes(router *gin.Engine, authenticator *middleware.Authenticator,
	agentClient agent.Client, store history.Store,
	analyzer *uploads.Analyzer, exporter *exports.Manager) {

	router.GET("/health", handlers.HandleHealth(agentClient, store))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group. Identity is resolved once per request; the
	// handlers decide whether an anonymous caller gets through.
	v1 := router.Group("/v1")
	v1.Use(middleware.IdentityMiddleware(authenticator))
	{
		v1.POST("/chat", handlers.HandleChat(agentClient, store))
		v1.POST("/sessions", handlers.CreateSession())
		v1.POST("/uploads", handlers.HandleUpload(analyzer))
		v1.POST("/exports", handlers.HandleExport(store, exporter))
		// Conversation administration routes
		conversations := v1.Group("/conversations")
		{
			conversations.GET("", handlers.ListConversations(store))
			conversations.GET("/:sessionId/messages", handlers.GetConversationMessages(store))
			conversations.DELETE("/:sessionId", handlers.DeleteConversation(store))
		}
	}
}
