// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
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
	"log/slog"
	"net/http"
	"strconv"

	"github.com/AleutianAI/datachat/server/middleware"
	"github.com/AleutianAI/datachat/server/observability"
	"github.com/AleutianAI/datachat/services/history"
	"github.com/gin-gonic/gin"
)

const defaultListLimit = 20

// ListConversations returns the caller's conversations, most recently
// updated first. An empty list is ambiguous between "no conversations"
// and "store degraded"; that is the store's documented contract.
func ListConversations(store history.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := middleware.GetIdentity(c)
		if identity == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		limit := defaultListLimit
		if raw := c.Query("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}
		conversations := store.ListConversations(c.Request.Context(), identity.UserID, limit)
		observability.DefaultMetrics.StoreOperationsTotal.WithLabelValues("list", "ok").Inc()
		c.JSON(http.StatusOK, gin.H{"conversations": conversations, "count": len(conversations)})
	}
}

// GetConversationMessages returns the full transcript of one
// conversation in replay order.
func GetConversationMessages(store history.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := middleware.GetIdentity(c)
		if identity == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		sessionID := c.Param("sessionId")
		turns := store.GetTurns(c.Request.Context(), identity.UserID, sessionID)
		observability.DefaultMetrics.StoreOperationsTotal.WithLabelValues("get_turns", "ok").Inc()
		c.JSON(http.StatusOK, gin.H{
			"session_id": sessionID,
			"messages":   turns,
			"count":      len(turns),
		})
	}
}

// DeleteConversation removes a conversation and all of its turns.
// Deletion across the record and the turns is best-effort, not atomic.
func DeleteConversation(store history.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := middleware.GetIdentity(c)
		if identity == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		sessionID := c.Param("sessionId")
		slog.Info("Received a request to delete a conversation", "userId", identity.UserID, "sessionId", sessionID)

		if !store.DeleteConversation(c.Request.Context(), identity.UserID, sessionID) {
			observability.DefaultMetrics.StoreOperationsTotal.WithLabelValues("delete", "degraded").Inc()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fully delete conversation"})
			return
		}
		observability.DefaultMetrics.StoreOperationsTotal.WithLabelValues("delete", "ok").Inc()
		c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_session_id": sessionID})
	}
}
