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
	"strings"
	"time"

	"github.com/AleutianAI/datachat/datatypes"
	"github.com/AleutianAI/datachat/server/middleware"
	"github.com/AleutianAI/datachat/server/observability"
	"github.com/AleutianAI/datachat/services/agent"
	"github.com/AleutianAI/datachat/services/history"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var chatTracer = otel.Tracer("datachat.server.handlers")

type ChatRequest struct {
	Message   string `json:"message" binding:"required"`
	SessionID string `json:"session_id"`
}

type ChatResponse struct {
	Response  string         `json:"response"`
	SessionID string         `json:"session_id"`
	Metadata  map[string]any `json:"metadata"`
}

// HandleChat drives one conversation turn: resolve identity, forward
// the message to the agent, persist the turn, answer with the reply.
// Persistence failures are logged and absorbed; the user still sees the
// agent's response.
func HandleChat(agentClient agent.Client, store history.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleChat")
		defer span.End()

		var req ChatRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		message := strings.TrimSpace(req.Message)
		if message == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no message provided"})
			return
		}
		sessionID := req.SessionID
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		identity := middleware.GetIdentity(c)
		if identity == nil {
			observability.DefaultMetrics.ChatTurnsTotal.WithLabelValues("unauthenticated").Inc()
			// Transcript-style entry so the UI can append it verbatim.
			c.JSON(http.StatusUnauthorized, ChatResponse{
				Response:  "❌ Authentication required",
				SessionID: sessionID,
				Metadata:  map[string]any{"error": true},
			})
			return
		}

		slog.Info("Handling chat turn", "userId", identity.UserID, "sessionId", sessionID)
		start := time.Now()
		reply := agentClient.SendMessage(ctx, message, identity.UserID, sessionID)
		status := "success"
		if reply.IsError() {
			status = "agent_error"
		}
		observability.DefaultMetrics.AgentLatencySeconds.WithLabelValues(status).Observe(time.Since(start).Seconds())
		observability.DefaultMetrics.ChatTurnsTotal.WithLabelValues(status).Inc()

		turn := datatypes.Turn{
			UserID:        identity.UserID,
			SessionID:     sessionID,
			UserMessage:   message,
			AgentResponse: reply.Response,
			Timestamp:     time.Now().UTC(),
			Metadata:      reply.Metadata,
		}
		if store.SaveTurn(ctx, turn) {
			observability.DefaultMetrics.StoreOperationsTotal.WithLabelValues("save_turn", "ok").Inc()
		} else {
			observability.DefaultMetrics.StoreOperationsTotal.WithLabelValues("save_turn", "degraded").Inc()
			slog.Warn("Turn was not persisted", "userId", identity.UserID, "sessionId", sessionID)
		}

		c.JSON(http.StatusOK, ChatResponse{
			Response:  reply.Response,
			SessionID: sessionID,
			Metadata:  reply.Metadata,
		})
	}
}

// CreateSession hands out a fresh opaque session id. The id outlives
// the remote agent session, which is created lazily on first message.
func CreateSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"session_id": uuid.NewString()})
	}
}
