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
	"net/http"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/datachat/server/middleware"
	"github.com/AleutianAI/datachat/server/observability"
	"github.com/AleutianAI/datachat/services/exports"
	"github.com/AleutianAI/datachat/services/history"
	"github.com/gin-gonic/gin"
)

type ExportRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Format    string `json:"format" binding:"required"`
}

// HandleExport snapshots a conversation transcript and serializes it in
// the requested format. With ?download=true the artifact is streamed
// back as an attachment; otherwise its path is returned.
func HandleExport(store history.Store, manager *exports.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := middleware.GetIdentity(c)
		if identity == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req ExportRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		format := strings.ToLower(req.Format)

		turns := store.GetTurns(c.Request.Context(), identity.UserID, req.SessionID)
		transcript := make([]exports.TranscriptEntry, 0, len(turns))
		for _, turn := range turns {
			transcript = append(transcript, exports.TranscriptEntry{
				UserMessage:   turn.UserMessage,
				AgentResponse: turn.AgentResponse,
			})
		}

		path, err := manager.ExportConversation(transcript, req.Format, identity.UserID, req.SessionID)
		if err != nil {
			observability.DefaultMetrics.ExportsTotal.WithLabelValues(format, "error").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		observability.DefaultMetrics.ExportsTotal.WithLabelValues(format, "success").Inc()

		if c.Query("download") == "true" {
			c.FileAttachment(path, filepath.Base(path))
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"path":          path,
			"filename":      filepath.Base(path),
			"format":        req.Format,
			"message_count": len(transcript),
		})
	}
}
