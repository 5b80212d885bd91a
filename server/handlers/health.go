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

	"github.com/AleutianAI/datachat/services/agent"
	"github.com/AleutianAI/datachat/services/history"
	"github.com/gin-gonic/gin"
)

// HandleHealth reports liveness plus the state of the agent connection
// and which history backend is actually serving requests. The endpoint
// returns 200 even when the agent is degraded so that load balancers
// keep routing; callers inspect the body for detail.
func HandleHealth(agentClient agent.Client, store history.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := agentClient.HealthCheck()
		c.JSON(http.StatusOK, gin.H{
			"status":          "ok",
			"agent":           status,
			"history_backend": store.Backend(),
		})
	}
}
