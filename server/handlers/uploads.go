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
	"os"
	"path/filepath"

	"github.com/AleutianAI/datachat/server/middleware"
	"github.com/AleutianAI/datachat/server/observability"
	"github.com/AleutianAI/datachat/services/uploads"
	"github.com/gin-gonic/gin"
)

// HandleUpload receives a multipart file, stages it in a scratch
// directory and runs the analyzer. Validation failures reject the
// upload; analysis failures are reported inside the result.
func HandleUpload(analyzer *uploads.Analyzer) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := middleware.GetIdentity(c)
		if identity == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			observability.DefaultMetrics.UploadsTotal.WithLabelValues("rejected").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "no file provided"})
			return
		}

		scratchDir, err := os.MkdirTemp("", "datachat-upload-*")
		if err != nil {
			slog.Error("Failed to create upload scratch directory", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to stage upload"})
			return
		}
		defer os.RemoveAll(scratchDir)

		stagedPath := filepath.Join(scratchDir, filepath.Base(fileHeader.Filename))
		if err := c.SaveUploadedFile(fileHeader, stagedPath); err != nil {
			slog.Error("Failed to stage uploaded file", "file", fileHeader.Filename, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to stage upload"})
			return
		}

		result, err := analyzer.ProcessUpload(stagedPath, identity.UserID)
		if err != nil {
			observability.DefaultMetrics.UploadsTotal.WithLabelValues("rejected").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		status := "success"
		if result.AnalysisError != "" {
			status = "analysis_error"
		}
		observability.DefaultMetrics.UploadsTotal.WithLabelValues(status).Inc()
		c.JSON(http.StatusOK, result)
	}
}
