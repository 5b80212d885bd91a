// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/datachat/appconfig"
	"github.com/AleutianAI/datachat/services/exports"
)

var cleanupExportsCmd = &cobra.Command{
	Use:   "cleanup-exports",
	Short: "Delete export artifacts older than the configured retention window",
	Run:   runCleanupExports,
}

func runCleanupExports(cmd *cobra.Command, args []string) {
	cfg := appconfig.Load()
	maxAge := time.Duration(cfg.ExportRetentionDays) * 24 * time.Hour

	manager := exports.NewManager(cfg.ExportDir)
	removed := manager.CleanupOld(maxAge)

	slog.Info("Export cleanup finished",
		"export_dir", cfg.ExportDir,
		"retention_days", cfg.ExportRetentionDays,
		"removed", removed,
	)
}
