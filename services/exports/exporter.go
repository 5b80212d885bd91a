// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package exports serializes transcript snapshots to disk. Export files
// are derived, disposable artifacts: they have no lifecycle beyond the
// age-based cleanup run from the CLI.
//
// The "PDF" format produces an HTML document. External consumers depend
// on the .html artifact, so the label/content mismatch is preserved.
package exports

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// TranscriptEntry is one user/agent message pair of an in-memory
// transcript snapshot.
type TranscriptEntry struct {
	UserMessage   string `json:"user_message"`
	AgentResponse string `json:"agent_response"`
}

// exportDocument is the JSON export envelope.
type exportDocument struct {
	ExportInfo   exportInfo          `json:"export_info"`
	Conversation []exportMessageItem `json:"conversation"`
}

type exportInfo struct {
	UserID          string `json:"user_id"`
	SessionID       string `json:"session_id"`
	ExportTimestamp string `json:"export_timestamp"`
	Format          string `json:"format"`
	MessageCount    int    `json:"message_count"`
}

type exportMessageItem struct {
	MessageID     int    `json:"message_id"`
	UserMessage   string `json:"user_message"`
	AgentResponse string `json:"agent_response"`
}

// Manager writes export artifacts into a single export directory.
type Manager struct {
	exportDir string
}

func NewManager(exportDir string) *Manager {
	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		slog.Error("Failed to create export directory", "dir", exportDir, "error", err)
	}
	slog.Info("Initialized export manager", "dir", exportDir)
	return &Manager{exportDir: exportDir}
}

// ExportConversation writes the transcript in the requested format and
// returns the file path. Supported format tags: JSON, CSV, PDF
// (case-insensitive).
func (m *Manager) ExportConversation(history []TranscriptEntry, format, userID, sessionID string) (string, error) {
	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("chat_export_%s_%s_%s", userID, shortSession(sessionID), timestamp)

	switch strings.ToUpper(format) {
	case "JSON":
		return m.exportJSON(history, filename, userID, sessionID)
	case "CSV":
		return m.exportCSV(history, filename, userID, sessionID)
	case "PDF":
		return m.exportHTML(history, filename, userID, sessionID)
	default:
		return "", fmt.Errorf("unsupported export format: %s", format)
	}
}

func (m *Manager) exportJSON(history []TranscriptEntry, filename, userID, sessionID string) (string, error) {
	doc := exportDocument{
		ExportInfo: exportInfo{
			UserID:          userID,
			SessionID:       sessionID,
			ExportTimestamp: time.Now().Format(time.RFC3339),
			Format:          "JSON",
			MessageCount:    len(history),
		},
		Conversation: make([]exportMessageItem, 0, len(history)),
	}
	for i, entry := range history {
		doc.Conversation = append(doc.Conversation, exportMessageItem{
			MessageID:     i + 1,
			UserMessage:   entry.UserMessage,
			AgentResponse: entry.AgentResponse,
		})
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("error exporting to JSON: %w", err)
	}
	path := filepath.Join(m.exportDir, filename+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("error exporting to JSON: %w", err)
	}
	return path, nil
}

// ParseJSONExport reads an export file back into transcript entries,
// preserving order. The inverse of exportJSON.
func ParseJSONExport(path string) ([]TranscriptEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read export: %w", err)
	}
	var doc exportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse export: %w", err)
	}
	entries := make([]TranscriptEntry, 0, len(doc.Conversation))
	for _, item := range doc.Conversation {
		entries = append(entries, TranscriptEntry{
			UserMessage:   item.UserMessage,
			AgentResponse: item.AgentResponse,
		})
	}
	return entries, nil
}

func (m *Manager) exportCSV(history []TranscriptEntry, filename, userID, sessionID string) (string, error) {
	path := filepath.Join(m.exportDir, filename+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("error exporting to CSV: %w", err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.Write([]string{"Message ID", "User Message", "Agent Response", "User ID", "Session ID"}); err != nil {
		return "", fmt.Errorf("error exporting to CSV: %w", err)
	}
	for i, entry := range history {
		row := []string{strconv.Itoa(i + 1), entry.UserMessage, entry.AgentResponse, userID, sessionID}
		if err := writer.Write(row); err != nil {
			return "", fmt.Errorf("error exporting to CSV: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("error exporting to CSV: %w", err)
	}
	return path, nil
}

var htmlExportTemplate = template.Must(template.New("export").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Chat Export - {{.ShortSession}}</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #f0f0f0; padding: 10px; margin-bottom: 20px; }
        .message { margin-bottom: 15px; padding: 10px; border: 1px solid #ddd; }
        .user { background-color: #e3f2fd; }
        .agent { background-color: #f3e5f5; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Chat Export</h1>
        <p><strong>User:</strong> {{.UserID}}</p>
        <p><strong>Session:</strong> {{.SessionID}}</p>
        <p><strong>Export Date:</strong> {{.ExportDate}}</p>
        <p><strong>Messages:</strong> {{len .History}}</p>
    </div>
{{range .History}}    <div class="message">
        <div class="user"><strong>User:</strong> {{.UserMessage}}</div>
        <div class="agent"><strong>Agent:</strong> {{.AgentResponse}}</div>
    </div>
{{end}}</body>
</html>
`))

// exportHTML renders the transcript as a standalone HTML document.
// Served under the PDF format tag; see the package comment.
func (m *Manager) exportHTML(history []TranscriptEntry, filename, userID, sessionID string) (string, error) {
	path := filepath.Join(m.exportDir, filename+".html")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("error exporting to PDF/HTML: %w", err)
	}
	defer f.Close()

	data := struct {
		UserID       string
		SessionID    string
		ShortSession string
		ExportDate   string
		History      []TranscriptEntry
	}{
		UserID:       userID,
		SessionID:    sessionID,
		ShortSession: shortSession(sessionID),
		ExportDate:   time.Now().Format("2006-01-02 15:04:05"),
		History:      history,
	}
	if err := htmlExportTemplate.Execute(f, data); err != nil {
		return "", fmt.Errorf("error exporting to PDF/HTML: %w", err)
	}
	return path, nil
}

// CleanupOld deletes export files whose modification time is older than
// maxAge and returns how many were removed. Invoked externally on a
// timer; nothing schedules it in-process.
func (m *Manager) CleanupOld(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	entries, err := os.ReadDir(m.exportDir)
	if err != nil {
		slog.Error("Error cleaning up exports", "dir", m.exportDir, "error", err)
		return 0
	}
	cleaned := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(m.exportDir, entry.Name())
			if err := os.Remove(path); err != nil {
				slog.Error("Error removing old export", "path", path, "error", err)
				continue
			}
			cleaned++
		}
	}
	slog.Info("Cleaned up old export files", "count", cleaned)
	return cleaned
}

func shortSession(sessionID string) string {
	if len(sessionID) > 8 {
		return sessionID[:8]
	}
	return sessionID
}
