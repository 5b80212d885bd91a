// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/datachat/datatypes"
)

// FileStore keeps one JSON document per conversation at
// <baseDir>/<user_id>/<session_id>.json. It is the development backend
// and the permanent fallback when the document store cannot start.
type FileStore struct {
	baseDir string
}

func NewFileStore(baseDir string) *FileStore {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		slog.Error("Failed to create local history directory", "dir", baseDir, "error", err)
	}
	return &FileStore{baseDir: baseDir}
}

func (s *FileStore) Backend() string { return "file" }

func (s *FileStore) Close() error { return nil }

func (s *FileStore) sessionPath(userID, sessionID string) string {
	return filepath.Join(s.baseDir, sanitizeComponent(userID), sanitizeComponent(sessionID)+".json")
}

func (s *FileStore) SaveTurn(ctx context.Context, turn datatypes.Turn) bool {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	path := s.sessionPath(turn.UserID, turn.SessionID)

	doc := datatypes.ConversationDocument{
		UserID:    turn.UserID,
		SessionID: turn.SessionID,
		Title:     GenerateTitle(turn.UserMessage),
		CreatedAt: turn.Timestamp,
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &doc); err != nil {
			slog.Error("Error parsing existing conversation file", "path", path, "error", err)
			return false
		}
	case !errors.Is(err, fs.ErrNotExist):
		slog.Error("Error reading conversation file", "path", path, "error", err)
		return false
	}

	doc.Messages = append(doc.Messages, turn.ToMessage())
	doc.LastUpdated = turn.Timestamp

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		slog.Error("Error creating user history directory", "path", path, "error", err)
		return false
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		slog.Error("Error serializing conversation", "path", path, "error", err)
		return false
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		slog.Error("Error writing conversation file", "path", path, "error", err)
		return false
	}
	return true
}

func (s *FileStore) ListConversations(ctx context.Context, userID string, limit int) []datatypes.ConversationSummary {
	userDir := filepath.Join(s.baseDir, sanitizeComponent(userID))
	entries, err := os.ReadDir(userDir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Error("Error listing conversation directory", "dir", userDir, "error", err)
		}
		return nil
	}

	var summaries []datatypes.ConversationSummary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(userDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Error("Error reading conversation file", "path", path, "error", err)
			continue
		}
		var doc datatypes.ConversationDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			slog.Error("Error parsing conversation file", "path", path, "error", err)
			continue
		}
		title := doc.Title
		if title == "" {
			title = untitledFallback
		}
		lastUpdated := doc.LastUpdated
		if lastUpdated.IsZero() {
			lastUpdated = doc.CreatedAt
		}
		summaries = append(summaries, datatypes.ConversationSummary{
			SessionID:    doc.SessionID,
			Title:        title,
			LastUpdated:  lastUpdated,
			MessageCount: len(doc.Messages),
		})
	}
	sortSummaries(summaries)
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries
}

func (s *FileStore) GetTurns(ctx context.Context, userID, sessionID string) []datatypes.Turn {
	path := s.sessionPath(userID, sessionID)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Error("Error reading conversation file", "path", path, "error", err)
		}
		return nil
	}
	var doc datatypes.ConversationDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		slog.Error("Error parsing conversation file", "path", path, "error", err)
		return nil
	}
	turns := make([]datatypes.Turn, 0, len(doc.Messages))
	for _, msg := range doc.Messages {
		turns = append(turns, msg.ToTurn(userID, sessionID))
	}
	// Messages are appended in order, but the ascending contract is
	// exact, so out-of-order writes are repaired on read.
	sort.SliceStable(turns, func(i, j int) bool {
		return turns[i].Timestamp.Before(turns[j].Timestamp)
	})
	return turns
}

func (s *FileStore) DeleteConversation(ctx context.Context, userID, sessionID string) bool {
	path := s.sessionPath(userID, sessionID)
	err := os.Remove(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Error("Error deleting conversation file", "path", path, "error", err)
		}
		return false
	}
	return true
}
