// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history persists conversation turns and reconstructs
// transcripts for replay. Two backends implement the same contract: an
// embedded BadgerDB document store and a per-user directory of JSON
// files. The backend is chosen once at startup; if the document store
// fails to initialize, the store permanently falls back to files for
// the process lifetime.
//
// Failure policy: every I/O failure degrades to a logged no-op that
// returns an empty slice or false. Callers cannot distinguish "no data"
// from "storage failed"; that ambiguity is part of the contract and is
// asserted by the tests.
package history

import (
	"context"
	"log/slog"
	"strings"

	"github.com/AleutianAI/datachat/appconfig"
	"github.com/AleutianAI/datachat/datatypes"
)

// Store is the conversation persistence contract. Operations behave
// identically in meaning regardless of backend.
type Store interface {
	// SaveTurn appends a turn and upserts the conversation metadata.
	// The title is computed only when the conversation does not exist
	// yet; last_updated and the message counter move unconditionally.
	SaveTurn(ctx context.Context, turn datatypes.Turn) bool

	// ListConversations returns a user's conversations ordered by
	// last_updated descending, tie-broken by session_id ascending,
	// bounded by limit when limit > 0.
	ListConversations(ctx context.Context, userID string, limit int) []datatypes.ConversationSummary

	// GetTurns returns every turn of a conversation in timestamp
	// ascending order. The ordering is load-bearing for replay.
	GetTurns(ctx context.Context, userID, sessionID string) []datatypes.Turn

	// DeleteConversation removes the conversation record and its turns.
	// Best-effort across the two when they live apart; not atomic.
	DeleteConversation(ctx context.Context, userID, sessionID string) bool

	// Backend names the active backend ("badger" or "file").
	Backend() string

	Close() error
}

// NewStore resolves the backend once. A document-store initialization
// failure switches to the file backend for the process lifetime; there
// is no reconnect attempt.
func NewStore(cfg appconfig.Config) Store {
	if cfg.HistoryBackend == "badger" {
		store, err := NewBadgerStore(cfg.BadgerDir)
		if err == nil {
			slog.Info("Initialized Badger document store for chat history", "dir", cfg.BadgerDir)
			return store
		}
		slog.Error("Failed to initialize Badger store, falling back to local file storage", "error", err)
	}
	slog.Info("Initialized local file storage for chat history", "dir", cfg.LocalStorageDir)
	return NewFileStore(cfg.LocalStorageDir)
}

const (
	titleMaxLen      = 50
	placeholderTitle = "New Chat"
	untitledFallback = "Untitled Chat"
)

// GenerateTitle derives a conversation title from the first user
// message. Long messages are truncated at the nearest preceding word
// boundary so the result, including the ellipsis, stays within
// titleMaxLen characters.
func GenerateTitle(firstMessage string) string {
	title := strings.TrimSpace(firstMessage)
	if title == "" {
		return placeholderTitle
	}
	runes := []rune(title)
	if len(runes) <= titleMaxLen {
		return title
	}
	cut := string(runes[:titleMaxLen-3])
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	cut = strings.TrimSpace(cut)
	if cut == "" {
		return placeholderTitle
	}
	return cut + "..."
}

// sanitizeComponent keeps user- and session-derived path components from
// escaping the storage directory.
func sanitizeComponent(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, "..", "_")
	return s
}
