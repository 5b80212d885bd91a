// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

// Turn is one user-message/agent-response exchange. Turns are immutable
// once written and append-only within a conversation.
type Turn struct {
	UserID        string         `json:"user_id"`
	SessionID     string         `json:"session_id"`
	UserMessage   string         `json:"user_message"`
	AgentResponse string         `json:"agent_response"`
	Timestamp     time.Time      `json:"timestamp"`
	Metadata      map[string]any `json:"metadata"`
}

// Message is the turn shape embedded in a persisted conversation
// document. It omits the owning user/session ids, which live on the
// enclosing document.
type Message struct {
	UserMessage   string         `json:"user_message"`
	AgentResponse string         `json:"agent_response"`
	Timestamp     time.Time      `json:"timestamp"`
	Metadata      map[string]any `json:"metadata"`
}

// ToMessage strips the owning ids for embedding in a ConversationDocument.
func (t Turn) ToMessage() Message {
	return Message{
		UserMessage:   t.UserMessage,
		AgentResponse: t.AgentResponse,
		Timestamp:     t.Timestamp,
		Metadata:      t.Metadata,
	}
}

// ToTurn rehydrates a full Turn with its owning ids.
func (m Message) ToTurn(userID, sessionID string) Turn {
	return Turn{
		UserID:        userID,
		SessionID:     sessionID,
		UserMessage:   m.UserMessage,
		AgentResponse: m.AgentResponse,
		Timestamp:     m.Timestamp,
		Metadata:      m.Metadata,
	}
}

// ConversationDocument is the on-disk shape of one conversation in the
// file backend: <storage_dir>/<user_id>/<session_id>.json.
type ConversationDocument struct {
	UserID      string    `json:"user_id"`
	SessionID   string    `json:"session_id"`
	Title       string    `json:"title"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
	Messages    []Message `json:"messages"`
}

// ConversationSummary is one row in a user's conversation listing.
type ConversationSummary struct {
	SessionID    string    `json:"session_id"`
	Title        string    `json:"title"`
	LastUpdated  time.Time `json:"last_updated"`
	MessageCount int       `json:"message_count"`
}
