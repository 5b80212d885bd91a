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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/datachat/datatypes"
	"github.com/AleutianAI/datachat/services/history"
)

func seedStore(t *testing.T) history.Store {
	t.Helper()
	store := history.NewFileStore(t.TempDir())
	base := time.Now().UTC().Add(-time.Hour)
	for i, session := range []string{"s-1", "s-2"} {
		turn := datatypes.Turn{
			UserID:        "alice@example.com",
			SessionID:     session,
			UserMessage:   "opening message",
			AgentResponse: "reply",
			Timestamp:     base.Add(time.Duration(i) * time.Minute),
		}
		require.True(t, store.SaveTurn(context.Background(), turn))
	}
	return store
}

func newConversationsRouter(id *datatypes.Identity, store history.Store) *gin.Engine {
	router := gin.New()
	router.Use(withIdentity(id))
	router.GET("/v1/conversations", ListConversations(store))
	router.GET("/v1/conversations/:sessionId/messages", GetConversationMessages(store))
	router.DELETE("/v1/conversations/:sessionId", DeleteConversation(store))
	return router
}

func doRequest(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

// =============================================================================
// ListConversations Tests
// =============================================================================

func TestListConversations(t *testing.T) {
	router := newConversationsRouter(testIdentity(), seedStore(t))

	w := doRequest(router, "GET", "/v1/conversations")

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Conversations []datatypes.ConversationSummary `json:"conversations"`
		Count         int                             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	// Most recently updated first.
	assert.Equal(t, "s-2", resp.Conversations[0].SessionID)
	assert.Equal(t, "opening message", resp.Conversations[0].Title)
}

func TestListConversations_LimitParam(t *testing.T) {
	router := newConversationsRouter(testIdentity(), seedStore(t))

	w := doRequest(router, "GET", "/v1/conversations?limit=1")

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
}

func TestListConversations_Unauthenticated(t *testing.T) {
	router := newConversationsRouter(nil, seedStore(t))

	w := doRequest(router, "GET", "/v1/conversations")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// =============================================================================
// GetConversationMessages Tests
// =============================================================================

func TestGetConversationMessages(t *testing.T) {
	router := newConversationsRouter(testIdentity(), seedStore(t))

	w := doRequest(router, "GET", "/v1/conversations/s-1/messages")

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		SessionID string           `json:"session_id"`
		Messages  []datatypes.Turn `json:"messages"`
		Count     int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "s-1", resp.SessionID)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "opening message", resp.Messages[0].UserMessage)
}

func TestGetConversationMessages_UnknownSessionIsEmpty(t *testing.T) {
	router := newConversationsRouter(testIdentity(), seedStore(t))

	w := doRequest(router, "GET", "/v1/conversations/no-such/messages")

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)
}

// =============================================================================
// DeleteConversation Tests
// =============================================================================

func TestDeleteConversation(t *testing.T) {
	store := seedStore(t)
	router := newConversationsRouter(testIdentity(), store)

	w := doRequest(router, "DELETE", "/v1/conversations/s-1")

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp["status"])
	assert.Equal(t, "s-1", resp["deleted_session_id"])
	assert.Empty(t, store.GetTurns(context.Background(), "alice@example.com", "s-1"))
}

func TestDeleteConversation_MissingReportsFailure(t *testing.T) {
	router := newConversationsRouter(testIdentity(), seedStore(t))

	w := doRequest(router, "DELETE", "/v1/conversations/no-such")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
