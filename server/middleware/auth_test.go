// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/datachat/appconfig"
	"github.com/AleutianAI/datachat/datatypes"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func proxiedAuthenticator(domains ...string) *Authenticator {
	return NewAuthenticator(appconfig.Config{
		UseIAP:         true,
		AllowedDomains: domains,
	})
}

// =============================================================================
// StripIAPPrefix Tests
// =============================================================================

func TestStripIAPPrefix(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"prefixed value", "accounts.google.com:alice@example.com", "alice@example.com"},
		{"bare email passes through", "alice@example.com", "alice@example.com"},
		{"surrounding whitespace trimmed", "  accounts.google.com:alice@example.com ", "alice@example.com"},
		{"empty value", "", ""},
		{"prefix only", "accounts.google.com:", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripIAPPrefix(tt.value))
		})
	}
}

func TestStripIAPPrefix_Idempotent(t *testing.T) {
	once := StripIAPPrefix("accounts.google.com:bob@corp.example")
	twice := StripIAPPrefix(once)

	assert.Equal(t, once, twice)
}

// =============================================================================
// IdentityFromHeaders Tests
// =============================================================================

func TestIdentityFromHeaders_ProxiedAllowedDomain(t *testing.T) {
	auth := proxiedAuthenticator("example.com")

	h := http.Header{}
	h.Set(HeaderUserEmail, "accounts.google.com:alice@example.com")
	h.Set(HeaderUserID, "user-42")

	id := auth.IdentityFromHeaders(h)

	require.NotNil(t, id)
	assert.Equal(t, "alice@example.com", id.Email)
	assert.Equal(t, "user-42", id.UserID)
	assert.Equal(t, "example.com", id.Domain)
	assert.True(t, id.Authenticated)
	assert.Equal(t, datatypes.AuthMethodIAP, id.AuthMethod)
}

func TestIdentityFromHeaders_UserIDFallsBackToEmail(t *testing.T) {
	auth := proxiedAuthenticator("example.com")

	h := http.Header{}
	h.Set(HeaderUserEmail, "alice@example.com")

	id := auth.IdentityFromHeaders(h)

	require.NotNil(t, id)
	assert.Equal(t, "alice@example.com", id.UserID)
}

func TestIdentityFromHeaders_MissingHeader(t *testing.T) {
	auth := proxiedAuthenticator("example.com")

	id := auth.IdentityFromHeaders(http.Header{})

	assert.Nil(t, id)
}

func TestIdentityFromHeaders_DisallowedDomain(t *testing.T) {
	auth := proxiedAuthenticator("example.com")

	h := http.Header{}
	h.Set(HeaderUserEmail, "mallory@evil.example")

	assert.Nil(t, auth.IdentityFromHeaders(h))
}

// Empty allow-list authorizes nobody in proxied mode.
func TestIdentityFromHeaders_EmptyAllowListFailsClosed(t *testing.T) {
	auth := proxiedAuthenticator()

	h := http.Header{}
	h.Set(HeaderUserEmail, "alice@example.com")

	assert.Nil(t, auth.IdentityFromHeaders(h))
}

func TestIdentityFromHeaders_DomainCaseInsensitive(t *testing.T) {
	auth := proxiedAuthenticator("Example.COM")

	h := http.Header{}
	h.Set(HeaderUserEmail, "alice@EXAMPLE.com")

	id := auth.IdentityFromHeaders(h)

	require.NotNil(t, id)
	assert.Equal(t, "example.com", id.Domain)
}

func TestIdentityFromHeaders_MockMode(t *testing.T) {
	auth := NewAuthenticator(appconfig.Config{
		UseIAP:        false,
		MockUserEmail: "developer@example.com",
	})

	// Headers are ignored entirely in mock mode.
	h := http.Header{}
	h.Set(HeaderUserEmail, "mallory@evil.example")

	id := auth.IdentityFromHeaders(h)

	require.NotNil(t, id)
	assert.Equal(t, "developer@example.com", id.Email)
	assert.Equal(t, datatypes.AuthMethodMock, id.AuthMethod)
	assert.True(t, id.Authenticated)
}

// =============================================================================
// IsAuthorized / PermissionsFor Tests
// =============================================================================

func TestIsAuthorized(t *testing.T) {
	auth := proxiedAuthenticator("example.com")

	t.Run("nil identity", func(t *testing.T) {
		assert.False(t, auth.IsAuthorized(nil))
	})

	t.Run("unauthenticated identity", func(t *testing.T) {
		assert.False(t, auth.IsAuthorized(&datatypes.Identity{Email: "alice@example.com"}))
	})

	t.Run("proxied identity on allowed domain", func(t *testing.T) {
		id := &datatypes.Identity{
			Email:         "alice@example.com",
			Authenticated: true,
			AuthMethod:    datatypes.AuthMethodIAP,
		}
		assert.True(t, auth.IsAuthorized(id))
	})

	t.Run("mock identity bypasses the allow-list", func(t *testing.T) {
		id := &datatypes.Identity{
			Email:         "developer@dev.internal",
			Authenticated: true,
			AuthMethod:    datatypes.AuthMethodMock,
		}
		assert.True(t, auth.IsAuthorized(id))
	})
}

func TestPermissionsFor(t *testing.T) {
	auth := proxiedAuthenticator("example.com")

	t.Run("authorized user gets the full set", func(t *testing.T) {
		id := &datatypes.Identity{
			Email:         "alice@example.com",
			Authenticated: true,
			AuthMethod:    datatypes.AuthMethodIAP,
		}
		perms := auth.PermissionsFor(id)
		assert.True(t, perms.CanChat)
		assert.True(t, perms.CanUploadFiles)
		assert.True(t, perms.CanExport)
		assert.True(t, perms.CanViewHistory)
	})

	t.Run("unauthorized user gets nothing", func(t *testing.T) {
		perms := auth.PermissionsFor(nil)
		assert.Equal(t, datatypes.Permissions{}, perms)
	})
}

// =============================================================================
// IdentityMiddleware Tests
// =============================================================================

func TestIdentityMiddleware_StoresIdentity(t *testing.T) {
	auth := proxiedAuthenticator("example.com")

	router := gin.New()
	router.Use(IdentityMiddleware(auth))
	var got *datatypes.Identity
	router.GET("/probe", func(c *gin.Context) {
		got = GetIdentity(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/probe", nil)
	req.Header.Set(HeaderUserEmail, "accounts.google.com:alice@example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got)
	assert.Equal(t, "alice@example.com", got.Email)
}

// The middleware never aborts; an anonymous request reaches the handler
// with a nil identity.
func TestIdentityMiddleware_AnonymousPassesThrough(t *testing.T) {
	auth := proxiedAuthenticator("example.com")

	router := gin.New()
	router.Use(IdentityMiddleware(auth))
	reached := false
	router.GET("/probe", func(c *gin.Context) {
		reached = true
		assert.Nil(t, GetIdentity(c))
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/probe", nil))

	assert.True(t, reached)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuditEntry(t *testing.T) {
	auth := proxiedAuthenticator("example.com")
	id := &datatypes.Identity{
		Email:      "alice@example.com",
		UserID:     "user-42",
		AuthMethod: datatypes.AuthMethodIAP,
	}

	entry := auth.AuditEntry(id, "chat_message", map[string]any{"session_id": "s-1"})

	assert.Equal(t, "chat_message", entry.Action)
	assert.Equal(t, "alice@example.com", entry.UserEmail)
	assert.Equal(t, "user-42", entry.UserID)
	assert.Equal(t, "s-1", entry.Details["session_id"])
	assert.False(t, entry.Timestamp.IsZero())
}
