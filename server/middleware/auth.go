// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware resolves the caller identity for every request.
//
// # Identity Flow
//
//	Request
//	   │
//	   ▼
//	IdentityMiddleware
//	   │
//	   ├─► proxied mode: read X-Goog-Authenticated-User-Email,
//	   │   strip the "accounts.google.com:" prefix, check the
//	   │   domain allow-list
//	   │
//	   ├─► mock mode: synthesize the configured developer identity
//	   │
//	   └─► Store Identity in the Gin context
//	           │
//	           ▼
//	       Handler (retrieves via GetIdentity)
//
// The allow-list is fail-closed: an empty ALLOWED_DOMAINS authorizes
// nothing in proxied mode. Mock identities bypass the allow-list; that
// divergence is intentional and matches the production deployment's
// documented behavior.
package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/AleutianAI/datachat/appconfig"
	"github.com/AleutianAI/datachat/datatypes"
	"github.com/gin-gonic/gin"
)

const (
	// HeaderUserEmail carries the proxied caller email.
	HeaderUserEmail = "X-Goog-Authenticated-User-Email"

	// HeaderUserID carries the proxied caller id, when the proxy sets one.
	HeaderUserID = "X-Goog-Authenticated-User-ID"

	// iapEmailPrefix is prepended by the identity proxy and must be
	// stripped before the value is treated as an email address.
	iapEmailPrefix = "accounts.google.com:"

	// identityKey is the gin context key for the resolved Identity.
	// Typed key prevents collisions with other context values.
	identityKey = "datachat_identity"
)

// Authenticator resolves caller identities from request headers or,
// in development mode, from a configured mock user.
type Authenticator struct {
	useIAP         bool
	allowedDomains []string
	mockEmail      string
}

func NewAuthenticator(cfg appconfig.Config) *Authenticator {
	return &Authenticator{
		useIAP:         cfg.UseIAP,
		allowedDomains: cfg.AllowedDomains,
		mockEmail:      cfg.MockUserEmail,
	}
}

// IdentityFromHeaders produces the caller Identity, or nil when no
// authorized identity can be established. Proxied mode makes no network
// calls; everything is derived from the headers and the allow-list.
func (a *Authenticator) IdentityFromHeaders(h http.Header) *datatypes.Identity {
	if !a.useIAP {
		return a.mockIdentity()
	}

	email := StripIAPPrefix(h.Get(HeaderUserEmail))
	if email == "" {
		return nil
	}
	if !a.isDomainAllowed(email) {
		return nil
	}

	userID := h.Get(HeaderUserID)
	if userID == "" {
		userID = email
	}
	return &datatypes.Identity{
		Email:         email,
		UserID:        userID,
		Domain:        emailDomain(email),
		Authenticated: true,
		AuthMethod:    datatypes.AuthMethodIAP,
	}
}

// mockIdentity synthesizes the development identity. It is always
// authorized regardless of the allow-list.
func (a *Authenticator) mockIdentity() *datatypes.Identity {
	return &datatypes.Identity{
		Email:         a.mockEmail,
		UserID:        a.mockEmail,
		Domain:        emailDomain(a.mockEmail),
		Authenticated: true,
		AuthMethod:    datatypes.AuthMethodMock,
	}
}

// IsAuthorized reports whether the identity may use the application.
// Mock identities are always authorized; proxied identities must pass
// the domain allow-list.
func (a *Authenticator) IsAuthorized(id *datatypes.Identity) bool {
	if id == nil || !id.Authenticated {
		return false
	}
	if id.AuthMethod == datatypes.AuthMethodMock {
		return true
	}
	return a.isDomainAllowed(id.Email)
}

// PermissionsFor derives the permission set. Authorized users currently
// get everything; unauthorized users get nothing.
func (a *Authenticator) PermissionsFor(id *datatypes.Identity) datatypes.Permissions {
	if !a.IsAuthorized(id) {
		return datatypes.Permissions{}
	}
	return datatypes.Permissions{
		CanChat:        true,
		CanUploadFiles: true,
		CanExport:      true,
		CanViewHistory: true,
	}
}

// AuditEntry builds an audit record for a user-initiated action.
func (a *Authenticator) AuditEntry(id *datatypes.Identity, action string, details map[string]any) datatypes.AuditEntry {
	entry := datatypes.AuditEntry{
		Action:    action,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
	if entry.Details == nil {
		entry.Details = map[string]any{}
	}
	if id != nil {
		entry.UserEmail = id.Email
		entry.UserID = id.UserID
		entry.AuthMethod = id.AuthMethod
	}
	return entry
}

func (a *Authenticator) isDomainAllowed(email string) bool {
	domain := emailDomain(email)
	if domain == "" {
		return false
	}
	for _, allowed := range a.allowedDomains {
		if strings.EqualFold(domain, allowed) {
			return true
		}
	}
	return false
}

// StripIAPPrefix removes the identity-proxy prefix from a header value.
// Stripping is idempotent: values without the prefix pass through.
func StripIAPPrefix(value string) string {
	return strings.TrimPrefix(strings.TrimSpace(value), iapEmailPrefix)
}

func emailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

// SetIdentity stores the resolved identity in the Gin context.
func SetIdentity(c *gin.Context, id *datatypes.Identity) {
	c.Set(identityKey, id)
}

// GetIdentity retrieves the identity resolved by IdentityMiddleware.
// Returns nil when the request carried no authorized identity.
func GetIdentity(c *gin.Context) *datatypes.Identity {
	if v, exists := c.Get(identityKey); exists {
		if id, ok := v.(*datatypes.Identity); ok {
			return id
		}
	}
	return nil
}

// IdentityMiddleware resolves the caller identity once per request and
// stores it in the context. It never aborts: handlers decide how an
// unauthenticated request surfaces (the chat handler, for example,
// answers with a transcript-style entry rather than a bare 401).
func IdentityMiddleware(auth *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := auth.IdentityFromHeaders(c.Request.Header); id != nil {
			SetIdentity(c, id)
		}
		c.Next()
	}
}
