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

// AuthMethod identifies how a caller identity was established.
type AuthMethod string

const (
	// AuthMethodIAP means the identity came from identity-proxy headers.
	AuthMethodIAP AuthMethod = "iap"

	// AuthMethodMock means the identity was synthesized for local development.
	AuthMethodMock AuthMethod = "mock"
)

// Identity is the resolved caller identity for one inbound request.
// It is derived once per request and never persisted; other entities
// reference it only by UserID.
type Identity struct {
	Email         string     `json:"email"`
	UserID        string     `json:"user_id"`
	Domain        string     `json:"domain"`
	Authenticated bool       `json:"authenticated"`
	AuthMethod    AuthMethod `json:"auth_method"`
}

// Permissions describes what an identity may do. All authorized users
// currently get every permission; the split exists so role-based access
// can be layered in without touching handlers.
type Permissions struct {
	CanChat        bool `json:"can_chat"`
	CanUploadFiles bool `json:"can_upload_files"`
	CanExport      bool `json:"can_export"`
	CanViewHistory bool `json:"can_view_history"`
}

// AuditEntry is a structured record of a user-initiated action.
type AuditEntry struct {
	UserEmail  string         `json:"user_email"`
	UserID     string         `json:"user_id"`
	Action     string         `json:"action"`
	Details    map[string]any `json:"details"`
	Timestamp  time.Time      `json:"timestamp"`
	AuthMethod AuthMethod     `json:"auth_method"`
}
