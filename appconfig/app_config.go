// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package appconfig centralizes environment configuration for the
// datachat gateway. Every recognized key is read once at startup;
// components receive the resolved Config rather than consulting the
// environment themselves.
package appconfig

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Host string
	Port string

	// Identity
	UseIAP         bool
	AllowedDomains []string
	MockUserEmail  string

	// Remote agent
	AgentBackend   string // "engine" (default) or "openai"
	ProjectID      string
	Location       string
	AgentName      string
	AgentEngineURL string // overrides the derived endpoint when set
	OpenAIModel    string

	// Conversation store
	HistoryBackend  string // "badger" (default) or "file"
	BadgerDir       string
	LocalStorageDir string

	// Uploads and exports
	UploadDir           string
	MaxFileSizeMB       int
	ExportDir           string
	ExportRetentionDays int
}

// Load reads the environment into a Config, applying the same defaults
// across the server and the CLI maintenance commands.
func Load() Config {
	cfg := Config{
		Host:                getEnv("HOST", "0.0.0.0"),
		Port:                getEnv("PORT", "8080"),
		UseIAP:              getBool("USE_IAP", true),
		AllowedDomains:      splitDomains(os.Getenv("ALLOWED_DOMAINS")),
		MockUserEmail:       getEnv("MOCK_USER_EMAIL", "developer@example.com"),
		AgentBackend:        getEnv("AGENT_BACKEND", "engine"),
		ProjectID:           os.Getenv("GOOGLE_CLOUD_PROJECT"),
		Location:            getEnv("GOOGLE_CLOUD_LOCATION", "us-central1"),
		AgentName:           os.Getenv("AGENT_NAME"),
		AgentEngineURL:      os.Getenv("AGENT_ENGINE_URL"),
		OpenAIModel:         os.Getenv("OPENAI_MODEL"),
		HistoryBackend:      getEnv("HISTORY_BACKEND", "badger"),
		BadgerDir:           getEnv("BADGER_DIR", "./chat_history.db"),
		LocalStorageDir:     getEnv("LOCAL_STORAGE_DIR", "./chat_history"),
		UploadDir:           getEnv("UPLOAD_DIR", "./uploads"),
		MaxFileSizeMB:       getInt("MAX_FILE_SIZE", 100),
		ExportDir:           getEnv("EXPORT_DIR", "./exports"),
		ExportRetentionDays: getInt("EXPORT_RETENTION_DAYS", 7),
	}
	if len(cfg.AllowedDomains) == 0 {
		slog.Warn("ALLOWED_DOMAINS is empty; no proxied identity will be authorized")
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return strings.EqualFold(v, "true")
}

func getInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Invalid integer in environment, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}

// splitDomains parses the ALLOWED_DOMAINS comma list, dropping empty
// entries. An empty result is a valid configuration: it authorizes nobody.
func splitDomains(raw string) []string {
	var domains []string
	for _, d := range strings.Split(raw, ",") {
		d = strings.TrimSpace(d)
		if d != "" {
			domains = append(domains, d)
		}
	}
	return domains
}
