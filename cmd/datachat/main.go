// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command datachat starts the DataChat web gateway HTTP server.
//
// The gateway sits between browser clients and a remote reasoning agent:
// it authenticates requests via IAP headers, proxies chat turns to the
// agent backend, persists conversation history, analyzes uploaded data
// files, and exports transcripts.
//
// # Environment Variables
//
//   - HOST / PORT: bind address (default: 0.0.0.0:8080)
//   - USE_IAP: trust IAP identity headers; false enables the mock user (default: true)
//   - ALLOWED_DOMAINS: comma-separated email domains allowed through
//   - AGENT_BACKEND: agent provider - engine, openai (default: engine)
//   - HISTORY_BACKEND: conversation store - badger, file (default: badger)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (tracing disabled if unset)
//
// # Usage
//
//	# Build
//	go build -o datachat ./cmd/datachat
//
//	# Run
//	./datachat serve
//
//	# Prune stale export artifacts
//	./datachat cleanup-exports
package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "datachat",
	Short: "A web gateway between browser chat clients and a remote reasoning agent",
	Long: `DataChat authenticates users via IAP identity headers, relays chat
turns to a configured agent backend, and keeps conversation history,
file uploads, and transcript exports on the server side.`,
}

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cleanupExportsCmd)
}
