// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/datachat/appconfig"
	"github.com/AleutianAI/datachat/server/middleware"
	"github.com/AleutianAI/datachat/server/routes"
	"github.com/AleutianAI/datachat/services/agent"
	"github.com/AleutianAI/datachat/services/exports"
	"github.com/AleutianAI/datachat/services/history"
	"github.com/AleutianAI/datachat/services/uploads"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the DataChat gateway HTTP server",
	Run:   runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := appconfig.Load()

	slog.Info("Starting DataChat gateway",
		"host", cfg.Host,
		"port", cfg.Port,
		"use_iap", cfg.UseIAP,
		"agent_backend", cfg.AgentBackend,
		"history_backend", cfg.HistoryBackend,
	)

	// Tracing is optional: without a collector endpoint the gateway runs
	// with the default no-op tracer provider.
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		cleanup, err := initTracer(endpoint)
		if err != nil {
			log.Fatalf("Failed to initialize tracing: %v", err)
		}
		defer cleanup(context.Background())
	} else {
		slog.Info("OTEL_EXPORTER_OTLP_ENDPOINT not set, tracing disabled")
	}

	// A misconfigured agent backend is a startup error, not a per-request
	// one. Everything downstream assumes a non-nil client.
	agentClient, err := agent.NewClient(cfg)
	if err != nil {
		log.Fatalf("Failed to create agent client: %v", err)
	}

	store := history.NewStore(cfg)
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("failed to close history store", "error", err)
		}
	}()

	analyzer := uploads.NewAnalyzer(cfg.UploadDir, cfg.MaxFileSizeMB)
	exporter := exports.NewManager(cfg.ExportDir)
	authenticator := middleware.NewAuthenticator(cfg)

	router := gin.Default()
	router.Use(otelgin.Middleware("datachat-gateway"))
	routes.SetupRoutes(router, authenticator, agentClient, store, analyzer, exporter)

	if err := router.Run(listenAddr(cfg)); err != nil {
		log.Fatalf("Gateway server error: %v", err)
	}
}

// listenAddr composes the bind address from the configured host and port.
func listenAddr(cfg appconfig.Config) string {
	return net.JoinHostPort(cfg.Host, cfg.Port)
}

// initTracer initializes OpenTelemetry distributed tracing against the
// given OTLP gRPC collector endpoint.
func initTracer(endpoint string) (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("datachat-gateway")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}
