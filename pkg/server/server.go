/*
Copyright 2024 EscherCloud.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package server exposes the agent's operational endpoints: health for
// orchestration probes and Prometheus metrics.  The agent does no
// request-driven work, so this is the entire HTTP surface.
package server

import (
	"context"
	"net/http"
	"sync/atomic"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/trace"

	"github.com/eschercloudai/site-agent/pkg/server/middleware"
)

// Server is the agent's health and metrics endpoint.
type Server struct {
	// Options are server specific options e.g. listener address etc.
	Options Options

	// Log is the request logger.
	Log logr.Logger

	ready atomic.Bool
}

// MarkReady flips the health endpoint to 200.  Called once the
// supervisor is running.
func (s *Server) MarkReady() {
	s.ready.Store(true)
}

// SetupOpenTelemetry adds a span processor that will print root spans to
// the logs by default, and optionally ship the spans to an OTLP
// listener.
func (s *Server) SetupOpenTelemetry(ctx context.Context) error {
	otel.SetLogger(s.Log)

	opts := []trace.TracerProviderOption{
		trace.WithSpanProcessor(&middleware.LoggingSpanProcessor{Log: s.Log}),
	}

	if s.Options.OTLPEndpoint != "" {
		exporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(s.Options.OTLPEndpoint),
			otlptracehttp.WithInsecure(),
		)

		if err != nil {
			return err
		}

		opts = append(opts, trace.WithBatcher(exporter))
	}

	otel.SetTracerProvider(trace.NewTracerProvider(opts...))

	return nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		http.Error(w, "starting", http.StatusServiceUnavailable)

		return
	}

	w.WriteHeader(http.StatusOK)
}

// GetServer returns the configured HTTP server.
func (s *Server) GetServer() *http.Server {
	// Middleware specified here is applied to all requests pre-routing.
	router := chi.NewRouter()
	router.Use(middleware.Logger(s.Log))
	router.Use(middleware.Timeout(s.Options.RequestTimeout))

	router.Get("/healthz", s.healthz)
	router.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              s.Options.ListenAddress,
		ReadTimeout:       s.Options.ReadTimeout,
		ReadHeaderTimeout: s.Options.ReadHeaderTimeout,
		WriteTimeout:      s.Options.WriteTimeout,
		Handler:           router,
	}
}
