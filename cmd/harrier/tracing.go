package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// startTracing installs a global tracer provider when tracing is enabled.
// Spans are batched to stderr and flushed when the app closes.
func (a *app) startTracing() error {
	tc := a.cfg.Tracing
	if !tc.Enabled {
		return nil
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return fmt.Errorf("failed to initialize trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", tc.ServiceName),
			attribute.String("service.version", Version),
		)),
	)
	otel.SetTracerProvider(tp)

	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	})
	slog.Info("tracing enabled", "exporter", tc.ExporterType, "service", tc.ServiceName)
	return nil
}
