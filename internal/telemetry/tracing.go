package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope used for pipeline spans.
const TracerName = "github.com/Log-Tools/telegram-ingest"

// Span attribute keys shared by every ingestion span.
const (
	AttrRunID     = attribute.Key("ingest.run_id")
	AttrChatID    = attribute.Key("telegram.chat_id")
	AttrMessageID = attribute.Key("telegram.message_id")
)

// TracingConfig describes the process that emits spans. Endpoint falls back
// to OTEL_EXPORTER_OTLP_ENDPOINT.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	RunID          string
	Topic          string
	Endpoint       string

	// SampleRatio in (0, 1]; anything else samples every trace
	SampleRatio float64
}

func (c TracingConfig) endpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
}

func (c TracingConfig) sampler() sdktrace.Sampler {
	if c.SampleRatio <= 0 || c.SampleRatio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SampleRatio))
}

// InitTracing installs an OTLP/gRPC tracer provider whose resource carries the
// ingestion run id. Without an endpoint tracing stays a no-op.
func InitTracing(cfg TracingConfig, logger *slog.Logger) (func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	endpoint := cfg.endpoint()
	if endpoint == "" {
		logger.Info("tracing disabled: OTEL_EXPORTER_OTLP_ENDPOINT not set")
		return func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithEndpoint(endpoint),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := tracingResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(cfg.sampler()),
	)
	otel.SetTracerProvider(provider)
	logger.Info("tracing initialized", slog.String("endpoint", endpoint), slog.String("run_id", cfg.RunID))

	return func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown tracer provider", slog.Any("err", err))
		}
	}, nil
}

func tracingResource(ctx context.Context, cfg TracingConfig) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.MessagingSystemKey.String("kafka"),
	}
	if cfg.RunID != "" {
		attrs = append(attrs, AttrRunID.String(cfg.RunID))
	}
	if cfg.Topic != "" {
		attrs = append(attrs, semconv.MessagingDestinationNameKey.String(cfg.Topic))
	}

	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// StartDispatchSpan starts the span covering normalize and publish of one
// inbound message.
func StartDispatchSpan(ctx context.Context, chatID int64, messageID int) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "ingest.dispatch",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(AttrChatID.Int64(chatID), AttrMessageID.Int(messageID)),
	)
}

// RecordError records err on span and marks it failed.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
