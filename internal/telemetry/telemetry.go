package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/theblitlabs/sentinel/internal/core/config"
	"github.com/theblitlabs/sentinel/pkg/logger"
)

var (
	Meter metric.Meter
)

// InitTelemetry initializes OpenTelemetry with the OTLP exporter. A collector
// that cannot be reached downgrades telemetry to a no-op instead of failing
// server startup.
func InitTelemetry(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Telemetry.Enabled {
		return noop, nil
	}

	log := logger.WithComponent("telemetry")

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.Telemetry.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, cfg.Telemetry.OTLPEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		log.Warn().Err(err).
			Str("endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry collector unreachable, continuing without telemetry")
		return noop, nil
	}

	var tracerProvider *sdktrace.TracerProvider
	if cfg.Telemetry.CaptureTraces {
		traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			log.Warn().Err(err).Msg("Failed to create trace exporter, continuing without telemetry")
			conn.Close()
			return noop, nil
		}
		tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(traceExporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tracerProvider)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	}

	var meterProvider *sdkmetric.MeterProvider
	if cfg.Telemetry.CaptureMetrics {
		metricExporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
		if err != nil {
			log.Warn().Err(err).Msg("Failed to create metric exporter, continuing without telemetry")
			conn.Close()
			return noop, nil
		}
		meterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(
				metricExporter,
				sdkmetric.WithInterval(cfg.Telemetry.MetricsInterval),
			)),
		)
		otel.SetMeterProvider(meterProvider)
		Meter = meterProvider.Meter(cfg.Telemetry.ServiceName)
	}

	return func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()

		var errs []error
		if tracerProvider != nil {
			if err := tracerProvider.Shutdown(cctx); err != nil {
				errs = append(errs, fmt.Errorf("failed to shutdown tracer provider: %w", err))
			}
		}
		if meterProvider != nil {
			if err := meterProvider.Shutdown(cctx); err != nil {
				errs = append(errs, fmt.Errorf("failed to shutdown meter provider: %w", err))
			}
		}
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close gRPC connection: %w", err))
		}

		if len(errs) > 0 {
			return fmt.Errorf("shutdown errors: %v", errs)
		}
		return nil
	}, nil
}
