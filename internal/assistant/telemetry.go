package assistant

import (
	"context"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/loqalabs/pesu/internal/assistant"

type instruments struct {
	chains      metric.Int64Counter
	failures    metric.Int64Counter
	stepLatency metric.Float64Histogram
}

func newInstruments(logger *slog.Logger) instruments {
	meter := otel.Meter(instrumentationName)
	var inst instruments
	var err error
	// On error the SDK still hands back a no-op instrument.
	if inst.chains, err = meter.Int64Counter("pesu.chain.runs",
		metric.WithDescription("Completed recording chains by outcome")); err != nil {
		logger.Warn("create chain counter", slogError(err))
	}
	if inst.failures, err = meter.Int64Counter("pesu.remote.failures",
		metric.WithDescription("Remote call failures by step")); err != nil {
		logger.Warn("create failure counter", slogError(err))
	}
	if inst.stepLatency, err = meter.Float64Histogram("pesu.chain.step.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Latency of each chain step")); err != nil {
		logger.Warn("create latency histogram", slogError(err))
	}
	return inst
}

func (i instruments) recordStep(ctx context.Context, step string, d time.Duration, failed bool) {
	if i.stepLatency != nil {
		i.stepLatency.Record(ctx, d.Seconds(), metric.WithAttributes(
			attribute.String("step", step),
			attribute.Bool("failed", failed),
		))
	}
	if failed && i.failures != nil {
		i.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("step", step)))
	}
}

func (i instruments) recordChain(ctx context.Context, outcome string) {
	if i.chains != nil {
		i.chains.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

// reportFailure forwards a remote failure to Sentry. It is a no-op until
// sentry.Init has been called.
func reportFailure(runID, step string, err error) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("step", step)
		scope.SetTag("run_id", runID)
		sentry.CaptureException(err)
	})
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
