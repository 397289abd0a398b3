// Package metrics counts injected faults, verification outcomes and recoveries
// of a scenario run. Instruments are OTel, read through a prometheus registry
// which can be pushed to a Pushgateway when the run ends.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/litmuschaos/stretch-dr-go/pkg/recovery"
	"github.com/litmuschaos/stretch-dr-go/pkg/types"
	"github.com/palantir/stacktrace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/litmuschaos/stretch-dr-go"

// Metrics holds the instruments of one scenario run
type Metrics struct {
	Registry *prometheus.Registry

	provider         *sdkmetric.MeterProvider
	scenario         attribute.KeyValue
	faults           metric.Int64Counter
	outcomes         metric.Int64Counter
	recoveries       metric.Int64Counter
	recoveryDuration metric.Float64Histogram

	mu             sync.Mutex
	recoveryStarts time.Time
}

// New registers the instruments in a fresh registry
func New(scenario string) (*Metrics, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, stacktrace.Propagate(err, "could not create the prometheus exporter")
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(meterName)

	m := &Metrics{Registry: registry, provider: provider, scenario: attribute.String("scenario", scenario)}
	if m.faults, err = meter.Int64Counter("stretch_faults_injected", metric.WithDescription("Faults injected by kind")); err != nil {
		return nil, err
	}
	if m.outcomes, err = meter.Int64Counter("stretch_outcomes", metric.WithDescription("Verification outcomes by kind and value")); err != nil {
		return nil, err
	}
	if m.recoveries, err = meter.Int64Counter("stretch_recoveries", metric.WithDescription("Recovery attempts by final state")); err != nil {
		return nil, err
	}
	if m.recoveryDuration, err = meter.Float64Histogram("stretch_recovery_duration",
		metric.WithDescription("Time from the start of recovery to its final state"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// FaultInjected counts one injected fault
func (m *Metrics) FaultInjected(ctx context.Context, kind types.FaultKind, name string) {
	m.faults.Add(ctx, 1, metric.WithAttributes(m.scenario, attribute.String("kind", string(kind)), attribute.String("name", name)))
}

// Outcome counts one outcome record
func (m *Metrics) Outcome(ctx context.Context, o types.OutcomeRecord) {
	value := "false"
	switch {
	case o.Skipped():
		value = "skipped"
	case o.Value():
		value = "true"
	}
	m.outcomes.Add(ctx, 1, metric.WithAttributes(
		m.scenario,
		attribute.String("kind", string(o.Kind())),
		attribute.String("value", value),
		attribute.String("subject", o.Subject()),
	))
}

// ObserveTransition is a recovery.Machine hook. Recovery time runs from the
// last entry into Recovering to Verified or Failed.
func (m *Metrics) ObserveTransition(t recovery.Transition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch t.To {
	case recovery.Recovering:
		m.recoveryStarts = t.At
	case recovery.Verified, recovery.Failed:
		attrs := metric.WithAttributes(m.scenario, attribute.String("state", string(t.To)))
		m.recoveries.Add(context.Background(), 1, attrs)
		if !m.recoveryStarts.IsZero() {
			m.recoveryDuration.Record(context.Background(), t.At.Sub(m.recoveryStarts).Seconds(), attrs)
			m.recoveryStarts = time.Time{}
		}
	}
}

// Push sends the registry to a Pushgateway under the job name
func (m *Metrics) Push(ctx context.Context, url, job, runID string) error {
	err := push.New(url, job).
		Gatherer(m.Registry).
		Grouping("run_id", runID).
		PushContext(ctx)
	if err != nil {
		return stacktrace.Propagate(err, "could not push metrics to %s", url)
	}
	return nil
}

// Shutdown flushes and stops the meter provider
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}
