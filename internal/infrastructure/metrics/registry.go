package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/servicelane/sms-compliance-gateway"

// Registry holds the gateway's domain metrics. Instruments come from the
// global meter provider; the host process decides where they are exported.
type Registry struct {
	meter metric.Meter

	ComplianceCheckDuration metric.Float64Histogram
	DecisionCounter         metric.Int64Counter
	BlockCounter            metric.Int64Counter
	CacheHitCounter         metric.Int64Counter
	CacheMissCounter        metric.Int64Counter
	SendDuration            metric.Float64Histogram
	SendCounter             metric.Int64Counter
	AuditWriteFailures      metric.Int64Counter
}

// NewRegistry creates and registers all instruments.
func NewRegistry() (*Registry, error) {
	meter := otel.Meter(meterName)
	r := &Registry{meter: meter}

	var err error
	if r.ComplianceCheckDuration, err = meter.Float64Histogram(
		"compliance.check.duration",
		metric.WithDescription("Duration of compliance checks in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("creating check duration histogram: %w", err)
	}

	if r.DecisionCounter, err = meter.Int64Counter(
		"compliance.decisions",
		metric.WithDescription("Compliance decisions by outcome"),
	); err != nil {
		return nil, fmt.Errorf("creating decision counter: %w", err)
	}

	if r.BlockCounter, err = meter.Int64Counter(
		"compliance.blocks",
		metric.WithDescription("Blocked sends by reason"),
	); err != nil {
		return nil, fmt.Errorf("creating block counter: %w", err)
	}

	if r.CacheHitCounter, err = meter.Int64Counter(
		"compliance.cache.hits",
		metric.WithDescription("Decision cache hits"),
	); err != nil {
		return nil, fmt.Errorf("creating cache hit counter: %w", err)
	}

	if r.CacheMissCounter, err = meter.Int64Counter(
		"compliance.cache.misses",
		metric.WithDescription("Decision cache misses"),
	); err != nil {
		return nil, fmt.Errorf("creating cache miss counter: %w", err)
	}

	if r.SendDuration, err = meter.Float64Histogram(
		"gateway.send.duration",
		metric.WithDescription("Transport send duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("creating send duration histogram: %w", err)
	}

	if r.SendCounter, err = meter.Int64Counter(
		"gateway.sends",
		metric.WithDescription("Gateway send outcomes (sent, queued, blocked, failed)"),
	); err != nil {
		return nil, fmt.Errorf("creating send counter: %w", err)
	}

	if r.AuditWriteFailures, err = meter.Int64Counter(
		"audit.write.failures",
		metric.WithDescription("Audit log append failures surfaced to observability"),
	); err != nil {
		return nil, fmt.Errorf("creating audit failure counter: %w", err)
	}

	return r, nil
}

// RecordDecision counts one decision with its outcome.
func (r *Registry) RecordDecision(ctx context.Context, outcome string) {
	if r == nil {
		return
	}
	r.DecisionCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordBlock counts a blocked send by reason.
func (r *Registry) RecordBlock(ctx context.Context, reason string) {
	if r == nil {
		return
	}
	r.BlockCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordSendOutcome counts a gateway outcome.
func (r *Registry) RecordSendOutcome(ctx context.Context, outcome string) {
	if r == nil {
		return
	}
	r.SendCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordCache counts a cache hit or miss.
func (r *Registry) RecordCache(ctx context.Context, hit bool) {
	if r == nil {
		return
	}
	if hit {
		r.CacheHitCounter.Add(ctx, 1)
		return
	}
	r.CacheMissCounter.Add(ctx, 1)
}

// RecordAuditFailure counts a failed audit append.
func (r *Registry) RecordAuditFailure(ctx context.Context) {
	if r == nil {
		return
	}
	r.AuditWriteFailures.Add(ctx, 1)
}
