package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/servicelane/sms-compliance-gateway/internal/domain/audit"
	"github.com/servicelane/sms-compliance-gateway/internal/infrastructure/metrics"
)

// Ensure Log implements the domain port.
var _ audit.Logger = (*Log)(nil)

// Log is the write side of the compliance audit trail. Append failures are
// surfaced to logs and metrics but never propagate: the decision being
// audited has already been made and must still be returned to the caller.
type Log struct {
	repo    audit.Repository
	logger  *zap.Logger
	metrics *metrics.Registry
}

// NewLog creates the audit logger.
func NewLog(repo audit.Repository, logger *zap.Logger, registry *metrics.Registry) *Log {
	return &Log{repo: repo, logger: logger, metrics: registry}
}

// Record appends one entry.
func (l *Log) Record(ctx context.Context, entry *audit.Entry) {
	if err := l.repo.Append(ctx, entry); err != nil {
		l.metrics.RecordAuditFailure(ctx)
		l.logger.Error("audit log append failed",
			zap.String("event_type", string(entry.EventType)),
			zap.String("tenant_id", entry.TenantID.String()),
			zap.Error(err),
		)
	}
}
