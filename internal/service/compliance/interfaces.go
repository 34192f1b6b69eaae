package compliance

import (
	"context"

	"github.com/google/uuid"

	"github.com/servicelane/sms-compliance-gateway/internal/domain/compliance"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/values"
	"github.com/servicelane/sms-compliance-gateway/internal/infrastructure/cache"
)

// Service is the compliance decision engine: the single authority on whether
// a message may be sent to a recipient right now.
type Service interface {
	// CheckCompliance runs the ordered policy checks for one (tenant,
	// recipient, category) triple. Policy blocks come back as results, not
	// errors; store failures are fail-closed into blocked results. The
	// returned error is reserved for invalid input.
	CheckCompliance(ctx context.Context, req CheckRequest) (*compliance.CheckResult, error)
}

// CheckRequest carries the inputs of one compliance check.
type CheckRequest struct {
	TenantID          uuid.UUID
	Phone             values.PhoneNumber
	Category          compliance.MessageCategory
	RecipientTimezone string
	// SkipCache forces a live evaluation. The gateway sets it after
	// recording consent in the same request.
	SkipCache bool
}

// DecisionCache is the read-through accelerator port. Implementations must
// delete entries on invalidation, never update them.
type DecisionCache interface {
	Get(ctx context.Context, tenantID uuid.UUID, phoneHash string) (*cache.DecisionSnapshot, error)
	Set(ctx context.Context, tenantID uuid.UUID, phoneHash string, snap *cache.DecisionSnapshot) error
	Invalidate(ctx context.Context, tenantID uuid.UUID, phoneHash string) error
}
