package compliance

import (
	"time"

	"github.com/servicelane/sms-compliance-gateway/internal/domain/errors"
)

// MessageCategory is the regulatory class of an outbound message.
type MessageCategory string

const (
	CategoryMarketing     MessageCategory = "marketing"
	CategoryTransactional MessageCategory = "transactional"
)

func (c MessageCategory) String() string {
	return string(c)
}

// ParseMessageCategory validates a category string.
func ParseMessageCategory(s string) (MessageCategory, error) {
	switch MessageCategory(s) {
	case CategoryMarketing, CategoryTransactional:
		return MessageCategory(s), nil
	}
	return "", errors.NewValidationError("INVALID_CATEGORY", "unknown message category: "+s)
}

// BlockReason names why a send was refused. Policy blocks are values, not
// errors; the reason travels in results and audit entries.
type BlockReason string

const (
	BlockOptedOut             BlockReason = "opted_out"
	BlockDNC                  BlockReason = "dnc_listed"
	BlockNoConsent            BlockReason = "no_consent"
	BlockConsentExpired       BlockReason = "consent_expired"
	BlockQuietHours           BlockReason = "quiet_hours"
	BlockCategoryNotConsented BlockReason = "category_not_consented"
	BlockMonthlyLimit         BlockReason = "monthly_limit_reached"
	BlockRateLimited          BlockReason = "rate_limited"
	BlockCheckFailed          BlockReason = "compliance_check_failed"
	BlockTenantNotFound       BlockReason = "tenant_not_found"
)

func (r BlockReason) String() string {
	return string(r)
}

// CheckResult is the authoritative outcome of a compliance check for one
// (tenant, recipient, category) triple at one instant.
type CheckResult struct {
	CanSend              bool            `json:"can_send"`
	CanSendMarketing     bool            `json:"can_send_marketing"`
	CanSendTransactional bool            `json:"can_send_transactional"`
	BlockReason          BlockReason     `json:"block_reason,omitempty"`
	BlockDetail          string          `json:"block_detail,omitempty"`
	HasConsent           bool            `json:"has_consent"`
	IsOptedOut           bool            `json:"is_opted_out"`
	IsOnDNC              bool            `json:"is_on_dnc"`
	IsQuietHours         bool            `json:"is_quiet_hours"`
	Warnings             []string        `json:"warnings,omitempty"`
	CheckedAt            time.Time       `json:"checked_at"`
	FromCache            bool            `json:"from_cache"`
}

// Blocked builds a failed result with the given reason.
func Blocked(reason BlockReason, detail string) *CheckResult {
	return &CheckResult{
		CanSend:     false,
		BlockReason: reason,
		BlockDetail: detail,
		CheckedAt:   time.Now().UTC(),
	}
}

// AllowsCategory reports whether the result permits the given category.
func (r *CheckResult) AllowsCategory(category MessageCategory) bool {
	switch category {
	case CategoryMarketing:
		return r.CanSendMarketing
	case CategoryTransactional:
		return r.CanSendTransactional
	}
	return false
}

// AddWarning appends a non-fatal warning.
func (r *CheckResult) AddWarning(w string) {
	r.Warnings = append(r.Warnings, w)
}
