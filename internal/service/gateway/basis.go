package gateway

import (
	"github.com/servicelane/sms-compliance-gateway/internal/domain/consent"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/errors"
)

// BasisKind names how the recipient gave the business permission to text.
type BasisKind string

const (
	// BasisMissedCall: the recipient called the business and was not
	// answered. Calling in is implied consent to a follow-up text.
	BasisMissedCall BasisKind = "missed_call"
	// BasisFormSubmission: the recipient submitted a web form that included
	// SMS consent language.
	BasisFormSubmission BasisKind = "form_submission"
	// BasisLeadReply: the recipient texted the business first.
	BasisLeadReply BasisKind = "lead_reply"
	// BasisExistingCustomer: a standing business relationship, which carries
	// the longer implied-consent window.
	BasisExistingCustomer BasisKind = "existing_customer"
)

// ParseBasisKind validates a basis kind string.
func ParseBasisKind(s string) (BasisKind, error) {
	switch BasisKind(s) {
	case BasisMissedCall, BasisFormSubmission, BasisLeadReply, BasisExistingCustomer:
		return BasisKind(s), nil
	}
	return "", errors.NewValidationError("INVALID_CONSENT_BASIS", "unknown consent basis: "+s)
}

// ConsentBasis is the evidence accompanying a first-contact send.
type ConsentBasis struct {
	Kind BasisKind
	// Reference identifies the evidence: a call SID, a form submission ID,
	// or an inbound message ID.
	Reference string
	Language  string
}

// consentGrant maps the basis onto the consent taxonomy.
func (b ConsentBasis) consentGrant() (consent.Type, consent.Source) {
	switch b.Kind {
	case BasisFormSubmission:
		return consent.TypeExpressWritten, consent.SourceWebForm
	case BasisLeadReply:
		return consent.TypeExpressWritten, consent.SourceTextOptIn
	case BasisExistingCustomer:
		return consent.TypeImplied, consent.SourceExistingCustomer
	default: // BasisMissedCall
		return consent.TypeImplied, consent.SourcePhoneRecording
	}
}
