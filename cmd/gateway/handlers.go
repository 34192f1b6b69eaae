package main

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/servicelane/sms-compliance-gateway/internal/domain/compliance"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/consent"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/dnc"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/errors"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/values"
	compliancesvc "github.com/servicelane/sms-compliance-gateway/internal/service/compliance"
	consentsvc "github.com/servicelane/sms-compliance-gateway/internal/service/consent"
	dncsvc "github.com/servicelane/sms-compliance-gateway/internal/service/dnc"
	"github.com/servicelane/sms-compliance-gateway/internal/service/gateway"
	"github.com/servicelane/sms-compliance-gateway/internal/service/optout"
)

type apiHandler struct {
	logger     *zap.Logger
	gateway    gateway.Service
	compliance compliancesvc.Service
	recorder   *consentsvc.Recorder
	dncReg     *dncsvc.Registry
	inbound    *optout.Handler
}

func (h *apiHandler) routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/messages", h.sendMessage)
	mux.HandleFunc("POST /v1/compliance/check", h.checkCompliance)
	mux.HandleFunc("POST /v1/consent", h.recordConsent)
	mux.HandleFunc("POST /v1/optout", h.recordOptOut)
	mux.HandleFunc("POST /v1/inbound", h.handleInbound)
	mux.HandleFunc("POST /v1/dnc", h.addToDnc)
	mux.HandleFunc("POST /v1/dnc/import", h.importDnc)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

type sendMessageRequest struct {
	TenantID          string   `json:"tenant_id"`
	Phone             string   `json:"phone"`
	Body              string   `json:"body"`
	MediaURLs         []string `json:"media_urls,omitempty"`
	Category          string   `json:"category"`
	RecipientTimezone string   `json:"recipient_timezone,omitempty"`
	DisableQueueing   bool     `json:"disable_queueing,omitempty"`
	ConsentBasis      *struct {
		Kind      string `json:"kind"`
		Reference string `json:"reference"`
		Language  string `json:"language,omitempty"`
	} `json:"consent_basis,omitempty"`
}

func (h *apiHandler) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.NewValidationError("INVALID_JSON", "request body is not valid JSON"))
		return
	}

	tenantID, phone, err := parseRecipient(req.TenantID, req.Phone)
	if err != nil {
		h.writeError(w, err)
		return
	}
	category, err := compliance.ParseMessageCategory(req.Category)
	if err != nil {
		h.writeError(w, err)
		return
	}

	sendReq := gateway.SendRequest{
		TenantID:          tenantID,
		Phone:             phone,
		Body:              req.Body,
		MediaURLs:         req.MediaURLs,
		Category:          category,
		RecipientTimezone: req.RecipientTimezone,
		DisableQueueing:   req.DisableQueueing,
	}
	if req.ConsentBasis != nil {
		kind, err := gateway.ParseBasisKind(req.ConsentBasis.Kind)
		if err != nil {
			h.writeError(w, err)
			return
		}
		sendReq.ConsentBasis = &gateway.ConsentBasis{
			Kind:      kind,
			Reference: req.ConsentBasis.Reference,
			Language:  req.ConsentBasis.Language,
		}
	}

	result, err := h.gateway.SendCompliantMessage(r.Context(), sendReq)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

type checkRequest struct {
	TenantID          string `json:"tenant_id"`
	Phone             string `json:"phone"`
	Category          string `json:"category"`
	RecipientTimezone string `json:"recipient_timezone,omitempty"`
}

func (h *apiHandler) checkCompliance(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.NewValidationError("INVALID_JSON", "request body is not valid JSON"))
		return
	}
	tenantID, phone, err := parseRecipient(req.TenantID, req.Phone)
	if err != nil {
		h.writeError(w, err)
		return
	}
	category, err := compliance.ParseMessageCategory(req.Category)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.compliance.CheckCompliance(r.Context(), compliancesvc.CheckRequest{
		TenantID:          tenantID,
		Phone:             phone,
		Category:          category,
		RecipientTimezone: req.RecipientTimezone,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

type recordConsentRequest struct {
	TenantID string        `json:"tenant_id"`
	Phone    string        `json:"phone"`
	Type     string        `json:"type"`
	Source   string        `json:"source"`
	Scope    consent.Scope `json:"scope"`
	Language string        `json:"language,omitempty"`
	Actor    string        `json:"actor,omitempty"`
}

func (h *apiHandler) recordConsent(w http.ResponseWriter, r *http.Request) {
	var req recordConsentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.NewValidationError("INVALID_JSON", "request body is not valid JSON"))
		return
	}
	tenantID, phone, err := parseRecipient(req.TenantID, req.Phone)
	if err != nil {
		h.writeError(w, err)
		return
	}
	consentType, err := consent.ParseType(req.Type)
	if err != nil {
		h.writeError(w, err)
		return
	}
	source, err := consent.ParseSource(req.Source)
	if err != nil {
		h.writeError(w, err)
		return
	}

	rec, err := h.recorder.RecordConsent(r.Context(), consentsvc.RecordConsentRequest{
		TenantID: tenantID,
		Phone:    phone,
		Type:     consentType,
		Source:   source,
		Scope:    req.Scope,
		Language: req.Language,
		Actor:    req.Actor,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, rec)
}

type recordOptOutRequest struct {
	TenantID         string `json:"tenant_id"`
	Phone            string `json:"phone"`
	Reason           string `json:"reason"`
	TriggerMessageID string `json:"trigger_message_id,omitempty"`
}

func (h *apiHandler) recordOptOut(w http.ResponseWriter, r *http.Request) {
	var req recordOptOutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.NewValidationError("INVALID_JSON", "request body is not valid JSON"))
		return
	}
	tenantID, phone, err := parseRecipient(req.TenantID, req.Phone)
	if err != nil {
		h.writeError(w, err)
		return
	}
	reason, err := consent.ParseOptOutReason(req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.recorder.RecordOptOut(r.Context(), tenantID, phone, reason, req.TriggerMessageID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type inboundRequest struct {
	TenantID  string `json:"tenant_id"`
	Phone     string `json:"phone"`
	Body      string `json:"body"`
	MessageID string `json:"message_id"`
}

func (h *apiHandler) handleInbound(w http.ResponseWriter, r *http.Request) {
	var req inboundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.NewValidationError("INVALID_JSON", "request body is not valid JSON"))
		return
	}
	tenantID, phone, err := parseRecipient(req.TenantID, req.Phone)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.inbound.HandleInbound(r.Context(), tenantID, phone, req.Body, req.MessageID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

type addDncRequest struct {
	TenantID string `json:"tenant_id,omitempty"`
	Phone    string `json:"phone"`
	Source   string `json:"source"`
}

func (h *apiHandler) addToDnc(w http.ResponseWriter, r *http.Request) {
	var req addDncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.NewValidationError("INVALID_JSON", "request body is not valid JSON"))
		return
	}
	phone, err := values.NewPhoneNumber(req.Phone)
	if err != nil {
		h.writeError(w, errors.NewValidationError("INVALID_PHONE", err.Error()))
		return
	}
	source, err := dnc.ParseSource(req.Source)
	if err != nil {
		h.writeError(w, err)
		return
	}
	tenantID, err := parseOptionalTenant(req.TenantID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	entry, err := h.dncReg.AddToDnc(r.Context(), tenantID, phone, source)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, entry)
}

type importDncRequest struct {
	TenantID string   `json:"tenant_id,omitempty"`
	Numbers  []string `json:"numbers"`
	Source   string   `json:"source"`
}

func (h *apiHandler) importDnc(w http.ResponseWriter, r *http.Request) {
	var req importDncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.NewValidationError("INVALID_JSON", "request body is not valid JSON"))
		return
	}
	source, err := dnc.ParseSource(req.Source)
	if err != nil {
		h.writeError(w, err)
		return
	}
	tenantID, err := parseOptionalTenant(req.TenantID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.dncReg.BulkImport(r.Context(), tenantID, req.Numbers, source)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func parseRecipient(tenantID, phone string) (uuid.UUID, values.PhoneNumber, error) {
	id, err := uuid.Parse(tenantID)
	if err != nil {
		return uuid.Nil, values.PhoneNumber{}, errors.NewValidationError("INVALID_TENANT", "tenant_id must be a UUID")
	}
	p, err := values.NewPhoneNumber(phone)
	if err != nil {
		return uuid.Nil, values.PhoneNumber{}, errors.NewValidationError("INVALID_PHONE", err.Error())
	}
	return id, p, nil
}

func parseOptionalTenant(tenantID string) (*uuid.UUID, error) {
	if tenantID == "" {
		return nil, nil
	}
	id, err := uuid.Parse(tenantID)
	if err != nil {
		return nil, errors.NewValidationError("INVALID_TENANT", "tenant_id must be a UUID")
	}
	return &id, nil
}

func (h *apiHandler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("writing response", zap.Error(err))
	}
}

func (h *apiHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := map[string]interface{}{"error": err.Error()}

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		switch appErr.Type {
		case errors.ErrorTypeValidation:
			status = http.StatusBadRequest
		case errors.ErrorTypeNotFound:
			status = http.StatusNotFound
		case errors.ErrorTypeConflict:
			status = http.StatusConflict
		case errors.ErrorTypeBusiness, errors.ErrorTypeCompliance:
			status = http.StatusUnprocessableEntity
		case errors.ErrorTypeExternal:
			status = http.StatusBadGateway
		}
		body["code"] = appErr.Code
		body["type"] = string(appErr.Type)
	}
	if status >= 500 {
		h.logger.Error("request failed", zap.Error(err))
	}
	h.writeJSON(w, status, body)
}
