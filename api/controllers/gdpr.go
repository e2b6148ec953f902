package controllers

import (
	"net/http"
	"strings"

	"github.com/dvega/clienthub-backend/api/responses"
	"github.com/dvega/clienthub-backend/api/validators"
	"github.com/dvega/clienthub-backend/internal/gdpr"
	"github.com/dvega/clienthub-backend/pkg/logger"
)

// GDPRExport returns the full data-subject export document.
func GDPRExport(svc gdpr.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		customerID, err := uuidParam(r, "customerID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		doc, err := svc.Export(r.Context(), tenantID, customerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, doc)
	}
}

type eraseRequest struct {
	Hard bool `json:"hard"`
}

// GDPRErase anonymizes the customer, or removes the row when hard is set.
func GDPRErase(svc gdpr.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		customerID, err := uuidParam(r, "customerID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		// The body is optional; an empty post means a soft erase.
		var payload eraseRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		if err := svc.Erase(r.Context(), tenantID, customerID, payload.Hard); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"erased": true, "hard": payload.Hard})
	}
}

type consentRequest struct {
	Type      string         `json:"type" validate:"required,min=1,max=64"`
	Consented bool           `json:"consented"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ConsentUpdate records a consent grant or withdrawal.
func ConsentUpdate(svc gdpr.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		customerID, err := uuidParam(r, "customerID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload consentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := svc.UpdateConsent(r.Context(), tenantID, customerID, strings.TrimSpace(payload.Type), payload.Consented, payload.Metadata)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, status)
	}
}

// ConsentStatus returns the customer's full consent map.
func ConsentStatus(svc gdpr.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		customerID, err := uuidParam(r, "customerID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := svc.ConsentStatus(r.Context(), tenantID, customerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, status)
	}
}
