package controllers

import (
	"net/http"

	"github.com/dvega/clienthub-backend/api/responses"
	"github.com/dvega/clienthub-backend/api/validators"
	"github.com/dvega/clienthub-backend/internal/customers"
	"github.com/dvega/clienthub-backend/pkg/logger"
)

type noteRequest struct {
	Note      string  `json:"note" validate:"required,min=1,max=4000"`
	CreatedBy *string `json:"created_by,omitempty" validate:"omitempty,max=255"`
}

func (p noteRequest) toInput() customers.NoteInput {
	return customers.NoteInput{
		Note:      validators.SanitizeString(p.Note, 4000),
		CreatedBy: p.CreatedBy,
	}
}

// NoteCreate appends a free-form note to the customer record.
func NoteCreate(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
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

		var payload noteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		note, err := svc.AddNote(r.Context(), tenantID, customerID, payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, note)
	}
}

// NoteList returns the customer's notes, newest first.
func NoteList(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
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

		notes, err := svc.ListNotes(r.Context(), tenantID, customerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, notes)
	}
}
