package controllers

import (
	"net/http"
	"strings"

	"github.com/dvega/clienthub-backend/api/responses"
	"github.com/dvega/clienthub-backend/api/validators"
	"github.com/dvega/clienthub-backend/internal/customers"
	"github.com/dvega/clienthub-backend/pkg/enums"
	pkgerrors "github.com/dvega/clienthub-backend/pkg/errors"
	"github.com/dvega/clienthub-backend/pkg/logger"
)

type addressRequest struct {
	Type       string  `json:"type" validate:"required"`
	Line1      string  `json:"line1" validate:"required,min=1,max=255"`
	Line2      *string `json:"line2,omitempty" validate:"omitempty,max=255"`
	City       string  `json:"city" validate:"required,min=1,max=128"`
	State      *string `json:"state,omitempty" validate:"omitempty,max=128"`
	PostalCode string  `json:"postal_code" validate:"required,min=1,max=32"`
	Country    string  `json:"country" validate:"required,len=2"`
	IsDefault  bool    `json:"is_default"`
}

func (p addressRequest) toInput() (customers.AddressInput, error) {
	addressType, err := enums.ParseAddressType(p.Type)
	if err != nil {
		return customers.AddressInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid address type")
	}
	return customers.AddressInput{
		Type:       addressType,
		Line1:      validators.SanitizeString(p.Line1, 255),
		Line2:      p.Line2,
		City:       validators.SanitizeString(p.City, 128),
		State:      p.State,
		PostalCode: validators.SanitizeString(p.PostalCode, 32),
		Country:    strings.ToUpper(strings.TrimSpace(p.Country)),
		IsDefault:  p.IsDefault,
	}, nil
}

// AddressCreate attaches a new address to the customer.
func AddressCreate(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
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

		var payload addressRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		address, err := svc.AddAddress(r.Context(), tenantID, customerID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, address)
	}
}

// AddressList returns the customer's addresses, optionally by type.
func AddressList(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
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

		var addressType *enums.AddressType
		if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
			parsed, err := enums.ParseAddressType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid address type"))
				return
			}
			addressType = &parsed
		}

		addresses, err := svc.ListAddresses(r.Context(), tenantID, customerID, addressType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, addresses)
	}
}
