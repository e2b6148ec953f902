package controllers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvega/clienthub-backend/api/responses"
	"github.com/dvega/clienthub-backend/api/validators"
	"github.com/dvega/clienthub-backend/internal/customers"
	"github.com/dvega/clienthub-backend/pkg/enums"
	pkgerrors "github.com/dvega/clienthub-backend/pkg/errors"
	"github.com/dvega/clienthub-backend/pkg/logger"
	"github.com/dvega/clienthub-backend/pkg/types"
)

type createCustomerRequest struct {
	Email       string         `json:"email" validate:"required,email"`
	FirstName   *string        `json:"first_name,omitempty"`
	LastName    *string        `json:"last_name,omitempty"`
	Phone       *string        `json:"phone,omitempty"`
	Birthday    *time.Time     `json:"birthday,omitempty"`
	Gender      *string        `json:"gender,omitempty"`
	Preferences map[string]any `json:"preferences,omitempty"`
	Tags        []string       `json:"tags,omitempty" validate:"omitempty,dive,min=1,max=64"`
}

func (p createCustomerRequest) toInput() customers.CreateCustomerInput {
	return customers.CreateCustomerInput{
		Email:       p.Email,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		Phone:       p.Phone,
		Birthday:    p.Birthday,
		Gender:      p.Gender,
		Preferences: types.JSONMap(p.Preferences),
		Tags:        p.Tags,
	}
}

// CustomerCreate registers a new customer for the tenant.
func CustomerCreate(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createCustomerRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		customer, err := svc.Create(r.Context(), tenantID, payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, customer)
	}
}

// CustomerGet fetches one customer by id.
func CustomerGet(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
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

		includeDeleted := r.URL.Query().Get("include_deleted") == "true"

		customer, err := svc.GetByID(r.Context(), tenantID, customerID, includeDeleted)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, customer)
	}
}

// CustomerLookup fetches one customer by email.
func CustomerLookup(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		email := strings.TrimSpace(r.URL.Query().Get("email"))
		if email == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "email query parameter is required"))
			return
		}

		customer, err := svc.GetByEmail(r.Context(), tenantID, email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, customer)
	}
}

type updateCustomerRequest struct {
	FirstName   *string         `json:"first_name,omitempty"`
	LastName    *string         `json:"last_name,omitempty"`
	Phone       *string         `json:"phone,omitempty"`
	Birthday    *time.Time      `json:"birthday,omitempty"`
	Gender      *string         `json:"gender,omitempty"`
	Preferences *map[string]any `json:"preferences,omitempty"`
	Tags        *[]string       `json:"tags,omitempty"`
}

func (p updateCustomerRequest) toInput() customers.UpdateCustomerInput {
	input := customers.UpdateCustomerInput{
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Phone:     p.Phone,
		Birthday:  p.Birthday,
		Gender:    p.Gender,
		Tags:      p.Tags,
	}
	if p.Preferences != nil {
		prefs := types.JSONMap(*p.Preferences)
		input.Preferences = &prefs
	}
	return input
}

// CustomerUpdate adjusts the mutable profile fields.
func CustomerUpdate(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
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

		var payload updateCustomerRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		customer, err := svc.Update(r.Context(), tenantID, customerID, payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, customer)
	}
}

// CustomerDelete soft-deletes by default; ?hard=true removes the row.
func CustomerDelete(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
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

		hard := r.URL.Query().Get("hard") == "true"

		if err := svc.Delete(r.Context(), tenantID, customerID, hard); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, nil)
	}
}

// CustomerList returns a filtered, paginated customer page.
func CustomerList(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := pageFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter, err := filterFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), tenantID, filter, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

// CustomerSearch runs the free-text contact search.
func CustomerSearch(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		term := strings.TrimSpace(r.URL.Query().Get("q"))
		if term == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "q query parameter is required"))
			return
		}

		page, err := pageFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Search(r.Context(), tenantID, term, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

type mergeRequest struct {
	SourceID          uuid.UUID `json:"source_id" validate:"required"`
	TargetID          uuid.UUID `json:"target_id" validate:"required"`
	ReassignAddresses *bool     `json:"reassign_addresses,omitempty"`
	ReassignNotes     *bool     `json:"reassign_notes,omitempty"`
	MergeTags         *bool     `json:"merge_tags,omitempty"`
}

func (p mergeRequest) toInput() customers.MergeInput {
	boolOrDefault := func(v *bool, def bool) bool {
		if v == nil {
			return def
		}
		return *v
	}
	return customers.MergeInput{
		SourceID:          p.SourceID,
		TargetID:          p.TargetID,
		ReassignAddresses: boolOrDefault(p.ReassignAddresses, true),
		ReassignNotes:     boolOrDefault(p.ReassignNotes, true),
		MergeTags:         boolOrDefault(p.MergeTags, true),
	}
}

// CustomerMerge folds the source record into the target.
func CustomerMerge(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload mergeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		merged, err := svc.Merge(r.Context(), tenantID, payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, merged)
	}
}

func filterFromQuery(r *http.Request) (customers.Filter, error) {
	q := r.URL.Query()
	var filter customers.Filter

	optString := func(key string) *string {
		value := strings.TrimSpace(q.Get(key))
		if value == "" {
			return nil
		}
		return &value
	}

	filter.Email = optString("email")
	filter.FirstName = optString("first_name")
	filter.LastName = optString("last_name")
	filter.Phone = optString("phone")

	if raw := strings.TrimSpace(q.Get("segment")); raw != "" {
		segment, err := enums.ParseSegment(raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid segment")
		}
		filter.Segment = &segment
	}

	if raw := strings.TrimSpace(q.Get("tags")); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				filter.Tags = append(filter.Tags, tag)
			}
		}
	}

	cents, err := optCents(q.Get("min_total_spent"), "min_total_spent")
	if err != nil {
		return filter, err
	}
	filter.MinTotalSpentCents = cents

	cents, err = optCents(q.Get("max_total_spent"), "max_total_spent")
	if err != nil {
		return filter, err
	}
	filter.MaxTotalSpentCents = cents

	if raw := strings.TrimSpace(q.Get("min_total_orders")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			return filter, pkgerrors.New(pkgerrors.CodeValidation, "min_total_orders must be a non-negative integer")
		}
		filter.MinTotalOrders = &value
	}
	if raw := strings.TrimSpace(q.Get("max_total_orders")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			return filter, pkgerrors.New(pkgerrors.CodeValidation, "max_total_orders must be a non-negative integer")
		}
		filter.MaxTotalOrders = &value
	}

	at, err := optTime(q.Get("created_after"), "created_after")
	if err != nil {
		return filter, err
	}
	filter.CreatedAfter = at

	at, err = optTime(q.Get("created_before"), "created_before")
	if err != nil {
		return filter, err
	}
	filter.CreatedBefore = at

	filter.IncludeDeleted = q.Get("include_deleted") == "true"
	filter.OrderBy = strings.TrimSpace(q.Get("order_by"))
	filter.OrderDirection = strings.TrimSpace(q.Get("order_direction"))

	return filter, nil
}

func optCents(raw, field string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, field+" must be a decimal amount")
	}
	cents := customers.DecimalToCents(amount)
	return &cents, nil
}

func optTime(raw, field string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, field+" must be RFC3339")
	}
	return &at, nil
}
