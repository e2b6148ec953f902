package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dvega/clienthub-backend/pkg/db"
	"github.com/dvega/clienthub-backend/pkg/db/models"
	"github.com/dvega/clienthub-backend/pkg/enums"
	pkgerrors "github.com/dvega/clienthub-backend/pkg/errors"
	"github.com/dvega/clienthub-backend/pkg/logger"
	"github.com/dvega/clienthub-backend/pkg/pagination"
	"github.com/dvega/clienthub-backend/pkg/types"
)

// Event types emitted on the customer-events topic.
const (
	EventCustomerMerged = "customer.merged"
)

// NoteAnonymizedSentinel replaces note attribution after GDPR erasure.
const NoteAnonymizedSentinel = "anonymized"

type customerRepository interface {
	Create(ctx context.Context, customer *models.Customer) error
	FindByID(ctx context.Context, tenantID, id uuid.UUID, includeDeleted bool) (*models.Customer, error)
	FindByEmail(ctx context.Context, tenantID uuid.UUID, email string, includeDeleted bool) (*models.Customer, error)
	EmailExists(ctx context.Context, tenantID uuid.UUID, email string) (bool, error)
	Update(ctx context.Context, customer *models.Customer) error
	List(ctx context.Context, tenantID uuid.UUID, filter Filter, page pagination.Params) ([]models.Customer, int64, error)
	Search(ctx context.Context, tenantID uuid.UUID, term string, page pagination.Params) ([]models.Customer, int64, error)

	FindByIDWithTx(tx *gorm.DB, tenantID, id uuid.UUID) (*models.Customer, error)
	UpdateWithTx(tx *gorm.DB, customer *models.Customer) error
	HardDeleteWithTx(tx *gorm.DB, customerID uuid.UUID) error

	CreateAddressWithTx(tx *gorm.DB, address *models.Address) error
	ListAddresses(ctx context.Context, customerID uuid.UUID, addressType *enums.AddressType) ([]models.Address, error)
	ReassignAddressesWithTx(tx *gorm.DB, fromCustomerID, toCustomerID uuid.UUID) error
	DeleteAddressesWithTx(tx *gorm.DB, customerID uuid.UUID) error

	CreateNote(ctx context.Context, note *models.CustomerNote) error
	ListNotes(ctx context.Context, customerID uuid.UUID) ([]models.CustomerNote, error)
	ReassignNotesWithTx(tx *gorm.DB, fromCustomerID, toCustomerID uuid.UUID) error
	DeleteNotesWithTx(tx *gorm.DB, customerID uuid.UUID) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventPublisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

// Service exposes customer lifecycle operations.
type Service interface {
	Create(ctx context.Context, tenantID uuid.UUID, input CreateCustomerInput) (*CustomerDTO, error)
	GetByID(ctx context.Context, tenantID, id uuid.UUID, includeDeleted bool) (*CustomerDTO, error)
	GetByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*CustomerDTO, error)
	Update(ctx context.Context, tenantID, id uuid.UUID, input UpdateCustomerInput) (*CustomerDTO, error)
	Delete(ctx context.Context, tenantID, id uuid.UUID, hard bool) error
	List(ctx context.Context, tenantID uuid.UUID, filter Filter, page pagination.Params) (*CustomerPage, error)
	Search(ctx context.Context, tenantID uuid.UUID, term string, page pagination.Params) (*CustomerPage, error)
	UpdateAggregates(ctx context.Context, tenantID, id uuid.UUID, input AggregateUpdateInput) (*CustomerDTO, error)
	AddAddress(ctx context.Context, tenantID, customerID uuid.UUID, input AddressInput) (*AddressDTO, error)
	ListAddresses(ctx context.Context, tenantID, customerID uuid.UUID, addressType *enums.AddressType) ([]AddressDTO, error)
	AddNote(ctx context.Context, tenantID, customerID uuid.UUID, input NoteInput) (*NoteDTO, error)
	ListNotes(ctx context.Context, tenantID, customerID uuid.UUID) ([]NoteDTO, error)
	Merge(ctx context.Context, tenantID uuid.UUID, input MergeInput) (*CustomerDTO, error)
}

type service struct {
	repo      customerRepository
	tx        txRunner
	logg      *logger.Logger
	publisher eventPublisher
	now       func() time.Time
}

// ServiceParams wires the customer service collaborators.
type ServiceParams struct {
	Repo      customerRepository
	Tx        txRunner
	Logger    *logger.Logger
	Publisher eventPublisher
}

// NewService builds a customer service with the provided collaborators. The
// publisher is optional; a nil publisher disables event emission.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("customer repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		logg:      params.Logger,
		publisher: params.Publisher,
		now:       time.Now,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *service) Create(ctx context.Context, tenantID uuid.UUID, input CreateCustomerInput) (*CustomerDTO, error) {
	email := normalizeEmail(input.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if !strings.Contains(email, "@") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid email")
	}

	exists, err := s.repo.EmailExists(ctx, tenantID, email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check email uniqueness")
	}
	if exists {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already in use for tenant")
	}

	input.Email = email
	customer := input.ToModel(tenantID)
	if err := s.repo.Create(ctx, customer); err != nil {
		// The pre-check races concurrent creates; the partial unique index
		// is the backstop.
		if db.IsUniqueViolation(err, "uq_customers_tenant_email") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already in use for tenant")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create customer")
	}
	return FromModel(customer), nil
}

func (s *service) GetByID(ctx context.Context, tenantID, id uuid.UUID, includeDeleted bool) (*CustomerDTO, error) {
	customer, err := s.repo.FindByID(ctx, tenantID, id, includeDeleted)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}
	return FromModel(customer), nil
}

func (s *service) GetByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*CustomerDTO, error) {
	customer, err := s.repo.FindByEmail(ctx, tenantID, normalizeEmail(email), false)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}
	return FromModel(customer), nil
}

func (s *service) Update(ctx context.Context, tenantID, id uuid.UUID, input UpdateCustomerInput) (*CustomerDTO, error) {
	customer, err := s.repo.FindByID(ctx, tenantID, id, false)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}

	if input.FirstName != nil {
		customer.FirstName = cloneStringPtr(input.FirstName)
	}
	if input.LastName != nil {
		customer.LastName = cloneStringPtr(input.LastName)
	}
	if input.Phone != nil {
		customer.Phone = cloneStringPtr(input.Phone)
	}
	if input.Birthday != nil {
		cpy := *input.Birthday
		customer.Birthday = &cpy
	}
	if input.Gender != nil {
		customer.Gender = cloneStringPtr(input.Gender)
	}
	if input.Preferences != nil {
		customer.Preferences = *input.Preferences
	}
	if input.Tags != nil {
		customer.Tags = append(types.StringList{}, (*input.Tags)...)
	}
	customer.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, customer); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update customer")
	}
	return FromModel(customer), nil
}

func (s *service) Delete(ctx context.Context, tenantID, id uuid.UUID, hard bool) error {
	if !hard {
		customer, err := s.repo.FindByID(ctx, tenantID, id, false)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
		}
		now := s.now()
		customer.DeletedAt = &now
		customer.UpdatedAt = now
		if err := s.repo.Update(ctx, customer); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "soft delete customer")
		}
		return nil
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		customer, err := s.repo.FindByIDWithTx(tx, tenantID, id)
		if err != nil {
			return err
		}
		if err := s.repo.DeleteAddressesWithTx(tx, customer.ID); err != nil {
			return err
		}
		if err := s.repo.DeleteNotesWithTx(tx, customer.ID); err != nil {
			return err
		}
		return s.repo.HardDeleteWithTx(tx, customer.ID)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "hard delete customer")
	}
	return nil
}

func (s *service) List(ctx context.Context, tenantID uuid.UUID, filter Filter, page pagination.Params) (*CustomerPage, error) {
	rows, total, err := s.repo.List(ctx, tenantID, filter, page)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list customers")
	}
	return buildPage(rows, page, total), nil
}

func (s *service) Search(ctx context.Context, tenantID uuid.UUID, term string, page pagination.Params) (*CustomerPage, error) {
	if strings.TrimSpace(term) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "search term is required")
	}
	rows, total, err := s.repo.Search(ctx, tenantID, term, page)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "search customers")
	}
	return buildPage(rows, page, total), nil
}

func buildPage(rows []models.Customer, page pagination.Params, total int64) *CustomerPage {
	shape := pagination.NewResult(page, total)
	items := make([]CustomerDTO, 0, len(rows))
	for i := range rows {
		items = append(items, *FromModel(&rows[i]))
	}
	return &CustomerPage{
		Items:      items,
		Page:       shape.Page,
		PageSize:   shape.PageSize,
		Total:      shape.Total,
		TotalPages: shape.TotalPages,
	}
}

func (s *service) UpdateAggregates(ctx context.Context, tenantID, id uuid.UUID, input AggregateUpdateInput) (*CustomerDTO, error) {
	if input.TotalOrders < 0 || input.TotalSpent.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "aggregates must be non-negative")
	}

	customer, err := s.repo.FindByID(ctx, tenantID, id, false)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}

	customer.TotalOrders = input.TotalOrders
	customer.TotalSpentCents = DecimalToCents(input.TotalSpent)
	customer.AverageOrderValueCents = averageOrderValueCents(customer.TotalSpentCents, customer.TotalOrders)
	if input.LastOrderAt != nil {
		cpy := *input.LastOrderAt
		customer.LastOrderAt = &cpy
		if customer.FirstOrderAt == nil {
			first := cpy
			customer.FirstOrderAt = &first
		}
	}
	customer.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, customer); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update aggregates")
	}
	return FromModel(customer), nil
}

func averageOrderValueCents(totalSpentCents int64, totalOrders int) int64 {
	if totalOrders <= 0 {
		return 0
	}
	return totalSpentCents / int64(totalOrders)
}

func (s *service) AddAddress(ctx context.Context, tenantID, customerID uuid.UUID, input AddressInput) (*AddressDTO, error) {
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid address type")
	}

	customer, err := s.repo.FindByID(ctx, tenantID, customerID, false)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}

	address := &models.Address{
		ID:         uuid.New(),
		CustomerID: customer.ID,
		Type:       input.Type,
		Line1:      input.Line1,
		Line2:      cloneStringPtr(input.Line2),
		City:       input.City,
		State:      cloneStringPtr(input.State),
		PostalCode: input.PostalCode,
		Country:    input.Country,
		IsDefault:  input.IsDefault,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.CreateAddressWithTx(tx, address)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create address")
	}
	return AddressFromModel(address), nil
}

func (s *service) ListAddresses(ctx context.Context, tenantID, customerID uuid.UUID, addressType *enums.AddressType) ([]AddressDTO, error) {
	customer, err := s.repo.FindByID(ctx, tenantID, customerID, false)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}

	rows, err := s.repo.ListAddresses(ctx, customer.ID, addressType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list addresses")
	}
	dtos := make([]AddressDTO, 0, len(rows))
	for i := range rows {
		dtos = append(dtos, *AddressFromModel(&rows[i]))
	}
	return dtos, nil
}

func (s *service) AddNote(ctx context.Context, tenantID, customerID uuid.UUID, input NoteInput) (*NoteDTO, error) {
	if strings.TrimSpace(input.Note) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "note text is required")
	}

	customer, err := s.repo.FindByID(ctx, tenantID, customerID, false)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}

	note := &models.CustomerNote{
		ID:         uuid.New(),
		CustomerID: customer.ID,
		Note:       input.Note,
		CreatedBy:  cloneStringPtr(input.CreatedBy),
	}
	if err := s.repo.CreateNote(ctx, note); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create note")
	}
	return NoteFromModel(note), nil
}

func (s *service) ListNotes(ctx context.Context, tenantID, customerID uuid.UUID) ([]NoteDTO, error) {
	customer, err := s.repo.FindByID(ctx, tenantID, customerID, false)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}

	rows, err := s.repo.ListNotes(ctx, customer.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notes")
	}
	dtos := make([]NoteDTO, 0, len(rows))
	for i := range rows {
		dtos = append(dtos, *NoteFromModel(&rows[i]))
	}
	return dtos, nil
}

func (s *service) Merge(ctx context.Context, tenantID uuid.UUID, input MergeInput) (*CustomerDTO, error) {
	if input.SourceID == input.TargetID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot merge a customer into itself")
	}

	var merged *models.Customer
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		source, err := s.repo.FindByIDWithTx(tx, tenantID, input.SourceID)
		if err != nil {
			return err
		}
		target, err := s.repo.FindByIDWithTx(tx, tenantID, input.TargetID)
		if err != nil {
			return err
		}

		if input.ReassignAddresses {
			if err := s.repo.ReassignAddressesWithTx(tx, source.ID, target.ID); err != nil {
				return err
			}
		}
		if input.ReassignNotes {
			if err := s.repo.ReassignNotesWithTx(tx, source.ID, target.ID); err != nil {
				return err
			}
		}
		if input.MergeTags {
			target.Tags = target.Tags.Union(source.Tags)
		}

		target.TotalOrders += source.TotalOrders
		target.TotalSpentCents += source.TotalSpentCents
		target.AverageOrderValueCents = averageOrderValueCents(target.TotalSpentCents, target.TotalOrders)
		target.FirstOrderAt = earlierTime(target.FirstOrderAt, source.FirstOrderAt)
		target.LastOrderAt = laterTime(target.LastOrderAt, source.LastOrderAt)

		now := s.now()
		source.DeletedAt = &now
		source.UpdatedAt = now
		target.UpdatedAt = now

		if err := s.repo.UpdateWithTx(tx, source); err != nil {
			return err
		}
		if err := s.repo.UpdateWithTx(tx, target); err != nil {
			return err
		}
		merged = target
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "merge customers")
	}

	s.publish(ctx, EventCustomerMerged, map[string]any{
		"tenant_id": tenantID,
		"source_id": input.SourceID,
		"target_id": input.TargetID,
	})

	return FromModel(merged), nil
}

func (s *service) publish(ctx context.Context, eventType string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventType, payload); err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"event_type": eventType}), "failed to publish customer event")
	}
}

func earlierTime(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return cloneTimePtr(b)
	case b == nil:
		return cloneTimePtr(a)
	case b.Before(*a):
		return cloneTimePtr(b)
	default:
		return cloneTimePtr(a)
	}
}

func laterTime(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return cloneTimePtr(b)
	case b == nil:
		return cloneTimePtr(a)
	case b.After(*a):
		return cloneTimePtr(b)
	default:
		return cloneTimePtr(a)
	}
}

func cloneTimePtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	cpy := *value
	return &cpy
}

func cloneStringPtr(value *string) *string {
	if value == nil {
		return nil
	}
	cpy := *value
	return &cpy
}
