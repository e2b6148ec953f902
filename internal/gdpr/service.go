package gdpr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dvega/clienthub-backend/internal/customers"
	"github.com/dvega/clienthub-backend/pkg/db/models"
	"github.com/dvega/clienthub-backend/pkg/enums"
	pkgerrors "github.com/dvega/clienthub-backend/pkg/errors"
	"github.com/dvega/clienthub-backend/pkg/logger"
	"github.com/dvega/clienthub-backend/pkg/types"
)

// EventCustomerAnonymized is emitted on the customer-events topic after erasure.
const EventCustomerAnonymized = "customer.anonymized"

// AnonymizedEmailFormat is the deterministic placeholder written on erasure.
const AnonymizedEmailFormat = "deleted-%s@anonymized.local"

type customerRepository interface {
	FindByID(ctx context.Context, tenantID, id uuid.UUID, includeDeleted bool) (*models.Customer, error)
	Update(ctx context.Context, customer *models.Customer) error
	ListAddresses(ctx context.Context, customerID uuid.UUID, addressType *enums.AddressType) ([]models.Address, error)
	ListNotes(ctx context.Context, customerID uuid.UUID) ([]models.CustomerNote, error)

	FindByIDWithTx(tx *gorm.DB, tenantID, id uuid.UUID) (*models.Customer, error)
	UpdateWithTx(tx *gorm.DB, customer *models.Customer) error
	HardDeleteWithTx(tx *gorm.DB, customerID uuid.UUID) error
	DeleteAddressesWithTx(tx *gorm.DB, customerID uuid.UUID) error
	AnonymizeNotesWithTx(tx *gorm.DB, customerID uuid.UUID, sentinel string) error
	DeleteNotesWithTx(tx *gorm.DB, customerID uuid.UUID) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventPublisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

// ExportDocument is the full data-subject export.
type ExportDocument struct {
	ExportedAt time.Time              `json:"exported_at"`
	Customer   *customers.CustomerDTO `json:"customer"`
	Addresses  []customers.AddressDTO `json:"addresses"`
	Notes      []customers.NoteDTO    `json:"notes"`
}

// Service exposes GDPR data-subject rights.
type Service interface {
	Export(ctx context.Context, tenantID, customerID uuid.UUID) (*ExportDocument, error)
	Erase(ctx context.Context, tenantID, customerID uuid.UUID, hard bool) error
	UpdateConsent(ctx context.Context, tenantID, customerID uuid.UUID, consentType string, consented bool, metadata map[string]any) (types.ConsentData, error)
	ConsentStatus(ctx context.Context, tenantID, customerID uuid.UUID) (types.ConsentData, error)
	HasConsent(ctx context.Context, tenantID, customerID uuid.UUID, consentType string) (bool, error)
}

type service struct {
	repo      customerRepository
	tx        txRunner
	logg      *logger.Logger
	publisher eventPublisher
	now       func() time.Time
}

// ServiceParams wires the GDPR service collaborators.
type ServiceParams struct {
	Repo      customerRepository
	Tx        txRunner
	Logger    *logger.Logger
	Publisher eventPublisher
}

// NewService builds the GDPR service. The publisher is optional.
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

func (s *service) loadCustomer(ctx context.Context, tenantID, customerID uuid.UUID) (*models.Customer, error) {
	customer, err := s.repo.FindByID(ctx, tenantID, customerID, false)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}
	return customer, nil
}

func (s *service) Export(ctx context.Context, tenantID, customerID uuid.UUID) (*ExportDocument, error) {
	customer, err := s.loadCustomer(ctx, tenantID, customerID)
	if err != nil {
		return nil, err
	}

	addresses, err := s.repo.ListAddresses(ctx, customer.ID, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list addresses")
	}
	notes, err := s.repo.ListNotes(ctx, customer.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notes")
	}

	doc := &ExportDocument{
		ExportedAt: s.now().UTC(),
		Customer:   customers.FromModel(customer),
		Addresses:  make([]customers.AddressDTO, 0, len(addresses)),
		Notes:      make([]customers.NoteDTO, 0, len(notes)),
	}
	for i := range addresses {
		doc.Addresses = append(doc.Addresses, *customers.AddressFromModel(&addresses[i]))
	}
	for i := range notes {
		doc.Notes = append(doc.Notes, *customers.NoteFromModel(&notes[i]))
	}
	return doc, nil
}

// Erase anonymizes by default to preserve referential integrity with the order
// subsystem; hard erasure removes the customer and children permanently.
func (s *service) Erase(ctx context.Context, tenantID, customerID uuid.UUID, hard bool) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		customer, err := s.repo.FindByIDWithTx(tx, tenantID, customerID)
		if err != nil {
			return err
		}

		if hard {
			if err := s.repo.DeleteAddressesWithTx(tx, customer.ID); err != nil {
				return err
			}
			if err := s.repo.DeleteNotesWithTx(tx, customer.ID); err != nil {
				return err
			}
			return s.repo.HardDeleteWithTx(tx, customer.ID)
		}

		anonymize(customer, s.now())
		if err := s.repo.UpdateWithTx(tx, customer); err != nil {
			return err
		}
		if err := s.repo.DeleteAddressesWithTx(tx, customer.ID); err != nil {
			return err
		}
		return s.repo.AnonymizeNotesWithTx(tx, customer.ID, customers.NoteAnonymizedSentinel)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "erase customer")
	}

	if !hard {
		s.publish(ctx, EventCustomerAnonymized, map[string]any{
			"tenant_id":   tenantID,
			"customer_id": customerID,
		})
	}
	return nil
}

func anonymize(customer *models.Customer, now time.Time) {
	customer.Email = fmt.Sprintf(AnonymizedEmailFormat, customer.ID)
	customer.FirstName = nil
	customer.LastName = nil
	customer.Phone = nil
	customer.Birthday = nil
	customer.Gender = nil
	customer.Preferences = nil
	customer.Tags = nil
	customer.Embedding = nil
	customer.ConsentData = nil
	customer.IsAnonymized = true
	customer.DeletedAt = &now
	customer.UpdatedAt = now
}

func (s *service) UpdateConsent(ctx context.Context, tenantID, customerID uuid.UUID, consentType string, consented bool, metadata map[string]any) (types.ConsentData, error) {
	consentType = strings.TrimSpace(consentType)
	if consentType == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "consent type is required")
	}

	customer, err := s.loadCustomer(ctx, tenantID, customerID)
	if err != nil {
		return nil, err
	}

	if customer.ConsentData == nil {
		customer.ConsentData = make(types.ConsentData)
	}
	customer.ConsentData[consentType] = types.ConsentRecord{
		Consented:  consented,
		RecordedAt: s.now().UTC(),
		Metadata:   metadata,
	}
	customer.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, customer); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist consent")
	}
	return customer.ConsentData, nil
}

func (s *service) ConsentStatus(ctx context.Context, tenantID, customerID uuid.UUID) (types.ConsentData, error) {
	customer, err := s.loadCustomer(ctx, tenantID, customerID)
	if err != nil {
		return nil, err
	}
	if customer.ConsentData == nil {
		return types.ConsentData{}, nil
	}
	return customer.ConsentData, nil
}

func (s *service) HasConsent(ctx context.Context, tenantID, customerID uuid.UUID, consentType string) (bool, error) {
	status, err := s.ConsentStatus(ctx, tenantID, customerID)
	if err != nil {
		return false, err
	}
	record, ok := status[strings.TrimSpace(consentType)]
	if !ok {
		return false, nil
	}
	return record.Consented, nil
}

func (s *service) publish(ctx context.Context, eventType string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventType, payload); err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"event_type": eventType}), "failed to publish customer event")
	}
}
