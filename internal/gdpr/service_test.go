package gdpr

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dvega/clienthub-backend/internal/customers"
	"github.com/dvega/clienthub-backend/pkg/db/models"
	"github.com/dvega/clienthub-backend/pkg/enums"
	pkgerrors "github.com/dvega/clienthub-backend/pkg/errors"
	"github.com/dvega/clienthub-backend/pkg/logger"
	"github.com/dvega/clienthub-backend/pkg/types"
)

type fakeGDPRRepo struct {
	customers map[uuid.UUID]*models.Customer
	addresses map[uuid.UUID][]*models.Address
	notes     map[uuid.UUID][]*models.CustomerNote
}

func newFakeGDPRRepo() *fakeGDPRRepo {
	return &fakeGDPRRepo{
		customers: make(map[uuid.UUID]*models.Customer),
		addresses: make(map[uuid.UUID][]*models.Address),
		notes:     make(map[uuid.UUID][]*models.CustomerNote),
	}
}

func (f *fakeGDPRRepo) find(tenantID, id uuid.UUID) (*models.Customer, error) {
	customer, ok := f.customers[id]
	if !ok || customer.TenantID != tenantID || customer.DeletedAt != nil {
		return nil, gorm.ErrRecordNotFound
	}
	cpy := *customer
	return &cpy, nil
}

func (f *fakeGDPRRepo) FindByID(_ context.Context, tenantID, id uuid.UUID, _ bool) (*models.Customer, error) {
	return f.find(tenantID, id)
}

func (f *fakeGDPRRepo) Update(_ context.Context, customer *models.Customer) error {
	cpy := *customer
	f.customers[customer.ID] = &cpy
	return nil
}

func (f *fakeGDPRRepo) ListAddresses(_ context.Context, customerID uuid.UUID, _ *enums.AddressType) ([]models.Address, error) {
	rows := []models.Address{}
	for _, address := range f.addresses[customerID] {
		rows = append(rows, *address)
	}
	return rows, nil
}

func (f *fakeGDPRRepo) ListNotes(_ context.Context, customerID uuid.UUID) ([]models.CustomerNote, error) {
	rows := []models.CustomerNote{}
	for _, note := range f.notes[customerID] {
		rows = append(rows, *note)
	}
	return rows, nil
}

func (f *fakeGDPRRepo) FindByIDWithTx(_ *gorm.DB, tenantID, id uuid.UUID) (*models.Customer, error) {
	return f.find(tenantID, id)
}

func (f *fakeGDPRRepo) UpdateWithTx(_ *gorm.DB, customer *models.Customer) error {
	cpy := *customer
	f.customers[customer.ID] = &cpy
	return nil
}

func (f *fakeGDPRRepo) HardDeleteWithTx(_ *gorm.DB, customerID uuid.UUID) error {
	delete(f.customers, customerID)
	return nil
}

func (f *fakeGDPRRepo) DeleteAddressesWithTx(_ *gorm.DB, customerID uuid.UUID) error {
	delete(f.addresses, customerID)
	return nil
}

func (f *fakeGDPRRepo) AnonymizeNotesWithTx(_ *gorm.DB, customerID uuid.UUID, sentinel string) error {
	for _, note := range f.notes[customerID] {
		s := sentinel
		note.CreatedBy = &s
	}
	return nil
}

func (f *fakeGDPRRepo) DeleteNotesWithTx(_ *gorm.DB, customerID uuid.UUID) error {
	delete(f.notes, customerID)
	return nil
}

type fakeGDPRTx struct{}

func (fakeGDPRTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeGDPRPublisher struct {
	events []string
}

func (f *fakeGDPRPublisher) Publish(_ context.Context, eventType string, _ any) error {
	f.events = append(f.events, eventType)
	return nil
}

func newGDPRService(t *testing.T, repo *fakeGDPRRepo, publisher *fakeGDPRPublisher) Service {
	t.Helper()
	params := ServiceParams{
		Repo:   repo,
		Tx:     fakeGDPRTx{},
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	}
	if publisher != nil {
		params.Publisher = publisher
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	return svc
}

func seedCustomer(repo *fakeGDPRRepo, tenantID uuid.UUID) *models.Customer {
	first := "Ana"
	phone := "+351000000000"
	customer := &models.Customer{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Email:     "ana@example.com",
		FirstName: &first,
		Phone:     &phone,
		Tags:      types.StringList{"vip"},
		ConsentData: types.ConsentData{
			"marketing": {Consented: true},
		},
	}
	repo.customers[customer.ID] = customer
	repo.addresses[customer.ID] = []*models.Address{{
		ID: uuid.New(), CustomerID: customer.ID, Type: enums.AddressTypeShipping, Line1: "1 Main St",
	}}
	author := "support"
	repo.notes[customer.ID] = []*models.CustomerNote{{
		ID: uuid.New(), CustomerID: customer.ID, Note: "called about refund", CreatedBy: &author,
	}}
	return customer
}

func TestExportCollectsAllRecords(t *testing.T) {
	repo := newFakeGDPRRepo()
	tenantID := uuid.New()
	customer := seedCustomer(repo, tenantID)

	svc := newGDPRService(t, repo, nil)
	doc, err := svc.Export(context.Background(), tenantID, customer.ID)
	require.NoError(t, err)

	require.NotNil(t, doc.Customer)
	assert.Equal(t, "ana@example.com", doc.Customer.Email)
	assert.Len(t, doc.Addresses, 1)
	assert.Len(t, doc.Notes, 1)
	assert.False(t, doc.ExportedAt.IsZero())
}

func TestExportUnknownCustomer(t *testing.T) {
	svc := newGDPRService(t, newFakeGDPRRepo(), nil)
	_, err := svc.Export(context.Background(), uuid.New(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestSoftEraseAnonymizesEverything(t *testing.T) {
	repo := newFakeGDPRRepo()
	publisher := &fakeGDPRPublisher{}
	tenantID := uuid.New()
	customer := seedCustomer(repo, tenantID)

	svc := newGDPRService(t, repo, publisher)
	require.NoError(t, svc.Erase(context.Background(), tenantID, customer.ID, false))

	stored := repo.customers[customer.ID]
	assert.Equal(t, fmt.Sprintf(AnonymizedEmailFormat, customer.ID), stored.Email)
	assert.Nil(t, stored.FirstName)
	assert.Nil(t, stored.Phone)
	assert.Nil(t, stored.Tags)
	assert.Nil(t, stored.ConsentData)
	assert.True(t, stored.IsAnonymized)
	assert.NotNil(t, stored.DeletedAt)

	assert.Empty(t, repo.addresses[customer.ID])
	require.Len(t, repo.notes[customer.ID], 1)
	require.NotNil(t, repo.notes[customer.ID][0].CreatedBy)
	assert.Equal(t, customers.NoteAnonymizedSentinel, *repo.notes[customer.ID][0].CreatedBy)

	assert.Equal(t, []string{EventCustomerAnonymized}, publisher.events)
}

func TestHardEraseRemovesEverything(t *testing.T) {
	repo := newFakeGDPRRepo()
	publisher := &fakeGDPRPublisher{}
	tenantID := uuid.New()
	customer := seedCustomer(repo, tenantID)

	svc := newGDPRService(t, repo, publisher)
	require.NoError(t, svc.Erase(context.Background(), tenantID, customer.ID, true))

	_, ok := repo.customers[customer.ID]
	assert.False(t, ok)
	assert.Empty(t, repo.addresses[customer.ID])
	assert.Empty(t, repo.notes[customer.ID])
	assert.Empty(t, publisher.events)
}

func TestEraseUnknownCustomer(t *testing.T) {
	svc := newGDPRService(t, newFakeGDPRRepo(), nil)
	err := svc.Erase(context.Background(), uuid.New(), uuid.New(), false)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestUpdateConsentRecordsTimestampedEntry(t *testing.T) {
	repo := newFakeGDPRRepo()
	tenantID := uuid.New()
	customer := seedCustomer(repo, tenantID)

	svc := newGDPRService(t, repo, nil)
	data, err := svc.UpdateConsent(context.Background(), tenantID, customer.ID, "analytics", true, map[string]any{"source": "settings-page"})
	require.NoError(t, err)

	record, ok := data["analytics"]
	require.True(t, ok)
	assert.True(t, record.Consented)
	assert.False(t, record.RecordedAt.IsZero())
	assert.Equal(t, "settings-page", record.Metadata["source"])

	// The pre-existing consent entry is preserved.
	_, ok = data["marketing"]
	assert.True(t, ok)
}

func TestUpdateConsentRequiresType(t *testing.T) {
	svc := newGDPRService(t, newFakeGDPRRepo(), nil)
	_, err := svc.UpdateConsent(context.Background(), uuid.New(), uuid.New(), "   ", true, nil)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestConsentStatusEmptyWithoutRecords(t *testing.T) {
	repo := newFakeGDPRRepo()
	tenantID := uuid.New()
	customer := &models.Customer{ID: uuid.New(), TenantID: tenantID, Email: "bare@example.com"}
	repo.customers[customer.ID] = customer

	svc := newGDPRService(t, repo, nil)
	status, err := svc.ConsentStatus(context.Background(), tenantID, customer.ID)
	require.NoError(t, err)
	assert.Empty(t, status)
}

func TestHasConsent(t *testing.T) {
	repo := newFakeGDPRRepo()
	tenantID := uuid.New()
	customer := seedCustomer(repo, tenantID)

	svc := newGDPRService(t, repo, nil)

	ok, err := svc.HasConsent(context.Background(), tenantID, customer.ID, "marketing")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasConsent(context.Background(), tenantID, customer.ID, "sms")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.UpdateConsent(context.Background(), tenantID, customer.ID, "marketing", false, nil)
	require.NoError(t, err)
	ok, err = svc.HasConsent(context.Background(), tenantID, customer.ID, "marketing")
	require.NoError(t, err)
	assert.False(t, ok)
}
