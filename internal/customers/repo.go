package customers

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dvega/clienthub-backend/internal/repo"
	"github.com/dvega/clienthub-backend/pkg/db/models"
	"github.com/dvega/clienthub-backend/pkg/enums"
	"github.com/dvega/clienthub-backend/pkg/pagination"
)

// Repository handles customer, address and note persistence.
type Repository struct {
	repo.Base
}

// NewRepository binds a GORM DB to customer operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func scopeCustomer(q *gorm.DB, tenantID uuid.UUID, includeDeleted bool) *gorm.DB {
	q = q.Where("tenant_id = ?", tenantID)
	if !includeDeleted {
		q = q.Where("deleted_at IS NULL")
	}
	return q
}

// Create persists a new customer row.
func (r *Repository) Create(ctx context.Context, customer *models.Customer) error {
	if customer == nil {
		return fmt.Errorf("customer is required")
	}
	return r.DB(ctx).Create(customer).Error
}

// FindByID loads a tenant-scoped customer by its UUID.
func (r *Repository) FindByID(ctx context.Context, tenantID, id uuid.UUID, includeDeleted bool) (*models.Customer, error) {
	var customer models.Customer
	q := scopeCustomer(r.DB(ctx), tenantID, includeDeleted)
	if err := q.Where("id = ?", id).First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

// FindByEmail loads a tenant-scoped customer by exact email (case-insensitive).
func (r *Repository) FindByEmail(ctx context.Context, tenantID uuid.UUID, email string, includeDeleted bool) (*models.Customer, error) {
	var customer models.Customer
	q := scopeCustomer(r.DB(ctx), tenantID, includeDeleted)
	if err := q.Where("LOWER(email) = ?", strings.ToLower(email)).First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

// EmailExists reports whether a non-deleted customer already claims the email.
func (r *Repository) EmailExists(ctx context.Context, tenantID uuid.UUID, email string) (bool, error) {
	var count int64
	err := scopeCustomer(r.DB(ctx).Model(&models.Customer{}), tenantID, false).
		Where("LOWER(email) = ?", strings.ToLower(email)).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Update saves the provided customer.
func (r *Repository) Update(ctx context.Context, customer *models.Customer) error {
	if customer == nil {
		return fmt.Errorf("customer is required")
	}
	return r.DB(ctx).Save(customer).Error
}

// List returns a filtered page plus the total count of matching rows.
func (r *Repository) List(ctx context.Context, tenantID uuid.UUID, filter Filter, page pagination.Params) ([]models.Customer, int64, error) {
	base := filter.Apply(
		r.DB(ctx).Model(&models.Customer{}).Where("tenant_id = ?", tenantID),
	)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Customer
	err := base.
		Order(filter.OrderClause()).
		Offset(page.Offset()).
		Limit(page.Limit()).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// Search scans the contact columns with OR semantics, non-deleted only.
func (r *Repository) Search(ctx context.Context, tenantID uuid.UUID, term string, page pagination.Params) ([]models.Customer, int64, error) {
	base := ApplySearch(
		scopeCustomer(r.DB(ctx).Model(&models.Customer{}), tenantID, false),
		term,
	)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Customer
	err := base.
		Order("created_at DESC").
		Offset(page.Offset()).
		Limit(page.Limit()).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ListSegmentPage returns one deterministic page of non-deleted customers,
// ordered by primary key so repeated scans cover every row exactly once.
func (r *Repository) ListSegmentPage(ctx context.Context, tenantID uuid.UUID, offset, limit int) ([]models.Customer, error) {
	var rows []models.Customer
	err := scopeCustomer(r.DB(ctx), tenantID, false).
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// FindSimilar returns same-segment customers inside the ±30% spend/order bands.
func (r *Repository) FindSimilar(ctx context.Context, source *models.Customer, limit int) ([]models.Customer, error) {
	if source == nil {
		return nil, fmt.Errorf("source customer is required")
	}

	q := scopeCustomer(r.DB(ctx), source.TenantID, false).
		Where("id <> ?", source.ID).
		Where("segment = ?", source.Segment)

	if source.TotalSpentCents > 0 {
		low := source.TotalSpentCents * 7 / 10
		high := source.TotalSpentCents * 13 / 10
		q = q.Where("total_spent_cents BETWEEN ? AND ?", low, high)
	}
	if source.TotalOrders > 0 {
		low := source.TotalOrders * 7 / 10
		high := source.TotalOrders * 13 / 10
		q = q.Where("total_orders BETWEEN ? AND ?", low, high)
	}

	var rows []models.Customer
	if err := q.Order("id ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// FindByIDWithTx loads a tenant-scoped customer using the provided transaction.
func (r *Repository) FindByIDWithTx(tx *gorm.DB, tenantID, id uuid.UUID) (*models.Customer, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var customer models.Customer
	if err := scopeCustomer(tx, tenantID, false).Where("id = ?", id).First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

// UpdateWithTx persists the customer using the provided transaction.
func (r *Repository) UpdateWithTx(tx *gorm.DB, customer *models.Customer) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	if customer == nil {
		return fmt.Errorf("customer is required")
	}
	return tx.Save(customer).Error
}

// HardDeleteWithTx removes the customer row permanently.
func (r *Repository) HardDeleteWithTx(tx *gorm.DB, customerID uuid.UUID) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	return tx.Where("id = ?", customerID).Delete(&models.Customer{}).Error
}

// CreateAddressWithTx inserts an address, unsetting sibling defaults first when
// the new address claims the default slot for its type.
func (r *Repository) CreateAddressWithTx(tx *gorm.DB, address *models.Address) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	if address == nil {
		return fmt.Errorf("address is required")
	}
	if address.IsDefault {
		err := tx.Model(&models.Address{}).
			Where("customer_id = ? AND type = ? AND is_default = ?", address.CustomerID, address.Type, true).
			Update("is_default", false).Error
		if err != nil {
			return err
		}
	}
	return tx.Create(address).Error
}

// ListAddresses returns a customer's addresses, optionally narrowed by type.
func (r *Repository) ListAddresses(ctx context.Context, customerID uuid.UUID, addressType *enums.AddressType) ([]models.Address, error) {
	q := r.DB(ctx).Where("customer_id = ?", customerID)
	if addressType != nil {
		q = q.Where("type = ?", *addressType)
	}
	var rows []models.Address
	if err := q.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ReassignAddressesWithTx transfers address ownership between customers.
func (r *Repository) ReassignAddressesWithTx(tx *gorm.DB, fromCustomerID, toCustomerID uuid.UUID) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	return tx.Model(&models.Address{}).
		Where("customer_id = ?", fromCustomerID).
		Update("customer_id", toCustomerID).Error
}

// DeleteAddressesWithTx removes all addresses for the customer.
func (r *Repository) DeleteAddressesWithTx(tx *gorm.DB, customerID uuid.UUID) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	return tx.Where("customer_id = ?", customerID).Delete(&models.Address{}).Error
}

// CreateNote inserts an immutable note row.
func (r *Repository) CreateNote(ctx context.Context, note *models.CustomerNote) error {
	if note == nil {
		return fmt.Errorf("note is required")
	}
	return r.DB(ctx).Create(note).Error
}

// ListNotes returns a customer's notes, newest first.
func (r *Repository) ListNotes(ctx context.Context, customerID uuid.UUID) ([]models.CustomerNote, error) {
	var rows []models.CustomerNote
	err := r.DB(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ReassignNotesWithTx transfers note ownership between customers.
func (r *Repository) ReassignNotesWithTx(tx *gorm.DB, fromCustomerID, toCustomerID uuid.UUID) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	return tx.Model(&models.CustomerNote{}).
		Where("customer_id = ?", fromCustomerID).
		Update("customer_id", toCustomerID).Error
}

// AnonymizeNotesWithTx rewrites note attribution to the given sentinel.
func (r *Repository) AnonymizeNotesWithTx(tx *gorm.DB, customerID uuid.UUID, sentinel string) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	return tx.Model(&models.CustomerNote{}).
		Where("customer_id = ?", customerID).
		Update("created_by", sentinel).Error
}

// DeleteNotesWithTx removes all notes for the customer.
func (r *Repository) DeleteNotesWithTx(tx *gorm.DB, customerID uuid.UUID) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	return tx.Where("customer_id = ?", customerID).Delete(&models.CustomerNote{}).Error
}
