package customers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvega/clienthub-backend/pkg/db/models"
	"github.com/dvega/clienthub-backend/pkg/enums"
	"github.com/dvega/clienthub-backend/pkg/types"
)

// CustomerDTO exposes the customer record in API responses. Money fields are
// rendered in dollars.
type CustomerDTO struct {
	ID       uuid.UUID `json:"id"`
	TenantID uuid.UUID `json:"tenant_id"`

	Email     string     `json:"email"`
	FirstName *string    `json:"first_name,omitempty"`
	LastName  *string    `json:"last_name,omitempty"`
	Phone     *string    `json:"phone,omitempty"`
	Birthday  *time.Time `json:"birthday,omitempty"`
	Gender    *string    `json:"gender,omitempty"`

	Preferences types.JSONMap    `json:"preferences,omitempty"`
	Tags        types.StringList `json:"tags,omitempty"`

	TotalOrders       int             `json:"total_orders"`
	TotalSpent        decimal.Decimal `json:"total_spent"`
	AverageOrderValue decimal.Decimal `json:"average_order_value"`
	FirstOrderAt      *time.Time      `json:"first_order_at,omitempty"`
	LastOrderAt       *time.Time      `json:"last_order_at,omitempty"`

	LifetimeValue  *decimal.Decimal `json:"customer_lifetime_value,omitempty"`
	ChurnRiskScore *float64         `json:"churn_risk_score,omitempty"`
	Segment        enums.Segment    `json:"segment"`

	ConsentData types.ConsentData `json:"consent_data,omitempty"`

	IsAnonymized bool       `json:"is_anonymized"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// AddressDTO exposes a customer address.
type AddressDTO struct {
	ID         uuid.UUID         `json:"id"`
	CustomerID uuid.UUID         `json:"customer_id"`
	Type       enums.AddressType `json:"type"`
	Line1      string            `json:"line1"`
	Line2      *string           `json:"line2,omitempty"`
	City       string            `json:"city"`
	State      *string           `json:"state,omitempty"`
	PostalCode string            `json:"postal_code"`
	Country    string            `json:"country"`
	IsDefault  bool              `json:"is_default"`
	CreatedAt  time.Time         `json:"created_at"`
}

// NoteDTO exposes a customer note.
type NoteDTO struct {
	ID         uuid.UUID `json:"id"`
	CustomerID uuid.UUID `json:"customer_id"`
	Note       string    `json:"note"`
	CreatedBy  *string   `json:"created_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateCustomerInput holds creation-time data for a new customer.
type CreateCustomerInput struct {
	Email       string
	FirstName   *string
	LastName    *string
	Phone       *string
	Birthday    *time.Time
	Gender      *string
	Preferences types.JSONMap
	Tags        []string
}

// UpdateCustomerInput captures the sparse fields allowed for mutation.
type UpdateCustomerInput struct {
	FirstName   *string
	LastName    *string
	Phone       *string
	Birthday    *time.Time
	Gender      *string
	Preferences *types.JSONMap
	Tags        *[]string
}

// AggregateUpdateInput is the order-subsystem push of fresh aggregates.
type AggregateUpdateInput struct {
	TotalOrders int
	TotalSpent  decimal.Decimal
	LastOrderAt *time.Time
}

// AddressInput holds creation-time data for a new address.
type AddressInput struct {
	Type       enums.AddressType
	Line1      string
	Line2      *string
	City       string
	State      *string
	PostalCode string
	Country    string
	IsDefault  bool
}

// NoteInput holds creation-time data for a new note.
type NoteInput struct {
	Note      string
	CreatedBy *string
}

// MergeInput selects the merge pair and the optional reassignments.
type MergeInput struct {
	SourceID          uuid.UUID
	TargetID          uuid.UUID
	ReassignAddresses bool
	ReassignNotes     bool
	MergeTags         bool
}

// CustomerPage is one page of filtered customers plus the result-set shape.
type CustomerPage struct {
	Items      []CustomerDTO `json:"items"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	Total      int64         `json:"total"`
	TotalPages int           `json:"total_pages"`
}

// CentsToDecimal renders integer cents as a dollar amount.
func CentsToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// DecimalToCents converts a dollar amount into integer cents, rounding half up.
func DecimalToCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// FromModel maps the persisted customer into a DTO.
func FromModel(m *models.Customer) *CustomerDTO {
	if m == nil {
		return nil
	}

	dto := &CustomerDTO{
		ID:                m.ID,
		TenantID:          m.TenantID,
		Email:             m.Email,
		FirstName:         m.FirstName,
		LastName:          m.LastName,
		Phone:             m.Phone,
		Birthday:          m.Birthday,
		Gender:            m.Gender,
		Preferences:       m.Preferences,
		Tags:              m.Tags,
		TotalOrders:       m.TotalOrders,
		TotalSpent:        CentsToDecimal(m.TotalSpentCents),
		AverageOrderValue: CentsToDecimal(m.AverageOrderValueCents),
		FirstOrderAt:      m.FirstOrderAt,
		LastOrderAt:       m.LastOrderAt,
		ChurnRiskScore:    m.ChurnRiskScore,
		Segment:           m.Segment,
		ConsentData:       m.ConsentData,
		IsAnonymized:      m.IsAnonymized,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
		DeletedAt:         m.DeletedAt,
	}

	if m.LifetimeValueCents != nil {
		clv := CentsToDecimal(*m.LifetimeValueCents)
		dto.LifetimeValue = &clv
	}

	return dto
}

// AddressFromModel maps the persisted address into a DTO.
func AddressFromModel(m *models.Address) *AddressDTO {
	if m == nil {
		return nil
	}
	return &AddressDTO{
		ID:         m.ID,
		CustomerID: m.CustomerID,
		Type:       m.Type,
		Line1:      m.Line1,
		Line2:      m.Line2,
		City:       m.City,
		State:      m.State,
		PostalCode: m.PostalCode,
		Country:    m.Country,
		IsDefault:  m.IsDefault,
		CreatedAt:  m.CreatedAt,
	}
}

// NoteFromModel maps the persisted note into a DTO.
func NoteFromModel(m *models.CustomerNote) *NoteDTO {
	if m == nil {
		return nil
	}
	return &NoteDTO{
		ID:         m.ID,
		CustomerID: m.CustomerID,
		Note:       m.Note,
		CreatedBy:  m.CreatedBy,
		CreatedAt:  m.CreatedAt,
	}
}

// ToModel prepares the GORM model from creation input, supplying defaults.
func (c CreateCustomerInput) ToModel(tenantID uuid.UUID) *models.Customer {
	model := &models.Customer{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Email:       c.Email,
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		Phone:       c.Phone,
		Birthday:    c.Birthday,
		Gender:      c.Gender,
		Preferences: c.Preferences,
		Segment:     enums.SegmentNew,
	}
	if c.Tags != nil {
		model.Tags = append(types.StringList{}, c.Tags...)
	}
	return model
}
