package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dvega/clienthub-backend/pkg/enums"
	"github.com/dvega/clienthub-backend/pkg/types"
)

// Customer represents the canonical tenant-scoped customer record.
type Customer struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID uuid.UUID `gorm:"column:tenant_id;type:uuid;not null;index"`

	Email     string     `gorm:"column:email;not null"`
	FirstName *string    `gorm:"column:first_name"`
	LastName  *string    `gorm:"column:last_name"`
	Phone     *string    `gorm:"column:phone"`
	Birthday  *time.Time `gorm:"column:birthday"`
	Gender    *string    `gorm:"column:gender"`

	Preferences types.JSONMap    `gorm:"column:preferences;type:jsonb"`
	Tags        types.StringList `gorm:"column:tags;type:jsonb"`

	TotalOrders            int        `gorm:"column:total_orders;not null;default:0"`
	TotalSpentCents        int64      `gorm:"column:total_spent_cents;not null;default:0"`
	AverageOrderValueCents int64      `gorm:"column:average_order_value_cents;not null;default:0"`
	FirstOrderAt           *time.Time `gorm:"column:first_order_at"`
	LastOrderAt            *time.Time `gorm:"column:last_order_at"`

	LifetimeValueCents *int64        `gorm:"column:customer_lifetime_value_cents"`
	ChurnRiskScore     *float64      `gorm:"column:churn_risk_score"`
	Segment            enums.Segment `gorm:"column:segment;not null;default:'new'"`
	Embedding          types.Vector  `gorm:"column:embedding;type:jsonb"`

	ConsentData types.ConsentData `gorm:"column:consent_data;type:jsonb"`

	IsAnonymized bool       `gorm:"column:is_anonymized;not null;default:false"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt    *time.Time `gorm:"column:deleted_at;index"`
}

// TableName pins the table name for GORM.
func (Customer) TableName() string {
	return "customers"
}
