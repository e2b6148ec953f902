package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dvega/clienthub-backend/pkg/enums"
)

// Address belongs to exactly one customer; tenancy is mediated through the owner.
type Address struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey"`
	CustomerID uuid.UUID         `gorm:"column:customer_id;type:uuid;not null;index"`
	Type       enums.AddressType `gorm:"column:type;not null;default:'shipping'"`

	Line1      string  `gorm:"column:line1;not null"`
	Line2      *string `gorm:"column:line2"`
	City       string  `gorm:"column:city;not null"`
	State      *string `gorm:"column:state"`
	PostalCode string  `gorm:"column:postal_code;not null"`
	Country    string  `gorm:"column:country;not null"`

	IsDefault bool      `gorm:"column:is_default;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the table name for GORM.
func (Address) TableName() string {
	return "customer_addresses"
}
