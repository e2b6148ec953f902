package models

import (
	"time"

	"github.com/google/uuid"
)

// CustomerNote is an immutable free-text annotation on a customer.
type CustomerNote struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	CustomerID uuid.UUID `gorm:"column:customer_id;type:uuid;not null;index"`
	Note       string    `gorm:"column:note;not null"`
	CreatedBy  *string   `gorm:"column:created_by"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName pins the table name for GORM.
func (CustomerNote) TableName() string {
	return "customer_notes"
}
