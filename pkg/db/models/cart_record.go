package models

import (
	"time"

	"github.com/google/uuid"
)

// CartRecord is the authoritative cart row for the embedded reference store.
// IDs are assigned in code so the schema works on sqlite and postgres alike.
type CartRecord struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID   uuid.UUID        `gorm:"column:owner_id;type:uuid;not null;uniqueIndex"`
	Lines     []CartLineRecord `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (CartRecord) TableName() string {
	return "carts"
}
