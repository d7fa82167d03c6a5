package models

import (
	"time"

	"github.com/angelmondragon/cartsync/pkg/types"
	"github.com/google/uuid"
)

// CartLineRecord persists one cart line with its denormalized display refs.
// Position keeps the replica's line order stable across fetches.
type CartLineRecord struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	CartID    uuid.UUID           `gorm:"column:cart_id;type:uuid;not null;index"`
	Position  int                 `gorm:"column:position;not null"`
	Product   types.ProductRef    `gorm:"column:product;serializer:json;not null"`
	Variation *types.VariationRef `gorm:"column:variation;serializer:json"`
	Quantity  int                 `gorm:"column:quantity;not null"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (CartLineRecord) TableName() string {
	return "cart_lines"
}
