// Package localstore implements the authoritative cart store over an
// embedded database. It speaks the same cart.RemoteCartStore contract as the
// HTTP adapter, so a session can run fully self-hosted.
package localstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/cartsync/internal/cart"
	"github.com/angelmondragon/cartsync/pkg/db"
	"github.com/angelmondragon/cartsync/pkg/db/models"
	pkgerrors "github.com/angelmondragon/cartsync/pkg/errors"
	"github.com/angelmondragon/cartsync/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store is the gorm-backed RemoteCartStore.
type Store struct {
	client *db.Client
	logg   *logger.Logger
}

// New binds the store to a database client and migrates its schema.
func New(ctx context.Context, client *db.Client, logg *logger.Logger) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := client.DB().WithContext(ctx).AutoMigrate(&models.CartRecord{}, &models.CartLineRecord{}); err != nil {
		return nil, fmt.Errorf("migrating cart schema: %w", err)
	}
	return &Store{client: client, logg: logg}, nil
}

// Fetch implements cart.RemoteCartStore. The first read for an owner creates
// the cart.
func (s *Store) Fetch(ctx context.Context, ownerID uuid.UUID) (*cart.Cart, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id required")
	}

	var record models.CartRecord
	err := s.client.DB().WithContext(ctx).
		Preload("Lines", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC") }).
		Where("owner_id = ?", ownerID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		record = models.CartRecord{ID: uuid.New(), OwnerID: ownerID}
		if err := s.client.DB().WithContext(ctx).Create(&record).Error; err != nil {
			return nil, wrapDBError(err, "creating cart")
		}
		s.logg.Debug(s.logg.WithOwnerID(ctx, ownerID.String()), "cart created on first read")
		return toDomain(&record), nil
	}
	if err != nil {
		return nil, wrapDBError(err, "loading cart")
	}
	return toDomain(&record), nil
}

// UpdateLineQuantity implements cart.RemoteCartStore. Retrying with the same
// target quantity is safe.
func (s *Store) UpdateLineQuantity(ctx context.Context, cartID, lineID uuid.UUID, quantity int) (*cart.Cart, error) {
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity below floor")
	}

	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		var line models.CartLineRecord
		err := tx.Where("cart_id = ? AND id = ?", cartID, lineID).First(&line).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "line not found")
		}
		if err != nil {
			return wrapDBError(err, "loading line")
		}
		line.Quantity = quantity
		if err := tx.Save(&line).Error; err != nil {
			return wrapDBError(err, "updating line")
		}
		return touchCart(tx, cartID)
	})
	if err != nil {
		return nil, err
	}
	return s.loadCart(ctx, cartID)
}

// RemoveLine implements cart.RemoteCartStore. Removing an absent line is a
// no-op, keeping retries idempotent.
func (s *Store) RemoveLine(ctx context.Context, cartID, lineID uuid.UUID) error {
	return s.client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("cart_id = ? AND id = ?", cartID, lineID).Delete(&models.CartLineRecord{}).Error; err != nil {
			return wrapDBError(err, "removing line")
		}
		return touchCart(tx, cartID)
	})
}

// Clear implements cart.RemoteCartStore.
func (s *Store) Clear(ctx context.Context, cartID uuid.UUID) error {
	return s.client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("cart_id = ?", cartID).Delete(&models.CartLineRecord{}).Error; err != nil {
			return wrapDBError(err, "clearing cart")
		}
		return touchCart(tx, cartID)
	})
}

// Seed installs a cart wholesale, replacing any existing copy for its owner.
// Add-to-cart flows and tests use it to stage authoritative state.
func (s *Store) Seed(ctx context.Context, seeded *cart.Cart) error {
	if seeded == nil || seeded.ID == uuid.Nil || seeded.OwnerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart with ids required")
	}
	if err := seeded.Validate(); err != nil {
		return err
	}

	return s.client.WithTx(ctx, func(tx *gorm.DB) error {
		var previous models.CartRecord
		err := tx.Where("owner_id = ?", seeded.OwnerID).First(&previous).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return wrapDBError(err, "loading previous cart")
		}
		if err == nil {
			if err := tx.Where("cart_id = ?", previous.ID).Delete(&models.CartLineRecord{}).Error; err != nil {
				return wrapDBError(err, "dropping previous lines")
			}
			if err := tx.Delete(&previous).Error; err != nil {
				return wrapDBError(err, "dropping previous cart")
			}
		}
		record := fromDomain(seeded)
		if err := tx.Create(record).Error; err != nil {
			return wrapDBError(err, "seeding cart")
		}
		return nil
	})
}

func (s *Store) loadCart(ctx context.Context, cartID uuid.UUID) (*cart.Cart, error) {
	var record models.CartRecord
	err := s.client.DB().WithContext(ctx).
		Preload("Lines", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC") }).
		Where("id = ?", cartID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	if err != nil {
		return nil, wrapDBError(err, "loading cart")
	}
	return toDomain(&record), nil
}

func touchCart(tx *gorm.DB, cartID uuid.UUID) error {
	result := tx.Model(&models.CartRecord{}).
		Where("id = ?", cartID).
		Update("updated_at", time.Now())
	if result.Error != nil {
		return wrapDBError(result.Error, "touching cart")
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	return nil
}

func wrapDBError(err error, message string) error {
	return pkgerrors.Wrap(pkgerrors.CodeRemote, err, message)
}

func toDomain(record *models.CartRecord) *cart.Cart {
	out := &cart.Cart{
		ID:        record.ID,
		OwnerID:   record.OwnerID,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
	for _, line := range record.Lines {
		out.Lines = append(out.Lines, cart.Line{
			ID:        line.ID,
			Product:   line.Product,
			Variation: line.Variation,
			Quantity:  line.Quantity,
		})
	}
	return out
}

func fromDomain(c *cart.Cart) *models.CartRecord {
	record := &models.CartRecord{
		ID:      c.ID,
		OwnerID: c.OwnerID,
	}
	for i, line := range c.Lines {
		record.Lines = append(record.Lines, models.CartLineRecord{
			ID:        line.ID,
			CartID:    c.ID,
			Position:  i,
			Product:   line.Product,
			Variation: line.Variation,
			Quantity:  line.Quantity,
		})
	}
	return record
}
