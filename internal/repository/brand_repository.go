package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"astroshare/equipment-service/internal/models"
)

// ErrBrandNotFound is returned when no brand matches
var ErrBrandNotFound = errors.New("equipment brand not found")

// BrandRepository provides access to equipment brands
type BrandRepository struct {
	db *sql.DB
}

func NewBrandRepository(db *sql.DB) *BrandRepository {
	return &BrandRepository{db: db}
}

// FindByID retrieves a brand by id
func (r *BrandRepository) FindByID(ctx context.Context, id uint64) (*models.EquipmentBrand, error) {
	query := `SELECT id, name, created_at, updated_at FROM equipment_brands WHERE id = ?`

	brand := &models.EquipmentBrand{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&brand.ID, &brand.Name, &brand.CreatedAt, &brand.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBrandNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find brand %d: %w", id, err)
	}
	return brand, nil
}

// FindByName retrieves a brand by exact case-insensitive name
func (r *BrandRepository) FindByName(ctx context.Context, name string) (*models.EquipmentBrand, error) {
	query := `SELECT id, name, created_at, updated_at FROM equipment_brands WHERE LOWER(name) = LOWER(?)`

	brand := &models.EquipmentBrand{}
	err := r.db.QueryRowContext(ctx, query, name).Scan(&brand.ID, &brand.Name, &brand.CreatedAt, &brand.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBrandNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find brand %q: %w", name, err)
	}
	return brand, nil
}
