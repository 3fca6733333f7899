package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"astroshare/equipment-service/internal/models"
	"astroshare/equipment-service/internal/policy"
	"astroshare/equipment-service/internal/repository"
	"astroshare/equipment-service/pkg/auth"
	"astroshare/equipment-service/pkg/logger"
)

type itemWriteStore interface {
	FindByID(ctx context.Context, klass models.ItemType, id uint64) (*models.EquipmentItem, error)
	ListVariants(ctx context.Context, itemID uint64) ([]*models.EquipmentItem, error)
	Create(ctx context.Context, item *models.EquipmentItem) (uint64, error)
}

type brandReadStore interface {
	FindByID(ctx context.Context, id uint64) (*models.EquipmentBrand, error)
}

// ItemService handles creation of items and edit proposals
type ItemService struct {
	items  itemWriteStore
	brands brandReadStore
	policy *policy.ReviewPolicy
	log    *logger.Logger
}

func NewItemService(items itemWriteStore, brands brandReadStore, reviewPolicy *policy.ReviewPolicy, log *logger.Logger) *ItemService {
	return &ItemService{items: items, brands: brands, policy: reviewPolicy, log: log}
}

// CreateParams describes a new item. A nil BrandID makes a DIY item. A
// non-nil EditProposalTargetID makes the row an edit proposal against that
// item instead of a standalone entry.
type CreateParams struct {
	Klass                models.ItemType
	Name                 string
	BrandID              *uint64
	VariantOfID          *uint64
	EditProposalTargetID *uint64
}

// Create validates and persists a new equipment item. New items start
// unreviewed; they only become publicly listed once a moderator approves them.
func (s *ItemService) Create(ctx context.Context, params CreateParams, user *auth.UserContext) (*models.EquipmentItem, error) {
	if ok, _ := s.policy.CanCreate(user); !ok {
		return nil, ErrForbidden
	}

	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, newValidationError("Item name is required")
	}

	var brandName *string
	if params.BrandID != nil {
		brand, err := s.brands.FindByID(ctx, *params.BrandID)
		if errors.Is(err, repository.ErrBrandNotFound) {
			return nil, newValidationError("The specified brand does not exist")
		}
		if err != nil {
			return nil, err
		}
		brandName = &brand.Name
	}

	if params.VariantOfID != nil {
		if params.EditProposalTargetID != nil && *params.VariantOfID == *params.EditProposalTargetID {
			return nil, newValidationError("An item cannot be a variant of itself")
		}
		if err := s.validateVariantParent(ctx, params, *params.VariantOfID); err != nil {
			return nil, err
		}
	}

	if params.EditProposalTargetID != nil {
		target, err := s.items.FindByID(ctx, params.Klass, *params.EditProposalTargetID)
		if errors.Is(err, repository.ErrItemNotFound) {
			return nil, newValidationError("The item this proposal targets does not exist")
		}
		if err != nil {
			return nil, err
		}
		if target.IsEditProposal() {
			return nil, newValidationError("Edit proposals cannot target other edit proposals")
		}
	}

	uid := user.UserID
	item := &models.EquipmentItem{
		Klass:                params.Klass,
		Name:                 name,
		BrandID:              params.BrandID,
		BrandName:            brandName,
		VariantOfID:          params.VariantOfID,
		EditProposalTargetID: params.EditProposalTargetID,
		CreatedByID:          &uid,
	}

	id, err := s.items.Create(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}
	item.ID = id

	s.log.WithUserID(uid).WithField("item_id", id).WithField("klass", string(params.Klass)).
		Info("Equipment item created")
	return item, nil
}

// validateVariantParent enforces the variant rules: variants belong to the
// parent's brand, DIY items cannot have variants, and variants cannot nest.
func (s *ItemService) validateVariantParent(ctx context.Context, params CreateParams, parentID uint64) error {
	parent, err := s.items.FindByID(ctx, params.Klass, parentID)
	if errors.Is(err, repository.ErrItemNotFound) {
		return newValidationError("The item this variant refers to does not exist")
	}
	if err != nil {
		return err
	}

	if parent.IsDIY() {
		return newValidationError("DIY items cannot have variants")
	}
	if parent.IsVariant() {
		return newValidationError("Variants of variants are not allowed")
	}
	if params.BrandID == nil || parent.BrandID == nil || *params.BrandID != *parent.BrandID {
		return newValidationError("Variants must belong to the same brand as the item they are variants of")
	}
	return nil
}
