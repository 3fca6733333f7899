package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astroshare/equipment-service/internal/constants"
	"astroshare/equipment-service/internal/models"
	"astroshare/equipment-service/internal/policy"
	"astroshare/equipment-service/internal/repository"
	"astroshare/equipment-service/pkg/auth"
	"astroshare/equipment-service/pkg/logger"
)

type mockWriteStore struct {
	findByIDFn func(ctx context.Context, klass models.ItemType, id uint64) (*models.EquipmentItem, error)
	createFn   func(ctx context.Context, item *models.EquipmentItem) (uint64, error)
}

func (m *mockWriteStore) FindByID(ctx context.Context, klass models.ItemType, id uint64) (*models.EquipmentItem, error) {
	return m.findByIDFn(ctx, klass, id)
}

func (m *mockWriteStore) ListVariants(ctx context.Context, itemID uint64) ([]*models.EquipmentItem, error) {
	return []*models.EquipmentItem{}, nil
}

func (m *mockWriteStore) Create(ctx context.Context, item *models.EquipmentItem) (uint64, error) {
	if m.createFn == nil {
		return 99, nil
	}
	return m.createFn(ctx, item)
}

type mockBrandByID struct {
	brands map[uint64]*models.EquipmentBrand
}

func (m *mockBrandByID) FindByID(ctx context.Context, id uint64) (*models.EquipmentBrand, error) {
	if b, ok := m.brands[id]; ok {
		return b, nil
	}
	return nil, repository.ErrBrandNotFound
}

func migrator(id uint64) *auth.UserContext {
	return &auth.UserContext{UserID: id, Roles: []string{constants.RoleOwnEquipmentMigrator}}
}

func newTestItemService(store *mockWriteStore, brands *mockBrandByID) *ItemService {
	if brands == nil {
		brands = &mockBrandByID{brands: map[uint64]*models.EquipmentBrand{
			3: {ID: 3, Name: "Celestron"},
		}}
	}
	return NewItemService(store, brands, policy.NewReviewPolicy(), logger.NewLogger("test"))
}

func TestItemService_Create(t *testing.T) {
	ctx := context.Background()
	brandID := uint64(3)

	t.Run("Success", func(t *testing.T) {
		var created *models.EquipmentItem
		store := &mockWriteStore{
			createFn: func(ctx context.Context, item *models.EquipmentItem) (uint64, error) {
				created = item
				return 42, nil
			},
		}
		svc := newTestItemService(store, nil)

		item, err := svc.Create(ctx, CreateParams{
			Klass:   models.ItemTypeTelescope,
			Name:    "  EdgeHD 8  ",
			BrandID: &brandID,
		}, migrator(7))
		require.NoError(t, err)
		assert.Equal(t, uint64(42), item.ID)
		assert.Equal(t, "EdgeHD 8", created.Name)
		require.NotNil(t, created.BrandName)
		assert.Equal(t, "Celestron", *created.BrandName)
		require.NotNil(t, created.CreatedByID)
		assert.Equal(t, uint64(7), *created.CreatedByID)
		assert.True(t, item.IsPending())
	})

	t.Run("ForbiddenWithoutRole", func(t *testing.T) {
		svc := newTestItemService(&mockWriteStore{}, nil)

		_, err := svc.Create(ctx, CreateParams{Klass: models.ItemTypeTelescope, Name: "x"}, &auth.UserContext{UserID: 7})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("EmptyName", func(t *testing.T) {
		svc := newTestItemService(&mockWriteStore{}, nil)

		_, err := svc.Create(ctx, CreateParams{Klass: models.ItemTypeTelescope, Name: "   "}, migrator(7))
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("UnknownBrand", func(t *testing.T) {
		missing := uint64(999)
		svc := newTestItemService(&mockWriteStore{}, nil)

		_, err := svc.Create(ctx, CreateParams{Klass: models.ItemTypeTelescope, Name: "x", BrandID: &missing}, migrator(7))
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("VariantMustShareBrand", func(t *testing.T) {
		otherBrand := uint64(4)
		parentID := uint64(10)
		store := &mockWriteStore{
			findByIDFn: func(ctx context.Context, klass models.ItemType, id uint64) (*models.EquipmentItem, error) {
				return &models.EquipmentItem{ID: 10, Klass: klass, Name: "parent", BrandID: &brandID}, nil
			},
		}
		brands := &mockBrandByID{brands: map[uint64]*models.EquipmentBrand{
			3: {ID: 3, Name: "Celestron"},
			4: {ID: 4, Name: "Sky-Watcher"},
		}}
		svc := newTestItemService(store, brands)

		_, err := svc.Create(ctx, CreateParams{
			Klass:       models.ItemTypeTelescope,
			Name:        "variant",
			BrandID:     &otherBrand,
			VariantOfID: &parentID,
		}, migrator(7))
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Message, "same brand")
	})

	t.Run("DIYParentCannotHaveVariants", func(t *testing.T) {
		parentID := uint64(10)
		store := &mockWriteStore{
			findByIDFn: func(ctx context.Context, klass models.ItemType, id uint64) (*models.EquipmentItem, error) {
				return &models.EquipmentItem{ID: 10, Klass: klass, Name: "homemade"}, nil
			},
		}
		svc := newTestItemService(store, nil)

		_, err := svc.Create(ctx, CreateParams{
			Klass:       models.ItemTypeTelescope,
			Name:        "variant",
			BrandID:     &brandID,
			VariantOfID: &parentID,
		}, migrator(7))
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Message, "DIY")
	})

	t.Run("NoVariantsOfVariants", func(t *testing.T) {
		grandparent := uint64(5)
		parentID := uint64(10)
		store := &mockWriteStore{
			findByIDFn: func(ctx context.Context, klass models.ItemType, id uint64) (*models.EquipmentItem, error) {
				return &models.EquipmentItem{ID: 10, Klass: klass, Name: "parent", BrandID: &brandID, VariantOfID: &grandparent}, nil
			},
		}
		svc := newTestItemService(store, nil)

		_, err := svc.Create(ctx, CreateParams{
			Klass:       models.ItemTypeTelescope,
			Name:        "variant",
			BrandID:     &brandID,
			VariantOfID: &parentID,
		}, migrator(7))
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Message, "Variants of variants")
	})

	t.Run("EditProposalCannotTargetProposal", func(t *testing.T) {
		targetOf := uint64(1)
		targetID := uint64(20)
		store := &mockWriteStore{
			findByIDFn: func(ctx context.Context, klass models.ItemType, id uint64) (*models.EquipmentItem, error) {
				return &models.EquipmentItem{ID: 20, Klass: klass, Name: "proposal", EditProposalTargetID: &targetOf}, nil
			},
		}
		svc := newTestItemService(store, nil)

		_, err := svc.Create(ctx, CreateParams{
			Klass:                models.ItemTypeTelescope,
			Name:                 "proposal of proposal",
			EditProposalTargetID: &targetID,
		}, migrator(7))
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("ProposalCannotVaryItsOwnTarget", func(t *testing.T) {
		targetID := uint64(7)
		variantOf := uint64(7)
		store := &mockWriteStore{
			findByIDFn: func(ctx context.Context, klass models.ItemType, id uint64) (*models.EquipmentItem, error) {
				t.Fatal("the self-variant check must fire before any lookup")
				return nil, nil
			},
		}
		svc := newTestItemService(store, nil)

		_, err := svc.Create(ctx, CreateParams{
			Klass:                models.ItemTypeTelescope,
			Name:                 "self variant",
			VariantOfID:          &variantOf,
			EditProposalTargetID: &targetID,
		}, migrator(7))
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Message, "variant of itself")
	})
}
