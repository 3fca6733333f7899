package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astroshare/equipment-service/internal/constants"
	"astroshare/equipment-service/internal/jobs"
	"astroshare/equipment-service/internal/models"
	"astroshare/equipment-service/internal/policy"
	"astroshare/equipment-service/internal/repository"
	"astroshare/equipment-service/pkg/auth"
	"astroshare/equipment-service/pkg/logger"
)

type mockItemStore struct {
	findByIDFn    func(ctx context.Context, klass models.ItemType, id uint64) (*models.EquipmentItem, error)
	setApprovedFn func(ctx context.Context, id, reviewerID uint64, ts time.Time, comment *string) error
	clearReviewFn func(ctx context.Context, id uint64) error
	setRejectedFn func(ctx context.Context, id uint64, u repository.RejectionUpdate) error
}

func (m *mockItemStore) FindByID(ctx context.Context, klass models.ItemType, id uint64) (*models.EquipmentItem, error) {
	return m.findByIDFn(ctx, klass, id)
}

func (m *mockItemStore) SetApproved(ctx context.Context, id, reviewerID uint64, ts time.Time, comment *string) error {
	if m.setApprovedFn == nil {
		return nil
	}
	return m.setApprovedFn(ctx, id, reviewerID, ts, comment)
}

func (m *mockItemStore) ClearReview(ctx context.Context, id uint64) error {
	if m.clearReviewFn == nil {
		return nil
	}
	return m.clearReviewFn(ctx, id)
}

func (m *mockItemStore) SetRejected(ctx context.Context, id uint64, u repository.RejectionUpdate) error {
	if m.setRejectedFn == nil {
		return nil
	}
	return m.setRejectedFn(ctx, id, u)
}

type mockNotifier struct {
	pushed chan string
}

func (m *mockNotifier) Push(ctx context.Context, recipients []uint64, actorID uint64, eventType string, payload map[string]string) error {
	if m.pushed != nil {
		m.pushed <- eventType
	}
	return nil
}

type mockDispatcher struct {
	enqueued chan jobs.Job
}

func (m *mockDispatcher) Enqueue(ctx context.Context, job jobs.Job) error {
	if m.enqueued != nil {
		m.enqueued <- job
	}
	return nil
}

func moderator(id uint64) *auth.UserContext {
	return &auth.UserContext{
		UserID:      id,
		Username:    "mod",
		DisplayName: "Moderator",
		Roles:       []string{constants.RoleEquipmentModerator},
	}
}

func pendingItem(id, createdBy uint64) *models.EquipmentItem {
	creator := createdBy
	brandID := uint64(3)
	brandName := "Celestron"
	return &models.EquipmentItem{
		ID:          id,
		Klass:       models.ItemTypeTelescope,
		Name:        "EdgeHD 8",
		BrandID:     &brandID,
		BrandName:   &brandName,
		CreatedByID: &creator,
	}
}

func newTestReviewService(store *mockItemStore, notifier *mockNotifier, dispatcher *mockDispatcher) *ReviewService {
	if notifier == nil {
		notifier = &mockNotifier{}
	}
	if dispatcher == nil {
		dispatcher = &mockDispatcher{}
	}
	return NewReviewService(
		store, policy.NewReviewPolicy(), notifier, dispatcher,
		"https://astroshare.example.com", logger.NewLogger("test"), nil,
	)
}

func TestReviewService_Approve(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		var savedComment *string
		store := &mockItemStore{
			findByIDFn: func(ctx context.Context, klass models.ItemType, id uint64) (*models.EquipmentItem, error) {
				return pendingItem(1, 7), nil
			},
			setApprovedFn: func(ctx context.Context, id, reviewerID uint64, ts time.Time, comment *string) error {
				assert.Equal(t, uint64(1), id)
				assert.Equal(t, uint64(9), reviewerID)
				savedComment = comment
				return nil
			},
		}
		notifier := &mockNotifier{pushed: make(chan string, 1)}
		svc := newTestReviewService(store, notifier, nil)

		comment := "looks good"
		item, err := svc.Approve(ctx, models.ItemTypeTelescope, 1, moderator(9), &comment)
		require.NoError(t, err)
		require.NotNil(t, item.ReviewerDecision)
		assert.Equal(t, models.DecisionApproved, *item.ReviewerDecision)
		require.NotNil(t, item.ReviewedByID)
		assert.Equal(t, uint64(9), *item.ReviewedByID)
		require.NotNil(t, savedComment)
		assert.Equal(t, "looks good", *savedComment)

		select {
		case event := <-notifier.pushed:
			assert.Equal(t, constants.NoticeItemApproved, event)
		case <-time.After(time.Second):
			t.Fatal("expected approval notification")
		}
	})

	t.Run("ForbiddenWithoutModeratorRole", func(t *testing.T) {
		store := &mockItemStore{
			findByIDFn: func(ctx context.Context, klass models.ItemType, id uint64) (*models.EquipmentItem, error) {
				t.Fatal("item must not be loaded when role check fails")
				return nil, nil
			},
		}
		svc := newTestReviewService(store, nil, nil)

		_, err := svc.Approve(ctx, models.ItemTypeTelescope, 1, &auth.UserContext{UserID: 9}, nil)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("NotFound", func(t *testing.T) {
		store := &mockItemStore{
			findByIDFn: func(ctx context.Context, klass models.ItemType, id uint64) (*models.EquipmentItem, error) {
				return nil, repository.ErrItemNotFound
			},
		}
		svc := newTestReviewService(store, nil, nil)

		_, err := svc.Approve(ctx, models.ItemTypeTelescope, 404, moderator(9), nil)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("LockHeldByAnotherModerator", func(t *testing.T) {
		holder := uint64(55)
		persisted := false
		store := &mockItemStore{
			findByIDFn: func(ctx context.Context, klass models.ItemType, id uint64) (*models.EquipmentItem, error) {
				item := pendingItem(1, 7)
				item.ReviewerLockID = &holder
				return item, nil
			},
			setApprovedFn: func(ctx context.Context, id, reviewerID uint64, ts time.Time, comment *string) error {
				persisted = true
				return nil
			},
		}
		svc := newTestReviewService(store, nil, nil)

		_, err := svc.Approve(ctx, models.ItemTypeTelescope, 1, moderator(9), nil)
		assert.ErrorIs(t, err, ErrLockConflict)
		assert.False(t, persisted)
	})

	t.Run("OwnLockDoesNotConflict", func(t *testing.T) {
		holder := uint64(9)
		store := &mockItemStore{
			findByIDFn: func(ctx context.Context, klass models.ItemType, id uint64) (*models.EquipmentItem, error) {
				item := pendingItem(1, 7)
				item.ReviewerLockID = &holder
				return item, nil
			},
		}
		svc := newTestReviewService(store, nil, nil)

		_, err := svc.Approve(ctx, models.ItemTypeTelescope, 1, moderator(9), nil)
		require.NoError(t, err)
	})

	t.Run("AlreadyReviewed", func(t *testing.T) {
		reviewer := uint64(2)
		store := &mockItemStore{
			findByIDFn: func(ctx context.Context, klass models.ItemType, id uint64) (*models.EquipmentItem, error) {
				item := pendingItem(1, 7)
				item.ReviewedByID = &reviewer
				return item, nil
			},
		}
		svc := newTestReviewService(store, nil, nil)

		_, err := svc.Approve(ctx, models.ItemTypeTelescope, 1, moderator(9), nil)
		assert.ErrorIs(t, err, ErrAlreadyReviewed)
	})

	t.Run("SelfReview", func(t *testing.T) {
		store := &mockItemStore{
			findByIDFn: func(ctx context.Context, klass models.ItemType, id uint64) (*models.EquipmentItem, error) {
				return pendingItem(1, 9), nil
			},
		}
		svc := newTestReviewService(store, nil, nil)

		_, err := svc.Approve(ctx, models.ItemTypeTelescope, 1, moderator(9), nil)
		assert.ErrorIs(t, err, ErrSelfReview)
	})

	t.Run("NoNotificationWhenCreatorUnknown", func(t *testing.T) {
		store := &mockItemStore{
			findByIDFn: func(ctx context.Context, klass models.ItemType, id uint64) (*models.EquipmentItem, error) {
				item := pendingItem(1, 7)
				item.CreatedByID = nil
				return item, nil
			},
		}
		notifier := &mockNotifier{pushed: make(chan string, 1)}
		svc := newTestReviewService(store, notifier, nil)

		_, err := svc.Approve(ctx, models.ItemTypeTelescope, 1, moderator(9), nil)
		require.NoError(t, err)

		select {
		case <-notifier.pushed:
			t.Fatal("no notification expected without a creator")
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("EditProposalGatedByItsOwnLock", func(t *testing.T) {
		holder := uint64(55)
		store := &mockItemStore{
			findByIDFn: func(ctx context.Context, klass models.ItemType, id uint64) (*models.EquipmentItem, error) {
				target := uint64(1)
				item := pendingItem(2, 7)
				item.EditProposalTargetID = &target
				item.EditProposalLockID = &holder
				return item, nil
			},
		}
		svc := newTestReviewService(store, nil, nil)

		_, err := svc.Approve(ctx, models.ItemTypeTelescope, 2, moderator(9), nil)
		assert.ErrorIs(t, err, ErrLockConflict)
	})
}

func TestReviewService_Unapprove(t *testing.T) {
	ctx := context.Background()

	t.Run("ApproveUnapproveRoundtrip", func(t *testing.T) {
		reviewer := uint64(9)
		decision := models.DecisionApproved
		cleared := false
		store := &mockItemStore{
			findByIDFn: func(ctx context.Context, klass models.ItemType, id uint64) (*models.EquipmentItem, error) {
				item := pendingItem(1, 7)
				item.ReviewedByID = &reviewer
				item.ReviewerDecision = &decision
				return item, nil
			},
			clearReviewFn: func(ctx context.Context, id uint64) error {
				cleared = true
				return nil
			},
		}
		svc := newTestReviewService(store, nil, nil)

		item, err := svc.Unapprove(ctx, models.ItemTypeTelescope, 1, moderator(2))
		require.NoError(t, err)
		assert.True(t, cleared)
		assert.Nil(t, item.ReviewedByID)
		assert.Nil(t, item.ReviewedTimestamp)
		assert.Nil(t, item.ReviewerDecision)
		assert.Nil(t, item.ReviewerComment)
	})

	t.Run("NotReviewed", func(t *testing.T) {
		store := &mockItemStore{
			findByIDFn: func(ctx context.Context, klass models.ItemType, id uint64) (*models.EquipmentItem, error) {
				return pendingItem(1, 7), nil
			},
		}
		svc := newTestReviewService(store, nil, nil)

		_, err := svc.Unapprove(ctx, models.ItemTypeTelescope, 1, moderator(2))
		assert.ErrorIs(t, err, ErrNotReviewed)
	})
}

func TestReviewService_Reject(t *testing.T) {
	ctx := context.Background()

	t.Run("SuccessDispatchesCleanupJob", func(t *testing.T) {
		var saved repository.RejectionUpdate
		store := &mockItemStore{
			findByIDFn: func(ctx context.Context, klass models.ItemType, id uint64) (*models.EquipmentItem, error) {
				return pendingItem(1, 7), nil
			},
			setRejectedFn: func(ctx context.Context, id uint64, u repository.RejectionUpdate) error {
				saved = u
				return nil
			},
		}
		dispatcher := &mockDispatcher{enqueued: make(chan jobs.Job, 1)}
		svc := newTestReviewService(store, nil, dispatcher)

		item, err := svc.Reject(ctx, models.ItemTypeTelescope, 1, moderator(9), RejectParams{Reason: "OTHER"})
		require.NoError(t, err)
		require.NotNil(t, item.ReviewerDecision)
		assert.Equal(t, models.DecisionRejected, *item.ReviewerDecision)
		assert.Equal(t, "OTHER", saved.Reason)

		select {
		case job := <-dispatcher.enqueued:
			assert.Equal(t, constants.JobRejectItem, job.Name)
			assert.Equal(t, uint64(1), job.ItemID)
			assert.Equal(t, "telescope", job.Klass)
		case <-time.After(time.Second):
			t.Fatal("expected reject cleanup job")
		}
	})

	t.Run("DuplicateOfKlassDefaultsToItemKind", func(t *testing.T) {
		var saved repository.RejectionUpdate
		store := &mockItemStore{
			findByIDFn: func(ctx context.Context, klass models.ItemType, id uint64) (*models.EquipmentItem, error) {
				return pendingItem(1, 7), nil
			},
			setRejectedFn: func(ctx context.Context, id uint64, u repository.RejectionUpdate) error {
				saved = u
				return nil
			},
		}
		svc := newTestReviewService(store, nil, nil)

		dupOf := uint64(33)
		_, err := svc.Reject(ctx, models.ItemTypeTelescope, 1, moderator(9), RejectParams{
			Reason:      "DUPLICATE",
			DuplicateOf: &dupOf,
		})
		require.NoError(t, err)
		assert.Equal(t, models.ItemTypeTelescope, saved.DuplicateOfKlass)
	})

	t.Run("AlreadyApprovedBlocks", func(t *testing.T) {
		reviewer := uint64(2)
		decision := models.DecisionApproved
		store := &mockItemStore{
			findByIDFn: func(ctx context.Context, klass models.ItemType, id uint64) (*models.EquipmentItem, error) {
				item := pendingItem(1, 7)
				item.ReviewedByID = &reviewer
				item.ReviewerDecision = &decision
				return item, nil
			},
		}
		svc := newTestReviewService(store, nil, nil)

		_, err := svc.Reject(ctx, models.ItemTypeTelescope, 1, moderator(9), RejectParams{Reason: "OTHER"})
		assert.ErrorIs(t, err, ErrAlreadyApproved)
	})

	t.Run("RejectedItemCanBeRejectedAgain", func(t *testing.T) {
		// Only a prior APPROVED decision blocks rejection. Re-rejecting a
		// REJECTED item overwrites its rejection metadata.
		reviewer := uint64(2)
		decision := models.DecisionRejected
		store := &mockItemStore{
			findByIDFn: func(ctx context.Context, klass models.ItemType, id uint64) (*models.EquipmentItem, error) {
				item := pendingItem(1, 7)
				item.ReviewedByID = &reviewer
				item.ReviewerDecision = &decision
				return item, nil
			},
		}
		svc := newTestReviewService(store, nil, nil)

		_, err := svc.Reject(ctx, models.ItemTypeTelescope, 1, moderator(9), RejectParams{Reason: "TYPO"})
		require.NoError(t, err)
	})
}
