package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"astroshare/equipment-service/internal/client"
	"astroshare/equipment-service/internal/constants"
	"astroshare/equipment-service/internal/jobs"
	"astroshare/equipment-service/internal/models"
	"astroshare/equipment-service/internal/policy"
	"astroshare/equipment-service/internal/repository"
	"astroshare/equipment-service/pkg/auth"
	"astroshare/equipment-service/pkg/logger"
	"astroshare/equipment-service/pkg/metrics"
)

// reviewItemStore is the persistence surface the review workflow needs
type reviewItemStore interface {
	FindByID(ctx context.Context, klass models.ItemType, id uint64) (*models.EquipmentItem, error)
	SetApproved(ctx context.Context, id, reviewerID uint64, ts time.Time, comment *string) error
	ClearReview(ctx context.Context, id uint64) error
	SetRejected(ctx context.Context, id uint64, u repository.RejectionUpdate) error
}

// ReviewService drives the approve / unapprove / reject state machine.
//
// The lock check is advisory: the holder is read together with the item, so a
// second moderator acting between the check and the persist can still win the
// write. Only the lock acquisition itself (LockRepository.Acquire) is atomic.
type ReviewService struct {
	items      reviewItemStore
	policy     *policy.ReviewPolicy
	notifier   client.NotificationClient
	dispatcher jobs.Dispatcher
	baseURL    string
	log        *logger.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewReviewService(
	items reviewItemStore,
	reviewPolicy *policy.ReviewPolicy,
	notifier client.NotificationClient,
	dispatcher jobs.Dispatcher,
	baseURL string,
	log *logger.Logger,
	m *metrics.Metrics,
) *ReviewService {
	return &ReviewService{
		items:      items,
		policy:     reviewPolicy,
		notifier:   notifier,
		dispatcher: dispatcher,
		baseURL:    baseURL,
		log:        log,
		metrics:    m,
		now:        time.Now,
	}
}

// lockSlotFor picks the slot gating review of the entity: edit proposals are
// gated by the edit proposal lock, plain items by the reviewer lock.
func lockSlotFor(item *models.EquipmentItem) models.LockSlot {
	if item.IsEditProposal() {
		return models.LockSlotEditProposal
	}
	return models.LockSlotReviewer
}

func lockConflict(item *models.EquipmentItem, actor *auth.UserContext) bool {
	var holder *uint64
	if lockSlotFor(item) == models.LockSlotEditProposal {
		holder = item.EditProposalLockID
	} else {
		holder = item.ReviewerLockID
	}
	return holder != nil && *holder != actor.UserID
}

// Approve transitions an unreviewed item to APPROVED and notifies its creator
func (s *ReviewService) Approve(ctx context.Context, klass models.ItemType, id uint64, actor *auth.UserContext, comment *string) (*models.EquipmentItem, error) {
	if ok, _ := s.policy.CanReview(actor); !ok {
		return nil, ErrForbidden
	}

	item, err := s.loadItem(ctx, klass, id)
	if err != nil {
		return nil, err
	}

	if lockConflict(item, actor) {
		return nil, ErrLockConflict
	}
	if item.ReviewedByID != nil {
		return nil, ErrAlreadyReviewed
	}
	if item.CreatedByID != nil && *item.CreatedByID == actor.UserID {
		return nil, ErrSelfReview
	}

	ts := s.now().UTC()
	if err := s.items.SetApproved(ctx, id, actor.UserID, ts, comment); err != nil {
		return nil, err
	}

	item.ReviewedByID = &actor.UserID
	item.ReviewedTimestamp = &ts
	decision := models.DecisionApproved
	item.ReviewerDecision = &decision
	item.ReviewerComment = comment

	if item.CreatedByID != nil && *item.CreatedByID != actor.UserID {
		s.notifyCreator(item, actor, comment)
	}

	return item, nil
}

// Unapprove resets an approved (or rejected) item back to unreviewed
func (s *ReviewService) Unapprove(ctx context.Context, klass models.ItemType, id uint64, actor *auth.UserContext) (*models.EquipmentItem, error) {
	if ok, _ := s.policy.CanReview(actor); !ok {
		return nil, ErrForbidden
	}

	item, err := s.loadItem(ctx, klass, id)
	if err != nil {
		return nil, err
	}

	if lockConflict(item, actor) {
		return nil, ErrLockConflict
	}
	if item.ReviewedByID == nil {
		return nil, ErrNotReviewed
	}
	if item.CreatedByID != nil && *item.CreatedByID == actor.UserID {
		return nil, ErrSelfReview
	}

	if err := s.items.ClearReview(ctx, id); err != nil {
		return nil, err
	}

	item.ReviewedByID = nil
	item.ReviewedTimestamp = nil
	item.ReviewerDecision = nil
	item.ReviewerComment = nil

	return item, nil
}

// RejectParams carries the rejection metadata
type RejectParams struct {
	Reason               string
	Comment              *string
	DuplicateOf          *uint64
	DuplicateOfKlass     *models.ItemType
	DuplicateOfUsageType *string
}

// Reject transitions an item to REJECTED and dispatches the downstream
// cleanup job. Re-rejecting an already-REJECTED item is allowed; only a prior
// APPROVED decision blocks the transition. (Whether re-rejection is intended
// is an open product question; current behavior is preserved.)
func (s *ReviewService) Reject(ctx context.Context, klass models.ItemType, id uint64, actor *auth.UserContext, params RejectParams) (*models.EquipmentItem, error) {
	if ok, _ := s.policy.CanReview(actor); !ok {
		return nil, ErrForbidden
	}

	item, err := s.loadItem(ctx, klass, id)
	if err != nil {
		return nil, err
	}

	if lockConflict(item, actor) {
		return nil, ErrLockConflict
	}
	if item.ReviewedByID != nil && item.IsApproved() {
		return nil, ErrAlreadyApproved
	}
	if item.CreatedByID != nil && *item.CreatedByID == actor.UserID {
		return nil, ErrSelfReview
	}

	duplicateOfKlass := item.Klass
	if params.DuplicateOfKlass != nil {
		duplicateOfKlass = *params.DuplicateOfKlass
	}

	ts := s.now().UTC()
	update := repository.RejectionUpdate{
		ReviewerID:           actor.UserID,
		Timestamp:            ts,
		Reason:               params.Reason,
		Comment:              params.Comment,
		DuplicateOf:          params.DuplicateOf,
		DuplicateOfKlass:     duplicateOfKlass,
		DuplicateOfUsageType: params.DuplicateOfUsageType,
	}
	if err := s.items.SetRejected(ctx, id, update); err != nil {
		return nil, err
	}

	item.ReviewedByID = &actor.UserID
	item.ReviewedTimestamp = &ts
	decision := models.DecisionRejected
	item.ReviewerDecision = &decision
	item.ReviewerComment = params.Comment
	item.ReviewerRejectionReason = &update.Reason
	item.ReviewerRejectionDuplicateOf = params.DuplicateOf
	item.ReviewerRejectionDuplicateOfKlass = &duplicateOfKlass
	item.ReviewerRejectionDuplicateOfUsageType = params.DuplicateOfUsageType

	s.dispatchRejectCleanup(item)

	return item, nil
}

func (s *ReviewService) loadItem(ctx context.Context, klass models.ItemType, id uint64) (*models.EquipmentItem, error) {
	item, err := s.items.FindByID(ctx, klass, id)
	if errors.Is(err, repository.ErrItemNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load item %d: %w", id, err)
	}
	return item, nil
}

// notifyCreator pushes the approval notice without blocking the caller
func (s *ReviewService) notifyCreator(item *models.EquipmentItem, actor *auth.UserContext, comment *string) {
	eventType := constants.NoticeItemApproved
	if item.IsEditProposal() {
		eventType = constants.NoticeEditProposalApproved
	}

	payload := map[string]string{
		"user":     actor.DisplayName,
		"user_url": fmt.Sprintf("%s/users/%s", s.baseURL, actor.Username),
		"item":     item.DisplayName(),
		"item_url": fmt.Sprintf("%s/equipment/explorer/%s/%d", s.baseURL, item.Klass, item.ID),
	}
	if comment != nil {
		payload["comment"] = *comment
	}

	recipient := *item.CreatedByID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.notifier.Push(ctx, []uint64{recipient}, actor.UserID, eventType, payload); err != nil {
			s.log.WithField("item_id", item.ID).WithField("error", err.Error()).
				Warn("Failed to push approval notification")
		}
	}()
}

// dispatchRejectCleanup enqueues the job that removes the rejected item from
// images and presets referencing it. Fire and forget: failures are logged,
// never surfaced to the caller; the worker tolerates re-delivery.
func (s *ReviewService) dispatchRejectCleanup(item *models.EquipmentItem) {
	job := jobs.Job{
		Name:   constants.JobRejectItem,
		ItemID: item.ID,
		Klass:  string(item.Klass),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := s.dispatcher.Enqueue(ctx, job)
		if s.metrics != nil {
			status := "ok"
			if err != nil {
				status = "error"
			}
			s.metrics.JobsEnqueued.WithLabelValues(job.Name, status).Inc()
		}
		if err != nil {
			s.log.WithField("item_id", item.ID).WithField("error", err.Error()).
				Error("Failed to enqueue reject cleanup job")
		}
	}()
}
