package service

import (
	"context"
	"errors"

	"astroshare/equipment-service/internal/models"
	"astroshare/equipment-service/internal/policy"
	"astroshare/equipment-service/internal/repository"
	"astroshare/equipment-service/pkg/auth"
	"astroshare/equipment-service/pkg/logger"
)

type lockStore interface {
	Acquire(ctx context.Context, slot models.LockSlot, itemID, userID uint64) error
	Release(ctx context.Context, slot models.LockSlot, itemID, userID uint64) error
	ForceRelease(ctx context.Context, slot models.LockSlot, itemID uint64) error
	HeldBy(ctx context.Context, slot models.LockSlot, itemID uint64) (*uint64, error)
}

// LockService gates the two cooperative lock slots behind role checks.
// The reviewer slot belongs to moderators; the edit proposal slot is also
// open to users migrating their own equipment.
type LockService struct {
	locks  lockStore
	policy *policy.ReviewPolicy
	log    *logger.Logger
}

func NewLockService(locks lockStore, reviewPolicy *policy.ReviewPolicy, log *logger.Logger) *LockService {
	return &LockService{locks: locks, policy: reviewPolicy, log: log}
}

func (s *LockService) authorize(slot models.LockSlot, user *auth.UserContext) error {
	var ok bool
	if slot == models.LockSlotEditProposal {
		ok, _ = s.policy.CanManageEditProposalLock(user)
	} else {
		ok, _ = s.policy.CanReview(user)
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// Acquire takes the slot for the caller. Re-acquiring an already-held slot
// refreshes its timestamp.
func (s *LockService) Acquire(ctx context.Context, slot models.LockSlot, itemID uint64, user *auth.UserContext) error {
	if err := s.authorize(slot, user); err != nil {
		return err
	}

	err := s.locks.Acquire(ctx, slot, itemID, user.UserID)
	if errors.Is(err, repository.ErrLockHeld) {
		return ErrLockConflict
	}
	if errors.Is(err, repository.ErrItemNotFound) {
		return ErrNotFound
	}
	return err
}

// Release clears the slot when the caller holds it; otherwise a no-op
func (s *LockService) Release(ctx context.Context, slot models.LockSlot, itemID uint64, user *auth.UserContext) error {
	if err := s.authorize(slot, user); err != nil {
		return err
	}
	return s.locks.Release(ctx, slot, itemID, user.UserID)
}

// ForceRelease clears the slot regardless of holder. Moderator only; this is
// the escape hatch for locks abandoned by a closed browser tab.
func (s *LockService) ForceRelease(ctx context.Context, slot models.LockSlot, itemID uint64, user *auth.UserContext) error {
	if ok, _ := s.policy.CanReview(user); !ok {
		return ErrForbidden
	}

	holder, err := s.locks.HeldBy(ctx, slot, itemID)
	if errors.Is(err, repository.ErrItemNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if holder != nil && *holder != user.UserID {
		s.log.WithUserID(user.UserID).WithField("item_id", itemID).WithField("holder", *holder).
			Info("Force-releasing lock held by another user")
	}

	return s.locks.ForceRelease(ctx, slot, itemID)
}

// Holder reports who currently holds the slot, nil when free
func (s *LockService) Holder(ctx context.Context, slot models.LockSlot, itemID uint64) (*uint64, error) {
	holder, err := s.locks.HeldBy(ctx, slot, itemID)
	if errors.Is(err, repository.ErrItemNotFound) {
		return nil, ErrNotFound
	}
	return holder, err
}
