package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"astroshare/equipment-service/internal/models"
)

// ErrLockHeld is returned when a lock slot is held by a different user
var ErrLockHeld = errors.New("lock is held by another user")

// ErrItemNotFound is returned when an equipment item does not exist
var ErrItemNotFound = errors.New("equipment item not found")

// LockRepository manages the two cooperative lock slots on equipment items.
// Acquisition is a single conditional UPDATE, so there is no window between
// checking the holder and setting it. Lock writes touch only the lock columns;
// review fields and audit timestamps are left alone.
type LockRepository struct {
	db *sql.DB
}

func NewLockRepository(db *sql.DB) *LockRepository {
	return &LockRepository{db: db}
}

// Acquire takes the slot for userID. Re-acquiring a slot already held by the
// same user refreshes the timestamp. Returns ErrLockHeld when another user
// holds the slot, ErrItemNotFound when the item does not exist.
func (r *LockRepository) Acquire(ctx context.Context, slot models.LockSlot, itemID, userID uint64) error {
	holderCol := slot.HolderColumn()
	tsCol := slot.TimestampColumn()

	query := fmt.Sprintf(`
		UPDATE equipment_items
		SET %s = ?, %s = ?
		WHERE id = ? AND deleted_at IS NULL AND (%s IS NULL OR %s = ?)
	`, holderCol, tsCol, holderCol, holderCol)

	result, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC(), itemID, userID)
	if err != nil {
		return fmt.Errorf("failed to acquire %s lock: %w", slot, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows > 0 {
		return nil
	}

	// No row matched: either the item is missing or someone else holds the slot.
	holder, err := r.HeldBy(ctx, slot, itemID)
	if err != nil {
		return err
	}
	if holder != nil && *holder == userID {
		return nil
	}
	return ErrLockHeld
}

// Release clears the slot only when held by userID; releasing a slot held by
// someone else (or by nobody) is a no-op, not an error.
func (r *LockRepository) Release(ctx context.Context, slot models.LockSlot, itemID, userID uint64) error {
	holderCol := slot.HolderColumn()
	tsCol := slot.TimestampColumn()

	query := fmt.Sprintf(`
		UPDATE equipment_items
		SET %s = NULL, %s = NULL
		WHERE id = ? AND %s = ?
	`, holderCol, tsCol, holderCol)

	if _, err := r.db.ExecContext(ctx, query, itemID, userID); err != nil {
		return fmt.Errorf("failed to release %s lock: %w", slot, err)
	}
	return nil
}

// ForceRelease clears the slot regardless of holder. Stale locks have no
// automatic expiry, so moderators need a way to clear them.
func (r *LockRepository) ForceRelease(ctx context.Context, slot models.LockSlot, itemID uint64) error {
	holderCol := slot.HolderColumn()
	tsCol := slot.TimestampColumn()

	query := fmt.Sprintf(`
		UPDATE equipment_items
		SET %s = NULL, %s = NULL
		WHERE id = ?
	`, holderCol, tsCol)

	if _, err := r.db.ExecContext(ctx, query, itemID); err != nil {
		return fmt.Errorf("failed to force-release %s lock: %w", slot, err)
	}
	return nil
}

// HeldBy returns the current holder of the slot, or nil when free.
// Returns ErrItemNotFound when the item does not exist.
func (r *LockRepository) HeldBy(ctx context.Context, slot models.LockSlot, itemID uint64) (*uint64, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM equipment_items WHERE id = ? AND deleted_at IS NULL
	`, slot.HolderColumn())

	var holder sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, itemID).Scan(&holder)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s lock: %w", slot, err)
	}

	if !holder.Valid {
		return nil, nil
	}
	id := uint64(holder.Int64)
	return &id, nil
}
