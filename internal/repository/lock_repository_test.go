package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astroshare/equipment-service/internal/models"
)

func TestLockRepository_Acquire(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewLockRepository(db)
	ctx := context.Background()

	t.Run("FreeSlotAcquired", func(t *testing.T) {
		mock.ExpectExec("UPDATE equipment_items").
			WithArgs(uint64(10), sqlmock.AnyArg(), uint64(1), uint64(10)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Acquire(ctx, models.LockSlotReviewer, 1, 10)
		require.NoError(t, err)
	})

	t.Run("ReacquireBySameHolder", func(t *testing.T) {
		// The conditional UPDATE matches when the holder is the caller
		mock.ExpectExec("UPDATE equipment_items").
			WithArgs(uint64(10), sqlmock.AnyArg(), uint64(1), uint64(10)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Acquire(ctx, models.LockSlotReviewer, 1, 10)
		require.NoError(t, err)
	})

	t.Run("HeldByAnotherUser", func(t *testing.T) {
		mock.ExpectExec("UPDATE equipment_items").
			WithArgs(uint64(10), sqlmock.AnyArg(), uint64(1), uint64(10)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		mock.ExpectQuery("SELECT reviewer_lock FROM equipment_items").
			WithArgs(uint64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"reviewer_lock"}).AddRow(int64(99)))

		err := repo.Acquire(ctx, models.LockSlotReviewer, 1, 10)
		assert.ErrorIs(t, err, ErrLockHeld)
	})

	t.Run("ItemMissing", func(t *testing.T) {
		mock.ExpectExec("UPDATE equipment_items").
			WithArgs(uint64(10), sqlmock.AnyArg(), uint64(404), uint64(10)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		mock.ExpectQuery("SELECT reviewer_lock FROM equipment_items").
			WithArgs(uint64(404)).
			WillReturnError(sql.ErrNoRows)

		err := repo.Acquire(ctx, models.LockSlotReviewer, 404, 10)
		assert.ErrorIs(t, err, ErrItemNotFound)
	})

	t.Run("EditProposalSlotUsesItsColumns", func(t *testing.T) {
		mock.ExpectExec("SET edit_proposal_lock = \\?, edit_proposal_lock_timestamp = \\?").
			WithArgs(uint64(10), sqlmock.AnyArg(), uint64(1), uint64(10)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Acquire(ctx, models.LockSlotEditProposal, 1, 10)
		require.NoError(t, err)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockRepository_Release(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewLockRepository(db)
	ctx := context.Background()

	t.Run("HolderReleases", func(t *testing.T) {
		mock.ExpectExec("SET reviewer_lock = NULL, reviewer_lock_timestamp = NULL").
			WithArgs(uint64(1), uint64(10)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Release(ctx, models.LockSlotReviewer, 1, 10)
		require.NoError(t, err)
	})

	t.Run("NonHolderReleaseIsNoOp", func(t *testing.T) {
		mock.ExpectExec("SET reviewer_lock = NULL, reviewer_lock_timestamp = NULL").
			WithArgs(uint64(1), uint64(55)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Release(ctx, models.LockSlotReviewer, 1, 55)
		require.NoError(t, err)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockRepository_ForceRelease(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewLockRepository(db)

	mock.ExpectExec("SET reviewer_lock = NULL, reviewer_lock_timestamp = NULL").
		WithArgs(uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.ForceRelease(context.Background(), models.LockSlotReviewer, 1)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockRepository_HeldBy(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewLockRepository(db)
	ctx := context.Background()

	t.Run("Held", func(t *testing.T) {
		mock.ExpectQuery("SELECT reviewer_lock FROM equipment_items").
			WithArgs(uint64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"reviewer_lock"}).AddRow(int64(42)))

		holder, err := repo.HeldBy(ctx, models.LockSlotReviewer, 1)
		require.NoError(t, err)
		require.NotNil(t, holder)
		assert.Equal(t, uint64(42), *holder)
	})

	t.Run("Free", func(t *testing.T) {
		mock.ExpectQuery("SELECT reviewer_lock FROM equipment_items").
			WithArgs(uint64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"reviewer_lock"}).AddRow(nil))

		holder, err := repo.HeldBy(ctx, models.LockSlotReviewer, 1)
		require.NoError(t, err)
		assert.Nil(t, holder)
	})

	t.Run("Missing", func(t *testing.T) {
		mock.ExpectQuery("SELECT reviewer_lock FROM equipment_items").
			WithArgs(uint64(404)).
			WillReturnError(sql.ErrNoRows)

		_, err := repo.HeldBy(ctx, models.LockSlotReviewer, 404)
		assert.ErrorIs(t, err, ErrItemNotFound)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}
