package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"astroshare/equipment-service/internal/models"
)

// itemColumns is the select list shared by every item query
const itemColumns = `
	i.id, i.klass, i.name, i.brand_id, b.name AS brand_name,
	i.variant_of_id, i.edit_proposal_target_id, i.created_by_id,
	i.reviewed_by_id, i.reviewed_timestamp, i.reviewer_decision, i.reviewer_comment,
	i.reviewer_rejection_reason, i.reviewer_rejection_duplicate_of,
	i.reviewer_rejection_duplicate_of_klass, i.reviewer_rejection_duplicate_of_usage_type,
	i.reviewer_lock, i.reviewer_lock_timestamp,
	i.edit_proposal_lock, i.edit_proposal_lock_timestamp,
	i.user_count, i.image_count, i.created_at, i.updated_at, i.deleted_at
`

const itemFrom = `
	FROM equipment_items i
	LEFT JOIN equipment_brands b ON i.brand_id = b.id
`

// Visibility restricts listings for non-moderators: branded items for
// everyone, own-created items for the authenticated requester.
type Visibility struct {
	Moderator bool
	UserID    *uint64
}

// ListFilter drives the sorted (non-query) listing path
type ListFilter struct {
	Klass           models.ItemType
	Visibility      Visibility
	Sort            string
	ExcludeVariants bool
	EditProposals   bool
	Limit           int
	Offset          int
}

// CandidateRow is a fuzzy-search candidate with its variant substring match
// precomputed in SQL
type CandidateRow struct {
	Item             *models.EquipmentItem
	VariantNameMatch bool
}

// ItemRepository provides access to equipment item rows
type ItemRepository struct {
	db *sql.DB
}

func NewItemRepository(db *sql.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner, extra ...interface{}) (*models.EquipmentItem, error) {
	item := &models.EquipmentItem{}

	var brandID, variantOfID, editProposalTargetID, createdByID sql.NullInt64
	var reviewedByID, duplicateOf, reviewerLock, editProposalLock sql.NullInt64
	var brandName, decision, comment, rejectionReason sql.NullString
	var duplicateOfKlass, duplicateOfUsageType sql.NullString
	var reviewedTs, reviewerLockTs, editProposalLockTs, deletedAt sql.NullTime

	dest := []interface{}{
		&item.ID, &item.Klass, &item.Name, &brandID, &brandName,
		&variantOfID, &editProposalTargetID, &createdByID,
		&reviewedByID, &reviewedTs, &decision, &comment,
		&rejectionReason, &duplicateOf, &duplicateOfKlass, &duplicateOfUsageType,
		&reviewerLock, &reviewerLockTs,
		&editProposalLock, &editProposalLockTs,
		&item.UserCount, &item.ImageCount, &item.CreatedAt, &item.UpdatedAt, &deletedAt,
	}
	dest = append(dest, extra...)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	item.BrandID = nullUint64(brandID)
	item.VariantOfID = nullUint64(variantOfID)
	item.EditProposalTargetID = nullUint64(editProposalTargetID)
	item.CreatedByID = nullUint64(createdByID)
	item.ReviewedByID = nullUint64(reviewedByID)
	item.ReviewerRejectionDuplicateOf = nullUint64(duplicateOf)
	item.ReviewerLockID = nullUint64(reviewerLock)
	item.EditProposalLockID = nullUint64(editProposalLock)

	item.BrandName = nullString(brandName)
	item.ReviewerDecision = nullString(decision)
	item.ReviewerComment = nullString(comment)
	item.ReviewerRejectionReason = nullString(rejectionReason)
	item.ReviewerRejectionDuplicateOfUsageType = nullString(duplicateOfUsageType)

	if duplicateOfKlass.Valid {
		klass := models.ItemType(duplicateOfKlass.String)
		item.ReviewerRejectionDuplicateOfKlass = &klass
	}

	item.ReviewedTimestamp = nullTime(reviewedTs)
	item.ReviewerLockTimestamp = nullTime(reviewerLockTs)
	item.EditProposalLockTimestamp = nullTime(editProposalLockTs)
	item.DeletedAt = nullTime(deletedAt)

	return item, nil
}

func nullUint64(v sql.NullInt64) *uint64 {
	if !v.Valid {
		return nil
	}
	u := uint64(v.Int64)
	return &u
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

// visibilitySQL renders the visibility predicate. Edit proposal listings skip it.
func visibilitySQL(v Visibility, args *[]interface{}) string {
	if v.Moderator {
		return ""
	}
	if v.UserID != nil {
		*args = append(*args, *v.UserID)
		return " AND (i.brand_id IS NOT NULL OR i.created_by_id = ?)"
	}
	return " AND i.brand_id IS NOT NULL"
}

// approvedOrOwnSQL renders the approval rule applied to text searches
func approvedOrOwnSQL(userID *uint64, args *[]interface{}) string {
	if userID != nil {
		*args = append(*args, models.DecisionApproved, *userID)
		return " AND (i.reviewer_decision = ? OR i.created_by_id = ?)"
	}
	*args = append(*args, models.DecisionApproved)
	return " AND i.reviewer_decision = ?"
}

// FindByID retrieves a single item with its brand name joined in
func (r *ItemRepository) FindByID(ctx context.Context, klass models.ItemType, id uint64) (*models.EquipmentItem, error) {
	query := `SELECT` + itemColumns + itemFrom + `
		WHERE i.id = ? AND i.klass = ? AND i.deleted_at IS NULL
	`

	item, err := scanItem(r.db.QueryRowContext(ctx, query, id, klass))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find item %d: %w", id, err)
	}
	return item, nil
}

// FindByIDs retrieves items preserving no particular order
func (r *ItemRepository) FindByIDs(ctx context.Context, klass models.ItemType, ids []uint64) ([]*models.EquipmentItem, error) {
	if len(ids) == 0 {
		return []*models.EquipmentItem{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := `SELECT` + itemColumns + itemFrom + `
		WHERE i.klass = ? AND i.deleted_at IS NULL AND i.id IN (` + placeholders + `)`

	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, klass)
	for _, id := range ids {
		args = append(args, id)
	}

	return r.queryItems(ctx, query, args...)
}

// Create inserts a new equipment item and returns its id
func (r *ItemRepository) Create(ctx context.Context, item *models.EquipmentItem) (uint64, error) {
	query := `
		INSERT INTO equipment_items
			(klass, name, brand_id, variant_of_id, edit_proposal_target_id, created_by_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, NOW(), NOW())
	`

	result, err := r.db.ExecContext(ctx, query,
		item.Klass, item.Name, item.BrandID, item.VariantOfID, item.EditProposalTargetID, item.CreatedByID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted id: %w", err)
	}
	return uint64(id), nil
}

// ListVariants returns the variants of an item ordered by name
func (r *ItemRepository) ListVariants(ctx context.Context, itemID uint64) ([]*models.EquipmentItem, error) {
	query := `SELECT` + itemColumns + itemFrom + `
		WHERE i.variant_of_id = ? AND i.deleted_at IS NULL
		ORDER BY LOWER(i.name)
	`
	return r.queryItems(ctx, query, itemID)
}

// ListByBrand returns items of a brand passing the approved-or-own rule,
// ordered by name. Used by the exact-brand short circuit.
func (r *ItemRepository) ListByBrand(ctx context.Context, klass models.ItemType, brandID uint64, userID *uint64, excludeVariants, editProposals bool) ([]*models.EquipmentItem, error) {
	args := []interface{}{klass, brandID, editProposals}
	query := `SELECT` + itemColumns + itemFrom + `
		WHERE i.klass = ? AND i.deleted_at IS NULL AND i.brand_id = ?
		AND (i.edit_proposal_target_id IS NOT NULL) = ?`
	query += approvedOrOwnSQL(userID, &args)
	if excludeVariants {
		query += ` AND i.variant_of_id IS NULL`
	}
	query += ` ORDER BY LOWER(i.name)`

	return r.queryItems(ctx, query, args...)
}

// SearchCandidates returns rows eligible for fuzzy matching against q: all
// rows passing visibility and the approved-or-own rule, each flagged when any
// of its variants' names contains q. The trigram scoring happens in the
// service layer.
func (r *ItemRepository) SearchCandidates(ctx context.Context, klass models.ItemType, vis Visibility, q string, excludeVariants, editProposals bool) ([]CandidateRow, error) {
	args := []interface{}{"%" + strings.ToLower(q) + "%", klass, editProposals}
	query := `SELECT` + itemColumns + `,
		EXISTS (
			SELECT 1 FROM equipment_items v
			WHERE v.variant_of_id = i.id AND v.deleted_at IS NULL AND LOWER(v.name) LIKE ?
		) AS variant_name_match
	` + itemFrom + `
		WHERE i.klass = ? AND i.deleted_at IS NULL AND (i.edit_proposal_target_id IS NOT NULL) = ?`

	if !editProposals {
		query += visibilitySQL(vis, &args)
	}
	query += approvedOrOwnSQL(vis.UserID, &args)
	if excludeVariants {
		query += ` AND i.variant_of_id IS NULL`
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query search candidates: %w", err)
	}
	defer rows.Close()

	candidates := []CandidateRow{}
	for rows.Next() {
		var variantMatch bool
		item, err := scanItem(rows, &variantMatch)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		candidates = append(candidates, CandidateRow{Item: item, VariantNameMatch: variantMatch})
	}
	return candidates, rows.Err()
}

// List returns a sorted page of items with no text query applied
func (r *ItemRepository) List(ctx context.Context, f ListFilter) ([]*models.EquipmentItem, error) {
	args := []interface{}{f.Klass, f.EditProposals}
	query := `SELECT` + itemColumns + itemFrom + `
		WHERE i.klass = ? AND i.deleted_at IS NULL AND (i.edit_proposal_target_id IS NOT NULL) = ?`

	if !f.EditProposals {
		query += visibilitySQL(f.Visibility, &args)
	}
	if f.ExcludeVariants {
		query += ` AND i.variant_of_id IS NULL`
	}

	query += sortSQL(f.Sort)

	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		query += ` LIMIT ? OFFSET ?`
	}

	return r.queryItems(ctx, query, args...)
}

func sortSQL(sort string) string {
	switch sort {
	case "az":
		return ` ORDER BY LOWER(b.name), LOWER(i.name)`
	case "-az":
		return ` ORDER BY LOWER(b.name) DESC, LOWER(i.name) DESC`
	case "users":
		return ` ORDER BY i.user_count, LOWER(b.name), LOWER(i.name)`
	case "-users":
		return ` ORDER BY i.user_count DESC, LOWER(b.name), LOWER(i.name)`
	case "images":
		return ` ORDER BY i.image_count, LOWER(b.name), LOWER(i.name)`
	case "-images":
		return ` ORDER BY i.image_count DESC, LOWER(b.name), LOWER(i.name)`
	}
	return ` ORDER BY i.id`
}

// ListOthersInBrand returns all items of a brand ordered by name, optionally
// excluding an exact (case-insensitive) name
func (r *ItemRepository) ListOthersInBrand(ctx context.Context, klass models.ItemType, brandID uint64, excludeName string) ([]*models.EquipmentItem, error) {
	args := []interface{}{klass, brandID}
	query := `SELECT` + itemColumns + itemFrom + `
		WHERE i.klass = ? AND i.deleted_at IS NULL AND i.brand_id = ?`

	if excludeName != "" {
		args = append(args, strings.ToLower(excludeName))
		query += ` AND LOWER(i.name) != ?`
	}
	query += ` ORDER BY i.name`

	return r.queryItems(ctx, query, args...)
}

// RecentlyUsedItemIDs walks the user's images newest first and collects item
// ids attached under the given usage slot, stopping once the limit is passed.
func (r *ItemRepository) RecentlyUsedItemIDs(ctx context.Context, klass models.ItemType, userID uint64, usageProperty string, limit int) ([]uint64, error) {
	query := `
		SELECT ie.item_id
		FROM image_equipment_items ie
		INNER JOIN images im ON im.id = ie.image_id
		INNER JOIN equipment_items i ON i.id = ie.item_id
		WHERE im.user_id = ? AND ie.usage_property = ? AND i.klass = ? AND i.deleted_at IS NULL
		ORDER BY im.uploaded DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, userID, usageProperty, klass, limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to query recently used items: %w", err)
	}
	defer rows.Close()

	ids := []uint64{}
	seen := map[uint64]bool{}
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan item id: %w", err)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetApproved records an APPROVED review decision
func (r *ItemRepository) SetApproved(ctx context.Context, id, reviewerID uint64, ts time.Time, comment *string) error {
	query := `
		UPDATE equipment_items
		SET reviewed_by_id = ?, reviewed_timestamp = ?, reviewer_decision = ?, reviewer_comment = ?, updated_at = NOW()
		WHERE id = ?
	`
	if _, err := r.db.ExecContext(ctx, query, reviewerID, ts, models.DecisionApproved, comment, id); err != nil {
		return fmt.Errorf("failed to approve item %d: %w", id, err)
	}
	return nil
}

// ClearReview resets an item to the unreviewed state
func (r *ItemRepository) ClearReview(ctx context.Context, id uint64) error {
	query := `
		UPDATE equipment_items
		SET reviewed_by_id = NULL, reviewed_timestamp = NULL, reviewer_decision = NULL, reviewer_comment = NULL, updated_at = NOW()
		WHERE id = ?
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to clear review of item %d: %w", id, err)
	}
	return nil
}

// RejectionUpdate carries the full rejection metadata
type RejectionUpdate struct {
	ReviewerID           uint64
	Timestamp            time.Time
	Reason               string
	Comment              *string
	DuplicateOf          *uint64
	DuplicateOfKlass     models.ItemType
	DuplicateOfUsageType *string
}

// SetRejected records a REJECTED review decision with rejection metadata.
// Delete bookkeeping (deleted_at) is left untouched.
func (r *ItemRepository) SetRejected(ctx context.Context, id uint64, u RejectionUpdate) error {
	query := `
		UPDATE equipment_items
		SET reviewed_by_id = ?, reviewed_timestamp = ?, reviewer_decision = ?,
		    reviewer_comment = ?, reviewer_rejection_reason = ?,
		    reviewer_rejection_duplicate_of = ?, reviewer_rejection_duplicate_of_klass = ?,
		    reviewer_rejection_duplicate_of_usage_type = ?, updated_at = NOW()
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query,
		u.ReviewerID, u.Timestamp, models.DecisionRejected,
		u.Comment, u.Reason,
		u.DuplicateOf, u.DuplicateOfKlass, u.DuplicateOfUsageType,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to reject item %d: %w", id, err)
	}
	return nil
}

func (r *ItemRepository) queryItems(ctx context.Context, query string, args ...interface{}) ([]*models.EquipmentItem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	items := []*models.EquipmentItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
