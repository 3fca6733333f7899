package models

import (
	"errors"
	"fmt"
	"time"
)

// ItemType is the closed set of equipment kinds
type ItemType string

const (
	ItemTypeTelescope ItemType = "telescope"
	ItemTypeCamera    ItemType = "camera"
	ItemTypeMount     ItemType = "mount"
	ItemTypeFilter    ItemType = "filter"
	ItemTypeAccessory ItemType = "accessory"
	ItemTypeSoftware  ItemType = "software"
	ItemTypeSensor    ItemType = "sensor"
)

// ErrUnknownItemType is returned for types outside the closed set
var ErrUnknownItemType = errors.New("unknown equipment item type")

// ErrUnsupportedItemType is returned for operations that do not support sensors
var ErrUnsupportedItemType = errors.New("this operation does not support sensors")

// ErrUsageTypeRequired is returned when cameras or telescopes are queried without a usage type
var ErrUsageTypeRequired = errors.New("a usage type is required for this equipment type")

// ParseItemType parses a URL path segment into an ItemType
func ParseItemType(s string) (ItemType, error) {
	switch ItemType(s) {
	case ItemTypeTelescope, ItemTypeCamera, ItemTypeMount, ItemTypeFilter,
		ItemTypeAccessory, ItemTypeSoftware, ItemTypeSensor:
		return ItemType(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownItemType, s)
}

// Label returns the human-readable label for the type
func (t ItemType) Label() string {
	switch t {
	case ItemTypeTelescope:
		return "Telescope"
	case ItemTypeCamera:
		return "Camera"
	case ItemTypeMount:
		return "Mount"
	case ItemTypeFilter:
		return "Filter"
	case ItemTypeAccessory:
		return "Accessory"
	case ItemTypeSoftware:
		return "Software"
	case ItemTypeSensor:
		return "Sensor"
	}
	return ""
}

// UsageProperty maps the item type to the image-equipment usage column value.
// Cameras and telescopes carry separate imaging and guiding usage slots, so
// they require a usage type. Sensors have no usage history.
func (t ItemType) UsageProperty(usageType string) (string, error) {
	switch t {
	case ItemTypeCamera:
		switch usageType {
		case "imaging":
			return "imaging_cameras", nil
		case "guiding":
			return "guiding_cameras", nil
		}
		return "", ErrUsageTypeRequired
	case ItemTypeTelescope:
		switch usageType {
		case "imaging":
			return "imaging_telescopes", nil
		case "guiding":
			return "guiding_telescopes", nil
		}
		return "", ErrUsageTypeRequired
	case ItemTypeMount:
		return "mounts", nil
	case ItemTypeFilter:
		return "filters", nil
	case ItemTypeAccessory:
		return "accessories", nil
	case ItemTypeSoftware:
		return "software", nil
	case ItemTypeSensor:
		return "", ErrUnsupportedItemType
	}
	return "", ErrUnknownItemType
}

// ReviewerDecision values stored in the reviewer_decision column
const (
	DecisionApproved = "APPROVED"
	DecisionRejected = "REJECTED"
)

// LockSlot identifies one of the two cooperative lock slots on an item
type LockSlot string

const (
	LockSlotReviewer     LockSlot = "reviewer"
	LockSlotEditProposal LockSlot = "edit_proposal"
)

// HolderColumn returns the lock holder column name for the slot
func (s LockSlot) HolderColumn() string {
	if s == LockSlotEditProposal {
		return "edit_proposal_lock"
	}
	return "reviewer_lock"
}

// TimestampColumn returns the lock timestamp column name for the slot
func (s LockSlot) TimestampColumn() string {
	if s == LockSlotEditProposal {
		return "edit_proposal_lock_timestamp"
	}
	return "reviewer_lock_timestamp"
}

// EquipmentBrand is a manufacturer of equipment items
type EquipmentBrand struct {
	ID        uint64    `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// EquipmentItem is a reviewable equipment catalog entry. Edit proposals share
// the table and lifecycle; a non-nil EditProposalTargetID marks a row as a
// proposed change to an existing item.
type EquipmentItem struct {
	ID    uint64   `db:"id"`
	Klass ItemType `db:"klass"`
	Name  string   `db:"name"`

	BrandID   *uint64 `db:"brand_id"`
	BrandName *string `db:"brand_name"`

	VariantOfID          *uint64 `db:"variant_of_id"`
	EditProposalTargetID *uint64 `db:"edit_proposal_target_id"`

	CreatedByID *uint64 `db:"created_by_id"`

	ReviewedByID      *uint64    `db:"reviewed_by_id"`
	ReviewedTimestamp *time.Time `db:"reviewed_timestamp"`
	ReviewerDecision  *string    `db:"reviewer_decision"`
	ReviewerComment   *string    `db:"reviewer_comment"`

	ReviewerRejectionReason               *string   `db:"reviewer_rejection_reason"`
	ReviewerRejectionDuplicateOf          *uint64   `db:"reviewer_rejection_duplicate_of"`
	ReviewerRejectionDuplicateOfKlass     *ItemType `db:"reviewer_rejection_duplicate_of_klass"`
	ReviewerRejectionDuplicateOfUsageType *string   `db:"reviewer_rejection_duplicate_of_usage_type"`

	ReviewerLockID            *uint64    `db:"reviewer_lock"`
	ReviewerLockTimestamp     *time.Time `db:"reviewer_lock_timestamp"`
	EditProposalLockID        *uint64    `db:"edit_proposal_lock"`
	EditProposalLockTimestamp *time.Time `db:"edit_proposal_lock_timestamp"`

	UserCount  int64 `db:"user_count"`
	ImageCount int64 `db:"image_count"`

	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at"`
}

// IsDIY reports whether the item has no brand
func (i *EquipmentItem) IsDIY() bool {
	return i.BrandID == nil
}

// IsVariant reports whether the item is a variant of another item
func (i *EquipmentItem) IsVariant() bool {
	return i.VariantOfID != nil
}

// IsEditProposal reports whether the row is a proposed change to an existing item
func (i *EquipmentItem) IsEditProposal() bool {
	return i.EditProposalTargetID != nil
}

// IsPending reports whether the item still awaits review
func (i *EquipmentItem) IsPending() bool {
	return i.ReviewedByID == nil
}

// IsApproved reports whether the reviewer decision is APPROVED
func (i *EquipmentItem) IsApproved() bool {
	return i.ReviewerDecision != nil && *i.ReviewerDecision == DecisionApproved
}

// DisplayName renders the item the way notifications present it
func (i *EquipmentItem) DisplayName() string {
	if i.BrandName != nil {
		return *i.BrandName + " " + i.Name
	}
	return "(DIY) " + i.Name
}

// FullName is the "brand name + item name" string the fuzzy matcher scores against
func (i *EquipmentItem) FullName() string {
	if i.BrandName != nil {
		return *i.BrandName + " " + i.Name
	}
	return i.Name
}
