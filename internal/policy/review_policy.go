package policy

import (
	"astroshare/equipment-service/internal/constants"
	"astroshare/equipment-service/pkg/auth"
)

// ReviewPolicy decides who may review, lock, and create equipment items
type ReviewPolicy struct{}

func NewReviewPolicy() *ReviewPolicy {
	return &ReviewPolicy{}
}

// CanReview reports whether the user may approve, unapprove, or reject items,
// and manage reviewer locks
func (p *ReviewPolicy) CanReview(user *auth.UserContext) (bool, string) {
	if user == nil {
		return false, "Authentication required"
	}
	if !user.HasRole(constants.RoleEquipmentModerator) {
		return false, "You don't have permission to review equipment items"
	}
	return true, ""
}

// CanManageEditProposalLock reports whether the user may acquire or release
// edit proposal locks
func (p *ReviewPolicy) CanManageEditProposalLock(user *auth.UserContext) (bool, string) {
	if user == nil {
		return false, "Authentication required"
	}
	if !user.HasRole(constants.RoleOwnEquipmentMigrator) {
		return false, "You don't have permission to manage edit proposal locks"
	}
	return true, ""
}

// CanCreate reports whether the user may create or edit equipment items
func (p *ReviewPolicy) CanCreate(user *auth.UserContext) (bool, string) {
	if user == nil {
		return false, "Authentication required"
	}
	if !user.HasAnyRole(constants.RoleEquipmentModerator, constants.RoleOwnEquipmentMigrator) {
		return false, "You don't have permission to create or edit equipment items"
	}
	return true, ""
}
