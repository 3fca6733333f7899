package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"astroshare/equipment-service/internal/constants"
	"astroshare/equipment-service/internal/models"
	"astroshare/equipment-service/internal/service"
	"astroshare/equipment-service/pkg/logger"
)

type errorResponse struct {
	Message string `json:"message"`
}

// itemResponse is the wire shape of an equipment item
type itemResponse struct {
	ID                   uint64     `json:"id"`
	Klass                string     `json:"klass"`
	Name                 string     `json:"name"`
	BrandID              *uint64    `json:"brand_id"`
	BrandName            *string    `json:"brand_name"`
	VariantOfID          *uint64    `json:"variant_of_id"`
	EditProposalTargetID *uint64    `json:"edit_proposal_target_id,omitempty"`
	CreatedByID          *uint64    `json:"created_by_id"`
	ReviewedByID         *uint64    `json:"reviewed_by_id"`
	ReviewedTimestamp    *time.Time `json:"reviewed_timestamp"`
	ReviewerDecision     *string    `json:"reviewer_decision"`
	ReviewerComment      *string    `json:"reviewer_comment"`

	ReviewerRejectionReason               *string `json:"reviewer_rejection_reason,omitempty"`
	ReviewerRejectionDuplicateOf          *uint64 `json:"reviewer_rejection_duplicate_of,omitempty"`
	ReviewerRejectionDuplicateOfKlass     *string `json:"reviewer_rejection_duplicate_of_klass,omitempty"`
	ReviewerRejectionDuplicateOfUsageType *string `json:"reviewer_rejection_duplicate_of_usage_type,omitempty"`

	ReviewerLock     *uint64 `json:"reviewer_lock"`
	EditProposalLock *uint64 `json:"edit_proposal_lock"`

	UserCount  int64 `json:"user_count"`
	ImageCount int64 `json:"image_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type listResponse struct {
	Results  []*itemResponse `json:"results"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	HasMore  bool            `json:"has_more"`
}

func toItemResponse(item *models.EquipmentItem) *itemResponse {
	resp := &itemResponse{
		ID:                   item.ID,
		Klass:                string(item.Klass),
		Name:                 item.Name,
		BrandID:              item.BrandID,
		BrandName:            item.BrandName,
		VariantOfID:          item.VariantOfID,
		EditProposalTargetID: item.EditProposalTargetID,
		CreatedByID:          item.CreatedByID,
		ReviewedByID:         item.ReviewedByID,
		ReviewedTimestamp:    item.ReviewedTimestamp,
		ReviewerDecision:     item.ReviewerDecision,
		ReviewerComment:      item.ReviewerComment,

		ReviewerRejectionReason:               item.ReviewerRejectionReason,
		ReviewerRejectionDuplicateOf:          item.ReviewerRejectionDuplicateOf,
		ReviewerRejectionDuplicateOfUsageType: item.ReviewerRejectionDuplicateOfUsageType,

		ReviewerLock:     item.ReviewerLockID,
		EditProposalLock: item.EditProposalLockID,

		UserCount:  item.UserCount,
		ImageCount: item.ImageCount,

		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
	if item.ReviewerRejectionDuplicateOfKlass != nil {
		klass := string(*item.ReviewerRejectionDuplicateOfKlass)
		resp.ReviewerRejectionDuplicateOfKlass = &klass
	}
	return resp
}

func toItemResponses(items []*models.EquipmentItem) []*itemResponse {
	out := make([]*itemResponse, len(items))
	for i, item := range items {
		out[i] = toItemResponse(item)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeRawJSON(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}

// writeServiceError maps the service error taxonomy onto HTTP statuses
func writeServiceError(w http.ResponseWriter, log *logger.Logger, err error) {
	var validationErr *service.ValidationError

	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "Equipment item not found")
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "You do not have permission to perform this action")
	case errors.Is(err, service.ErrLockConflict):
		writeError(w, http.StatusConflict, constants.ConflictMessage)
	case errors.Is(err, service.ErrAlreadyReviewed),
		errors.Is(err, service.ErrNotReviewed),
		errors.Is(err, service.ErrAlreadyApproved),
		errors.Is(err, service.ErrSelfReview):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrUnknownItemType),
		errors.Is(err, models.ErrUnsupportedItemType),
		errors.Is(err, models.ErrUsageTypeRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Message)
	default:
		log.WithField("error", err.Error()).Error("Request failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
