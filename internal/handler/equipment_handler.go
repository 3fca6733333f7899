package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"astroshare/equipment-service/internal/models"
	"astroshare/equipment-service/internal/service"
	"astroshare/equipment-service/pkg/auth"
	"astroshare/equipment-service/pkg/helpers"
	"astroshare/equipment-service/pkg/logger"
)

// EquipmentHandler exposes the equipment moderation API
type EquipmentHandler struct {
	listing    *service.ListingService
	reviews    *service.ReviewService
	aggregates *service.AggregatesService
	items      *service.ItemService
	locks      *service.LockService
	validator  *helpers.CustomValidator
	log        *logger.Logger
}

func NewEquipmentHandler(
	listing *service.ListingService,
	reviews *service.ReviewService,
	aggregates *service.AggregatesService,
	items *service.ItemService,
	locks *service.LockService,
	validator *helpers.CustomValidator,
	log *logger.Logger,
) *EquipmentHandler {
	return &EquipmentHandler{
		listing:    listing,
		reviews:    reviews,
		aggregates: aggregates,
		items:      items,
		locks:      locks,
		validator:  validator,
		log:        log,
	}
}

// RegisterRoutes wires the equipment routes onto the mux
func (h *EquipmentHandler) RegisterRoutes(mux *http.ServeMux, am *AuthMiddleware, createThrottle *Throttle) {
	optional := func(fn http.HandlerFunc) http.Handler { return am.Optional(fn) }
	required := func(fn http.HandlerFunc) http.Handler { return am.Required(fn) }

	mux.Handle("GET /api/v1/equipment/{type}", optional(h.list))
	mux.Handle("POST /api/v1/equipment/{type}", am.Required(createThrottle.Middleware(http.HandlerFunc(h.create))))
	mux.Handle("GET /api/v1/equipment/{type}/recently-used", required(h.recentlyUsed))
	mux.Handle("GET /api/v1/equipment/{type}/find-similar-in-brand", optional(h.findSimilarInBrand))
	mux.Handle("GET /api/v1/equipment/{type}/others-in-brand", optional(h.othersInBrand))
	mux.Handle("GET /api/v1/equipment/{type}/{id}", optional(h.retrieve))
	mux.Handle("GET /api/v1/equipment/{type}/{id}/variants", optional(h.variants))

	mux.Handle("POST /api/v1/equipment/{type}/{id}/acquire-reviewer-lock", required(h.lockAction(models.LockSlotReviewer, true)))
	mux.Handle("POST /api/v1/equipment/{type}/{id}/release-reviewer-lock", required(h.lockAction(models.LockSlotReviewer, false)))
	mux.Handle("POST /api/v1/equipment/{type}/{id}/acquire-edit-proposal-lock", required(h.lockAction(models.LockSlotEditProposal, true)))
	mux.Handle("POST /api/v1/equipment/{type}/{id}/release-edit-proposal-lock", required(h.lockAction(models.LockSlotEditProposal, false)))

	mux.Handle("POST /api/v1/equipment/{type}/{id}/approve", required(h.approve))
	mux.Handle("POST /api/v1/equipment/{type}/{id}/unapprove", required(h.unapprove))
	mux.Handle("POST /api/v1/equipment/{type}/{id}/reject", required(h.reject))

	mux.Handle("GET /api/v1/equipment/{type}/{id}/users", optional(h.users))
	mux.Handle("GET /api/v1/equipment/{type}/{id}/images", optional(h.images))
	mux.Handle("GET /api/v1/equipment/{type}/{id}/most-often-used-with", optional(h.mostOftenUsedWith))
}

func pathItemType(r *http.Request) (models.ItemType, error) {
	return models.ParseItemType(r.PathValue("type"))
}

func pathItemID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(r.PathValue("id"), 10, 64)
}

func currentUser(r *http.Request) *auth.UserContext {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		return nil
	}
	return user
}

func (h *EquipmentHandler) list(w http.ResponseWriter, r *http.Request) {
	klass, err := pathItemType(r)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	params := service.ListParams{
		Klass:           klass,
		Query:           q.Get("q"),
		Sort:            q.Get("sort"),
		IncludeVariants: q.Get("include-variants") == "true",
		EditProposals:   q.Get("edit-proposals") == "true",
		Page:            page,
		PageSize:        pageSize,
	}

	result, err := h.listing.List(r.Context(), currentUser(r), params)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, listResponse{
		Results:  toItemResponses(result.Items),
		Page:     result.Page,
		PageSize: result.PageSize,
		HasMore:  result.HasMore,
	})
}

type createRequest struct {
	Name                 string  `json:"name" validate:"required,max=256"`
	BrandID              *uint64 `json:"brand_id"`
	VariantOfID          *uint64 `json:"variant_of_id"`
	EditProposalTargetID *uint64 `json:"edit_proposal_target_id"`
}

func (h *EquipmentHandler) create(w http.ResponseWriter, r *http.Request) {
	klass, err := pathItemType(r)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	var req createRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	item, err := h.items.Create(r.Context(), service.CreateParams{
		Klass:                klass,
		Name:                 req.Name,
		BrandID:              req.BrandID,
		VariantOfID:          req.VariantOfID,
		EditProposalTargetID: req.EditProposalTargetID,
	}, currentUser(r))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, toItemResponse(item))
}

func (h *EquipmentHandler) retrieve(w http.ResponseWriter, r *http.Request) {
	klass, err := pathItemType(r)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	id, err := pathItemID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid item id")
		return
	}

	item, err := h.listing.Retrieve(r.Context(), klass, id, currentUser(r))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponse(item))
}

func (h *EquipmentHandler) variants(w http.ResponseWriter, r *http.Request) {
	klass, err := pathItemType(r)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	id, err := pathItemID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid item id")
		return
	}

	items, err := h.listing.Variants(r.Context(), klass, id, currentUser(r))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponses(items))
}

func (h *EquipmentHandler) recentlyUsed(w http.ResponseWriter, r *http.Request) {
	klass, err := pathItemType(r)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	items, err := h.listing.RecentlyUsed(r.Context(), klass, r.URL.Query().Get("usage-type"), currentUser(r))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponses(items))
}

func (h *EquipmentHandler) findSimilarInBrand(w http.ResponseWriter, r *http.Request) {
	klass, err := pathItemType(r)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	q := r.URL.Query()
	brandID, err := strconv.ParseUint(q.Get("brand"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "A brand id is required")
		return
	}

	items, err := h.listing.FindSimilarInBrand(r.Context(), klass, brandID, q.Get("q"), currentUser(r))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponses(items))
}

func (h *EquipmentHandler) othersInBrand(w http.ResponseWriter, r *http.Request) {
	klass, err := pathItemType(r)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	q := r.URL.Query()
	brandID, err := strconv.ParseUint(q.Get("brand"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "A brand id is required")
		return
	}

	items, err := h.listing.OthersInBrand(r.Context(), klass, brandID, q.Get("name"), currentUser(r))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponses(items))
}

func (h *EquipmentHandler) lockAction(slot models.LockSlot, acquire bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathItemID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid item id")
			return
		}
		if _, err := pathItemType(r); err != nil {
			writeServiceError(w, h.log, err)
			return
		}

		user := currentUser(r)
		if acquire {
			err = h.locks.Acquire(r.Context(), slot, id, user)
		} else {
			err = h.locks.Release(r.Context(), slot, id, user)
		}
		if err != nil {
			writeServiceError(w, h.log, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

type approveRequest struct {
	Comment *string `json:"comment" validate:"omitempty,max=4096"`
}

func (h *EquipmentHandler) approve(w http.ResponseWriter, r *http.Request) {
	klass, id, ok := h.reviewTarget(w, r)
	if !ok {
		return
	}

	req := approveRequest{}
	if r.ContentLength > 0 && !h.decodeAndValidate(w, r, &req) {
		return
	}

	item, err := h.reviews.Approve(r.Context(), klass, id, currentUser(r), req.Comment)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponse(item))
}

func (h *EquipmentHandler) unapprove(w http.ResponseWriter, r *http.Request) {
	klass, id, ok := h.reviewTarget(w, r)
	if !ok {
		return
	}

	item, err := h.reviews.Unapprove(r.Context(), klass, id, currentUser(r))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponse(item))
}

type rejectRequest struct {
	Reason               string  `json:"reason" validate:"required,rejection_reason"`
	Comment              *string `json:"comment" validate:"omitempty,max=4096"`
	DuplicateOf          *uint64 `json:"duplicate_of"`
	DuplicateOfKlass     *string `json:"duplicate_of_klass" validate:"omitempty,equipment_type"`
	DuplicateOfUsageType *string `json:"duplicate_of_usage_type" validate:"omitempty,usage_type"`
}

func (h *EquipmentHandler) reject(w http.ResponseWriter, r *http.Request) {
	klass, id, ok := h.reviewTarget(w, r)
	if !ok {
		return
	}

	var req rejectRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	params := service.RejectParams{
		Reason:               req.Reason,
		Comment:              req.Comment,
		DuplicateOf:          req.DuplicateOf,
		DuplicateOfUsageType: req.DuplicateOfUsageType,
	}
	if req.DuplicateOfKlass != nil {
		dk := models.ItemType(*req.DuplicateOfKlass)
		params.DuplicateOfKlass = &dk
	}

	item, err := h.reviews.Reject(r.Context(), klass, id, currentUser(r), params)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponse(item))
}

func (h *EquipmentHandler) users(w http.ResponseWriter, r *http.Request) {
	klass, id, ok := h.reviewTarget(w, r)
	if !ok {
		return
	}

	payload, err := h.aggregates.GetUsers(r.Context(), klass, id)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeRawJSON(w, http.StatusOK, payload)
}

func (h *EquipmentHandler) images(w http.ResponseWriter, r *http.Request) {
	klass, id, ok := h.reviewTarget(w, r)
	if !ok {
		return
	}

	payload, err := h.aggregates.GetImages(r.Context(), klass, id)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeRawJSON(w, http.StatusOK, payload)
}

func (h *EquipmentHandler) mostOftenUsedWith(w http.ResponseWriter, r *http.Request) {
	klass, id, ok := h.reviewTarget(w, r)
	if !ok {
		return
	}

	fullAccess := false
	if user := currentUser(r); user != nil {
		fullAccess = user.FullSearchAccess
	}

	payload, err := h.aggregates.GetMostOftenUsedWith(r.Context(), klass, id, fullAccess)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeRawJSON(w, http.StatusOK, payload)
}

func (h *EquipmentHandler) reviewTarget(w http.ResponseWriter, r *http.Request) (models.ItemType, uint64, bool) {
	klass, err := pathItemType(r)
	if err != nil {
		writeServiceError(w, h.log, err)
		return "", 0, false
	}
	id, err := pathItemID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid item id")
		return "", 0, false
	}
	return klass, id, true
}

// decodeAndValidate parses the JSON body and applies the domain validation
// rules, writing the error response itself on failure
func (h *EquipmentHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}

	if err := h.validator.Validate(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			helpers.WriteValidationErrorResponse(w, validationErrors)
		} else {
			writeError(w, http.StatusBadRequest, "Invalid request")
		}
		return false
	}
	return true
}
