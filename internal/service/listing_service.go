package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"astroshare/equipment-service/internal/constants"
	"astroshare/equipment-service/internal/models"
	"astroshare/equipment-service/internal/repository"
	"astroshare/equipment-service/pkg/auth"
	"astroshare/equipment-service/pkg/logger"
)

type listingItemStore interface {
	FindByID(ctx context.Context, klass models.ItemType, id uint64) (*models.EquipmentItem, error)
	FindByIDs(ctx context.Context, klass models.ItemType, ids []uint64) ([]*models.EquipmentItem, error)
	List(ctx context.Context, f repository.ListFilter) ([]*models.EquipmentItem, error)
	ListByBrand(ctx context.Context, klass models.ItemType, brandID uint64, userID *uint64, excludeVariants, editProposals bool) ([]*models.EquipmentItem, error)
	SearchCandidates(ctx context.Context, klass models.ItemType, vis repository.Visibility, q string, excludeVariants, editProposals bool) ([]repository.CandidateRow, error)
	ListVariants(ctx context.Context, itemID uint64) ([]*models.EquipmentItem, error)
	ListOthersInBrand(ctx context.Context, klass models.ItemType, brandID uint64, excludeName string) ([]*models.EquipmentItem, error)
	RecentlyUsedItemIDs(ctx context.Context, klass models.ItemType, userID uint64, usageProperty string, limit int) ([]uint64, error)
}

type brandStore interface {
	FindByName(ctx context.Context, name string) (*models.EquipmentBrand, error)
}

// ListingService serves the item listings: sorted browsing, fuzzy name
// search with the exact-brand short circuit, variants, and the
// recently-used feed.
type ListingService struct {
	items  listingItemStore
	brands brandStore
	log    *logger.Logger
}

func NewListingService(items listingItemStore, brands brandStore, log *logger.Logger) *ListingService {
	return &ListingService{items: items, brands: brands, log: log}
}

// ListParams drives the main listing endpoint
type ListParams struct {
	Klass           models.ItemType
	Query           string
	Sort            string
	IncludeVariants bool
	EditProposals   bool
	Page            int
	PageSize        int
}

// ListResult is one page of a listing. When the exact-brand short circuit
// fires, PageSize equals the full result count and HasMore is false.
type ListResult struct {
	Items    []*models.EquipmentItem
	Page     int
	PageSize int
	HasMore  bool
}

func visibilityFor(user *auth.UserContext) repository.Visibility {
	vis := repository.Visibility{}
	if user != nil {
		vis.Moderator = user.HasRole(constants.RoleEquipmentModerator)
		uid := user.UserID
		vis.UserID = &uid
	}
	return vis
}

// List returns a page of items. With a query it runs the search path:
// an exact brand name match short-circuits to every item of that brand,
// otherwise candidates are ranked by trigram distance to the query.
func (s *ListingService) List(ctx context.Context, user *auth.UserContext, p ListParams) (*ListResult, error) {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 || p.PageSize > constants.DefaultPageSize {
		p.PageSize = constants.DefaultPageSize
	}

	if q := strings.TrimSpace(p.Query); q != "" {
		return s.search(ctx, user, p, q)
	}

	filter := repository.ListFilter{
		Klass:           p.Klass,
		Visibility:      visibilityFor(user),
		Sort:            p.Sort,
		ExcludeVariants: !p.IncludeVariants,
		EditProposals:   p.EditProposals,
		Limit:           p.PageSize + 1,
		Offset:          (p.Page - 1) * p.PageSize,
	}

	items, err := s.items.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	hasMore := len(items) > p.PageSize
	if hasMore {
		items = items[:p.PageSize]
	}
	return &ListResult{Items: items, Page: p.Page, PageSize: p.PageSize, HasMore: hasMore}, nil
}

func (s *ListingService) search(ctx context.Context, user *auth.UserContext, p ListParams, q string) (*ListResult, error) {
	var userID *uint64
	if user != nil {
		uid := user.UserID
		userID = &uid
	}

	// A query that names a brand exactly returns that brand's full
	// lineup in a single page, ignoring the requested page size.
	brand, err := s.brands.FindByName(ctx, q)
	if err != nil && !errors.Is(err, repository.ErrBrandNotFound) {
		return nil, err
	}
	if brand != nil {
		items, err := s.items.ListByBrand(ctx, p.Klass, brand.ID, userID, !p.IncludeVariants, p.EditProposals)
		if err != nil {
			return nil, err
		}
		// An empty lineup falls through to the fuzzy path so that a
		// brand name with no items of this klass still finds matches.
		if len(items) > 0 {
			return &ListResult{Items: items, Page: 1, PageSize: len(items), HasMore: false}, nil
		}
	}

	candidates, err := s.items.SearchCandidates(ctx, p.Klass, visibilityFor(user), q, !p.IncludeVariants, p.EditProposals)
	if err != nil {
		return nil, err
	}

	matches := rankCandidates(candidates, q, constants.ListingFuzzyDistanceThreshold)

	start := (p.Page - 1) * p.PageSize
	if start >= len(matches) {
		return &ListResult{Items: []*models.EquipmentItem{}, Page: p.Page, PageSize: p.PageSize, HasMore: false}, nil
	}
	end := start + p.PageSize
	hasMore := end < len(matches)
	if end > len(matches) {
		end = len(matches)
	}
	return &ListResult{Items: matches[start:end], Page: p.Page, PageSize: p.PageSize, HasMore: hasMore}, nil
}

type rankedItem struct {
	item     *models.EquipmentItem
	distance float64
}

func lowerBrandName(item *models.EquipmentItem) string {
	if item.BrandName == nil {
		return ""
	}
	return strings.ToLower(*item.BrandName)
}

// rankCandidates keeps candidates within maxDistance of the query, or whose
// full name contains it, or that matched through a variant name. Results
// are ordered by distance, then brand, then name.
func rankCandidates(candidates []repository.CandidateRow, q string, maxDistance float64) []*models.EquipmentItem {
	lowerQ := strings.ToLower(q)
	seen := map[uint64]bool{}
	ranked := make([]rankedItem, 0, len(candidates))

	for _, c := range candidates {
		if seen[c.Item.ID] {
			continue
		}
		d := TrigramDistance(c.Item.FullName(), q)
		substring := strings.Contains(strings.ToLower(c.Item.FullName()), lowerQ)
		if d > maxDistance && !substring && !c.VariantNameMatch {
			continue
		}
		seen[c.Item.ID] = true
		ranked = append(ranked, rankedItem{item: c.Item, distance: d})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].distance != ranked[j].distance {
			return ranked[i].distance < ranked[j].distance
		}
		bi, bj := lowerBrandName(ranked[i].item), lowerBrandName(ranked[j].item)
		if bi != bj {
			return bi < bj
		}
		return strings.ToLower(ranked[i].item.Name) < strings.ToLower(ranked[j].item.Name)
	})

	items := make([]*models.EquipmentItem, len(ranked))
	for i, r := range ranked {
		items[i] = r.item
	}
	return items
}

// Retrieve loads one item under the same visibility rule as the sorted
// listing: moderators see everything, others see branded items plus their own
func (s *ListingService) Retrieve(ctx context.Context, klass models.ItemType, id uint64, user *auth.UserContext) (*models.EquipmentItem, error) {
	item, err := s.loadItem(ctx, klass, id)
	if err != nil {
		return nil, err
	}

	vis := visibilityFor(user)
	if vis.Moderator || item.BrandID != nil || ownedBy(item, vis.UserID) {
		return item, nil
	}
	return nil, ErrNotFound
}

// Variants lists the variants of an item visible to the caller
func (s *ListingService) Variants(ctx context.Context, klass models.ItemType, id uint64, user *auth.UserContext) ([]*models.EquipmentItem, error) {
	if _, err := s.loadItem(ctx, klass, id); err != nil {
		return nil, err
	}

	variants, err := s.items.ListVariants(ctx, id)
	if err != nil {
		return nil, err
	}
	return filterVisible(variants, user), nil
}

// OthersInBrand lists a brand's items except the one named, for the
// duplicate checks in the item editor
func (s *ListingService) OthersInBrand(ctx context.Context, klass models.ItemType, brandID uint64, excludeName string, user *auth.UserContext) ([]*models.EquipmentItem, error) {
	others, err := s.items.ListOthersInBrand(ctx, klass, brandID, excludeName)
	if err != nil {
		return nil, err
	}
	return filterVisible(others, user), nil
}

// FindSimilarInBrand returns up to SimilarInBrandLimit items of the brand
// whose names are close to q, excluding an exact name match
func (s *ListingService) FindSimilarInBrand(ctx context.Context, klass models.ItemType, brandID uint64, q string, user *auth.UserContext) ([]*models.EquipmentItem, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []*models.EquipmentItem{}, nil
	}

	var userID *uint64
	if user != nil {
		uid := user.UserID
		userID = &uid
	}

	items, err := s.items.ListByBrand(ctx, klass, brandID, userID, false, false)
	if err != nil {
		return nil, err
	}

	lowerQ := strings.ToLower(q)
	ranked := make([]rankedItem, 0, len(items))
	for _, item := range items {
		if strings.ToLower(item.Name) == lowerQ {
			continue
		}
		d := TrigramDistance(item.Name, q)
		substring := strings.Contains(strings.ToLower(item.Name), lowerQ)
		if d > constants.BrandFuzzyDistanceThreshold && !substring {
			continue
		}
		ranked = append(ranked, rankedItem{item: item, distance: d})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].distance < ranked[j].distance
	})
	if len(ranked) > constants.SimilarInBrandLimit {
		ranked = ranked[:constants.SimilarInBrandLimit]
	}

	result := make([]*models.EquipmentItem, len(ranked))
	for i, r := range ranked {
		result[i] = r.item
	}
	return result, nil
}

// RecentlyUsed returns the caller's most recently used items of a type,
// newest first. Sensors are not directly attached to images and are
// rejected with ErrUnsupportedItemType.
func (s *ListingService) RecentlyUsed(ctx context.Context, klass models.ItemType, usageType string, user *auth.UserContext) ([]*models.EquipmentItem, error) {
	if user == nil {
		return nil, ErrForbidden
	}

	usageProperty, err := klass.UsageProperty(usageType)
	if err != nil {
		return nil, err
	}

	ids, err := s.items.RecentlyUsedItemIDs(ctx, klass, user.UserID, usageProperty, constants.RecentlyUsedLimit)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*models.EquipmentItem{}, nil
	}

	items, err := s.items.FindByIDs(ctx, klass, ids)
	if err != nil {
		return nil, err
	}

	// preserve recency order
	byID := make(map[uint64]*models.EquipmentItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	ordered := make([]*models.EquipmentItem, 0, len(ids))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			ordered = append(ordered, item)
		}
	}
	return ordered, nil
}

func (s *ListingService) loadItem(ctx context.Context, klass models.ItemType, id uint64) (*models.EquipmentItem, error) {
	item, err := s.items.FindByID(ctx, klass, id)
	if errors.Is(err, repository.ErrItemNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load item %d: %w", id, err)
	}
	return item, nil
}

// filterVisible drops unapproved items the caller may not see
func filterVisible(items []*models.EquipmentItem, user *auth.UserContext) []*models.EquipmentItem {
	vis := visibilityFor(user)
	if vis.Moderator {
		return items
	}

	visible := []*models.EquipmentItem{}
	for _, item := range items {
		if item.IsApproved() || item.IsPending() && ownedBy(item, vis.UserID) {
			visible = append(visible, item)
		}
		// rejected items stay hidden outside moderation
	}
	return visible
}

func ownedBy(item *models.EquipmentItem, userID *uint64) bool {
	return userID != nil && item.CreatedByID != nil && *item.CreatedByID == *userID
}
