package constants

import "time"

// Role names as assigned by the platform auth service
const (
	RoleEquipmentModerator   = "equipment_moderators"
	RoleOwnEquipmentMigrator = "own_equipment_migrators"
)

const (
	// AggregateCacheTTL is how long search-derived aggregates stay cached
	AggregateCacheTTL = 12 * time.Hour

	// ListingFuzzyDistanceThreshold is the max trigram distance for listing search
	ListingFuzzyDistanceThreshold = 0.8

	// BrandFuzzyDistanceThreshold is the max trigram distance for similar-in-brand search
	BrandFuzzyDistanceThreshold = 0.7

	// SimilarInBrandLimit caps similar-in-brand results
	SimilarInBrandLimit = 10

	// RecentlyUsedLimit is when to stop collecting recently used items
	RecentlyUsedLimit = 5

	// DefaultPageSize is the listing page size
	DefaultPageSize = 50

	// CreateThrottleRequests / CreateThrottlePeriod rate-limit item creation per user
	CreateThrottleRequests = 10
	CreateThrottlePeriod   = time.Minute
)

// ConflictMessage is returned when a lock is held by someone else
const ConflictMessage = "Someone else is working on this item right now. Please try again later."
