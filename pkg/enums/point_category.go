package enums

import "fmt"

// PointCategory maps to the point_category_enum enum in Postgres. Each value
// names one activity stream the content subsystem can award points for.
type PointCategory string

const (
	CategoryContentCreated     PointCategory = "content_created"
	CategoryMediaUploaded      PointCategory = "media_uploaded"
	CategoryChallengeCompleted PointCategory = "challenge_completed"
	CategoryBadgeAwarded       PointCategory = "badge_awarded"
	CategoryLocationDiscovered PointCategory = "location_discovered"
	CategoryContentShared      PointCategory = "content_shared"
	CategoryLikeReceived       PointCategory = "like_received"
	CategoryCommentReceived    PointCategory = "comment_received"
)

var validPointCategories = []PointCategory{
	CategoryContentCreated,
	CategoryMediaUploaded,
	CategoryChallengeCompleted,
	CategoryBadgeAwarded,
	CategoryLocationDiscovered,
	CategoryContentShared,
	CategoryLikeReceived,
	CategoryCommentReceived,
}

// PointCategories returns every canonical category in declaration order.
func PointCategories() []PointCategory {
	out := make([]PointCategory, len(validPointCategories))
	copy(out, validPointCategories)
	return out
}

// PointCategoryCount is the catalog size used by the diversity bonus.
func PointCategoryCount() int {
	return len(validPointCategories)
}

// IsValid reports whether the value matches the canonical category enum.
func (c PointCategory) IsValid() bool {
	for _, candidate := range validPointCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

func (c PointCategory) String() string {
	return string(c)
}

// ParsePointCategory converts raw input into PointCategory.
func ParsePointCategory(value string) (PointCategory, error) {
	for _, candidate := range validPointCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid point category %q", value)
}
