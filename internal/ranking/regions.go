package ranking

import "github.com/trailmarks/gamification-backend/pkg/db/models"

const (
	// RegionUnknown is assigned when a user has no geotagged activity.
	RegionUnknown = "unknown"
	// RegionGlobal is assigned when coordinates fall outside every
	// configured region.
	RegionGlobal = "global"
)

// RegionIndex answers point-in-region lookups against the configured region
// list. Regions are checked in code order; the first containing box wins.
type RegionIndex struct {
	regions []models.Region
}

// NewRegionIndex builds an index over the configured regions.
func NewRegionIndex(regions []models.Region) *RegionIndex {
	return &RegionIndex{regions: regions}
}

// Lookup buckets the coordinates. Nil coordinates mean the user never logged
// a geotagged activity.
func (idx *RegionIndex) Lookup(lat, lng *float64) string {
	if lat == nil || lng == nil {
		return RegionUnknown
	}
	for _, region := range idx.regions {
		if *lat >= region.MinLat && *lat <= region.MaxLat &&
			*lng >= region.MinLng && *lng <= region.MaxLng {
			return region.Code
		}
	}
	return RegionGlobal
}
