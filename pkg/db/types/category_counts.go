package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/trailmarks/gamification-backend/pkg/enums"
)

// CategoryCounts stores per-category activity counters as a jsonb column.
type CategoryCounts map[enums.PointCategory]int64

func (c *CategoryCounts) Scan(src any) error {
	if src == nil {
		*c = CategoryCounts{}
		return nil
	}

	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("CategoryCounts: unsupported Scan type %T", src)
	}

	if len(raw) == 0 {
		*c = CategoryCounts{}
		return nil
	}

	out := map[enums.PointCategory]int64{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("CategoryCounts: decode: %w", err)
	}
	*c = out
	return nil
}

func (c CategoryCounts) Value() (driver.Value, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("CategoryCounts: encode: %w", err)
	}
	return raw, nil
}

// Distinct counts the categories with at least one recorded activity.
func (c CategoryCounts) Distinct() int {
	distinct := 0
	for _, count := range c {
		if count > 0 {
			distinct++
		}
	}
	return distinct
}

// Total sums every category counter.
func (c CategoryCounts) Total() int64 {
	var total int64
	for _, count := range c {
		total += count
	}
	return total
}
