package enums

import "fmt"

// PartitionKind identifies one independently ranked grouping of users.
type PartitionKind string

const (
	PartitionGlobal     PartitionKind = "global"
	PartitionWeekly     PartitionKind = "weekly"
	PartitionMonthly    PartitionKind = "monthly"
	PartitionRegional   PartitionKind = "regional"
	PartitionLevelGroup PartitionKind = "level_group"
)

var validPartitionKinds = []PartitionKind{
	PartitionGlobal,
	PartitionWeekly,
	PartitionMonthly,
	PartitionRegional,
	PartitionLevelGroup,
}

// IsValid reports whether the value matches the canonical partition enum.
func (p PartitionKind) IsValid() bool {
	for _, candidate := range validPartitionKinds {
		if candidate == p {
			return true
		}
	}
	return false
}

// RequiresKey reports whether the partition is keyed (regional, level-group).
func (p PartitionKind) RequiresKey() bool {
	return p == PartitionRegional || p == PartitionLevelGroup
}

func (p PartitionKind) String() string {
	return string(p)
}

// ParsePartitionKind converts raw input into PartitionKind.
func ParsePartitionKind(value string) (PartitionKind, error) {
	for _, candidate := range validPartitionKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid partition kind %q", value)
}
