package enums

import "fmt"

// PeriodType maps to the period_type_enum enum in Postgres and scopes
// leaderboard snapshots.
type PeriodType string

const (
	PeriodDaily   PeriodType = "daily"
	PeriodWeekly  PeriodType = "weekly"
	PeriodMonthly PeriodType = "monthly"
	PeriodAllTime PeriodType = "all_time"
)

var validPeriodTypes = []PeriodType{
	PeriodDaily,
	PeriodWeekly,
	PeriodMonthly,
	PeriodAllTime,
}

// IsValid reports whether the value matches the canonical period enum.
func (p PeriodType) IsValid() bool {
	for _, candidate := range validPeriodTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// Partition returns the ranking partition a snapshot of this period reads.
func (p PeriodType) Partition() PartitionKind {
	switch p {
	case PeriodWeekly:
		return PartitionWeekly
	case PeriodMonthly:
		return PartitionMonthly
	default:
		return PartitionGlobal
	}
}

func (p PeriodType) String() string {
	return string(p)
}

// ParsePeriodType converts raw input into PeriodType.
func ParsePeriodType(value string) (PeriodType, error) {
	for _, candidate := range validPeriodTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid period type %q", value)
}
