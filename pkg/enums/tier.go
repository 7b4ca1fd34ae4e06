package enums

// Tier names the experience band a user's level falls in.
type Tier string

const (
	TierBeginner     Tier = "beginner"
	TierNovice       Tier = "novice"
	TierIntermediate Tier = "intermediate"
	TierAdvanced     Tier = "advanced"
	TierExpert       Tier = "expert"
	TierMaster       Tier = "master"
	TierLegend       Tier = "legend"
)

func (t Tier) String() string {
	return string(t)
}
