package ranking

import (
	"sort"

	"github.com/trailmarks/gamification-backend/pkg/db/models"
)

// draft pairs a staged cache entry with the period counters the weekly and
// monthly orderings need but the entry row does not persist.
type draft struct {
	entry         models.RankingCacheEntry
	totalPoints   int64
	weeklyPoints  int64
	monthlyPoints int64
}

// assignRanks orders every partition and writes dense 1..N ranks plus the
// global percentile back onto the drafts. Each partition has a total order:
// ties break on the stable secondary keys so two runs over identical stats
// produce identical assignments.
func assignRanks(drafts []*draft) {
	n := len(drafts)
	if n == 0 {
		return
	}

	byScore := func(a, b *draft) bool {
		if a.entry.CompositeScore != b.entry.CompositeScore {
			return a.entry.CompositeScore > b.entry.CompositeScore
		}
		return a.entry.UserID.String() < b.entry.UserID.String()
	}

	// Global: score desc, user id asc.
	ordered := make([]*draft, n)
	copy(ordered, drafts)
	sort.Slice(ordered, func(i, j int) bool { return byScore(ordered[i], ordered[j]) })
	for i, d := range ordered {
		rank := int64(i + 1)
		d.entry.GlobalRank = rank
		d.entry.GlobalPercentile = 100 * (1 - float64(rank-1)/float64(n))
	}

	// Weekly and monthly: period points desc, then total points desc, then
	// user id asc.
	sortPeriod := func(points func(*draft) int64, assign func(*draft, int64)) {
		copy(ordered, drafts)
		sort.Slice(ordered, func(i, j int) bool {
			a, b := ordered[i], ordered[j]
			if points(a) != points(b) {
				return points(a) > points(b)
			}
			if a.totalPoints != b.totalPoints {
				return a.totalPoints > b.totalPoints
			}
			return a.entry.UserID.String() < b.entry.UserID.String()
		})
		for i, d := range ordered {
			assign(d, int64(i+1))
		}
	}
	sortPeriod(func(d *draft) int64 { return d.weeklyPoints }, func(d *draft, r int64) { d.entry.WeeklyRank = r })
	sortPeriod(func(d *draft) int64 { return d.monthlyPoints }, func(d *draft, r int64) { d.entry.MonthlyRank = r })

	// Regional and level-group: rank within each bucket, score desc.
	rankBuckets(drafts, byScore,
		func(d *draft) string { return d.entry.RegionBucket },
		func(d *draft, r int64) { d.entry.RegionalRank = r })
	rankBuckets(drafts, byScore,
		func(d *draft) string { return d.entry.LevelGroup },
		func(d *draft, r int64) { d.entry.LevelGroupRank = r })
}

func rankBuckets(drafts []*draft, less func(a, b *draft) bool, key func(*draft) string, assign func(*draft, int64)) {
	buckets := map[string][]*draft{}
	for _, d := range drafts {
		k := key(d)
		buckets[k] = append(buckets[k], d)
	}
	for _, members := range buckets {
		sort.Slice(members, func(i, j int) bool { return less(members[i], members[j]) })
		for i, d := range members {
			assign(d, int64(i+1))
		}
	}
}
