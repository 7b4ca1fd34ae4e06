package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/trailmarks/gamification-backend/pkg/db/models"
	"github.com/trailmarks/gamification-backend/pkg/enums"
)

type fakeSnapshotCreator struct {
	calls  int
	period enums.PeriodType
	start  time.Time
	end    time.Time
}

func (f *fakeSnapshotCreator) Create(ctx context.Context, period enums.PeriodType, start, end time.Time) (*models.LeaderboardSnapshot, error) {
	f.calls++
	f.period = period
	f.start = start
	f.end = end
	return &models.LeaderboardSnapshot{ID: uuid.New(), PeriodType: period}, nil
}

func newSnapshotJob(t *testing.T, creator *fakeSnapshotCreator, marker *fakeMarker, period enums.PeriodType) *snapshotJob {
	t.Helper()
	jobIface, err := NewSnapshotJob(SnapshotJobParams{
		Logger:    testLogger(),
		Snapshots: creator,
		Marker:    marker,
		Period:    period,
	})
	if err != nil {
		t.Fatalf("NewSnapshotJob: %v", err)
	}
	return jobIface.(*snapshotJob)
}

func TestSnapshotJobWeeklyBounds(t *testing.T) {
	creator := &fakeSnapshotCreator{}
	job := newSnapshotJob(t, creator, &fakeMarker{}, enums.PeriodWeekly)
	// A Thursday; the containing week opens Monday 2026-03-02.
	job.now = func() time.Time { return time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC) }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	wantStart := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if !creator.start.Equal(wantStart) {
		t.Fatalf("period start = %s, want %s", creator.start, wantStart)
	}
	if !creator.end.Equal(wantStart.AddDate(0, 0, 7)) {
		t.Fatalf("period end = %s", creator.end)
	}
}

func TestSnapshotJobRunsOncePerPeriod(t *testing.T) {
	creator := &fakeSnapshotCreator{}
	marker := &fakeMarker{}
	job := newSnapshotJob(t, creator, marker, enums.PeriodDaily)
	job.now = func() time.Time { return time.Date(2026, 3, 5, 1, 0, 0, 0, time.UTC) }

	for i := 0; i < 3; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
	}
	if creator.calls != 1 {
		t.Fatalf("snapshot created %d times within one day, want 1", creator.calls)
	}

	// The next day gets its own run.
	job.now = func() time.Time { return time.Date(2026, 3, 6, 1, 0, 0, 0, time.UTC) }
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run next day: %v", err)
	}
	if creator.calls != 2 {
		t.Fatalf("snapshot calls = %d, want 2", creator.calls)
	}
}

func TestSnapshotJobMonthlyBounds(t *testing.T) {
	creator := &fakeSnapshotCreator{}
	job := newSnapshotJob(t, creator, &fakeMarker{}, enums.PeriodMonthly)
	job.now = func() time.Time { return time.Date(2026, 2, 17, 9, 0, 0, 0, time.UTC) }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	wantStart := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	if !creator.start.Equal(wantStart) || !creator.end.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("bounds = [%s, %s]", creator.start, creator.end)
	}
}
