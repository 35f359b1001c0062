package auction

import (
	"testing"
	"time"

	"github.com/spotlightworks/spotlight/spotlight/config"
	"github.com/spotlightworks/spotlight/spotlight/database/models"
)

func TestAnchorFor(t *testing.T) {
	tests := []struct {
		name    string
		now     time.Time
		weekday time.Weekday
		hour    int
		want    time.Time
	}{
		{
			name:    "before this week's anchor",
			now:     time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), // Monday
			weekday: time.Friday,
			hour:    18,
			want:    time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC),
		},
		{
			name:    "while the run is underway",
			now:     time.Date(2025, 3, 14, 18, 40, 0, 0, time.UTC),
			weekday: time.Friday,
			hour:    18,
			want:    time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC),
		},
		{
			name:    "after all windows have elapsed",
			now:     time.Date(2025, 3, 14, 20, 0, 0, 0, time.UTC),
			weekday: time.Friday,
			hour:    18,
			want:    time.Date(2025, 3, 21, 18, 0, 0, 0, time.UTC),
		},
		{
			name:    "anchor weekday already past this week",
			now:     time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC), // Wednesday
			weekday: time.Monday,
			hour:    18,
			want:    time.Date(2025, 3, 17, 18, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := anchorFor(tt.now, tt.weekday, tt.hour)
			if !got.Equal(tt.want) {
				t.Errorf("anchorFor(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestBuildAuction(t *testing.T) {
	anchor := time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)
	a := buildAuction(anchor)

	if a.Status != models.AuctionStatusScheduled {
		t.Errorf("status = %s, want %s", a.Status, models.AuctionStatusScheduled)
	}
	if len(a.Positions) != config.PositionsPerAuction {
		t.Fatalf("position count = %d, want %d", len(a.Positions), config.PositionsPerAuction)
	}
	if !a.StartTime.Equal(anchor) {
		t.Errorf("start = %v, want %v", a.StartTime, anchor)
	}
	wantEnd := anchor.Add(config.PositionsPerAuction * config.PositionWindow)
	if !a.EndTime.Equal(wantEnd) {
		t.Errorf("end = %v, want %v", a.EndTime, wantEnd)
	}

	// Windows must tile the run: contiguous, non-overlapping, in order.
	for i, pos := range a.Positions {
		if pos.Position != i+1 {
			t.Errorf("positions[%d].Position = %d, want %d", i, pos.Position, i+1)
		}
		wantStart := anchor.Add(time.Duration(i) * config.PositionWindow)
		if !pos.StartTime.Equal(wantStart) {
			t.Errorf("positions[%d] start = %v, want %v", i, pos.StartTime, wantStart)
		}
		if got := pos.EndTime.Sub(pos.StartTime); got != config.PositionWindow {
			t.Errorf("positions[%d] window = %v, want %v", i, got, config.PositionWindow)
		}
		if i > 0 && !pos.StartTime.Equal(a.Positions[i-1].EndTime) {
			t.Errorf("positions[%d] does not start where positions[%d] ends", i, i-1)
		}
		if pos.Status != models.PositionStatusPending {
			t.Errorf("positions[%d] status = %s, want %s", i, pos.Status, models.PositionStatusPending)
		}
	}
}
