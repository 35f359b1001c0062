package auction

import (
	"time"

	"github.com/spotlightworks/spotlight/spotlight/config"
	"github.com/spotlightworks/spotlight/spotlight/database/models"
)

// anchorFor computes the weekly anchor governing the current auction: the
// configured weekday/hour occurrence in the running week while its seven
// position windows have not all elapsed, otherwise the next occurrence.
func anchorFor(now time.Time, weekday time.Weekday, hour int) time.Time {
	base := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	anchor := base.AddDate(0, 0, int(weekday)-int(now.Weekday()))

	runEnd := anchor.Add(config.PositionsPerAuction * config.PositionWindow)
	if !now.Before(runEnd) {
		anchor = anchor.AddDate(0, 0, 7)
	}
	return anchor
}

// buildAuction lays out a weekly auction with seven contiguous,
// non-overlapping position windows starting at the anchor.
func buildAuction(anchor time.Time) *models.Auction {
	auction := &models.Auction{
		AnchorTime: anchor,
		StartTime:  anchor,
		EndTime:    anchor.Add(config.PositionsPerAuction * config.PositionWindow),
		Status:     models.AuctionStatusScheduled,
	}

	for i := 0; i < config.PositionsPerAuction; i++ {
		start := anchor.Add(time.Duration(i) * config.PositionWindow)
		auction.Positions = append(auction.Positions, &models.AuctionPosition{
			Position:  i + 1,
			StartTime: start,
			EndTime:   start.Add(config.PositionWindow),
			Status:    models.PositionStatusPending,
		})
	}

	return auction
}
