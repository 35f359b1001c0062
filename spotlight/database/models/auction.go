package models

import (
	"time"

	"github.com/uptrace/bun"
)

type AuctionStatus string

const (
	AuctionStatusScheduled AuctionStatus = "scheduled"
	AuctionStatusActive    AuctionStatus = "active"
	AuctionStatusCompleted AuctionStatus = "completed"
)

type PositionStatus string

const (
	PositionStatusPending PositionStatus = "pending"
	PositionStatusOpen    PositionStatus = "open"
	PositionStatusClosed  PositionStatus = "closed"
)

// Auction is one weekly run of spotlight position auctions. AnchorTime
// identifies the run: there is exactly one auction per weekly anchor.
type Auction struct {
	bun.BaseModel `bun:"table:auctions,alias:a"`

	ID         int64         `bun:"id,pk,autoincrement"`
	AnchorTime time.Time     `bun:"anchor_time,notnull,unique"`
	StartTime  time.Time     `bun:"start_time,notnull"`
	EndTime    time.Time     `bun:"end_time,notnull"`
	Status     AuctionStatus `bun:"status,notnull"`

	Positions []*AuctionPosition `bun:"rel:has-many,join:id=auction_id"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// StatusAt derives the auction status from the wall clock. The stored
// status only moves to completed once every position has been finalized.
func (a *Auction) StatusAt(now time.Time) AuctionStatus {
	if a.Status == AuctionStatusCompleted {
		return AuctionStatusCompleted
	}
	if now.Before(a.StartTime) {
		return AuctionStatusScheduled
	}
	return AuctionStatusActive
}

// AuctionPosition is one of the seven sequential timed slots within a
// weekly auction. Windows are contiguous and non-overlapping.
type AuctionPosition struct {
	bun.BaseModel `bun:"table:auction_positions,alias:ap"`

	ID        int64 `bun:"id,pk,autoincrement"`
	AuctionID int64 `bun:"auction_id,notnull"`
	Position  int   `bun:"position,notnull"`

	StartTime time.Time      `bun:"start_time,notnull"`
	EndTime   time.Time      `bun:"end_time,notnull"`
	Status    PositionStatus `bun:"status,notnull"`

	WinnerBidID    string `bun:"winner_bid_id,nullzero"`
	FinalBidAmount int64  `bun:"final_bid_amount,notnull,default:0"`
	BidCount       int    `bun:"bid_count,notnull,default:0"`

	Bids []*Bid `bun:"rel:has-many,join:id=position_id"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// StatusAt derives openness from the stored window bounds. Closed is
// sticky: it is only set by an explicit finalize.
func (p *AuctionPosition) StatusAt(now time.Time) PositionStatus {
	if p.Status == PositionStatusClosed {
		return PositionStatusClosed
	}
	if now.Before(p.StartTime) {
		return PositionStatusPending
	}
	// An elapsed window stays open until an explicit finalize closes it;
	// OpenAt still rejects bids once the window has passed.
	return PositionStatusOpen
}

// OpenAt reports whether bids are accepted at the given instant.
func (p *AuctionPosition) OpenAt(now time.Time) bool {
	if p.Status == PositionStatusClosed {
		return false
	}
	return !now.Before(p.StartTime) && now.Before(p.EndTime)
}

type Bid struct {
	bun.BaseModel `bun:"table:auction_bids,alias:ab"`

	ID         int64  `bun:"id,pk,autoincrement"`
	BidID      string `bun:"bid_id,notnull,unique"`
	PositionID int64  `bun:"position_id,notnull"`

	BidderID  string `bun:"bidder_id,notnull"`
	SubjectID string `bun:"subject_id,notnull"`
	Amount    int64  `bun:"amount,notnull"`

	// IsWinning tracks the current leading bid and is recomputed whenever a
	// higher bid lands.
	IsWinning bool `bun:"is_winning,notnull,default:false"`

	// TxID is the escrow debit transaction backing this bid; it doubles as
	// the idempotency reference for the refund if the bid loses.
	TxID string `bun:"tx_id,notnull"`

	Timestamp time.Time `bun:"timestamp,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
