package repositories

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/spotlightworks/spotlight/spotlight/database/models"
	"github.com/uptrace/bun"
)

type AuctionRepository interface {
	Create(ctx context.Context, auction *models.Auction) error
	GetByID(ctx context.Context, id int64) (*models.Auction, error)
	GetByAnchor(ctx context.Context, anchor time.Time) (*models.Auction, error)
	GetPosition(ctx context.Context, auctionID int64, index int) (*models.AuctionPosition, error)
	GetBids(ctx context.Context, positionID int64) ([]*models.Bid, error)
	AppendBid(ctx context.Context, bid *models.Bid) error
	ClosePosition(ctx context.Context, positionID int64, winnerBidID string, finalAmount int64) error
	CountOpenPositions(ctx context.Context, auctionID int64) (int, error)
	MarkCompleted(ctx context.Context, auctionID int64) error
	ListElapsedPositions(ctx context.Context, now time.Time) ([]*models.AuctionPosition, error)
}

type auctionRepository struct {
	*BaseRepository
}

func NewAuctionRepository(db *bun.DB) AuctionRepository {
	return &auctionRepository{BaseRepository: NewBaseRepository(db)}
}

// Create inserts the auction together with its position windows. The
// unique anchor_time constraint arbitrates concurrent creators; the loser
// gets a ConflictError and should re-read by anchor.
func (r *auctionRepository) Create(ctx context.Context, auction *models.Auction) error {
	err := r.Transaction(ctx, func(ctx context.Context, tx bun.Tx) error {
		auction.CreatedAt = time.Now()
		auction.UpdatedAt = time.Now()
		if _, err := tx.NewInsert().Model(auction).Exec(ctx); err != nil {
			return err
		}

		for _, pos := range auction.Positions {
			pos.AuctionID = auction.ID
			pos.CreatedAt = time.Now()
			pos.UpdatedAt = time.Now()
		}
		if len(auction.Positions) > 0 {
			if _, err := tx.NewInsert().Model(&auction.Positions).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return &ConflictError{Entity: "auction", Field: "anchor_time", Value: auction.AnchorTime}
		}
		return r.HandleError("create", "auction", err)
	}

	slog.Info("Auction created",
		slog.String("type", "db"),
		slog.Int64("auction_id", auction.ID),
		slog.Time("anchor", auction.AnchorTime),
		slog.Int("positions", len(auction.Positions)))

	return nil
}

func (r *auctionRepository) GetByID(ctx context.Context, id int64) (*models.Auction, error) {
	auction := new(models.Auction)
	err := r.db.NewSelect().
		Model(auction).
		Relation("Positions", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("position ASC")
		}).
		Where("a.id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, r.HandleErrorWithID("get", "auction", id, err)
	}
	return auction, nil
}

func (r *auctionRepository) GetByAnchor(ctx context.Context, anchor time.Time) (*models.Auction, error) {
	auction := new(models.Auction)
	err := r.db.NewSelect().
		Model(auction).
		Relation("Positions", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("position ASC")
		}).
		Where("a.anchor_time = ?", anchor).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: "auction", ID: anchor}
		}
		return nil, r.HandleErrorWithID("get_by_anchor", "auction", anchor, err)
	}
	return auction, nil
}

func (r *auctionRepository) GetPosition(ctx context.Context, auctionID int64, index int) (*models.AuctionPosition, error) {
	pos := new(models.AuctionPosition)
	err := r.db.NewSelect().
		Model(pos).
		Where("auction_id = ? AND position = ?", auctionID, index).
		Scan(ctx)
	if err != nil {
		return nil, r.HandleErrorWithID("get_position", "auction_position", index, err)
	}
	return pos, nil
}

func (r *auctionRepository) GetBids(ctx context.Context, positionID int64) ([]*models.Bid, error) {
	var bids []*models.Bid
	err := r.db.NewSelect().
		Model(&bids).
		Where("position_id = ?", positionID).
		Order("amount DESC", "timestamp ASC").
		Scan(ctx)
	if err != nil {
		return nil, r.HandleErrorWithID("get_bids", "auction_bid", positionID, err)
	}
	return bids, nil
}

// AppendBid records a new leading bid: the previous leader's is_winning
// flag is cleared and the position's bid count bumped in the same storage
// transaction.
func (r *auctionRepository) AppendBid(ctx context.Context, bid *models.Bid) error {
	err := r.SerializableTransaction(ctx, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewUpdate().
			Model((*models.Bid)(nil)).
			Set("is_winning = FALSE").
			Where("position_id = ? AND is_winning = TRUE", bid.PositionID).
			Exec(ctx); err != nil {
			return err
		}

		bid.IsWinning = true
		bid.CreatedAt = time.Now()
		if _, err := tx.NewInsert().Model(bid).Exec(ctx); err != nil {
			return err
		}

		_, err := tx.NewUpdate().
			Model((*models.AuctionPosition)(nil)).
			Set("bid_count = bid_count + 1").
			Set("updated_at = ?", time.Now()).
			Where("id = ?", bid.PositionID).
			Exec(ctx)
		return err
	})
	if err != nil {
		return r.HandleErrorWithID("append_bid", "auction_bid", bid.PositionID, err)
	}
	return nil
}

func (r *auctionRepository) ClosePosition(ctx context.Context, positionID int64, winnerBidID string, finalAmount int64) error {
	_, err := r.db.NewUpdate().
		Model((*models.AuctionPosition)(nil)).
		Set("status = ?", models.PositionStatusClosed).
		Set("winner_bid_id = ?", winnerBidID).
		Set("final_bid_amount = ?", finalAmount).
		Set("updated_at = ?", time.Now()).
		Where("id = ? AND status != ?", positionID, models.PositionStatusClosed).
		Exec(ctx)
	if err != nil {
		return r.HandleErrorWithID("close_position", "auction_position", positionID, err)
	}
	return nil
}

func (r *auctionRepository) CountOpenPositions(ctx context.Context, auctionID int64) (int, error) {
	count, err := r.db.NewSelect().
		Model((*models.AuctionPosition)(nil)).
		Where("auction_id = ? AND status != ?", auctionID, models.PositionStatusClosed).
		Count(ctx)
	if err != nil {
		return 0, r.HandleErrorWithID("count_open", "auction_position", auctionID, err)
	}
	return count, nil
}

func (r *auctionRepository) MarkCompleted(ctx context.Context, auctionID int64) error {
	_, err := r.db.NewUpdate().
		Model((*models.Auction)(nil)).
		Set("status = ?", models.AuctionStatusCompleted).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", auctionID).
		Exec(ctx)
	if err != nil {
		return r.HandleErrorWithID("mark_completed", "auction", auctionID, err)
	}
	return nil
}

// ListElapsedPositions returns positions whose window has passed but which
// have not been finalized yet; the scheduler drains this list.
func (r *auctionRepository) ListElapsedPositions(ctx context.Context, now time.Time) ([]*models.AuctionPosition, error) {
	var positions []*models.AuctionPosition
	err := r.db.NewSelect().
		Model(&positions).
		Where("end_time <= ? AND status != ?", now, models.PositionStatusClosed).
		Order("end_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, r.HandleError("list_elapsed", "auction_position", err)
	}
	return positions, nil
}
