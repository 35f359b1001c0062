package auction

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spotlightworks/spotlight/spotlight/database/models"
	"github.com/spotlightworks/spotlight/spotlight/database/repositories"
	"golang.org/x/sync/singleflight"
)

// LedgerService is the slice of the ledger the engine settles through.
// Bids are escrowed by debiting immediately; losing bids are refunded in
// full during finalize, keyed by their escrow transaction.
type LedgerService interface {
	SpendCoinsTx(ctx context.Context, accountID string, amount int64, purpose, description string) (int64, string, error)
	Refund(ctx context.Context, accountID string, amount int64, reason, reference string) (int64, error)
	GrantBonus(ctx context.Context, accountID string, amount int64, description, reference string) (int64, error)
}

// Config carries the engine tunables injected from the deployment config.
type Config struct {
	AnchorWeekday time.Weekday
	AnchorHour    int
	WinBonus      int64
}

// Engine runs the weekly sequence of spotlight position auctions.
type Engine struct {
	repo     repositories.AuctionRepository
	ledger   LedgerService
	notifier Notifier
	cfg      Config

	// creating collapses concurrent getOrCreate calls for one anchor so
	// only a single creation round-trips to storage.
	creating singleflight.Group

	// posLocks serializes bid arbitration and finalize per position.
	posLocks sync.Map // "auctionID:index" -> *sync.Mutex

	now func() time.Time
}

func NewEngine(repo repositories.AuctionRepository, ledger LedgerService, notifier Notifier, cfg Config) *Engine {
	if repo == nil {
		panic("auction repository cannot be nil")
	}
	if ledger == nil {
		panic("ledger service cannot be nil")
	}
	if notifier == nil {
		notifier = NewLogNotifier()
	}

	return &Engine{
		repo:     repo,
		ledger:   ledger,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (e *Engine) positionLock(auctionID int64, index int) *sync.Mutex {
	key := fmt.Sprintf("%d:%d", auctionID, index)
	mu, _ := e.posLocks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// GetOrCreateCurrentAuction returns the auction for the current weekly
// anchor, creating it with seven contiguous position windows when absent.
func (e *Engine) GetOrCreateCurrentAuction(ctx context.Context) (*models.Auction, error) {
	anchor := anchorFor(e.now(), e.cfg.AnchorWeekday, e.cfg.AnchorHour)

	result, err, _ := e.creating.Do(anchor.Format(time.RFC3339), func() (interface{}, error) {
		auction, err := e.repo.GetByAnchor(ctx, anchor)
		if err == nil {
			return auction, nil
		}
		if !repositories.IsNotFound(err) {
			return nil, fmt.Errorf("failed to look up auction: %w", err)
		}

		auction = buildAuction(anchor)
		if err := e.repo.Create(ctx, auction); err != nil {
			// A concurrent creator (another instance) may have won the
			// anchor; fall back to reading theirs.
			if repositories.IsConflict(err) {
				return e.repo.GetByAnchor(ctx, anchor)
			}
			return nil, fmt.Errorf("failed to create auction: %w", err)
		}
		return auction, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*models.Auction), nil
}

// PlaceBid escrows the bid amount via an immediate debit and records the
// bid as the new leader. The per-position lock is the arbitration point:
// the highest-bid check and the accept are atomic relative to concurrent
// bids on the same position.
func (e *Engine) PlaceBid(ctx context.Context, auctionID int64, positionIndex int, bidderID, subjectID string, amount int64) (*models.Bid, error) {
	mu := e.positionLock(auctionID, positionIndex)
	mu.Lock()
	defer mu.Unlock()

	pos, err := e.repo.GetPosition(ctx, auctionID, positionIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}

	now := e.now()
	if !pos.OpenAt(now) {
		return nil, ErrPositionNotOpen
	}

	bids, err := e.repo.GetBids(ctx, pos.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bids: %w", err)
	}

	var highest *models.Bid
	if len(bids) > 0 {
		highest = bids[0]
	}
	if highest != nil && amount <= highest.Amount {
		return nil, &BidTooLowError{Amount: amount, Highest: highest.Amount}
	}
	if amount <= 0 {
		return nil, &BidTooLowError{Amount: amount, Highest: 0}
	}

	_, txID, err := e.ledger.SpendCoinsTx(ctx, bidderID, amount, "auction_bid",
		fmt.Sprintf("bid on spotlight position %d", positionIndex))
	if err != nil {
		return nil, err
	}

	bid := &models.Bid{
		BidID:      uuid.NewString(),
		PositionID: pos.ID,
		BidderID:   bidderID,
		SubjectID:  subjectID,
		Amount:     amount,
		TxID:       txID,
		Timestamp:  now,
	}

	if err := e.repo.AppendBid(ctx, bid); err != nil {
		// The debit landed but the bid did not; give the escrow back.
		if _, refundErr := e.ledger.Refund(ctx, bidderID, amount,
			"bid could not be recorded", "bidfail:"+bid.BidID); refundErr != nil {
			slog.Error("Failed to refund unrecorded bid",
				slog.String("bidder_id", bidderID),
				slog.String("bid_id", bid.BidID),
				slog.Any("error", refundErr))
		}
		return nil, fmt.Errorf("failed to record bid: %w", err)
	}

	e.notifier.BidPlaced(pos, bid)
	if highest != nil && highest.BidderID != bidderID {
		e.notifier.Outbid(pos, highest, bid)
	}

	return bid, nil
}

// FinalizePosition closes an elapsed position: the highest bid wins (ties
// broken by earliest timestamp), every losing bid is refunded in full
// individually, and the winner receives the configured win bonus. It is
// idempotent: repeat calls after closing return the stored result, and
// refund/bonus credits are keyed so a retried finalize cannot pay twice.
func (e *Engine) FinalizePosition(ctx context.Context, auctionID int64, positionIndex int) (*models.Bid, error) {
	mu := e.positionLock(auctionID, positionIndex)
	mu.Lock()
	defer mu.Unlock()

	pos, err := e.repo.GetPosition(ctx, auctionID, positionIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}

	if pos.Status == models.PositionStatusClosed {
		return e.storedWinner(ctx, pos)
	}

	if e.now().Before(pos.EndTime) {
		return nil, ErrPositionStillOpen
	}

	bids, err := e.repo.GetBids(ctx, pos.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bids: %w", err)
	}

	var winner *models.Bid
	if len(bids) > 0 {
		// Bids arrive sorted by amount descending then timestamp
		// ascending, so the head is the earliest of the highest bids.
		winner = bids[0]
	}

	// Refund every non-winning bid its full amount. Losing self-bids by
	// the winning bidder are refunded individually, never netted.
	for _, bid := range bids {
		if winner != nil && bid.BidID == winner.BidID {
			continue
		}
		if _, err := e.ledger.Refund(ctx, bid.BidderID, bid.Amount,
			fmt.Sprintf("losing bid on spotlight position %d", positionIndex),
			"refund:"+bid.TxID); err != nil {
			return nil, fmt.Errorf("failed to refund bid %s: %w", bid.BidID, err)
		}
	}

	var winnerBidID string
	var finalAmount int64
	if winner != nil {
		winnerBidID = winner.BidID
		finalAmount = winner.Amount

		if e.cfg.WinBonus > 0 {
			if _, err := e.ledger.GrantBonus(ctx, winner.BidderID, e.cfg.WinBonus,
				fmt.Sprintf("won spotlight position %d", positionIndex),
				fmt.Sprintf("winbonus:%d:%d", auctionID, positionIndex)); err != nil {
				return nil, fmt.Errorf("failed to grant win bonus: %w", err)
			}
		}
	}

	if err := e.repo.ClosePosition(ctx, pos.ID, winnerBidID, finalAmount); err != nil {
		return nil, fmt.Errorf("failed to close position: %w", err)
	}
	pos.Status = models.PositionStatusClosed
	pos.WinnerBidID = winnerBidID
	pos.FinalBidAmount = finalAmount

	open, err := e.repo.CountOpenPositions(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count open positions: %w", err)
	}
	if open == 0 {
		if err := e.repo.MarkCompleted(ctx, auctionID); err != nil {
			return nil, fmt.Errorf("failed to mark auction completed: %w", err)
		}
		slog.Info("Auction completed",
			slog.Int64("auction_id", auctionID))
	}

	e.notifier.PositionClosed(pos, winner)

	slog.Info("Position finalized",
		slog.Int64("auction_id", auctionID),
		slog.Int("position", positionIndex),
		slog.Int64("final_amount", finalAmount),
		slog.Int("losing_bids_refunded", refundedCount(bids)))

	return winner, nil
}

func refundedCount(bids []*models.Bid) int {
	if len(bids) == 0 {
		return 0
	}
	return len(bids) - 1
}

// GetAuction returns an auction with its positions for display; remaining
// time per position derives from the stored bounds and the caller's clock.
func (e *Engine) GetAuction(ctx context.Context, auctionID int64) (*models.Auction, error) {
	auction, err := e.repo.GetByID(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("auction not found: %w", err)
	}
	return auction, nil
}

// PositionBids returns the bid history of one position, highest first.
func (e *Engine) PositionBids(ctx context.Context, auctionID int64, positionIndex int) ([]*models.Bid, error) {
	pos, err := e.repo.GetPosition(ctx, auctionID, positionIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return e.repo.GetBids(ctx, pos.ID)
}

func (e *Engine) storedWinner(ctx context.Context, pos *models.AuctionPosition) (*models.Bid, error) {
	if pos.WinnerBidID == "" {
		return nil, nil
	}
	bids, err := e.repo.GetBids(ctx, pos.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bids: %w", err)
	}
	for _, bid := range bids {
		if bid.BidID == pos.WinnerBidID {
			return bid, nil
		}
	}
	return nil, nil
}
