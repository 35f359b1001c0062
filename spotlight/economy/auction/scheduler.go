package auction

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/spotlightworks/spotlight/spotlight/config"
)

// BoostSweeper is satisfied by the boost manager; the scheduler drives its
// periodic expiry sweep alongside auction settlement.
type BoostSweeper interface {
	CleanupExpired(ctx context.Context) (int, error)
}

// Scheduler drives the auction lifecycle in the background: it keeps the
// current weekly auction provisioned, finalizes positions whose windows
// have elapsed, and sweeps expired boosts on its own slower cadence.
type Scheduler struct {
	engine      *Engine
	boosts      BoostSweeper
	sweepTicker *time.Ticker
	boostTicker *time.Ticker
	shutdown    chan struct{}
}

func NewScheduler(engine *Engine, boosts BoostSweeper, sweepInterval, boostInterval time.Duration) *Scheduler {
	if sweepInterval <= 0 {
		sweepInterval = config.SweepInterval
	}
	if boostInterval <= 0 {
		boostInterval = config.BoostCleanupInterval
	}
	return &Scheduler{
		engine:      engine,
		boosts:      boosts,
		sweepTicker: time.NewTicker(sweepInterval),
		boostTicker: time.NewTicker(boostInterval),
		shutdown:    make(chan struct{}),
	}
}

// Start begins the background sweep loop.
func (s *Scheduler) Start() {
	go s.run()
}

func (s *Scheduler) run() {
	defer s.sweepTicker.Stop()
	defer s.boostTicker.Stop()

	for {
		select {
		case <-s.sweepTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), config.RequestTimeout)
			if err := s.sweep(ctx); err != nil {
				slog.Error("Auction sweep failed",
					slog.String("type", "system"),
					slog.String("error", err.Error()))
			}
			cancel()
		case <-s.boostTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), config.RequestTimeout)
			s.sweepBoosts(ctx)
			cancel()
		case <-s.shutdown:
			return
		}
	}
}

func (s *Scheduler) sweepBoosts(ctx context.Context) {
	if s.boosts == nil {
		return
	}
	if removed, err := s.boosts.CleanupExpired(ctx); err != nil {
		slog.Error("Boost cleanup failed",
			slog.String("type", "system"),
			slog.String("error", err.Error()))
	} else if removed > 0 {
		slog.Info("Removed expired boosts",
			slog.String("type", "system"),
			slog.Int("count", removed))
	}
}

// sweep provisions the current auction and settles every position whose
// window has elapsed. Finalize is idempotent, so retrying a position that
// partially settled on a previous tick is safe.
func (s *Scheduler) sweep(ctx context.Context) error {
	if _, err := s.engine.GetOrCreateCurrentAuction(ctx); err != nil {
		return err
	}

	elapsed, err := s.engine.repo.ListElapsedPositions(ctx, s.engine.now())
	if err != nil {
		return err
	}

	for _, pos := range elapsed {
		if err := s.finalizeWithRetry(ctx, pos.AuctionID, pos.Position); err != nil {
			slog.Error("Failed to finalize position",
				slog.String("type", "system"),
				slog.Int64("auction_id", pos.AuctionID),
				slog.Int("position", pos.Position),
				slog.String("error", err.Error()))
		}
	}

	return nil
}

func (s *Scheduler) finalizeWithRetry(ctx context.Context, auctionID int64, index int) error {
	var lastErr error
	for attempt := 0; attempt < config.FinalizeMaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		_, err := s.engine.FinalizePosition(ctx, auctionID, index)
		if err == nil || errors.Is(err, ErrPositionStillOpen) {
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// Shutdown stops the background loop.
func (s *Scheduler) Shutdown() {
	close(s.shutdown)
	s.sweepTicker.Stop()
	s.boostTicker.Stop()
	slog.Info("Auction scheduler shutdown completed",
		slog.String("type", "system"))
}
