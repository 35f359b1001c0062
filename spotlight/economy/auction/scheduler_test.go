package auction

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingSweeper struct {
	calls int64
}

func (c *countingSweeper) CleanupExpired(context.Context) (int, error) {
	atomic.AddInt64(&c.calls, 1)
	return 0, nil
}

func TestSchedulerSweepsBoostsOnOwnCadence(t *testing.T) {
	sweeper := &countingSweeper{}
	// Auction sweeps are pushed far out so only the boost ticker fires.
	s := NewScheduler(nil, sweeper, time.Hour, 5*time.Millisecond)
	s.Start()
	defer s.Shutdown()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt64(&sweeper.calls) == 0 {
		select {
		case <-deadline:
			t.Fatal("boost cleanup never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
