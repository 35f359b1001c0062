package boost

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spotlightworks/spotlight/spotlight/database/models"
	"github.com/spotlightworks/spotlight/spotlight/database/repositories"
)

type fakeBoostRepo struct {
	mu     sync.Mutex
	boosts map[string]*models.Boost // subjectID -> boost
}

func newFakeBoostRepo() *fakeBoostRepo {
	return &fakeBoostRepo{boosts: make(map[string]*models.Boost)}
}

func (f *fakeBoostRepo) GetBySubject(_ context.Context, subjectID string) (*models.Boost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.boosts[subjectID]
	if !ok {
		return nil, &repositories.NotFoundError{Entity: "boost", ID: subjectID}
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBoostRepo) Replace(_ context.Context, boost *models.Boost) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *boost
	f.boosts[boost.SubjectID] = &cp
	return nil
}

func (f *fakeBoostRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var removed int64
	for subjectID, b := range f.boosts {
		if !b.EndTime.After(now) {
			delete(f.boosts, subjectID)
			removed++
		}
	}
	return removed, nil
}

func (f *fakeBoostRepo) ListActive(_ context.Context, now time.Time) ([]*models.Boost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Boost
	for _, b := range f.boosts {
		if b.EndTime.After(now) {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakePayment struct {
	mu      sync.Mutex
	charges []int64
	balance int64
	nextTx  int
}

func (f *fakePayment) SpendCoinsTx(_ context.Context, _ string, amount int64, _, _ string) (int64, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balance < amount {
		return 0, "", fmt.Errorf("balance %d cannot cover %d", f.balance, amount)
	}
	f.balance -= amount
	f.charges = append(f.charges, amount)
	f.nextTx++
	return f.balance, fmt.Sprintf("tx-%d", f.nextTx), nil
}

var testNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestManager(balance int64) (*Manager, *fakeBoostRepo, *fakePayment) {
	repo := newFakeBoostRepo()
	payment := &fakePayment{balance: balance}
	m := NewManager(repo, payment)
	m.now = func() time.Time { return testNow }
	return m, repo, payment
}

func TestApplyBoost(t *testing.T) {
	ctx := context.Background()

	t.Run("charges and activates", func(t *testing.T) {
		m, _, payment := newTestManager(1000)

		b, err := m.ApplyBoost(ctx, "subject-1", models.BoostTierGold)
		if err != nil {
			t.Fatalf("ApplyBoost: %v", err)
		}
		if b.Priority != 3 || b.Cost != 200 {
			t.Errorf("gold boost = priority %d cost %d, want 3 and 200", b.Priority, b.Cost)
		}
		if want := testNow.Add(72 * time.Hour); !b.EndTime.Equal(want) {
			t.Errorf("end = %v, want %v", b.EndTime, want)
		}
		if payment.balance != 800 {
			t.Errorf("balance = %d, want 800", payment.balance)
		}
	})

	t.Run("unknown tier", func(t *testing.T) {
		m, _, payment := newTestManager(1000)

		_, err := m.ApplyBoost(ctx, "subject-1", "ruby")
		if !errors.Is(err, ErrUnknownTier) {
			t.Fatalf("expected ErrUnknownTier, got %v", err)
		}
		if len(payment.charges) != 0 {
			t.Error("unknown tier must not charge")
		}
	})

	t.Run("insufficient funds leaves existing boost", func(t *testing.T) {
		m, _, _ := newTestManager(50)

		if _, err := m.ApplyBoost(ctx, "subject-1", models.BoostTierBronze); err != nil {
			t.Fatalf("bronze: %v", err)
		}
		if _, err := m.ApplyBoost(ctx, "subject-1", models.BoostTierDiamond); err == nil {
			t.Fatal("expected error for unaffordable tier")
		}

		b, err := m.GetActiveBoost(ctx, "subject-1")
		if err != nil {
			t.Fatalf("GetActiveBoost: %v", err)
		}
		if b == nil || b.Tier != models.BoostTierBronze {
			t.Errorf("boost = %+v, want the bronze boost intact", b)
		}
	})

	t.Run("replaces without refund", func(t *testing.T) {
		m, _, payment := newTestManager(1000)

		if _, err := m.ApplyBoost(ctx, "subject-1", models.BoostTierPlatinum); err != nil {
			t.Fatalf("platinum: %v", err)
		}
		if _, err := m.ApplyBoost(ctx, "subject-1", models.BoostTierBronze); err != nil {
			t.Fatalf("bronze over platinum: %v", err)
		}

		b, err := m.GetActiveBoost(ctx, "subject-1")
		if err != nil {
			t.Fatalf("GetActiveBoost: %v", err)
		}
		if b.Tier != models.BoostTierBronze {
			t.Errorf("tier = %s, want bronze replacement", b.Tier)
		}
		// Both purchases charged in full; no credit for remaining time.
		if payment.balance != 1000-400-50 {
			t.Errorf("balance = %d, want 550", payment.balance)
		}
	})
}

func TestGetActiveBoostExpiry(t *testing.T) {
	ctx := context.Background()
	m, repo, _ := newTestManager(1000)

	if _, err := m.ApplyBoost(ctx, "subject-1", models.BoostTierBronze); err != nil {
		t.Fatalf("ApplyBoost: %v", err)
	}

	// One second past the 24h bronze window the boost reads as absent,
	// even though the sweep has not removed the row yet.
	m.now = func() time.Time { return testNow.Add(24*time.Hour + time.Second) }

	b, err := m.GetActiveBoost(ctx, "subject-1")
	if err != nil {
		t.Fatalf("GetActiveBoost: %v", err)
	}
	if b != nil {
		t.Errorf("expired boost returned: %+v", b)
	}
	if len(repo.boosts) != 1 {
		t.Errorf("expiry-on-read must not delete the row")
	}

	removed, err := m.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if len(repo.boosts) != 0 {
		t.Errorf("sweep left %d rows", len(repo.boosts))
	}
}

func TestRankSubjects(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(10000)

	if _, err := m.ApplyBoost(ctx, "subject-b", models.BoostTierGold); err != nil {
		t.Fatalf("gold: %v", err)
	}
	if _, err := m.ApplyBoost(ctx, "subject-d", models.BoostTierDiamond); err != nil {
		t.Fatalf("diamond: %v", err)
	}

	ranked, err := m.RankSubjects(ctx, []Ranked{
		{SubjectID: "subject-a", Score: 900},
		{SubjectID: "subject-b", Score: 10},
		{SubjectID: "subject-c", Score: 500},
		{SubjectID: "subject-d", Score: 1},
	})
	if err != nil {
		t.Fatalf("RankSubjects: %v", err)
	}

	want := []string{"subject-d", "subject-b", "subject-a", "subject-c"}
	for i, id := range want {
		if ranked[i].SubjectID != id {
			t.Errorf("ranked[%d] = %s, want %s", i, ranked[i].SubjectID, id)
		}
	}

	// Unboosted subjects with equal scores keep their input order.
	stable, err := m.RankSubjects(ctx, []Ranked{
		{SubjectID: "tie-1", Score: 100},
		{SubjectID: "tie-2", Score: 100},
	})
	if err != nil {
		t.Fatalf("RankSubjects: %v", err)
	}
	if stable[0].SubjectID != "tie-1" || stable[1].SubjectID != "tie-2" {
		t.Errorf("tie order not stable: %s, %s", stable[0].SubjectID, stable[1].SubjectID)
	}
}

func TestTiersCatalog(t *testing.T) {
	catalog := Tiers()
	if len(catalog) != 5 {
		t.Fatalf("catalog size = %d, want 5", len(catalog))
	}
	for i := 1; i < len(catalog); i++ {
		if catalog[i].Priority <= catalog[i-1].Priority {
			t.Errorf("catalog not ordered by priority at %d", i)
		}
		if catalog[i].Cost <= catalog[i-1].Cost {
			t.Errorf("cost not increasing with tier at %d", i)
		}
	}
	if catalog[0].Name != models.BoostTierBronze || catalog[4].Name != models.BoostTierDiamond {
		t.Errorf("catalog bounds = %s..%s, want bronze..diamond", catalog[0].Name, catalog[4].Name)
	}
}
