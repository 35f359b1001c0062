package boost

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/spotlightworks/spotlight/spotlight/database/models"
	"github.com/spotlightworks/spotlight/spotlight/database/repositories"
)

// ErrUnknownTier is returned for a tier name outside the fixed catalog.
var ErrUnknownTier = fmt.Errorf("unknown boost tier")

// Tier describes one entry of the fixed boost catalog.
type Tier struct {
	Name     models.BoostTier
	Cost     int64
	Priority int
	Duration time.Duration
}

// tiers is the fixed catalog; cost and priority both rise with the tier.
var tiers = map[models.BoostTier]Tier{
	models.BoostTierBronze:   {Name: models.BoostTierBronze, Cost: 50, Priority: 1, Duration: 24 * time.Hour},
	models.BoostTierSilver:   {Name: models.BoostTierSilver, Cost: 100, Priority: 2, Duration: 48 * time.Hour},
	models.BoostTierGold:     {Name: models.BoostTierGold, Cost: 200, Priority: 3, Duration: 72 * time.Hour},
	models.BoostTierPlatinum: {Name: models.BoostTierPlatinum, Cost: 400, Priority: 4, Duration: 120 * time.Hour},
	models.BoostTierDiamond:  {Name: models.BoostTierDiamond, Cost: 800, Priority: 5, Duration: 168 * time.Hour},
}

// Tiers returns the catalog ordered by ascending priority.
func Tiers() []Tier {
	out := make([]Tier, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// PaymentService is the slice of the ledger the boost manager charges
// through.
type PaymentService interface {
	SpendCoinsTx(ctx context.Context, accountID string, amount int64, purpose, description string) (int64, string, error)
}

// Manager sells visibility boosts. A subject holds at most one boost at a
// time: buying while one is active replaces it outright, with no refund
// or credit for the remaining duration.
type Manager struct {
	repo    repositories.BoostRepository
	payment PaymentService

	now func() time.Time
}

func NewManager(repo repositories.BoostRepository, payment PaymentService) *Manager {
	return &Manager{
		repo:    repo,
		payment: payment,
		now:     time.Now,
	}
}

// ApplyBoost charges the subject's account for the tier and activates the
// boost, replacing any boost already in place.
func (m *Manager) ApplyBoost(ctx context.Context, subjectID string, tierName models.BoostTier) (*models.Boost, error) {
	tier, ok := tiers[tierName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTier, tierName)
	}

	_, txID, err := m.payment.SpendCoinsTx(ctx, subjectID, tier.Cost, "boost_purchase",
		fmt.Sprintf("%s boost for %s", tier.Name, tier.Duration))
	if err != nil {
		return nil, err
	}

	now := m.now()
	boost := &models.Boost{
		BoostID:   fmt.Sprintf("boost_%s_%d", subjectID, now.UnixNano()),
		SubjectID: subjectID,
		Tier:      tier.Name,
		Priority:  tier.Priority,
		Cost:      tier.Cost,
		StartTime: now,
		EndTime:   now.Add(tier.Duration),
		TxID:      txID,
	}

	if err := m.repo.Replace(ctx, boost); err != nil {
		return nil, fmt.Errorf("failed to store boost: %w", err)
	}

	slog.Info("Boost applied",
		slog.String("subject_id", subjectID),
		slog.String("tier", string(tier.Name)),
		slog.Int64("cost", tier.Cost))

	return boost, nil
}

// GetActiveBoost returns the subject's boost, or nil when none is active.
// An expired row is treated as absent even before the sweep removes it.
func (m *Manager) GetActiveBoost(ctx context.Context, subjectID string) (*models.Boost, error) {
	boost, err := m.repo.GetBySubject(ctx, subjectID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get boost: %w", err)
	}
	if !boost.ActiveAt(m.now()) {
		return nil, nil
	}
	return boost, nil
}

// CleanupExpired removes boosts whose windows have elapsed and reports how
// many rows were swept.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	removed, err := m.repo.DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired boosts: %w", err)
	}
	return int(removed), nil
}

// A Ranked pairs a subject with its base score for boost-aware ordering.
type Ranked struct {
	SubjectID string
	Score     int64
	Boost     *models.Boost
}

// RankSubjects orders subjects for display: boosted subjects first by
// descending priority, then everyone by descending base score. Ordering
// among equals is stable with respect to the input.
func (m *Manager) RankSubjects(ctx context.Context, subjects []Ranked) ([]Ranked, error) {
	active, err := m.repo.ListActive(ctx, m.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list active boosts: %w", err)
	}

	bySubject := make(map[string]*models.Boost, len(active))
	for _, b := range active {
		bySubject[b.SubjectID] = b
	}

	out := make([]Ranked, len(subjects))
	copy(out, subjects)
	for i := range out {
		out[i].Boost = bySubject[out[i].SubjectID]
	}

	sortRanked(out)
	return out, nil
}

func sortRanked(subjects []Ranked) {
	priority := func(r Ranked) int {
		if r.Boost == nil {
			return 0
		}
		return r.Boost.Priority
	}

	sort.SliceStable(subjects, func(i, j int) bool {
		if priority(subjects[i]) != priority(subjects[j]) {
			return priority(subjects[i]) > priority(subjects[j])
		}
		return subjects[i].Score > subjects[j].Score
	})
}
