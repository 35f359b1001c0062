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

type BoostRepository interface {
	GetBySubject(ctx context.Context, subjectID string) (*models.Boost, error)
	Replace(ctx context.Context, boost *models.Boost) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	ListActive(ctx context.Context, now time.Time) ([]*models.Boost, error)
}

type boostRepository struct {
	*BaseRepository
}

func NewBoostRepository(db *bun.DB) BoostRepository {
	return &boostRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *boostRepository) GetBySubject(ctx context.Context, subjectID string) (*models.Boost, error) {
	boost := new(models.Boost)
	err := r.db.NewSelect().
		Model(boost).
		Where("subject_id = ?", subjectID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: "boost", ID: subjectID}
		}
		return nil, r.HandleErrorWithID("get", "boost", subjectID, err)
	}
	return boost, nil
}

// Replace upserts the subject's boost row. An existing boost for the same
// subject is overwritten, never stacked.
func (r *boostRepository) Replace(ctx context.Context, boost *models.Boost) error {
	boost.CreatedAt = time.Now()
	boost.UpdatedAt = time.Now()

	_, err := r.db.NewInsert().
		Model(boost).
		On("CONFLICT (subject_id) DO UPDATE").
		Set("boost_id = EXCLUDED.boost_id").
		Set("tier = EXCLUDED.tier").
		Set("priority = EXCLUDED.priority").
		Set("cost = EXCLUDED.cost").
		Set("start_time = EXCLUDED.start_time").
		Set("end_time = EXCLUDED.end_time").
		Set("tx_id = EXCLUDED.tx_id").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return r.HandleErrorWithID("replace", "boost", boost.SubjectID, err)
	}
	return nil
}

// DeleteExpired is storage compaction only; reads already filter by time.
func (r *boostRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.NewDelete().
		Model((*models.Boost)(nil)).
		Where("end_time <= ?", now).
		Exec(ctx)
	if err != nil {
		return 0, r.HandleError("delete_expired", "boost", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, r.HandleError("delete_expired", "boost", err)
	}
	if removed > 0 {
		slog.Debug("Removed expired boosts",
			slog.String("type", "db"),
			slog.Int64("count", removed))
	}
	return removed, nil
}

func (r *boostRepository) ListActive(ctx context.Context, now time.Time) ([]*models.Boost, error) {
	var boosts []*models.Boost
	err := r.db.NewSelect().
		Model(&boosts).
		Where("end_time > ?", now).
		Order("priority DESC", "end_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, r.HandleError("list_active", "boost", err)
	}
	return boosts, nil
}
