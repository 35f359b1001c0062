package repositories

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/spotlightworks/spotlight/spotlight/database/models"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

// AccountRepository owns account rows and their atomic mutation. Mutate is
// the single write path: the business closure runs with the account row
// locked, and the returned transaction is appended in the same storage
// transaction, so a balance change and its ledger entry commit together.
type AccountRepository interface {
	GetOrCreate(ctx context.Context, accountID string) (*models.Account, error)
	Get(ctx context.Context, accountID string) (*models.Account, error)
	Mutate(ctx context.Context, accountID string, fn func(*models.Account) (*models.Transaction, error)) (*models.Account, *models.Transaction, error)
	Reconcile(ctx context.Context, accountID string) (*models.Account, error)
}

type accountRepository struct {
	*BaseRepository
}

func NewAccountRepository(db *bun.DB) AccountRepository {
	return &accountRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *accountRepository) GetOrCreate(ctx context.Context, accountID string) (*models.Account, error) {
	account := new(models.Account)
	err := r.db.NewSelect().
		Model(account).
		Where("account_id = ?", accountID).
		Scan(ctx)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, r.HandleErrorWithID("get_or_create", "account", accountID, err)
	}

	account = &models.Account{
		AccountID:      accountID,
		LastDailyReset: time.Now(),
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	_, err = r.db.NewInsert().
		Model(account).
		On("CONFLICT (account_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, r.HandleErrorWithID("get_or_create", "account", accountID, err)
	}

	// A concurrent provisioner may have won the insert race; read back the
	// authoritative row either way.
	err = r.db.NewSelect().
		Model(account).
		Where("account_id = ?", accountID).
		Scan(ctx)
	if err != nil {
		return nil, r.HandleErrorWithID("get_or_create", "account", accountID, err)
	}

	slog.Debug("Provisioned new account",
		slog.String("type", "db"),
		slog.String("account_id", accountID))

	return account, nil
}

func (r *accountRepository) Get(ctx context.Context, accountID string) (*models.Account, error) {
	account := new(models.Account)
	err := r.db.NewSelect().
		Model(account).
		Where("account_id = ?", accountID).
		Scan(ctx)
	if err != nil {
		return nil, r.HandleErrorWithID("get", "account", accountID, err)
	}
	return account, nil
}

func (r *accountRepository) Mutate(ctx context.Context, accountID string, fn func(*models.Account) (*models.Transaction, error)) (*models.Account, *models.Transaction, error) {
	if _, err := r.GetOrCreate(ctx, accountID); err != nil {
		return nil, nil, err
	}

	var account *models.Account
	var txn *models.Transaction

	err := r.SerializableTransaction(ctx, func(ctx context.Context, tx bun.Tx) error {
		account = new(models.Account)
		if err := tx.NewSelect().
			Model(account).
			Where("account_id = ?", accountID).
			For("UPDATE").
			Scan(ctx); err != nil {
			return err
		}

		var err error
		txn, err = fn(account)
		if err != nil {
			return err
		}

		account.UpdatedAt = time.Now()
		if _, err := tx.NewUpdate().
			Model(account).
			WherePK().
			Exec(ctx); err != nil {
			return err
		}

		txn.AccountID = accountID
		if txn.Timestamp.IsZero() {
			txn.Timestamp = time.Now()
		}
		txn.CreatedAt = time.Now()
		if _, err := tx.NewInsert().
			Model(txn).
			Exec(ctx); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil, &ConflictError{Entity: "transaction", Field: "reference", Value: refOf(txn)}
		}
		// Business errors from fn pass through untouched.
		return nil, nil, err
	}

	return account, txn, nil
}

// Reconcile recomputes the cached balance fields from the transaction log.
// The log is the source of truth after a crash mid-operation.
func (r *accountRepository) Reconcile(ctx context.Context, accountID string) (*models.Account, error) {
	var account *models.Account

	err := r.SerializableTransaction(ctx, func(ctx context.Context, tx bun.Tx) error {
		account = new(models.Account)
		if err := tx.NewSelect().
			Model(account).
			Where("account_id = ?", accountID).
			For("UPDATE").
			Scan(ctx); err != nil {
			return err
		}

		var txns []*models.Transaction
		if err := tx.NewSelect().
			Model(&txns).
			Where("account_id = ?", accountID).
			Order("timestamp ASC", "id ASC").
			Scan(ctx); err != nil {
			return err
		}

		var earned, spent, daily int64
		today := account.LastDailyReset
		for _, t := range txns {
			if t.Amount >= 0 {
				earned += t.Amount
				if !t.CapExempt && sameLocalDay(t.Timestamp, today) {
					daily += t.Amount
				}
			} else {
				spent += -t.Amount
			}
		}

		account.TotalEarned = earned
		account.TotalSpent = spent
		account.Balance = earned - spent
		account.DailyEarned = daily
		account.UpdatedAt = time.Now()

		_, err := tx.NewUpdate().Model(account).WherePK().Exec(ctx)
		return err
	})
	if err != nil {
		return nil, r.HandleErrorWithID("reconcile", "account", accountID, err)
	}

	slog.Info("Account reconciled from transaction log",
		slog.String("type", "db"),
		slog.String("account_id", accountID),
		slog.Int64("balance", account.Balance))

	return account, nil
}

func sameLocalDay(a, b time.Time) bool {
	ay, am, ad := a.Local().Date()
	by, bm, bd := b.Local().Date()
	return ay == by && am == bm && ad == bd
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return false
}

func refOf(txn *models.Transaction) string {
	if txn == nil {
		return ""
	}
	return txn.Reference
}
