package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/spotlightworks/spotlight/spotlight/database/models"
	"github.com/uptrace/bun"
)

// TransactionRepository is the read side of the ledger log. Inserts happen
// exclusively through AccountRepository.Mutate so an entry can never exist
// without its applied balance change.
type TransactionRepository interface {
	GetByTxID(ctx context.Context, txID string) (*models.Transaction, error)
	GetByReference(ctx context.Context, reference string) (*models.Transaction, error)
	ListByAccount(ctx context.Context, accountID string, page, pageSize int) ([]*models.Transaction, int, error)
	List(ctx context.Context, page, pageSize int) ([]*models.Transaction, int, error)
}

type transactionRepository struct {
	*BaseRepository
}

func NewTransactionRepository(db *bun.DB) TransactionRepository {
	return &transactionRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *transactionRepository) GetByTxID(ctx context.Context, txID string) (*models.Transaction, error) {
	txn := new(models.Transaction)
	err := r.db.NewSelect().
		Model(txn).
		Where("tx_id = ?", txID).
		Scan(ctx)
	if err != nil {
		return nil, r.HandleErrorWithID("get", "transaction", txID, err)
	}
	return txn, nil
}

func (r *transactionRepository) GetByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	txn := new(models.Transaction)
	err := r.db.NewSelect().
		Model(txn).
		Where("reference = ?", reference).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: "transaction", ID: reference}
		}
		return nil, r.HandleErrorWithID("get_by_reference", "transaction", reference, err)
	}
	return txn, nil
}

func (r *transactionRepository) ListByAccount(ctx context.Context, accountID string, page, pageSize int) ([]*models.Transaction, int, error) {
	var txns []*models.Transaction
	count, err := r.db.NewSelect().
		Model(&txns).
		Where("account_id = ?", accountID).
		Order("timestamp DESC", "id DESC").
		Limit(pageSize).
		Offset(PageOffset(page, pageSize)).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, r.HandleErrorWithID("list", "transaction", accountID, err)
	}
	return txns, count, nil
}

func (r *transactionRepository) List(ctx context.Context, page, pageSize int) ([]*models.Transaction, int, error) {
	var txns []*models.Transaction
	count, err := r.db.NewSelect().
		Model(&txns).
		Order("timestamp DESC", "id DESC").
		Limit(pageSize).
		Offset(PageOffset(page, pageSize)).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, r.HandleError("list", "transaction", err)
	}
	return txns, count, nil
}
