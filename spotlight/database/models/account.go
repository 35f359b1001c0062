package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TransactionType string

const (
	TransactionTypeEarn       TransactionType = "earn"
	TransactionTypeSpend      TransactionType = "spend"
	TransactionTypePurchase   TransactionType = "purchase"
	TransactionTypeRefund     TransactionType = "refund"
	TransactionTypeAdminGrant TransactionType = "admin_grant"
)

type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`

	ID        int64  `bun:"id,pk,autoincrement"`
	AccountID string `bun:"account_id,notnull,unique"`

	Balance     int64 `bun:"balance,notnull,default:0"`
	TotalEarned int64 `bun:"total_earned,notnull,default:0"`
	TotalSpent  int64 `bun:"total_spent,notnull,default:0"`

	// Rolling daily earning counter, reset when the local date changes.
	DailyEarned    int64     `bun:"daily_earned,notnull,default:0"`
	LastDailyReset time.Time `bun:"last_daily_reset"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// Transaction is an immutable ledger entry. Amount is signed: credits are
// positive, debits negative. ResultingBalance is the account balance after
// the entry was applied.
type Transaction struct {
	bun.BaseModel `bun:"table:transactions,alias:tx"`

	ID        int64  `bun:"id,pk,autoincrement"`
	TxID      string `bun:"tx_id,notnull,unique"`
	AccountID string `bun:"account_id,notnull"`

	Type        TransactionType `bun:"type,notnull"`
	Amount      int64           `bun:"amount,notnull"`
	Activity    string          `bun:"activity,notnull"`
	Description string          `bun:"description"`

	// Reference carries the settlement idempotency key for refunds and win
	// bonuses. Unique when set, so a replayed settlement step cannot credit
	// the same account twice.
	Reference string `bun:"reference,unique,nullzero"`

	ResultingBalance int64 `bun:"resulting_balance,notnull"`
	CapExempt        bool  `bun:"cap_exempt,notnull,default:false"`

	Timestamp time.Time `bun:"timestamp,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
