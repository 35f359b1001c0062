package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/spotlightworks/spotlight/spotlight/config"
	"github.com/spotlightworks/spotlight/spotlight/database/models"
	"github.com/spotlightworks/spotlight/spotlight/database/repositories"
)

// Config carries the ledger tunables injected from the deployment config.
type Config struct {
	DailyEarnCap   int64
	ExchangeRate   float64 // coins credited per fiat unit
	AdminAccountID string
	HistoryPage    int
}

// Activity kinds accepted by AwardCoins. Anything else is a validation
// failure so display-layer typos cannot mint coins under a new category.
var knownActivities = map[string]bool{
	"daily_login":    true,
	"chat_message":   true,
	"profile_update": true,
	"referral":       true,
	"event_reward":   true,
}

// Ledger owns account balances and the immutable transaction log. Every
// balance change flows through exactly one repository mutation that also
// appends the ledger entry, and is serialized per account by a keyed
// mutex on top of the row lock.
type Ledger struct {
	accounts repositories.AccountRepository
	txns     repositories.TransactionRepository
	cfg      Config

	locks sync.Map // accountID -> *sync.Mutex

	// Read-through balance cache. Strictly a cache: invalidated on every
	// mutating call, never consulted for business decisions.
	cache *lru.Cache

	now func() time.Time
}

func New(accounts repositories.AccountRepository, txns repositories.TransactionRepository, cfg Config) *Ledger {
	if cfg.DailyEarnCap <= 0 {
		cfg.DailyEarnCap = config.DefaultDailyEarnCap
	}
	if cfg.ExchangeRate <= 0 {
		cfg.ExchangeRate = config.DefaultExchangeRate
	}
	if cfg.HistoryPage <= 0 {
		cfg.HistoryPage = config.DefaultPageSize
	}

	cache, _ := lru.New(config.BalanceCacheSize)

	return &Ledger{
		accounts: accounts,
		txns:     txns,
		cfg:      cfg,
		cache:    cache,
		now:      time.Now,
	}
}

func (l *Ledger) lock(accountID string) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(accountID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// GetBalance auto-provisions a zero-balance account if absent. It never
// fails on an unknown account.
func (l *Ledger) GetBalance(ctx context.Context, accountID string) (int64, error) {
	if cached, ok := l.cache.Get(accountID); ok {
		return cached.(int64), nil
	}

	// The miss path fills the cache under the account lock. Mutations
	// invalidate while holding the same lock, so a fill can never land
	// after the invalidation for a newer balance and pin a stale value.
	mu := l.lock(accountID)
	mu.Lock()
	defer mu.Unlock()

	if cached, ok := l.cache.Get(accountID); ok {
		return cached.(int64), nil
	}

	account, err := l.accounts.GetOrCreate(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to get account: %w", err)
	}

	l.cache.Add(accountID, account.Balance)
	return account.Balance, nil
}

// AwardCoins credits earn-activity coins, enforcing the rolling daily cap.
// The counter resets when the local date differs from the account's last
// reset date.
func (l *Ledger) AwardCoins(ctx context.Context, accountID string, amount int64, activity, description string) (int64, error) {
	if amount <= 0 {
		return 0, &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if !knownActivities[activity] {
		return 0, &ValidationError{Field: "activity", Reason: fmt.Sprintf("unknown kind %q", activity)}
	}

	mu := l.lock(accountID)
	mu.Lock()
	defer mu.Unlock()

	now := l.now()
	account, txn, err := l.accounts.Mutate(ctx, accountID, func(acc *models.Account) (*models.Transaction, error) {
		if !sameLocalDay(acc.LastDailyReset, now) {
			acc.DailyEarned = 0
			acc.LastDailyReset = now
		}
		if acc.DailyEarned+amount > l.cfg.DailyEarnCap {
			return nil, fmt.Errorf("award of %d would exceed daily cap %d (earned %d today): %w",
				amount, l.cfg.DailyEarnCap, acc.DailyEarned, ErrLimitExceeded)
		}

		acc.Balance += amount
		acc.TotalEarned += amount
		acc.DailyEarned += amount

		return &models.Transaction{
			TxID:             uuid.NewString(),
			Type:             models.TransactionTypeEarn,
			Amount:           amount,
			Activity:         activity,
			Description:      description,
			ResultingBalance: acc.Balance,
			Timestamp:        now,
		}, nil
	})
	if err != nil {
		return 0, err
	}

	l.cache.Remove(accountID)

	slog.Info("Coins awarded",
		slog.String("type", "ledger"),
		slog.String("account_id", accountID),
		slog.Int64("amount", amount),
		slog.String("activity", activity),
		slog.String("tx_id", txn.TxID))

	return account.Balance, nil
}

// SpendCoins debits the account, failing with ErrInsufficientFunds and no
// side effects when the balance does not cover the amount.
func (l *Ledger) SpendCoins(ctx context.Context, accountID string, amount int64, purpose, description string) (int64, error) {
	balance, _, err := l.spend(ctx, accountID, amount, purpose, description)
	return balance, err
}

// SpendCoinsTx is SpendCoins but also returns the debit's transaction ID,
// which auction escrow uses as its refund idempotency key.
func (l *Ledger) SpendCoinsTx(ctx context.Context, accountID string, amount int64, purpose, description string) (int64, string, error) {
	return l.spend(ctx, accountID, amount, purpose, description)
}

func (l *Ledger) spend(ctx context.Context, accountID string, amount int64, purpose, description string) (int64, string, error) {
	if amount <= 0 {
		return 0, "", &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if purpose == "" {
		return 0, "", &ValidationError{Field: "purpose", Reason: "must not be empty"}
	}

	mu := l.lock(accountID)
	mu.Lock()
	defer mu.Unlock()

	now := l.now()
	account, txn, err := l.accounts.Mutate(ctx, accountID, func(acc *models.Account) (*models.Transaction, error) {
		if acc.Balance < amount {
			return nil, fmt.Errorf("balance %d cannot cover %d: %w", acc.Balance, amount, ErrInsufficientFunds)
		}

		acc.Balance -= amount
		acc.TotalSpent += amount

		return &models.Transaction{
			TxID:             uuid.NewString(),
			Type:             models.TransactionTypeSpend,
			Amount:           -amount,
			Activity:         purpose,
			Description:      description,
			ResultingBalance: acc.Balance,
			Timestamp:        now,
		}, nil
	})
	if err != nil {
		return 0, "", err
	}

	l.cache.Remove(accountID)

	slog.Info("Coins spent",
		slog.String("type", "ledger"),
		slog.String("account_id", accountID),
		slog.Int64("amount", amount),
		slog.String("purpose", purpose),
		slog.String("tx_id", txn.TxID))

	return account.Balance, txn.TxID, nil
}

// PurchaseCoins converts a fiat amount at the configured exchange rate,
// flooring to whole coins. Purchases are exempt from the daily cap.
func (l *Ledger) PurchaseCoins(ctx context.Context, accountID string, fiatAmount float64) (int64, error) {
	if fiatAmount <= 0 {
		return 0, &ValidationError{Field: "fiat_amount", Reason: "must be positive"}
	}
	coins := int64(math.Floor(fiatAmount * l.cfg.ExchangeRate))
	if coins <= 0 {
		return 0, &ValidationError{Field: "fiat_amount", Reason: "converts to zero coins"}
	}

	return l.credit(ctx, accountID, creditOptions{
		amount:      coins,
		txType:      models.TransactionTypePurchase,
		activity:    "coin_purchase",
		description: fmt.Sprintf("purchased %d coins for %.2f", coins, fiatAmount),
	})
}

// Refund credits an amount back, keyed by reference so a replayed
// settlement step cannot credit twice. Used exclusively by auction
// settlement.
func (l *Ledger) Refund(ctx context.Context, accountID string, amount int64, reason, reference string) (int64, error) {
	if reference == "" {
		return 0, &ValidationError{Field: "reference", Reason: "must not be empty"}
	}
	return l.credit(ctx, accountID, creditOptions{
		amount:      amount,
		txType:      models.TransactionTypeRefund,
		activity:    "refund",
		description: reason,
		reference:   reference,
	})
}

// GrantBonus credits a cap-exempt earn entry keyed by reference; auction
// settlement uses it for the winner's bonus.
func (l *Ledger) GrantBonus(ctx context.Context, accountID string, amount int64, description, reference string) (int64, error) {
	if reference == "" {
		return 0, &ValidationError{Field: "reference", Reason: "must not be empty"}
	}
	return l.credit(ctx, accountID, creditOptions{
		amount:      amount,
		txType:      models.TransactionTypeEarn,
		activity:    "auction_win_bonus",
		description: description,
		reference:   reference,
	})
}

// AdminGrant credits coins outside the earning cap. The API layer
// restricts it to the configured admin account.
func (l *Ledger) AdminGrant(ctx context.Context, accountID string, amount int64, description string) (int64, error) {
	return l.credit(ctx, accountID, creditOptions{
		amount:      amount,
		txType:      models.TransactionTypeAdminGrant,
		activity:    "admin_grant",
		description: description,
	})
}

type creditOptions struct {
	amount      int64
	txType      models.TransactionType
	activity    string
	description string
	reference   string
}

func (l *Ledger) credit(ctx context.Context, accountID string, opts creditOptions) (int64, error) {
	if opts.amount <= 0 {
		return 0, &ValidationError{Field: "amount", Reason: "must be positive"}
	}

	mu := l.lock(accountID)
	mu.Lock()
	defer mu.Unlock()

	// Referenced credits are idempotent: a replay returns the current
	// balance without a second entry.
	if opts.reference != "" {
		if _, err := l.txns.GetByReference(ctx, opts.reference); err == nil {
			slog.Debug("Referenced credit already applied",
				slog.String("type", "ledger"),
				slog.String("account_id", accountID),
				slog.String("reference", opts.reference))
			return l.currentBalance(ctx, accountID)
		} else if !repositories.IsNotFound(err) {
			return 0, fmt.Errorf("failed to check credit reference: %w", err)
		}
	}

	now := l.now()
	account, txn, err := l.accounts.Mutate(ctx, accountID, func(acc *models.Account) (*models.Transaction, error) {
		acc.Balance += opts.amount
		acc.TotalEarned += opts.amount

		return &models.Transaction{
			TxID:             uuid.NewString(),
			Type:             opts.txType,
			Amount:           opts.amount,
			Activity:         opts.activity,
			Description:      opts.description,
			Reference:        opts.reference,
			ResultingBalance: acc.Balance,
			CapExempt:        true,
			Timestamp:        now,
		}, nil
	})
	if err != nil {
		// A concurrent replay can slip past the reference pre-check; the
		// unique constraint turns it into a conflict, which is still an
		// idempotent success.
		if opts.reference != "" && repositories.IsConflict(err) {
			return l.currentBalance(ctx, accountID)
		}
		return 0, err
	}

	l.cache.Remove(accountID)

	slog.Info("Coins credited",
		slog.String("type", "ledger"),
		slog.String("account_id", accountID),
		slog.Int64("amount", opts.amount),
		slog.String("tx_type", string(txn.Type)),
		slog.String("tx_id", txn.TxID))

	return account.Balance, nil
}

func (l *Ledger) currentBalance(ctx context.Context, accountID string) (int64, error) {
	account, err := l.accounts.GetOrCreate(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to get account: %w", err)
	}
	return account.Balance, nil
}

// Transactions returns one account's ledger entries, newest first.
func (l *Ledger) Transactions(ctx context.Context, accountID string, page, pageSize int) ([]*models.Transaction, int, error) {
	return l.txns.ListByAccount(ctx, accountID, page, l.clampPageSize(pageSize))
}

// History returns the global ledger log, newest first.
func (l *Ledger) History(ctx context.Context, page, pageSize int) ([]*models.Transaction, int, error) {
	return l.txns.List(ctx, page, l.clampPageSize(pageSize))
}

// Reconcile rebuilds the cached balance fields from the transaction log.
func (l *Ledger) Reconcile(ctx context.Context, accountID string) (*models.Account, error) {
	mu := l.lock(accountID)
	mu.Lock()
	defer mu.Unlock()

	account, err := l.accounts.Reconcile(ctx, accountID)
	if err != nil {
		return nil, err
	}
	l.cache.Remove(accountID)
	return account, nil
}

// IsAdmin reports whether the account is the configured admin identity.
func (l *Ledger) IsAdmin(accountID string) bool {
	return l.cfg.AdminAccountID != "" && accountID == l.cfg.AdminAccountID
}

func (l *Ledger) clampPageSize(pageSize int) int {
	if pageSize <= 0 {
		return l.cfg.HistoryPage
	}
	if pageSize > config.MaxPageSize {
		return config.MaxPageSize
	}
	return pageSize
}

func sameLocalDay(a, b time.Time) bool {
	ay, am, ad := a.Local().Date()
	by, bm, bd := b.Local().Date()
	return ay == by && am == bm && ad == bd
}
