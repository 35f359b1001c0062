package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spotlightworks/spotlight/spotlight/database/models"
	"github.com/spotlightworks/spotlight/spotlight/database/repositories"
)

// memStore backs the in-memory repository fakes. Mutate mirrors the real
// repository contract: the closure's account changes and the returned
// transaction commit together, and a duplicate reference surfaces as a
// ConflictError.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	txns     []*models.Transaction
	nextID   int64
}

func newMemStore() *memStore {
	return &memStore{accounts: make(map[string]*models.Account)}
}

func (s *memStore) getOrCreate(accountID string) *models.Account {
	acc, ok := s.accounts[accountID]
	if !ok {
		s.nextID++
		acc = &models.Account{ID: s.nextID, AccountID: accountID}
		s.accounts[accountID] = acc
	}
	return acc
}

type fakeAccounts struct {
	store *memStore

	// afterSnapshot, when set, runs after a GetOrCreate read has taken its
	// copy but before the caller sees it. Lets tests hold a reader at the
	// point where its view of the balance is already fixed.
	afterSnapshot func()
}

func (f *fakeAccounts) GetOrCreate(_ context.Context, accountID string) (*models.Account, error) {
	f.store.mu.Lock()
	acc := *f.store.getOrCreate(accountID)
	f.store.mu.Unlock()
	if f.afterSnapshot != nil {
		f.afterSnapshot()
	}
	return &acc, nil
}

func (f *fakeAccounts) Get(_ context.Context, accountID string) (*models.Account, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	acc, ok := f.store.accounts[accountID]
	if !ok {
		return nil, &repositories.NotFoundError{Entity: "account", ID: accountID}
	}
	cp := *acc
	return &cp, nil
}

func (f *fakeAccounts) Mutate(_ context.Context, accountID string, fn func(*models.Account) (*models.Transaction, error)) (*models.Account, *models.Transaction, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	acc := f.store.getOrCreate(accountID)
	work := *acc
	txn, err := fn(&work)
	if err != nil {
		return nil, nil, err
	}

	if txn.Reference != "" {
		for _, existing := range f.store.txns {
			if existing.Reference == txn.Reference {
				return nil, nil, &repositories.ConflictError{Entity: "transaction", Field: "reference", Value: txn.Reference}
			}
		}
	}

	*acc = work
	txn.AccountID = accountID
	f.store.txns = append(f.store.txns, txn)

	cp := work
	return &cp, txn, nil
}

func (f *fakeAccounts) Reconcile(_ context.Context, accountID string) (*models.Account, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	acc := f.store.getOrCreate(accountID)
	acc.Balance, acc.TotalEarned, acc.TotalSpent = 0, 0, 0
	for _, txn := range f.store.txns {
		if txn.AccountID != accountID {
			continue
		}
		acc.Balance += txn.Amount
		if txn.Amount > 0 {
			acc.TotalEarned += txn.Amount
		} else {
			acc.TotalSpent += -txn.Amount
		}
	}
	cp := *acc
	return &cp, nil
}

type fakeTxns struct{ store *memStore }

func (f *fakeTxns) GetByTxID(_ context.Context, txID string) (*models.Transaction, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	for _, txn := range f.store.txns {
		if txn.TxID == txID {
			return txn, nil
		}
	}
	return nil, &repositories.NotFoundError{Entity: "transaction", ID: txID}
}

func (f *fakeTxns) GetByReference(_ context.Context, reference string) (*models.Transaction, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	for _, txn := range f.store.txns {
		if txn.Reference == reference {
			return txn, nil
		}
	}
	return nil, &repositories.NotFoundError{Entity: "transaction", ID: reference}
}

func (f *fakeTxns) ListByAccount(_ context.Context, accountID string, page, pageSize int) ([]*models.Transaction, int, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	var out []*models.Transaction
	for i := len(f.store.txns) - 1; i >= 0; i-- {
		if f.store.txns[i].AccountID == accountID {
			out = append(out, f.store.txns[i])
		}
	}
	return paginate(out, page, pageSize)
}

func (f *fakeTxns) List(_ context.Context, page, pageSize int) ([]*models.Transaction, int, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	out := make([]*models.Transaction, 0, len(f.store.txns))
	for i := len(f.store.txns) - 1; i >= 0; i-- {
		out = append(out, f.store.txns[i])
	}
	return paginate(out, page, pageSize)
}

// paginate applies the repository paging convention so the fakes cannot
// drift from the real list queries.
func paginate(txns []*models.Transaction, page, pageSize int) ([]*models.Transaction, int, error) {
	total := len(txns)
	start := repositories.PageOffset(page, pageSize)
	if start >= total {
		return nil, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return txns[start:end], total, nil
}

func newTestLedger(cfg Config) (*Ledger, *memStore) {
	store := newMemStore()
	l := New(&fakeAccounts{store: store}, &fakeTxns{store: store}, cfg)
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }
	return l, store
}

func (s *memStore) txnCount(accountID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, txn := range s.txns {
		if txn.AccountID == accountID {
			n++
		}
	}
	return n
}

func TestAwardCoins(t *testing.T) {
	ctx := context.Background()

	t.Run("credits and logs", func(t *testing.T) {
		l, store := newTestLedger(Config{DailyEarnCap: 50})

		balance, err := l.AwardCoins(ctx, "user-1", 20, "daily_login", "login streak")
		if err != nil {
			t.Fatalf("AwardCoins: %v", err)
		}
		if balance != 20 {
			t.Errorf("balance = %d, want 20", balance)
		}
		if got := store.txnCount("user-1"); got != 1 {
			t.Errorf("transaction count = %d, want 1", got)
		}
	})

	t.Run("rejects unknown activity", func(t *testing.T) {
		l, _ := newTestLedger(Config{DailyEarnCap: 50})

		_, err := l.AwardCoins(ctx, "user-1", 10, "slot_machine", "")
		if !IsValidationError(err) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		l, _ := newTestLedger(Config{DailyEarnCap: 50})

		if _, err := l.AwardCoins(ctx, "user-1", 0, "daily_login", ""); !IsValidationError(err) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("enforces daily cap atomically", func(t *testing.T) {
		l, store := newTestLedger(Config{DailyEarnCap: 50})

		if _, err := l.AwardCoins(ctx, "user-1", 30, "chat_message", ""); err != nil {
			t.Fatalf("first award: %v", err)
		}

		_, err := l.AwardCoins(ctx, "user-1", 30, "chat_message", "")
		if !errors.Is(err, ErrLimitExceeded) {
			t.Fatalf("expected ErrLimitExceeded, got %v", err)
		}

		balance, err := l.GetBalance(ctx, "user-1")
		if err != nil {
			t.Fatalf("GetBalance: %v", err)
		}
		if balance != 30 {
			t.Errorf("balance after rejected award = %d, want 30", balance)
		}
		if got := store.txnCount("user-1"); got != 1 {
			t.Errorf("transaction count = %d, want 1", got)
		}

		// Filling exactly to the cap still works.
		if _, err := l.AwardCoins(ctx, "user-1", 20, "chat_message", ""); err != nil {
			t.Fatalf("award to cap: %v", err)
		}
	})

	t.Run("cap resets on next local day", func(t *testing.T) {
		l, _ := newTestLedger(Config{DailyEarnCap: 50})
		base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
		now := base
		l.now = func() time.Time { return now }

		if _, err := l.AwardCoins(ctx, "user-1", 50, "event_reward", ""); err != nil {
			t.Fatalf("award: %v", err)
		}
		if _, err := l.AwardCoins(ctx, "user-1", 1, "event_reward", ""); !errors.Is(err, ErrLimitExceeded) {
			t.Fatalf("expected ErrLimitExceeded, got %v", err)
		}

		now = base.AddDate(0, 0, 1)
		balance, err := l.AwardCoins(ctx, "user-1", 50, "event_reward", "")
		if err != nil {
			t.Fatalf("award after reset: %v", err)
		}
		if balance != 100 {
			t.Errorf("balance = %d, want 100", balance)
		}
	})
}

func TestSpendCoins(t *testing.T) {
	ctx := context.Background()

	t.Run("debits balance", func(t *testing.T) {
		l, store := newTestLedger(Config{DailyEarnCap: 50})

		if _, err := l.AwardCoins(ctx, "user-1", 40, "referral", ""); err != nil {
			t.Fatalf("award: %v", err)
		}

		balance, err := l.SpendCoins(ctx, "user-1", 15, "sticker_pack", "")
		if err != nil {
			t.Fatalf("SpendCoins: %v", err)
		}
		if balance != 25 {
			t.Errorf("balance = %d, want 25", balance)
		}

		txns, _, err := l.Transactions(ctx, "user-1", 1, 10)
		if err != nil {
			t.Fatalf("Transactions: %v", err)
		}
		if txns[0].Amount != -15 {
			t.Errorf("spend entry amount = %d, want -15", txns[0].Amount)
		}
		if got := store.txnCount("user-1"); got != 2 {
			t.Errorf("transaction count = %d, want 2", got)
		}
	})

	t.Run("insufficient funds leaves no trace", func(t *testing.T) {
		l, store := newTestLedger(Config{DailyEarnCap: 50})

		if _, err := l.AwardCoins(ctx, "user-1", 10, "referral", ""); err != nil {
			t.Fatalf("award: %v", err)
		}

		_, err := l.SpendCoins(ctx, "user-1", 15, "sticker_pack", "")
		if !errors.Is(err, ErrInsufficientFunds) {
			t.Fatalf("expected ErrInsufficientFunds, got %v", err)
		}

		balance, _ := l.GetBalance(ctx, "user-1")
		if balance != 10 {
			t.Errorf("balance = %d, want 10", balance)
		}
		if got := store.txnCount("user-1"); got != 1 {
			t.Errorf("transaction count = %d, want 1", got)
		}
	})

	t.Run("requires purpose", func(t *testing.T) {
		l, _ := newTestLedger(Config{DailyEarnCap: 50})

		if _, err := l.SpendCoins(ctx, "user-1", 5, "", ""); !IsValidationError(err) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}

func TestPurchaseCoins(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		rate    float64
		fiat    float64
		want    int64
		wantErr bool
	}{
		{name: "whole units", rate: 100, fiat: 2, want: 200},
		{name: "floors fractional coins", rate: 100, fiat: 1.255, want: 125},
		{name: "rejects zero", rate: 100, fiat: 0, wantErr: true},
		{name: "rejects negative", rate: 100, fiat: -3, wantErr: true},
		{name: "rejects sub-coin amount", rate: 0.5, fiat: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newTestLedger(Config{DailyEarnCap: 50, ExchangeRate: tt.rate})

			balance, err := l.PurchaseCoins(ctx, "user-1", tt.fiat)
			if tt.wantErr {
				if !IsValidationError(err) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("PurchaseCoins: %v", err)
			}
			if balance != tt.want {
				t.Errorf("balance = %d, want %d", balance, tt.want)
			}
		})
	}

	t.Run("exempt from daily cap", func(t *testing.T) {
		l, _ := newTestLedger(Config{DailyEarnCap: 50, ExchangeRate: 100})

		if _, err := l.AwardCoins(ctx, "user-1", 50, "daily_login", ""); err != nil {
			t.Fatalf("award: %v", err)
		}
		balance, err := l.PurchaseCoins(ctx, "user-1", 5)
		if err != nil {
			t.Fatalf("PurchaseCoins: %v", err)
		}
		if balance != 550 {
			t.Errorf("balance = %d, want 550", balance)
		}
	})
}

func TestReferencedCredits(t *testing.T) {
	ctx := context.Background()

	t.Run("refund replay is a no-op", func(t *testing.T) {
		l, store := newTestLedger(Config{DailyEarnCap: 50})

		first, err := l.Refund(ctx, "user-1", 35, "losing bid", "refund:tx-abc")
		if err != nil {
			t.Fatalf("Refund: %v", err)
		}
		second, err := l.Refund(ctx, "user-1", 35, "losing bid", "refund:tx-abc")
		if err != nil {
			t.Fatalf("replayed Refund: %v", err)
		}
		if first != 35 || second != 35 {
			t.Errorf("balances = %d, %d, want 35, 35", first, second)
		}
		if got := store.txnCount("user-1"); got != 1 {
			t.Errorf("transaction count = %d, want 1", got)
		}
	})

	t.Run("refund requires reference", func(t *testing.T) {
		l, _ := newTestLedger(Config{DailyEarnCap: 50})

		if _, err := l.Refund(ctx, "user-1", 10, "reason", ""); !IsValidationError(err) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("bonus replay is a no-op", func(t *testing.T) {
		l, store := newTestLedger(Config{DailyEarnCap: 50})

		if _, err := l.GrantBonus(ctx, "user-1", 25, "won position 3", "winbonus:1:3"); err != nil {
			t.Fatalf("GrantBonus: %v", err)
		}
		balance, err := l.GrantBonus(ctx, "user-1", 25, "won position 3", "winbonus:1:3")
		if err != nil {
			t.Fatalf("replayed GrantBonus: %v", err)
		}
		if balance != 25 {
			t.Errorf("balance = %d, want 25", balance)
		}
		if got := store.txnCount("user-1"); got != 1 {
			t.Errorf("transaction count = %d, want 1", got)
		}
	})
}

func TestAdminGrant(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(Config{DailyEarnCap: 50, AdminAccountID: "admin-1"})

	// Grants ignore the earning cap entirely.
	balance, err := l.AdminGrant(ctx, "user-1", 500, "compensation")
	if err != nil {
		t.Fatalf("AdminGrant: %v", err)
	}
	if balance != 500 {
		t.Errorf("balance = %d, want 500", balance)
	}

	if !l.IsAdmin("admin-1") {
		t.Error("IsAdmin(admin-1) = false, want true")
	}
	if l.IsAdmin("user-1") {
		t.Error("IsAdmin(user-1) = true, want false")
	}
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLedger(Config{DailyEarnCap: 50})

	if _, err := l.AwardCoins(ctx, "user-1", 40, "daily_login", ""); err != nil {
		t.Fatalf("award: %v", err)
	}
	if _, err := l.SpendCoins(ctx, "user-1", 15, "sticker_pack", ""); err != nil {
		t.Fatalf("spend: %v", err)
	}

	// Corrupt the cached balance out from under the log.
	store.mu.Lock()
	store.accounts["user-1"].Balance = 999
	store.mu.Unlock()

	account, err := l.Reconcile(ctx, "user-1")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if account.Balance != 25 {
		t.Errorf("reconciled balance = %d, want 25", account.Balance)
	}
	if account.TotalEarned != 40 || account.TotalSpent != 15 {
		t.Errorf("totals = %d earned, %d spent, want 40, 15", account.TotalEarned, account.TotalSpent)
	}

	// The read path must see the corrected balance, not a stale cache hit.
	balance, _ := l.GetBalance(ctx, "user-1")
	if balance != 25 {
		t.Errorf("GetBalance after reconcile = %d, want 25", balance)
	}
}

func TestGetBalanceCacheFillCannotOutliveInvalidation(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	accounts := &fakeAccounts{store: store}
	l := New(accounts, &fakeTxns{store: store}, Config{DailyEarnCap: 50})
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	if _, err := l.AwardCoins(ctx, "user-1", 10, "daily_login", ""); err != nil {
		t.Fatalf("first award: %v", err)
	}

	// Hold a cache-miss reader right after it has snapshotted balance=10,
	// then commit a second award before letting the reader fill the cache.
	snapshotTaken := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	accounts.afterSnapshot = func() {
		once.Do(func() {
			close(snapshotTaken)
			<-release
		})
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := l.GetBalance(ctx, "user-1"); err != nil {
			t.Errorf("GetBalance: %v", err)
		}
	}()

	<-snapshotTaken
	go func() {
		defer wg.Done()
		if _, err := l.AwardCoins(ctx, "user-1", 10, "daily_login", ""); err != nil {
			t.Errorf("second award: %v", err)
		}
	}()

	close(release)
	wg.Wait()

	balance, err := l.GetBalance(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetBalance after both awards: %v", err)
	}
	if balance != 20 {
		t.Errorf("GetBalance after both awards = %d, want 20 (stale fill pinned in the cache)", balance)
	}
}

func TestTransactionsPagination(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(Config{DailyEarnCap: 50, HistoryPage: 10})

	for i := 1; i <= 5; i++ {
		if _, err := l.AwardCoins(ctx, "user-1", int64(i), "chat_message", ""); err != nil {
			t.Fatalf("award %d: %v", i, err)
		}
	}

	txns, total, err := l.Transactions(ctx, "user-1", 1, 3)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(txns) != 3 {
		t.Errorf("page length = %d, want 3", len(txns))
	}
	// Page 1 must start at the newest entry, not skip a page of rows.
	if txns[0].Amount != 5 {
		t.Errorf("first page head amount = %d, want the newest award 5", txns[0].Amount)
	}

	rest, _, err := l.Transactions(ctx, "user-1", 2, 3)
	if err != nil {
		t.Fatalf("Transactions page 2: %v", err)
	}
	if len(rest) != 2 {
		t.Errorf("second page length = %d, want 2", len(rest))
	}
}
