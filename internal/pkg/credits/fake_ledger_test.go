package credits

import (
	"sort"
	"sync"
	"time"

	"github.com/ManuelReschke/CreditFox/app/models"
	"github.com/ManuelReschke/CreditFox/app/repository"
	"gorm.io/gorm"
)

// fakeLedger is an in-memory LedgerRepository. It mirrors the SQL filtering
// and ordering of the real repository so the service logic can be tested
// without a database.
type fakeLedger struct {
	mu       sync.Mutex
	balances map[uint]*models.UserCredit
	txns     []*models.CreditTransaction
	nextID   uint
	baseTime time.Time
}

var _ repository.LedgerRepository = (*fakeLedger)(nil)

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		balances: make(map[uint]*models.UserCredit),
		baseTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeLedger) WithTx(tx *gorm.DB) repository.LedgerRepository { return f }

func (f *fakeLedger) FindUserCredit(userID uint) (*models.UserCredit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uc, ok := f.balances[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *uc
	return &cp, nil
}

func (f *fakeLedger) FindUserCreditForUpdate(userID uint) (*models.UserCredit, error) {
	return f.FindUserCredit(userID)
}

func (f *fakeLedger) UpsertUserCreditAdd(userID uint, delta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if uc, ok := f.balances[userID]; ok {
		uc.CurrentCredits += delta
		return nil
	}
	f.nextID++
	f.balances[userID] = &models.UserCredit{ID: f.nextID, UserID: userID, CurrentCredits: delta}
	return nil
}

func (f *fakeLedger) UpdateUserCredits(userID uint, balance int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	uc, ok := f.balances[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	uc.CurrentCredits = balance
	return nil
}

func (f *fakeLedger) InsertTransaction(txn *models.CreditTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Mirrors the unique index on (user_id, type, period_scope).
	if txn.PeriodKey > 0 {
		for _, t := range f.txns {
			if t.UserID == txn.UserID && t.Type == txn.Type && t.PeriodKey == txn.PeriodKey {
				return gorm.ErrDuplicatedKey
			}
		}
	}
	f.nextID++
	txn.ID = f.nextID
	if txn.CreatedAt.IsZero() {
		// Monotonic timestamps keep FIFO tie-breaking deterministic.
		txn.CreatedAt = f.baseTime.Add(time.Duration(f.nextID) * time.Second)
	}
	cp := *txn
	f.txns = append(f.txns, &cp)
	return nil
}

func isLedgerGrant(t *models.CreditTransaction) bool {
	return t.Type != models.CreditTypeUsage && t.Type != models.CreditTypeExpire
}

func (f *fakeLedger) FindFifoEligibleTransactions(userID uint, now time.Time) ([]models.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var lots []models.CreditTransaction
	for _, t := range f.txns {
		if t.UserID != userID || !isLedgerGrant(t) {
			continue
		}
		if t.RemainingAmount == nil || *t.RemainingAmount <= 0 {
			continue
		}
		if t.ExpirationDate != nil && !t.ExpirationDate.After(now) {
			continue
		}
		lots = append(lots, *t)
	}
	sort.SliceStable(lots, func(i, j int) bool {
		a, b := lots[i], lots[j]
		switch {
		case a.ExpirationDate == nil && b.ExpirationDate != nil:
			return false
		case a.ExpirationDate != nil && b.ExpirationDate == nil:
			return true
		case a.ExpirationDate != nil && b.ExpirationDate != nil && !a.ExpirationDate.Equal(*b.ExpirationDate):
			return a.ExpirationDate.Before(*b.ExpirationDate)
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	})
	return lots, nil
}

func (f *fakeLedger) UpdateTransactionRemainingAmount(id uint, remaining int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.txns {
		if t.ID == id {
			r := remaining
			t.RemainingAmount = &r
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeLedger) FindExpirableTransactions(userID uint, now time.Time) ([]models.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var lots []models.CreditTransaction
	for _, t := range f.txns {
		if t.UserID != userID || !isLedgerGrant(t) {
			continue
		}
		if t.ExpirationDate == nil || t.ExpirationDate.After(now) {
			continue
		}
		if t.ExpirationDateProcessedAt != nil {
			continue
		}
		lots = append(lots, *t)
	}
	sort.SliceStable(lots, func(i, j int) bool {
		a, b := lots[i], lots[j]
		if !a.ExpirationDate.Equal(*b.ExpirationDate) {
			return a.ExpirationDate.Before(*b.ExpirationDate)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return lots, nil
}

func (f *fakeLedger) MarkTransactionExpired(id uint, processedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.txns {
		if t.ID == id {
			zero := int64(0)
			t.RemainingAmount = &zero
			p := processedAt
			t.ExpirationDateProcessedAt = &p
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeLedger) FindTransactionByTypeAndPeriodKey(userID uint, creditType string, periodKey int) (*models.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.txns {
		if t.UserID == userID && t.Type == creditType && t.PeriodKey == periodKey {
			cp := *t
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeLedger) FindTransactionByTypeInMonth(userID uint, creditType string, year int, month time.Month) (*models.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.txns {
		if t.UserID == userID && t.Type == creditType &&
			t.CreatedAt.Year() == year && t.CreatedAt.Month() == month {
			cp := *t
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeLedger) FindFirstTransactionOfType(userID uint, creditType string) (*models.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var oldest *models.CreditTransaction
	for _, t := range f.txns {
		if t.UserID != userID || t.Type != creditType {
			continue
		}
		if oldest == nil || t.CreatedAt.Before(oldest.CreatedAt) {
			oldest = t
		}
	}
	if oldest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *oldest
	return &cp, nil
}

func (f *fakeLedger) FindUserIDsWithExpirableLots(now time.Time, offset, limit int) ([]uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[uint]bool)
	var ids []uint
	for _, t := range f.txns {
		if !isLedgerGrant(t) || seen[t.UserID] {
			continue
		}
		if t.ExpirationDate == nil || t.ExpirationDate.After(now) {
			continue
		}
		if t.ExpirationDateProcessedAt != nil {
			continue
		}
		if t.RemainingAmount == nil || *t.RemainingAmount <= 0 {
			continue
		}
		seen[t.UserID] = true
		ids = append(ids, t.UserID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if offset >= len(ids) {
		return nil, nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	return ids[offset:end], nil
}

func (f *fakeLedger) ListTransactionsByUser(userID uint, offset, limit int) ([]models.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var txns []models.CreditTransaction
	for _, t := range f.txns {
		if t.UserID == userID {
			txns = append(txns, *t)
		}
	}
	sort.SliceStable(txns, func(i, j int) bool {
		if !txns[i].CreatedAt.Equal(txns[j].CreatedAt) {
			return txns[i].CreatedAt.After(txns[j].CreatedAt)
		}
		return txns[i].ID > txns[j].ID
	})
	if offset >= len(txns) {
		return nil, nil
	}
	end := offset + limit
	if end > len(txns) {
		end = len(txns)
	}
	return txns[offset:end], nil
}

// balance is a test helper reading the raw balance value.
func (f *fakeLedger) balance(userID uint) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if uc, ok := f.balances[userID]; ok {
		return uc.CurrentCredits
	}
	return 0
}

// remainingTotal sums remaining_amount over all unexpired grant lots.
func (f *fakeLedger) remainingTotal(userID uint, now time.Time) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, t := range f.txns {
		if t.UserID != userID || !isLedgerGrant(t) || t.RemainingAmount == nil {
			continue
		}
		if t.ExpirationDate != nil && !t.ExpirationDate.After(now) {
			continue
		}
		total += *t.RemainingAmount
	}
	return total
}

func (f *fakeLedger) transactionsOfType(userID uint, creditType string) []models.CreditTransaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var txns []models.CreditTransaction
	for _, t := range f.txns {
		if t.UserID == userID && t.Type == creditType {
			txns = append(txns, *t)
		}
	}
	return txns
}
