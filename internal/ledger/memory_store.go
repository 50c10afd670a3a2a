package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"surgeonreach_go_backend/internal/models"
)

// MemoryStore is an in-process Store used by tests and by local development
// without Postgres. A single mutex stands in for the database transaction,
// giving the same conditional-debit and de-duplication guarantees.
type MemoryStore struct {
	mu        sync.Mutex
	accounts  map[string]*models.Account
	features  map[string]map[string]int64
	buckets   map[string]map[models.UsagePeriod]map[string]int64
	processed map[string]bool
	events    []models.CreditTransaction
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  map[string]*models.Account{},
		features:  map[string]map[string]int64{},
		buckets:   map[string]map[models.UsagePeriod]map[string]int64{},
		processed: map[string]bool{},
	}
}

func (s *MemoryStore) GetAccount(ctx context.Context, userID string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[userID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	snapshot := *account
	return &snapshot, nil
}

func (s *MemoryStore) CreateAccountIfAbsent(ctx context.Context, account *models.Account) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.accounts[account.UserID]; ok {
		snapshot := *existing
		return &snapshot, nil
	}
	stored := *account
	s.accounts[account.UserID] = &stored
	snapshot := stored
	return &snapshot, nil
}

// SeedAccount installs an account verbatim, for tests that need legacy
// balances or pre-spent state.
func (s *MemoryStore) SeedAccount(account models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := account
	s.accounts[account.UserID] = &stored
}

func (s *MemoryStore) DebitIfSufficient(ctx context.Context, userID, feature string, cost int64, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[userID]
	if !ok {
		return 0, ErrAccountNotFound
	}
	if account.Credits < cost {
		return 0, &InsufficientCreditsError{Required: cost, Current: account.Credits}
	}
	account.Credits -= cost
	account.TotalCreditsUsed += cost
	account.LastUsedFeature = feature
	usageDate := now
	account.LastUsageDate = &usageDate

	if s.features[userID] == nil {
		s.features[userID] = map[string]int64{}
	}
	s.features[userID][feature]++
	s.bumpBucket(userID, models.PeriodDay, DayKey(now))
	s.bumpBucket(userID, models.PeriodMonth, MonthKey(now))

	s.events = append(s.events, models.CreditTransaction{
		UserID:       userID,
		Type:         models.TransactionDebit,
		Amount:       -cost,
		BalanceAfter: account.Credits,
		Feature:      feature,
		CreatedAt:    now,
	})
	return account.Credits, nil
}

func (s *MemoryStore) ApplyCredit(ctx context.Context, userID string, amount int64, sessionID string, now time.Time) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[userID]
	if !ok {
		return 0, false, ErrAccountNotFound
	}
	if sessionID != "" && s.processed[sessionID] {
		return account.Credits, true, nil
	}
	account.Credits += amount
	account.TotalCreditsPurchased += amount
	purchase := now
	account.LastCreditPurchase = &purchase
	if sessionID != "" {
		s.processed[sessionID] = true
	}
	s.events = append(s.events, models.CreditTransaction{
		UserID:       userID,
		Type:         models.TransactionPurchase,
		Amount:       amount,
		BalanceAfter: account.Credits,
		CreatedAt:    now,
	})
	return account.Credits, false, nil
}

func (s *MemoryStore) ApplyMigration(ctx context.Context, userID string, now time.Time) (bool, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[userID]
	if !ok {
		return false, 0, ErrAccountNotFound
	}
	// Same re-check the database store runs under its row lock.
	if !migrationDue(account) {
		return false, 0, nil
	}
	newCredits := migratedBalance(account)
	account.Credits = newCredits
	account.Migrated = true
	migratedAt := now
	account.MigratedAt = &migratedAt
	s.events = append(s.events, models.CreditTransaction{
		UserID:       userID,
		Type:         models.TransactionMigration,
		Amount:       newCredits,
		BalanceAfter: newCredits,
		CreatedAt:    now,
	})
	return true, newCredits, nil
}

func (s *MemoryStore) ForEachAccountBatch(ctx context.Context, batchSize int, fn func(accounts []models.Account) error) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	all := make([]models.Account, 0, len(ids))
	for _, id := range ids {
		all = append(all, *s.accounts[id])
	}
	s.mu.Unlock()

	for start := 0; start < len(all); start += batchSize {
		end := start + batchSize
		if end > len(all) {
			end = len(all)
		}
		if err := fn(all[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) UsageStats(ctx context.Context, userID string) (*UsageStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[userID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	stats := &UsageStats{
		TotalCreditsUsed:      account.TotalCreditsUsed,
		TotalCreditsPurchased: account.TotalCreditsPurchased,
		LastUsedFeature:       account.LastUsedFeature,
		LastUsageDate:         account.LastUsageDate,
		FeatureCounts:         map[string]int64{},
		DailyUsage:            map[string]int64{},
		MonthlyUsage:          map[string]int64{},
	}
	for feature, count := range s.features[userID] {
		stats.FeatureCounts[feature] = count
	}
	for key, count := range s.buckets[userID][models.PeriodDay] {
		stats.DailyUsage[key] = count
	}
	for key, count := range s.buckets[userID][models.PeriodMonth] {
		stats.MonthlyUsage[key] = count
	}
	return stats, nil
}

// Events returns a copy of the append-only transaction log.
func (s *MemoryStore) Events() []models.CreditTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := make([]models.CreditTransaction, len(s.events))
	copy(events, s.events)
	return events
}

func (s *MemoryStore) bumpBucket(userID string, period models.UsagePeriod, key string) {
	if s.buckets[userID] == nil {
		s.buckets[userID] = map[models.UsagePeriod]map[string]int64{}
	}
	if s.buckets[userID][period] == nil {
		s.buckets[userID][period] = map[string]int64{}
	}
	s.buckets[userID][period][key]++
}
