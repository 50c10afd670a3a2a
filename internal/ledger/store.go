package ledger

import (
	"context"
	"time"

	"surgeonreach_go_backend/internal/models"
)

// UsageStats is a read-only snapshot of an account's consumption history.
type UsageStats struct {
	TotalCreditsUsed      int64            `json:"total_credits_used"`
	TotalCreditsPurchased int64            `json:"total_credits_purchased"`
	LastUsedFeature       string           `json:"last_used_feature,omitempty"`
	LastUsageDate         *time.Time       `json:"last_usage_date,omitempty"`
	FeatureCounts         map[string]int64 `json:"feature_counts"`
	DailyUsage            map[string]int64 `json:"daily_usage"`
	MonthlyUsage          map[string]int64 `json:"monthly_usage"`
}

// Store is the persistence contract for the ledger. Implementations own the
// atomicity of the conditional operations: DebitIfSufficient must check and
// decrement in a single transaction scoped to the account row, ApplyCredit
// must de-duplicate by checkout session id, and ApplyMigration must apply at
// most once per account.
type Store interface {
	// GetAccount returns the account or ErrAccountNotFound.
	GetAccount(ctx context.Context, userID string) (*models.Account, error)

	// CreateAccountIfAbsent creates the account unless one already exists
	// and returns the stored row either way. Concurrent callers for the
	// same user must not clobber each other.
	CreateAccountIfAbsent(ctx context.Context, account *models.Account) (*models.Account, error)

	// DebitIfSufficient atomically decrements the balance by cost if and
	// only if the current balance covers it, bumping the lifetime-used
	// counter, the feature counter, the day and month histogram buckets
	// and the last-used fields in the same transaction. Returns the
	// post-debit balance, or InsufficientCreditsError carrying the
	// unchanged balance, or ErrAccountNotFound.
	DebitIfSufficient(ctx context.Context, userID, feature string, cost int64, now time.Time) (int64, error)

	// ApplyCredit atomically increments the balance and the
	// lifetime-purchased counter and stamps the purchase time. When
	// sessionID is non-empty and has been applied before, nothing changes
	// and duplicate is true. Returns the resulting balance.
	ApplyCredit(ctx context.Context, userID string, amount int64, sessionID string, now time.Time) (newTotal int64, duplicate bool, err error)

	// ApplyMigration consolidates the legacy balances into the unified
	// one, setting the migrated flag. The migration guard is re-evaluated
	// atomically with the write, so a credit or debit that committed after
	// the caller's read is never overwritten. Returns whether the
	// migration applied and the resulting balance.
	ApplyMigration(ctx context.Context, userID string, now time.Time) (applied bool, newCredits int64, err error)

	// ForEachAccountBatch walks every account in batches of batchSize,
	// stopping at the first callback error.
	ForEachAccountBatch(ctx context.Context, batchSize int, fn func(accounts []models.Account) error) error

	// UsageStats assembles the usage snapshot or returns ErrAccountNotFound.
	UsageStats(ctx context.Context, userID string) (*UsageStats, error)
}

const (
	dayKeyFormat   = "2006-01-02"
	monthKeyFormat = "2006-01"
)

// DayKey formats t as a daily histogram bucket key.
func DayKey(t time.Time) string { return t.UTC().Format(dayKeyFormat) }

// MonthKey formats t as a monthly histogram bucket key.
func MonthKey(t time.Time) string { return t.UTC().Format(monthKeyFormat) }
