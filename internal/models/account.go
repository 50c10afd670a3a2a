package models

import (
	"time"

	"github.com/google/uuid"
)

// Account holds the unified credit balance for a single user. The user ID is
// the auth provider's subject claim, so accounts are created lazily on first
// authenticated access rather than at signup.
type Account struct {
	UserID                string `gorm:"primaryKey"`
	Credits               int64  `gorm:"not null;default:0"`
	LegacyAiCredits       int64  `gorm:"not null;default:0"`
	LegacySearchCredits   int64  `gorm:"not null;default:0"`
	TotalCreditsUsed      int64  `gorm:"not null;default:0"`
	TotalCreditsPurchased int64  `gorm:"not null;default:0"`
	Migrated              bool   `gorm:"not null;default:false"`
	MigratedAt            *time.Time
	LastUsedFeature       string
	LastUsageDate         *time.Time
	LastCreditPurchase    *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// LegacyTotal is the sum of the deprecated dual balances. The legacy fields
// stay untouched after migration as a historical record.
func (a *Account) LegacyTotal() int64 {
	return a.LegacyAiCredits + a.LegacySearchCredits
}

type TransactionType string

const (
	TransactionDebit     TransactionType = "debit"
	TransactionPurchase  TransactionType = "purchase"
	TransactionMigration TransactionType = "migration"
)

// CreditTransaction is the append-only ledger of every balance movement.
// StripeSessionID carries a unique index so a replayed checkout session can
// never credit an account twice.
type CreditTransaction struct {
	ID              uuid.UUID       `gorm:"type:uuid;primary_key"`
	UserID          string          `gorm:"index;not null"`
	Type            TransactionType `gorm:"not null"`
	Amount          int64           `gorm:"not null"`
	BalanceAfter    int64           `gorm:"not null"`
	Feature         string
	StripeSessionID *string `gorm:"uniqueIndex"`
	Description     string
	CreatedAt       time.Time
}

// FeatureUsage counts lifetime invocations of one feature by one user.
type FeatureUsage struct {
	ID      uint   `gorm:"primaryKey"`
	UserID  string `gorm:"uniqueIndex:idx_feature_usage_user_feature;not null"`
	Feature string `gorm:"uniqueIndex:idx_feature_usage_user_feature;not null"`
	Count   int64  `gorm:"not null;default:0"`
}

type UsagePeriod string

const (
	PeriodDay   UsagePeriod = "day"
	PeriodMonth UsagePeriod = "month"
)

// UsageBucket is one cell of the per-user usage histogram, keyed by calendar
// day ("2006-01-02") or month ("2006-01").
type UsageBucket struct {
	ID     uint        `gorm:"primaryKey"`
	UserID string      `gorm:"uniqueIndex:idx_usage_bucket_user_period_key;not null"`
	Period UsagePeriod `gorm:"uniqueIndex:idx_usage_bucket_user_period_key;not null"`
	Key    string      `gorm:"uniqueIndex:idx_usage_bucket_user_period_key;not null"`
	Count  int64       `gorm:"not null;default:0"`
}
