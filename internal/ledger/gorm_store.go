package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"surgeonreach_go_backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore persists the ledger in Postgres through gorm. Every conditional
// operation runs inside a single database transaction keyed on the account
// row, so two concurrent debits can never both pass the balance check.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetAccount(ctx context.Context, userID string) (*models.Account, error) {
	var account models.Account
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (s *GormStore) CreateAccountIfAbsent(ctx context.Context, account *models.Account) (*models.Account, error) {
	// ON CONFLICT DO NOTHING keeps a concurrent creator's counters intact.
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(account).Error
	if err != nil {
		return nil, err
	}
	return s.GetAccount(ctx, account.UserID)
}

func (s *GormStore) DebitIfSufficient(ctx context.Context, userID, feature string, cost int64, now time.Time) (int64, error) {
	var remaining int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Account{}).
			Where("user_id = ? AND credits >= ?", userID, cost).
			Updates(map[string]interface{}{
				"credits":            gorm.Expr("credits - ?", cost),
				"total_credits_used": gorm.Expr("total_credits_used + ?", cost),
				"last_used_feature":  feature,
				"last_usage_date":    now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var account models.Account
			if err := tx.Where("user_id = ?", userID).First(&account).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrAccountNotFound
				}
				return err
			}
			return &InsufficientCreditsError{Required: cost, Current: account.Credits}
		}

		var account models.Account
		if err := tx.Where("user_id = ?", userID).First(&account).Error; err != nil {
			return err
		}
		remaining = account.Credits

		if err := bumpFeatureCount(tx, userID, feature); err != nil {
			return err
		}
		if err := bumpBucket(tx, userID, models.PeriodDay, DayKey(now)); err != nil {
			return err
		}
		if err := bumpBucket(tx, userID, models.PeriodMonth, MonthKey(now)); err != nil {
			return err
		}

		event := &models.CreditTransaction{
			ID:           uuid.New(),
			UserID:       userID,
			Type:         models.TransactionDebit,
			Amount:       -cost,
			BalanceAfter: remaining,
			Feature:      feature,
			CreatedAt:    now,
		}
		return tx.Create(event).Error
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// errDuplicateCredit aborts the credit transaction without applying anything
// when the session id has already been processed.
var errDuplicateCredit = errors.New("duplicate credit")

func (s *GormStore) ApplyCredit(ctx context.Context, userID string, amount int64, sessionID string, now time.Time) (int64, bool, error) {
	var newTotal int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event := &models.CreditTransaction{
			ID:        uuid.New(),
			UserID:    userID,
			Type:      models.TransactionPurchase,
			Amount:    amount,
			CreatedAt: now,
		}
		if sessionID != "" {
			event.StripeSessionID = &sessionID
		}
		if err := tx.Create(event).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errDuplicateCredit
			}
			return err
		}

		res := tx.Model(&models.Account{}).
			Where("user_id = ?", userID).
			Updates(map[string]interface{}{
				"credits":                 gorm.Expr("credits + ?", amount),
				"total_credits_purchased": gorm.Expr("total_credits_purchased + ?", amount),
				"last_credit_purchase":    now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAccountNotFound
		}

		var account models.Account
		if err := tx.Where("user_id = ?", userID).First(&account).Error; err != nil {
			return err
		}
		newTotal = account.Credits
		return tx.Model(event).Update("balance_after", newTotal).Error
	})
	if errors.Is(err, errDuplicateCredit) {
		account, getErr := s.GetAccount(ctx, userID)
		if getErr != nil {
			return 0, true, getErr
		}
		return account.Credits, true, nil
	}
	if err != nil {
		return 0, false, err
	}
	return newTotal, false, nil
}

func (s *GormStore) ApplyMigration(ctx context.Context, userID string, now time.Time) (bool, int64, error) {
	applied := false
	var newCredits int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account models.Account
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&account).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAccountNotFound
			}
			return err
		}

		// The guard runs again under the row lock. A top-up that committed
		// after the caller's read lifts the balance past the floor and the
		// migration backs off instead of overwriting it.
		if !migrationDue(&account) {
			return nil
		}

		newCredits = migratedBalance(&account)
		res := tx.Model(&models.Account{}).
			Where("user_id = ?", userID).
			Updates(map[string]interface{}{
				"credits":     newCredits,
				"migrated":    true,
				"migrated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		applied = true
		event := &models.CreditTransaction{
			ID:           uuid.New(),
			UserID:       userID,
			Type:         models.TransactionMigration,
			Amount:       newCredits,
			BalanceAfter: newCredits,
			Description:  "legacy balance migration",
			CreatedAt:    now,
		}
		return tx.Create(event).Error
	})
	if err != nil {
		return false, 0, err
	}
	return applied, newCredits, nil
}

func (s *GormStore) ForEachAccountBatch(ctx context.Context, batchSize int, fn func(accounts []models.Account) error) error {
	var accounts []models.Account
	result := s.db.WithContext(ctx).FindInBatches(&accounts, batchSize, func(tx *gorm.DB, batch int) error {
		return fn(accounts)
	})
	return result.Error
}

func (s *GormStore) UsageStats(ctx context.Context, userID string) (*UsageStats, error) {
	account, err := s.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
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

	var usages []models.FeatureUsage
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&usages).Error; err != nil {
		return nil, err
	}
	for _, u := range usages {
		stats.FeatureCounts[u.Feature] = u.Count
	}

	var buckets []models.UsageBucket
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&buckets).Error; err != nil {
		return nil, err
	}
	for _, b := range buckets {
		switch b.Period {
		case models.PeriodDay:
			stats.DailyUsage[b.Key] = b.Count
		case models.PeriodMonth:
			stats.MonthlyUsage[b.Key] = b.Count
		default:
			return nil, fmt.Errorf("unexpected usage period %q", b.Period)
		}
	}
	return stats, nil
}

func bumpFeatureCount(tx *gorm.DB, userID, feature string) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "feature"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("feature_usages.count + 1")}),
	}).Create(&models.FeatureUsage{UserID: userID, Feature: feature, Count: 1}).Error
}

func bumpBucket(tx *gorm.DB, userID string, period models.UsagePeriod, key string) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "period"}, {Name: "key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("usage_buckets.count + 1")}),
	}).Create(&models.UsageBucket{UserID: userID, Period: period, Key: key, Count: 1}).Error
}
