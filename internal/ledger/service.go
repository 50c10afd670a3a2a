package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"surgeonreach_go_backend/internal/models"

	"github.com/rs/zerolog"
)

const (
	// DefaultStartingCredits is granted to every account on first access.
	DefaultStartingCredits = 100

	// MigrationFloor: a never-migrated account holding fewer unified
	// credits than this while still carrying legacy balances is treated
	// as not yet migrated.
	MigrationFloor = 50

	// MigrationMinimumGuarantee is the lowest unified balance a migration
	// may produce.
	MigrationMinimumGuarantee = 100

	migrateAllBatchSize = 500
)

// DebitResult reports a successful feature debit.
type DebitResult struct {
	Feature   string `json:"feature"`
	Cost      int64  `json:"cost"`
	Remaining int64  `json:"remaining"`
}

// MigrationReport summarizes a bulk migration run. On partial failure the
// counts cover what committed before the error.
type MigrationReport struct {
	TotalProcessed int `json:"total_processed"`
	Upgraded       int `json:"upgraded"`
	Skipped        int `json:"skipped"`
}

// Service is the credit-ledger core. All balance reads, debits, top-ups and
// legacy migrations go through here; persistence and its atomicity live in
// the injected Store.
type Service struct {
	store Store
	log   zerolog.Logger
	now   func() time.Time
}

func NewService(store Store, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// EnsureAccount returns the user's account, creating it with the default
// starting balance on first access. Loading an account that still carries
// legacy balances triggers the one-time migration opportunistically.
func (s *Service) EnsureAccount(ctx context.Context, userID string) (*models.Account, error) {
	account, err := s.store.GetAccount(ctx, userID)
	if errors.Is(err, ErrAccountNotFound) {
		account, err = s.store.CreateAccountIfAbsent(ctx, &models.Account{
			UserID:  userID,
			Credits: DefaultStartingCredits,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to bootstrap account: %w", err)
		}
		s.log.Info().Str("user_id", userID).Int("credits", DefaultStartingCredits).Msg("account created")
	} else if err != nil {
		return nil, err
	}

	if migrationDue(account) {
		if _, err := s.Migrate(ctx, userID); err != nil {
			return nil, err
		}
		return s.store.GetAccount(ctx, userID)
	}
	return account, nil
}

// CheckAndDebit charges the feature's catalog cost against the user's
// balance. The check and the decrement happen in one store transaction, so
// concurrent calls can never drive the balance negative. First-time users
// are bootstrapped before the charge.
func (s *Service) CheckAndDebit(ctx context.Context, userID, feature string) (*DebitResult, error) {
	cost, err := FeatureCost(feature)
	if err != nil {
		return nil, err
	}

	if _, err := s.EnsureAccount(ctx, userID); err != nil {
		return nil, err
	}

	remaining, err := s.store.DebitIfSufficient(ctx, userID, feature, cost, s.now())
	if err != nil {
		var insufficient *InsufficientCreditsError
		if errors.As(err, &insufficient) {
			// Expected business outcome, not a fault.
			s.log.Info().
				Str("user_id", userID).
				Str("feature", feature).
				Int64("required", insufficient.Required).
				Int64("current", insufficient.Current).
				Msg("debit rejected: insufficient credits")
		}
		return nil, err
	}

	s.log.Debug().
		Str("user_id", userID).
		Str("feature", feature).
		Int64("cost", cost).
		Int64("remaining", remaining).
		Msg("credits debited")
	return &DebitResult{Feature: feature, Cost: cost, Remaining: remaining}, nil
}

// Credit applies a purchased top-up. sessionID, when non-empty, de-duplicates
// replays of the same checkout session: the balance increases exactly once no
// matter how many times the payment event is delivered. Returns the resulting
// balance and whether the call was a replay.
func (s *Service) Credit(ctx context.Context, userID string, amount int64, sessionID string) (int64, bool, error) {
	if amount <= 0 {
		return 0, false, &InvalidAmountError{Amount: amount}
	}

	// A webhook can land before the user's first API call.
	if _, err := s.EnsureAccount(ctx, userID); err != nil {
		return 0, false, err
	}

	newTotal, duplicate, err := s.store.ApplyCredit(ctx, userID, amount, sessionID, s.now())
	if err != nil {
		return 0, false, err
	}
	if duplicate {
		s.log.Warn().
			Str("user_id", userID).
			Str("session_id", sessionID).
			Msg("credit replayed, already applied")
		return newTotal, true, nil
	}
	s.log.Info().
		Str("user_id", userID).
		Int64("amount", amount).
		Int64("new_total", newTotal).
		Msg("credits purchased")
	return newTotal, false, nil
}

// Migrate consolidates the deprecated dual balances into the unified one,
// at most once per account. Accounts already migrated, holding a healthy
// balance, or without legacy credits are left untouched.
func (s *Service) Migrate(ctx context.Context, userID string) (bool, error) {
	account, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return false, err
	}
	if !migrationDue(account) {
		return false, nil
	}

	applied, newCredits, err := s.store.ApplyMigration(ctx, userID, s.now())
	if err != nil {
		return false, err
	}
	if applied {
		s.log.Info().
			Str("user_id", userID).
			Int64("legacy_total", account.LegacyTotal()).
			Int64("new_credits", newCredits).
			Msg("legacy balances migrated")
	}
	return applied, nil
}

// MigrateAll walks every account in bounded batches and applies the same
// migration logic. The returned report covers everything processed before a
// failure, so an interrupted run can be resumed safely: migration is a no-op
// for accounts it already upgraded.
func (s *Service) MigrateAll(ctx context.Context) (MigrationReport, error) {
	var report MigrationReport
	err := s.store.ForEachAccountBatch(ctx, migrateAllBatchSize, func(accounts []models.Account) error {
		for i := range accounts {
			report.TotalProcessed++
			account := &accounts[i]
			if !migrationDue(account) {
				report.Skipped++
				continue
			}
			upgraded, err := s.Migrate(ctx, account.UserID)
			if err != nil {
				return fmt.Errorf("migrating %s: %w", account.UserID, err)
			}
			if upgraded {
				report.Upgraded++
			} else {
				report.Skipped++
			}
		}
		return nil
	})
	if err != nil {
		return report, err
	}
	s.log.Info().
		Int("total_processed", report.TotalProcessed).
		Int("upgraded", report.Upgraded).
		Int("skipped", report.Skipped).
		Msg("bulk migration finished")
	return report, nil
}

// UsageStats returns the account's consumption snapshot.
func (s *Service) UsageStats(ctx context.Context, userID string) (*UsageStats, error) {
	return s.store.UsageStats(ctx, userID)
}

// migrationDue implements the one-time migration guard. The explicit flag is
// authoritative; the balance floor keeps the original behavior of treating
// low-balance legacy holders as under-migrated, and the legacy check keeps
// spent-down accounts without legacy credits as no-ops.
func migrationDue(account *models.Account) bool {
	if account.Migrated {
		return false
	}
	if account.LegacyTotal() <= 0 {
		return false
	}
	return account.Credits < MigrationFloor
}

// migratedBalance is the unified balance a migration produces.
func migratedBalance(account *models.Account) int64 {
	credits := account.LegacyTotal()
	if credits < MigrationMinimumGuarantee {
		credits = MigrationMinimumGuarantee
	}
	return credits
}
