package ledger

import (
	"context"
	"testing"
	"time"

	"surgeonreach_go_backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRecordsLedgerEvents(t *testing.T) {
	store := NewMemoryStore()
	store.SeedAccount(models.Account{UserID: "user-1", Credits: 10})
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	_, err := store.DebitIfSufficient(ctx, "user-1", FeatureDraftEmail, 2, now)
	require.NoError(t, err)
	_, _, err = store.ApplyCredit(ctx, "user-1", 25, "cs_ev", now)
	require.NoError(t, err)

	events := store.Events()
	require.Len(t, events, 2)
	assert.Equal(t, models.TransactionDebit, events[0].Type)
	assert.Equal(t, int64(-2), events[0].Amount)
	assert.Equal(t, int64(8), events[0].BalanceAfter)
	assert.Equal(t, models.TransactionPurchase, events[1].Type)
	assert.Equal(t, int64(33), events[1].BalanceAfter)
}

func TestMemoryStoreBatchesAccounts(t *testing.T) {
	store := NewMemoryStore()
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		store.SeedAccount(models.Account{UserID: id})
	}

	var batches [][]models.Account
	err := store.ForEachAccountBatch(context.Background(), 2, func(accounts []models.Account) error {
		batch := make([]models.Account, len(accounts))
		copy(batch, accounts)
		batches = append(batches, batch)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[2], 1)
}
