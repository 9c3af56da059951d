package service

import (
	"context"
	"math/rand"
	"sync"
	"testing"

	"opsdesk/internal/cache"
	"opsdesk/internal/models"
	"opsdesk/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInventory(t *testing.T) *InventoryService {
	t.Helper()
	db := newTestDB(t)
	return NewInventoryService(db, repository.NewInventoryRepository(db), nil)
}

// setupTestCache points the cache package at a throwaway miniredis and
// restores the nil client afterwards.
func setupTestCache(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	cache.SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { cache.SetClient(nil) })
	return mr
}

func TestCreateItem_OpeningBalance(t *testing.T) {
	inv := newInventory(t)
	ctx := context.Background()

	item, err := inv.CreateItem(ctx, &models.InventoryItem{
		Name:            "paper towels",
		CurrentQuantity: 12,
		MinimumQuantity: 3,
	}, "clerk-1")
	require.NoError(t, err)

	// The opening quantity arrives as the first ledger entry.
	ledger, err := inv.Ledger(ctx, item.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, models.TxAdd, ledger[0].TransactionType)
	assert.Equal(t, int64(12), ledger[0].Delta)
	assert.Equal(t, int64(12), ledger[0].ResultingQuantity)
	assert.Equal(t, int64(1), ledger[0].Sequence)

	got, err := inv.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12), got.CurrentQuantity)
}

func TestAdjust_ChainInvariant(t *testing.T) {
	inv := newInventory(t)
	ctx := context.Background()

	item, err := inv.CreateItem(ctx, &models.InventoryItem{Name: "gloves"}, "clerk-1")
	require.NoError(t, err)

	deltas := []int64{10, -3, 5, -7, 1}
	for _, d := range deltas {
		txType := models.TxAdd
		if d < 0 {
			txType = models.TxRemove
		}
		_, err := inv.Adjust(ctx, item.ID, d, txType, nil, "clerk-1")
		require.NoError(t, err)
	}

	ledger, err := inv.Ledger(ctx, item.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, ledger, len(deltas))

	running := int64(0)
	for i, entry := range ledger {
		running += entry.Delta
		assert.Equal(t, running, entry.ResultingQuantity)
		assert.Equal(t, int64(i+1), entry.Sequence)
	}

	derived, err := inv.QuantityFromLedger(ctx, item.ID)
	require.NoError(t, err)
	snapshot, err := inv.CurrentQuantity(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, derived, snapshot)
	assert.Equal(t, int64(6), derived)
}

func TestCreateItem_FailedCreateWritesNothing(t *testing.T) {
	inv := newInventory(t)
	ctx := context.Background()

	first, err := inv.CreateItem(ctx, &models.InventoryItem{
		ID:              "clips-1",
		Name:            "binder clips",
		CurrentQuantity: 5,
	}, "clerk-1")
	require.NoError(t, err)

	_, err = inv.CreateItem(ctx, &models.InventoryItem{
		ID:              first.ID,
		Name:            "binder clips again",
		CurrentQuantity: 7,
	}, "clerk-1")
	require.Error(t, err)

	// Item row and opening entry share one transaction: the failed create
	// left neither behind.
	ledger, err := inv.Ledger(ctx, first.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, int64(5), ledger[0].ResultingQuantity)

	got, err := inv.GetItem(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "binder clips", got.Name)
	assert.Equal(t, int64(5), got.CurrentQuantity)
}

func TestAdjust_RandomizedSequenceMatchesLedger(t *testing.T) {
	inv := newInventory(t)
	ctx := context.Background()

	item, err := inv.CreateItem(ctx, &models.InventoryItem{
		Name:            "cable ties",
		CurrentQuantity: 20,
	}, "clerk-1")
	require.NoError(t, err)

	// Fixed seed keeps the run reproducible; the walk still hits rejected
	// underflows along the way.
	rng := rand.New(rand.NewSource(7))
	expected := int64(20)
	for i := 0; i < 200; i++ {
		delta := int64(rng.Intn(11) - 5)
		if delta == 0 {
			continue
		}
		txType := models.TxAdd
		if delta < 0 {
			txType = models.TxRemove
		}

		entry, err := inv.Adjust(ctx, item.ID, delta, txType, nil, "clerk-1")
		if expected+delta < 0 {
			require.Error(t, err)
			appErr, ok := err.(*models.AppError)
			require.True(t, ok)
			require.Equal(t, models.CodeInsufficientStock, appErr.Code)
			continue
		}
		require.NoError(t, err)
		expected += delta
		require.Equal(t, expected, entry.ResultingQuantity)
	}

	derived, err := inv.QuantityFromLedger(ctx, item.ID)
	require.NoError(t, err)
	snapshot, err := inv.CurrentQuantity(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, expected, derived)
	assert.Equal(t, derived, snapshot)
}

func TestCurrentQuantity_CacheRoundTrip(t *testing.T) {
	mr := setupTestCache(t)
	inv := newInventory(t)
	ctx := context.Background()

	item, err := inv.CreateItem(ctx, &models.InventoryItem{
		Name:            "badge holders",
		CurrentQuantity: 10,
	}, "clerk-1")
	require.NoError(t, err)

	// First read populates the cache.
	quantity, err := inv.CurrentQuantity(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), quantity)
	assert.True(t, mr.Exists(cache.ItemQuantityKey(item.ID)))

	// Subsequent reads come from the cache, not the snapshot.
	require.NoError(t, mr.Set(cache.ItemQuantityKey(item.ID), "99"))
	quantity, err = inv.CurrentQuantity(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(99), quantity)

	// An append drops the entry so the next read sees the new quantity.
	_, err = inv.Adjust(ctx, item.ID, 5, models.TxAdd, nil, "clerk-1")
	require.NoError(t, err)
	assert.False(t, mr.Exists(cache.ItemQuantityKey(item.ID)))

	quantity, err = inv.CurrentQuantity(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(15), quantity)
}

func TestAdjust_InsufficientStock(t *testing.T) {
	inv := newInventory(t)
	ctx := context.Background()

	item, err := inv.CreateItem(ctx, &models.InventoryItem{
		Name:            "bulbs",
		CurrentQuantity: 3,
	}, "clerk-1")
	require.NoError(t, err)

	_, err = inv.Adjust(ctx, item.ID, -5, models.TxRemove, nil, "clerk-1")
	require.Error(t, err)
	appErr, ok := err.(*models.AppError)
	require.True(t, ok)
	assert.Equal(t, models.CodeInsufficientStock, appErr.Code)

	// Nothing was written.
	ledger, err := inv.Ledger(ctx, item.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, ledger, 1)

	quantity, err := inv.CurrentQuantity(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), quantity)
}

func TestAdjust_CompetingRemovalsOnlyOneWins(t *testing.T) {
	inv := newInventory(t)
	ctx := context.Background()

	item, err := inv.CreateItem(ctx, &models.InventoryItem{
		Name:            "keycards",
		CurrentQuantity: 5,
		MinimumQuantity: 3,
	}, "clerk-1")
	require.NoError(t, err)

	// 5 on hand cannot satisfy both a -4 and a -3; exactly one must win.
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, delta := range []int64{-4, -3} {
		wg.Add(1)
		go func(d int64) {
			defer wg.Done()
			_, err := inv.Adjust(ctx, item.ID, d, models.TxRemove, nil, "clerk-1")
			errs <- err
		}(delta)
	}
	wg.Wait()
	close(errs)

	var failures int
	for err := range errs {
		if err != nil {
			appErr, ok := err.(*models.AppError)
			require.True(t, ok)
			assert.Equal(t, models.CodeInsufficientStock, appErr.Code)
			failures++
		}
	}
	assert.Equal(t, 1, failures)

	quantity, err := inv.QuantityFromLedger(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, quantity == 1 || quantity == 2, "quantity %d", quantity)
}

func TestAdjust_RejectsBadInput(t *testing.T) {
	inv := newInventory(t)
	ctx := context.Background()

	item, err := inv.CreateItem(ctx, &models.InventoryItem{Name: "tape"}, "clerk-1")
	require.NoError(t, err)

	_, err = inv.Adjust(ctx, item.ID, 0, models.TxAdd, nil, "clerk-1")
	require.Error(t, err)

	_, err = inv.Adjust(ctx, item.ID, 1, "teleport", nil, "clerk-1")
	require.Error(t, err)

	_, err = inv.Adjust(ctx, "no-such-item", 1, models.TxAdd, nil, "clerk-1")
	require.Error(t, err)
}

func TestAdjust_ConcurrentAdjustmentsLinearize(t *testing.T) {
	inv := newInventory(t)
	ctx := context.Background()

	item, err := inv.CreateItem(ctx, &models.InventoryItem{
		Name:            "markers",
		CurrentQuantity: 100,
	}, "clerk-1")
	require.NoError(t, err)

	const workers = 20
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(n int) {
			defer wg.Done()
			delta := int64(1)
			txType := models.TxAdd
			if n%2 == 0 {
				delta = -1
				txType = models.TxRemove
			}
			_, err := inv.Adjust(ctx, item.ID, delta, txType, nil, "clerk-1")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Equal adds and removes: quantity is back where it started and the
	// chain has no gaps or duplicate sequence numbers.
	ledger, err := inv.Ledger(ctx, item.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, ledger, workers+1)

	running := int64(0)
	for i, entry := range ledger {
		running += entry.Delta
		require.Equal(t, running, entry.ResultingQuantity)
		require.Equal(t, int64(i+1), entry.Sequence)
	}
	assert.Equal(t, int64(100), running)
}

func TestFulfillLines_AllOrNothing(t *testing.T) {
	inv := newInventory(t)
	ctx := context.Background()

	plenty, err := inv.CreateItem(ctx, &models.InventoryItem{Name: "cups", CurrentQuantity: 50}, "clerk-1")
	require.NoError(t, err)
	scarce, err := inv.CreateItem(ctx, &models.InventoryItem{Name: "lids", CurrentQuantity: 1}, "clerk-1")
	require.NoError(t, err)

	err = inv.FulfillLines(ctx, "req-1", []models.RequestLine{
		{ItemID: plenty.ID, Quantity: 10},
		{ItemID: scarce.ID, Quantity: 5},
	}, "system")
	require.Error(t, err)

	// The sufficient line must not have been consumed either.
	quantity, err := inv.QuantityFromLedger(ctx, plenty.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), quantity)

	err = inv.FulfillLines(ctx, "req-2", []models.RequestLine{
		{ItemID: plenty.ID, Quantity: 10},
		{ItemID: scarce.ID, Quantity: 1},
	}, "system")
	require.NoError(t, err)

	quantity, err = inv.QuantityFromLedger(ctx, scarce.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), quantity)
}

func TestLowStockReport(t *testing.T) {
	inv := newInventory(t)
	ctx := context.Background()

	_, err := inv.CreateItem(ctx, &models.InventoryItem{Name: "ok", CurrentQuantity: 10, MinimumQuantity: 2}, "clerk-1")
	require.NoError(t, err)
	low, err := inv.CreateItem(ctx, &models.InventoryItem{Name: "low", CurrentQuantity: 1, MinimumQuantity: 5}, "clerk-1")
	require.NoError(t, err)
	out, err := inv.CreateItem(ctx, &models.InventoryItem{Name: "out", MinimumQuantity: 5}, "clerk-1")
	require.NoError(t, err)

	report, err := inv.LowStockReport(ctx)
	require.NoError(t, err)
	require.Len(t, report, 2)

	ids := map[string]bool{report[0].ID: true, report[1].ID: true}
	assert.True(t, ids[low.ID])
	assert.True(t, ids[out.ID])
}
