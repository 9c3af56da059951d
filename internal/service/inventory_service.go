package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"opsdesk/internal/cache"
	"opsdesk/internal/middleware"
	"opsdesk/internal/models"
	"opsdesk/internal/notifications"
	"opsdesk/internal/observability"
	"opsdesk/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InventoryService owns the append-only ledger and the derived quantity
// snapshot. Every quantity change funnels through Adjust (or FulfillLines for
// multi-item consumption); nothing else writes ledger entries.
type InventoryService struct {
	db       *gorm.DB
	repo     repository.InventoryRepository
	notifier *notifications.Notifier

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewInventoryService returns a new InventoryService.
func NewInventoryService(db *gorm.DB, repo repository.InventoryRepository, notifier *notifications.Notifier) *InventoryService {
	return &InventoryService{
		db:       db,
		repo:     repo,
		notifier: notifier,
		locks:    map[string]*sync.Mutex{},
	}
}

// itemLock returns the mutex serializing adjustments for one item.
func (s *InventoryService) itemLock(itemID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[itemID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[itemID] = l
	}
	return l
}

// CreateItem registers a new stocked item. An opening quantity is recorded as
// the item's first ledger entry so the chain invariant holds from entry one;
// the item row and the opening entry commit in the same transaction.
func (s *InventoryService) CreateItem(ctx context.Context, item *models.InventoryItem, performedBy string) (*models.InventoryItem, error) {
	if item.Name == "" {
		return nil, models.NewValidationError("item name is required")
	}
	if item.MinimumQuantity < 0 {
		return nil, models.NewValidationError("minimum_quantity must not be negative")
	}
	if item.CurrentQuantity < 0 {
		return nil, models.NewValidationError("opening quantity must not be negative")
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}

	opening := item.CurrentQuantity
	item.CurrentQuantity = 0

	lock := s.itemLock(item.ID)
	lock.Lock()
	defer lock.Unlock()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		txRepo := repository.NewInventoryRepository(tx)
		if err := txRepo.CreateItem(ctx, item); err != nil {
			return err
		}
		if opening == 0 {
			return nil
		}
		_, err := s.adjustLocked(ctx, tx, item.ID, opening, models.TxAdd, nil, performedBy)
		return err
	})
	if err != nil {
		return nil, err
	}

	if opening > 0 {
		item.CurrentQuantity = opening
		observability.LedgerAdjustments.WithLabelValues(string(models.TxAdd), "applied").Inc()
		cache.InvalidateItemQuantity(ctx, item.ID)
	}
	return item, nil
}

// GetItem returns one item with its derived quantity.
func (s *InventoryService) GetItem(ctx context.Context, id string) (*models.InventoryItem, error) {
	return s.repo.GetItem(ctx, id)
}

// ListItems returns all items.
func (s *InventoryService) ListItems(ctx context.Context) ([]models.InventoryItem, error) {
	return s.repo.ListItems(ctx)
}

// LowStockReport returns items at or below their minimum, including out-of-stock.
func (s *InventoryService) LowStockReport(ctx context.Context) ([]models.InventoryItem, error) {
	return s.repo.ListLowStockItems(ctx)
}

// Ledger returns an item's ledger entries in append order.
func (s *InventoryService) Ledger(ctx context.Context, itemID string, limit, offset int) ([]models.LedgerEntry, error) {
	if _, err := s.repo.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return s.repo.LedgerEntries(ctx, itemID, limit, offset)
}

// CurrentQuantity returns the derived quantity for an item, cache-aside.
func (s *InventoryService) CurrentQuantity(ctx context.Context, itemID string) (int64, error) {
	if n, ok := cache.GetInt64(ctx, cache.ItemQuantityKey(itemID)); ok {
		return n, nil
	}
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return 0, err
	}
	cache.SetInt64(ctx, cache.ItemQuantityKey(itemID), item.CurrentQuantity, cache.ItemQuantityTTL)
	return item.CurrentQuantity, nil
}

// QuantityFromLedger re-derives the quantity from the ledger alone. It must
// always agree with the item snapshot; the two diverging indicates a write
// outside the adjustment primitive.
func (s *InventoryService) QuantityFromLedger(ctx context.Context, itemID string) (int64, error) {
	last, err := s.repo.LastEntry(ctx, itemID)
	if err != nil {
		return 0, err
	}
	if last == nil {
		return 0, nil
	}
	return last.ResultingQuantity, nil
}

// Adjust appends one ledger entry and refreshes the item snapshot atomically.
// A delta that would drive the quantity negative fails with insufficient
// stock and writes nothing. Adjustments for one item are linearized by a
// per-item lock, so resulting quantities form an unbroken chain.
func (s *InventoryService) Adjust(ctx context.Context, itemID string, delta int64, txType models.TransactionType, referenceID *string, performedBy string) (*models.LedgerEntry, error) {
	switch txType {
	case models.TxAdd, models.TxRemove, models.TxFulfillment, models.TxAdjustment:
	default:
		return nil, models.NewValidationError("unknown transaction type")
	}
	if delta == 0 {
		return nil, models.NewValidationError("adjustment delta must not be zero")
	}

	lock := s.itemLock(itemID)
	lock.Lock()
	defer lock.Unlock()

	entry, err := s.adjustLocked(ctx, s.db, itemID, delta, txType, referenceID, performedBy)
	if err != nil {
		observability.LedgerAdjustments.WithLabelValues(string(txType), "rejected").Inc()
		return nil, err
	}

	observability.LedgerAdjustments.WithLabelValues(string(txType), "applied").Inc()
	cache.InvalidateItemQuantity(ctx, itemID)
	s.notifyIfLow(ctx, itemID, entry.ResultingQuantity)
	return entry, nil
}

// adjustLocked performs the guarded append inside db. Callers must hold the
// item lock.
func (s *InventoryService) adjustLocked(ctx context.Context, db *gorm.DB, itemID string, delta int64, txType models.TransactionType, referenceID *string, performedBy string) (*models.LedgerEntry, error) {
	var entry *models.LedgerEntry
	err := db.Transaction(func(tx *gorm.DB) error {
		txRepo := repository.NewInventoryRepository(tx)

		item, err := txRepo.GetItem(ctx, itemID)
		if err != nil {
			return err
		}

		last, err := txRepo.LastEntry(ctx, itemID)
		if err != nil {
			return err
		}

		var current, sequence int64
		if last != nil {
			current = last.ResultingQuantity
			sequence = last.Sequence
		}
		next := current + delta
		if next < 0 {
			return models.NewInsufficientStockError(itemID, current, -delta)
		}

		entry = &models.LedgerEntry{
			ID:                uuid.NewString(),
			ItemID:            item.ID,
			Delta:             delta,
			ResultingQuantity: next,
			TransactionType:   txType,
			ReferenceID:       referenceID,
			PerformedBy:       performedBy,
			Sequence:          sequence + 1,
			CreatedAt:         time.Now().UTC(),
		}
		if err := txRepo.AppendEntry(ctx, entry); err != nil {
			return err
		}
		return txRepo.UpdateItemQuantity(ctx, item.ID, next)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// withLineLocks runs fn while holding the locks for every item the lines
// touch. Locks are taken in sorted item order so two orders sharing items
// cannot deadlock.
func (s *InventoryService) withLineLocks(lines []models.RequestLine, fn func() error) error {
	itemIDs := make([]string, 0, len(lines))
	for _, line := range lines {
		itemIDs = append(itemIDs, line.ItemID)
	}
	sort.Strings(itemIDs)

	locks := make([]*sync.Mutex, 0, len(itemIDs))
	for _, id := range itemIDs {
		lock := s.itemLock(id)
		lock.Lock()
		locks = append(locks, lock)
	}
	defer func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}()

	return fn()
}

// consumeLinesTx appends one fulfillment entry per line against the caller's
// transaction. Callers must hold the line locks (withLineLocks) and own the
// commit; any insufficient line aborts the whole batch.
func (s *InventoryService) consumeLinesTx(ctx context.Context, tx *gorm.DB, requestID string, lines []models.RequestLine, performedBy string) error {
	for _, line := range lines {
		if _, err := s.adjustLocked(ctx, tx, line.ItemID, -line.Quantity, models.TxFulfillment, &requestID, performedBy); err != nil {
			return err
		}
	}
	return nil
}

// FulfillLines consumes stock for every line of a supply order in one
// transaction. Any insufficient line rolls back the whole batch.
func (s *InventoryService) FulfillLines(ctx context.Context, requestID string, lines []models.RequestLine, performedBy string) error {
	if len(lines) == 0 {
		return nil
	}

	err := s.withLineLocks(lines, func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			return s.consumeLinesTx(ctx, tx, requestID, lines, performedBy)
		})
	})
	if err != nil {
		observability.LedgerAdjustments.WithLabelValues(string(models.TxFulfillment), "rejected").Inc()
		return err
	}

	for _, line := range lines {
		observability.LedgerAdjustments.WithLabelValues(string(models.TxFulfillment), "applied").Inc()
		cache.InvalidateItemQuantity(ctx, line.ItemID)
	}
	return nil
}

// notifyIfLow publishes a low-stock event when the new quantity sits at or
// below the item's minimum. Best-effort; failures are logged, not returned.
func (s *InventoryService) notifyIfLow(ctx context.Context, itemID string, quantity int64) {
	if s.notifier == nil {
		return
	}
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return
	}
	if item.Stock() == models.StockOK {
		return
	}
	err = s.notifier.PublishRequestEvent(ctx, notifications.RequestEventPayload{
		Kind:   notifications.EventLowStock,
		ItemID: itemID,
	})
	if err != nil {
		middleware.Logger.WarnContext(ctx, "failed to publish low-stock event",
			slog.String("item_id", itemID),
			slog.String("error", err.Error()),
		)
	}
}
