package repository

import (
	"context"
	"errors"

	"opsdesk/internal/models"

	"gorm.io/gorm"
)

// InventoryRepository defines the interface for inventory and ledger data operations
type InventoryRepository interface {
	CreateItem(ctx context.Context, item *models.InventoryItem) error
	GetItem(ctx context.Context, id string) (*models.InventoryItem, error)
	ListItems(ctx context.Context) ([]models.InventoryItem, error)
	ListLowStockItems(ctx context.Context) ([]models.InventoryItem, error)
	UpdateItemQuantity(ctx context.Context, id string, quantity int64) error
	AppendEntry(ctx context.Context, entry *models.LedgerEntry) error
	LastEntry(ctx context.Context, itemID string) (*models.LedgerEntry, error)
	LedgerEntries(ctx context.Context, itemID string, limit, offset int) ([]models.LedgerEntry, error)
}

// inventoryRepository implements InventoryRepository
type inventoryRepository struct {
	db *gorm.DB
}

// NewInventoryRepository creates a new inventory repository
func NewInventoryRepository(db *gorm.DB) InventoryRepository {
	return &inventoryRepository{db: db}
}

func (r *inventoryRepository) CreateItem(ctx context.Context, item *models.InventoryItem) error {
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *inventoryRepository) GetItem(ctx context.Context, id string) (*models.InventoryItem, error) {
	var item models.InventoryItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Inventory item", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &item, nil
}

func (r *inventoryRepository) ListItems(ctx context.Context) ([]models.InventoryItem, error) {
	var items []models.InventoryItem
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&items).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return items, nil
}

func (r *inventoryRepository) ListLowStockItems(ctx context.Context) ([]models.InventoryItem, error) {
	var items []models.InventoryItem
	if err := r.db.WithContext(ctx).
		Where("current_quantity < minimum_quantity OR current_quantity = 0").
		Order("name ASC").
		Find(&items).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return items, nil
}

// UpdateItemQuantity refreshes the derived quantity snapshot on the item row.
// Callers must write the matching ledger entry in the same transaction.
func (r *inventoryRepository) UpdateItemQuantity(ctx context.Context, id string, quantity int64) error {
	result := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("id = ?", id).
		Update("current_quantity", quantity)
	if result.Error != nil {
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("Inventory item", id)
	}
	return nil
}

func (r *inventoryRepository) AppendEntry(ctx context.Context, entry *models.LedgerEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// LastEntry returns the most recent ledger entry for an item, or nil when the
// item has no history yet.
func (r *inventoryRepository) LastEntry(ctx context.Context, itemID string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("sequence DESC").
		First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &entry, nil
}

func (r *inventoryRepository) LedgerEntries(ctx context.Context, itemID string, limit, offset int) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	q := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("sequence ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return entries, nil
}
