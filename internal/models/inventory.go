package models

import (
	"time"
)

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	// TxAdd records stock received into inventory.
	TxAdd TransactionType = "add"
	// TxRemove records stock manually removed (damage, loss, disposal).
	TxRemove TransactionType = "remove"
	// TxFulfillment records stock consumed by a request transition.
	TxFulfillment TransactionType = "fulfillment"
	// TxAdjustment records a stocktake correction.
	TxAdjustment TransactionType = "adjustment"
)

// StockState is the derived low-stock classification of an item.
type StockState string

const (
	StockOK  StockState = "ok"
	StockLow StockState = "low"
	StockOut StockState = "out"
)

// InventoryItem is a stocked item. CurrentQuantity is a derived view over the
// ledger: it must always equal the resulting_quantity of the item's latest
// ledger entry, and is never the primary source of truth.
type InventoryItem struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	Name            string    `gorm:"size:128;not null" json:"name"`
	CurrentQuantity int64     `gorm:"not null;default:0" json:"current_quantity"`
	MinimumQuantity int64     `gorm:"not null;default:0" json:"minimum_quantity"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (InventoryItem) TableName() string {
	return "inventory_items"
}

// Stock derives the low-stock state from the current quantity. Pure function
// of the derived quantity; not separately stored.
func (i *InventoryItem) Stock() StockState {
	return DeriveStock(i.CurrentQuantity, i.MinimumQuantity)
}

// DeriveStock classifies a quantity: "out" at zero, "low" below the minimum,
// "ok" otherwise.
func DeriveStock(current, minimum int64) StockState {
	switch {
	case current == 0:
		return StockOut
	case current < minimum:
		return StockLow
	default:
		return StockOK
	}
}

// LedgerEntry is an immutable record of one inventory quantity change.
// Entries are created exclusively by the inventory service's adjustment
// primitive and are never updated or deleted. For entries ordered by creation
// within one item, resulting_quantity(n) = resulting_quantity(n-1) + delta(n).
type LedgerEntry struct {
	ID                string          `gorm:"primaryKey;size:36" json:"id"`
	ItemID            string          `gorm:"size:36;not null;index:idx_ledger_item" json:"item_id"`
	Delta             int64           `gorm:"not null" json:"delta"`
	ResultingQuantity int64           `gorm:"not null" json:"resulting_quantity"`
	TransactionType   TransactionType `gorm:"type:varchar(20);not null" json:"transaction_type"`
	ReferenceID       *string         `gorm:"size:36;index" json:"reference_id,omitempty"`
	PerformedBy       string          `gorm:"size:64;not null" json:"performed_by"`
	Sequence          int64           `gorm:"not null;index:idx_ledger_item" json:"sequence"`
	CreatedAt         time.Time       `json:"created_at"`
}

// TableName specifies the table name for GORM
func (LedgerEntry) TableName() string {
	return "ledger_entries"
}
