package server

import (
	"github.com/gofiber/fiber/v2"

	"opsdesk/internal/middleware"
	"opsdesk/internal/models"
)

// CreateItem registers a new inventory item. A non-zero opening quantity is
// recorded as the item's first ledger entry.
func (s *Server) CreateItem(c *fiber.Ctx) error {
	actor := middleware.ActorFromLocals(c)

	var item models.InventoryItem
	if err := c.BodyParser(&item); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	created, err := s.inventoryService.CreateItem(c.UserContext(), &item, actor.ID)
	if err != nil {
		return handleError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

// ListItems returns all inventory items with their stock state.
func (s *Server) ListItems(c *fiber.Ctx) error {
	items, err := s.inventoryService.ListItems(c.UserContext())
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(fiber.Map{"items": itemsWithStock(items)})
}

// LowStockReport returns items at or below their minimum quantity.
func (s *Server) LowStockReport(c *fiber.Ctx) error {
	items, err := s.inventoryService.LowStockReport(c.UserContext())
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(fiber.Map{"items": itemsWithStock(items)})
}

// GetItem returns one item with its stock state.
func (s *Server) GetItem(c *fiber.Ctx) error {
	id, err := s.parseUUID(c, "id")
	if err != nil {
		return nil
	}

	item, err := s.inventoryService.GetItem(c.UserContext(), id)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(itemWithStock(*item))
}

// GetItemLedger returns an item's ledger entries in append order.
func (s *Server) GetItemLedger(c *fiber.Ctx) error {
	id, err := s.parseUUID(c, "id")
	if err != nil {
		return nil
	}

	pagination := parsePagination(c, 50)
	entries, err := s.inventoryService.Ledger(c.UserContext(), id, pagination.Limit, pagination.Offset)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(fiber.Map{
		"entries": entries,
		"limit":   pagination.Limit,
		"offset":  pagination.Offset,
	})
}

// adjustmentInput is the body of a manual stock adjustment.
type adjustmentInput struct {
	Delta           int64                  `json:"delta"`
	TransactionType models.TransactionType `json:"transaction_type"`
	ReferenceID     *string                `json:"reference_id"`
}

// AdjustItem appends a manual ledger entry for an item.
func (s *Server) AdjustItem(c *fiber.Ctx) error {
	actor := middleware.ActorFromLocals(c)

	id, err := s.parseUUID(c, "id")
	if err != nil {
		return nil
	}

	var input adjustmentInput
	if err := c.BodyParser(&input); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	// Fulfillment entries come only from request transitions.
	if input.TransactionType == models.TxFulfillment {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("fulfillment entries are written by the request lifecycle"))
	}

	entry, err := s.inventoryService.Adjust(c.UserContext(), id, input.Delta, input.TransactionType, input.ReferenceID, actor.ID)
	if err != nil {
		return handleError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(entry)
}

// itemView is an item plus its derived stock state.
type itemView struct {
	models.InventoryItem
	StockState models.StockState `json:"stock_state"`
}

func itemWithStock(item models.InventoryItem) itemView {
	return itemView{InventoryItem: item, StockState: item.Stock()}
}

func itemsWithStock(items []models.InventoryItem) []itemView {
	out := make([]itemView, len(items))
	for i, item := range items {
		out[i] = itemWithStock(item)
	}
	return out
}
