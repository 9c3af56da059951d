// Package seed creates demo data for development and testing: routing rules,
// inventory items and in-flight requests. Not for production use.
package seed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"opsdesk/internal/models"
	"opsdesk/internal/repository"
	"opsdesk/internal/service"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Factory builds domain entities and persists them. A thin helper used by the
// Seed orchestrator and tests.
type Factory struct {
	db        *gorm.DB
	inventory *service.InventoryService
	rand      *rand.Rand
}

// NewFactory creates a Factory bound to the provided Gorm DB.
func NewFactory(db *gorm.DB) *Factory {
	gofakeit.Seed(time.Now().UnixNano())
	//nolint:gosec // weak randomness is fine for demo data
	return &Factory{
		db:        db,
		inventory: service.NewInventoryService(db, repository.NewInventoryRepository(db), nil),
		rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

var (
	buildings = []string{"north", "south", "east", "west", "annex"}

	itemNames = []string{
		"AA batteries", "whiteboard markers", "printer paper", "HDMI cables",
		"desk lamps", "ethernet cables", "nitrile gloves", "packing tape",
		"label rolls", "surge protectors", "keyboard trays", "air filters",
		"first aid kits", "cleaning spray", "trash liners", "door wedges",
	}

	requestTypes = []models.RequestType{
		models.RequestTypeSupplyOrder,
		models.RequestTypeKeyRequest,
		models.RequestTypeRoutedForm,
	}
)

// CreateItem persists a stocked inventory item. The opening balance goes
// through the same adjustment path production writes use, so seeded ledgers
// satisfy the chain invariant from entry one.
func (f *Factory) CreateItem(overrides ...func(*models.InventoryItem)) (*models.InventoryItem, error) {
	item := &models.InventoryItem{
		ID:              uuid.NewString(),
		Name:            itemNames[f.rand.Intn(len(itemNames))] + " " + gofakeit.LetterN(4),
		CurrentQuantity: int64(f.rand.Intn(200) + 20),
		MinimumQuantity: int64(f.rand.Intn(20) + 5),
	}
	for _, override := range overrides {
		override(item)
	}

	return f.inventory.CreateItem(context.Background(), item, models.SystemActorID)
}

// CreateRule persists a routing rule with a simple building or priority
// predicate.
func (f *Factory) CreateRule(overrides ...func(*models.RoutingRule)) (*models.RoutingRule, error) {
	building := buildings[f.rand.Intn(len(buildings))]
	role := "reviewer"

	rule := &models.RoutingRule{
		ID:           uuid.NewString(),
		Name:         fmt.Sprintf("route %s building requests", building),
		Priority:     f.rand.Intn(100),
		IsActive:     true,
		AssignedRole: &role,
		Condition: models.Condition{
			Kind:     models.ConditionLeaf,
			Field:    "building",
			Operator: models.OpEquals,
			Value:    building,
		},
	}
	if f.rand.Float32() < 0.3 {
		hours := float64(f.rand.Intn(48) + 1)
		rule.EscalationHours = &hours
	}
	if f.rand.Float32() < 0.2 {
		rule.AutoApprove = true
	}

	for _, override := range overrides {
		override(rule)
	}
	return rule, f.db.Create(rule).Error
}

// CreateRequest persists a submitted request with its intake audit event.
// Supply orders get one or two lines referencing the provided items.
func (f *Factory) CreateRequest(items []*models.InventoryItem, overrides ...func(*models.Request)) (*models.Request, error) {
	reqType := requestTypes[f.rand.Intn(len(requestTypes))]

	request := &models.Request{
		ID:     uuid.NewString(),
		Type:   reqType,
		Status: models.StatusSubmitted,
		Fields: models.FieldMap{
			"building": buildings[f.rand.Intn(len(buildings))],
			"room":     fmt.Sprintf("%d", f.rand.Intn(400)+100),
			"note":     gofakeit.Sentence(6),
		},
		Priority:    f.rand.Intn(5),
		RequesterID: gofakeit.Username(),
		Version:     1,
	}
	if reqType == models.RequestTypeSupplyOrder && len(items) > 0 {
		for i := 0; i <= f.rand.Intn(2); i++ {
			item := items[f.rand.Intn(len(items))]
			request.Lines = append(request.Lines, models.RequestLine{
				ItemID:   item.ID,
				Quantity: int64(f.rand.Intn(5) + 1),
			})
		}
	}

	for _, override := range overrides {
		override(request)
	}

	return request, f.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(request).Error; err != nil {
			return err
		}
		event := models.RequestEvent{
			RequestID: request.ID,
			ToStatus:  models.StatusSubmitted,
			Actor:     request.RequesterID,
		}
		return tx.Create(&event).Error
	})
}
