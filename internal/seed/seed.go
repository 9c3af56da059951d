package seed

import (
	"fmt"
	"log"

	"opsdesk/internal/models"

	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumRules    int
	NumItems    int
	NumRequests int
	ShouldClean bool
}

// Seed populates the database with demo rules, items and requests.
func Seed(db *gorm.DB, opts Options) error {
	log.Printf("🌱 Seeding %d rules, %d items and %d requests...",
		opts.NumRules, opts.NumItems, opts.NumRequests)

	if opts.ShouldClean {
		if err := clearData(db); err != nil {
			log.Println("⚠️  Warning: could not clear all existing data, continuing anyway...")
		}
	}

	factory := NewFactory(db)

	rules := make([]*models.RoutingRule, 0, opts.NumRules)
	for i := 0; i < opts.NumRules; i++ {
		rule, err := factory.CreateRule()
		if err != nil {
			return fmt.Errorf("failed to create rule: %w", err)
		}
		rules = append(rules, rule)
	}
	log.Printf("✓ %d routing rules created", len(rules))

	items := make([]*models.InventoryItem, 0, opts.NumItems)
	for i := 0; i < opts.NumItems; i++ {
		item, err := factory.CreateItem()
		if err != nil {
			return fmt.Errorf("failed to create item: %w", err)
		}
		items = append(items, item)
	}
	log.Printf("✓ %d inventory items created", len(items))

	for i := 0; i < opts.NumRequests; i++ {
		if _, err := factory.CreateRequest(items); err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
	}
	log.Printf("✓ %d requests created", opts.NumRequests)

	log.Println("🎉 Database seeding completed successfully!")
	return nil
}

func clearData(db *gorm.DB) error {
	log.Println("🗑️  Clearing existing data...")
	tables := []string{
		"request_events", "request_lines", "requests",
		"ledger_entries", "inventory_items", "routing_rules",
	}
	for _, table := range tables {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return err
		}
	}
	return nil
}
