// Package bootstrap wires up runtime dependencies shared by the server and
// the seeding command.
package bootstrap

import (
	"fmt"
	"log"
	"strings"

	"opsdesk/internal/cache"
	"opsdesk/internal/config"
	"opsdesk/internal/database"
	"opsdesk/internal/models"
	"opsdesk/internal/seed"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	SeedDemoData bool
}

// InitRuntime connects to DB and Redis and optionally seeds demo data.
// The Redis client may be nil when the server is unreachable; the engine runs
// degraded without it.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	r := cache.GetClient()

	if err := ensureDevBaselineRule(cfg, db); err != nil {
		return nil, nil, fmt.Errorf("failed to bootstrap baseline routing rule: %w", err)
	}

	if opts.SeedDemoData {
		if err := seed.Seed(db, seed.Options{NumRules: 6, NumItems: 12, NumRequests: 25}); err != nil {
			return nil, nil, fmt.Errorf("failed to seed demo data: %w", err)
		}
	}

	return db, r, nil
}

// ensureDevBaselineRule gives a fresh development database one active rule so
// routed forms are auto-approved out of the box. Production rule sets are
// managed through the API.
func ensureDevBaselineRule(cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil {
		return nil
	}
	if !strings.EqualFold(cfg.Env, "development") {
		return nil
	}

	var count int64
	if err := db.Model(&models.RoutingRule{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	formType := models.RequestTypeRoutedForm
	rule := models.RoutingRule{
		ID:            uuid.NewString(),
		Name:          "auto-approve routine forms",
		AppliesToType: &formType,
		Priority:      0,
		IsActive:      true,
		AutoApprove:   true,
		Condition: models.Condition{
			Kind:     models.ConditionLeaf,
			Field:    "routine",
			Operator: models.OpEquals,
			Value:    true,
		},
	}
	if err := db.Create(&rule).Error; err != nil {
		return err
	}

	log.Printf("development baseline routing rule ensured (%s)", rule.ID)
	return nil
}
