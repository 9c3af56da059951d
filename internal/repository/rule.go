// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"
	"errors"

	"opsdesk/internal/models"

	"gorm.io/gorm"
)

// RuleRepository defines the interface for routing rule data operations
type RuleRepository interface {
	Create(ctx context.Context, rule *models.RoutingRule) error
	GetByID(ctx context.Context, id string) (*models.RoutingRule, error)
	List(ctx context.Context, includeInactive bool) ([]models.RoutingRule, error)
	ListActiveOrdered(ctx context.Context) ([]models.RoutingRule, error)
	Update(ctx context.Context, rule *models.RoutingRule) error
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
}

// ruleRepository implements RuleRepository
type ruleRepository struct {
	db *gorm.DB
}

// NewRuleRepository creates a new routing rule repository
func NewRuleRepository(db *gorm.DB) RuleRepository {
	return &ruleRepository{db: db}
}

func (r *ruleRepository) Create(ctx context.Context, rule *models.RoutingRule) error {
	if err := r.db.WithContext(ctx).Create(rule).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *ruleRepository) GetByID(ctx context.Context, id string) (*models.RoutingRule, error) {
	var rule models.RoutingRule
	if err := r.db.WithContext(ctx).First(&rule, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Routing rule", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &rule, nil
}

func (r *ruleRepository) List(ctx context.Context, includeInactive bool) ([]models.RoutingRule, error) {
	var rules []models.RoutingRule
	q := r.db.WithContext(ctx).Order("priority DESC, created_at ASC, id ASC")
	if !includeInactive {
		q = q.Where("is_active = ?", true)
	}
	if err := q.Find(&rules).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return rules, nil
}

// ListActiveOrdered returns active rules in evaluation order: priority
// descending, then created_at ascending, then id ascending. The id tie-break
// keeps evaluation order total even when two rules share a creation timestamp.
func (r *ruleRepository) ListActiveOrdered(ctx context.Context) ([]models.RoutingRule, error) {
	var rules []models.RoutingRule
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("priority DESC, created_at ASC, id ASC").
		Find(&rules).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return rules, nil
}

func (r *ruleRepository) Update(ctx context.Context, rule *models.RoutingRule) error {
	result := r.db.WithContext(ctx).
		Model(&models.RoutingRule{}).
		Where("id = ?", rule.ID).
		Select("Name", "AppliesToType", "Priority", "IsActive", "Condition",
			"AssignedRole", "AssignedPrincipal", "AutoApprove", "EscalationHours").
		Updates(rule)
	if result.Error != nil {
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("Routing rule", rule.ID)
	}
	return nil
}

func (r *ruleRepository) SetActive(ctx context.Context, id string, active bool) error {
	result := r.db.WithContext(ctx).
		Model(&models.RoutingRule{}).
		Where("id = ?", id).
		Update("is_active", active)
	if result.Error != nil {
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("Routing rule", id)
	}
	return nil
}

func (r *ruleRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.RoutingRule{}, "id = ?", id)
	if result.Error != nil {
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("Routing rule", id)
	}
	return nil
}
