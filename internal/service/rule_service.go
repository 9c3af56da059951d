package service

import (
	"context"

	"opsdesk/internal/cache"
	"opsdesk/internal/models"
	"opsdesk/internal/repository"
	"opsdesk/internal/validation"

	"github.com/google/uuid"
)

// RuleService manages routing rule administration. Rule edits apply to future
// intake only; requests already routed keep their original decision.
type RuleService struct {
	repo repository.RuleRepository
}

// NewRuleService returns a new RuleService.
func NewRuleService(repo repository.RuleRepository) *RuleService {
	return &RuleService{repo: repo}
}

// CreateRule validates and persists a new routing rule.
func (s *RuleService) CreateRule(ctx context.Context, rule *models.RoutingRule) (*models.RoutingRule, error) {
	if err := validation.ValidateRule(rule); err != nil {
		return nil, err
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if err := s.repo.Create(ctx, rule); err != nil {
		return nil, err
	}
	cache.InvalidateActiveRules(ctx)
	return s.repo.GetByID(ctx, rule.ID)
}

// GetRule returns one rule by ID.
func (s *RuleService) GetRule(ctx context.Context, id string) (*models.RoutingRule, error) {
	return s.repo.GetByID(ctx, id)
}

// ListRules returns rules in evaluation order.
func (s *RuleService) ListRules(ctx context.Context, includeInactive bool) ([]models.RoutingRule, error) {
	return s.repo.List(ctx, includeInactive)
}

// UpdateRule validates and replaces a rule's mutable attributes.
func (s *RuleService) UpdateRule(ctx context.Context, id string, rule *models.RoutingRule) (*models.RoutingRule, error) {
	if err := validation.ValidateRule(rule); err != nil {
		return nil, err
	}
	rule.ID = id
	if err := s.repo.Update(ctx, rule); err != nil {
		return nil, err
	}
	cache.InvalidateActiveRules(ctx)
	return s.repo.GetByID(ctx, id)
}

// SetRuleActive enables or disables a rule without deleting it.
func (s *RuleService) SetRuleActive(ctx context.Context, id string, active bool) (*models.RoutingRule, error) {
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return nil, err
	}
	cache.InvalidateActiveRules(ctx)
	return s.repo.GetByID(ctx, id)
}

// DeleteRule removes a rule permanently. Requests it already routed keep
// their matched_rule_id as a historical reference.
func (s *RuleService) DeleteRule(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	cache.InvalidateActiveRules(ctx)
	return nil
}
