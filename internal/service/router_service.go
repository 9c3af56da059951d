// Package service implements the business logic of the fulfillment engine.
package service

import (
	"context"
	"log/slog"
	"time"

	"opsdesk/internal/cache"
	"opsdesk/internal/middleware"
	"opsdesk/internal/models"
	"opsdesk/internal/observability"
	"opsdesk/internal/repository"
)

// RouterService picks the routing decision for an incoming request by
// evaluating active rules in a fixed total order.
type RouterService struct {
	ruleRepo repository.RuleRepository
	now      func() time.Time
}

// NewRouterService returns a new RouterService.
func NewRouterService(ruleRepo repository.RuleRepository) *RouterService {
	return &RouterService{
		ruleRepo: ruleRepo,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Route evaluates active rules against the request and returns the decision of
// the first match. Evaluation order is total (priority desc, creation asc, id
// asc), so identical inputs always produce identical decisions. A rule whose
// condition fails to evaluate is logged and skipped; it never blocks intake.
// No matching rule yields the default decision, which is a valid outcome.
//
// The ordered active rule set is read cache-aside; every rule mutation in
// RuleService drops the cached set, so intake after an edit sees the new rules.
func (s *RouterService) Route(ctx context.Context, reqType models.RequestType, fields models.FieldMap) (models.RoutingDecision, error) {
	rules, err := cache.Aside(ctx, cache.ActiveRulesKey, cache.ActiveRulesTTL, func() ([]models.RoutingRule, error) {
		return s.ruleRepo.ListActiveOrdered(ctx)
	})
	if err != nil {
		return models.RoutingDecision{}, err
	}

	for i := range rules {
		rule := &rules[i]
		if !rule.AppliesTo(reqType) {
			continue
		}

		matched, evalErr := rule.Condition.Evaluate(fields)
		if evalErr != nil {
			middleware.Logger.WarnContext(ctx, "skipping rule with unevaluable condition",
				slog.String("rule_id", rule.ID),
				slog.String("rule_name", rule.Name),
				slog.String("error", evalErr.Error()),
			)
			continue
		}
		if !matched {
			continue
		}

		decision := models.DecisionFromRule(rule, s.now())
		outcome := "matched"
		if decision.AutoApprove {
			outcome = "auto_approved"
		}
		observability.RoutingDecisions.WithLabelValues(outcome).Inc()
		middleware.Logger.InfoContext(ctx, "request matched routing rule",
			slog.String("rule_id", rule.ID),
			slog.String("rule_name", rule.Name),
			slog.Int("priority", rule.Priority),
		)
		return decision, nil
	}

	observability.RoutingDecisions.WithLabelValues("default").Inc()
	return models.DefaultDecision(), nil
}
