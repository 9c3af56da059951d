package service

import (
	"context"
	"testing"
	"time"

	"opsdesk/internal/cache"
	"opsdesk/internal/models"
	"opsdesk/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ruleRepoStub struct {
	createFn            func(context.Context, *models.RoutingRule) error
	getByIDFn           func(context.Context, string) (*models.RoutingRule, error)
	listFn              func(context.Context, bool) ([]models.RoutingRule, error)
	listActiveOrderedFn func(context.Context) ([]models.RoutingRule, error)
	updateFn            func(context.Context, *models.RoutingRule) error
	setActiveFn         func(context.Context, string, bool) error
	deleteFn            func(context.Context, string) error
}

func (s *ruleRepoStub) Create(ctx context.Context, rule *models.RoutingRule) error {
	return s.createFn(ctx, rule)
}
func (s *ruleRepoStub) GetByID(ctx context.Context, id string) (*models.RoutingRule, error) {
	return s.getByIDFn(ctx, id)
}
func (s *ruleRepoStub) List(ctx context.Context, includeInactive bool) ([]models.RoutingRule, error) {
	return s.listFn(ctx, includeInactive)
}
func (s *ruleRepoStub) ListActiveOrdered(ctx context.Context) ([]models.RoutingRule, error) {
	return s.listActiveOrderedFn(ctx)
}
func (s *ruleRepoStub) Update(ctx context.Context, rule *models.RoutingRule) error {
	return s.updateFn(ctx, rule)
}
func (s *ruleRepoStub) SetActive(ctx context.Context, id string, active bool) error {
	return s.setActiveFn(ctx, id, active)
}
func (s *ruleRepoStub) Delete(ctx context.Context, id string) error {
	return s.deleteFn(ctx, id)
}

func leaf(field string, op models.ConditionOperator, value any) models.Condition {
	return models.Condition{Kind: models.ConditionLeaf, Field: field, Operator: op, Value: value}
}

func strPtr(s string) *string { return &s }

func typePtr(t models.RequestType) *models.RequestType { return &t }

func floatPtr(f float64) *float64 { return &f }

func newRouterWithRules(rules []models.RoutingRule) *RouterService {
	stub := &ruleRepoStub{
		listActiveOrderedFn: func(context.Context) ([]models.RoutingRule, error) {
			return rules, nil
		},
	}
	return NewRouterService(stub)
}

func TestRoute_FirstMatchWins(t *testing.T) {
	// The repository returns rules pre-sorted; the router takes the first hit.
	rules := []models.RoutingRule{
		{ID: "high", Priority: 10, Condition: leaf("building", models.OpEquals, "north"), AssignedRole: strPtr("north_team")},
		{ID: "low", Priority: 1, Condition: leaf("building", models.OpEquals, "north"), AssignedRole: strPtr("catchall")},
	}
	router := newRouterWithRules(rules)

	decision, err := router.Route(context.Background(), models.RequestTypeSupplyOrder, models.FieldMap{"building": "north"})
	require.NoError(t, err)
	require.NotNil(t, decision.MatchedRuleID)
	assert.Equal(t, "high", *decision.MatchedRuleID)
	assert.Equal(t, "north_team", *decision.AssignedRole)
}

func TestRoute_TypeScoping(t *testing.T) {
	rules := []models.RoutingRule{
		{ID: "keys-only", Priority: 10, AppliesToType: typePtr(models.RequestTypeKeyRequest), Condition: leaf("building", models.OpEquals, "north"), AssignedRole: strPtr("security")},
		{ID: "any-type", Priority: 1, Condition: leaf("building", models.OpEquals, "north"), AssignedRole: strPtr("facilities")},
	}
	router := newRouterWithRules(rules)

	decision, err := router.Route(context.Background(), models.RequestTypeSupplyOrder, models.FieldMap{"building": "north"})
	require.NoError(t, err)
	assert.Equal(t, "any-type", *decision.MatchedRuleID)

	decision, err = router.Route(context.Background(), models.RequestTypeKeyRequest, models.FieldMap{"building": "north"})
	require.NoError(t, err)
	assert.Equal(t, "keys-only", *decision.MatchedRuleID)
}

func TestRoute_MalformedRuleIsSkipped(t *testing.T) {
	rules := []models.RoutingRule{
		{ID: "broken", Priority: 10, Condition: models.Condition{Kind: "bogus"}},
		{ID: "sound", Priority: 1, Condition: leaf("building", models.OpEquals, "north"), AssignedPrincipal: strPtr("maria")},
	}
	router := newRouterWithRules(rules)

	decision, err := router.Route(context.Background(), models.RequestTypeRoutedForm, models.FieldMap{"building": "north"})
	require.NoError(t, err)
	require.NotNil(t, decision.MatchedRuleID)
	assert.Equal(t, "sound", *decision.MatchedRuleID)
}

func TestRoute_NoMatchIsDefaultDecision(t *testing.T) {
	rules := []models.RoutingRule{
		{ID: "r", Priority: 5, Condition: leaf("building", models.OpEquals, "south")},
	}
	router := newRouterWithRules(rules)

	decision, err := router.Route(context.Background(), models.RequestTypeSupplyOrder, models.FieldMap{"building": "north"})
	require.NoError(t, err)
	assert.Nil(t, decision.MatchedRuleID)
	assert.Nil(t, decision.AssignedRole)
	assert.Nil(t, decision.AssignedPrincipal)
	assert.False(t, decision.AutoApprove)
	assert.Nil(t, decision.EscalationDeadline)
}

func TestRoute_Deterministic(t *testing.T) {
	rules := []models.RoutingRule{
		{ID: "a", Priority: 5, Condition: leaf("urgency", models.OpGTE, 3), AssignedRole: strPtr("oncall")},
		{ID: "b", Priority: 5, Condition: leaf("urgency", models.OpGTE, 1), AssignedRole: strPtr("desk")},
	}
	router := newRouterWithRules(rules)
	fields := models.FieldMap{"urgency": 4}

	first, err := router.Route(context.Background(), models.RequestTypeSupplyOrder, fields)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := router.Route(context.Background(), models.RequestTypeSupplyOrder, fields)
		require.NoError(t, err)
		assert.Equal(t, *first.MatchedRuleID, *again.MatchedRuleID)
	}
}

func TestRoute_ServesCachedRuleSet(t *testing.T) {
	setupTestCache(t)
	ctx := context.Background()

	calls := 0
	stub := &ruleRepoStub{
		listActiveOrderedFn: func(context.Context) ([]models.RoutingRule, error) {
			calls++
			return []models.RoutingRule{
				{ID: "r", Priority: 1, Condition: leaf("building", models.OpEquals, "north"), AssignedRole: strPtr("team")},
			}, nil
		},
	}
	router := NewRouterService(stub)

	for i := 0; i < 3; i++ {
		decision, err := router.Route(ctx, models.RequestTypeSupplyOrder, models.FieldMap{"building": "north"})
		require.NoError(t, err)
		require.NotNil(t, decision.MatchedRuleID)
		assert.Equal(t, "r", *decision.MatchedRuleID)
	}
	// Only the first routing hit the repository.
	assert.Equal(t, 1, calls)

	cache.InvalidateActiveRules(ctx)
	_, err := router.Route(ctx, models.RequestTypeSupplyOrder, models.FieldMap{"building": "north"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRoute_RuleEditDropsCachedSet(t *testing.T) {
	mr := setupTestCache(t)
	db := newTestDB(t)
	repo := repository.NewRuleRepository(db)
	router := NewRouterService(repo)
	svc := NewRuleService(repo)
	ctx := context.Background()

	rule, err := svc.CreateRule(ctx, &models.RoutingRule{
		Name:         "north supplies",
		Priority:     5,
		IsActive:     true,
		Condition:    leaf("building", models.OpEquals, "north"),
		AssignedRole: strPtr("old_team"),
	})
	require.NoError(t, err)

	decision, err := router.Route(ctx, models.RequestTypeSupplyOrder, models.FieldMap{"building": "north"})
	require.NoError(t, err)
	assert.Equal(t, "old_team", *decision.AssignedRole)
	assert.True(t, mr.Exists(cache.ActiveRulesKey))

	// Editing a rule invalidates the cached set; the next routing sees it.
	rule.AssignedRole = strPtr("new_team")
	_, err = svc.UpdateRule(ctx, rule.ID, rule)
	require.NoError(t, err)
	assert.False(t, mr.Exists(cache.ActiveRulesKey))

	decision, err = router.Route(ctx, models.RequestTypeSupplyOrder, models.FieldMap{"building": "north"})
	require.NoError(t, err)
	assert.Equal(t, "new_team", *decision.AssignedRole)
}

func TestRoute_EscalationDeadlineFromRule(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rules := []models.RoutingRule{
		{ID: "sla", Priority: 5, Condition: leaf("building", models.OpEquals, "north"), AutoApprove: true, EscalationHours: floatPtr(4)},
	}
	router := newRouterWithRules(rules)
	router.now = func() time.Time { return fixed }

	decision, err := router.Route(context.Background(), models.RequestTypeSupplyOrder, models.FieldMap{"building": "north"})
	require.NoError(t, err)
	assert.True(t, decision.AutoApprove)
	require.NotNil(t, decision.EscalationDeadline)
	assert.Equal(t, fixed.Add(4*time.Hour), *decision.EscalationDeadline)
}
