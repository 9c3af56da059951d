package service

import (
	"context"
	"testing"

	"opsdesk/internal/models"
	"opsdesk/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleService_CRUD(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(repository.NewRuleRepository(db))
	ctx := context.Background()

	created, err := svc.CreateRule(ctx, &models.RoutingRule{
		Name:         "north supplies",
		Priority:     5,
		IsActive:     true,
		Condition:    leaf("building", models.OpEquals, "north"),
		AssignedRole: strPtr("north_team"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	created.Priority = 9
	updated, err := svc.UpdateRule(ctx, created.ID, created)
	require.NoError(t, err)
	assert.Equal(t, 9, updated.Priority)

	deactivated, err := svc.SetRuleActive(ctx, created.ID, false)
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)

	require.NoError(t, svc.DeleteRule(ctx, created.ID))
	_, err = svc.GetRule(ctx, created.ID)
	require.Error(t, err)
}

func TestRuleService_RejectsInvalidRules(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(repository.NewRuleRepository(db))
	ctx := context.Background()

	_, err := svc.CreateRule(ctx, &models.RoutingRule{
		Name:      "both targets",
		Condition: leaf("building", models.OpEquals, "north"),
		AssignedRole:      strPtr("a"),
		AssignedPrincipal: strPtr("b"),
	})
	require.Error(t, err)

	_, err = svc.CreateRule(ctx, &models.RoutingRule{
		Name:      "bad tree",
		Condition: models.Condition{Kind: models.ConditionAll},
	})
	require.Error(t, err)
	appErr, ok := err.(*models.AppError)
	require.True(t, ok)
	assert.Equal(t, models.CodeMalformedCondition, appErr.Code)
}

func TestRuleService_EditDoesNotRerouteExisting(t *testing.T) {
	e := newEngine(t)
	svc := NewRuleService(e.rules)
	ctx := context.Background()

	rule, err := svc.CreateRule(ctx, &models.RoutingRule{
		Name:         "original",
		Priority:     5,
		IsActive:     true,
		Condition:    leaf("building", models.OpEquals, "north"),
		AssignedRole: strPtr("old_team"),
	})
	require.NoError(t, err)

	req, err := e.requests.CreateRequest(ctx, requester, CreateRequestInput{
		Type:   models.RequestTypeSupplyOrder,
		Fields: models.FieldMap{"building": "north"},
	})
	require.NoError(t, err)
	require.Equal(t, "old_team", *req.AssignedRole)

	rule.AssignedRole = strPtr("new_team")
	_, err = svc.UpdateRule(ctx, rule.ID, rule)
	require.NoError(t, err)

	// The routed request keeps its original assignment.
	got, err := e.requests.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "old_team", *got.AssignedRole)

	// New intake picks up the edited rule.
	fresh, err := e.requests.CreateRequest(ctx, requester, CreateRequestInput{
		Type:   models.RequestTypeSupplyOrder,
		Fields: models.FieldMap{"building": "north"},
	})
	require.NoError(t, err)
	assert.Equal(t, "new_team", *fresh.AssignedRole)
}
