package service

import (
	"context"
	"testing"
	"time"

	"opsdesk/internal/models"
	"opsdesk/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepOnce_MarksOverdueRequests(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewRequestRepository(db)
	sweeper := NewEscalationService(repo, nil, time.Minute)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sweeper.now = func() time.Time { return now }

	ctx := context.Background()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	overdue := &models.Request{
		ID: uuid.NewString(), Type: models.RequestTypeSupplyOrder,
		Status: models.StatusSubmitted, RequesterID: "r1", Version: 1,
		EscalationDeadline: &past,
	}
	pending := &models.Request{
		ID: uuid.NewString(), Type: models.RequestTypeSupplyOrder,
		Status: models.StatusSubmitted, RequesterID: "r1", Version: 1,
		EscalationDeadline: &future,
	}
	terminal := &models.Request{
		ID: uuid.NewString(), Type: models.RequestTypeSupplyOrder,
		Status: models.StatusCancelled, RequesterID: "r1", Version: 1,
		EscalationDeadline: &past,
	}
	for _, r := range []*models.Request{overdue, pending, terminal} {
		require.NoError(t, repo.Create(ctx, r))
	}

	escalated, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, escalated)

	got, err := repo.GetByID(ctx, overdue.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EscalatedAt)
	assert.Equal(t, now.Unix(), got.EscalatedAt.UTC().Unix())

	// Escalation is a marker, not a transition: the status is untouched.
	assert.Equal(t, models.StatusSubmitted, got.Status)
	assert.Equal(t, int64(1), got.Version)
}

func TestSweepOnce_Idempotent(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewRequestRepository(db)
	sweeper := NewEscalationService(repo, nil, time.Minute)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	req := &models.Request{
		ID: uuid.NewString(), Type: models.RequestTypeKeyRequest,
		Status: models.StatusUnderReview, RequesterID: "r1", Version: 1,
		EscalationDeadline: &past,
	}
	require.NoError(t, repo.Create(ctx, req))

	first, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first)

	second, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second)
}

func TestSweepOnce_NothingDue(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewRequestRepository(db)
	sweeper := NewEscalationService(repo, nil, time.Minute)

	escalated, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, escalated)
}
