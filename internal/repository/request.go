package repository

import (
	"context"
	"errors"
	"time"

	"opsdesk/internal/models"

	"gorm.io/gorm"
)

// RequestFilter narrows request listings.
type RequestFilter struct {
	Type              *models.RequestType
	Status            *models.RequestStatus
	RequesterID       *string
	AssignedPrincipal *string
	AssignedRole      *string
	IncludeArchived   bool
	Limit             int
	Offset            int
}

// RequestRepository defines the interface for request data operations
type RequestRepository interface {
	Create(ctx context.Context, request *models.Request) error
	GetByID(ctx context.Context, id string) (*models.Request, error)
	List(ctx context.Context, filter RequestFilter) ([]models.Request, error)
	ApplyVersioned(ctx context.Context, request *models.Request, expectedVersion int64, updates map[string]interface{}) error
	SetArchived(ctx context.Context, id string, archived bool) error
	ListEscalatable(ctx context.Context, now time.Time) ([]models.Request, error)
	MarkEscalated(ctx context.Context, id string, at time.Time) (bool, error)
	AppendEvent(ctx context.Context, event *models.RequestEvent) error
	ListEvents(ctx context.Context, requestID string) ([]models.RequestEvent, error)
}

// requestRepository implements RequestRepository
type requestRepository struct {
	db *gorm.DB
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

func (r *requestRepository) Create(ctx context.Context, request *models.Request) error {
	if err := r.db.WithContext(ctx).Create(request).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *requestRepository) GetByID(ctx context.Context, id string) (*models.Request, error) {
	var request models.Request
	if err := r.db.WithContext(ctx).Preload("Lines").First(&request, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Request", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &request, nil
}

func (r *requestRepository) List(ctx context.Context, filter RequestFilter) ([]models.Request, error) {
	var requests []models.Request

	q := r.db.WithContext(ctx).Preload("Lines").Order("created_at DESC, id DESC")
	if filter.Type != nil {
		q = q.Where("type = ?", *filter.Type)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.RequesterID != nil {
		q = q.Where("requester_id = ?", *filter.RequesterID)
	}
	if filter.AssignedPrincipal != nil {
		q = q.Where("assigned_principal = ?", *filter.AssignedPrincipal)
	}
	if filter.AssignedRole != nil {
		q = q.Where("assigned_role = ?", *filter.AssignedRole)
	}
	if !filter.IncludeArchived {
		q = q.Where("archived = ?", false)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	if err := q.Find(&requests).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return requests, nil
}

// ApplyVersioned writes the given column updates only if the stored version
// still equals expectedVersion, bumping the version in the same statement.
// Zero rows affected means another writer got there first.
func (r *requestRepository) ApplyVersioned(ctx context.Context, request *models.Request, expectedVersion int64, updates map[string]interface{}) error {
	updates["version"] = expectedVersion + 1
	updates["updated_at"] = time.Now().UTC()

	result := r.db.WithContext(ctx).
		Model(&models.Request{}).
		Where("id = ? AND version = ?", request.ID, expectedVersion).
		Updates(updates)
	if result.Error != nil {
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		// Distinguish a missing row from a stale version.
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.Request{}).Where("id = ?", request.ID).Count(&count).Error; err != nil {
			return models.NewInternalError(err)
		}
		if count == 0 {
			return models.NewNotFoundError("Request", request.ID)
		}
		return models.NewConcurrentModificationError(request.ID, expectedVersion)
	}

	request.Version = expectedVersion + 1
	return nil
}

func (r *requestRepository) SetArchived(ctx context.Context, id string, archived bool) error {
	result := r.db.WithContext(ctx).
		Model(&models.Request{}).
		Where("id = ?", id).
		Update("archived", archived)
	if result.Error != nil {
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("Request", id)
	}
	return nil
}

// ListEscalatable returns open requests past their escalation deadline that
// have not yet been escalated.
func (r *requestRepository) ListEscalatable(ctx context.Context, now time.Time) ([]models.Request, error) {
	var requests []models.Request
	if err := r.db.WithContext(ctx).
		Where("escalation_deadline IS NOT NULL AND escalation_deadline <= ?", now).
		Where("escalated_at IS NULL").
		Where("status NOT IN ?", []models.RequestStatus{
			models.StatusCompleted, models.StatusRejected, models.StatusCancelled,
		}).
		Order("escalation_deadline ASC").
		Find(&requests).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return requests, nil
}

// MarkEscalated stamps escalated_at exactly once. The escalated_at IS NULL
// guard makes concurrent sweepers idempotent: only one wins, the rest see
// false with no error.
func (r *requestRepository) MarkEscalated(ctx context.Context, id string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Request{}).
		Where("id = ? AND escalated_at IS NULL", id).
		Update("escalated_at", at)
	if result.Error != nil {
		return false, models.NewInternalError(result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *requestRepository) AppendEvent(ctx context.Context, event *models.RequestEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *requestRepository) ListEvents(ctx context.Context, requestID string) ([]models.RequestEvent, error) {
	var events []models.RequestEvent
	if err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at ASC, id ASC").
		Find(&events).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return events, nil
}
