package service

import (
	"context"
	"log/slog"
	"time"

	"opsdesk/internal/cache"
	"opsdesk/internal/middleware"
	"opsdesk/internal/models"
	"opsdesk/internal/notifications"
	"opsdesk/internal/observability"
	"opsdesk/internal/repository"
	"opsdesk/internal/validation"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateRequestInput is the intake payload for a new request.
type CreateRequestInput struct {
	Type     models.RequestType   `json:"type"`
	Fields   models.FieldMap      `json:"fields"`
	Priority int                  `json:"priority"`
	Lines    []models.RequestLine `json:"lines"`
}

// RequestService orchestrates intake, routing and the fulfillment state
// machine. All status mutations flow through applyTx so the transition table
// and version guard cannot be bypassed.
type RequestService struct {
	db        *gorm.DB
	repo      repository.RequestRepository
	router    *RouterService
	inventory *InventoryService
	notifier  *notifications.Notifier
}

// NewRequestService returns a new RequestService.
func NewRequestService(db *gorm.DB, repo repository.RequestRepository, router *RouterService, inventory *InventoryService, notifier *notifications.Notifier) *RequestService {
	return &RequestService{
		db:        db,
		repo:      repo,
		router:    router,
		inventory: inventory,
		notifier:  notifier,
	}
}

// CreateRequest validates intake, routes the request and persists it. When the
// matched rule auto-approves, the submitted to approved transition happens in
// the same transaction, attributed to the system actor, so no observer ever
// sees an unapproved auto-approved request.
func (s *RequestService) CreateRequest(ctx context.Context, actor models.Actor, input CreateRequestInput) (*models.Request, error) {
	if actor.ID == "" {
		return nil, models.NewUnauthorizedError("an authenticated requester is required")
	}
	if err := validation.ValidateRequestType(input.Type); err != nil {
		return nil, err
	}
	if err := validation.ValidateFields(input.Fields); err != nil {
		return nil, err
	}
	if err := validation.ValidateLines(input.Type, input.Lines); err != nil {
		return nil, err
	}
	if input.Priority < 0 {
		return nil, models.NewValidationError("priority must not be negative")
	}

	decision, err := s.router.Route(ctx, input.Type, input.Fields)
	if err != nil {
		return nil, err
	}

	request := &models.Request{
		ID:                 uuid.NewString(),
		Type:               input.Type,
		Fields:             input.Fields,
		Status:             models.StatusSubmitted,
		Priority:           input.Priority,
		AssignedRole:       decision.AssignedRole,
		AssignedPrincipal:  decision.AssignedPrincipal,
		MatchedRuleID:      decision.MatchedRuleID,
		EscalationDeadline: decision.EscalationDeadline,
		RequesterID:        actor.ID,
		Version:            1,
		Lines:              input.Lines,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		txRepo := repository.NewRequestRepository(tx)
		if err := txRepo.Create(ctx, request); err != nil {
			return err
		}
		if err := txRepo.AppendEvent(ctx, &models.RequestEvent{
			RequestID: request.ID,
			ToStatus:  models.StatusSubmitted,
			Actor:     actor.ID,
		}); err != nil {
			return err
		}
		if decision.AutoApprove {
			if err := s.applyTx(ctx, txRepo, request, models.SystemActor(), models.StatusApproved, request.Version, "auto-approved by routing rule"); err != nil {
				return err
			}
			request.AutoApproved = true
			if err := tx.Model(&models.Request{}).Where("id = ?", request.ID).
				Update("auto_approved", true).Error; err != nil {
				return models.NewInternalError(err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishCreated(ctx, request, decision)
	return s.repo.GetByID(ctx, request.ID)
}

// GetRequest returns one request with its lines, read cache-aside. Mutation
// paths (Apply, Archive) read the store of record directly and drop the cached
// copy after writing.
func (s *RequestService) GetRequest(ctx context.Context, id string) (*models.Request, error) {
	return cache.Aside(ctx, cache.RequestKey(id), cache.RequestTTL, func() (*models.Request, error) {
		return s.repo.GetByID(ctx, id)
	})
}

// ListRequests returns requests matching the filter.
func (s *RequestService) ListRequests(ctx context.Context, filter repository.RequestFilter) ([]models.Request, error) {
	return s.repo.List(ctx, filter)
}

// History returns a request's transition audit trail.
func (s *RequestService) History(ctx context.Context, id string) ([]models.RequestEvent, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListEvents(ctx, id)
}

// Apply attempts one state transition under the optimistic version guard.
// The caller presents the version it read; a stale version fails with a
// conflict and no write. Supply orders moving picking to ready consume their
// inventory lines in the same transaction, so a failed consumption leaves the
// status untouched.
func (s *RequestService) Apply(ctx context.Context, actor models.Actor, requestID string, toStatus models.RequestStatus, expectedVersion int64, note string) (*models.Request, error) {
	request, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if request.Archived {
		return nil, models.NewValidationError("archived requests are read-only")
	}

	// Cancellation belongs to the requester alone, and only before
	// fulfillment work has started.
	if toStatus == models.StatusCancelled {
		if actor.ID != request.RequesterID {
			return nil, models.NewUnauthorizedError("only the requester may cancel a request")
		}
		if !request.Status.CancellableBy() {
			return nil, models.NewInvalidTransitionError(request.Type, request.Status, toStatus)
		}
	} else if actor.ID == request.RequesterID && actor.ID != models.SystemActorID && len(actor.Roles) == 0 {
		// Role-less requesters get no other staff transitions.
		return nil, models.NewUnauthorizedError("requesters may only cancel their own requests")
	}

	consumesStock := request.Type == models.RequestTypeSupplyOrder &&
		request.Status == models.StatusPicking &&
		toStatus == models.StatusReady &&
		len(request.Lines) > 0

	from := request.Status
	run := func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			txRepo := repository.NewRequestRepository(tx)
			if err := s.applyTx(ctx, txRepo, request, actor, toStatus, expectedVersion, note); err != nil {
				return err
			}
			if consumesStock {
				if err := s.inventory.consumeLinesTx(ctx, tx, request.ID, request.Lines, actor.ID); err != nil {
					return err
				}
			}
			return nil
		})
	}

	if consumesStock {
		err = s.inventory.withLineLocks(request.Lines, run)
	} else {
		err = run()
	}
	if err != nil {
		observability.TransitionsTotal.WithLabelValues(string(from), string(toStatus), "rejected").Inc()
		return nil, err
	}

	observability.TransitionsTotal.WithLabelValues(string(from), string(toStatus), "applied").Inc()
	cache.InvalidateRequest(ctx, request.ID)
	if consumesStock {
		for _, line := range request.Lines {
			observability.LedgerAdjustments.WithLabelValues(string(models.TxFulfillment), "applied").Inc()
			cache.InvalidateItemQuantity(ctx, line.ItemID)
		}
	}
	s.publishStatusChanged(ctx, request, from, toStatus, actor.ID)
	return s.repo.GetByID(ctx, request.ID)
}

// applyTx is the single write path for status changes. It checks the
// transition table, performs the version-guarded update and appends the audit
// event, all against the caller's transaction.
func (s *RequestService) applyTx(ctx context.Context, txRepo repository.RequestRepository, request *models.Request, actor models.Actor, toStatus models.RequestStatus, expectedVersion int64, note string) error {
	from := request.Status
	if !models.CanTransition(request.Type, from, toStatus) {
		return models.NewInvalidTransitionError(request.Type, from, toStatus)
	}

	updates := map[string]interface{}{"status": toStatus}
	if err := txRepo.ApplyVersioned(ctx, request, expectedVersion, updates); err != nil {
		return err
	}
	request.Status = toStatus

	return txRepo.AppendEvent(ctx, &models.RequestEvent{
		RequestID:  request.ID,
		FromStatus: from,
		ToStatus:   toStatus,
		Actor:      actor.ID,
		Note:       note,
	})
}

// Archive flags a completed request as archived. Only the requester may set
// the flag. Archived requests stay readable and keep their history; they only
// drop out of default listings.
func (s *RequestService) Archive(ctx context.Context, actor models.Actor, id string, archived bool) (*models.Request, error) {
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.ID != request.RequesterID {
		return nil, models.NewUnauthorizedError("only the requester may archive a request")
	}
	if request.Status != models.StatusCompleted {
		return nil, models.NewValidationError("only completed requests can be archived")
	}
	if err := s.repo.SetArchived(ctx, id, archived); err != nil {
		return nil, err
	}
	cache.InvalidateRequest(ctx, id)
	return s.repo.GetByID(ctx, id)
}

func (s *RequestService) publishCreated(ctx context.Context, request *models.Request, decision models.RoutingDecision) {
	if s.notifier == nil {
		return
	}
	payload := notifications.RequestEventPayload{
		Kind:        notifications.EventAssigned,
		RequestID:   request.ID,
		RequestType: string(request.Type),
		ToStatus:    string(request.Status),
	}
	if decision.AssignedRole != nil {
		payload.Role = *decision.AssignedRole
	}
	if decision.AssignedPrincipal != nil {
		payload.Principal = *decision.AssignedPrincipal
	}
	if err := s.notifier.PublishRequestEvent(ctx, payload); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to publish assignment event",
			slog.String("request_id", request.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *RequestService) publishStatusChanged(ctx context.Context, request *models.Request, from, to models.RequestStatus, actorID string) {
	if s.notifier == nil {
		return
	}
	payload := notifications.RequestEventPayload{
		Kind:        notifications.EventStatusChanged,
		RequestID:   request.ID,
		RequestType: string(request.Type),
		FromStatus:  string(from),
		ToStatus:    string(to),
		Actor:       actorID,
		At:          time.Now().UTC(),
	}
	if request.AssignedPrincipal != nil {
		payload.Principal = *request.AssignedPrincipal
	}
	if request.AssignedRole != nil {
		payload.Role = *request.AssignedRole
	}
	if err := s.notifier.PublishRequestEvent(ctx, payload); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to publish status event",
			slog.String("request_id", request.ID),
			slog.String("error", err.Error()),
		)
	}
}
