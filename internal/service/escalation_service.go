package service

import (
	"context"
	"log/slog"
	"time"

	"opsdesk/internal/middleware"
	"opsdesk/internal/models"
	"opsdesk/internal/notifications"
	"opsdesk/internal/observability"
	"opsdesk/internal/repository"
)

// EscalationService periodically marks open requests whose escalation
// deadline has passed. Marking is idempotent: the database guard guarantees
// exactly one sweep wins per request even with overlapping sweepers.
type EscalationService struct {
	repo     repository.RequestRepository
	notifier *notifications.Notifier
	interval time.Duration
	now      func() time.Time
}

// NewEscalationService returns a new EscalationService sweeping at the given interval.
func NewEscalationService(repo repository.RequestRepository, notifier *notifications.Notifier, interval time.Duration) *EscalationService {
	return &EscalationService{
		repo:     repo,
		notifier: notifier,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps on a ticker until the context is cancelled.
func (s *EscalationService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	middleware.Logger.Info("escalation sweeper started",
		slog.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			middleware.Logger.Info("escalation sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				middleware.Logger.ErrorContext(ctx, "escalation sweep failed",
					slog.String("error", err.Error()))
			}
		}
	}
}

// SweepOnce marks every overdue request once and returns how many were
// escalated in this pass. Requests another sweeper already marked are skipped
// silently.
func (s *EscalationService) SweepOnce(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() {
		observability.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	now := s.now()
	due, err := s.repo.ListEscalatable(ctx, now)
	if err != nil {
		return 0, err
	}

	escalated := 0
	for i := range due {
		request := &due[i]
		won, err := s.repo.MarkEscalated(ctx, request.ID, now)
		if err != nil {
			middleware.Logger.ErrorContext(ctx, "failed to mark request escalated",
				slog.String("request_id", request.ID),
				slog.String("error", err.Error()))
			continue
		}
		if !won {
			continue
		}

		escalated++
		observability.EscalationsFired.Inc()
		middleware.Logger.InfoContext(ctx, "request escalated",
			slog.String("request_id", request.ID),
			slog.String("status", string(request.Status)),
			slog.Time("deadline", *request.EscalationDeadline))

		s.publishEscalated(ctx, request, now)
	}
	return escalated, nil
}

func (s *EscalationService) publishEscalated(ctx context.Context, request *models.Request, at time.Time) {
	if s.notifier == nil {
		return
	}
	payload := notifications.RequestEventPayload{
		Kind:        notifications.EventEscalated,
		RequestID:   request.ID,
		RequestType: string(request.Type),
		ToStatus:    string(request.Status),
		At:          at,
	}
	if request.AssignedPrincipal != nil {
		payload.Principal = *request.AssignedPrincipal
	}
	if request.AssignedRole != nil {
		payload.Role = *request.AssignedRole
	}
	if err := s.notifier.PublishRequestEvent(ctx, payload); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to publish escalation event",
			slog.String("request_id", request.ID),
			slog.String("error", err.Error()))
	}
}
