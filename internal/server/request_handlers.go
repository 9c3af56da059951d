package server

import (
	"github.com/gofiber/fiber/v2"

	"opsdesk/internal/middleware"
	"opsdesk/internal/models"
	"opsdesk/internal/repository"
	"opsdesk/internal/service"
)

// CreateRequest handles intake of a new request. The caller becomes the
// requester; routing and any auto-approval happen before the response.
func (s *Server) CreateRequest(c *fiber.Ctx) error {
	actor := middleware.ActorFromLocals(c)

	var input service.CreateRequestInput
	if err := c.BodyParser(&input); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	request, err := s.requestService.CreateRequest(c.UserContext(), actor, input)
	if err != nil {
		return handleError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(request)
}

// ListRequests returns requests, filterable by type, status, assignee and
// requester. Archived requests are excluded unless asked for.
func (s *Server) ListRequests(c *fiber.Ctx) error {
	pagination := parsePagination(c, 50)
	filter := repository.RequestFilter{
		IncludeArchived: c.QueryBool("include_archived", false),
		Limit:           pagination.Limit,
		Offset:          pagination.Offset,
	}

	if raw := c.Query("type"); raw != "" {
		t := models.RequestType(raw)
		filter.Type = &t
	}
	if raw := c.Query("status"); raw != "" {
		st := models.RequestStatus(raw)
		filter.Status = &st
	}
	if raw := c.Query("requester_id"); raw != "" {
		filter.RequesterID = &raw
	}
	if raw := c.Query("assigned_principal"); raw != "" {
		filter.AssignedPrincipal = &raw
	}
	if raw := c.Query("assigned_role"); raw != "" {
		filter.AssignedRole = &raw
	}

	requests, err := s.requestService.ListRequests(c.UserContext(), filter)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(fiber.Map{
		"requests": requests,
		"limit":    pagination.Limit,
		"offset":   pagination.Offset,
	})
}

// GetRequest returns one request with its lines.
func (s *Server) GetRequest(c *fiber.Ctx) error {
	id, err := s.parseUUID(c, "id")
	if err != nil {
		return nil
	}

	request, err := s.requestService.GetRequest(c.UserContext(), id)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(request)
}

// GetRequestHistory returns the transition audit trail of a request.
func (s *Server) GetRequestHistory(c *fiber.Ctx) error {
	id, err := s.parseUUID(c, "id")
	if err != nil {
		return nil
	}

	events, err := s.requestService.History(c.UserContext(), id)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(fiber.Map{"events": events})
}

// transitionInput is the body of a transition attempt. The version is the one
// the caller last read; a stale version is rejected with a conflict.
type transitionInput struct {
	ToStatus models.RequestStatus `json:"to_status"`
	Version  int64                `json:"version"`
	Note     string               `json:"note"`
}

// ApplyTransition attempts one state transition on a request.
func (s *Server) ApplyTransition(c *fiber.Ctx) error {
	actor := middleware.ActorFromLocals(c)

	id, err := s.parseUUID(c, "id")
	if err != nil {
		return nil
	}

	var input transitionInput
	if err := c.BodyParser(&input); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if input.ToStatus == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("to_status is required"))
	}
	if input.Version <= 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("version is required"))
	}

	request, err := s.requestService.Apply(c.UserContext(), actor, id, input.ToStatus, input.Version, input.Note)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(request)
}

type archiveInput struct {
	Archived *bool `json:"archived"`
}

// ArchiveRequest flags or unflags a completed request as archived. Only the
// requester may do this.
func (s *Server) ArchiveRequest(c *fiber.Ctx) error {
	actor := middleware.ActorFromLocals(c)

	id, err := s.parseUUID(c, "id")
	if err != nil {
		return nil
	}

	input := archiveInput{}
	if err := c.BodyParser(&input); err != nil && len(c.Body()) > 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	archived := true
	if input.Archived != nil {
		archived = *input.Archived
	}

	request, err := s.requestService.Archive(c.UserContext(), actor, id, archived)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(request)
}
