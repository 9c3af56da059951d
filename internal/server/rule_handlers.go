package server

import (
	"github.com/gofiber/fiber/v2"

	"opsdesk/internal/models"
)

// CreateRule creates a new routing rule. The rule only affects requests
// submitted after it becomes active.
func (s *Server) CreateRule(c *fiber.Ctx) error {
	var rule models.RoutingRule
	if err := c.BodyParser(&rule); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	created, err := s.ruleService.CreateRule(c.UserContext(), &rule)
	if err != nil {
		return handleError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

// ListRules returns rules in evaluation order.
func (s *Server) ListRules(c *fiber.Ctx) error {
	includeInactive := c.QueryBool("include_inactive", false)
	rules, err := s.ruleService.ListRules(c.UserContext(), includeInactive)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(fiber.Map{"rules": rules})
}

// GetRule returns one rule.
func (s *Server) GetRule(c *fiber.Ctx) error {
	id, err := s.parseUUID(c, "id")
	if err != nil {
		return nil
	}

	rule, err := s.ruleService.GetRule(c.UserContext(), id)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(rule)
}

// UpdateRule replaces a rule's attributes. Existing requests keep the
// decision they were routed with.
func (s *Server) UpdateRule(c *fiber.Ctx) error {
	id, err := s.parseUUID(c, "id")
	if err != nil {
		return nil
	}

	var rule models.RoutingRule
	if err := c.BodyParser(&rule); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	updated, err := s.ruleService.UpdateRule(c.UserContext(), id, &rule)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(updated)
}

// ActivateRule enables a rule for future routing.
func (s *Server) ActivateRule(c *fiber.Ctx) error {
	return s.setRuleActive(c, true)
}

// DeactivateRule disables a rule without deleting it.
func (s *Server) DeactivateRule(c *fiber.Ctx) error {
	return s.setRuleActive(c, false)
}

func (s *Server) setRuleActive(c *fiber.Ctx, active bool) error {
	id, err := s.parseUUID(c, "id")
	if err != nil {
		return nil
	}

	rule, err := s.ruleService.SetRuleActive(c.UserContext(), id, active)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(rule)
}

// DeleteRule removes a rule permanently.
func (s *Server) DeleteRule(c *fiber.Ctx) error {
	id, err := s.parseUUID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.ruleService.DeleteRule(c.UserContext(), id); err != nil {
		return handleError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
