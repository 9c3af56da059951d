// Package validation holds intake and rule admin checks that run before
// anything touches the database.
package validation

import (
	"fmt"

	"opsdesk/internal/models"
)

const (
	maxFieldCount     = 64
	maxFieldNameLen   = 128
	maxLineQuantity   = 10_000
	maxLinesPerOrder  = 50
	maxEscalationHrs  = 24 * 365
	maxRuleNameLength = 128
)

// ValidateRequestType checks the type against the closed set of lifecycles.
func ValidateRequestType(t models.RequestType) error {
	for _, known := range models.KnownRequestTypes {
		if t == known {
			return nil
		}
	}
	return models.NewValidationError(fmt.Sprintf("unknown request type %q", t))
}

// ValidateFields bounds the intake field map so predicates evaluate over a
// sane surface.
func ValidateFields(fields models.FieldMap) error {
	if len(fields) > maxFieldCount {
		return models.NewValidationError(fmt.Sprintf("too many fields (max %d)", maxFieldCount))
	}
	for name := range fields {
		if name == "" {
			return models.NewValidationError("field names must not be empty")
		}
		if len(name) > maxFieldNameLen {
			return models.NewValidationError(fmt.Sprintf("field name %q exceeds %d characters", name[:16]+"...", maxFieldNameLen))
		}
	}
	return nil
}

// ValidateLines checks the inventory lines on a supply order. Non-supply
// request types must not carry lines.
func ValidateLines(reqType models.RequestType, lines []models.RequestLine) error {
	if reqType != models.RequestTypeSupplyOrder {
		if len(lines) > 0 {
			return models.NewValidationError(fmt.Sprintf("%s requests do not carry inventory lines", reqType))
		}
		return nil
	}
	if len(lines) > maxLinesPerOrder {
		return models.NewValidationError(fmt.Sprintf("too many lines (max %d)", maxLinesPerOrder))
	}
	seen := make(map[string]bool, len(lines))
	for _, line := range lines {
		if line.ItemID == "" {
			return models.NewValidationError("each line requires an item_id")
		}
		if line.Quantity <= 0 {
			return models.NewValidationError("line quantities must be positive")
		}
		if line.Quantity > maxLineQuantity {
			return models.NewValidationError(fmt.Sprintf("line quantity exceeds %d", maxLineQuantity))
		}
		if seen[line.ItemID] {
			return models.NewValidationError(fmt.Sprintf("duplicate line for item %s", line.ItemID))
		}
		seen[line.ItemID] = true
	}
	return nil
}

// ValidateRule checks a routing rule before it is created or updated.
// Assignment targets are mutually exclusive; a rule may also assign nothing
// and exist purely for auto-approval or escalation.
func ValidateRule(rule *models.RoutingRule) error {
	if rule.Name == "" {
		return models.NewValidationError("rule name is required")
	}
	if len(rule.Name) > maxRuleNameLength {
		return models.NewValidationError(fmt.Sprintf("rule name exceeds %d characters", maxRuleNameLength))
	}
	if rule.AppliesToType != nil {
		if err := ValidateRequestType(*rule.AppliesToType); err != nil {
			return err
		}
	}
	if rule.AssignedRole != nil && rule.AssignedPrincipal != nil {
		return models.NewValidationError("assigned_role and assigned_principal are mutually exclusive")
	}
	if rule.AssignedRole != nil && *rule.AssignedRole == "" {
		return models.NewValidationError("assigned_role must not be empty when set")
	}
	if rule.AssignedPrincipal != nil && *rule.AssignedPrincipal == "" {
		return models.NewValidationError("assigned_principal must not be empty when set")
	}
	if rule.EscalationHours != nil {
		if *rule.EscalationHours < 0 {
			return models.NewValidationError("escalation_hours must not be negative")
		}
		if *rule.EscalationHours > maxEscalationHrs {
			return models.NewValidationError("escalation_hours is unreasonably large")
		}
	}
	return rule.Condition.Validate()
}
