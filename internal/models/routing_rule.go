package models

import (
	"time"
)

// RoutingRule is a priority-ordered, conditionally-matched policy that assigns
// ownership and optional auto-approval to an incoming request. Rules are
// mutable, but edits never retroactively re-route existing requests.
type RoutingRule struct {
	ID                string       `gorm:"primaryKey;size:36" json:"id"`
	Name              string       `gorm:"size:128;not null" json:"name"`
	AppliesToType     *RequestType `gorm:"type:varchar(20);index" json:"applies_to_type,omitempty"`
	Priority          int          `gorm:"not null;index:idx_rules_priority" json:"priority"`
	IsActive          bool         `gorm:"not null;default:true;index" json:"is_active"`
	Condition         Condition    `gorm:"serializer:json" json:"condition"`
	AssignedRole      *string      `gorm:"size:64" json:"assigned_role,omitempty"`
	AssignedPrincipal *string      `gorm:"size:64" json:"assigned_principal,omitempty"`
	AutoApprove       bool         `json:"auto_approve"`
	EscalationHours   *float64     `json:"escalation_hours,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (RoutingRule) TableName() string {
	return "routing_rules"
}

// AppliesTo reports whether the rule is in scope for the request type.
// A nil AppliesToType means the rule applies to all types.
func (r *RoutingRule) AppliesTo(t RequestType) bool {
	return r.AppliesToType == nil || *r.AppliesToType == t
}

// RoutingDecision is the router's output for one request. The zero decision
// (DefaultDecision) is the explicit, observable "no matching rule" outcome:
// unassigned, no auto-approval, no deadline.
type RoutingDecision struct {
	MatchedRuleID      *string    `json:"matched_rule_id,omitempty"`
	AssignedRole       *string    `json:"assigned_role,omitempty"`
	AssignedPrincipal  *string    `json:"assigned_principal,omitempty"`
	AutoApprove        bool       `json:"auto_approve"`
	EscalationDeadline *time.Time `json:"escalation_deadline,omitempty"`
}

// DefaultDecision is returned when no active rule matches. It is a valid
// outcome, never an error.
func DefaultDecision() RoutingDecision {
	return RoutingDecision{}
}

// DecisionFromRule builds the routing decision a matched rule produces,
// deriving the escalation deadline from EscalationHours relative to now.
func DecisionFromRule(rule *RoutingRule, now time.Time) RoutingDecision {
	d := RoutingDecision{
		MatchedRuleID:     &rule.ID,
		AssignedRole:      rule.AssignedRole,
		AssignedPrincipal: rule.AssignedPrincipal,
		AutoApprove:       rule.AutoApprove,
	}
	if rule.EscalationHours != nil && *rule.EscalationHours >= 0 {
		deadline := now.Add(time.Duration(*rule.EscalationHours * float64(time.Hour)))
		d.EscalationDeadline = &deadline
	}
	return d
}
