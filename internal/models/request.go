// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// RequestType identifies which fulfillment lifecycle a request follows.
type RequestType string

const (
	// RequestTypeSupplyOrder is a supply order that consumes inventory on fulfillment.
	RequestTypeSupplyOrder RequestType = "supply-order"
	// RequestTypeKeyRequest is a request for a physical key or access card.
	RequestTypeKeyRequest RequestType = "key-request"
	// RequestTypeRoutedForm is a routed form submission with no inventory impact.
	RequestTypeRoutedForm RequestType = "routed-form"
)

// KnownRequestTypes lists every type the engine accepts at intake.
var KnownRequestTypes = []RequestType{
	RequestTypeSupplyOrder,
	RequestTypeKeyRequest,
	RequestTypeRoutedForm,
}

// RequestStatus represents a state in the fulfillment state machine.
type RequestStatus string

const (
	StatusSubmitted   RequestStatus = "submitted"
	StatusUnderReview RequestStatus = "under_review"
	StatusApproved    RequestStatus = "approved"
	StatusRejected    RequestStatus = "rejected"
	StatusReceived    RequestStatus = "received"
	StatusPicking     RequestStatus = "picking"
	StatusReady       RequestStatus = "ready"
	StatusCompleted   RequestStatus = "completed"
	StatusCancelled   RequestStatus = "cancelled"
)

// SystemActorID attributes engine-initiated mutations (auto-approval).
const SystemActorID = "system"

// transitionGraph is the single source of truth for legal edges. Every status
// mutation goes through RequestService.Apply, which consults this table; no
// other code path can force an illegal status.
var transitionGraph = map[RequestStatus][]RequestStatus{
	StatusSubmitted:   {StatusUnderReview, StatusApproved, StatusRejected, StatusCancelled},
	StatusUnderReview: {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:    {StatusReceived},
	StatusReceived:    {StatusPicking, StatusCancelled},
	StatusPicking:     {StatusReady},
	StatusReady:       {StatusCompleted},
	// terminal states have no outgoing edges
	StatusCompleted: {},
	StatusRejected:  {},
	StatusCancelled: {},
}

// fulfillmentStages are the post-approval stages that only apply to request
// types with a physical fulfillment leg.
var fulfillmentStages = map[RequestStatus]bool{
	StatusReceived: true,
	StatusPicking:  true,
	StatusReady:    true,
}

// CanTransition reports whether `from -> to` is a legal edge for the type.
// Routed forms skip the physical fulfillment stages: they close directly from
// approved.
func CanTransition(reqType RequestType, from, to RequestStatus) bool {
	if reqType == RequestTypeRoutedForm {
		if fulfillmentStages[to] || fulfillmentStages[from] {
			return false
		}
		if from == StatusApproved {
			return to == StatusCompleted
		}
	}
	for _, next := range transitionGraph[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status is a closed state. Terminal requests
// are immutable except for the archive flag.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusCancelled
}

// IsOpen is the complement of IsTerminal.
func (s RequestStatus) IsOpen() bool {
	return !s.IsTerminal()
}

// CancellableBy reports whether the requester may cancel from this status.
func (s RequestStatus) CancellableBy() bool {
	return s == StatusSubmitted || s == StatusUnderReview || s == StatusReceived
}

// Actor is the acting principal for a mutation. The engine treats it as an
// opaque credential supplied by the identity collaborator.
type Actor struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// SystemActor returns the actor used for engine-initiated mutations.
func SystemActor() Actor {
	return Actor{ID: SystemActorID}
}

// Request is a routed, stateful work item: a supply order, key request or
// routed form submission.
type Request struct {
	ID                 string        `gorm:"primaryKey;size:36" json:"id"`
	Type               RequestType   `gorm:"type:varchar(20);not null;index:idx_requests_type" json:"type"`
	Fields             FieldMap      `gorm:"serializer:json" json:"fields"`
	Status             RequestStatus `gorm:"type:varchar(20);not null;index:idx_requests_status" json:"status"`
	Priority           int           `json:"priority"`
	AssignedRole       *string       `gorm:"size:64" json:"assigned_role,omitempty"`
	AssignedPrincipal  *string       `gorm:"size:64;index" json:"assigned_principal,omitempty"`
	AutoApproved       bool          `json:"auto_approved"`
	MatchedRuleID      *string       `gorm:"size:36" json:"matched_rule_id,omitempty"`
	EscalationDeadline *time.Time    `gorm:"index" json:"escalation_deadline,omitempty"`
	EscalatedAt        *time.Time    `json:"escalated_at,omitempty"`
	Archived           bool          `json:"archived"`
	RequesterID        string        `gorm:"size:64;not null;index" json:"requester_id"`
	Version            int64         `gorm:"not null;default:1" json:"version"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`

	Lines []RequestLine `gorm:"foreignKey:RequestID" json:"lines,omitempty"`
}

// TableName specifies the table name for GORM
func (Request) TableName() string {
	return "requests"
}

// RequestLine is one inventory line item on a supply order.
type RequestLine struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	RequestID string `gorm:"size:36;not null;index" json:"request_id"`
	ItemID    string `gorm:"size:36;not null" json:"item_id"`
	Quantity  int64  `gorm:"not null" json:"quantity"`
}

// TableName specifies the table name for GORM
func (RequestLine) TableName() string {
	return "request_lines"
}

// RequestEvent is one entry in a request's transition audit trail.
type RequestEvent struct {
	ID         uint          `gorm:"primaryKey" json:"id"`
	RequestID  string        `gorm:"size:36;not null;index" json:"request_id"`
	FromStatus RequestStatus `gorm:"type:varchar(20)" json:"from_status"`
	ToStatus   RequestStatus `gorm:"type:varchar(20);not null" json:"to_status"`
	Actor      string        `gorm:"size:64;not null" json:"actor"`
	Note       string        `gorm:"size:1024" json:"note,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// TableName specifies the table name for GORM
func (RequestEvent) TableName() string {
	return "request_events"
}
