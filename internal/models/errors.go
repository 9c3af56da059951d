package models

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Error codes for the fulfillment engine. The first four are the engine's own
// failure taxonomy; the rest are shared API-level codes.
const (
	CodeInvalidTransition      = "INVALID_TRANSITION"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeInsufficientStock      = "INSUFFICIENT_STOCK"
	CodeMalformedCondition     = "MALFORMED_CONDITION"
	CodeNotFound               = "NOT_FOUND"
	CodeValidation             = "VALIDATION_ERROR"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeInternal               = "INTERNAL_ERROR"
)

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "Internal server error",
		Err:     err,
	}
}

// NewInvalidTransitionError reports an illegal state-machine edge. The request
// is left untouched; the message is intended to be user-visible.
func NewInvalidTransitionError(reqType RequestType, from, to RequestStatus) *AppError {
	return &AppError{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("cannot transition a %s request from %s to %s", reqType, from, to),
	}
}

// NewConcurrentModificationError reports a stale version guard failure.
// Callers should re-read the request and retry rather than overwrite.
func NewConcurrentModificationError(requestID string, presented int64) *AppError {
	return &AppError{
		Code:    CodeConcurrentModification,
		Message: fmt.Sprintf("request %s was modified concurrently (presented version %d is stale)", requestID, presented),
	}
}

// NewInsufficientStockError reports a ledger adjustment that would drive an
// item's quantity negative. Nothing is written.
func NewInsufficientStockError(itemID string, have, want int64) *AppError {
	return &AppError{
		Code:    CodeInsufficientStock,
		Message: fmt.Sprintf("insufficient stock for item %s: have %d, need %d", itemID, have, want),
	}
}

// NewMalformedConditionError reports a rule predicate that cannot be
// evaluated. The router treats such rules as non-matching.
func NewMalformedConditionError(reason string) *AppError {
	return &AppError{
		Code:    CodeMalformedCondition,
		Message: "malformed rule condition: " + reason,
	}
}

// HTTPStatus maps an error to the HTTP status the API surfaces it with.
func HTTPStatus(err error) int {
	appErr, ok := err.(*AppError)
	if !ok {
		return fiber.StatusInternalServerError
	}
	switch appErr.Code {
	case CodeNotFound:
		return fiber.StatusNotFound
	case CodeValidation, CodeMalformedCondition:
		return fiber.StatusBadRequest
	case CodeUnauthorized:
		return fiber.StatusForbidden
	case CodeInvalidTransition, CodeConcurrentModification, CodeInsufficientStock:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// RespondWithError creates a standardized error response
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	var response ErrorResponse

	if appErr, ok := err.(*AppError); ok {
		response = ErrorResponse{
			Error: appErr.Message,
			Code:  appErr.Code,
		}
		if appErr.Err != nil {
			response.Details = appErr.Err.Error()
		}
	} else {
		response = ErrorResponse{
			Error: err.Error(),
		}
	}

	return c.Status(status).JSON(response)
}
