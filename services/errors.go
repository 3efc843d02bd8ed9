package services

import (
	"errors"
	"fmt"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/repositories"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound                  ErrorType = "not_found"
	ErrorTypeValidation                ErrorType = "validation"
	ErrorTypeUnauthorized              ErrorType = "unauthorized"
	ErrorTypePermissionDenied          ErrorType = "permission_denied"
	ErrorTypeInvalidTransition         ErrorType = "invalid_transition"
	ErrorTypeMissingReassignmentReason ErrorType = "missing_reassignment_reason"
	ErrorTypeLedgerIntegrityViolation  ErrorType = "ledger_integrity_violation"
	ErrorTypeConflict                  ErrorType = "conflict"
	ErrorTypeInternal                  ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Sentinels for errors.Is comparisons. They match any DomainError of the
// same type; use the constructors below to build errors carrying details.
var (
	ErrNotFound                  = NewDomainError(ErrorTypeNotFound, "not found", nil)
	ErrInvalidInput              = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrUnauthorized              = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrPermissionDenied          = NewDomainError(ErrorTypePermissionDenied, "permission denied", nil)
	ErrInvalidTransition         = NewDomainError(ErrorTypeInvalidTransition, "invalid transition", nil)
	ErrMissingReassignmentReason = NewDomainError(ErrorTypeMissingReassignmentReason, "reassignment reason required", nil)
	ErrLedgerIntegrityViolation  = NewDomainError(ErrorTypeLedgerIntegrityViolation, "ledger integrity violation", nil)
	ErrConflict                  = NewDomainError(ErrorTypeConflict, "conflict", nil)
	ErrInternal                  = NewDomainError(ErrorTypeInternal, "internal server error", nil)
)

// NewValidationError creates a validation error
func NewValidationError(message string) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, nil)
}

// NewNotFoundError creates a not found error for the given resource
func NewNotFoundError(resource string, id interface{}, err error) *DomainError {
	return NewDomainError(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource), err).
		WithDetail("resource", resource).
		WithDetail("id", id)
}

// NewPermissionDenied creates a permission error naming the role and action
func NewPermissionDenied(role, action, resource string) *DomainError {
	return NewDomainError(ErrorTypePermissionDenied,
		fmt.Sprintf("role %q may not %s %s", role, action, resource), nil).
		WithDetail("role", role).
		WithDetail("action", action).
		WithDetail("resource", resource)
}

// NewInvalidTransition creates an error for a rejected lifecycle event
func NewInvalidTransition(from, event, role string) *DomainError {
	return NewDomainError(ErrorTypeInvalidTransition,
		fmt.Sprintf("cannot %s from %s as %s", event, from, role), nil).
		WithDetail("from", from).
		WithDetail("event", event).
		WithDetail("role", role)
}

// NewMissingReassignmentReason creates the error for a reassignment without a reason
func NewMissingReassignmentReason(shipmentRef string) *DomainError {
	return NewDomainError(ErrorTypeMissingReassignmentReason,
		fmt.Sprintf("shipment %s is already assigned; a reassignment reason is required", shipmentRef), nil).
		WithDetail("shipment_ref", shipmentRef)
}

// NewLedgerIntegrityViolation reports the first event whose stored hash
// does not match the recomputed one
func NewLedgerIntegrityViolation(eventID int64, expected, actual string) *DomainError {
	return NewDomainError(ErrorTypeLedgerIntegrityViolation,
		fmt.Sprintf("hash mismatch at event %d", eventID), nil).
		WithDetail("event_id", eventID).
		WithDetail("expected", expected).
		WithDetail("actual", actual)
}

// NewLedgerActorMismatch reports an event whose stored actor id no longer
// matches the actor reference covered by its hash
func NewLedgerActorMismatch(eventID int64, actorRef, actorID string) *DomainError {
	return NewDomainError(ErrorTypeLedgerIntegrityViolation,
		fmt.Sprintf("actor mismatch at event %d", eventID), nil).
		WithDetail("event_id", eventID).
		WithDetail("field", "actor_id").
		WithDetail("expected", actorRef).
		WithDetail("actual", actorID)
}

// Error type checking helper functions

func hasType(err error, errType ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == errType
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return hasType(err, ErrorTypeUnauthorized)
}

// IsPermissionDenied checks if an error is a permission error
func IsPermissionDenied(err error) bool {
	return hasType(err, ErrorTypePermissionDenied)
}

// IsInvalidTransition checks if an error is a rejected lifecycle event
func IsInvalidTransition(err error) bool {
	return hasType(err, ErrorTypeInvalidTransition)
}

// IsMissingReassignmentReason checks if an error is a reassignment without a reason
func IsMissingReassignmentReason(err error) bool {
	return hasType(err, ErrorTypeMissingReassignmentReason)
}

// IsLedgerIntegrityViolation checks if an error is a broken hash chain
func IsLedgerIntegrityViolation(err error) bool {
	return hasType(err, ErrorTypeLedgerIntegrityViolation)
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return hasType(err, ErrorTypeConflict)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return hasType(err, ErrorTypeInternal)
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapRepository maps a repository failure to a domain error: missing rows
// become not found, anything else is internal
func WrapRepository(resource string, id interface{}, err error) error {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	if errors.Is(err, repositories.ErrNotFound) {
		return NewNotFoundError(resource, id, err)
	}
	return WrapInternal(fmt.Sprintf("failed to access %s", resource), err)
}
