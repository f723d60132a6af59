package domain

import (
	"errors"
	"fmt"
)

// ErrVersionConflict is returned by repositories when an optimistic-lock
// check fails on save.
var ErrVersionConflict = errors.New("version conflict")

// ErrSchedulerSkip marks a timeout candidate that was already moved out of
// the triggering state by the time its transition ran.
var ErrSchedulerSkip = errors.New("scheduler skip")

// ValidationError reports malformed command input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NewValidationError creates a ValidationError.
func NewValidationError(msg string) error {
	return &ValidationError{Message: msg}
}

// NotFoundError reports a missing booking, proposal or listing.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// NewNotFoundError creates a NotFoundError for the given entity.
func NewNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ForbiddenError reports an actor acting on a booking it is not party to.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string { return e.Message }

// NewForbiddenError creates a ForbiddenError.
func NewForbiddenError(msg string) error {
	return &ForbiddenError{Message: msg}
}

// ConflictError is surfaced when a command lost an optimistic-concurrency
// race twice in a row.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// Unwrap lets callers match ErrVersionConflict through a ConflictError.
func (e *ConflictError) Unwrap() error { return ErrVersionConflict }

// NewConflictError creates a ConflictError.
func NewConflictError(msg string) error {
	return &ConflictError{Message: msg}
}

// InvalidTransitionError is returned when a trigger is not legal from the
// booking's current status.
type InvalidTransitionError struct {
	Current   string
	Requested string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s from status %s", e.Requested, e.Current)
}

// NewInvalidTransitionError creates an InvalidTransitionError.
func NewInvalidTransitionError(current, requested string) error {
	return &InvalidTransitionError{Current: current, Requested: requested}
}

// QuotaExceededError is returned when an admission check denies a
// transition. Limit names the LimitsConfig field that failed.
type QuotaExceededError struct {
	Limit   string
	Max     int
	Current int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s (limit %d, current %d)", e.Limit, e.Max, e.Current)
}

// NewQuotaExceededError creates a QuotaExceededError.
func NewQuotaExceededError(limit string, max int, current int64) error {
	return &QuotaExceededError{Limit: limit, Max: max, Current: current}
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}

// IsQuotaExceeded reports whether err is a QuotaExceededError for the given
// limit. An empty limit matches any quota error.
func IsQuotaExceeded(err error, limit string) bool {
	var target *QuotaExceededError
	if !errors.As(err, &target) {
		return false
	}
	return limit == "" || target.Limit == limit
}
