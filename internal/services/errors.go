package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/edforge/exam-service/internal/validator"
)

// ===== NOT FOUND ERRORS =====

var (
	ErrTemplateNotFound = errors.New("exam template not found")
	ErrInstanceNotFound = errors.New("exam instance not found")
	ErrSectionNotFound  = errors.New("exam section not found")
	ErrQuestionNotFound = errors.New("exam question not found")
	ErrCourseNotFound   = errors.New("course not found")
	ErrUserNotFound     = errors.New("user not found")
)

// ===== BUSINESS RULE ERRORS (BadRequest family) =====

var (
	ErrTemplateNotPublished    = errors.New("cannot create instance from unpublished template")
	ErrInstanceNotScheduled    = errors.New("exam is not in scheduled state")
	ErrInstanceNotInProgress   = errors.New("exam is not in progress")
	ErrInstanceNotAvailable    = errors.New("exam is not available at this time")
	ErrSectionAlreadyCompleted = errors.New("section is already completed")
	ErrQuestionWrongInstance   = errors.New("question does not belong to this exam instance")
)

// IsNotFound reports whether err belongs to the NotFound family.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound) ||
		errors.Is(err, ErrInstanceNotFound) ||
		errors.Is(err, ErrSectionNotFound) ||
		errors.Is(err, ErrQuestionNotFound) ||
		errors.Is(err, ErrCourseNotFound) ||
		errors.Is(err, ErrUserNotFound)
}

// IsBadRequest reports whether err belongs to the BadRequest family.
func IsBadRequest(err error) bool {
	if errors.Is(err, ErrTemplateNotPublished) ||
		errors.Is(err, ErrInstanceNotScheduled) ||
		errors.Is(err, ErrInstanceNotInProgress) ||
		errors.Is(err, ErrInstanceNotAvailable) ||
		errors.Is(err, ErrSectionAlreadyCompleted) ||
		errors.Is(err, ErrQuestionWrongInstance) {
		return true
	}
	var vErr *TemplateInvalidError
	return errors.As(err, &vErr)
}

// ===== PERMISSION ERRORS =====

// PermissionError is returned when a user acts on a resource they do not own
// or lack the role for.
type PermissionError struct {
	UserID     string
	ResourceID uint
	Resource   string
	Action     string
	Reason     string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s cannot %s %s %d: %s", e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// IsPermissionError reports whether err is an ownership/role violation.
func IsPermissionError(err error) bool {
	var pErr *PermissionError
	return errors.As(err, &pErr)
}

// ===== VALIDATION ERRORS =====

// TemplateInvalidError carries the full list of violations collected by the
// template validation engine. It is a BadRequest: the caller gets every
// violation at once, not just the first.
type TemplateInvalidError struct {
	TemplateID uint
	Errors     []validator.TemplateValidationError
}

func (e *TemplateInvalidError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ve := range e.Errors {
		msgs = append(msgs, ve.Message)
	}
	return fmt.Sprintf("template %d validation failed: %s", e.TemplateID, strings.Join(msgs, "; "))
}

func NewTemplateInvalidError(templateID uint, errs []validator.TemplateValidationError) *TemplateInvalidError {
	return &TemplateInvalidError{TemplateID: templateID, Errors: errs}
}
