package models

import (
	"errors"
	"fmt"
)

// Error codes carried by AppError.
const (
	CodeNotFound      = "NOT_FOUND"
	CodeValidation    = "VALIDATION_ERROR"
	CodeDuplicateEdge = "DUPLICATE_EDGE"
	CodeEdgeNotFound  = "EDGE_NOT_FOUND"
	CodePersistence   = "PERSISTENCE_ERROR"
	CodeConfiguration = "CONFIGURATION_ERROR"
)

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

// HasCode reports whether err wraps an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}

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

// NewDuplicateEdgeError reports that follower already follows followed.
func NewDuplicateEdgeError(followerID, followedID uint) *AppError {
	return &AppError{
		Code:    CodeDuplicateEdge,
		Message: fmt.Sprintf("user %d already follows user %d", followerID, followedID),
	}
}

// NewEdgeNotFoundError reports that no follow edge exists for the pair.
func NewEdgeNotFoundError(followerID, followedID uint) *AppError {
	return &AppError{
		Code:    CodeEdgeNotFound,
		Message: fmt.Sprintf("user %d does not follow user %d", followerID, followedID),
	}
}

// NewPersistenceError wraps a store-level failure.
func NewPersistenceError(err error) *AppError {
	return &AppError{
		Code:    CodePersistence,
		Message: "persistence failure",
		Err:     err,
	}
}

// NewConfigurationError reports an invalid static configuration such as a
// role table without exactly one default role.
func NewConfigurationError(message string) *AppError {
	return &AppError{
		Code:    CodeConfiguration,
		Message: message,
	}
}
