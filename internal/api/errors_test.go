package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/repubhub/republic-api/internal/domain"
	"github.com/repubhub/republic-api/internal/service/auth"
	"github.com/repubhub/republic-api/internal/store"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"task not found", store.ErrTaskNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("load: %w", store.ErrTaskNotFound), http.StatusNotFound},
		{"duplicate", store.ErrDuplicate, http.StatusConflict},
		{"child exists", store.ErrChildExists, http.StatusConflict},
		{"validation", domain.ErrValidation, http.StatusBadRequest},
		{"recurrence invariant", domain.ErrRecurrenceTypeRequired, http.StatusBadRequest},
		{"invalid entity", store.ErrInvalidEntity, http.StatusBadRequest},
		{"expired token", auth.ErrExpiredToken, http.StatusUnauthorized},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, MapErrorToStatusCode(tc.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Task not found", GetSafeErrorMessage(store.ErrTaskNotFound))
	assert.Equal(t, "Invalid task data", GetSafeErrorMessage(domain.ErrRecurrenceIntervalInvalid))
	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(errors.New("pq: column does not exist")))
	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(nil))
}

func TestSanitizeValidationError(t *testing.T) {
	t.Parallel()

	err := errors.New(
		"Key: 'CreateTaskRequest.Title' Error:Field validation for 'Title' failed on the 'required' tag")
	assert.Equal(t, "Invalid Title: required field", SanitizeValidationError(err))

	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("something else")))
}
