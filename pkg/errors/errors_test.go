package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelErrors_AreDistinct(t *testing.T) {
	sentinels := []error{
		ErrNotFound, ErrInvalidInput, ErrUnauthorized,
		ErrConflict, ErrInternal, ErrServiceUnavail,
	}

	for i := 0; i < len(sentinels); i++ {
		for j := i + 1; j < len(sentinels); j++ {
			assert.NotEqual(t, sentinels[i], sentinels[j])
		}
	}
}

func TestAppError_ErrorString(t *testing.T) {
	withCause := &AppError{Code: "SEARCH_UNAVAILABLE", Message: "search is down", Err: fmt.Errorf("dial tcp")}
	assert.Contains(t, withCause.Error(), "SEARCH_UNAVAILABLE")
	assert.Contains(t, withCause.Error(), "dial tcp")

	plain := &AppError{Code: "NOT_FOUND", Message: "category not found"}
	assert.Equal(t, "NOT_FOUND: category not found", plain.Error())
}

func TestInvalidInputf(t *testing.T) {
	err := InvalidInputf("unknown action %q", "archived")
	assert.Equal(t, http.StatusBadRequest, err.Status)
	assert.Equal(t, `unknown action "archived"`, err.Message)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestServiceUnavailable_KeepsCause(t *testing.T) {
	cause := errors.New("elasticsearch: connection refused")
	err := ServiceUnavailable("SEARCH_UNAVAILABLE", "search is temporarily unavailable", cause)

	require.NotNil(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, err.Status)
	assert.True(t, errors.Is(err, ErrServiceUnavail))
	assert.True(t, errors.Is(err, cause))
	assert.NotContains(t, err.Message, "connection refused")
}

func TestServiceUnavailable_NilCause(t *testing.T) {
	err := ServiceUnavailable("CATALOG_UNAVAILABLE", "catalog unreachable", nil)
	assert.True(t, errors.Is(err, ErrServiceUnavail))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error", Conflict("resync already running"), http.StatusConflict},
		{"wrapped not found", fmt.Errorf("lookup: %w", ErrNotFound), http.StatusNotFound},
		{"wrapped invalid", fmt.Errorf("parse: %w", ErrInvalidInput), http.StatusBadRequest},
		{"wrapped unavailable", fmt.Errorf("search: %w", ErrServiceUnavail), http.StatusServiceUnavailable},
		{"unauthorized", Unauthorized("bad secret"), http.StatusUnauthorized},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
		{"internal", Internal(errors.New("boom")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestNotFound(t *testing.T) {
	err := NotFound("category", "cat-9")
	assert.Equal(t, "category with id cat-9 not found", err.Message)
	assert.True(t, errors.Is(err, ErrNotFound))
}
