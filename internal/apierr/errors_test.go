package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKindStatus(t *testing.T) {
	cases := map[Kind]int{
		MissingCredential:        http.StatusBadRequest,
		MissingField:             http.StatusBadRequest,
		InvalidCredential:        http.StatusUnauthorized,
		InactiveCredential:       http.StatusUnauthorized,
		RateLimited:              http.StatusTooManyRequests,
		TemporarilyBlocked:       http.StatusTooManyRequests,
		SummarizationRateLimited: http.StatusTooManyRequests,
		NotFound:                 http.StatusNotFound,
		StoreUnavailable:         http.StatusServiceUnavailable,
		UnexpectedFailure:        http.StatusInternalServerError,
		Kind("Bogus"):            http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.Status(), string(kind))
	}
}

func TestFrom(t *testing.T) {
	assert.Nil(t, From(nil))

	typed := Field(MissingField, "githubUrl", "githubUrl is required")
	wrapped := fmt.Errorf("stage validate: %w", typed)
	assert.Same(t, typed, From(wrapped))

	plain := errors.New("boom")
	got := From(plain)
	assert.Equal(t, UnexpectedFailure, got.Kind)
	assert.ErrorIs(t, got, plain)
}

func TestThrottled(t *testing.T) {
	e := Throttled(TemporarilyBlocked, "key", 90*time.Second)
	assert.Equal(t, http.StatusTooManyRequests, e.Status())
	assert.Equal(t, "key", e.Reason)
	assert.Contains(t, e.Message, "1m30s")
	assert.True(t, IsKind(e, TemporarilyBlocked))
	assert.False(t, IsKind(e, RateLimited))
}
