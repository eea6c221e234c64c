package adm

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayError(t *testing.T) {
	t.Run("Error message", func(t *testing.T) {
		err := &GatewayError{Kind: ErrServerError, Method: "GET", Path: "/article/1", Status: 502, Body: "bad upstream"}

		assert.Contains(t, err.Error(), "adm: server error")
		assert.Contains(t, err.Error(), "GET /article/1")
		assert.Contains(t, err.Error(), "status 502")
		assert.Contains(t, err.Error(), "bad upstream")
	})

	t.Run("Is matches its kind and ErrGateway", func(t *testing.T) {
		err := &GatewayError{Kind: ErrNotFound, Path: "/article/1"}

		assert.True(t, errors.Is(err, ErrNotFound))
		assert.True(t, errors.Is(err, ErrGateway))
		assert.False(t, errors.Is(err, ErrServerError))
	})

	t.Run("Unwrap returns the cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := &GatewayError{Kind: ErrConnection, Err: cause}

		assert.True(t, errors.Is(err, cause))
		assert.Equal(t, cause, errors.Unwrap(err))
	})

	t.Run("errors.As extracts details through wrapping", func(t *testing.T) {
		err := fmt.Errorf("loading: %w", NewNotFoundError("GET", "/article/9"))

		var gerr *GatewayError
		require.True(t, errors.As(err, &gerr))
		assert.Equal(t, "/article/9", gerr.Path)
		assert.Equal(t, http.StatusNotFound, gerr.Status)
		assert.True(t, IsNotFound(err))
	})

	t.Run("message without method uses path", func(t *testing.T) {
		err := &GatewayError{Kind: ErrNotFound, Path: "article 1 missing"}

		assert.Equal(t, "adm: not found: article 1 missing", err.Error())
		assert.Equal(t, "adm: not found: article 1 missing", notFoundMessage(err))
	})

	t.Run("stored message survives replay", func(t *testing.T) {
		live := fmt.Errorf("loading: %w", NewNotFoundError("GET", "/article/9"))
		msg := notFoundMessage(live)
		assert.Equal(t, "adm: not found on GET /article/9 (status 404)", msg)

		replayed := replayedNotFound(msg)
		assert.Equal(t, msg, replayed.Error())
		assert.Equal(t, http.StatusNotFound, replayed.Status)
		assert.True(t, IsNotFound(replayed))
		assert.ErrorIs(t, replayed, ErrGateway)
	})
}

func TestStatusKind(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{200, nil},
		{204, nil},
		{400, ErrBadRequest},
		{401, ErrUnauthorized},
		{403, ErrForbidden},
		{404, ErrNotFound},
		{408, ErrRequestTimeout},
		{409, ErrConflict},
		{422, ErrUnprocessableEntity},
		{429, ErrTooManyRequests},
		{500, ErrServerError},
		{503, ErrServerError},
		{302, ErrGateway},
		{418, ErrGateway},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusKind(tt.status))
		})
	}
}

func TestLoaderNotFoundError(t *testing.T) {
	err := NewLoaderNotFoundError("gateway")

	assert.Contains(t, err.Error(), `"gateway"`)
	assert.True(t, errors.Is(err, ErrLoaderNotFound))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestSentinelErrors(t *testing.T) {
	sentinels := []error{
		ErrNotFound, ErrGateway, ErrConnection, ErrParse,
		ErrBadRequest, ErrUnauthorized, ErrForbidden, ErrConflict,
		ErrUnprocessableEntity, ErrRequestTimeout, ErrTooManyRequests, ErrServerError,
		ErrLoaderNotFound, ErrNilLoader, ErrUnexpectedType,
		ErrNilModel, ErrNoPrimaryKey, ErrNoDAO, ErrUnknownAttribute,
	}

	seen := make(map[string]bool)
	for _, err := range sentinels {
		assert.Regexp(t, `^adm: `, err.Error())
		assert.False(t, seen[err.Error()], "duplicate message %q", err.Error())
		seen[err.Error()] = true
	}
}
