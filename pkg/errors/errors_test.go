package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"rtmpscout/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "test error", 400)
	assert.Equal(t, "INVALID_INPUT: test error", err.Error())
}

func TestAppError_WithCause(t *testing.T) {
	originalErr := stderrors.New("original error")
	err := WrapError(originalErr, ErrCodeInternal, "wrapped error", 500)

	assert.Same(t, originalErr, err.Cause)
	assert.Contains(t, err.Error(), "original error")
	assert.True(t, stderrors.Is(err, originalErr))
}

func TestAppError_WithContext(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "test error", 400)
	err.WithContext("field", "value").WithContext("count", 42)

	assert.Equal(t, "value", err.Context["field"])
	assert.Equal(t, 42, err.Context["count"])
}

func TestGetAppError(t *testing.T) {
	appErr := NewInvalidInputError("bad")
	assert.Same(t, appErr, GetAppError(appErr))

	wrapped := fmt.Errorf("handler: %w", appErr)
	assert.Same(t, appErr, GetAppError(wrapped))
	assert.True(t, IsAppError(wrapped))

	assert.Nil(t, GetAppError(stderrors.New("regular error")))
	assert.False(t, IsAppError(stderrors.New("regular error")))
}

func TestFromDomain(t *testing.T) {
	cases := []struct {
		err    error
		code   ErrorCode
		status int
	}{
		{fmt.Errorf("pcap: %w", domain.ErrCaptureInit), ErrCodeCaptureInit, http.StatusServiceUnavailable},
		{domain.ErrCaptureRunning, ErrCodeCaptureRunning, http.StatusConflict},
		{domain.ErrCaptureStopped, ErrCodeCaptureStopped, http.StatusConflict},
		{domain.ErrNotConnected, ErrCodeNotConnected, http.StatusServiceUnavailable},
		{domain.ErrConnectionLost, ErrCodeNotConnected, http.StatusServiceUnavailable},
		{domain.ErrNoStreamSettings, ErrCodeNotFound, http.StatusNotFound},
		{fmt.Errorf("obs said no: %w", domain.ErrApplyFailed), ErrCodeApplyFailed, http.StatusBadGateway},
		{stderrors.New("boom"), ErrCodeInternal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(string(tc.code)+"/"+tc.err.Error(), func(t *testing.T) {
			appErr := FromDomain(tc.err)
			require.NotNil(t, appErr)
			assert.Equal(t, tc.code, appErr.Code)
			assert.Equal(t, tc.status, appErr.HTTPStatus)
			assert.True(t, stderrors.Is(appErr, tc.err))
		})
	}

	assert.Nil(t, FromDomain(nil))
}
