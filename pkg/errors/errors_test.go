package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		code   ErrorCode
		status int
	}{
		{"invalid argument", InvalidArgumentError("bad input"), ErrCodeInvalidArgument, http.StatusBadRequest},
		{"not invited", NotInvitedError(), ErrCodeNotInvited, http.StatusForbidden},
		{"permission denied", PermissionDeniedError("nope"), ErrCodePermissionDenied, http.StatusForbidden},
		{"call not found", CallNotFoundError(), ErrCodeCallNotFound, http.StatusNotFound},
		{"invalid state", InvalidStateError("ended"), ErrCodeInvalidState, http.StatusConflict},
		{"already recording", AlreadyRecordingError(), ErrCodeAlreadyRecording, http.StatusConflict},
		{"no active recording", NoActiveRecordingError(), ErrCodeNoActiveRecording, http.StatusConflict},
		{"storage", StorageError(fmt.Errorf("disk full")), ErrCodeStorage, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.StatusCode)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestStorageErrorWraps(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := StorageError(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
}

func TestHasCode(t *testing.T) {
	assert.True(t, HasCode(NotInvitedError(), ErrCodeNotInvited))
	assert.False(t, HasCode(NotInvitedError(), ErrCodeCallNotFound))
	assert.False(t, HasCode(fmt.Errorf("plain"), ErrCodeNotInvited))
	assert.False(t, HasCode(nil, ErrCodeNotInvited))
}

func TestGetAppError(t *testing.T) {
	appErr := CallNotFoundError()
	assert.Same(t, appErr, GetAppError(appErr))

	wrapped := GetAppError(fmt.Errorf("plain"))
	assert.Equal(t, ErrCodeInternal, wrapped.Code)
	assert.Equal(t, http.StatusInternalServerError, wrapped.StatusCode)
}
