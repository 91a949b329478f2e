package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCode_UnknownPassesThrough(t *testing.T) {
	var body Error
	require.NoError(t, json.Unmarshal([]byte(`{"code":4242,"message":"new"}`), &body))

	assert.Equal(t, ErrorCode(4242), body.Code)
	assert.False(t, body.Code.Known())
	assert.Equal(t, "Other(4242)", body.Code.String())
	assert.Equal(t, http.StatusInternalServerError, body.Code.Status())

	out, err := json.Marshal(body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":4242,"message":"new"}`, string(out))
}

func TestErrorCode_Status(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{MalformedJson, http.StatusBadRequest},
		{InvalidData, http.StatusBadRequest},
		{UnsupportedContentType, http.StatusUnsupportedMediaType},
		{NotFound, http.StatusNotFound},
		{Unauthenticated, http.StatusUnauthorized},
		{BadCredentials, http.StatusUnauthorized},
		{Forbidden, http.StatusForbidden},
		{InvalidTransfer, http.StatusConflict},
		{InternalServerError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.Status())
		})
	}
}

func TestAlreadyOwnedIsInvalidTransfer(t *testing.T) {
	assert.Equal(t, InvalidTransfer, AlreadyOwned)
	assert.Equal(t, 4008, int(AlreadyOwned))
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("send: %w", NewError(BadCredentials, "User credentials have expired."))

	assert.True(t, HasCode(err, BadCredentials))
	assert.False(t, HasCode(err, Unauthenticated))
	assert.False(t, HasCode(errors.New("plain"), BadCredentials))
	assert.True(t, errors.Is(err, &Error{Code: BadCredentials}))
}
