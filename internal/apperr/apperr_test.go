package apperr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func respond(t *testing.T, err error) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)
	Respond(ctx, err)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return rec, payload
}

func TestRespondMapsCodes(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{Validation("word is required"), http.StatusBadRequest, CodeInvalidInput},
		{NotFound("assignment"), http.StatusNotFound, CodeNotFound},
		{Unauthorized(), http.StatusForbidden, CodeUnauthorized},
		{fmt.Errorf("wrapped: %w", New(CodeConflict, "taken", nil)), http.StatusConflict, CodeConflict},
		{errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tc := range cases {
		rec, payload := respond(t, tc.err)
		assert.Equal(t, tc.status, rec.Code)
		assert.Equal(t, tc.code, payload["code"])
	}
}

func TestRespondCanceled(t *testing.T) {
	rec, payload := respond(t, context.Canceled)
	assert.Equal(t, http.StatusRequestTimeout, rec.Code)
	assert.Equal(t, "REQUEST_CANCELED", payload["code"])
}

func TestUnauthorizedMessage(t *testing.T) {
	err := Unauthorized()
	assert.Equal(t, "Unauthorized", err.Error())
	assert.True(t, IsCode(fmt.Errorf("ctx: %w", err), CodeUnauthorized))
	assert.False(t, IsCode(errors.New("x"), CodeUnauthorized))
}
