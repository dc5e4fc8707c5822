package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestJSONEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusOK, map[string]int{"count": 3})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	resp := decode(t, rec)
	assert.Equal(t, "success", resp.Status)
	assert.Nil(t, resp.Error)
}

func TestErrorCodeEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrorCode(rec, http.StatusBadRequest, "invalid_quiet_hours", "quiet hours must be HH:mm")

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decode(t, rec)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid_quiet_hours", resp.Error.Code)
	assert.Equal(t, "quiet hours must be HH:mm", resp.Error.Message)
}

func TestErrorDerivesCodeFromStatus(t *testing.T) {
	cases := []struct {
		status int
		code   string
	}{
		{http.StatusBadRequest, "invalid_input"},
		{http.StatusUnauthorized, "unauthorized"},
		{http.StatusNotFound, "not_found"},
		{http.StatusTooManyRequests, "rate_limited"},
		{http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		Error(rec, tc.status, "boom")

		resp := decode(t, rec)
		require.NotNil(t, resp.Error)
		assert.Equal(t, tc.code, resp.Error.Code)
	}
}
