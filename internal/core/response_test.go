package core

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamnetwork/internal/types"
)

func TestJSON_WritesEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/orgs", nil)

	JSON(w, r, http.StatusCreated, APIResponse{Data: map[string]string{"id": "org_1"}})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"id":"org_1"}}`, w.Body.String())
}

func TestError_AppErrorMapsStatusAndBody(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/orgs", nil)
	r = r.WithContext(types.WithRequestID(r.Context(), "req-123"))

	appErr := types.NewAppErrorWithDetails(
		types.ErrCodePermissionRole,
		"Only organization admins can manage billing",
		nil,
		map[string]any{"required_role": "admin"},
	)
	Error(w, r, appErr)

	assert.Equal(t, http.StatusForbidden, w.Code)

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "permission_role_insufficient", resp.Error.Code)
	assert.Equal(t, "Only organization admins can manage billing", resp.Error.Message)
	assert.Equal(t, "req-123", resp.Error.RequestID)
	assert.Equal(t, "admin", resp.Error.Details["required_role"])
}

func TestError_WrappedAppErrorStillMapped(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/orgs/x", nil)

	inner := types.NewAppError(types.ErrCodeNotFoundOrg, "organization not found", nil)
	Error(w, r, errors.Join(errors.New("loading org"), inner))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "not_found_organization")
}

func TestError_GenericErrorHidesDetails(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/orgs", nil)

	Error(w, r, errors.New("pq: connection reset by peer"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")
	assert.Contains(t, w.Body.String(), "internal_unexpected_error")
}

func TestDecodeJSON_Success(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Acme"}`))

	var dst struct {
		Name string `json:"name"`
	}
	require.NoError(t, DecodeJSON(w, r, &dst))
	assert.Equal(t, "Acme", dst.Name)
}

func TestDecodeJSON_Failures(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantMessage string
	}{
		{"empty body", "", "must not be empty"},
		{"malformed", `{"name":`, "malformed JSON"},
		{"unknown field", `{"nope":1}`, "unknown field"},
		{"wrong type", `{"name":42}`, "invalid value for field"},
		{"trailing value", `{"name":"a"}{"name":"b"}`, "single JSON object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))

			var dst struct {
				Name string `json:"name"`
			}
			err := DecodeJSON(w, r, &dst)
			require.Error(t, err)

			var appErr *types.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, types.ErrCodeValidationInvalidJSON, appErr.Code)
			assert.Contains(t, appErr.Message, tt.wantMessage)
		})
	}
}
