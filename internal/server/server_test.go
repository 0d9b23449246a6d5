package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skalene/yolo-inference/internal/config"
	"github.com/skalene/yolo-inference/internal/service"
	"github.com/skalene/yolo-inference/internal/yolo"
)

func newTestServer() *Server {
	svc := service.New(config.Config{}, zap.NewNop().Sugar())
	return New(svc, zap.NewNop().Sugar())
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	rec := doRequest(t, newTestServer(), http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestModelsBeforeLoad(t *testing.T) {
	rec := doRequest(t, newTestServer(), http.MethodGet, "/models", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "model_not_loaded", decodeError(t, rec).Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestDetectBeforeLoad(t *testing.T) {
	rec := doRequest(t, newTestServer(), http.MethodPost, "/detect-image", `{"image_base64":"aGk="}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "model_not_loaded", decodeError(t, rec).Code)
}

func TestDetectMalformedJSON(t *testing.T) {
	rec := doRequest(t, newTestServer(), http.MethodPost, "/detect-image", `{"image_base64":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeError(t, rec).Code)
}

func TestSegmentBeforeLoad(t *testing.T) {
	rec := doRequest(t, newTestServer(), http.MethodPost, "/segment-image", `{}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "model_not_loaded", decodeError(t, rec).Code)
}

func TestMethodNotAllowed(t *testing.T) {
	rec := doRequest(t, newTestServer(), http.MethodGet, "/detect-image", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServiceErrorMapping(t *testing.T) {
	s := newTestServer()

	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid argument", &service.InvalidArgumentError{Field: "image_base64"}, http.StatusBadRequest, "invalid_argument"},
		{"decode error", &service.DecodeError{Cause: errors.New("bad png")}, http.StatusBadRequest, "invalid_image"},
		{"uninitialized", &service.UninitializedModelError{}, http.StatusServiceUnavailable, "model_not_loaded"},
		{"session timeout", yolo.ErrSessionTimeout, http.StatusServiceUnavailable, "session_unavailable"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "processing_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.writeServiceError(rec, "test-request", tc.err)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decodeError(t, rec).Code)
		})
	}
}
