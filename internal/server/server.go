// Package server is the HTTP surface over the inference service.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/skalene/yolo-inference/internal/service"
	"github.com/skalene/yolo-inference/internal/yolo"
)

type Server struct {
	svc    *service.InferenceService
	logger *zap.SugaredLogger
}

func New(svc *service.InferenceService, logger *zap.SugaredLogger) *Server {
	return &Server{svc: svc, logger: logger}
}

// ErrorResponse is the error envelope for every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/detect-image", s.handleDetect).Methods(http.MethodPost)
	r.HandleFunc("/segment-image", s.handleSegment).Methods(http.MethodPost)
	r.HandleFunc("/models", s.handleModels).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	return r
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	requestID := newRequestID(w)
	start := time.Now()

	var in service.InferenceInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeError(w, requestID, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	resp, err := s.svc.DetectImage(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, requestID, err)
		return
	}

	s.logger.Debugw("detect request handled", "request_id", requestID,
		"predictions", len(resp.Predictions), "elapsed", time.Since(start))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request) {
	requestID := newRequestID(w)
	start := time.Now()

	var in service.InferenceInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeError(w, requestID, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	resp, err := s.svc.SegmentImage(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, requestID, err)
		return
	}

	s.logger.Debugw("segment request handled", "request_id", requestID,
		"elapsed", time.Since(start))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	requestID := newRequestID(w)

	resp, err := s.svc.Models()
	if err != nil {
		s.writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	requestID := newRequestID(w)

	stats, err := s.svc.PoolStats()
	if err != nil {
		s.writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, requestID string, err error) {
	var (
		invalidArg    *service.InvalidArgumentError
		decodeErr     *service.DecodeError
		uninitialized *service.UninitializedModelError
	)
	switch {
	case errors.As(err, &invalidArg):
		s.writeError(w, requestID, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.As(err, &decodeErr):
		s.writeError(w, requestID, http.StatusBadRequest, "invalid_image", err.Error())
	case errors.As(err, &uninitialized):
		s.writeError(w, requestID, http.StatusServiceUnavailable, "model_not_loaded", err.Error())
	case errors.Is(err, yolo.ErrSessionTimeout):
		s.writeError(w, requestID, http.StatusServiceUnavailable, "session_unavailable", err.Error())
	default:
		s.logger.Errorw("inference request failed", "request_id", requestID, "error", err)
		s.writeError(w, requestID, http.StatusInternalServerError, "processing_error", "inference failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	if status < http.StatusInternalServerError {
		s.logger.Warnw("request rejected", "request_id", requestID, "code", code, "message", message)
	}
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func newRequestID(w http.ResponseWriter) string {
	id := uuid.NewString()
	w.Header().Set("X-Request-Id", id)
	return id
}
