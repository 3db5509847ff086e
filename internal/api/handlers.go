package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/models"
)

// startFlowHandler handles POST /v1/flows/start
func (s *Server) startFlowHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	slog.Debug("startFlowHandler invoked", "method", r.Method, "path", r.URL.Path)

	var req models.StartFlow
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("startFlowHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("startFlowHandler validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if !s.allowRequest(w, req.UserID) {
		return
	}

	reply, err := s.manager.Create(r.Context(), req.UserID, req.Flow)
	if err != nil {
		slog.Error("startFlowHandler create failed", "error", err, "userID", req.UserID)
		writeManagerError(w, err)
		return
	}

	slog.Info("startFlowHandler succeeded", "userID", req.UserID, "flow", req.Flow)
	writeJSONResponse(w, http.StatusCreated, models.Success(reply))
}

// answerHandler handles POST /v1/events/answer
func (s *Server) answerHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	slog.Debug("answerHandler invoked", "method", r.Method, "path", r.URL.Path)

	var req models.TextAnswer
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("answerHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("answerHandler validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if !s.allowRequest(w, req.UserID) {
		return
	}

	s.advance(w, r, req.UserID, req.Text)
}

// selectHandler handles POST /v1/events/select. Selections are answers
// delivered through button-style input; they validate the same way.
func (s *Server) selectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	slog.Debug("selectHandler invoked", "method", r.Method, "path", r.URL.Path)

	var req models.Selection
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("selectHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("selectHandler validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if !s.allowRequest(w, req.UserID) {
		return
	}

	s.advance(w, r, req.UserID, req.Value)
}

// advance feeds one input to the manager and writes the outcome. Rejected
// input re-prompts the unchanged state inside a retry envelope.
func (s *Server) advance(w http.ResponseWriter, r *http.Request, userID int64, input string) {
	reply, err := s.manager.Advance(r.Context(), userID, input)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			slog.Debug("advance input rejected", "userID", userID, "field", verr.Field, "reason", verr.Reason)
			writeJSONResponse(w, http.StatusOK, models.Retry(verr.Error(), reply))
			return
		}
		slog.Warn("advance failed", "error", err, "userID", userID)
		writeManagerError(w, err)
		return
	}

	slog.Debug("advance succeeded", "userID", userID, "state", reply.State)
	writeJSONResponse(w, http.StatusOK, models.Success(reply))
}

// editHandler handles POST /v1/events/edit
func (s *Server) editHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	slog.Debug("editHandler invoked", "method", r.Method, "path", r.URL.Path)

	var req models.EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("editHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("editHandler validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if !s.allowRequest(w, req.UserID) {
		return
	}

	reply, err := s.manager.RequestEdit(r.Context(), req.UserID, req.Field)
	if err != nil {
		slog.Warn("editHandler failed", "error", err, "userID", req.UserID, "field", req.Field)
		writeManagerError(w, err)
		return
	}

	slog.Info("editHandler succeeded", "userID", req.UserID, "field", req.Field)
	writeJSONResponse(w, http.StatusOK, models.Success(reply))
}

// confirmHandler handles POST /v1/events/confirm
func (s *Server) confirmHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	slog.Debug("confirmHandler invoked", "method", r.Method, "path", r.URL.Path)

	var req models.ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("confirmHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("confirmHandler validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if !s.allowRequest(w, req.UserID) {
		return
	}

	reply, err := s.manager.Confirm(r.Context(), req.UserID)
	if err != nil {
		var oot *models.OutOfToleranceError
		if errors.As(err, &oot) {
			// Not fatal: the flow rewinds and asks for a different candidate.
			slog.Info("confirmHandler replacement out of tolerance", "userID", req.UserID)
			writeJSONResponse(w, http.StatusOK, models.Retry(oot.Error(), reply))
			return
		}
		slog.Warn("confirmHandler failed", "error", err, "userID", req.UserID)
		writeManagerError(w, err)
		return
	}

	slog.Info("confirmHandler succeeded", "userID", req.UserID, "done", reply.Done)
	writeJSONResponse(w, http.StatusOK, models.Success(reply))
}

// cancelHandler handles POST /v1/events/cancel
func (s *Server) cancelHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	slog.Debug("cancelHandler invoked", "method", r.Method, "path", r.URL.Path)

	var req models.CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("cancelHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("cancelHandler validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if !s.allowRequest(w, req.UserID) {
		return
	}

	reply, err := s.manager.Cancel(r.Context(), req.UserID)
	if err != nil {
		slog.Warn("cancelHandler failed", "error", err, "userID", req.UserID)
		writeManagerError(w, err)
		return
	}

	slog.Info("cancelHandler succeeded", "userID", req.UserID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Flow cancelled", reply))
}

// currentSessionHandler handles GET /v1/sessions/current
func (s *Server) currentSessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	reply, err := s.manager.Current(r.Context(), userID)
	if err != nil {
		writeManagerError(w, err)
		return
	}

	slog.Debug("currentSessionHandler succeeded", "userID", userID, "state", reply.State)
	writeJSONResponse(w, http.StatusOK, models.Success(reply))
}

// lastSessionHandler handles GET /v1/sessions/last
func (s *Server) lastSessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	reply, err := s.manager.LastCompleted(r.Context(), userID)
	if err != nil {
		writeManagerError(w, err)
		return
	}

	slog.Debug("lastSessionHandler succeeded", "userID", userID)
	writeJSONResponse(w, http.StatusOK, models.Success(reply))
}

// dailyStatsHandler handles GET /v1/stats/daily
func (s *Server) dailyStatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	date := time.Now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("date must be YYYY-MM-DD"))
			return
		}
		date = parsed
	}

	stats, err := s.recorder.Stats(date)
	if err != nil {
		slog.Error("dailyStatsHandler failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read stats"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(stats))
}

// healthHandler handles GET /health
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("healthy", nil))
}

// parseUserID reads the user_id query parameter, writing the 400 response on
// failure.
func parseUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.URL.Query().Get("user_id")
	if raw == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("user_id is required"))
		return 0, false
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID == 0 {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("user_id must be a non-zero integer"))
		return 0, false
	}
	return userID, true
}
