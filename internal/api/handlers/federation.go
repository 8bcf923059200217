package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/theblitlabs/sentinel/internal/api/middleware"
	"github.com/theblitlabs/sentinel/internal/core/config"
	"github.com/theblitlabs/sentinel/internal/core/models"
	"github.com/theblitlabs/sentinel/internal/core/services"
	"github.com/theblitlabs/sentinel/pkg/logger"
)

// FederationHandler exposes session, round and contribution operations over
// HTTP plus a websocket status feed per session.
type FederationHandler struct {
	service  *services.FederationService
	wsConfig config.WebsocketConfig
	upgrader websocket.Upgrader
}

func NewFederationHandler(service *services.FederationService, wsConfig config.WebsocketConfig) *FederationHandler {
	return &FederationHandler{
		service:  service,
		wsConfig: wsConfig,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// createdSessionResponse carries the data key exactly once, in the creation
// response. Session.DataKey is excluded from every other serialization.
type createdSessionResponse struct {
	*models.Session
	DataKey string `json:"data_key"`
}

func (h *FederationHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req services.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.CreatorAddress == "" {
		req.CreatorAddress = middleware.ContributorAddress(r.Context())
	}

	session, err := h.service.CreateSession(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, createdSessionResponse{
		Session: session,
		DataKey: session.DataKey,
	})
}

func (h *FederationHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	session, err := h.service.GetSession(r.Context(), sessionID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, session)
}

func (h *FederationHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	sessions, err := h.service.ListSessions(r.Context(), limit, offset)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, sessions)
}

func (h *FederationHandler) ListRounds(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	rounds, err := h.service.ListRounds(r.Context(), sessionID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, rounds)
}

func (h *FederationHandler) GetRound(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}
	number, err := strconv.Atoi(mux.Vars(r)["number"])
	if err != nil || number < 1 {
		http.Error(w, "Invalid round number", http.StatusBadRequest)
		return
	}

	round, err := h.service.GetRound(r.Context(), sessionID, number)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, round)
}

func (h *FederationHandler) SubmitContribution(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	var req services.SubmitContributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ContributorAddress == "" {
		req.ContributorAddress = middleware.ContributorAddress(r.Context())
	}

	contribution, err := h.service.SubmitContribution(r.Context(), sessionID, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, contribution)
}

func (h *FederationHandler) ListContributions(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}
	roundNumber := queryInt(r, "round", 0)

	contributions, err := h.service.ListContributions(r.Context(), sessionID, roundNumber)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, contributions)
}

func (h *FederationHandler) AggregateRound(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}
	number, err := strconv.Atoi(mux.Vars(r)["number"])
	if err != nil || number < 1 {
		http.Error(w, "Invalid round number", http.StatusBadRequest)
		return
	}

	result, err := h.service.AggregateRound(r.Context(), sessionID, number)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *FederationHandler) MarkContributionRewarded(w http.ResponseWriter, r *http.Request) {
	contributionID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid contribution ID", http.StatusBadRequest)
		return
	}

	contribution, err := h.service.MarkContributionRewarded(r.Context(), contributionID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, contribution)
}

func (h *FederationHandler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.WithComponent("api").Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *FederationHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrSessionNotFound),
		errors.Is(err, services.ErrRoundNotFound),
		errors.Is(err, services.ErrContributionNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrInvalidRequest),
		errors.Is(err, services.ErrQuorumNotMet):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrDuplicateContribution),
		errors.Is(err, services.ErrSessionNotActive),
		errors.Is(err, services.ErrRoundClosed),
		errors.Is(err, services.ErrRoundNotPending),
		errors.Is(err, services.ErrNotRewardable):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, services.ErrInsufficientContributions):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		logger.WithComponent("api").Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Request failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
