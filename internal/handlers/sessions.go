package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/prudhvinik1/syncboard/internal/services"
)

type SessionHandler struct {
	relay Relay
}

func NewSessionHandler(relay Relay) *SessionHandler {
	return &SessionHandler{relay: relay}
}

type createSessionRequest struct {
	Name string `json:"name"`
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.relay.CreateSession(r.Context(), req.Name)
	if errors.Is(err, services.ErrInvalidName) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		log.Printf("failed to create session: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.relay.ListSessions(r.Context())
	if err != nil {
		log.Printf("failed to list sessions: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	writeJSON(w, http.StatusOK, sessions)
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	info, err := h.relay.GetSession(r.Context(), id)
	if errors.Is(err, services.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		log.Printf("failed to get session %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}

	writeJSON(w, http.StatusOK, info)
}

func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	err := h.relay.CloseSession(r.Context(), id)
	if errors.Is(err, services.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		log.Printf("failed to close session %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to close session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
