// Package handlers exposes the relay over HTTP: a small REST surface for
// sessions and one WebSocket endpoint per participant connection.
package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prudhvinik1/syncboard/internal/models"
	"github.com/prudhvinik1/syncboard/internal/services"
)

// Relay is what the handlers need from services.RelayService.
type Relay interface {
	CreateSession(ctx context.Context, name string) (*models.Session, error)
	ListSessions(ctx context.Context) ([]*models.Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (*services.SessionInfo, error)
	CloseSession(ctx context.Context, id uuid.UUID) error
	Join(ctx context.Context, sessionID, replicaID uuid.UUID) (*models.Welcome, error)
	Leave(ctx context.Context, sessionID, replicaID uuid.UUID) error
	Heartbeat(ctx context.Context, sessionID, replicaID uuid.UUID) error
	Publish(ctx context.Context, sessionID, replicaID uuid.UUID, kind models.EventKind, payload []byte) (*models.SyncEvent, error)
	SaveCheckpoint(ctx context.Context, sessionID uuid.UUID, cp models.Checkpoint) error
	EventsSince(ctx context.Context, sessionID uuid.UUID, sequenceNumber int64) ([]*models.SyncEvent, error)
	Head(ctx context.Context, sessionID uuid.UUID) (int64, error)
	Subscribe(ctx context.Context, sessionID uuid.UUID) (<-chan *models.SyncEvent, func(), error)
}

var _ Relay = (*services.RelayService)(nil)

func NewRouter(relay Relay, opts ...Option) chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	// Health check endpoints
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	sessions := NewSessionHandler(relay)
	ws := NewWebSocketHandler(relay)
	for _, opt := range opts {
		opt(ws)
	}

	router.Route("/sessions", func(r chi.Router) {
		r.Post("/", sessions.Create)
		r.Get("/", sessions.List)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", sessions.Get)
			r.Delete("/", sessions.Close)
			r.Get("/ws", ws.Serve)
		})
	})

	return router
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func sessionID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	return id, err == nil
}
