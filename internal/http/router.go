package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"livepoll/internal/broadcast"
	"livepoll/internal/domain/poll"
	"livepoll/internal/domain/vote"
	jwtpkg "livepoll/internal/platform/jwt"
)

// Pinger is the storage readiness probe. A nil Pinger is always ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	PollSvc   *poll.Service
	VoteSvc   *vote.Service
	Hub       *broadcast.Hub
	JWT       *jwtpkg.Manager
	Storage   Pinger
	Log       *zap.Logger
	PublicURL string
	OwnerTTL  time.Duration
	Origins   []string
	// APIRate and APIBurst size the per-origin token bucket on /api.
	APIRate  rate.Limit
	APIBurst int
}

type Handler struct {
	pollSvc   *poll.Service
	voteSvc   *vote.Service
	hub       *broadcast.Hub
	jwtMgr    *jwtpkg.Manager
	storage   Pinger
	log       *zap.Logger
	publicURL string
	ownerTTL  time.Duration
	upgrader  websocket.Upgrader
}

func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	SetLogger(d.Log)

	h := &Handler{
		pollSvc:   d.PollSvc,
		voteSvc:   d.VoteSvc,
		hub:       d.Hub,
		jwtMgr:    d.JWT,
		storage:   d.Storage,
		log:       d.Log,
		publicURL: strings.TrimRight(d.PublicURL, "/"),
		ownerTTL:  d.OwnerTTL,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(d.Origins),
		},
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(RequestLogger)
	r.Use(CORSMiddleware(d.Origins))

	r.Get("/ready", h.handleReady)
	r.Get("/swagger/*", httpSwagger.WrapHandler)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/ws", h.handleWebsocket)

	r.Route("/api", func(r chi.Router) {
		r.Use(chimw.Timeout(30 * time.Second))
		r.Use(RateLimitAPI(d.APIRate, d.APIBurst))

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
		})

		r.Post("/polls/create", h.handleCreatePoll)
		r.Get("/polls/{pollId}", h.handleGetPoll)
		r.Get("/polls/{pollId}/results", h.handlePollResults)
		r.With(OwnerOnly(d.JWT)).Post("/polls/{pollId}/close", h.handleClosePoll)

		r.Post("/votes/{pollId}/vote", h.handleVote)
		r.Get("/votes/{pollId}/hasVoted", h.handleHasVoted)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.storage == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.storage.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error":   "storage_unavailable",
			"message": "storage not ready",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
