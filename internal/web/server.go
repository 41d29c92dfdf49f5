package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jaminalder/oxono/internal/app"
	"github.com/jaminalder/oxono/internal/store"
)

// MatchLister lists archived matches for the /matches endpoint.
type MatchLister interface {
	List() ([]store.Match, error)
}

// Option configures NewServer.
type Option func(*handlers)

// WithLogger sets the logger for request and websocket errors.
func WithLogger(l *zap.Logger) Option {
	return func(h *handlers) { h.log = l }
}

// WithOriginCheck sets the websocket origin check. Without it only
// same-origin upgrades are accepted.
func WithOriginCheck(check func(r *http.Request) bool) Option {
	return func(h *handlers) { h.upgrader.CheckOrigin = check }
}

// WithMatches serves the archived matches on /matches. Without it the list
// is empty.
func WithMatches(m MatchLister) Option {
	return func(h *handlers) { h.matches = m }
}

// NewServer wires routes and returns an http.Handler. It also installs the
// board fragment as the service's broadcast renderer.
func NewServer(s *app.Service, opts ...Option) http.Handler {
	h := &handlers{
		svc:      s,
		tpl:      loadTemplates(),
		log:      zap.NewNop(),
		upgrader: websocket.Upgrader{},
	}
	for _, opt := range opts {
		opt(h)
	}
	s.SetRenderer(func(gs app.GameState) []byte { return h.renderBoard(gs, "") })

	r := chi.NewRouter()
	r.Get("/", h.index)
	r.Post("/game", h.create)
	r.Get("/matches", h.listMatches)
	r.Route("/game/{id}", func(r chi.Router) {
		r.Get("/", h.view)
		r.Post("/join", h.join)
		r.Post("/click", h.click)
		r.Post("/undo", h.undo)
		r.Post("/redo", h.redo)
		r.Get("/events", h.events)
		r.Get("/ws", h.socket)
	})
	return r
}
