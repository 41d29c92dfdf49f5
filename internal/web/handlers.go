package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jaminalder/oxono/internal/app"
	"github.com/jaminalder/oxono/internal/domain"
	"github.com/jaminalder/oxono/internal/store"
)

type handlers struct {
	svc      *app.Service
	tpl      *templates
	log      *zap.Logger
	upgrader websocket.Upgrader
	matches  MatchLister
}

func (h *handlers) renderBoard(gs app.GameState, errMsg string) []byte {
	return renderTemplate(h.tpl.board, "", newBoardData(gs, errMsg))
}

func (h *handlers) writeBoard(w http.ResponseWriter, gs app.GameState, errMsg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(h.renderBoard(gs, errMsg))
}

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(renderTemplate(h.tpl.index, "base", nil))
}

func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
	gs, err := h.svc.CreateGame()
	if err != nil {
		h.log.Error("create game", zap.Error(err))
		http.Error(w, "failed to create", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/game/"+gs.ID, http.StatusSeeOther)
}

func (h *handlers) view(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	// ensure cookie and auto-claim seat
	pid := ensurePlayerCookie(w, r)
	_, _, _, _ = h.svc.Join(id, pid)

	gs, ok := h.svc.Get(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	data := struct {
		ID        string
		BoardHTML template.HTML
	}{ID: gs.ID, BoardHTML: template.HTML(h.renderBoard(*gs, ""))}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(renderTemplate(h.tpl.game, "base", data))
}

func (h *handlers) join(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pid := ensurePlayerCookie(w, r)
	_, _, gs, err := h.svc.Join(id, pid)
	if err != nil || gs == nil {
		http.NotFound(w, r)
		return
	}
	h.writeBoard(w, *gs, "")
}

func (h *handlers) click(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pid := ensurePlayerCookie(w, r)
	_ = r.ParseForm()
	x, errX := strconv.Atoi(r.Form.Get("x"))
	y, errY := strconv.Atoi(r.Form.Get("y"))
	if errX != nil || errY != nil {
		h.respond(w, r, id, nil, errors.New("bad cell"))
		return
	}
	gs, _, err := h.svc.Click(id, pid, domain.Position{X: x, Y: y})
	h.respond(w, r, id, gs, err)
}

func (h *handlers) undo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	gs, err := h.svc.Undo(id, ensurePlayerCookie(w, r))
	h.respond(w, r, id, gs, err)
}

func (h *handlers) redo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	gs, err := h.svc.Redo(id, ensurePlayerCookie(w, r))
	h.respond(w, r, id, gs, err)
}

// respond writes the board fragment, falling back to the stored state when
// the action failed.
func (h *handlers) respond(w http.ResponseWriter, r *http.Request, id string, gs *app.GameState, err error) {
	var errMsg string
	if err != nil {
		h.log.Debug("action refused", zap.String("game", id), zap.Error(err))
		errMsg = errorText(err)
		if gs == nil {
			if g, ok := h.svc.Get(id); ok {
				gs = g
			}
		}
	}
	if gs == nil {
		http.NotFound(w, r)
		return
	}
	h.writeBoard(w, *gs, errMsg)
}

// errorText turns service and game errors into player-facing text.
func errorText(err error) string {
	switch {
	case errors.Is(err, app.ErrNotFound):
		return "Game not found"
	case errors.Is(err, app.ErrNotYourTurn):
		return "Not your turn"
	case errors.Is(err, app.ErrNotAPlayer):
		return "You are a spectator"
	case errors.Is(err, domain.ErrGameOver):
		return "Game is over"
	case errors.Is(err, domain.ErrWrongPhase):
		return "Finish the current turn first"
	case errors.Is(err, domain.ErrNothingToUndo):
		return "Nothing to undo"
	case errors.Is(err, domain.ErrNothingToRedo):
		return "Nothing to redo"
	default:
		return "Invalid move"
	}
}

// resultText describes a click result for the status line.
func resultText(res domain.Result) string {
	switch res.Outcome {
	case domain.Rejected:
		switch {
		case errors.Is(res.Reason, domain.ErrNotATotem):
			return "Pick a totem first"
		case errors.Is(res.Reason, domain.ErrCellOccupied):
			return "That cell is taken"
		case errors.Is(res.Reason, domain.ErrIllegalMove):
			return "Not a legal cell"
		case errors.Is(res.Reason, domain.ErrRefused):
			return "Placement refused, try again"
		}
		return "Rejected"
	case domain.Pivoted:
		return "Switched totem"
	case domain.Cancelled:
		return "Selection cleared"
	}
	return ""
}

func (h *handlers) listMatches(w http.ResponseWriter, r *http.Request) {
	matches := []store.Match{}
	if h.matches != nil {
		list, err := h.matches.List()
		if err != nil {
			h.log.Error("list matches", zap.Error(err))
			http.Error(w, "failed to list matches", http.StatusInternalServerError)
			return
		}
		if list != nil {
			matches = list
		}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(matches); err != nil {
		h.log.Warn("write matches", zap.Error(err))
	}
}

var heartbeatInterval = 15 * time.Second

func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.svc.Get(id); !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	// In tests or non-EventSource requests, just acknowledge headers and return
	if r.Header.Get("Accept") != "text/event-stream" {
		w.WriteHeader(http.StatusOK)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	ctx := r.Context()
	ch, _ := h.svc.Subscribe(ctx, id)
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	flusher.Flush()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = io.WriteString(w, ": ping\n\n")
			flusher.Flush()
		case b, ok := <-ch:
			if !ok {
				return
			}
			_, _ = fmt.Fprintf(w, "event: board\n")
			_, _ = fmt.Fprintf(w, "data: %s\n\n", singleLine(b))
			flusher.Flush()
		}
	}
}
