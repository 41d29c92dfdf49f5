package web

import (
	"context"
	"net/http"
	"reflect"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/jaminalder/oxono/internal/domain"
)

// Message is the websocket envelope in both directions. Type names the
// contents, e.g. "Click" inbound or "ClickResponse" outbound.
type Message struct {
	Type     string      `json:"type"`
	Contents interface{} `json:"contents,omitempty"`
}

// ClickRequest is the contents of an inbound "Click".
type ClickRequest struct {
	X int `mapstructure:"x"`
	Y int `mapstructure:"y"`
}

// ClickResponse answers a Click with the result outcome, the rejection
// reason if any and the cells now offered.
type ClickResponse struct {
	Outcome    domain.Outcome    `json:"outcome"`
	Reason     string            `json:"reason,omitempty"`
	Candidates []domain.Position `json:"candidates"`
}

// ErrorResponse is returned to the client when a request fails.
type ErrorResponse struct {
	Reason string `json:"reason"`
}

// BoardBroadcast is pushed to every socket of a game after each change.
type BoardBroadcast struct {
	Snapshot domain.Snapshot `json:"snapshot"`
}

// toMessage wraps contents in an envelope typed after the contents' type name.
func toMessage(contents interface{}) Message {
	return Message{Type: reflect.TypeOf(contents).Name(), Contents: contents}
}

// socketConn serialises writes; gorilla allows one concurrent writer.
type socketConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *socketConn) send(m Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(m)
}

// socket upgrades to a websocket that accepts Click, Undo and Redo messages
// and streams the board after every change. Without a player_id cookie the
// connection only watches.
func (h *handlers) socket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	gs, ok := h.svc.Get(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	pid := playerID(r)
	if pid != "" {
		_, _, _, _ = h.svc.Join(id, pid)
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", zap.String("game", id), zap.Error(err))
		return
	}
	conn := &socketConn{conn: ws}
	defer ws.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	updates, unsub := h.svc.Subscribe(ctx, id)
	defer unsub()

	if err := conn.send(toMessage(BoardBroadcast{Snapshot: gs.Snapshot})); err != nil {
		return
	}
	go func() {
		for range updates {
			latest, ok := h.svc.Get(id)
			if !ok {
				continue
			}
			if err := conn.send(toMessage(BoardBroadcast{Snapshot: latest.Snapshot})); err != nil {
				h.log.Debug("websocket broadcast", zap.String("game", id), zap.Error(err))
				return
			}
		}
	}()

	for {
		var msg Message
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Info("client errored or disconnected", zap.String("game", id), zap.Error(err))
			}
			return
		}
		reply, ok := h.handleSocketMessage(id, pid, msg)
		if !ok {
			continue
		}
		if err := conn.send(reply); err != nil {
			h.log.Debug("websocket reply", zap.String("game", id), zap.Error(err))
			return
		}
	}
}

// handleSocketMessage applies one inbound message. ok is false when there is
// nothing to reply beyond the board broadcast.
func (h *handlers) handleSocketMessage(id, pid string, msg Message) (Message, bool) {
	switch msg.Type {
	case "Click":
		if msg.Contents == nil {
			return toMessage(ErrorResponse{Reason: "Click needs contents"}), true
		}
		var req ClickRequest
		if err := mapstructure.Decode(msg.Contents, &req); err != nil {
			h.log.Debug("decode click", zap.String("game", id), zap.Error(err))
			return toMessage(ErrorResponse{Reason: "Unable to parse ClickRequest"}), true
		}
		_, res, err := h.svc.Click(id, pid, domain.Position{X: req.X, Y: req.Y})
		if err != nil {
			return toMessage(ErrorResponse{Reason: errorText(err)}), true
		}
		resp := ClickResponse{Outcome: res.Outcome, Candidates: res.Candidates}
		if res.Reason != nil {
			resp.Reason = resultText(res)
		}
		if resp.Candidates == nil {
			resp.Candidates = []domain.Position{}
		}
		return toMessage(resp), true

	case "Undo", "Redo":
		var err error
		if msg.Type == "Undo" {
			_, err = h.svc.Undo(id, pid)
		} else {
			_, err = h.svc.Redo(id, pid)
		}
		if err != nil {
			return toMessage(ErrorResponse{Reason: errorText(err)}), true
		}
		return Message{}, false

	default:
		return toMessage(ErrorResponse{Reason: "Unknown message type " + msg.Type}), true
	}
}
