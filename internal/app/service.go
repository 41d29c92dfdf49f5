package app

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jaminalder/oxono/internal/domain"
	"github.com/jaminalder/oxono/internal/store"
)

// Errors exposed by the service layer.
var (
	ErrNotFound    = errors.New("game not found")
	ErrNotYourTurn = errors.New("not your turn")
	ErrNotAPlayer  = errors.New("not a player")
)

// BotPlayer is the seat name used for the computer opponent.
const BotPlayer = "bot"

// subscriberBuffer holds the updates of a few clicks; a subscriber further
// behind than that is dropped.
const subscriberBuffer = 8

// GameState is the per-game view handed to callers and renderers.
// Snapshot is rebuilt after every change, so copies never share mutable state.
type GameState struct {
	ID         string
	Pink       string
	Black      string
	Bot        bool
	Snapshot   domain.Snapshot
	LastResult domain.Result
	Created    time.Time
	Updated    time.Time
}

// Seat returns the color held by playerID.
func (gs GameState) Seat(playerID string) (domain.Color, bool) {
	switch {
	case playerID == "":
		return 0, false
	case gs.Pink == playerID:
		return domain.Pink, true
	case gs.Black == playerID && !gs.Bot:
		return domain.Black, true
	}
	return 0, false
}

// Archive receives a record of every finished game.
type Archive interface {
	Save(m store.Match) error
}

// Options configures a Service. Zero values fall back to a 6x6 board,
// the default stock, no bot, no archive and a no-op logger.
type Options struct {
	Width    int
	Height   int
	Stock    int
	Bot      bool
	Seed     int64
	Logger   *zap.Logger
	Archive  Archive
	Renderer func(GameState) []byte
}

type session struct {
	state    GameState
	game     *domain.Game
	bot      domain.Strategy
	archived bool
}

// subscriber guards its channel so a send never races an unsubscribe.
type subscriber struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// offer delivers payload without blocking. It reports false when the
// subscriber is too slow; a closed subscriber silently takes nothing.
func (s *subscriber) offer(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- payload:
		return true
	default:
		return false
	}
}

// Service manages games and subscribers.
type Service struct {
	mu     sync.Mutex
	opts   Options
	log    *zap.Logger
	games  map[string]*session
	subs   map[string]map[*subscriber]struct{}
	render func(GameState) []byte
}

func noRender(GameState) []byte { return nil }

// New creates a service from opts.
func New(opts Options) *Service {
	if opts.Width == 0 {
		opts.Width = 6
	}
	if opts.Height == 0 {
		opts.Height = 6
	}
	if opts.Stock == 0 {
		opts.Stock = domain.DefaultStock
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Renderer == nil {
		opts.Renderer = noRender
	}
	return &Service{
		opts:   opts,
		log:    opts.Logger,
		games:  make(map[string]*session),
		subs:   make(map[string]map[*subscriber]struct{}),
		render: opts.Renderer,
	}
}

// NewService creates a service with default options and no renderer.
func NewService() *Service { return New(Options{}) }

// NewServiceWithRenderer allows injecting a renderer for broadcast payloads.
func NewServiceWithRenderer(renderer func(GameState) []byte) *Service {
	return New(Options{Renderer: renderer})
}

// SetRenderer replaces the broadcast renderer function.
func (s *Service) SetRenderer(renderer func(GameState) []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if renderer == nil {
		renderer = noRender
	}
	s.render = renderer
}

// CreateGame creates and registers a new game.
func (s *Service) CreateGame() (*GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.newSessionLocked(uuid.NewString())
	if err != nil {
		return nil, err
	}
	s.log.Info("game created",
		zap.String("game", sess.state.ID),
		zap.Int("width", s.opts.Width),
		zap.Int("height", s.opts.Height),
		zap.Bool("bot", sess.state.Bot))
	cp := sess.state
	return &cp, nil
}

func (s *Service) newSessionLocked(id string) (*session, error) {
	g, err := domain.Start(s.opts.Width, s.opts.Height)
	if err != nil {
		return nil, err
	}
	g.SetStock(s.opts.Stock)
	now := time.Now()
	sess := &session{
		state: GameState{ID: id, Created: now, Updated: now},
		game:  g,
	}
	if s.opts.Bot {
		seed := s.opts.Seed
		if seed == 0 {
			seed = now.UnixNano()
		}
		sess.bot = domain.NewRandomBot(rand.New(rand.NewSource(seed)))
		sess.state.Bot = true
		sess.state.Black = BotPlayer
	}
	sess.state.Snapshot = g.Snapshot()
	s.games[id] = sess
	return sess, nil
}

// Get returns a copy of the game state if present.
func (s *Service) Get(id string) (*GameState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.games[id]
	if !ok {
		return nil, false
	}
	cp := sess.state
	return &cp, true
}

// Join assigns a seat to the player if one is free. Spectators get ok == false.
func (s *Service) Join(id, playerID string) (domain.Color, bool, *GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.games[id]
	if !ok {
		return 0, false, nil, ErrNotFound
	}
	gs := &sess.state
	seat, seated := gs.Seat(playerID)
	if !seated && playerID != "" {
		switch {
		case gs.Pink == "":
			gs.Pink, seat, seated = playerID, domain.Pink, true
		case gs.Black == "":
			gs.Black, seat, seated = playerID, domain.Black, true
		}
		if seated {
			s.log.Info("player joined", zap.String("game", id), zap.Stringer("color", seat))
		}
	}
	gs.Updated = time.Now()
	cp := *gs
	return seat, seated, &cp, nil
}

// Click forwards a click from a seated player to the game. After a completed
// turn the bot, if any, plays its reply before subscribers are notified.
func (s *Service) Click(id, playerID string, p domain.Position) (*GameState, domain.Result, error) {
	var res domain.Result
	cp, err := s.update(id, playerID, func(sess *session) error {
		var err error
		res, err = sess.game.Click(p)
		if err != nil {
			return err
		}
		sess.state.LastResult = res
		s.playBotLocked(sess)
		return nil
	})
	return cp, res, err
}

// Undo reverts the last turn, or the last two when playing the bot so the
// human is to move again.
func (s *Service) Undo(id, playerID string) (*GameState, error) {
	return s.rewind(id, playerID, (*domain.Game).Undo, (*domain.Game).Redo)
}

// Redo replays what Undo reverted.
func (s *Service) Redo(id, playerID string) (*GameState, error) {
	return s.rewind(id, playerID, (*domain.Game).Redo, (*domain.Game).Undo)
}

func (s *Service) rewind(id, playerID string, step, back func(*domain.Game) error) (*GameState, error) {
	return s.updateSeated(id, playerID, func(sess *session) error {
		steps := 1
		if sess.bot != nil {
			steps = 2
		}
		for i := 0; i < steps; i++ {
			if err := step(sess.game); err != nil {
				for ; i > 0; i-- {
					if berr := back(sess.game); berr != nil {
						s.log.Error("roll back partial rewind",
							zap.String("game", sess.state.ID),
							zap.NamedError("cause", err),
							zap.Error(berr))
						break
					}
				}
				return err
			}
		}
		sess.state.LastResult = domain.Result{}
		return nil
	})
}

// update runs fn for the player whose turn it is.
func (s *Service) update(id, playerID string, fn func(*session) error) (*GameState, error) {
	return s.updateSeated(id, playerID, func(sess *session) error {
		seat, _ := sess.state.Seat(playerID)
		if !sess.game.Finished() && seat != sess.game.CurrentPlayer() {
			return ErrNotYourTurn
		}
		return fn(sess)
	})
}

// updateSeated applies fn under the lock, refreshes the snapshot and
// broadcasts the new state.
func (s *Service) updateSeated(id, playerID string, fn func(*session) error) (*GameState, error) {
	s.mu.Lock()
	sess, ok := s.games[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if _, seated := sess.state.Seat(playerID); !seated {
		s.mu.Unlock()
		return nil, ErrNotAPlayer
	}
	if err := fn(sess); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	sess.state.Snapshot = sess.game.Snapshot()
	sess.state.Updated = time.Now()
	s.archiveLocked(sess)

	cp := sess.state
	subs := s.copySubsLocked(id)
	payload := s.render(cp)
	s.mu.Unlock()

	s.broadcast(id, subs, payload)
	return &cp, nil
}

func (s *Service) playBotLocked(sess *session) {
	g := sess.game
	for sess.bot != nil && !g.Finished() && g.CurrentPlayer() == domain.Black && g.Phase() == domain.AwaitingTotem {
		if err := sess.bot.Play(g); err != nil {
			s.log.Warn("bot could not play", zap.String("game", sess.state.ID), zap.Error(err))
			return
		}
		s.log.Debug("bot played", zap.String("game", sess.state.ID), zap.Int("turns", g.Turns()))
	}
}

func (s *Service) archiveLocked(sess *session) {
	g := sess.game
	if !g.Finished() || sess.archived {
		return
	}
	sess.archived = true
	m := store.Match{
		ID:       sess.state.ID,
		Width:    g.Board().Width(),
		Height:   g.Board().Height(),
		Draw:     g.Draw(),
		Turns:    g.Turns(),
		Pink:     sess.state.Pink,
		Black:    sess.state.Black,
		Finished: sess.state.Updated,
	}
	if c, ok := g.Winner(); ok {
		m.Winner = c.String()
	}
	s.log.Info("game finished",
		zap.String("game", m.ID),
		zap.String("winner", m.Winner),
		zap.Bool("draw", m.Draw),
		zap.Int("turns", m.Turns))
	if s.opts.Archive == nil {
		return
	}
	if err := s.opts.Archive.Save(m); err != nil {
		s.log.Error("archive match", zap.String("game", m.ID), zap.Error(err))
	}
}

// broadcast fans payload out; slow subscribers are closed and dropped.
func (s *Service) broadcast(id string, subs map[*subscriber]struct{}, payload []byte) {
	var toDrop []*subscriber
	for sub := range subs {
		if !sub.offer(payload) {
			sub.close()
			toDrop = append(toDrop, sub)
		}
	}
	if len(toDrop) == 0 {
		return
	}
	s.log.Debug("dropping slow subscribers", zap.String("game", id), zap.Int("count", len(toDrop)))
	s.mu.Lock()
	for _, sub := range toDrop {
		if set, ok := s.subs[id]; ok {
			delete(set, sub)
		}
	}
	s.mu.Unlock()
}

// Subscribe registers a subscriber for a game. Returns a channel and an unsubscribe func.
func (s *Service) Subscribe(ctx context.Context, id string) (<-chan []byte, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[id]; !ok {
		// create lazily to allow subscriptions before CreateGame in some flows
		if _, err := s.newSessionLocked(id); err != nil {
			s.log.Error("create game for subscriber", zap.String("game", id), zap.Error(err))
		}
	}
	set := s.subs[id]
	if set == nil {
		set = make(map[*subscriber]struct{})
		s.subs[id] = set
	}
	sub := &subscriber{ch: make(chan []byte, subscriberBuffer)}
	set[sub] = struct{}{}

	unsubOnce := &sync.Once{}
	unsub := func() {
		unsubOnce.Do(func() {
			s.mu.Lock()
			if set, ok := s.subs[id]; ok {
				delete(set, sub)
			}
			s.mu.Unlock()
			sub.close()
		})
	}
	go func() {
		<-ctx.Done()
		unsub()
	}()
	return sub.ch, unsub
}

func (s *Service) copySubsLocked(id string) map[*subscriber]struct{} {
	out := make(map[*subscriber]struct{})
	if set, ok := s.subs[id]; ok {
		for k := range set {
			out[k] = struct{}{}
		}
	}
	return out
}
