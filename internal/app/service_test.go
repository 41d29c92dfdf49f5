package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jaminalder/oxono/internal/domain"
	"github.com/jaminalder/oxono/internal/store"
)

// minimal renderer for tests: encode turn count as bytes
func testRenderer(gs GameState) []byte { return []byte(fmt.Sprintf("turns=%d", gs.Snapshot.Turns)) }

type recordingArchive struct{ matches []store.Match }

func (a *recordingArchive) Save(m store.Match) error {
	a.matches = append(a.matches, m)
	return nil
}

func pos(x, y int) domain.Position { return domain.Position{X: x, Y: y} }

func mustClick(t *testing.T, s *Service, id, player string, p domain.Position, want domain.Outcome) *GameState {
	t.Helper()
	st, res, err := s.Click(id, player, p)
	if err != nil {
		t.Fatalf("click %v by %s: %v", p, player, err)
	}
	if res.Outcome != want {
		t.Fatalf("click %v by %s: expected %v, got %v (%v)", p, player, want, res.Outcome, res.Reason)
	}
	return st
}

// openingTurn plays pink's first turn on a fresh 6x6 game: X from the centre
// down to the edge, piece to its right.
func openingTurn(t *testing.T, s *Service, id, player string) *GameState {
	t.Helper()
	mustClick(t, s, id, player, pos(3, 3), domain.Offered)
	mustClick(t, s, id, player, pos(3, 5), domain.Committed)
	return mustClick(t, s, id, player, pos(4, 5), domain.Committed)
}

func TestCreateAndGet(t *testing.T) {
	s := NewServiceWithRenderer(testRenderer)
	gs, err := s.CreateGame()
	if err != nil {
		t.Fatalf("CreateGame error: %v", err)
	}
	if gs.ID == "" {
		t.Fatalf("expected non-empty game ID")
	}
	if gs.Snapshot.Player != domain.Pink || gs.Snapshot.Phase != domain.AwaitingTotem {
		t.Fatalf("expected pink to pick a totem, got %v/%v", gs.Snapshot.Player, gs.Snapshot.Phase)
	}
	if gs.Snapshot.Width != 6 || gs.Snapshot.FreeBox != 34 {
		t.Fatalf("unexpected board: width=%d free=%d", gs.Snapshot.Width, gs.Snapshot.FreeBox)
	}
	if gs.Created.IsZero() || gs.Updated.IsZero() {
		t.Fatalf("expected timestamps to be set")
	}
	got, ok := s.Get(gs.ID)
	if !ok || got.ID != gs.ID {
		t.Fatalf("Get should find created game")
	}
	if _, ok := s.Get("nope"); ok {
		t.Fatalf("Get should miss unknown games")
	}
}

func TestCreateUsesOptions(t *testing.T) {
	s := New(Options{Width: 8, Height: 7, Stock: 10})
	gs, err := s.CreateGame()
	if err != nil {
		t.Fatalf("CreateGame error: %v", err)
	}
	if gs.Snapshot.Width != 8 || gs.Snapshot.Height != 7 {
		t.Fatalf("expected 8x7, got %dx%d", gs.Snapshot.Width, gs.Snapshot.Height)
	}
	if r := gs.Snapshot.Pieces[0].Remaining; r != 10 {
		t.Fatalf("expected stock 10, got %d", r)
	}

	if _, err := New(Options{Width: 1, Height: 1}).CreateGame(); !errors.Is(err, domain.ErrBoardSize) {
		t.Fatalf("expected ErrBoardSize, got %v", err)
	}
}

func TestJoinSeatsAndRejoin(t *testing.T) {
	s := NewServiceWithRenderer(testRenderer)
	gs, _ := s.CreateGame()
	p1, p2, p3 := "p1", "p2", "p3"

	side, ok, _, err := s.Join(gs.ID, p1)
	if err != nil || !ok || side != domain.Pink {
		t.Fatalf("p1 should claim pink, got %v/%v, err=%v", side, ok, err)
	}
	side, ok, _, err = s.Join(gs.ID, p2)
	if err != nil || !ok || side != domain.Black {
		t.Fatalf("p2 should claim black, got %v/%v, err=%v", side, ok, err)
	}
	side, ok, _, err = s.Join(gs.ID, p1)
	if err != nil || !ok || side != domain.Pink {
		t.Fatalf("p1 rejoin should keep pink, got %v/%v, err=%v", side, ok, err)
	}
	_, ok, st, err := s.Join(gs.ID, p3)
	if err != nil || ok {
		t.Fatalf("p3 should spectate, got ok=%v, err=%v", ok, err)
	}
	if st.Pink != p1 || st.Black != p2 {
		t.Fatalf("seats changed: pink=%q black=%q", st.Pink, st.Black)
	}
	if _, _, _, err := s.Join("missing", p1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClickEnforcesTurnAndSpectatorBlocked(t *testing.T) {
	s := NewServiceWithRenderer(testRenderer)
	gs, _ := s.CreateGame()
	p1, p2, p3 := "p1", "p2", "p3"
	s.Join(gs.ID, p1) // pink
	s.Join(gs.ID, p2) // black
	s.Join(gs.ID, p3) // spectator

	// black cannot play first
	if _, _, err := s.Click(gs.ID, p2, pos(3, 3)); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
	// spectator cannot play
	if _, _, err := s.Click(gs.ID, p3, pos(3, 3)); !errors.Is(err, ErrNotAPlayer) {
		t.Fatalf("expected ErrNotAPlayer, got %v", err)
	}
	if _, _, err := s.Click("missing", p1, pos(3, 3)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	st := openingTurn(t, s, gs.ID, p1)
	if st.Snapshot.Player != domain.Black || st.Snapshot.Turns != 1 || st.Snapshot.FreeBox != 33 {
		t.Fatalf("unexpected state after pink turn: player=%v turns=%d free=%d",
			st.Snapshot.Player, st.Snapshot.Turns, st.Snapshot.FreeBox)
	}
	if c := st.Snapshot.Cells[5][4]; c.Kind != "piece" || c.Color != "pink" || c.Symbol != "X" {
		t.Fatalf("expected pink X piece at (4,5), got %+v", c)
	}
	if st.LastResult.Outcome != domain.Committed {
		t.Fatalf("expected last result committed, got %v", st.LastResult.Outcome)
	}
	// pink cannot play again
	if _, _, err := s.Click(gs.ID, p1, pos(2, 2)); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn for pink again, got %v", err)
	}
}

func TestClickRejectionKeepsState(t *testing.T) {
	s := NewService()
	gs, _ := s.CreateGame()
	s.Join(gs.ID, "p1")

	st, res, err := s.Click(gs.ID, "p1", pos(0, 0))
	if err != nil {
		t.Fatalf("click failed: %v", err)
	}
	if res.Outcome != domain.Rejected || !errors.Is(res.Reason, domain.ErrNotATotem) {
		t.Fatalf("expected rejection, got %v (%v)", res.Outcome, res.Reason)
	}
	if st.Snapshot.Phase != domain.AwaitingTotem || st.Snapshot.Player != domain.Pink {
		t.Fatalf("rejection must not change the turn")
	}
}

func TestBotRepliesAfterTurn(t *testing.T) {
	s := New(Options{Bot: true, Seed: 1})
	gs, _ := s.CreateGame()
	if !gs.Bot || gs.Black != BotPlayer {
		t.Fatalf("expected bot on black, got bot=%v black=%q", gs.Bot, gs.Black)
	}
	if _, ok, _, _ := s.Join(gs.ID, "p1"); !ok {
		t.Fatalf("p1 should get pink")
	}
	if _, ok, _, _ := s.Join(gs.ID, "p2"); ok {
		t.Fatalf("bot seat must not be taken")
	}
	if _, _, err := s.Click(gs.ID, BotPlayer, pos(3, 3)); !errors.Is(err, ErrNotAPlayer) {
		t.Fatalf("the bot seat cannot be driven by clicks, got %v", err)
	}

	st := openingTurn(t, s, gs.ID, "p1")
	if st.Snapshot.Player != domain.Pink || st.Snapshot.Turns != 2 {
		t.Fatalf("bot should have replied: player=%v turns=%d", st.Snapshot.Player, st.Snapshot.Turns)
	}
	if st.Snapshot.FreeBox != 32 {
		t.Fatalf("expected two pieces on the board, free=%d", st.Snapshot.FreeBox)
	}
}

func TestUndoRedo(t *testing.T) {
	s := NewService()
	gs, _ := s.CreateGame()
	s.Join(gs.ID, "p1")
	s.Join(gs.ID, "p2")

	if _, err := s.Undo(gs.ID, "p1"); !errors.Is(err, domain.ErrNothingToUndo) {
		t.Fatalf("expected ErrNothingToUndo, got %v", err)
	}
	openingTurn(t, s, gs.ID, "p1")

	if _, err := s.Undo(gs.ID, "p3"); !errors.Is(err, ErrNotAPlayer) {
		t.Fatalf("spectators cannot undo, got %v", err)
	}
	st, err := s.Undo(gs.ID, "p1")
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if st.Snapshot.Turns != 0 || st.Snapshot.Player != domain.Pink || st.Snapshot.FreeBox != 34 {
		t.Fatalf("undo should restore the opening: turns=%d player=%v free=%d",
			st.Snapshot.Turns, st.Snapshot.Player, st.Snapshot.FreeBox)
	}
	st, err = s.Redo(gs.ID, "p1")
	if err != nil {
		t.Fatalf("Redo: %v", err)
	}
	if st.Snapshot.Turns != 1 || st.Snapshot.Player != domain.Black {
		t.Fatalf("redo should replay the turn: turns=%d player=%v", st.Snapshot.Turns, st.Snapshot.Player)
	}

	mustClick(t, s, gs.ID, "p2", pos(2, 2), domain.Offered)
	if _, err := s.Undo(gs.ID, "p2"); !errors.Is(err, domain.ErrWrongPhase) {
		t.Fatalf("undo mid-turn should fail, got %v", err)
	}
}

func TestUndoAgainstBotRewindsBothTurns(t *testing.T) {
	s := New(Options{Bot: true, Seed: 3})
	gs, _ := s.CreateGame()
	s.Join(gs.ID, "p1")
	openingTurn(t, s, gs.ID, "p1")

	st, err := s.Undo(gs.ID, "p1")
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if st.Snapshot.Turns != 0 || st.Snapshot.Player != domain.Pink || st.Snapshot.FreeBox != 34 {
		t.Fatalf("expected the opening position, got turns=%d player=%v free=%d",
			st.Snapshot.Turns, st.Snapshot.Player, st.Snapshot.FreeBox)
	}
	if _, err := s.Undo(gs.ID, "p1"); !errors.Is(err, domain.ErrNothingToUndo) {
		t.Fatalf("expected ErrNothingToUndo, got %v", err)
	}
	st, err = s.Redo(gs.ID, "p1")
	if err != nil {
		t.Fatalf("Redo: %v", err)
	}
	if st.Snapshot.Turns != 2 || st.Snapshot.Player != domain.Pink {
		t.Fatalf("redo should replay both turns, got turns=%d player=%v", st.Snapshot.Turns, st.Snapshot.Player)
	}
}

func TestFinishedGameIsArchivedOnce(t *testing.T) {
	archive := &recordingArchive{}
	s := New(Options{Width: 2, Height: 2, Archive: archive})
	gs, _ := s.CreateGame()
	s.Join(gs.ID, "p1")
	s.Join(gs.ID, "p2")

	// O(0,0) X(1,1): pink moves X up and fills (1,1)
	mustClick(t, s, gs.ID, "p1", pos(1, 1), domain.Offered)
	mustClick(t, s, gs.ID, "p1", pos(1, 0), domain.Committed)
	mustClick(t, s, gs.ID, "p1", pos(1, 1), domain.Committed)
	// black moves O down and fills (0,0): both totems are stuck
	mustClick(t, s, gs.ID, "p2", pos(0, 0), domain.Offered)
	mustClick(t, s, gs.ID, "p2", pos(0, 1), domain.Committed)
	st := mustClick(t, s, gs.ID, "p2", pos(0, 0), domain.Committed)

	if !st.Snapshot.Finished || !st.Snapshot.Draw {
		t.Fatalf("expected a draw, got finished=%v draw=%v", st.Snapshot.Finished, st.Snapshot.Draw)
	}
	if len(archive.matches) != 1 {
		t.Fatalf("expected one archived match, got %d", len(archive.matches))
	}
	m := archive.matches[0]
	if m.ID != gs.ID || !m.Draw || m.Winner != "" || m.Turns != 2 || m.Pink != "p1" || m.Black != "p2" || m.Width != 2 {
		t.Fatalf("unexpected archive record %+v", m)
	}

	if _, _, err := s.Click(gs.ID, "p1", pos(1, 0)); !errors.Is(err, domain.ErrGameOver) {
		t.Fatalf("expected ErrGameOver, got %v", err)
	}
	if _, err := s.Undo(gs.ID, "p1"); !errors.Is(err, domain.ErrGameOver) {
		t.Fatalf("expected ErrGameOver on undo, got %v", err)
	}
	if len(archive.matches) != 1 {
		t.Fatalf("match archived more than once")
	}
}

func TestSubscribeAndBroadcast(t *testing.T) {
	s := NewServiceWithRenderer(testRenderer)
	gs, _ := s.CreateGame()
	s.Join(gs.ID, "p1")
	s.Join(gs.ID, "p2")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*2)
	defer cancel()
	ch, unsub := s.Subscribe(ctx, gs.ID)
	defer unsub()

	openingTurn(t, s, gs.ID, "p1")

	for _, want := range []string{"turns=0", "turns=0", "turns=1"} {
		select {
		case b, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed unexpectedly")
			}
			if string(b) != want {
				t.Fatalf("unexpected broadcast payload: %q, want %q", string(b), want)
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for broadcast")
		}
	}
}

func TestDropSlowSubscriber(t *testing.T) {
	s := NewServiceWithRenderer(testRenderer)
	gs, _ := s.CreateGame()
	s.Join(gs.ID, "p1")

	// Slow subscriber: never read until the end
	ctxSlow, cancelSlow := context.WithCancel(context.Background())
	defer cancelSlow()
	slowCh, _ := s.Subscribe(ctxSlow, gs.ID)

	// Fast subscriber: reads every update
	ctxFast, cancelFast := context.WithTimeout(context.Background(), time.Second*2)
	defer cancelFast()
	fastCh, unsubFast := s.Subscribe(ctxFast, gs.ID)
	defer unsubFast()

	// select and cancel the X totem more often than the buffer holds
	for i := 0; i < subscriberBuffer+2; i++ {
		want := domain.Offered
		if i%2 == 1 {
			want = domain.Cancelled
		}
		mustClick(t, s, gs.ID, "p1", pos(3, 3), want)
		select {
		case <-fastCh:
		case <-ctxFast.Done():
			t.Fatalf("fast subscriber did not receive update %d in time", i)
		}
	}

	got := 0
	for {
		select {
		case _, ok := <-slowCh:
			if !ok {
				if got != subscriberBuffer {
					t.Fatalf("slow subscriber should keep its buffered updates, got %d", got)
				}
				return
			}
			got++
		case <-time.After(time.Second):
			t.Fatalf("slow subscriber was not dropped")
		}
	}
}

func TestBroadcastAfterUnsubscribeDoesNotPanic(t *testing.T) {
	s := NewServiceWithRenderer(testRenderer)
	gs, _ := s.CreateGame()

	ch, unsub := s.Subscribe(context.Background(), gs.ID)
	s.mu.Lock()
	subs := s.copySubsLocked(gs.ID)
	s.mu.Unlock()

	// the subscriber leaves between the copy and the send
	unsub()
	s.broadcast(gs.ID, subs, []byte("late"))

	if _, ok := <-ch; ok {
		t.Fatalf("unsubscribed channel should be closed and empty")
	}
}

func TestFailedRollbackIsLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	s := New(Options{Bot: true, Seed: 1, Logger: zap.New(core)})
	gs, _ := s.CreateGame()
	s.Join(gs.ID, "p1")

	boom := errors.New("boom")
	calls := 0
	step := func(*domain.Game) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	}
	back := func(*domain.Game) error { return errors.New("stuck") }

	if _, err := s.rewind(gs.ID, "p1", step, back); !errors.Is(err, boom) {
		t.Fatalf("expected the step error, got %v", err)
	}
	if n := logs.FilterMessage("roll back partial rewind").Len(); n != 1 {
		t.Fatalf("expected the failed rollback to be logged once, got %d", n)
	}
}
