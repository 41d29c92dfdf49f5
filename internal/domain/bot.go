package domain

import "fmt"

// Random is the source of randomness a bot draws from. *math/rand.Rand
// satisfies it.
type Random interface {
	Intn(n int) int
}

// Strategy plays one whole turn for the current player without clicks.
type Strategy interface {
	Play(g *Game) error
}

// RandomBot moves a random movable totem to a random legal cell, then places
// a piece on a random legal cell.
type RandomBot struct {
	rnd Random
}

// NewRandomBot creates a bot drawing from rnd.
func NewRandomBot(rnd Random) *RandomBot {
	return &RandomBot{rnd: rnd}
}

// Play performs the turn through the game's facade. When no piece cell is
// left after the totem move the turn ends with the move alone.
func (b *RandomBot) Play(g *Game) error {
	if err := g.expect(AwaitingTotem); err != nil {
		return err
	}
	var movable []Totem
	for _, t := range g.board.Totems() {
		if len(g.board.CheckTotemBox(t.Position)) > 0 {
			movable = append(movable, t)
		}
	}
	if len(movable) == 0 {
		return ErrNoLegalMove
	}
	t := movable[b.rnd.Intn(len(movable))]
	moves := g.board.CheckTotemBox(t.Position)
	to := moves[b.rnd.Intn(len(moves))]
	if err := g.facade.MoveTotem(g.board, Totem{Symbol: t.Symbol, Position: to}, t.Position); err != nil {
		return fmt.Errorf("bot move totem %s %v -> %v: %w", t.Symbol, t.Position, to, err)
	}
	g.symbol = t.Symbol

	cells := g.board.CheckPieceBox(to)
	if len(cells) == 0 {
		g.endTurn(false)
		return nil
	}
	at := cells[b.rnd.Intn(len(cells))]
	ok, err := g.facade.InsertToken(g.board, Piece{Color: g.player, Symbol: g.symbol}, at)
	if err != nil {
		return fmt.Errorf("bot insert %s %s at %v: %w", g.player, g.symbol, at, err)
	}
	g.endTurn(ok)
	return nil
}
