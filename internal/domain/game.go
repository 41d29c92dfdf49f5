package domain

import (
	"errors"
	"fmt"
)

// WinLength is the run of same-color or same-symbol pieces that ends the game.
const WinLength = 4

// DefaultStock is the number of pieces per color and symbol a player starts with.
const DefaultStock = 16

// Errors returned by the coordinator.
var (
	ErrGameOver        = errors.New("game over")
	ErrWrongPhase      = errors.New("not allowed in this phase")
	ErrUndoUnsupported = errors.New("facade cannot undo")
	ErrNoLegalMove     = errors.New("no legal move")
)

// Reasons carried by a Rejected result. These are user mistakes, not failures.
var (
	ErrNotATotem    = errors.New("no totem on this cell")
	ErrCellOccupied = errors.New("cell is occupied")
	ErrIllegalMove  = errors.New("destination not allowed")
	ErrRefused      = errors.New("placement refused")
)

// Phase is where the current turn stands.
type Phase uint8

const (
	AwaitingTotem       Phase = iota // first click must pick a totem
	AwaitingDestination              // second click moves the picked totem
	AwaitingPiece                    // next click places a piece
	Finished
)

func (p Phase) String() string {
	switch p {
	case AwaitingTotem:
		return "awaiting-totem"
	case AwaitingDestination:
		return "awaiting-destination"
	case AwaitingPiece:
		return "awaiting-piece"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// Outcome tags a click Result.
type Outcome uint8

const (
	// Offered: the click was accepted and Candidates are the legal next cells.
	Offered Outcome = iota
	// Rejected: the click was refused; Reason says why and Candidates are
	// still the legal cells for the current selection.
	Rejected
	// Pivoted: another totem is now selected; Candidates are its moves.
	Pivoted
	// Cancelled: the selection was cleared and the turn restarts.
	Cancelled
	// Committed: a move was applied. After a totem move Candidates are the
	// legal piece cells; after a placement the turn is over.
	Committed
)

func (o Outcome) String() string {
	switch o {
	case Offered:
		return "offered"
	case Rejected:
		return "rejected"
	case Pivoted:
		return "pivoted"
	case Cancelled:
		return "cancelled"
	case Committed:
		return "committed"
	default:
		return "unknown"
	}
}

// Result is what a click produced.
type Result struct {
	Outcome    Outcome
	Reason     error
	Selection  Position
	Candidates []Position
}

// Game coordinates the turns of one Oxono match over a Board.
//
// A turn is driven by clicks: pick a totem, pick its destination, then pick a
// cell for the piece. Every mutation goes through the Facade.
type Game struct {
	board  *Board
	facade Facade
	stock  int

	player   Color
	symbol   Symbol
	phase    Phase
	selected Position
	revealed bool
	offered  []Position

	winner Color
	draw   bool
	turns  int

	// symbols played per completed turn, and per undone turn
	played   []Symbol
	replayed []Symbol
}

// NewGame returns a game over an already initialised board. Pink moves first.
// A nil facade means a fresh History.
func NewGame(b *Board, f Facade) *Game {
	if f == nil {
		f = NewHistory()
	}
	return &Game{board: b, facade: f, stock: DefaultStock, player: Pink}
}

// Start builds a width x height board with both totems near the centre.
func Start(width, height int) (*Game, error) {
	b, err := NewBoard(width, height)
	if err != nil {
		return nil, err
	}
	if err := b.InitialiseTotem(Totem{Symbol: X, Position: Position{width / 2, height / 2}}); err != nil {
		return nil, err
	}
	if err := b.InitialiseTotem(Totem{Symbol: O, Position: Position{width/2 - 1, height/2 - 1}}); err != nil {
		return nil, err
	}
	return NewGame(b, NewHistory()), nil
}

// SetStock changes the per color/symbol stock reported by Remaining.
func (g *Game) SetStock(n int) { g.stock = n }

func (g *Game) Board() *Board         { return g.board }
func (g *Game) Phase() Phase          { return g.phase }
func (g *Game) CurrentPlayer() Color  { return g.player }
func (g *Game) CurrentSymbol() Symbol { return g.symbol }
func (g *Game) Turns() int            { return g.turns }
func (g *Game) Finished() bool        { return g.phase == Finished }
func (g *Game) Draw() bool            { return g.phase == Finished && g.draw }

// IsTotemTurn reports whether the current turn still has to move a totem.
func (g *Game) IsTotemTurn() bool {
	return g.phase == AwaitingTotem || g.phase == AwaitingDestination
}

// IsFirstClick reports whether the next click picks a totem.
func (g *Game) IsFirstClick() bool { return g.phase == AwaitingTotem }

// Winner returns the winning color once the game ended with a win.
func (g *Game) Winner() (Color, bool) {
	if g.phase != Finished || g.draw {
		return 0, false
	}
	return g.winner, true
}

// CurrentTotem returns the totem of the active symbol.
func (g *Game) CurrentTotem() (Totem, bool) { return g.board.Totem(g.symbol) }

// Selected returns the picked totem position while awaiting its destination.
func (g *Game) Selected() (Position, bool) {
	return g.selected, g.phase == AwaitingDestination
}

// Candidates returns the cells offered by the last click.
func (g *Game) Candidates() []Position { return append([]Position(nil), g.offered...) }

// Remaining is the informational stock left for a color and symbol.
func (g *Game) Remaining(c Color, s Symbol) int {
	if n := g.stock - g.board.Pieces(c, s); n > 0 {
		return n
	}
	return 0
}

// Click routes a click to the handler for the current phase.
func (g *Game) Click(p Position) (Result, error) {
	switch g.phase {
	case AwaitingTotem:
		return g.SelectTotem(p)
	case AwaitingDestination:
		return g.MoveTotem(p)
	case AwaitingPiece:
		return g.PlacePiece(p)
	default:
		return Result{}, ErrGameOver
	}
}

// SelectTotem handles the first click of a turn, which must hit a totem.
func (g *Game) SelectTotem(p Position) (Result, error) {
	if err := g.expect(AwaitingTotem); err != nil {
		return Result{}, err
	}
	if _, ok := g.board.TokenAt(p).(Totem); !ok {
		return Result{Outcome: Rejected, Reason: ErrNotATotem, Selection: p}, nil
	}
	g.selected = p
	g.phase = AwaitingDestination
	return g.offer(Offered, p, g.board.CheckTotemBox(p)), nil
}

// MoveTotem handles the second click: a destination for the picked totem,
// the other totem to pivot to, or a cancel. Clicking the picked totem, or the
// other totem while it shares a row or column with it, cancels.
func (g *Game) MoveTotem(p Position) (Result, error) {
	if err := g.expect(AwaitingDestination); err != nil {
		return Result{}, err
	}
	moves := g.board.CheckTotemBox(g.selected)
	switch g.board.TokenAt(p).(type) {
	case Piece:
		return g.reject(ErrCellOccupied, moves), nil
	case Totem:
		// the same totem, or the other one on its row or column, drops the selection
		if p.X == g.selected.X || p.Y == g.selected.Y {
			g.clearSelection()
			g.phase = AwaitingTotem
			return Result{Outcome: Cancelled, Selection: p}, nil
		}
		g.selected = p
		return g.offer(Pivoted, p, g.board.CheckTotemBox(p)), nil
	}
	if !contains(moves, p) {
		return g.reject(ErrIllegalMove, moves), nil
	}

	t := g.board.TokenAt(g.selected).(Totem)
	from := g.selected
	if err := g.facade.MoveTotem(g.board, Totem{Symbol: t.Symbol, Position: p}, from); err != nil {
		return Result{}, fmt.Errorf("move totem %s %v -> %v: %w", t.Symbol, from, p, err)
	}
	g.symbol = t.Symbol
	g.clearSelection()
	g.phase = AwaitingPiece

	cells := g.revealPieces()
	if len(cells) == 0 {
		g.endTurn(false)
	}
	return Result{Outcome: Committed, Selection: p, Candidates: cells}, nil
}

// PlacePiece handles the piece phase. The first call only reveals the legal
// cells; later calls try to place a piece of the current player and symbol.
func (g *Game) PlacePiece(p Position) (Result, error) {
	if err := g.expect(AwaitingPiece); err != nil {
		return Result{}, err
	}
	anchor, _ := g.board.Totem(g.symbol)
	if !g.revealed {
		return g.offer(Offered, anchor.Position, g.revealPieces()), nil
	}
	cells := g.board.CheckPieceBox(anchor.Position)
	if !contains(cells, p) {
		reason := ErrIllegalMove
		if g.board.TokenAt(p) != nil {
			reason = ErrCellOccupied
		}
		return g.offer(Rejected, p, cells).withReason(reason), nil
	}
	ok, err := g.facade.InsertToken(g.board, Piece{Color: g.player, Symbol: g.symbol}, p)
	if err != nil {
		return Result{}, fmt.Errorf("insert %s %s at %v: %w", g.player, g.symbol, p, err)
	}
	if !ok {
		return g.offer(Rejected, p, cells).withReason(ErrRefused), nil
	}
	g.endTurn(true)
	return Result{Outcome: Committed, Selection: p}, nil
}

// IsGameOver sweeps every row and every column for WinLength consecutive
// pieces of the current player's color, or of the active symbol.
func (g *Game) IsGameOver() bool {
	b := g.board
	for y := 0; y < b.height; y++ {
		var r run
		for x := 0; x < b.width; x++ {
			if r.add(b.cells[y][x], g.player, g.symbol) {
				return true
			}
		}
	}
	for x := 0; x < b.width; x++ {
		var r run
		for y := 0; y < b.height; y++ {
			if r.add(b.cells[y][x], g.player, g.symbol) {
				return true
			}
		}
	}
	return false
}

// IsDrawMatch reports whether neither totem has anywhere to go.
func (g *Game) IsDrawMatch() bool {
	for _, t := range g.board.Totems() {
		if len(g.board.CheckTotemBox(t.Position)) > 0 {
			return false
		}
	}
	return true
}

// Undo reverts the last completed turn. Only allowed between turns.
func (g *Game) Undo() error {
	r, err := g.rewinder()
	if err != nil {
		return err
	}
	if err := r.Undo(g.board); err != nil {
		return err
	}
	g.player = g.player.Next()
	g.turns--
	if n := len(g.played); n > 0 {
		g.replayed = append(g.replayed, g.played[n-1])
		g.played = g.played[:n-1]
	}
	g.symbol = X
	if n := len(g.played); n > 0 {
		g.symbol = g.played[n-1]
	}
	return nil
}

// Redo replays the last undone turn. Only allowed between turns.
func (g *Game) Redo() error {
	r, err := g.rewinder()
	if err != nil {
		return err
	}
	if err := r.Redo(g.board); err != nil {
		return err
	}
	g.player = g.player.Next()
	g.turns++
	if n := len(g.replayed); n > 0 {
		g.symbol = g.replayed[n-1]
		g.played = append(g.played, g.symbol)
		g.replayed = g.replayed[:n-1]
	}
	return nil
}

func (g *Game) rewinder() (Rewinder, error) {
	if err := g.expect(AwaitingTotem); err != nil {
		return nil, err
	}
	r, ok := g.facade.(Rewinder)
	if !ok {
		return nil, ErrUndoUnsupported
	}
	return r, nil
}

func (g *Game) expect(p Phase) error {
	if g.phase == Finished {
		return ErrGameOver
	}
	if g.phase != p {
		return fmt.Errorf("%w: %s", ErrWrongPhase, g.phase)
	}
	return nil
}

func (g *Game) revealPieces() []Position {
	anchor, _ := g.board.Totem(g.symbol)
	g.revealed = true
	g.offered = g.board.CheckPieceBox(anchor.Position)
	return g.offered
}

// endTurn closes the turn: a placement may win, then a stuck board draws,
// otherwise the other color moves next.
func (g *Game) endTurn(placed bool) {
	g.turns++
	g.played = append(g.played, g.symbol)
	g.replayed = nil
	g.clearSelection()
	switch {
	case placed && g.IsGameOver():
		g.winner = g.player
		g.phase = Finished
	case g.IsDrawMatch():
		g.draw = true
		g.phase = Finished
	default:
		g.player = g.player.Next()
		g.phase = AwaitingTotem
	}
}

func (g *Game) clearSelection() {
	g.selected = Position{}
	g.revealed = false
	g.offered = nil
}

func (g *Game) offer(o Outcome, sel Position, cells []Position) Result {
	g.offered = cells
	return Result{Outcome: o, Selection: sel, Candidates: cells}
}

func (g *Game) reject(reason error, cells []Position) Result {
	return g.offer(Rejected, g.selected, cells).withReason(reason)
}

func (r Result) withReason(err error) Result {
	r.Reason = err
	return r
}

// run counts consecutive pieces along one row or column.
type run struct {
	color, symbol int
}

func (r *run) add(t Token, c Color, s Symbol) bool {
	switch tok := t.(type) {
	case Piece:
		if tok.Color == c {
			r.color++
		} else {
			r.color = 0
		}
		if tok.Symbol == s {
			r.symbol++
		} else {
			r.symbol = 0
		}
	case Totem, nil:
		r.color, r.symbol = 0, 0
	}
	return r.color >= WinLength || r.symbol >= WinLength
}

func contains(ps []Position, p Position) bool {
	for _, q := range ps {
		if q == p {
			return true
		}
	}
	return false
}
