package domain

import (
	"errors"
	"fmt"
)

// Errors returned by board mutators. They mean the caller asked for a move
// the legality queries would never have offered.
var (
	ErrBoardSize     = errors.New("board must be at least 2x2")
	ErrOutOfBounds   = errors.New("out of bounds")
	ErrOccupied      = errors.New("cell occupied")
	ErrTotemPlaced   = errors.New("totem already placed")
	ErrUnknownTotem  = errors.New("totem not on board")
	ErrTotemMismatch = errors.New("totem is not at the given origin")
	ErrNoPiece       = errors.New("no piece at position")
)

// directions are the four rook rays, in scan order.
var directions = [4]Position{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

// Board is the Oxono grid together with its totems and placed pieces.
// Every mutator keeps the grid, the totem set, the piece lists and the free
// cell counter consistent with each other.
type Board struct {
	width, height int
	cells         [][]Token // [y][x]
	totems        map[Symbol]Totem
	pieces        [2][2][]Position // [Color][Symbol]
	free          int
}

// NewBoard returns an empty width x height board.
func NewBoard(width, height int) (*Board, error) {
	if width < 2 || height < 2 {
		return nil, fmt.Errorf("%w: got %dx%d", ErrBoardSize, width, height)
	}
	cells := make([][]Token, height)
	for y := range cells {
		cells[y] = make([]Token, width)
	}
	return &Board{
		width:  width,
		height: height,
		cells:  cells,
		totems: make(map[Symbol]Totem, 2),
		free:   width * height,
	}, nil
}

// Width is the number of columns.
func (b *Board) Width() int { return b.width }

// Height is the number of rows.
func (b *Board) Height() int { return b.height }

// FreeBox is the number of empty cells.
func (b *Board) FreeBox() int { return b.free }

// InBounds reports whether p lies on the board.
func (b *Board) InBounds(p Position) bool {
	return p.X >= 0 && p.X < b.width && p.Y >= 0 && p.Y < b.height
}

// TokenAt returns the token at p, or nil when the cell is empty or off-board.
func (b *Board) TokenAt(p Position) Token {
	if !b.InBounds(p) {
		return nil
	}
	return b.cells[p.Y][p.X]
}

func (b *Board) empty(p Position) bool {
	return b.InBounds(p) && b.cells[p.Y][p.X] == nil
}

// Pieces returns how many pieces of the given color and symbol are placed.
func (b *Board) Pieces(c Color, s Symbol) int {
	return len(b.pieces[c][s])
}

// Totem returns the live totem for s.
func (b *Board) Totem(s Symbol) (Totem, bool) {
	t, ok := b.totems[s]
	return t, ok
}

// Totems returns the placed totems, X first.
func (b *Board) Totems() []Totem {
	out := make([]Totem, 0, 2)
	for _, s := range Symbols {
		if t, ok := b.totems[s]; ok {
			out = append(out, t)
		}
	}
	return out
}

// InitialiseTotem places a totem at game start. Each symbol may be placed once.
func (b *Board) InitialiseTotem(t Totem) error {
	if t.Symbol != X && t.Symbol != O {
		return fmt.Errorf("%w: symbol %d", ErrUnknownTotem, t.Symbol)
	}
	if _, ok := b.totems[t.Symbol]; ok {
		return fmt.Errorf("%w: %s", ErrTotemPlaced, t.Symbol)
	}
	if err := b.checkTarget(t.Position); err != nil {
		return err
	}
	b.cells[t.Position.Y][t.Position.X] = t
	b.totems[t.Symbol] = t
	b.free--
	return nil
}

// MoveTotem relocates the totem of t.Symbol from `from` to t.Position.
func (b *Board) MoveTotem(t Totem, from Position) error {
	cur, ok := b.totems[t.Symbol]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTotem, t.Symbol)
	}
	if cur.Position != from {
		return fmt.Errorf("%w: %s is at %v, not %v", ErrTotemMismatch, t.Symbol, cur.Position, from)
	}
	if err := b.checkTarget(t.Position); err != nil {
		return err
	}
	b.cells[from.Y][from.X] = nil
	b.cells[t.Position.Y][t.Position.X] = t
	b.totems[t.Symbol] = t
	return nil
}

// SetPiece places a new piece at `at`.
func (b *Board) SetPiece(p Piece, at Position) error {
	if err := b.checkTarget(at); err != nil {
		return err
	}
	b.cells[at.Y][at.X] = p
	b.pieces[p.Color][p.Symbol] = append(b.pieces[p.Color][p.Symbol], at)
	b.free--
	return nil
}

// RemovePiece takes a placed piece off the board. Only undo uses it.
func (b *Board) RemovePiece(at Position) (Piece, error) {
	if !b.InBounds(at) {
		return Piece{}, fmt.Errorf("%w: %v", ErrOutOfBounds, at)
	}
	p, ok := b.cells[at.Y][at.X].(Piece)
	if !ok {
		return Piece{}, fmt.Errorf("%w: %v", ErrNoPiece, at)
	}
	list := b.pieces[p.Color][p.Symbol]
	for i, pos := range list {
		if pos == at {
			b.pieces[p.Color][p.Symbol] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	b.cells[at.Y][at.X] = nil
	b.free++
	return p, nil
}

func (b *Board) checkTarget(p Position) error {
	if !b.InBounds(p) {
		return fmt.Errorf("%w: %v", ErrOutOfBounds, p)
	}
	if b.cells[p.Y][p.X] != nil {
		return fmt.Errorf("%w: %v", ErrOccupied, p)
	}
	return nil
}

// CheckTotemBox lists where the totem standing on `from` may move.
//
// A totem slides like a rook over empty cells and stops before the first
// occupied cell. When none of its four neighbours is empty the totem is
// enclaved: it may instead jump, in each direction, to the first empty cell
// past the run of occupied cells, if such a cell exists before the edge.
func (b *Board) CheckTotemBox(from Position) []Position {
	var out []Position
	for _, d := range directions {
		p := Position{from.X + d.X, from.Y + d.Y}
		for b.empty(p) {
			out = append(out, p)
			p = Position{p.X + d.X, p.Y + d.Y}
		}
	}
	if len(out) > 0 {
		return out
	}
	return b.enclaveJumps(from)
}

func (b *Board) enclaveJumps(from Position) []Position {
	var out []Position
	for _, d := range directions {
		p := Position{from.X + d.X, from.Y + d.Y}
		for b.InBounds(p) && b.cells[p.Y][p.X] != nil {
			p = Position{p.X + d.X, p.Y + d.Y}
		}
		if b.empty(p) {
			out = append(out, p)
		}
	}
	return out
}

// CheckPieceBox lists where a piece may go once a totem landed on `at`:
// the empty orthogonal neighbours, or every empty cell when there are none.
func (b *Board) CheckPieceBox(at Position) []Position {
	var out []Position
	for _, d := range directions {
		p := Position{at.X + d.X, at.Y + d.Y}
		if b.empty(p) {
			out = append(out, p)
		}
	}
	if len(out) > 0 {
		return out
	}
	return b.emptyCells()
}

func (b *Board) emptyCells() []Position {
	out := make([]Position, 0, b.free)
	for y := 0; y < b.height; y++ {
		for x := 0; x < b.width; x++ {
			if b.cells[y][x] == nil {
				out = append(out, Position{x, y})
			}
		}
	}
	return out
}
