package domain

import "errors"

var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// Facade commits moves to a board. Implementations may keep extra
// bookkeeping, such as an undo history, alongside the mutation.
//
// A returned error is a broken precondition and is fatal to the click that
// caused it. InsertToken may also refuse a placement without error by
// returning false, in which case the coordinator re-offers the candidates.
type Facade interface {
	MoveTotem(b *Board, t Totem, from Position) error
	InsertToken(b *Board, p Piece, at Position) (bool, error)
}

// Rewinder is implemented by facades that can revert and replay whole turns.
type Rewinder interface {
	Undo(b *Board) error
	Redo(b *Board) error
}

type command interface {
	apply(b *Board) error
	revert(b *Board) error
}

type moveTotem struct {
	totem Totem
	from  Position
}

func (c moveTotem) apply(b *Board) error { return b.MoveTotem(c.totem, c.from) }

func (c moveTotem) revert(b *Board) error {
	return b.MoveTotem(Totem{Symbol: c.totem.Symbol, Position: c.from}, c.totem.Position)
}

type placePiece struct {
	piece Piece
	at    Position
}

func (c placePiece) apply(b *Board) error { return b.SetPiece(c.piece, c.at) }

func (c placePiece) revert(b *Board) error {
	_, err := b.RemovePiece(c.at)
	return err
}

// History is the default Facade. It records every committed command grouped
// by turn: a totem move opens a turn and the following placements join it.
type History struct {
	done   [][]command
	undone [][]command
}

// NewHistory returns an empty history.
func NewHistory() *History { return &History{} }

// MoveTotem moves the totem and opens a new turn.
func (h *History) MoveTotem(b *Board, t Totem, from Position) error {
	c := moveTotem{totem: t, from: from}
	if err := c.apply(b); err != nil {
		return err
	}
	h.done = append(h.done, []command{c})
	h.undone = nil
	return nil
}

// InsertToken places the piece and adds it to the open turn. It never
// refuses a legal cell.
func (h *History) InsertToken(b *Board, p Piece, at Position) (bool, error) {
	c := placePiece{piece: p, at: at}
	if err := c.apply(b); err != nil {
		return false, err
	}
	if n := len(h.done); n > 0 {
		h.done[n-1] = append(h.done[n-1], c)
	} else {
		h.done = append(h.done, []command{c})
	}
	h.undone = nil
	return true, nil
}

// Turns is the number of recorded turns that can be undone.
func (h *History) Turns() int { return len(h.done) }

// Undo reverts the most recent turn.
func (h *History) Undo(b *Board) error {
	n := len(h.done)
	if n == 0 {
		return ErrNothingToUndo
	}
	turn := h.done[n-1]
	for i := len(turn) - 1; i >= 0; i-- {
		if err := turn[i].revert(b); err != nil {
			return err
		}
	}
	h.done = h.done[:n-1]
	h.undone = append(h.undone, turn)
	return nil
}

// Redo replays the most recently undone turn.
func (h *History) Redo(b *Board) error {
	n := len(h.undone)
	if n == 0 {
		return ErrNothingToRedo
	}
	turn := h.undone[n-1]
	for _, c := range turn {
		if err := c.apply(b); err != nil {
			return err
		}
	}
	h.undone = h.undone[:n-1]
	h.done = append(h.done, turn)
	return nil
}
