package domain

// Position is a board coordinate; X is the column, Y the row.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Symbol is the kind of a totem or piece.
type Symbol uint8

const (
	X Symbol = iota
	O
)

func (s Symbol) String() string {
	switch s {
	case X:
		return "X"
	case O:
		return "O"
	default:
		return "?"
	}
}

// Color identifies a player and the pieces they own.
type Color uint8

const (
	Pink Color = iota
	Black
)

func (c Color) String() string {
	switch c {
	case Pink:
		return "pink"
	case Black:
		return "black"
	default:
		return "?"
	}
}

// Next returns the opponent color.
func (c Color) Next() Color {
	if c == Pink {
		return Black
	}
	return Pink
}

// Symbols and Colors list every value in index order.
var (
	Symbols = [2]Symbol{X, O}
	Colors  = [2]Color{Pink, Black}
)

// Token is whatever occupies a board cell: a Totem or a Piece.
// The set of implementations is closed to this package.
type Token interface {
	token()
}

// Totem is one of the two movable markers, one per Symbol.
type Totem struct {
	Symbol   Symbol
	Position Position
}

// Piece is a placed token. Its position is the cell holding it.
type Piece struct {
	Color  Color
	Symbol Symbol
}

func (Totem) token() {}
func (Piece) token() {}
