package domain

import "fmt"

// Cell is the rendered content of one board cell. Kind is "", "totem" or "piece".
type Cell struct {
	Kind      string `json:"kind"`
	Symbol    string `json:"symbol,omitempty"`
	Color     string `json:"color,omitempty"`
	Candidate bool   `json:"candidate,omitempty"`
	Selected  bool   `json:"selected,omitempty"`
}

// PieceCount reports placed and remaining pieces for one color and symbol.
type PieceCount struct {
	Color     Color  `json:"color"`
	Symbol    Symbol `json:"symbol"`
	Placed    int    `json:"placed"`
	Remaining int    `json:"remaining"`
}

// Snapshot is a detached copy of a game's visible state.
type Snapshot struct {
	Width      int          `json:"width"`
	Height     int          `json:"height"`
	Cells      [][]Cell     `json:"cells"`
	Player     Color        `json:"player"`
	Symbol     Symbol       `json:"symbol"`
	Phase      Phase        `json:"phase"`
	Candidates []Position   `json:"candidates"`
	FreeBox    int          `json:"freeBox"`
	Pieces     []PieceCount `json:"pieces"`
	Finished   bool         `json:"finished"`
	Draw       bool         `json:"draw"`
	Winner     *Color       `json:"winner,omitempty"`
	Turns      int          `json:"turns"`
}

// Snapshot copies the current state for rendering.
func (g *Game) Snapshot() Snapshot {
	b := g.board
	s := Snapshot{
		Width:      b.width,
		Height:     b.height,
		Cells:      make([][]Cell, b.height),
		Player:     g.player,
		Symbol:     g.symbol,
		Phase:      g.phase,
		Candidates: g.Candidates(),
		FreeBox:    b.free,
		Finished:   g.Finished(),
		Draw:       g.Draw(),
		Turns:      g.turns,
	}
	if c, ok := g.Winner(); ok {
		s.Winner = &c
	}
	for y := range s.Cells {
		row := make([]Cell, b.width)
		for x := range row {
			switch t := b.cells[y][x].(type) {
			case Totem:
				row[x] = Cell{Kind: "totem", Symbol: t.Symbol.String()}
			case Piece:
				row[x] = Cell{Kind: "piece", Symbol: t.Symbol.String(), Color: t.Color.String()}
			}
		}
		s.Cells[y] = row
	}
	for _, p := range s.Candidates {
		s.Cells[p.Y][p.X].Candidate = true
	}
	if p, ok := g.Selected(); ok {
		s.Cells[p.Y][p.X].Selected = true
	}
	for _, c := range Colors {
		for _, sym := range Symbols {
			s.Pieces = append(s.Pieces, PieceCount{
				Color:     c,
				Symbol:    sym,
				Placed:    b.Pieces(c, sym),
				Remaining: g.Remaining(c, sym),
			})
		}
	}
	return s
}

func (s Symbol) MarshalText() ([]byte, error)  { return []byte(s.String()), nil }
func (c Color) MarshalText() ([]byte, error)   { return []byte(c.String()), nil }
func (p Phase) MarshalText() ([]byte, error)   { return []byte(p.String()), nil }
func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (s *Symbol) UnmarshalText(b []byte) error {
	return parseText(b, s, []Symbol{X, O})
}

func (c *Color) UnmarshalText(b []byte) error {
	return parseText(b, c, Colors[:])
}

func (p *Phase) UnmarshalText(b []byte) error {
	return parseText(b, p, []Phase{AwaitingTotem, AwaitingDestination, AwaitingPiece, Finished})
}

func (o *Outcome) UnmarshalText(b []byte) error {
	return parseText(b, o, []Outcome{Offered, Rejected, Pivoted, Cancelled, Committed})
}

// parseText sets dst to the value in all whose String matches b.
func parseText[T fmt.Stringer](b []byte, dst *T, all []T) error {
	for _, v := range all {
		if v.String() == string(b) {
			*dst = v
			return nil
		}
	}
	return fmt.Errorf("unknown %T %q", *dst, b)
}
