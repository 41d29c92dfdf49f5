package web

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"

	"github.com/google/uuid"

	"github.com/jaminalder/oxono/internal/app"
	"github.com/jaminalder/oxono/internal/domain"
)

type templates struct {
	base  *template.Template
	game  *template.Template
	board *template.Template
	index *template.Template
}

func loadTemplates() *templates {
	base := template.Must(template.New("base").Parse(`<!doctype html><html><head>
<meta charset="utf-8"/>
<title>Oxono</title>
<script src="https://unpkg.com/htmx.org@1.9.12"></script>
<script src="https://unpkg.com/htmx.org/dist/ext/sse.js"></script>
</head><body>{{template "content" .}}</body></html>`))
	index := template.Must(template.Must(base.Clone()).New("content").Parse(`<h1>Oxono</h1><form action="/game" method="post"><button>New game</button></form>
<p><a href="/matches">Finished matches</a></p>`))
	game := template.Must(template.Must(base.Clone()).New("content").Parse(`
<div hx-ext="sse" sse-connect="/game/{{.ID}}/events">
  <div id="board-slot" sse-swap="board">{{.BoardHTML}}</div>
</div>`))
	board := template.Must(template.New("board").Parse(boardTemplate))
	return &templates{base: base, game: game, board: board, index: index}
}

func renderTemplate(t *template.Template, name string, data any) []byte {
	var buf bytes.Buffer
	if name == "" {
		_ = t.Execute(&buf, data)
	} else {
		_ = t.ExecuteTemplate(&buf, name, data)
	}
	return buf.Bytes()
}

// singleLine folds a fragment onto one line so it fits a single SSE data field.
func singleLine(b []byte) []byte {
	return bytes.ReplaceAll(bytes.ReplaceAll(b, []byte("\r"), nil), []byte("\n"), []byte(" "))
}

const boardTemplate = `
<div id="board" data-phase="{{.Phase}}">
  <p class="status">{{.Status}}</p>
  {{if .Message}}<p class="message">{{.Message}}</p>{{end}}
  {{if .Error}}<div class="alert">{{.Error}}</div>{{end}}
  <table class="grid">
  {{range .Rows}}
    <tr>
    {{range .}}
      <td class="{{.Class}}">
        <form hx-post="/game/{{$.ID}}/click" hx-target="#board" hx-swap="outerHTML" method="post">
          <input type="hidden" name="x" value="{{.X}}">
          <input type="hidden" name="y" value="{{.Y}}">
          <button type="submit">{{.Label}}</button>
        </form>
      </td>
    {{end}}
    </tr>
  {{end}}
  </table>
  <p>Free cells: {{.FreeBox}}</p>
  <table class="stock">
    <tr><th></th><th>placed</th><th>left</th></tr>
    {{range .Pieces}}<tr><td>{{.Color}} {{.Symbol}}</td><td>{{.Placed}}</td><td>{{.Remaining}}</td></tr>{{end}}
  </table>
  <form hx-post="/game/{{.ID}}/undo" hx-target="#board" hx-swap="outerHTML" method="post"><button>Undo</button></form>
  <form hx-post="/game/{{.ID}}/redo" hx-target="#board" hx-swap="outerHTML" method="post"><button>Redo</button></form>
</div>
`

type cellView struct {
	X, Y  int
	Class string
	Label string
}

type boardData struct {
	ID      string
	Phase   string
	Status  string
	Message string
	Error   string
	Rows    [][]cellView
	FreeBox int
	Pieces  []domain.PieceCount
}

func newBoardData(gs app.GameState, errMsg string) boardData {
	snap := gs.Snapshot
	d := boardData{
		ID:      gs.ID,
		Phase:   snap.Phase.String(),
		Status:  statusText(snap),
		Message: resultText(gs.LastResult),
		Error:   errMsg,
		Rows:    make([][]cellView, len(snap.Cells)),
		FreeBox: snap.FreeBox,
		Pieces:  snap.Pieces,
	}
	for y, row := range snap.Cells {
		d.Rows[y] = make([]cellView, len(row))
		for x, c := range row {
			d.Rows[y][x] = newCellView(x, y, c)
		}
	}
	return d
}

func newCellView(x, y int, c domain.Cell) cellView {
	v := cellView{X: x, Y: y, Class: "empty"}
	switch c.Kind {
	case "totem":
		v.Class, v.Label = "totem", c.Symbol
	case "piece":
		v.Class, v.Label = "piece "+c.Color, c.Symbol
	}
	if c.Candidate {
		v.Class += " candidate"
	}
	if c.Selected {
		v.Class += " selected"
	}
	return v
}

func statusText(s domain.Snapshot) string {
	switch {
	case s.Draw:
		return "Draw"
	case s.Winner != nil:
		return fmt.Sprintf("%s wins", *s.Winner)
	}
	switch s.Phase {
	case domain.AwaitingDestination:
		return fmt.Sprintf("%s: move the totem", s.Player)
	case domain.AwaitingPiece:
		return fmt.Sprintf("%s: place a %s piece", s.Player, s.Symbol)
	}
	return fmt.Sprintf("%s: pick a totem", s.Player)
}

// Helper to set cookie
func ensurePlayerCookie(w http.ResponseWriter, r *http.Request) string {
	if pid := playerID(r); pid != "" {
		return pid
	}
	v := uuid.NewString()
	http.SetCookie(w, &http.Cookie{Name: "player_id", Value: v, Path: "/"})
	return v
}

func playerID(r *http.Request) string {
	if c, err := r.Cookie("player_id"); err == nil {
		return c.Value
	}
	return ""
}
