// Package rules adapts github.com/corentings/chess/v2 to the move/flag surface
// the room layer consumes.
package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// Color is the side to move, "w" or "b".
type Color string

const (
	White Color = "w"
	Black Color = "b"
)

// Opponent returns the other side.
func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

var (
	ErrIllegalMove = errors.New("illegal move")
	ErrMalformed   = errors.New("malformed move")
)

// MoveSpec is a client move request: squares in algebraic form, optional promotion piece.
type MoveSpec struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// UCI renders the spec as a lowercase long-algebraic string.
func (m MoveSpec) UCI() string {
	return strings.ToLower(strings.TrimSpace(m.From) + strings.TrimSpace(m.To) + strings.TrimSpace(m.Promotion))
}

// MoveRecord is one applied move in history order.
type MoveRecord struct {
	Color     Color  `json:"color"`
	From      string `json:"from"`
	To        string `json:"to"`
	Piece     string `json:"piece"`
	SAN       string `json:"san"`
	Captured  string `json:"captured,omitempty"`
	Promotion string `json:"promotion,omitempty"`
}

// Game owns one engine game plus the bookkeeping the engine leaves to callers
// (SAN log, repetition counts, check flag of the last move).
type Game struct {
	g         *nchess.Game
	history   []MoveRecord
	positions map[string]int
	inCheck   bool
}

// NewGame returns a game at the standard starting position.
func NewGame() *Game {
	g := &Game{g: nchess.NewGame(), positions: make(map[string]int)}
	g.positions[repetitionKey(g.g.FEN())]++
	return g
}

func (g *Game) Turn() Color {
	if g.g.Position().Turn() == nchess.White {
		return White
	}
	return Black
}

// Apply validates spec against the current legal moves and plays it.
// A pawn reaching the last rank without a promotion piece becomes a queen.
// On error the game is unchanged.
func (g *Game) Apply(spec MoveSpec) (MoveRecord, error) {
	from := strings.ToLower(strings.TrimSpace(spec.From))
	to := strings.ToLower(strings.TrimSpace(spec.To))
	promo := strings.ToLower(strings.TrimSpace(spec.Promotion))
	if !validSquare(from) || !validSquare(to) {
		return MoveRecord{}, ErrMalformed
	}
	if len(promo) > 1 || (promo != "" && !strings.Contains("qrbn", promo)) {
		return MoveRecord{}, ErrMalformed
	}
	if g.IsGameOver() {
		return MoveRecord{}, ErrIllegalMove
	}

	pos := g.g.Position()
	legal := legalMoves(pos)
	uci := from + to + promo
	if promo == "" {
		if _, ok := legal[uci]; !ok {
			if _, ok := legal[uci+"q"]; ok {
				uci += "q"
				promo = "q"
			}
		}
	}
	tags, ok := legal[uci]
	if !ok {
		return MoveRecord{}, ErrIllegalMove
	}

	mv, err := nchess.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return MoveRecord{}, ErrIllegalMove
	}
	san := nchess.AlgebraicNotation{}.Encode(pos, mv)
	board := parsePlacement(g.g.FEN())
	mover := board[from]
	captured := board[to]
	if tags.enPassant {
		captured = placed{kind: "p", color: mover.color.Opponent()}
	}

	if err := g.g.Move(mv, nil); err != nil {
		return MoveRecord{}, ErrIllegalMove
	}

	rec := MoveRecord{
		Color:     mover.color,
		From:      from,
		To:        to,
		Piece:     mover.kind,
		SAN:       san,
		Promotion: promo,
	}
	if captured.kind != "" {
		rec.Captured = captured.kind
	}
	g.history = append(g.history, rec)
	g.positions[repetitionKey(g.g.FEN())]++
	g.inCheck = tags.check || g.g.Method() == nchess.Checkmate
	return rec, nil
}

func (g *Game) IsCheck() bool { return g.inCheck }

func (g *Game) IsCheckmate() bool {
	return g.g.Outcome() != nchess.NoOutcome && g.g.Method() == nchess.Checkmate
}

func (g *Game) IsStalemate() bool {
	return g.g.Outcome() == nchess.Draw && g.g.Method() == nchess.Stalemate
}

func (g *Game) IsInsufficientMaterial() bool {
	if g.g.Outcome() == nchess.Draw && g.g.Method() == nchess.InsufficientMaterial {
		return true
	}
	return insufficientMaterial(parsePlacement(g.g.FEN()))
}

// IsThreefoldRepetition reports whether the current position occurred at least three times.
func (g *Game) IsThreefoldRepetition() bool {
	return g.positions[repetitionKey(g.g.FEN())] >= 3
}

// IsFiftyMoveRule reports whether 100 half-moves passed without a capture or pawn move.
func (g *Game) IsFiftyMoveRule() bool {
	return halfmoveClock(g.g.FEN()) >= 100
}

// IsDraw covers automatic draws and claimable ones; claimable draws end the game here.
func (g *Game) IsDraw() bool {
	if g.g.Outcome() == nchess.Draw {
		return true
	}
	return g.IsInsufficientMaterial() || g.IsThreefoldRepetition() || g.IsFiftyMoveRule()
}

func (g *Game) IsGameOver() bool {
	return g.IsCheckmate() || g.IsDraw()
}

func (g *Game) FEN() string { return g.g.FEN() }

// LegalMoves lists the legal moves in SAN, empty once the game is over.
func (g *Game) LegalMoves() []string {
	if g.IsGameOver() {
		return []string{}
	}
	pos := g.g.Position()
	out := make([]string, 0, 40)
	for _, mv := range pos.ValidMoves() {
		decoded, err := nchess.UCINotation{}.Decode(pos, mv.String())
		if err != nil {
			continue
		}
		out = append(out, nchess.AlgebraicNotation{}.Encode(pos, decoded))
	}
	return out
}

// LegalSpecs lists the legal moves as move requests, empty once the game is over.
func (g *Game) LegalSpecs() []MoveSpec {
	if g.IsGameOver() {
		return []MoveSpec{}
	}
	pos := g.g.Position()
	out := make([]MoveSpec, 0, 40)
	for _, mv := range pos.ValidMoves() {
		s := mv.String()
		if len(s) < 4 {
			continue
		}
		spec := MoveSpec{From: s[0:2], To: s[2:4]}
		if len(s) > 4 {
			spec.Promotion = s[4:5]
		}
		out = append(out, spec)
	}
	return out
}

// History returns a copy of the applied moves.
func (g *Game) History() []MoveRecord {
	out := make([]MoveRecord, len(g.history))
	copy(out, g.history)
	return out
}

func (g *Game) MoveCount() int { return len(g.history) }

// Result returns the PGN result token.
func (g *Game) Result() string {
	switch {
	case g.IsCheckmate():
		if g.Turn() == White {
			return "0-1"
		}
		return "1-0"
	case g.IsDraw():
		return "1/2-1/2"
	default:
		return "*"
	}
}

// Termination names how the game ended, empty while it is running.
func (g *Game) Termination() string {
	switch {
	case g.IsCheckmate():
		return "checkmate"
	case g.IsStalemate():
		return "stalemate"
	case g.IsInsufficientMaterial():
		return "insufficient material"
	case g.IsThreefoldRepetition():
		return "threefold repetition"
	case g.IsFiftyMoveRule():
		return "fifty-move rule"
	case g.IsDraw():
		return "draw"
	default:
		return ""
	}
}

// PGN renders the numbered SAN move text, with the result token once the game is over.
func (g *Game) PGN() string {
	var b strings.Builder
	for i := 0; i < len(g.history); i += 2 {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(fmt.Sprintf("%d. %s", i/2+1, g.history[i].SAN))
		if i+1 < len(g.history) {
			b.WriteString(" ")
			b.WriteString(g.history[i+1].SAN)
		}
	}
	if g.IsGameOver() {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(g.Result())
	}
	return b.String()
}

// Clone returns an independent copy.
func (g *Game) Clone() *Game {
	c := &Game{
		g:         g.g.Clone(),
		history:   g.History(),
		positions: make(map[string]int, len(g.positions)),
		inCheck:   g.inCheck,
	}
	for k, v := range g.positions {
		c.positions[k] = v
	}
	return c
}

// Pieces returns the occupied squares.
func (g *Game) Pieces() []Piece {
	board := parsePlacement(g.g.FEN())
	out := make([]Piece, 0, len(board))
	for sq, p := range board {
		out = append(out, Piece{Square: sq, File: int(sq[0] - 'a'), Rank: int(sq[1] - '1'), Kind: p.kind, Color: p.color})
	}
	return out
}

// Piece is a piece on a square; File and Rank are 0-based from a1.
type Piece struct {
	Square string
	File   int
	Rank   int
	Kind   string
	Color  Color
}

type moveTags struct {
	check     bool
	enPassant bool
}

func legalMoves(pos *nchess.Position) map[string]moveTags {
	out := make(map[string]moveTags)
	for _, mv := range pos.ValidMoves() {
		out[mv.String()] = moveTags{
			check:     mv.HasTag(nchess.Check),
			enPassant: mv.HasTag(nchess.EnPassant),
		}
	}
	return out
}

func validSquare(s string) bool {
	return len(s) == 2 && s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
}
