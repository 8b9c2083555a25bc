package bot

import "github.com/park285/chess-rooms/internal/rules"

var pieceValues = map[string]int{
	"p": 100,
	"n": 320,
	"b": 330,
	"r": 500,
	"q": 900,
	"k": 20000,
}

// Square tables from white's side, row 0 is rank 8. Black reads them mirrored.
var squareTables = map[string][8][8]int{
	"p": {
		{0, 0, 0, 0, 0, 0, 0, 0},
		{50, 50, 50, 50, 50, 50, 50, 50},
		{10, 10, 20, 30, 30, 20, 10, 10},
		{5, 5, 10, 25, 25, 10, 5, 5},
		{0, 0, 0, 20, 20, 0, 0, 0},
		{5, -5, -10, 0, 0, -10, -5, 5},
		{5, 10, 10, -20, -20, 10, 10, 5},
		{0, 0, 0, 0, 0, 0, 0, 0},
	},
	"n": {
		{-50, -40, -30, -30, -30, -30, -40, -50},
		{-40, -20, 0, 0, 0, 0, -20, -40},
		{-30, 0, 10, 15, 15, 10, 0, -30},
		{-30, 5, 15, 20, 20, 15, 5, -30},
		{-30, 0, 15, 20, 20, 15, 0, -30},
		{-30, 5, 10, 15, 15, 10, 5, -30},
		{-40, -20, 0, 5, 5, 0, -20, -40},
		{-50, -40, -30, -30, -30, -30, -40, -50},
	},
	"b": {
		{-20, -10, -10, -10, -10, -10, -10, -20},
		{-10, 0, 0, 0, 0, 0, 0, -10},
		{-10, 0, 5, 10, 10, 5, 0, -10},
		{-10, 5, 5, 10, 10, 5, 5, -10},
		{-10, 0, 10, 10, 10, 10, 0, -10},
		{-10, 10, 10, 10, 10, 10, 10, -10},
		{-10, 5, 0, 0, 0, 0, 5, -10},
		{-20, -10, -10, -10, -10, -10, -10, -20},
	},
}

const (
	checkBonus = 50
	mateBonus  = 100000
)

// evaluate scores the position in centipawns from color's point of view.
func evaluate(g *rules.Game, color rules.Color) int {
	score := 0
	for _, p := range g.Pieces() {
		v := pieceValues[p.Kind] + squareBonus(p)
		if p.Color == color {
			score += v
		} else {
			score -= v
		}
	}
	if g.IsCheckmate() {
		if g.Turn() == color {
			return score - mateBonus
		}
		return score + mateBonus
	}
	if g.IsCheck() {
		if g.Turn() == color {
			score -= checkBonus
		} else {
			score += checkBonus
		}
	}
	return score
}

func squareBonus(p rules.Piece) int {
	table, ok := squareTables[p.Kind]
	if !ok {
		return 0
	}
	row := 7 - p.Rank
	if p.Color == rules.Black {
		row = p.Rank
	}
	return table[row][p.File]
}
