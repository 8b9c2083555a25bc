package rules

import (
	"strconv"
	"strings"
)

type placed struct {
	kind  string
	color Color
}

// parsePlacement reads the piece placement field of a FEN into square -> piece.
func parsePlacement(fen string) map[string]placed {
	out := make(map[string]placed, 32)
	fields := strings.Fields(fen)
	if len(fields) == 0 {
		return out
	}
	rank := 7
	file := 0
	for _, r := range fields[0] {
		switch {
		case r == '/':
			rank--
			file = 0
		case r >= '1' && r <= '8':
			file += int(r - '0')
		default:
			if rank < 0 || file > 7 {
				continue
			}
			sq := string([]byte{byte('a' + file), byte('1' + rank)})
			c := White
			if r >= 'a' && r <= 'z' {
				c = Black
			}
			out[sq] = placed{kind: strings.ToLower(string(r)), color: c}
			file++
		}
	}
	return out
}

// repetitionKey drops the move clocks so identical positions compare equal.
func repetitionKey(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) > 4 {
		fields = fields[:4]
	}
	return strings.Join(fields, " ")
}

func halfmoveClock(fen string) int {
	fields := strings.Fields(fen)
	if len(fields) < 5 {
		return 0
	}
	n, err := strconv.Atoi(fields[4])
	if err != nil {
		return 0
	}
	return n
}

// insufficientMaterial: K vs K, K+minor vs K, and bishops all on one square color.
func insufficientMaterial(board map[string]placed) bool {
	var minors, knights int
	bishopColors := map[int]bool{}
	for sq, p := range board {
		switch p.kind {
		case "k":
		case "n":
			minors++
			knights++
		case "b":
			minors++
			bishopColors[(int(sq[0]-'a')+int(sq[1]-'1'))%2] = true
		default:
			return false
		}
	}
	if minors <= 1 {
		return true
	}
	return knights == 0 && len(bishopColors) == 1
}
