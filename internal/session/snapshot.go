package session

import (
	"github.com/park285/chess-rooms/internal/rules"
	"github.com/park285/chess-rooms/pkg/roomdto"
)

var materialValues = map[string]int{"p": 1, "n": 3, "b": 3, "r": 5, "q": 9}

func (s *session) snapshotLocked() *roomdto.Snapshot {
	g := s.game
	history := g.History()
	snap := &roomdto.Snapshot{
		RoomID:                 s.id,
		Version:                s.version,
		Position:               g.FEN(),
		MoveLog:                g.PGN(),
		SideToMove:             string(g.Turn()),
		IsGameOver:             g.IsGameOver(),
		IsCheckmate:            g.IsCheckmate(),
		IsCheck:                g.IsCheck(),
		IsDraw:                 g.IsDraw(),
		IsStalemate:            g.IsStalemate(),
		IsThreefoldRepetition:  g.IsThreefoldRepetition(),
		IsInsufficientMaterial: g.IsInsufficientMaterial(),
		LegalMoves:             g.LegalMoves(),
		MoveHistory:            make([]roomdto.MoveRecord, 0, len(history)),
		Captured:               roomdto.CapturedPieces{White: []string{}, Black: []string{}},
		IsBotGame:              s.mode == HumanVsBot,
	}
	if snap.IsGameOver {
		snap.Result = g.Result()
		snap.Termination = g.Termination()
	}
	if snap.IsBotGame {
		snap.BotDifficulty = string(s.difficulty)
	}
	for _, rec := range history {
		snap.MoveHistory = append(snap.MoveHistory, roomdto.MoveRecord{
			Color:     string(rec.Color),
			From:      rec.From,
			To:        rec.To,
			Piece:     rec.Piece,
			SAN:       rec.SAN,
			Captured:  rec.Captured,
			Promotion: rec.Promotion,
		})
		if rec.Captured == "" {
			continue
		}
		if rec.Color == rules.White {
			snap.Captured.White = append(snap.Captured.White, rec.Captured)
		} else {
			snap.Captured.Black = append(snap.Captured.Black, rec.Captured)
		}
	}
	for _, p := range g.Pieces() {
		if p.Color == rules.White {
			snap.Material.White += materialValues[p.Kind]
		} else {
			snap.Material.Black += materialValues[p.Kind]
		}
	}
	if o := s.seats[White]; o != nil {
		snap.Seats.White = o.ConnectionID
		snap.SeatDetails.White = &roomdto.SeatDetail{ConnectionID: o.ConnectionID, UserID: o.UserID, IsBot: o.IsBot}
	}
	if o := s.seats[Black]; o != nil {
		snap.Seats.Black = o.ConnectionID
		snap.SeatDetails.Black = &roomdto.SeatDetail{ConnectionID: o.ConnectionID, UserID: o.UserID, IsBot: o.IsBot}
	}
	return snap
}
