package roomdto

// SeatDetail describes who holds a seat.
type SeatDetail struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId,omitempty"`
	IsBot        bool   `json:"isBot"`
}

type Seats struct {
	White string `json:"white,omitempty"`
	Black string `json:"black,omitempty"`
}

type SeatDetails struct {
	White *SeatDetail `json:"white,omitempty"`
	Black *SeatDetail `json:"black,omitempty"`
}

type MoveRecord struct {
	Color     string `json:"color"`
	From      string `json:"from"`
	To        string `json:"to"`
	Piece     string `json:"piece"`
	SAN       string `json:"san"`
	Captured  string `json:"captured,omitempty"`
	Promotion string `json:"promotion,omitempty"`
}

type MaterialScore struct {
	White int `json:"white"`
	Black int `json:"black"`
}

// CapturedPieces lists piece kinds taken by each side.
type CapturedPieces struct {
	White []string `json:"white"`
	Black []string `json:"black"`
}

// Snapshot is the client-visible state of one room.
type Snapshot struct {
	RoomID                 string         `json:"roomId"`
	Version                uint64         `json:"version"`
	Position               string         `json:"position"`
	MoveLog                string         `json:"moveLog"`
	SideToMove             string         `json:"sideToMove"`
	IsGameOver             bool           `json:"isGameOver"`
	IsCheckmate            bool           `json:"isCheckmate"`
	IsCheck                bool           `json:"isCheck"`
	IsDraw                 bool           `json:"isDraw"`
	IsStalemate            bool           `json:"isStalemate"`
	IsThreefoldRepetition  bool           `json:"isThreefoldRepetition"`
	IsInsufficientMaterial bool           `json:"isInsufficientMaterial"`
	Result                 string         `json:"result,omitempty"`
	Termination            string         `json:"termination,omitempty"`
	LegalMoves             []string       `json:"legalMoves"`
	MoveHistory            []MoveRecord   `json:"moveHistory"`
	Material               MaterialScore  `json:"material"`
	Captured               CapturedPieces `json:"captured"`
	Seats                  Seats          `json:"seats"`
	SeatDetails            SeatDetails    `json:"seatDetails"`
	IsBotGame              bool           `json:"isBotGame"`
	BotDifficulty          string         `json:"botDifficulty,omitempty"`
}
