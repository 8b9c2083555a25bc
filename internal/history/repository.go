// Package history stores finished games. Postgres in production, SQLite locally.
package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Record is one finished game.
type Record struct {
	ID            string    `db:"id" json:"id"`
	RoomID        string    `db:"room_id" json:"roomId"`
	WhiteID       string    `db:"white_id" json:"whiteId"`
	WhiteUser     string    `db:"white_user" json:"whiteUser"`
	BlackID       string    `db:"black_id" json:"blackId"`
	BlackUser     string    `db:"black_user" json:"blackUser"`
	IsBotGame     bool      `db:"is_bot_game" json:"isBotGame"`
	BotDifficulty string    `db:"bot_difficulty" json:"botDifficulty,omitempty"`
	Result        string    `db:"result" json:"result"`
	Termination   string    `db:"termination" json:"termination"`
	PGN           string    `db:"pgn" json:"pgn"`
	FEN           string    `db:"fen" json:"fen"`
	MoveCount     int       `db:"move_count" json:"moveCount"`
	StartedAt     time.Time `db:"started_at" json:"startedAt"`
	EndedAt       time.Time `db:"ended_at" json:"endedAt"`
}

type Repository struct {
	db *sqlx.DB
}

// Open accepts postgres://, postgresql:// and sqlite://<path> URLs, pings and migrates.
func Open(ctx context.Context, databaseURL string) (*Repository, error) {
	driver, dsn, err := splitURL(databaseURL)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(16)
		db.SetMaxIdleConns(8)
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	r := &Repository{db: db}
	if err := r.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func splitURL(raw string) (driver, dsn string, err error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return "", "", fmt.Errorf("DATABASE_URL is required")
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return "postgres", raw, nil
	case strings.HasPrefix(raw, "sqlite://"):
		path := strings.TrimPrefix(raw, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("sqlite url needs a path")
		}
		if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", "", fmt.Errorf("create db dir: %w", err)
			}
		}
		return "sqlite", path, nil
	default:
		return "", "", fmt.Errorf("unsupported database url scheme: %s", raw)
	}
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

const schema = `CREATE TABLE IF NOT EXISTS finished_games (
	id TEXT PRIMARY KEY,
	room_id TEXT NOT NULL,
	white_id TEXT NOT NULL DEFAULT '',
	white_user TEXT NOT NULL DEFAULT '',
	black_id TEXT NOT NULL DEFAULT '',
	black_user TEXT NOT NULL DEFAULT '',
	is_bot_game BOOLEAN NOT NULL DEFAULT FALSE,
	bot_difficulty TEXT NOT NULL DEFAULT '',
	result TEXT NOT NULL,
	termination TEXT NOT NULL DEFAULT '',
	pgn TEXT NOT NULL DEFAULT '',
	fen TEXT NOT NULL DEFAULT '',
	move_count INTEGER NOT NULL DEFAULT 0,
	started_at TIMESTAMP NOT NULL,
	ended_at TIMESTAMP NOT NULL
)`

// Migrate creates the table when missing.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate finished_games: %w", err)
	}
	return nil
}

// SaveResult upserts rec by id.
func (r *Repository) SaveResult(ctx context.Context, rec *Record) error {
	if r == nil || r.db == nil || rec == nil {
		return nil
	}
	q := `INSERT INTO finished_games (
		id, room_id, white_id, white_user, black_id, black_user,
		is_bot_game, bot_difficulty, result, termination, pgn, fen,
		move_count, started_at, ended_at
	) VALUES (
		:id, :room_id, :white_id, :white_user, :black_id, :black_user,
		:is_bot_game, :bot_difficulty, :result, :termination, :pgn, :fen,
		:move_count, :started_at, :ended_at
	) ON CONFLICT (id) DO UPDATE SET
		room_id=EXCLUDED.room_id,
		white_id=EXCLUDED.white_id,
		white_user=EXCLUDED.white_user,
		black_id=EXCLUDED.black_id,
		black_user=EXCLUDED.black_user,
		is_bot_game=EXCLUDED.is_bot_game,
		bot_difficulty=EXCLUDED.bot_difficulty,
		result=EXCLUDED.result,
		termination=EXCLUDED.termination,
		pgn=EXCLUDED.pgn,
		fen=EXCLUDED.fen,
		move_count=EXCLUDED.move_count,
		started_at=EXCLUDED.started_at,
		ended_at=EXCLUDED.ended_at`
	row := *rec
	row.StartedAt = row.StartedAt.UTC()
	row.EndedAt = row.EndedAt.UTC()
	if _, err := r.db.NamedExecContext(ctx, q, &row); err != nil {
		return fmt.Errorf("save result %s: %w", rec.ID, err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	q := r.db.Rebind(`SELECT * FROM finished_games ORDER BY ended_at DESC, id DESC LIMIT ?`)
	out := make([]Record, 0, limit)
	if err := r.db.SelectContext(ctx, &out, q, limit); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns nil, nil when id is unknown.
func (r *Repository) Get(ctx context.Context, id string) (*Record, error) {
	q := r.db.Rebind(`SELECT * FROM finished_games WHERE id = ?`)
	var rows []Record
	if err := r.db.SelectContext(ctx, &rows, q, id); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
