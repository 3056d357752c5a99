package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"chess-server/internal/chess"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

type sqliteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database file at path and applies
// pending migrations.
func NewSQLite(ctx context.Context, path string) (Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// Writers serialize anyway; one connection avoids SQLITE_BUSY between them.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if err := migrate(ctx, goose.DialectSQLite3, db, "migrations/sqlite"); err != nil {
		db.Close()
		return nil, err
	}
	return &sqliteStore{db: db}, nil
}

func sqliteError(err error, what string) error {
	var se sqlite3.Error
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintForeignKey:
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.As(err, &se) && se.Code == sqlite3.ErrConstraint:
		return fmt.Errorf("%s: %w", what, ErrAlreadyExists)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (s *sqliteStore) CreateUser(ctx context.Context, u User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, email, created_at) VALUES (?, ?, ?, ?)`,
		u.Username, u.PasswordHash, u.Email, u.CreatedAt)
	if err != nil {
		return sqliteError(err, fmt.Sprintf("user %q", u.Username))
	}
	return nil
}

func (s *sqliteStore) GetUser(ctx context.Context, username string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT username, password_hash, email, created_at FROM users WHERE username = ?`,
		username).Scan(&u.Username, &u.PasswordHash, &u.Email, &u.CreatedAt)
	if err != nil {
		return User{}, sqliteError(err, fmt.Sprintf("user %q", username))
	}
	return u, nil
}

func (s *sqliteStore) CreateAuth(ctx context.Context, a Auth) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO auth_tokens (token, username, created_at) VALUES (?, ?, ?)`,
		a.Token, a.Username, a.CreatedAt)
	if err != nil {
		return sqliteError(err, "auth token")
	}
	return nil
}

func (s *sqliteStore) GetAuth(ctx context.Context, token string) (Auth, error) {
	var a Auth
	err := s.db.QueryRowContext(ctx,
		`SELECT token, username, created_at FROM auth_tokens WHERE token = ?`,
		token).Scan(&a.Token, &a.Username, &a.CreatedAt)
	if err != nil {
		return Auth{}, sqliteError(err, "auth token")
	}
	return a, nil
}

func (s *sqliteStore) DeleteAuth(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM auth_tokens WHERE token = ?`, token)
	if err != nil {
		return sqliteError(err, "auth token")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("auth token: %w", ErrNotFound)
	}
	return nil
}

func (s *sqliteStore) CreateGame(ctx context.Context, g GameRecord) error {
	g = stamp(g)
	data, err := json.Marshal(g.Game)
	if err != nil {
		return fmt.Errorf("game %s: encode: %w", g.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO games (id, name, white_username, black_username, status, game_data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Name, g.WhiteUsername, g.BlackUsername, string(g.Game.Status), string(data), g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return sqliteError(err, "game "+g.ID)
	}
	return nil
}

const sqliteGameColumns = `id, name, white_username, black_username, game_data, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteGame(row rowScanner) (GameRecord, error) {
	var g GameRecord
	var data string
	if err := row.Scan(&g.ID, &g.Name, &g.WhiteUsername, &g.BlackUsername, &data, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return GameRecord{}, err
	}
	var state chess.Game
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return GameRecord{}, fmt.Errorf("decode game_data: %w", err)
	}
	g.Game = state
	g.CreatedAt = g.CreatedAt.UTC()
	g.UpdatedAt = g.UpdatedAt.UTC()
	return g, nil
}

func (s *sqliteStore) GetGame(ctx context.Context, id string) (GameRecord, error) {
	g, err := scanSQLiteGame(s.db.QueryRowContext(ctx, `SELECT `+sqliteGameColumns+` FROM games WHERE id = ?`, id))
	if err != nil {
		return GameRecord{}, sqliteError(err, "game "+id)
	}
	return g, nil
}

func (s *sqliteStore) ListGames(ctx context.Context) ([]GameRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteGameColumns+` FROM games ORDER BY created_at, id`)
	if err != nil {
		return nil, sqliteError(err, "list games")
	}
	defer rows.Close()

	games := []GameRecord{}
	for rows.Next() {
		g, err := scanSQLiteGame(rows)
		if err != nil {
			return nil, sqliteError(err, "list games")
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, sqliteError(err, "list games")
	}
	return games, nil
}

func (s *sqliteStore) UpdateGame(ctx context.Context, g GameRecord) error {
	data, err := json.Marshal(g.Game)
	if err != nil {
		return fmt.Errorf("game %s: encode: %w", g.ID, err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE games
		SET name = ?, white_username = ?, black_username = ?, status = ?, game_data = ?, updated_at = ?
		WHERE id = ?`,
		g.Name, g.WhiteUsername, g.BlackUsername, string(g.Game.Status), string(data), time.Now().UTC(), g.ID)
	if err != nil {
		return sqliteError(err, "game "+g.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("game %s: %w", g.ID, ErrNotFound)
	}
	return nil
}

func (s *sqliteStore) DeleteFinishedGames(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM games WHERE status <> ? AND updated_at < ?`,
		string(chess.StatusInProgress), before.UTC())
	if err != nil {
		return 0, sqliteError(err, "delete finished games")
	}
	return res.RowsAffected()
}

func (s *sqliteStore) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sqliteError(err, "clear")
	}
	defer tx.Rollback()

	for _, table := range []string{"auth_tokens", "games", "users"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return sqliteError(err, "clear "+table)
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	stats := map[string]string{"driver": "sqlite"}
	if err := s.db.PingContext(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}
	dbStats := s.db.Stats()
	stats["status"] = "up"
	stats["message"] = "It's healthy"
	stats["open_connections"] = fmt.Sprint(dbStats.OpenConnections)
	stats["in_use"] = fmt.Sprint(dbStats.InUse)
	stats["idle"] = fmt.Sprint(dbStats.Idle)
	return stats
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
