package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chess-server/internal/chess"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to url, applies pending migrations and returns the store.
func NewPostgres(ctx context.Context, url string) (Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	err = migrate(ctx, goose.DialectPostgres, db, "migrations/postgres")
	db.Close()
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &postgresStore{pool: pool}, nil
}

func pgError(err error, what string) error {
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation:
		return fmt.Errorf("%s: %w", what, ErrAlreadyExists)
	case errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation:
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (s *postgresStore) CreateUser(ctx context.Context, u User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (username, password_hash, email, created_at) VALUES ($1, $2, $3, $4)`,
		u.Username, u.PasswordHash, u.Email, u.CreatedAt)
	if err != nil {
		return pgError(err, fmt.Sprintf("user %q", u.Username))
	}
	return nil
}

func (s *postgresStore) GetUser(ctx context.Context, username string) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT username, password_hash, email, created_at FROM users WHERE username = $1`,
		username).Scan(&u.Username, &u.PasswordHash, &u.Email, &u.CreatedAt)
	if err != nil {
		return User{}, pgError(err, fmt.Sprintf("user %q", username))
	}
	return u, nil
}

func (s *postgresStore) CreateAuth(ctx context.Context, a Auth) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO auth_tokens (token, username, created_at) VALUES ($1, $2, $3)`,
		a.Token, a.Username, a.CreatedAt)
	if err != nil {
		return pgError(err, "auth token")
	}
	return nil
}

func (s *postgresStore) GetAuth(ctx context.Context, token string) (Auth, error) {
	var a Auth
	err := s.pool.QueryRow(ctx,
		`SELECT token, username, created_at FROM auth_tokens WHERE token = $1`,
		token).Scan(&a.Token, &a.Username, &a.CreatedAt)
	if err != nil {
		return Auth{}, pgError(err, "auth token")
	}
	return a, nil
}

func (s *postgresStore) DeleteAuth(ctx context.Context, token string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM auth_tokens WHERE token = $1`, token)
	if err != nil {
		return pgError(err, "auth token")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("auth token: %w", ErrNotFound)
	}
	return nil
}

func (s *postgresStore) CreateGame(ctx context.Context, g GameRecord) error {
	g = stamp(g)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO games (id, name, white_username, black_username, status, game_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		g.ID, g.Name, g.WhiteUsername, g.BlackUsername, string(g.Game.Status), g.Game, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return pgError(err, "game "+g.ID)
	}
	return nil
}

const pgGameColumns = `id, name, white_username, black_username, game_data, created_at, updated_at`

func scanGame(row pgx.Row) (GameRecord, error) {
	var g GameRecord
	var state chess.Game
	if err := row.Scan(&g.ID, &g.Name, &g.WhiteUsername, &g.BlackUsername, &state, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return GameRecord{}, err
	}
	g.Game = state
	g.CreatedAt = g.CreatedAt.UTC()
	g.UpdatedAt = g.UpdatedAt.UTC()
	return g, nil
}

func (s *postgresStore) GetGame(ctx context.Context, id string) (GameRecord, error) {
	g, err := scanGame(s.pool.QueryRow(ctx, `SELECT `+pgGameColumns+` FROM games WHERE id = $1`, id))
	if err != nil {
		return GameRecord{}, pgError(err, "game "+id)
	}
	return g, nil
}

func (s *postgresStore) ListGames(ctx context.Context) ([]GameRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+pgGameColumns+` FROM games ORDER BY created_at, id`)
	if err != nil {
		return nil, pgError(err, "list games")
	}
	games, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (GameRecord, error) {
		return scanGame(row)
	})
	if err != nil {
		return nil, pgError(err, "list games")
	}
	return games, nil
}

func (s *postgresStore) UpdateGame(ctx context.Context, g GameRecord) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE games
		SET name = $2, white_username = $3, black_username = $4, status = $5, game_data = $6, updated_at = $7
		WHERE id = $1`,
		g.ID, g.Name, g.WhiteUsername, g.BlackUsername, string(g.Game.Status), g.Game, time.Now().UTC())
	if err != nil {
		return pgError(err, "game "+g.ID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("game %s: %w", g.ID, ErrNotFound)
	}
	return nil
}

func (s *postgresStore) DeleteFinishedGames(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM games WHERE status <> $1 AND updated_at < $2`,
		string(chess.StatusInProgress), before)
	if err != nil {
		return 0, pgError(err, "delete finished games")
	}
	return tag.RowsAffected(), nil
}

func (s *postgresStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE auth_tokens, games, users`); err != nil {
		return pgError(err, "clear")
	}
	return nil
}

func (s *postgresStore) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	stats := map[string]string{"driver": "postgres"}
	if err := s.pool.Ping(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}
	ps := s.pool.Stat()
	stats["status"] = "up"
	stats["message"] = "It's healthy"
	stats["total_connections"] = fmt.Sprint(ps.TotalConns())
	stats["idle_connections"] = fmt.Sprint(ps.IdleConns())
	stats["acquired_connections"] = fmt.Sprint(ps.AcquiredConns())
	return stats
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}
