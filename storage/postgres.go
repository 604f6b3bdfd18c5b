package storage

import (
	"context"
	"errors"
	"fmt"
	"haters/domain"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresRepo(ctx context.Context, connString string) (*PostgresRepo, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresRepo{pool: pool}, nil
}

func (pgr *PostgresRepo) Close() {
	pgr.pool.Close()
}

func wrapQueryError(err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return domain.ErrUserNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", domain.UnexpectedDatabaseError, err)
	}
}

func (pgr *PostgresRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	user := domain.User{Username: username}

	row := pgr.pool.QueryRow(ctx,
		"SELECT id, password_hash, total_points, total_wins, games FROM users WHERE username = $1", username)

	if err := row.Scan(&user.Id, &user.PasswordHash, &user.TotalPoints, &user.TotalWins, &user.Games); err != nil {
		return domain.User{}, wrapQueryError(err)
	}

	return user, nil
}

func (pgr *PostgresRepo) GetUserById(ctx context.Context, id string) (domain.User, error) {
	user := domain.User{Id: id}

	row := pgr.pool.QueryRow(ctx,
		"SELECT username, password_hash, total_points, total_wins, games FROM users WHERE id = $1", id)

	if err := row.Scan(&user.Username, &user.PasswordHash, &user.TotalPoints, &user.TotalWins, &user.Games); err != nil {
		var pgErr *pgconn.PgError
		// a malformed uuid can never name a user
		if errors.As(err, &pgErr) && pgErr.Code == "22P02" {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, wrapQueryError(err)
	}

	return user, nil
}

func (pgr *PostgresRepo) CreateUser(ctx context.Context, username string, passwordHash string) (string, error) {
	row := pgr.pool.QueryRow(ctx,
		"INSERT INTO users(username, password_hash) VALUES($1, $2) RETURNING id", username, passwordHash)

	var id string
	err := row.Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return "", domain.ErrDuplicateUsername
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}

		return "", fmt.Errorf("%w: %w", domain.UnexpectedDatabaseError, err)
	}

	return id, nil
}

// SaveRoom appends the record of one finished game. A room that hosts several
// games gets one row per game. record must be a JSON document.
func (pgr *PostgresRepo) SaveRoom(ctx context.Context, roomID string, startedAt time.Time, record []byte) error {
	_, err := pgr.pool.Exec(ctx,
		"INSERT INTO rooms(room_id, started_at, record) VALUES($1, $2, $3::jsonb)", roomID, startedAt, string(record))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrRoomRecordExists
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.UnexpectedDatabaseError, err)
	}
	return nil
}

// RecordResult adds one finished game to a registered user's totals.
func (pgr *PostgresRepo) RecordResult(ctx context.Context, userID string, points int, won bool, roomID string) error {
	wins := 0
	if won {
		wins = 1
	}

	tag, err := pgr.pool.Exec(ctx, `
		UPDATE users
		SET total_points = total_points + $2,
		    total_wins = total_wins + $3,
		    games = array_append(games, $4)
		WHERE id = $1`, userID, points, wins, roomID)
	if err != nil {
		return wrapQueryError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
