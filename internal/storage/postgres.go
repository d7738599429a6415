package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	config.MaxConns = 20
	config.MaxConnIdleTime = 30 * time.Minute
	config.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() {
	db.pool.Close()
}

func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

func (db *PostgresDB) RunMigrations(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS match_records (
			id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_a_id    TEXT NOT NULL,
			user_a_email TEXT NOT NULL,
			user_b_id    TEXT NOT NULL,
			user_b_email TEXT NOT NULL,
			room_id      TEXT NOT NULL,
			topics       TEXT[] NOT NULL DEFAULT '{}',
			difficulties TEXT[] NOT NULL DEFAULT '{}',
			outcome      TEXT NOT NULL,
			matched_at   TIMESTAMPTZ NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_match_records_user_a ON match_records (user_a_id, matched_at DESC);
		CREATE INDEX IF NOT EXISTS idx_match_records_user_b ON match_records (user_b_id, matched_at DESC);`

	_, err := db.pool.Exec(ctx, schema)
	return err
}

func (db *PostgresDB) CreateMatchRecord(ctx context.Context, record *MatchRecord) error {
	query := `
		INSERT INTO match_records (user_a_id, user_a_email, user_b_id, user_b_email,
		                           room_id, topics, difficulties, outcome, matched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	return db.pool.QueryRow(ctx, query,
		record.UserAID, record.UserAEmail, record.UserBID, record.UserBEmail,
		record.RoomID, record.Topics, record.Difficulties, record.Outcome, record.MatchedAt).
		Scan(&record.ID, &record.CreatedAt)
}

func (db *PostgresDB) GetMatchHistory(ctx context.Context, userID string, limit int) ([]MatchRecord, error) {
	query := `
		SELECT id, user_a_id, user_a_email, user_b_id, user_b_email,
		       room_id, topics, difficulties, outcome, matched_at, created_at
		FROM match_records
		WHERE user_a_id = $1 OR user_b_id = $1
		ORDER BY matched_at DESC
		LIMIT $2`

	rows, err := db.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []MatchRecord{}
	for rows.Next() {
		var r MatchRecord
		if err := rows.Scan(
			&r.ID, &r.UserAID, &r.UserAEmail, &r.UserBID, &r.UserBEmail,
			&r.RoomID, &r.Topics, &r.Difficulties, &r.Outcome, &r.MatchedAt, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	return records, rows.Err()
}
