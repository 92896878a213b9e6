package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/strayline/llm-gateway/internal/shared/models"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

type sqliteStore struct {
	db *sql.DB
}

func newSQLite(dsn string) (*sqliteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if strings.Contains(dsn, ":memory:") {
		// Each sqlite connection to :memory: is its own database, so the
		// pool must stay at a single connection.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	log.WithField("driver", "sqlite").Info("database ready")
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func (s *sqliteStore) GetAPIKeyByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	query := `
		SELECT key_hash, key_prefix, team_id, team_name, rate_limit_per_minute,
		       is_active, expires_at, created_at
		FROM api_keys
		WHERE key_hash = ?
	`

	var key models.APIKey
	err := s.db.QueryRowContext(ctx, query, keyHash).Scan(
		&key.KeyHash,
		&key.KeyPrefix,
		&key.TeamID,
		&key.TeamName,
		&key.RateLimitPerMinute,
		&key.IsActive,
		&key.ExpiresAt,
		&key.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &key, nil
}

func (s *sqliteStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	query := `
		INSERT INTO api_keys (
			key_hash, key_prefix, team_id, team_name,
			rate_limit_per_minute, is_active, expires_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		key.KeyHash,
		key.KeyPrefix,
		key.TeamID,
		key.TeamName,
		key.RateLimitPerMinute,
		key.IsActive,
		key.ExpiresAt,
		key.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *sqliteStore) ListAPIKeys(ctx context.Context) ([]models.APIKey, error) {
	query := `
		SELECT key_hash, key_prefix, team_id, team_name, rate_limit_per_minute,
		       is_active, expires_at, created_at
		FROM api_keys
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []models.APIKey
	for rows.Next() {
		var key models.APIKey
		if err := rows.Scan(
			&key.KeyHash,
			&key.KeyPrefix,
			&key.TeamID,
			&key.TeamName,
			&key.RateLimitPerMinute,
			&key.IsActive,
			&key.ExpiresAt,
			&key.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *sqliteStore) AddUsage(ctx context.Context, teamID, date string, delta models.UsageDelta, expiresAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin usage tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO usage_daily (team_id, usage_date, requests, input_tokens, output_tokens, cost_usd, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (team_id, usage_date) DO UPDATE SET
			requests      = usage_daily.requests + excluded.requests,
			input_tokens  = usage_daily.input_tokens + excluded.input_tokens,
			output_tokens = usage_daily.output_tokens + excluded.output_tokens,
			cost_usd      = usage_daily.cost_usd + excluded.cost_usd,
			updated_at    = excluded.updated_at,
			expires_at    = excluded.expires_at
	`, teamID, date, delta.Requests, delta.InputTokens, delta.OutputTokens, delta.CostUSD, time.Now().UTC(), expiresAt)
	if err != nil {
		return fmt.Errorf("upsert usage: %w", err)
	}

	if delta.Model != "" {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO usage_daily_models (team_id, usage_date, model, requests)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (team_id, usage_date, model) DO UPDATE SET
				requests = usage_daily_models.requests + excluded.requests
		`, teamID, date, delta.Model, delta.Requests)
		if err != nil {
			return fmt.Errorf("upsert model usage: %w", err)
		}
	}

	return tx.Commit()
}

func (s *sqliteStore) UsageBetween(ctx context.Context, teamID, fromDate, toDate string) ([]models.DailyUsage, []models.ModelUsage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT usage_date, requests, input_tokens, output_tokens, cost_usd
		FROM usage_daily
		WHERE team_id = ? AND usage_date >= ? AND usage_date <= ?
		ORDER BY usage_date ASC
	`, teamID, fromDate, toDate)
	if err != nil {
		return nil, nil, fmt.Errorf("query daily usage: %w", err)
	}
	defer rows.Close()

	var daily []models.DailyUsage
	for rows.Next() {
		var d models.DailyUsage
		if err := rows.Scan(&d.Date, &d.Requests, &d.InputTokens, &d.OutputTokens, &d.CostUSD); err != nil {
			return nil, nil, fmt.Errorf("scan daily usage: %w", err)
		}
		daily = append(daily, d)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	modelRows, err := s.db.QueryContext(ctx, `
		SELECT model, SUM(requests) AS requests
		FROM usage_daily_models
		WHERE team_id = ? AND usage_date >= ? AND usage_date <= ?
		GROUP BY model
		ORDER BY requests DESC, model ASC
	`, teamID, fromDate, toDate)
	if err != nil {
		return nil, nil, fmt.Errorf("query model usage: %w", err)
	}
	defer modelRows.Close()

	var byModel []models.ModelUsage
	for modelRows.Next() {
		var m models.ModelUsage
		if err := modelRows.Scan(&m.Model, &m.Count); err != nil {
			return nil, nil, fmt.Errorf("scan model usage: %w", err)
		}
		byModel = append(byModel, m)
	}
	return daily, byModel, modelRows.Err()
}

func (s *sqliteStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin purge tx: %w", err)
	}
	defer tx.Rollback()

	// Model rows carry no deadline of their own; they expire with their
	// parent daily row.
	_, err = tx.ExecContext(ctx, `
		DELETE FROM usage_daily_models
		WHERE (team_id, usage_date) IN (
			SELECT team_id, usage_date FROM usage_daily WHERE expires_at < ?
		)
	`, now)
	if err != nil {
		return 0, fmt.Errorf("purge model usage: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM usage_daily WHERE expires_at < ?`, now)
	if err != nil {
		return 0, fmt.Errorf("purge daily usage: %w", err)
	}
	purged, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return purged, nil
}
