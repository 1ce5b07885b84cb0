package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/L0rd008/ViewTrendsSL-sub001/pkg/database"
)

// PostgresStore persists the ledger in Postgres: one row per credential,
// a single totals row, and an append-only usage_events table deduplicated
// by event ID so repeated saves stay idempotent.
type PostgresStore struct {
	db *database.DB
}

func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}

	rows, err := s.db.Pool.Query(ctx, `
		SELECT name, daily_quota, used_quota, last_reset, is_active, error_count, last_error
		FROM quota_credentials ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec CredentialRecord
		if err := rows.Scan(&rec.Name, &rec.DailyQuota, &rec.UsedQuota, &rec.LastReset,
			&rec.IsActive, &rec.ErrorCount, &rec.LastError); err != nil {
			return nil, fmt.Errorf("failed to scan credential row: %w", err)
		}
		snap.Credentials = append(snap.Credentials, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var reqJSON, quotaJSON, errJSON []byte
	err = s.db.Pool.QueryRow(ctx, `
		SELECT total_requests, total_quota_used, requests_by_endpoint, quota_by_endpoint, errors_by_credential, saved_at
		FROM quota_totals WHERE id = 1`).
		Scan(&snap.Totals.TotalRequests, &snap.Totals.TotalQuotaUsed, &reqJSON, &quotaJSON, &errJSON, &snap.SavedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			if len(snap.Credentials) == 0 {
				return nil, nil
			}
			return snap, nil
		}
		return nil, fmt.Errorf("failed to load totals: %w", err)
	}
	if err := json.Unmarshal(reqJSON, &snap.Totals.RequestsByEndpoint); err != nil {
		return nil, fmt.Errorf("failed to parse requests_by_endpoint: %w", err)
	}
	if err := json.Unmarshal(quotaJSON, &snap.Totals.QuotaByEndpoint); err != nil {
		return nil, fmt.Errorf("failed to parse quota_by_endpoint: %w", err)
	}
	if err := json.Unmarshal(errJSON, &snap.Totals.ErrorsByCredential); err != nil {
		return nil, fmt.Errorf("failed to parse errors_by_credential: %w", err)
	}

	evRows, err := s.db.Pool.Query(ctx, `
		SELECT id, credential, endpoint, units, ts, outcome FROM usage_events ORDER BY ts`)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage events: %w", err)
	}
	defer evRows.Close()

	for evRows.Next() {
		var ev UsageEvent
		if err := evRows.Scan(&ev.ID, &ev.Credential, &ev.Endpoint, &ev.Units, &ev.Timestamp, &ev.Outcome); err != nil {
			return nil, fmt.Errorf("failed to scan usage event: %w", err)
		}
		snap.Events = append(snap.Events, ev)
	}
	return snap, evRows.Err()
}

func (s *PostgresStore) Save(ctx context.Context, snap *Snapshot) error {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin ledger save: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, rec := range snap.Credentials {
		_, err := tx.Exec(ctx, `
			INSERT INTO quota_credentials (name, daily_quota, used_quota, last_reset, is_active, error_count, last_error)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (name) DO UPDATE SET
				daily_quota = EXCLUDED.daily_quota,
				used_quota = EXCLUDED.used_quota,
				last_reset = EXCLUDED.last_reset,
				is_active = EXCLUDED.is_active,
				error_count = EXCLUDED.error_count,
				last_error = EXCLUDED.last_error`,
			rec.Name, rec.DailyQuota, rec.UsedQuota, rec.LastReset, rec.IsActive, rec.ErrorCount, rec.LastError)
		if err != nil {
			return fmt.Errorf("failed to upsert credential %s: %w", rec.Name, err)
		}
	}

	reqJSON, err := json.Marshal(snap.Totals.RequestsByEndpoint)
	if err != nil {
		return err
	}
	quotaJSON, err := json.Marshal(snap.Totals.QuotaByEndpoint)
	if err != nil {
		return err
	}
	errJSON, err := json.Marshal(snap.Totals.ErrorsByCredential)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO quota_totals (id, total_requests, total_quota_used, requests_by_endpoint, quota_by_endpoint, errors_by_credential, saved_at)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			total_requests = EXCLUDED.total_requests,
			total_quota_used = EXCLUDED.total_quota_used,
			requests_by_endpoint = EXCLUDED.requests_by_endpoint,
			quota_by_endpoint = EXCLUDED.quota_by_endpoint,
			errors_by_credential = EXCLUDED.errors_by_credential,
			saved_at = EXCLUDED.saved_at`,
		snap.Totals.TotalRequests, snap.Totals.TotalQuotaUsed, reqJSON, quotaJSON, errJSON, snap.SavedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert totals: %w", err)
	}

	for _, ev := range snap.Events {
		_, err := tx.Exec(ctx, `
			INSERT INTO usage_events (id, credential, endpoint, units, ts, outcome)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING`,
			ev.ID, ev.Credential, ev.Endpoint, ev.Units, ev.Timestamp, ev.Outcome)
		if err != nil {
			return fmt.Errorf("failed to insert usage event: %w", err)
		}
	}

	cutoff := snap.SavedAt.Add(-eventRetention)
	if snap.SavedAt.IsZero() {
		cutoff = time.Now().UTC().Add(-eventRetention)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM usage_events WHERE ts < $1`, cutoff); err != nil {
		return fmt.Errorf("failed to prune usage events: %w", err)
	}

	return tx.Commit(ctx)
}

// Close is a no-op; the surrounding application owns the pool.
func (s *PostgresStore) Close() error { return nil }
