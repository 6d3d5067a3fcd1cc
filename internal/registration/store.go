// Package registration implements the TPA Registration Service (spec.md
// §4.7): register/heartbeat/restart over HTTP, backed by a Postgres store
// of TPARegistration entries and per-user running-app membership.
package registration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/augmentos-org/cloud-core/internal/apperrors"
)

// DeadTime is how long a registration may go without a heartbeat before
// restart's recovery sweep excludes it as stale (spec.md §4.7).
const DeadTime = 90 * time.Second

// Registration mirrors spec.md §3's TPARegistration record.
type Registration struct {
	RegistrationID string
	PackageName    string
	WebhookURL     string
	ServerURLs     []string
	APIKeyHash     string
	LastHeartbeat  time.Time
	CreatedAt      time.Time
}

// Store is the Postgres-backed persistence layer for registrations and
// running-app membership.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn, runs pending migrations, and returns a ready
// Store.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if err := runMigrations(dsn); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("registration: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("registration: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// HashAPIKey derives the stored hash for a plaintext API key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Upsert creates or idempotently replaces the registration for
// (packageName, webhookUrl) (spec.md §4.7: "Idempotent per (packageName,
// webhookUrl) pair"), returning the registrationId.
func (s *Store) Upsert(ctx context.Context, packageName, webhookURL string, serverURLs []string, apiKeyHash string) (string, error) {
	var existing string
	err := s.pool.QueryRow(ctx,
		`SELECT registration_id FROM tpa_registrations WHERE package_name = $1 AND webhook_url = $2`,
		packageName, webhookURL,
	).Scan(&existing)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		registrationID := uuid.NewString()
		_, err := s.pool.Exec(ctx,
			`INSERT INTO tpa_registrations (registration_id, package_name, webhook_url, server_urls, api_key_hash, last_heartbeat)
			 VALUES ($1, $2, $3, $4, $5, now())`,
			registrationID, packageName, webhookURL, serverURLs, apiKeyHash,
		)
		if err != nil {
			return "", fmt.Errorf("registration: insert: %w", err)
		}
		return registrationID, nil
	case err != nil:
		return "", fmt.Errorf("registration: lookup: %w", err)
	default:
		_, err := s.pool.Exec(ctx,
			`UPDATE tpa_registrations SET server_urls = $2, api_key_hash = $3, last_heartbeat = now() WHERE registration_id = $1`,
			existing, serverURLs, apiKeyHash,
		)
		if err != nil {
			return "", fmt.Errorf("registration: update: %w", err)
		}
		return existing, nil
	}
}

// Heartbeat refreshes last_heartbeat for registrationID.
func (s *Store) Heartbeat(ctx context.Context, registrationID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tpa_registrations SET last_heartbeat = now() WHERE registration_id = $1`,
		registrationID,
	)
	if err != nil {
		return fmt.Errorf("registration: heartbeat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrRegistrationNotFound
	}
	return nil
}

// Get returns the registration record for registrationID.
func (s *Store) Get(ctx context.Context, registrationID string) (Registration, error) {
	var r Registration
	err := s.pool.QueryRow(ctx,
		`SELECT registration_id, package_name, webhook_url, server_urls, api_key_hash, last_heartbeat, created_at
		 FROM tpa_registrations WHERE registration_id = $1`,
		registrationID,
	).Scan(&r.RegistrationID, &r.PackageName, &r.WebhookURL, &r.ServerURLs, &r.APIKeyHash, &r.LastHeartbeat, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Registration{}, apperrors.ErrRegistrationNotFound
	}
	if err != nil {
		return Registration{}, fmt.Errorf("registration: get: %w", err)
	}
	return r, nil
}

// IsLive reports whether a registration has heartbeated within DeadTime.
func (r Registration) IsLive(now time.Time) bool {
	return now.Sub(r.LastHeartbeat) < DeadTime
}

// AddRunningApp records that userID is running packageName, satisfying
// lifecycle.MembershipStore.
func (s *Store) AddRunningApp(ctx context.Context, userID, packageName string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO running_apps (user_id, package_name) VALUES ($1, $2)
		 ON CONFLICT (user_id, package_name) DO UPDATE SET started_at = now()`,
		userID, packageName,
	)
	if err != nil {
		return fmt.Errorf("registration: add running app: %w", err)
	}
	return nil
}

// RemoveRunningApp drops the (userID, packageName) membership row.
func (s *Store) RemoveRunningApp(ctx context.Context, userID, packageName string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM running_apps WHERE user_id = $1 AND package_name = $2`,
		userID, packageName,
	)
	if err != nil {
		return fmt.Errorf("registration: remove running app: %w", err)
	}
	return nil
}

// UsersRunning returns every userID with packageName in their running-app
// membership.
func (s *Store) UsersRunning(ctx context.Context, packageName string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id FROM running_apps WHERE package_name = $1`, packageName)
	if err != nil {
		return nil, fmt.Errorf("registration: users running: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("registration: scan: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
