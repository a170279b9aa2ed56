package store

// postgres.go implements the stores over a pgx connection pool.

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements QrCodeStore, IpsFileStore and RecipientKeyStore
// over Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Insert(ctx context.Context, qr *QrCode) error {
	query := `
		INSERT INTO qr_codes (id, manifest_id, json_name, key, flag, pass_code, recipient, expires_on)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		qr.ID, qr.ManifestID, qr.JSONName, qr.Key, qr.Flag, qr.PassCode, qr.Recipient, qr.ExpiresOn)
	if err != nil {
		return fmt.Errorf("failed to insert qr code: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByManifestID(ctx context.Context, manifestID string) (*QrCode, error) {
	query := `
		SELECT id, manifest_id, json_name, key, flag, pass_code, recipient, expires_on, created_at
		FROM qr_codes WHERE manifest_id = $1`

	var qr QrCode
	err := s.pool.QueryRow(ctx, query, manifestID).Scan(
		&qr.ID, &qr.ManifestID, &qr.JSONName, &qr.Key, &qr.Flag, &qr.PassCode, &qr.Recipient, &qr.ExpiresOn, &qr.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select qr code: %w", err)
	}
	return &qr, nil
}

// IpsFiles returns the IpsFileStore view of the Postgres store.
func (s *PostgresStore) IpsFiles() IpsFileStore { return (*postgresIpsFiles)(s) }

// RecipientKeys returns the RecipientKeyStore view of the Postgres store.
func (s *PostgresStore) RecipientKeys() RecipientKeyStore { return (*postgresRecipientKeys)(s) }

type postgresIpsFiles PostgresStore

func (s *postgresIpsFiles) Insert(ctx context.Context, f *IpsFile) error {
	query := `INSERT INTO ips_files (id, manifest_id, accessed) VALUES ($1, $2, $3)`

	if _, err := s.pool.Exec(ctx, query, f.ID, f.ManifestID, f.Accessed); err != nil {
		return fmt.Errorf("failed to insert ips file: %w", err)
	}
	return nil
}

func (s *postgresIpsFiles) GetByID(ctx context.Context, id string) (*IpsFile, error) {
	return s.get(ctx, `SELECT id, manifest_id, accessed, created_at FROM ips_files WHERE id = $1`, id)
}

func (s *postgresIpsFiles) GetByManifestID(ctx context.Context, manifestID string) (*IpsFile, error) {
	return s.get(ctx, `SELECT id, manifest_id, accessed, created_at FROM ips_files WHERE manifest_id = $1`, manifestID)
}

func (s *postgresIpsFiles) get(ctx context.Context, query, arg string) (*IpsFile, error) {
	var f IpsFile
	err := s.pool.QueryRow(ctx, query, arg).Scan(&f.ID, &f.ManifestID, &f.Accessed, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select ips file: %w", err)
	}
	return &f, nil
}

func (s *postgresIpsFiles) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ips_files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete ips file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAccessed uses a conditional update so the accessed transition is a
// single atomic test-and-set in the database.
func (s *postgresIpsFiles) MarkAccessed(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ips_files SET accessed = TRUE WHERE id = $1 AND accessed = FALSE`, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark ips file accessed: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// no row flipped: either already accessed or missing
	var accessed bool
	err = s.pool.QueryRow(ctx, `SELECT accessed FROM ips_files WHERE id = $1`, id).Scan(&accessed)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to check ips file: %w", err)
	}
	return false, nil
}

type postgresRecipientKeys PostgresStore

func (s *postgresRecipientKeys) Insert(ctx context.Context, rk *RecipientKey) error {
	query := `INSERT INTO recipient_keys (id, recipient, json_id, expires_on) VALUES ($1, $2, $3, $4)`

	if _, err := s.pool.Exec(ctx, query, rk.ID, rk.Recipient, rk.JSONID, rk.ExpiresOn); err != nil {
		return fmt.Errorf("failed to insert recipient key: %w", err)
	}
	return nil
}

func (s *postgresRecipientKeys) ListByRecipient(ctx context.Context, recipient string) ([]*RecipientKey, error) {
	query := `
		SELECT id, recipient, json_id, expires_on, created_at
		FROM recipient_keys WHERE recipient = $1 ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to select recipient keys: %w", err)
	}
	defer rows.Close()

	var out []*RecipientKey
	for rows.Next() {
		var rk RecipientKey
		if err := rows.Scan(&rk.ID, &rk.Recipient, &rk.JSONID, &rk.ExpiresOn, &rk.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recipient key: %w", err)
		}
		out = append(out, &rk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read recipient keys: %w", err)
	}
	return out, nil
}
