// Package store defines the persistence layer: the QR code records created at
// issuance, the single-use IPS retrieval records minted by the manifest
// endpoint, and recipient key bookkeeping. Postgres (pgx) backs production;
// an in-memory implementation backs tests.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("record not found")

// QrCode is the durable record behind an issued credential. The manifest id is
// the only externally addressable reference to it; the record is created once
// at issuance and read (never mutated) during retrieval.
type QrCode struct {
	// ID is the generated UUID; the stored blob name is derived from it.
	ID string

	// ManifestID is the public-facing identifier: base64url of 32 random
	// bytes, globally unique.
	ManifestID string

	// JSONName is the blob store name of the raw IPS JSON document.
	JSONName string

	// Key is the base64url symmetric key embedded in the issued SHL.
	Key string

	// Flag is "P" (passcode protected) or "U" (unprotected).
	Flag string

	// PassCode gates manifest resolution when Flag is "P".
	PassCode string

	// Recipient is an optional label for who the credential was issued to.
	Recipient string

	// ExpiresOn is the optional credential expiry.
	ExpiresOn *time.Time

	CreatedAt time.Time
}

// IpsFile is the ephemeral single-use retrieval record: a capability token
// scoped to one QrCode via the manifest id back-reference. It is rotated
// (deleted and re-minted under a fresh id) when stale or consumed, and its
// accessed flag flips to true exactly once, when the content is retrieved.
type IpsFile struct {
	ID         string
	ManifestID string
	Accessed   bool
	CreatedAt  time.Time
}

// RecipientKey records a recipient that resolved a manifest. It is persisted
// for audit purposes and plays no part in the retrieval control flow.
type RecipientKey struct {
	ID        string
	Recipient string
	JSONID    string
	ExpiresOn *time.Time
	CreatedAt time.Time
}

// QrCodeStore persists issued QR code records.
type QrCodeStore interface {
	Insert(ctx context.Context, qr *QrCode) error
	GetByManifestID(ctx context.Context, manifestID string) (*QrCode, error)
}

// IpsFileStore persists the ephemeral retrieval records.
type IpsFileStore interface {
	Insert(ctx context.Context, f *IpsFile) error
	GetByID(ctx context.Context, id string) (*IpsFile, error)
	GetByManifestID(ctx context.Context, manifestID string) (*IpsFile, error)
	Delete(ctx context.Context, id string) error

	// MarkAccessed atomically flips the accessed flag. It returns true when
	// this call performed the transition, false when the record was already
	// accessed, and ErrNotFound when no record exists. Concurrent calls for
	// the same id see exactly one true result.
	MarkAccessed(ctx context.Context, id string) (bool, error)
}

// RecipientKeyStore persists recipient audit records.
type RecipientKeyStore interface {
	Insert(ctx context.Context, rk *RecipientKey) error
	ListByRecipient(ctx context.Context, recipient string) ([]*RecipientKey, error)
}
