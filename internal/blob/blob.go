// Package blob stores the raw IPS JSON documents referenced by QR code
// records. Documents are keyed by a name derived from the record UUID.
//
// Three backends are provided: local filesystem (default), S3-compatible
// object storage, and in-memory (tests and dev).
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no document exists under the given name.
var ErrNotFound = errors.New("blob not found")

// Store is the blob storage interface.
type Store interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)

	// Delete removes a stored document. It is used as a compensating
	// cleanup when issuance fails after the blob write.
	Delete(ctx context.Context, name string) error
}
