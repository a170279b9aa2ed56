package gdhcn

import (
	"context"
	"errors"
	"strings"

	"github.com/entomo-labs/gdhcn-validator-go/app/internal/blob"
	"github.com/entomo-labs/gdhcn-validator-go/app/internal/hcert"
	"github.com/entomo-labs/gdhcn-validator-go/app/internal/store"
)

// Retrieve returns the clinical document bytes for id.
//
// The id is either a manifest id of an unprotected credential (repeatable
// direct download) or a single-use retrieval identity minted by manifest
// resolution. The two namespaces are disjoint, so the unprotected lookup is
// tried first and the single-use path handles the miss.
func (s *Service) Retrieve(ctx context.Context, id string) ([]byte, error) {
	qr, err := s.qrCodes.GetByManifestID(ctx, id)
	switch {
	case err == nil:
		if strings.Contains(qr.Flag, hcert.FlagPasscode) {
			return nil, NewInvalidRequestError("credential requires manifest resolution")
		}
		return s.fetchDocument(ctx, qr.JSONName)
	case !errors.Is(err, store.ErrNotFound):
		return nil, WrapStorageError(err, "failed to load credential record")
	}

	return s.retrieveSingleUse(ctx, id)
}

// retrieveSingleUse consumes a single-use retrieval identity. The accessed
// flag is persisted before the blob is read so a crash between the two counts
// as consumed rather than risking a second delivery.
func (s *Service) retrieveSingleUse(ctx context.Context, id string) ([]byte, error) {
	ipsFile, err := s.ipsFiles.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NewNotFoundError("no document found for id")
		}
		return nil, WrapStorageError(err, "failed to load retrieval record")
	}

	ok, err := s.ipsFiles.MarkAccessed(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NewNotFoundError("no document found for id")
		}
		return nil, WrapStorageError(err, "failed to consume retrieval record")
	}
	if !ok {
		return nil, NewAlreadyAccessedError("document has already been retrieved")
	}

	qr, err := s.qrCodes.GetByManifestID(ctx, ipsFile.ManifestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NewNotFoundError("no credential found for retrieval record")
		}
		return nil, WrapStorageError(err, "failed to load credential record")
	}

	return s.fetchDocument(ctx, qr.JSONName)
}

func (s *Service) fetchDocument(ctx context.Context, name string) ([]byte, error) {
	data, err := s.blobs.Get(ctx, name)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, NewNotFoundError("document blob is missing")
		}
		return nil, WrapStorageError(err, "failed to read document")
	}
	return data, nil
}
