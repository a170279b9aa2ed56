package gdhcn

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/entomo-labs/gdhcn-validator-go/app/internal/hcert"
	"github.com/entomo-labs/gdhcn-validator-go/app/internal/store"
)

// IPSContentType is the media type of the clinical documents behind a manifest.
const IPSContentType = "application/fhir+json"

// ManifestFile is one downloadable entry in a manifest response.
type ManifestFile struct {
	ContentType string `json:"contentType"`
	Location    string `json:"location"`
}

// ManifestResponse is the document list returned by manifest resolution.
type ManifestResponse struct {
	Files []ManifestFile `json:"files"`
}

// ResolveManifest exchanges a manifest id and passcode for the current
// single-use retrieval URL.
//
// The ephemeral retrieval record behind the manifest is minted on first
// resolution and rotated (old identity deleted, fresh one inserted) once it
// has been consumed or its TTL elapsed. Rotation is transparent to the
// caller. The check-and-mint runs under a per-manifest-id lock so concurrent
// resolutions never race to create two fresh records.
func (s *Service) ResolveManifest(ctx context.Context, manifestID, passcode, recipient string) (*ManifestResponse, error) {
	qr, err := s.qrCodes.GetByManifestID(ctx, manifestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NewNotFoundError("no credential found for manifest id")
		}
		return nil, WrapStorageError(err, "failed to load credential record")
	}

	if !strings.Contains(qr.Flag, hcert.FlagPasscode) {
		return nil, NewInvalidRequestError("credential is not passcode protected")
	}
	if subtle.ConstantTimeCompare([]byte(qr.PassCode), []byte(passcode)) != 1 {
		return nil, NewValidationError("passcode does not match")
	}

	unlock := s.manifestLocks.Lock(manifestID)
	ipsFile, err := s.currentIpsFile(ctx, manifestID)
	unlock()
	if err != nil {
		return nil, err
	}

	if recipient != "" {
		rk := &store.RecipientKey{
			ID:        uuid.New().String(),
			Recipient: recipient,
			JSONID:    ipsFile.ID,
			ExpiresOn: qr.ExpiresOn,
			CreatedAt: s.now(),
		}
		if err := s.recipientKeys.Insert(ctx, rk); err != nil {
			// Audit bookkeeping only; resolution still succeeds.
			s.logger.Error("failed to record manifest recipient", "recipient", recipient, "error", err)
		}
	}

	return &ManifestResponse{
		Files: []ManifestFile{{
			ContentType: IPSContentType,
			Location:    s.cfg.BaseURL + "/v2/ips-json/" + ipsFile.ID,
		}},
	}, nil
}

// currentIpsFile returns the fresh retrieval record for manifestID, minting or
// rotating as needed. Callers must hold the manifest lock.
func (s *Service) currentIpsFile(ctx context.Context, manifestID string) (*store.IpsFile, error) {
	existing, err := s.ipsFiles.GetByManifestID(ctx, manifestID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return s.mintIpsFile(ctx, manifestID)
	case err != nil:
		return nil, WrapStorageError(err, "failed to load retrieval record")
	}

	stale := s.now().Sub(existing.CreatedAt) >= s.cfg.ManifestTTL
	if !stale && !existing.Accessed {
		return existing, nil
	}

	if err := s.ipsFiles.Delete(ctx, existing.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, WrapStorageError(err, "failed to rotate retrieval record")
	}
	s.logger.Info("retrieval record rotated", "manifest_id", manifestID, "accessed", existing.Accessed)
	return s.mintIpsFile(ctx, manifestID)
}

func (s *Service) mintIpsFile(ctx context.Context, manifestID string) (*store.IpsFile, error) {
	f := &store.IpsFile{
		ID:         uuid.New().String(),
		ManifestID: manifestID,
		Accessed:   false,
		CreatedAt:  s.now(),
	}
	if err := s.ipsFiles.Insert(ctx, f); err != nil {
		return nil, WrapStorageError(err, "failed to mint retrieval record")
	}
	return f, nil
}

// ManifestTTLFromMinutes converts the configured TTL in whole minutes.
func ManifestTTLFromMinutes(minutes int) time.Duration {
	return time.Duration(minutes) * time.Minute
}
