package gdhcn

import (
	"context"
	"crypto/ecdsa"
	"log/slog"
	"time"

	"github.com/entomo-labs/gdhcn-validator-go/app/internal/blob"
	"github.com/entomo-labs/gdhcn-validator-go/app/internal/hcert"
	"github.com/entomo-labs/gdhcn-validator-go/app/internal/store"
)

// Config carries the deployment-specific issuance settings.
type Config struct {
	// BaseURL is the public base URL embedded in issued retrieval links.
	BaseURL string

	// CountryCode is the issuing country as registered on the trust network.
	CountryCode string

	// KeyID identifies the signing key on the trust network (COSE kid).
	KeyID string

	// ManifestTTL bounds how long a minted retrieval identity stays fresh.
	ManifestTTL time.Duration
}

// Service implements credential issuance, verification, manifest resolution
// and document retrieval.
type Service struct {
	cfg        Config
	signingKey *ecdsa.PrivateKey

	qrCodes       store.QrCodeStore
	ipsFiles      store.IpsFileStore
	recipientKeys store.RecipientKeyStore
	blobs         blob.Store

	verifier *hcert.Verifier

	// manifestLocks serializes mint-or-rotate per manifest id.
	manifestLocks *keyedMutex

	logger *slog.Logger

	// now is replaceable for TTL rotation tests.
	now func() time.Time
}

// NewService wires the service from its collaborators.
func NewService(cfg Config, signingKey *ecdsa.PrivateKey, qrCodes store.QrCodeStore, ipsFiles store.IpsFileStore, recipientKeys store.RecipientKeyStore, blobs blob.Store, resolver hcert.KeyResolver, logger *slog.Logger) *Service {
	return &Service{
		cfg:           cfg,
		signingKey:    signingKey,
		qrCodes:       qrCodes,
		ipsFiles:      ipsFiles,
		recipientKeys: recipientKeys,
		blobs:         blobs,
		verifier:      hcert.NewVerifier(resolver),
		manifestLocks: newKeyedMutex(),
		logger:        logger,
		now:           time.Now,
	}
}

// VerifyCredential runs the verification pipeline over a presented credential
// string. The report is always complete; it never returns an error.
func (s *Service) VerifyCredential(ctx context.Context, credential string) *hcert.VerificationReport {
	report := s.verifier.Verify(ctx, credential)
	s.logger.Info("credential verification finished", "verified", report.Verified())
	return report
}
