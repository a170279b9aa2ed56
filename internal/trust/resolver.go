package trust

import (
	"context"
	"crypto"
	"crypto/x509"
	"fmt"
	"log/slog"
)

// Resolver turns (issuer, key id) pairs into public key material by fetching
// the DSC certificate from the trust network and parsing it. It satisfies
// hcert.KeyResolver.
type Resolver struct {
	fetcher CertificateFetcher
	logger  *slog.Logger
}

// NewResolver creates a Resolver backed by the given certificate fetcher.
func NewResolver(fetcher CertificateFetcher, logger *slog.Logger) *Resolver {
	return &Resolver{fetcher: fetcher, logger: logger}
}

// ResolvePublicKey fetches and parses the signer's certificate. Every failure
// (network, unknown kid, unparseable certificate) is a trust resolution
// failure; the caller must not interpret it as an invalid signature.
func (r *Resolver) ResolvePublicKey(ctx context.Context, issuer, keyID string) (crypto.PublicKey, error) {
	der, err := r.fetcher.FetchCertificate(ctx, issuer, keyID)
	if err != nil {
		r.logger.Warn("trust resolution failed",
			slog.String("issuer", issuer),
			slog.String("kid", keyID),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to resolve key for issuer %q: %w", issuer, err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSC certificate for issuer %q: %w", issuer, err)
	}

	r.logger.Debug("resolved signer certificate",
		slog.String("issuer", issuer),
		slog.String("kid", keyID),
		slog.String("subject", cert.Subject.String()))

	return cert.PublicKey, nil
}
