// Package trust resolves credential signers' public keys from the GDHCN trust
// network.
//
// The trust network publishes, per country, the document signer certificates
// (DSC) registered for that country; each entry is identified by a key id. The
// Resolver fetches the certificate for an (issuer, key id) pair and extracts
// the public key for signature verification. No caching is performed - every
// verification resolves the key again, so revoked or rotated certificates are
// picked up immediately.
package trust

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrCertificateNotFound is returned when the trust network has no DSC entry
// for the requested (issuer, key id) pair.
var ErrCertificateNotFound = errors.New("certificate not found on trust network")

// CertificateFetcher fetches raw DER certificate bytes for an issuer/key id
// pair. Implemented by TNGClient; tests substitute a static fetcher.
type CertificateFetcher interface {
	FetchCertificate(ctx context.Context, issuer, keyID string) ([]byte, error)
}

// trustListEntry is one entry of the trust network's DSC trust list.
type trustListEntry struct {
	Kid             string `json:"kid"`
	Country         string `json:"country"`
	CertificateType string `json:"certificateType"`

	// RawData is the base64 encoding of the DER certificate.
	RawData string `json:"rawData"`
}

// TNGClient fetches DSC certificates from the trust network gateway.
type TNGClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewTNGClient creates a trust network client. The timeout bounds each fetch;
// a timed-out fetch returns an error rather than hanging the verification.
func NewTNGClient(baseURL string, timeout time.Duration) *TNGClient {
	return &TNGClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FetchCertificate downloads the issuer's DSC trust list and returns the DER
// certificate matching keyID. Returns ErrCertificateNotFound when the trust
// list has no matching entry.
func (c *TNGClient) FetchCertificate(ctx context.Context, issuer, keyID string) ([]byte, error) {
	listURL := fmt.Sprintf("%s/trustList/DSC/%s", c.baseURL, url.PathEscape(issuer))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build trust list request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trust network request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("no trust list for issuer %q: %w", issuer, ErrCertificateNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("trust network returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read trust list: %w", err)
	}

	var entries []trustListEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse trust list: %w", err)
	}

	for _, entry := range entries {
		if entry.Kid != keyID {
			continue
		}
		der, err := base64.StdEncoding.DecodeString(entry.RawData)
		if err != nil {
			return nil, fmt.Errorf("failed to decode certificate for kid %q: %w", keyID, err)
		}
		return der, nil
	}

	return nil, fmt.Errorf("kid %q not in trust list for issuer %q: %w", keyID, issuer, ErrCertificateNotFound)
}
