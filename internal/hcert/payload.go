package hcert

// payload.go defines the signed credential payload and the SMART Health Link
// (SHL) structures embedded in it.
//
// The credential payload is serialized as JSON and carried as the content of a
// COSE_Sign1 envelope. The SHL is a "shlink://" URI wrapping a base64-encoded
// JSON document that tells a verified client where to fetch the linked IPS
// document and whether a passcode is required.

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// ContextPrefix is the fixed context identifier prepended to the
	// base45-encoded credential string.
	ContextPrefix = "HC1:"

	// SHLinkPrefix is the URI scheme prefix for SMART Health Links.
	SHLinkPrefix = "shlink://"

	// DefaultLabel is the human-readable label placed in issued SHLs.
	DefaultLabel = "GDHCN Validator"

	// FlagPasscode marks an SHL whose retrieval URL is passcode protected
	// (the URL targets the manifest endpoint).
	FlagPasscode = "P"

	// FlagUnprotected marks an SHL whose retrieval URL serves the document
	// directly with no passcode.
	FlagUnprotected = "U"
)

// SHLinkPayload is the JSON document wrapped inside an shlink:// URI.
type SHLinkPayload struct {
	// URL is the retrieval URL. Passcode-protected links point at the
	// manifest endpoint, unprotected links point directly at the JSON
	// endpoint.
	URL string `json:"url"`

	// Flag is "P" (passcode protected) or "U" (unprotected) and must be
	// consistent with the endpoint the URL targets.
	Flag string `json:"flag"`

	Label string `json:"label,omitempty"`

	// Exp is an optional expiry as epoch milliseconds.
	Exp *int64 `json:"exp,omitempty"`

	// Key is the base64url encoding of 32 random bytes generated at
	// issuance. It is carried for SHL interoperability; nothing in this
	// service encrypts with it.
	Key string `json:"key"`
}

// SmartHealthLink wraps a single shlink:// URI.
type SmartHealthLink struct {
	SHLink string `json:"shLink"`
}

// HealthCertificate is the health-link container inside the credential payload.
type HealthCertificate struct {
	HealthLinks []SmartHealthLink `json:"healthLinks"`
}

// CredentialPayload is the claim set signed into the credential.
type CredentialPayload struct {
	// Iss is the issuing country code as registered on the trust network.
	Iss string `json:"iss"`

	// Iat is the issuance time as epoch milliseconds.
	Iat int64 `json:"iat"`

	// Exp is the credential expiry as epoch milliseconds. Credentials with
	// no caller-supplied expiry carry the far-future sentinel (MaxInt64).
	Exp int64 `json:"exp"`

	HealthCertificate HealthCertificate `json:"healthCertificate"`
}

// FirstHealthLink returns the first SHL URI in the payload's health-link list.
func (p *CredentialPayload) FirstHealthLink() (string, error) {
	links := p.HealthCertificate.HealthLinks
	if len(links) == 0 || links[0].SHLink == "" {
		return "", fmt.Errorf("credential payload contains no health links")
	}
	return links[0].SHLink, nil
}

// NewSHLinkURI serializes the payload and wraps it as an shlink:// URI.
func NewSHLinkURI(payload SHLinkPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal SHL payload: %w", err)
	}
	return SHLinkPrefix + base64.StdEncoding.EncodeToString(data), nil
}

// ParseSHLinkURI unwraps an shlink:// URI and deserializes the payload.
func ParseSHLinkURI(uri string) (*SHLinkPayload, error) {
	if !strings.HasPrefix(uri, SHLinkPrefix) {
		return nil, fmt.Errorf("missing %q prefix", SHLinkPrefix)
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, SHLinkPrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to decode SHL payload: %w", err)
	}

	var payload SHLinkPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal SHL payload: %w", err)
	}
	return &payload, nil
}
