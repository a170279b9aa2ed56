package gdhcn

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/entomo-labs/gdhcn-validator-go/app/internal/hcert"
	"github.com/entomo-labs/gdhcn-validator-go/app/internal/store"
)

// noExpirySentinel is the exp claim for credentials issued without an expiry.
const noExpirySentinel = math.MaxInt64

// randomToken returns the base64url encoding of n cryptographically random bytes.
func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Issue creates a signed credential wrapping a SMART Health Link to rawJSON.
//
// The document blob is written before the QrCode record; if the record insert
// fails the blob is deleted again so neither outlives the other.
func (s *Service) Issue(ctx context.Context, rawJSON []byte, passcode string, expiresOn *time.Time) (string, error) {
	if len(rawJSON) == 0 {
		return "", NewValidationError("jsonContent must not be empty")
	}

	key, err := randomToken(32)
	if err != nil {
		return "", WrapIssuanceError(err, "failed to generate link key")
	}
	manifestID, err := randomToken(32)
	if err != nil {
		return "", WrapIssuanceError(err, "failed to generate manifest id")
	}

	id := uuid.New().String()
	jsonName := id + ".json"

	if err := s.blobs.Put(ctx, jsonName, rawJSON); err != nil {
		return "", WrapStorageError(err, "failed to store document")
	}

	var (
		url  string
		flag string
	)
	if passcode != "" {
		url = s.cfg.BaseURL + "/v2/manifests/" + manifestID
		flag = hcert.FlagPasscode
	} else {
		url = s.cfg.BaseURL + "/v2/ips-json/" + manifestID
		flag = hcert.FlagUnprotected
	}

	shl := hcert.SHLinkPayload{
		URL:   url,
		Flag:  flag,
		Label: hcert.DefaultLabel,
		Key:   key,
	}
	exp := int64(noExpirySentinel)
	if expiresOn != nil {
		ms := expiresOn.UnixMilli()
		shl.Exp = &ms
		exp = ms
	}

	shLinkURI, err := hcert.NewSHLinkURI(shl)
	if err != nil {
		return "", s.abortIssue(ctx, jsonName, WrapIssuanceError(err, "failed to build shlink"))
	}

	payload := hcert.CredentialPayload{
		Iss: s.cfg.CountryCode,
		Iat: s.now().UnixMilli(),
		Exp: exp,
		HealthCertificate: hcert.HealthCertificate{
			HealthLinks: []hcert.SmartHealthLink{{SHLink: shLinkURI}},
		},
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", s.abortIssue(ctx, jsonName, WrapIssuanceError(err, "failed to serialize credential payload"))
	}

	credential, err := hcert.Encode(payloadJSON, s.signingKey, s.cfg.KeyID)
	if err != nil {
		return "", s.abortIssue(ctx, jsonName, WrapIssuanceError(err, "failed to sign credential"))
	}

	qr := &store.QrCode{
		ID:         id,
		ManifestID: manifestID,
		JSONName:   jsonName,
		Key:        key,
		Flag:       flag,
		PassCode:   passcode,
		ExpiresOn:  expiresOn,
		CreatedAt:  s.now(),
	}
	if err := s.qrCodes.Insert(ctx, qr); err != nil {
		return "", s.abortIssue(ctx, jsonName, WrapStorageError(err, "failed to persist credential record"))
	}

	s.logger.Info("credential issued", "manifest_id", manifestID, "flag", flag)
	return credential, nil
}

// abortIssue removes the already-written blob after a later issuance step
// failed, then passes the failure through.
func (s *Service) abortIssue(ctx context.Context, jsonName string, cause error) error {
	if err := s.blobs.Delete(ctx, jsonName); err != nil {
		s.logger.Error("failed to clean up orphaned document blob", "name", jsonName, "error", err)
	}
	return cause
}
