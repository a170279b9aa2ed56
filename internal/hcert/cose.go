package hcert

// cose.go wraps the COSE_Sign1 envelope operations (github.com/veraison/go-cose).
//
// Credentials are signed with ES256 (ECDSA P-256 / SHA-256), the algorithm
// used for document signer certificates on the GDHCN trust network.

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/veraison/go-cose"
)

// SignEnvelope signs payload into a serialized COSE_Sign1 envelope. The key id
// is placed in the protected header so verifiers can resolve the signer's
// certificate before verifying.
func SignEnvelope(payload []byte, privateKey *ecdsa.PrivateKey, keyID string) ([]byte, error) {
	if keyID == "" {
		return nil, fmt.Errorf("keyID is required")
	}

	signer, err := cose.NewSigner(cose.AlgorithmES256, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}

	headers := cose.Headers{
		Protected: cose.ProtectedHeader{
			cose.HeaderLabelAlgorithm: cose.AlgorithmES256,
			cose.HeaderLabelKeyID:     []byte(keyID),
		},
	}

	envelope, err := cose.Sign1(rand.Reader, signer, headers, payload, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to sign payload: %w", err)
	}

	return envelope, nil
}

// ParseEnvelope decodes a serialized COSE_Sign1 envelope without verifying it.
func ParseEnvelope(envelope []byte) (*cose.Sign1Message, error) {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(envelope); err != nil {
		return nil, fmt.Errorf("failed to parse COSE_Sign1 message: %w", err)
	}
	return &msg, nil
}

// ExtractKeyID reads the key id from the protected header of a parsed
// envelope. Like reading a JWS header, this requires no verification - the
// value is untrusted until the signature has been checked.
func ExtractKeyID(msg *cose.Sign1Message) (string, error) {
	raw, ok := msg.Headers.Protected[cose.HeaderLabelKeyID]
	if !ok {
		return "", fmt.Errorf("missing kid in protected header")
	}

	switch kid := raw.(type) {
	case []byte:
		return string(kid), nil
	case string:
		return kid, nil
	default:
		return "", fmt.Errorf("unexpected kid type %T", raw)
	}
}

// VerifyEnvelope checks the envelope signature against the resolved public
// key. It fails closed: any malformed structure or verification failure
// returns an error, never a panic.
func VerifyEnvelope(msg *cose.Sign1Message, publicKey crypto.PublicKey) error {
	verifier, err := cose.NewVerifier(cose.AlgorithmES256, publicKey)
	if err != nil {
		return fmt.Errorf("failed to create verifier: %w", err)
	}

	if err := msg.Verify(nil, verifier); err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}
