package hcert

// codec.go implements the compression layer of the credential string and the
// full encoding pipeline:
//
//	"HC1:" + base45(zlib(COSE_Sign1(JSON(CredentialPayload))))
//
// The layering is byte-for-byte compatible with external HCERT verifiers.

import (
	"bytes"
	"compress/zlib"
	"crypto/ecdsa"
	"fmt"
	"io"
	"strings"
)

// maxDecompressedBytes caps decompression output so a crafted credential
// cannot expand into an unbounded allocation.
const maxDecompressedBytes = 8 << 20

// Compress deflates data with zlib.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress payload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to flush compressed payload: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress inflates a zlib stream, failing closed on malformed input or
// output larger than maxDecompressedBytes.
func Decompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open compressed payload: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, maxDecompressedBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress payload: %w", err)
	}
	if len(out) > maxDecompressedBytes {
		return nil, fmt.Errorf("decompressed payload exceeds %d bytes", maxDecompressedBytes)
	}
	return out, nil
}

// StripContextPrefix removes the "HC1:" prefix from a credential string.
func StripContextPrefix(credential string) (string, error) {
	if !strings.HasPrefix(credential, ContextPrefix) {
		return "", fmt.Errorf("missing %q context prefix", ContextPrefix)
	}
	return strings.TrimPrefix(credential, ContextPrefix), nil
}

// Encode signs the payload JSON and produces the compact credential string.
func Encode(payloadJSON []byte, privateKey *ecdsa.PrivateKey, keyID string) (string, error) {
	envelope, err := SignEnvelope(payloadJSON, privateKey, keyID)
	if err != nil {
		return "", err
	}

	compressed, err := Compress(envelope)
	if err != nil {
		return "", err
	}

	return ContextPrefix + Base45Encode(compressed), nil
}
