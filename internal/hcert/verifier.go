package hcert

// verifier.go implements credential verification as a strict fail-fast
// pipeline of nine stages. Each stage is only attempted when all prior stages
// succeeded; the first failure marks its stage FAILED, leaves the rest
// PENDING, and returns the report immediately. No error escapes the pipeline
// boundary - callers always receive a complete report.

import (
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"time"
)

// StageStatus is the state of a single verification stage.
type StageStatus string

const (
	StatusPending StageStatus = "PENDING"
	StatusSuccess StageStatus = "SUCCESS"
	StatusFailed  StageStatus = "FAILED"
)

// NumStages is the number of stages in the verification pipeline.
const NumStages = 9

// StageResult is the outcome of one verification stage. The code strings are
// stable identifiers shared with other GDHCN validator implementations.
type StageResult struct {
	Step        int         `json:"step"`
	Status      StageStatus `json:"status"`
	Code        string      `json:"code"`
	Description string      `json:"description"`
	Error       string      `json:"error,omitempty"`
}

var stageTable = [NumStages]struct {
	code        string
	description string
}{
	{"DECODE_BASE45", "Decoding Base45 QR"},
	{"DEFLATE_COSE_BYTES", "Decompressing (Deflate) decoded QR Payload"},
	{"CONVERT_COSE_MESSAGE", "Converting Decompressed Payload to CWT"},
	{"COSE_MESSAGE_PAYLOAD_TO_JSON", "Extracting Claims from CWT"},
	{"EXTRACT_COUNTRY_CODE", "Extracting Country Code"},
	{"FETCH_PUBLIC_KEY_GDHCN", "Connecting & Fetching Public Key from GDHCN"},
	{"VALIDATE_SIGNATURE", "Validating Signature"},
	{"EXTRACT_HCERT", "Extracting Smart Health Link"},
	{"VALIDATE_EXPIRY", "Verifying SHL QR Expiry"},
}

// VerificationReport is the full outcome of a verification run: the ordered
// stage table plus, only when every stage succeeded, the recovered SHL
// payload.
type VerificationReport struct {
	Stages  [NumStages]StageResult `json:"validationStatus"`
	SHLink  *SHLinkPayload         `json:"shLinkContent,omitempty"`
	Payload *CredentialPayload     `json:"-"`
}

// Verified reports whether all stages succeeded.
func (r *VerificationReport) Verified() bool {
	for _, s := range r.Stages {
		if s.Status != StatusSuccess {
			return false
		}
	}
	return true
}

// KeyResolver resolves an (issuer, key id) pair to the signer's public key via
// the trust network.
type KeyResolver interface {
	ResolvePublicKey(ctx context.Context, issuer, keyID string) (crypto.PublicKey, error)
}

// Verifier runs the verification pipeline.
type Verifier struct {
	resolver KeyResolver

	// now is replaceable for expiry tests.
	now func() time.Time
}

// NewVerifier creates a Verifier that resolves trust keys with resolver.
func NewVerifier(resolver KeyResolver) *Verifier {
	return &Verifier{resolver: resolver, now: time.Now}
}

func newReport() *VerificationReport {
	report := &VerificationReport{}
	for i := range report.Stages {
		report.Stages[i] = StageResult{
			Step:        i + 1,
			Status:      StatusPending,
			Code:        stageTable[i].code,
			Description: stageTable[i].description,
		}
	}
	return report
}

// fail marks stage (1-based) FAILED with the error message and returns report.
func (r *VerificationReport) fail(stage int, err error) *VerificationReport {
	r.Stages[stage-1].Status = StatusFailed
	r.Stages[stage-1].Error = err.Error()
	r.SHLink = nil
	return r
}

func (r *VerificationReport) pass(stage int) {
	r.Stages[stage-1].Status = StatusSuccess
}

// Verify runs the nine-stage pipeline over a credential string. It always
// returns a report, never an error.
func (v *Verifier) Verify(ctx context.Context, credential string) *VerificationReport {
	report := newReport()

	// Stage 1: strip the context prefix and decode base45.
	stripped, err := StripContextPrefix(credential)
	if err != nil {
		return report.fail(1, err)
	}
	compressed, err := Base45Decode(stripped)
	if err != nil {
		return report.fail(1, err)
	}
	report.pass(1)

	// Stage 2: decompress.
	envelope, err := Decompress(compressed)
	if err != nil {
		return report.fail(2, err)
	}
	report.pass(2)

	// Stage 3: parse the COSE_Sign1 structure.
	msg, err := ParseEnvelope(envelope)
	if err != nil {
		return report.fail(3, err)
	}
	report.pass(3)

	// Stage 4: deserialize the payload claims.
	var payload CredentialPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return report.fail(4, fmt.Errorf("failed to unmarshal credential payload: %w", err))
	}
	report.Payload = &payload
	report.pass(4)

	// Stage 5: extract issuer country code and key id.
	if payload.Iss == "" {
		return report.fail(5, fmt.Errorf("credential payload has no issuer"))
	}
	keyID, err := ExtractKeyID(msg)
	if err != nil {
		return report.fail(5, err)
	}
	report.pass(5)

	// Stage 6: resolve the signer's public key from the trust network.
	publicKey, err := v.resolver.ResolvePublicKey(ctx, payload.Iss, keyID)
	if err != nil {
		return report.fail(6, err)
	}
	report.pass(6)

	// Stage 7: verify the envelope signature.
	if err := VerifyEnvelope(msg, publicKey); err != nil {
		return report.fail(7, err)
	}
	report.pass(7)

	// Stage 8: extract the first health link.
	shLinkURI, err := payload.FirstHealthLink()
	if err != nil {
		return report.fail(8, err)
	}
	report.pass(8)

	// Stage 9: unwrap the SHL and check its expiry.
	shLink, err := ParseSHLinkURI(shLinkURI)
	if err != nil {
		return report.fail(9, err)
	}
	if shLink.Exp != nil {
		expiry := time.UnixMilli(*shLink.Exp)
		if !v.now().Before(expiry) {
			return report.fail(9, fmt.Errorf("shlink expired at %s", expiry.UTC().Format(time.RFC3339)))
		}
	}
	report.pass(9)

	report.SHLink = shLink
	return report
}
