package server

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/entomo-labs/gdhcn-validator-go/app/internal/blob"
	"github.com/entomo-labs/gdhcn-validator-go/app/internal/config"
	"github.com/entomo-labs/gdhcn-validator-go/app/internal/gdhcn"
	"github.com/entomo-labs/gdhcn-validator-go/app/internal/hcert"
	"github.com/entomo-labs/gdhcn-validator-go/app/internal/store"
	"github.com/entomo-labs/gdhcn-validator-go/app/internal/trust"
)

const testKID = "test-kid"

// newTrustServer serves a one-entry trust list containing a self-signed
// certificate for key, the way the trust network publishes DSCs.
func newTrustServer(t *testing.T, key *ecdsa.PrivateKey, country string) *httptest.Server {
	t.Helper()

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "DSC " + country},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}

	entry := fmt.Sprintf(`[{"kid":%q,"country":%q,"certificateType":"DSC","rawData":%q}]`,
		testKID, country, base64.StdEncoding.EncodeToString(der))

	mux := http.NewServeMux()
	mux.HandleFunc("/trustList/DSC/"+country, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(entry))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	trustSrv := newTrustServer(t, key, "XCL")

	mem := store.NewMemoryStore()
	resolver := trust.NewResolver(trust.NewTNGClient(trustSrv.URL, 5*time.Second), logger)

	cfg := &config.ServerEnvironment{
		Environment:     "test",
		DSCKeyID:        testKID,
		MaxRequestBytes: 1 << 20,
	}

	svcCfg := gdhcn.Config{
		CountryCode: "XCL",
		KeyID:       testKID,
		ManifestTTL: time.Hour,
	}
	service := gdhcn.NewService(svcCfg, key, mem, mem.IpsFiles(), mem.RecipientKeys(), blob.NewMemoryStore(), resolver, logger)

	srv, err := NewServer(nil, cfg, logger, service, &key.PublicKey)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	httpSrv := httptest.NewServer(srv.Router())
	t.Cleanup(httpSrv.Close)
	return httpSrv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestCredentialLifecycle(t *testing.T) {
	srv := newTestServer(t)

	// Issue a passcode-protected credential.
	resp := postJSON(t, srv.URL+"/v2/vshcIssuance", IssuanceRequest{
		JSONContent: json.RawMessage(`{"resourceType":"Bundle"}`),
		PassCode:    "1234",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("issuance status = %d, want 200", resp.StatusCode)
	}
	credential, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read credential: %v", err)
	}
	if !strings.HasPrefix(string(credential), "HC1:") {
		t.Fatalf("credential missing context prefix: %.8s", credential)
	}

	// Validate it through the full pipeline.
	resp = postJSON(t, srv.URL+"/v2/vshcValidation", ValidationRequest{
		QRCodeContent: string(credential),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("validation status = %d, want 200", resp.StatusCode)
	}
	var report hcert.VerificationReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("failed to decode report: %v", err)
	}
	if !report.Verified() {
		t.Fatalf("report not verified: %+v", report.Stages)
	}
	if report.SHLink == nil {
		t.Fatal("verified report has no SHL content")
	}

	// Resolve the manifest behind the SHL.
	manifestID := report.SHLink.URL[strings.LastIndex(report.SHLink.URL, "/")+1:]
	resp = postJSON(t, srv.URL+"/v2/manifests/"+manifestID, ManifestRequest{PassCode: "1234"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("manifest status = %d, want 200", resp.StatusCode)
	}
	var manifest gdhcn.ManifestResponse
	if err := json.NewDecoder(resp.Body).Decode(&manifest); err != nil {
		t.Fatalf("failed to decode manifest: %v", err)
	}
	if len(manifest.Files) != 1 {
		t.Fatalf("len(Files) = %d, want 1", len(manifest.Files))
	}

	// Download the document; the link is single use.
	loc := manifest.Files[0].Location
	ipsID := loc[strings.LastIndex(loc, "/")+1:]

	docResp, err := http.Get(srv.URL + "/v2/ips-json/" + ipsID)
	if err != nil {
		t.Fatalf("GET ips-json failed: %v", err)
	}
	defer docResp.Body.Close()
	if docResp.StatusCode != http.StatusOK {
		t.Fatalf("retrieval status = %d, want 200", docResp.StatusCode)
	}
	doc, _ := io.ReadAll(docResp.Body)
	if !bytes.Contains(doc, []byte("Bundle")) {
		t.Errorf("retrieved document = %q, want stored content", doc)
	}

	secondResp, err := http.Get(srv.URL + "/v2/ips-json/" + ipsID)
	if err != nil {
		t.Fatalf("second GET ips-json failed: %v", err)
	}
	defer secondResp.Body.Close()
	if secondResp.StatusCode != http.StatusConflict {
		t.Errorf("second retrieval status = %d, want 409", secondResp.StatusCode)
	}
}

func TestManifestErrorMapping(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name       string
		manifestID string
		passcode   string
		wantStatus int
	}{
		{"unknown manifest", "no-such-id", "1234", http.StatusNotFound},
	}

	// Issue a protected credential to get a real manifest id.
	resp := postJSON(t, srv.URL+"/v2/vshcIssuance", IssuanceRequest{
		JSONContent: json.RawMessage(`{"resourceType":"Bundle"}`),
		PassCode:    "1234",
	})
	credential, _ := io.ReadAll(resp.Body)
	vResp := postJSON(t, srv.URL+"/v2/vshcValidation", ValidationRequest{QRCodeContent: string(credential)})
	var report hcert.VerificationReport
	if err := json.NewDecoder(vResp.Body).Decode(&report); err != nil {
		t.Fatalf("failed to decode report: %v", err)
	}
	manifestID := report.SHLink.URL[strings.LastIndex(report.SHLink.URL, "/")+1:]

	tests = append(tests, struct {
		name       string
		manifestID string
		passcode   string
		wantStatus int
	}{"wrong passcode", manifestID, "9999", http.StatusBadRequest})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/v2/manifests/"+tt.manifestID, ManifestRequest{PassCode: tt.passcode})
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			var errResp ErrorResponse
			if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
				t.Fatalf("failed to decode error response: %v", err)
			}
			if errResp.StatusCode != tt.wantStatus {
				t.Errorf("body statusCode = %d, want %d", errResp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestValidationRejectsEmptyBody(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v2/vshcValidation", ValidationRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestJWKSEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/.well-known/jwks.json")
	if err != nil {
		t.Fatalf("GET jwks failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var doc struct {
		Keys []map[string]any `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("failed to decode JWK set: %v", err)
	}
	if len(doc.Keys) != 1 {
		t.Fatalf("len(keys) = %d, want 1", len(doc.Keys))
	}
	key := doc.Keys[0]
	if key["kid"] != testKID {
		t.Errorf("kid = %v, want %s", key["kid"], testKID)
	}
	if key["kty"] != "EC" {
		t.Errorf("kty = %v, want EC", key["kty"])
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/health", "/ready", "/version"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}
}

// Guard against the report JSON shape drifting; external verifiers consume it.
func TestValidationReportShape(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v2/vshcValidation", ValidationRequest{QRCodeContent: "garbage"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var doc map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if _, ok := doc["validationStatus"]; !ok {
		t.Error("response missing validationStatus")
	}
	if _, ok := doc["shLinkContent"]; ok {
		t.Error("failed validation must not carry shLinkContent")
	}

	var stages []hcert.StageResult
	if err := json.Unmarshal(doc["validationStatus"], &stages); err != nil {
		t.Fatalf("failed to decode stages: %v", err)
	}
	if len(stages) != hcert.NumStages {
		t.Fatalf("len(stages) = %d, want %d", len(stages), hcert.NumStages)
	}
	if stages[0].Code != "DECODE_BASE45" || stages[0].Status != hcert.StatusFailed {
		t.Errorf("stage 1 = %+v, want DECODE_BASE45 FAILED", stages[0])
	}
	for _, s := range stages[1:] {
		if s.Status != hcert.StatusPending {
			t.Errorf("stage %d status = %s, want PENDING", s.Step, s.Status)
		}
	}
}
