package gdhcn

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/entomo-labs/gdhcn-validator-go/app/internal/blob"
	"github.com/entomo-labs/gdhcn-validator-go/app/internal/hcert"
	"github.com/entomo-labs/gdhcn-validator-go/app/internal/store"
)

type staticResolver struct {
	key crypto.PublicKey
	err error
}

func (r *staticResolver) ResolvePublicKey(ctx context.Context, issuer, keyID string) (crypto.PublicKey, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.key, nil
}

type testEnv struct {
	svc      *Service
	qrCodes  *store.MemoryStore
	ipsFiles store.IpsFileStore
	blobs    *blob.MemoryStore
	key      *ecdsa.PrivateKey
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	mem := store.NewMemoryStore()
	blobs := blob.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := Config{
		BaseURL:     "https://vshc.example.org",
		CountryCode: "XCL",
		KeyID:       "test-kid",
		ManifestTTL: time.Hour,
	}
	svc := NewService(cfg, key, mem, mem.IpsFiles(), mem.RecipientKeys(), blobs, &staticResolver{key: &key.PublicKey}, logger)

	return &testEnv{svc: svc, qrCodes: mem, ipsFiles: mem.IpsFiles(), blobs: blobs, key: key}
}

const testDocument = `{"resourceType":"Bundle","type":"document"}`

func TestIssueVerifyRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	credential, err := env.svc.Issue(ctx, []byte(testDocument), "1234", nil)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if !strings.HasPrefix(credential, "HC1:") {
		t.Fatalf("credential missing context prefix: %q", credential[:8])
	}

	report := env.svc.VerifyCredential(ctx, credential)
	if !report.Verified() {
		t.Fatalf("report not verified: %+v", report.Stages)
	}
	if report.SHLink == nil {
		t.Fatal("verified report has no SHL content")
	}
	if report.SHLink.Flag != hcert.FlagPasscode {
		t.Errorf("Flag = %q, want %q", report.SHLink.Flag, hcert.FlagPasscode)
	}
	if !strings.Contains(report.SHLink.URL, "/v2/manifests/") {
		t.Errorf("passcode-protected URL = %q, want manifest endpoint", report.SHLink.URL)
	}
	if report.SHLink.Exp != nil {
		t.Errorf("Exp = %v, want nil for no caller expiry", *report.SHLink.Exp)
	}
}

func TestIssueUnprotected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	credential, err := env.svc.Issue(ctx, []byte(testDocument), "", nil)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	report := env.svc.VerifyCredential(ctx, credential)
	if !report.Verified() {
		t.Fatalf("report not verified: %+v", report.Stages)
	}
	if report.SHLink.Flag != hcert.FlagUnprotected {
		t.Errorf("Flag = %q, want %q", report.SHLink.Flag, hcert.FlagUnprotected)
	}
	if !strings.Contains(report.SHLink.URL, "/v2/ips-json/") {
		t.Errorf("unprotected URL = %q, want direct endpoint", report.SHLink.URL)
	}
}

func TestIssueEmptyDocument(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Issue(context.Background(), nil, "", nil)
	if CodeOf(err) != ErrCodeValidation {
		t.Fatalf("Issue(empty) error = %v, want %s", err, ErrCodeValidation)
	}
}

// failingQrCodeStore rejects inserts so the blob cleanup path can be observed.
type failingQrCodeStore struct {
	store.QrCodeStore
}

func (f *failingQrCodeStore) Insert(ctx context.Context, qr *store.QrCode) error {
	return errors.New("insert rejected")
}

func TestIssueCleansUpBlobOnInsertFailure(t *testing.T) {
	env := newTestEnv(t)
	env.svc.qrCodes = &failingQrCodeStore{QrCodeStore: env.qrCodes}
	ctx := context.Background()

	_, err := env.svc.Issue(ctx, []byte(testDocument), "", nil)
	if CodeOf(err) != ErrCodeStorage {
		t.Fatalf("Issue() error = %v, want %s", err, ErrCodeStorage)
	}

	// No blob may outlive the failed record insert.
	for _, name := range env.blobs.Names() {
		t.Errorf("orphaned blob left behind: %s", name)
	}
}

func TestVerifyExpiredCredential(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	credential, err := env.svc.Issue(ctx, []byte(testDocument), "1234", &past)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	report := env.svc.VerifyCredential(ctx, credential)
	if report.Verified() {
		t.Fatal("expired credential verified")
	}
	if got := report.Stages[8].Status; got != hcert.StatusFailed {
		t.Errorf("stage 9 status = %s, want FAILED", got)
	}
	if report.SHLink != nil {
		t.Error("expired report carries SHL content")
	}
}

func issueAndParseManifestID(t *testing.T, env *testEnv, passcode string) string {
	t.Helper()

	credential, err := env.svc.Issue(context.Background(), []byte(testDocument), passcode, nil)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	report := env.svc.VerifyCredential(context.Background(), credential)
	if !report.Verified() {
		t.Fatalf("report not verified: %+v", report.Stages)
	}
	url := report.SHLink.URL
	return url[strings.LastIndex(url, "/")+1:]
}

func TestResolveManifest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	manifestID := issueAndParseManifestID(t, env, "1234")

	t.Run("unknown manifest", func(t *testing.T) {
		_, err := env.svc.ResolveManifest(ctx, "no-such-id", "1234", "")
		if CodeOf(err) != ErrCodeNotFound {
			t.Errorf("error = %v, want %s", err, ErrCodeNotFound)
		}
	})

	t.Run("wrong passcode", func(t *testing.T) {
		_, err := env.svc.ResolveManifest(ctx, manifestID, "9999", "")
		if CodeOf(err) != ErrCodeValidation {
			t.Errorf("error = %v, want %s", err, ErrCodeValidation)
		}
	})

	t.Run("success", func(t *testing.T) {
		resp, err := env.svc.ResolveManifest(ctx, manifestID, "1234", "alice")
		if err != nil {
			t.Fatalf("ResolveManifest() error = %v", err)
		}
		if len(resp.Files) != 1 {
			t.Fatalf("len(Files) = %d, want 1", len(resp.Files))
		}
		f := resp.Files[0]
		if f.ContentType != IPSContentType {
			t.Errorf("ContentType = %q, want %q", f.ContentType, IPSContentType)
		}
		if !strings.Contains(f.Location, "/v2/ips-json/") {
			t.Errorf("Location = %q, want retrieval endpoint", f.Location)
		}
	})

	t.Run("unprotected record", func(t *testing.T) {
		openID := issueAndParseManifestID(t, env, "")
		_, err := env.svc.ResolveManifest(ctx, openID, "", "")
		if CodeOf(err) != ErrCodeInvalidRequest {
			t.Errorf("error = %v, want %s", err, ErrCodeInvalidRequest)
		}
	})
}

func retrievalID(t *testing.T, resp *ManifestResponse) string {
	t.Helper()
	loc := resp.Files[0].Location
	return loc[strings.LastIndex(loc, "/")+1:]
}

func TestResolveManifestReusesFreshRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	manifestID := issueAndParseManifestID(t, env, "1234")

	first, err := env.svc.ResolveManifest(ctx, manifestID, "1234", "")
	if err != nil {
		t.Fatalf("ResolveManifest() error = %v", err)
	}
	second, err := env.svc.ResolveManifest(ctx, manifestID, "1234", "")
	if err != nil {
		t.Fatalf("ResolveManifest() error = %v", err)
	}
	if retrievalID(t, first) != retrievalID(t, second) {
		t.Error("fresh unaccessed record was rotated")
	}
}

func TestResolveManifestRotatesAccessedRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	manifestID := issueAndParseManifestID(t, env, "1234")

	first, err := env.svc.ResolveManifest(ctx, manifestID, "1234", "")
	if err != nil {
		t.Fatalf("ResolveManifest() error = %v", err)
	}
	if _, err := env.svc.Retrieve(ctx, retrievalID(t, first)); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}

	second, err := env.svc.ResolveManifest(ctx, manifestID, "1234", "")
	if err != nil {
		t.Fatalf("ResolveManifest() error = %v", err)
	}
	if retrievalID(t, first) == retrievalID(t, second) {
		t.Error("consumed record was not rotated")
	}
}

func TestResolveManifestRotatesStaleRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	manifestID := issueAndParseManifestID(t, env, "1234")

	first, err := env.svc.ResolveManifest(ctx, manifestID, "1234", "")
	if err != nil {
		t.Fatalf("ResolveManifest() error = %v", err)
	}

	env.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	second, err := env.svc.ResolveManifest(ctx, manifestID, "1234", "")
	if err != nil {
		t.Fatalf("ResolveManifest() error = %v", err)
	}
	if retrievalID(t, first) == retrievalID(t, second) {
		t.Error("stale record was not rotated")
	}
}

func TestResolveManifestConcurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	manifestID := issueAndParseManifestID(t, env, "1234")

	const workers = 16
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := env.svc.ResolveManifest(ctx, manifestID, "1234", "")
			if err != nil {
				t.Errorf("ResolveManifest() error = %v", err)
				return
			}
			ids[i] = retrievalID(t, resp)
		}(i)
	}
	wg.Wait()

	// No rotation condition held, so every caller must see the same identity.
	for i := 1; i < workers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("concurrent resolutions minted distinct records: %q vs %q", ids[0], ids[i])
		}
	}
}

func TestRetrieveUnprotectedIsRepeatable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	manifestID := issueAndParseManifestID(t, env, "")

	for i := 0; i < 3; i++ {
		data, err := env.svc.Retrieve(ctx, manifestID)
		if err != nil {
			t.Fatalf("Retrieve() #%d error = %v", i+1, err)
		}
		if string(data) != testDocument {
			t.Fatalf("Retrieve() #%d = %q, want stored document", i+1, data)
		}
	}
}

func TestRetrieveProtectedManifestIDRejected(t *testing.T) {
	env := newTestEnv(t)
	manifestID := issueAndParseManifestID(t, env, "1234")

	_, err := env.svc.Retrieve(context.Background(), manifestID)
	if CodeOf(err) != ErrCodeInvalidRequest {
		t.Fatalf("error = %v, want %s", err, ErrCodeInvalidRequest)
	}
}

func TestRetrieveSingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	manifestID := issueAndParseManifestID(t, env, "1234")

	resp, err := env.svc.ResolveManifest(ctx, manifestID, "1234", "")
	if err != nil {
		t.Fatalf("ResolveManifest() error = %v", err)
	}
	id := retrievalID(t, resp)

	data, err := env.svc.Retrieve(ctx, id)
	if err != nil {
		t.Fatalf("first Retrieve() error = %v", err)
	}
	if string(data) != testDocument {
		t.Fatalf("Retrieve() = %q, want stored document", data)
	}

	_, err = env.svc.Retrieve(ctx, id)
	if CodeOf(err) != ErrCodeAlreadyAccessed {
		t.Fatalf("second Retrieve() error = %v, want %s", err, ErrCodeAlreadyAccessed)
	}
}

func TestRetrieveSingleUseConcurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	manifestID := issueAndParseManifestID(t, env, "1234")

	resp, err := env.svc.ResolveManifest(ctx, manifestID, "1234", "")
	if err != nil {
		t.Fatalf("ResolveManifest() error = %v", err)
	}
	id := retrievalID(t, resp)

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		consumed  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Retrieve(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch CodeOf(err) {
			case "":
				successes++
			case ErrCodeAlreadyAccessed:
				consumed++
			default:
				t.Errorf("Retrieve() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("successes = %d, want exactly 1", successes)
	}
	if consumed != workers-1 {
		t.Errorf("already-accessed = %d, want %d", consumed, workers-1)
	}
}

func TestRetrieveUnknownID(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Retrieve(context.Background(), "no-such-id")
	if CodeOf(err) != ErrCodeNotFound {
		t.Fatalf("error = %v, want %s", err, ErrCodeNotFound)
	}
}
