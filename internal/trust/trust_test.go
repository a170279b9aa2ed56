package trust

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testCertificate(t *testing.T) (*ecdsa.PrivateKey, []byte) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("could not generate key: %v", err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "XCL DSC 1", Country: []string{"XC"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("could not create certificate: %v", err)
	}
	return key, der
}

func trustListServer(t *testing.T, entries []trustListEntry) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/trustList/DSC/XCL" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(entries); err != nil {
			t.Errorf("failed to encode trust list: %v", err)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestTNGClientFetchCertificate(t *testing.T) {
	key, der := testCertificate(t)

	server := trustListServer(t, []trustListEntry{
		{Kid: "other-kid", Country: "XCL", CertificateType: "DSC", RawData: base64.StdEncoding.EncodeToString([]byte("bogus"))},
		{Kid: "kid-1", Country: "XCL", CertificateType: "DSC", RawData: base64.StdEncoding.EncodeToString(der)},
	})

	client := NewTNGClient(server.URL, 5*time.Second)

	got, err := client.FetchCertificate(context.Background(), "XCL", "kid-1")
	if err != nil {
		t.Fatalf("FetchCertificate failed: %v", err)
	}

	cert, err := x509.ParseCertificate(got)
	if err != nil {
		t.Fatalf("returned bytes are not a certificate: %v", err)
	}
	pub, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok || !pub.Equal(&key.PublicKey) {
		t.Error("certificate public key does not match the signer key")
	}
}

func TestTNGClientUnknownKid(t *testing.T) {
	_, der := testCertificate(t)
	server := trustListServer(t, []trustListEntry{
		{Kid: "kid-1", Country: "XCL", CertificateType: "DSC", RawData: base64.StdEncoding.EncodeToString(der)},
	})

	client := NewTNGClient(server.URL, 5*time.Second)

	_, err := client.FetchCertificate(context.Background(), "XCL", "missing-kid")
	if !errors.Is(err, ErrCertificateNotFound) {
		t.Errorf("expected ErrCertificateNotFound, got %v", err)
	}
}

func TestTNGClientUnknownIssuer(t *testing.T) {
	server := trustListServer(t, nil)
	client := NewTNGClient(server.URL, 5*time.Second)

	_, err := client.FetchCertificate(context.Background(), "ZZZ", "kid-1")
	if !errors.Is(err, ErrCertificateNotFound) {
		t.Errorf("expected ErrCertificateNotFound, got %v", err)
	}
}

func TestTNGClientTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(server.Close)

	client := NewTNGClient(server.URL, 20*time.Millisecond)

	_, err := client.FetchCertificate(context.Background(), "XCL", "kid-1")
	if err == nil {
		t.Fatal("expected a timeout error")
	}
}

func TestResolverResolvePublicKey(t *testing.T) {
	key, der := testCertificate(t)
	server := trustListServer(t, []trustListEntry{
		{Kid: "kid-1", Country: "XCL", CertificateType: "DSC", RawData: base64.StdEncoding.EncodeToString(der)},
	})

	resolver := NewResolver(NewTNGClient(server.URL, 5*time.Second), slog.Default())

	pub, err := resolver.ResolvePublicKey(context.Background(), "XCL", "kid-1")
	if err != nil {
		t.Fatalf("ResolvePublicKey failed: %v", err)
	}

	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok || !ecPub.Equal(&key.PublicKey) {
		t.Error("resolved key does not match the certificate key")
	}
}

type failingFetcher struct{}

func (failingFetcher) FetchCertificate(context.Context, string, string) ([]byte, error) {
	return nil, fmt.Errorf("connection refused")
}

func TestResolverFetchFailure(t *testing.T) {
	resolver := NewResolver(failingFetcher{}, slog.Default())

	if _, err := resolver.ResolvePublicKey(context.Background(), "XCL", "kid-1"); err == nil {
		t.Error("expected an error when the fetcher fails")
	}
}

func TestResolverBadCertificate(t *testing.T) {
	server := trustListServer(t, []trustListEntry{
		{Kid: "kid-1", Country: "XCL", CertificateType: "DSC", RawData: base64.StdEncoding.EncodeToString([]byte("not DER"))},
	})

	resolver := NewResolver(NewTNGClient(server.URL, 5*time.Second), slog.Default())

	if _, err := resolver.ResolvePublicKey(context.Background(), "XCL", "kid-1"); err == nil {
		t.Error("expected an error for an unparseable certificate")
	}
}
