//go:build integration

package integration

// Test environment setup and server lifecycle management.
//
// The integration tests start the vshc-server HTTP server with a temporary
// database and run tests against it. Each test creates an empty temporary
// database and applies all the migrations so the schema reflects the latest
// code. The database is dropped after each test.
//
// The server signs with a throwaway DSC key generated per test; a stub trust
// list server publishes the matching certificate so validation succeeds.
//
// By default the server logs are not included in the test output, you can
// enable them with:
//
//	ENABLE_SERVER_LOGS=true go test -tags=integration -v ./test/integration

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/entomo-labs/gdhcn-validator-go/app/internal/blob"
	"github.com/entomo-labs/gdhcn-validator-go/app/internal/config"
	"github.com/entomo-labs/gdhcn-validator-go/app/internal/gdhcn"
	"github.com/entomo-labs/gdhcn-validator-go/app/internal/logger"
	"github.com/entomo-labs/gdhcn-validator-go/app/internal/server"
	"github.com/entomo-labs/gdhcn-validator-go/app/internal/store"
	"github.com/entomo-labs/gdhcn-validator-go/app/internal/trust"
)

const (
	testCountry = "XCL"
	testKID     = "integration-kid"
)

// testEnv provides access to the test db and server for integration tests
type testEnv struct {
	baseURL  string
	pool     *pgxpool.Pool
	shutdown func()
}

// startInProcessServer starts the vshc-server in-process for testing -
// returns the env carrying the base URL for the API and a shutdown function
func startInProcessServer(t *testing.T) *testEnv {
	t.Helper()

	testEnv := &testEnv{}

	t.Log("Starting in-process server...")

	var (
		ctx      = context.Background()
		host     = "localhost"
		port     = findFreePort(t)
		logLevel = logger.ParseLogLevel("none")
	)

	if os.Getenv("ENABLE_SERVER_LOGS") == "true" {
		logLevel = logger.ParseLogLevel("debug")
	}

	testEnv.pool = setupTestDatabase(t)
	testDatabaseURL := testEnv.pool.Config().ConnString()

	signingKey, keyPath := generateSigningKey(t)
	trustSrv := startTrustListServer(t, signingKey)

	baseURL := fmt.Sprintf("http://%s:%d", host, port)

	// Set environment variables before calling NewServerConfig
	testEnvVars := map[string]string{
		"HOST":           host,
		"PORT":           fmt.Sprintf("%d", port),
		"ENVIRONMENT":    "test",
		"LOG_LEVEL":      logLevel.String(),
		"RATE_LIMIT_RPS": "0",

		"DATABASE_URL": testDatabaseURL,
		"BLOB_BACKEND": "memory",

		"BASE_URL":     baseURL,
		"COUNTRY_CODE": testCountry,
		"DSC_KEY_PATH": keyPath,
		"DSC_KID":      testKID,
		"TNG_BASE_URL": trustSrv.URL,

		"MANIFEST_TTL_MINUTES": "60",
	}

	originalEnvVars := make(map[string]string)
	for key, value := range testEnvVars {
		originalEnvVars[key] = os.Getenv(key)
		os.Setenv(key, value)
	}

	t.Cleanup(func() {
		for key, original := range originalEnvVars {
			if original != "" {
				os.Setenv(key, original)
			} else {
				os.Unsetenv(key)
			}
		}
	})

	cfg, err := config.NewServerConfig()
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger := logger.InitLogger(logLevel, "test")

	if err := store.Migrate(ctx, testEnv.pool); err != nil {
		t.Fatalf("Failed to apply database migrations: %v", err)
	}

	resolver := trust.NewResolver(trust.NewTNGClient(cfg.TNGBaseURL, cfg.TNGFetchTimeout), appLogger)
	pgStore := store.NewPostgresStore(testEnv.pool)
	service := gdhcn.NewService(
		gdhcn.Config{
			BaseURL:     cfg.BaseURL,
			CountryCode: cfg.CountryCode,
			KeyID:       cfg.DSCKeyID,
			ManifestTTL: gdhcn.ManifestTTLFromMinutes(cfg.ManifestTTLMinutes),
		},
		signingKey,
		pgStore,
		pgStore.IpsFiles(),
		pgStore.RecipientKeys(),
		blob.NewMemoryStore(),
		resolver,
		appLogger,
	)

	serverInstance, err := server.NewServer(testEnv.pool, cfg, appLogger, service, &signingKey.PublicKey)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	serverCtx, serverCancel := context.WithCancel(ctx)

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := serverInstance.Start(serverCtx); err != nil {
			serverDone <- err
		}
	}()

	testEnv.shutdown = func() {
		t.Log("Stopping server...")

		serverCancel()

		select {
		case err := <-serverDone:
			if err != nil {
				t.Logf("❌ Server shutdown with error: %v", err)
			} else {
				t.Log("✅ Server shut down gracefully")
			}
		case <-time.After(5 * time.Second):
			t.Log("⚠️ Server shutdown timeout")
		}
	}

	testEnv.baseURL = baseURL

	if !waitForServer(t, testEnv.baseURL+"/health", 30*time.Second) {
		t.Fatal("Server failed to start within timeout")
	}

	t.Log("✅ Server started")
	return testEnv
}

// generateSigningKey creates a throwaway DSC key and writes it as PEM so the
// server config can point at it.
func generateSigningKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate signing key: %v", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("Failed to marshal signing key: %v", err)
	}

	keyPath := filepath.Join(t.TempDir(), "dsc.key.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(keyPath, data, 0600); err != nil {
		t.Fatalf("Failed to write signing key: %v", err)
	}
	return key, keyPath
}

// startTrustListServer publishes a self-signed certificate for the signing
// key in the trust list format the resolver expects.
func startTrustListServer(t *testing.T, key *ecdsa.PrivateKey) *httptest.Server {
	t.Helper()

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "DSC " + testCountry},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("Failed to create DSC certificate: %v", err)
	}

	entry := fmt.Sprintf(`[{"kid":%q,"country":%q,"certificateType":"DSC","rawData":%q}]`,
		testKID, testCountry, base64.StdEncoding.EncodeToString(der))

	mux := http.NewServeMux()
	mux.HandleFunc("/trustList/DSC/"+testCountry, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(entry))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func findFreePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("Failed to find free port: %v", err)
	}
	defer listener.Close()

	addr := listener.Addr().(*net.TCPAddr)
	return addr.Port
}

func waitForServer(t *testing.T, url string, timeout time.Duration) bool {
	t.Helper()

	client := &http.Client{Timeout: 1 * time.Second}
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return true
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}

// Test database configuration

type databaseConfig struct {
	userAndPassword string
	dbname          string
	host            string
	port            int
}

func (d *databaseConfig) connectionURL() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s?sslmode=disable",
		d.userAndPassword, d.host, d.port, d.dbname)
}

func (d *databaseConfig) WithDatabase(dbname string) *databaseConfig {
	return &databaseConfig{
		userAndPassword: d.userAndPassword,
		host:            d.host,
		port:            d.port,
		dbname:          dbname,
	}
}

func localDatabaseConfig() *databaseConfig {
	return &databaseConfig{
		userAndPassword: "vshc-dev",
		dbname:          "tmp_vshc_integration_test",
		host:            "localhost",
		port:            15433,
	}
}

func ciDatabaseConfig() *databaseConfig {
	return &databaseConfig{
		userAndPassword: "postgres:postgres",
		dbname:          "tmp_vshc_integration_test",
		host:            "localhost",
		port:            5432,
	}
}

// setupTestDatabase creates an empty test db and returns a connection pool.
// The function auto-detects if it is running in CI (github actions) and uses
// the appropriate database config.
func setupTestDatabase(t *testing.T) *pgxpool.Pool {
	ctx := context.Background()
	config := databaseConfig{}

	if os.Getenv("GITHUB_ACTIONS") == "true" {
		config = *ciDatabaseConfig()
	} else {
		config = *localDatabaseConfig()
	}

	postgresConfig := config.WithDatabase("postgres")
	postgresConnectionURL := postgresConfig.connectionURL()

	// We manually manage this pool's lifecycle because it needs to stay open
	// until after we drop the test database in cleanup.
	postgresPoolConfig, err := pgxpool.ParseConfig(postgresConnectionURL)
	if err != nil {
		t.Fatalf("Failed to parse postgres database URL: %v", err)
	}

	postgresPool, err := pgxpool.NewWithConfig(ctx, postgresPoolConfig)
	if err != nil {
		t.Fatalf("Unable to create postgres connection pool: %v", err)
	}

	if err := postgresPool.Ping(ctx); err != nil {
		t.Fatalf("Can't ping PostgreSQL server %s", postgresConnectionURL)
	}

	_, err = postgresPool.Exec(ctx, "DROP DATABASE IF EXISTS "+config.dbname)
	if err != nil {
		t.Fatalf("DROP DATABASE IF EXISTS Failed : %v", err)
	}

	_, err = postgresPool.Exec(ctx, "CREATE DATABASE "+config.dbname)
	if err != nil {
		t.Fatalf("CREATE DATABASE Failed : %v", err)
	}

	t.Cleanup(func() {
		postgresPool.Close()
	})

	t.Cleanup(func() {
		_, err := postgresPool.Exec(ctx, "DROP DATABASE "+config.dbname)
		if err != nil {
			t.Fatalf("Failed to drop test database: %v", err)
		}
	})

	testDatabaseURL := config.connectionURL()
	testDatabasePool := setupDatabaseConn(t, testDatabaseURL)

	t.Logf("Database ready: %s", config.dbname)

	return testDatabasePool
}

func setupDatabaseConn(t *testing.T, databaseURL string) *pgxpool.Pool {
	t.Helper()

	ctx := context.Background()
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		t.Fatalf("Failed to parse database URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		t.Fatalf("Unable to create connection pool: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
	})

	return pool
}
