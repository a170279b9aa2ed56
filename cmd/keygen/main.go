// keygen is a CLI tool for generating DSC signing keys for testing and
// deployment bootstrap.
package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/entomo-labs/gdhcn-validator-go/app/internal/version"
)

// file naming convention - name.key.pem and name.cert.pem
const (
	privateKeyFileNameFormat  = "%s.key.pem"
	certificateFileNameFormat = "%s.cert.pem"
)

var (
	name      string
	country   string
	outputDir string
	validDays int
)

func main() {
	rootCmd := &cobra.Command{
		Use:               "keygen",
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		Short:             "DSC key generator for credential issuers",
		Long:              "Generate an ECDSA P-256 document signer key pair and a self-signed certificate for trust-network onboarding",
	}

	v := version.Get()
	rootCmd.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new DSC key pair",
		Long:  "Generate an ECDSA P-256 key pair in PEM format plus a self-signed X.509 certificate",
		RunE:  runGenerate,
	}

	generateCmd.Flags().StringVarP(&name, "name", "n", "", "Base name for the generated files [required]")
	generateCmd.Flags().StringVarP(&country, "country", "c", "", "Issuing country code for the certificate subject [required]")
	generateCmd.Flags().StringVarP(&outputDir, "outputdir", "o", "", "Output directory for generated keys [required]")
	generateCmd.Flags().IntVarP(&validDays, "days", "d", 730, "Certificate validity in days (default: 730)")
	generateCmd.MarkFlagRequired("name")
	generateCmd.MarkFlagRequired("country")
	generateCmd.MarkFlagRequired("outputdir")

	rootCmd.AddCommand(generateCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if len(country) != 2 && len(country) != 3 {
		return fmt.Errorf("invalid country code: %s (must be 2 or 3 characters)", country)
	}

	// make the directory if it doesn't exist
	if _, err := os.Stat(outputDir); os.IsNotExist(err) {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	fmt.Printf("Generating ECDSA P-256 key pair for %s\n", name)

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}
	keyPath := filepath.Join(outputDir, fmt.Sprintf(privateKeyFileNameFormat, name))
	if err := writePEM(keyPath, "PRIVATE KEY", keyDER, 0600); err != nil {
		return fmt.Errorf("failed to save private key: %w", err)
	}
	fmt.Printf("✓ Private key: %s\n", keyPath)

	certDER, err := selfSignedCertificate(privateKey)
	if err != nil {
		return fmt.Errorf("failed to create certificate: %w", err)
	}
	certPath := filepath.Join(outputDir, fmt.Sprintf(certificateFileNameFormat, name))
	if err := writePEM(certPath, "CERTIFICATE", certDER, 0644); err != nil {
		return fmt.Errorf("failed to save certificate: %w", err)
	}

	// The trust network identifies DSCs by the first 8 bytes of the
	// certificate's SHA-256 fingerprint.
	sum := sha256.Sum256(certDER)
	kid := base64.StdEncoding.EncodeToString(sum[:8])
	fmt.Printf("✓ Certificate: %s (kid: %s)\n", certPath, kid)

	return nil
}

func selfSignedCertificate(key *ecdsa.PrivateKey) ([]byte, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName: fmt.Sprintf("DSC %s %s", country, name),
			Country:    []string{country},
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().AddDate(0, 0, validDays),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}

	return x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
}

func writePEM(path, blockType string, der []byte, mode os.FileMode) error {
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	return os.WriteFile(path, data, mode)
}
