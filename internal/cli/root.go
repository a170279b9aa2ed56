// Package cli implements the vshc client commands for exercising a running
// credential service: issuing, validating and fetching linked documents.
package cli

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/entomo-labs/gdhcn-validator-go/app/internal/version"
)

var (
	serverURL  string
	httpClient = &http.Client{Timeout: 30 * time.Second}
)

var rootCmd = &cobra.Command{
	Use:               "vshc",
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	Short:             "Health certificate service CLI",
	Long:              `vshc is a client for the credential service: issue certificates, validate presented QR content and fetch the linked clinical documents`,
}

func Execute() {
	v := version.Get()
	rootCmd.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", defaultServerURL(), "Base URL of the credential service")

	rootCmd.AddCommand(issueCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(fetchCmd)
}

func defaultServerURL() string {
	if url := os.Getenv("VSHC_SERVER"); url != "" {
		return url
	}
	return "http://localhost:8080"
}
