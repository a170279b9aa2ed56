package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var (
	issuePasscode  string
	issueExpiresOn string
)

var issueCmd = &cobra.Command{
	Use:   "issue <ips-json-file>",
	Short: "Issue a credential for a clinical document",
	Long:  `Issue a signed credential wrapping a SMART Health Link to the given IPS JSON document. The credential string is printed to stdout for QR encoding`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		document, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read document: %w", err)
		}
		if !json.Valid(document) {
			return fmt.Errorf("%s is not valid JSON", args[0])
		}

		body, err := json.Marshal(map[string]any{
			"jsonContent": json.RawMessage(document),
			"passCode":    issuePasscode,
			"expiresOn":   issueExpiresOn,
		})
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}

		resp, err := httpClient.Post(serverURL+"/v2/vshcIssuance", "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("issuance request failed: %w", err)
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("issuance failed (%d): %s", resp.StatusCode, payload)
		}

		fmt.Println(string(payload))
		return nil
	},
}

func init() {
	issueCmd.Flags().StringVarP(&issuePasscode, "passcode", "p", "", "Protect the link with a passcode")
	issueCmd.Flags().StringVarP(&issueExpiresOn, "expires", "e", "", "Expiry as RFC 3339 timestamp or YYYY-MM-DD")
}
