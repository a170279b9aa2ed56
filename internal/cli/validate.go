package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <credential-string-or-file>",
	Short: "Validate a presented credential",
	Long:  `Run a credential string (or a file containing one) through the verification pipeline and print the stage report`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		credential := args[0]
		if data, err := os.ReadFile(credential); err == nil {
			credential = string(bytes.TrimSpace(data))
		}

		body, err := json.Marshal(map[string]string{"qrCodeContent": credential})
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}

		resp, err := httpClient.Post(serverURL+"/v2/vshcValidation", "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("validation request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("validation failed with status %d", resp.StatusCode)
		}

		var report json.RawMessage
		if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
			return fmt.Errorf("failed to decode report: %w", err)
		}

		pretty, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format report: %w", err)
		}
		fmt.Println(string(pretty))
		return nil
	},
}
