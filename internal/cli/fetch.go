package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

var fetchPasscode string

var fetchCmd = &cobra.Command{
	Use:   "fetch <manifest-id>",
	Short: "Fetch the clinical document behind a link",
	Long: `Fetch the clinical document for a manifest id and print it to stdout.

Unprotected links are downloaded directly. For passcode-protected links the
manifest is resolved first and the returned single-use URL is followed`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manifestID := args[0]

		location := serverURL + "/v2/ips-json/" + manifestID
		if fetchPasscode != "" {
			resolved, err := resolveManifest(manifestID)
			if err != nil {
				return err
			}
			location = resolved
		}

		resp, err := httpClient.Get(location)
		if err != nil {
			return fmt.Errorf("retrieval request failed: %w", err)
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("retrieval failed (%d): %s", resp.StatusCode, payload)
		}

		fmt.Println(string(payload))
		return nil
	},
}

// resolveManifest exchanges the manifest id and passcode for the current
// single-use retrieval URL.
func resolveManifest(manifestID string) (string, error) {
	body, err := json.Marshal(map[string]string{"passcode": fetchPasscode})
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := httpClient.Post(serverURL+"/v2/manifests/"+manifestID, "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("manifest request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("manifest resolution failed (%d): %s", resp.StatusCode, payload)
	}

	var manifest struct {
		Files []struct {
			Location string `json:"location"`
		} `json:"files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&manifest); err != nil {
		return "", fmt.Errorf("failed to decode manifest: %w", err)
	}
	if len(manifest.Files) == 0 {
		return "", fmt.Errorf("manifest contains no files")
	}
	return manifest.Files[0].Location, nil
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchPasscode, "passcode", "p", "", "Passcode for protected links")
}
