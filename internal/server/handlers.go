package server

// handlers.go implements the credential API endpoints: issuance, validation,
// manifest resolution and document retrieval.

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/entomo-labs/gdhcn-validator-go/app/internal/gdhcn"
)

// IssuanceRequest is the body of POST /v2/vshcIssuance.
type IssuanceRequest struct {
	// JSONContent is the clinical document (IPS JSON) to link to.
	JSONContent json.RawMessage `json:"jsonContent"`

	// PassCode, when set, makes the issued link passcode protected.
	PassCode string `json:"passCode,omitempty"`

	// ExpiresOn is an optional expiry, RFC 3339 or calendar date (2006-01-02).
	ExpiresOn string `json:"expiresOn,omitempty"`
}

// ValidationRequest is the body of POST /v2/vshcValidation.
type ValidationRequest struct {
	QRCodeContent string `json:"qrCodeContent"`
}

// ManifestRequest is the body of POST /v2/manifests/{manifestId}.
type ManifestRequest struct {
	PassCode  string `json:"passcode"`
	Recipient string `json:"recipient,omitempty"`
}

// parseExpiresOn accepts an RFC 3339 timestamp or a bare calendar date.
func parseExpiresOn(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Server) handleIssuance(w http.ResponseWriter, r *http.Request) {
	var req IssuanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithBadRequest(w, r, "invalid request body")
		return
	}

	expiresOn, err := parseExpiresOn(req.ExpiresOn)
	if err != nil {
		RespondWithBadRequest(w, r, "expiresOn must be an RFC 3339 timestamp or YYYY-MM-DD date")
		return
	}

	credential, err := s.service.Issue(r.Context(), req.JSONContent, req.PassCode, expiresOn)
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(credential))
}

func (s *Server) handleValidation(w http.ResponseWriter, r *http.Request) {
	var req ValidationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithBadRequest(w, r, "invalid request body")
		return
	}
	if req.QRCodeContent == "" {
		RespondWithBadRequest(w, r, "qrCodeContent is required")
		return
	}

	report := s.service.VerifyCredential(r.Context(), req.QRCodeContent)
	RespondWithJSONPayload(w, http.StatusOK, report)
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	manifestID := chi.URLParam(r, "manifestId")

	var req ManifestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithBadRequest(w, r, "invalid request body")
		return
	}

	resp, err := s.service.ResolveManifest(r.Context(), manifestID, req.PassCode, req.Recipient)
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	RespondWithJSONPayload(w, http.StatusOK, resp)
}

func (s *Server) handleIPSJSON(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	data, err := s.service.Retrieve(r.Context(), id)
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", gdhcn.IPSContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
