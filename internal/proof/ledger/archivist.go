package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/xyo-geohacker/chaincheck-sub003/internal/chain"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/proof/models"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/domain"
	dErrors "github.com/xyo-geohacker/chaincheck-sub003/pkg/domain-errors"
)

// ArchivistSource queries the archival index over its HTTP API. It is a
// fallback read path only; inserts route to the archivist's submission
// endpoint which in turn forwards to the ledger.
type ArchivistSource struct {
	baseURL string
	client  *http.Client
}

// NewArchivistSource builds the archival source. timeout bounds each call.
func NewArchivistSource(baseURL string, timeout time.Duration) *ArchivistSource {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &ArchivistSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *ArchivistSource) Name() string { return "archivist" }

// Insert forwards the payload to the archivist submission endpoint.
func (s *ArchivistSource) Insert(ctx context.Context, payload models.ProofPayload) (*InsertResult, error) {
	var result struct {
		Hash        domain.Hash `json:"hash"`
		BlockNumber uint64      `json:"blockNumber"`
	}
	if err := s.do(ctx, http.MethodPost, "/api/payloads", payload, &result); err != nil {
		return nil, err
	}
	return &InsertResult{ProofHash: result.Hash, BlockNumber: result.BlockNumber}, nil
}

// Fetch retrieves a previously archived payload set by hash.
func (s *ArchivistSource) Fetch(ctx context.Context, hash domain.Hash) (json.RawMessage, error) {
	var payload json.RawMessage
	if err := s.do(ctx, http.MethodGet, "/api/payloads/"+url.PathEscape(hash.String()), nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Validate asks the archivist to re-check the stored payload against its hash.
func (s *ArchivistSource) Validate(ctx context.Context, hash domain.Hash) (*Validation, error) {
	var result struct {
		Valid  bool     `json:"valid"`
		Errors []string `json:"errors"`
	}
	if err := s.do(ctx, http.MethodGet, "/api/payloads/"+url.PathEscape(hash.String())+"/validate", nil, &result); err != nil {
		return nil, err
	}
	return &Validation{Valid: result.Valid, Errors: result.Errors}, nil
}

func (s *ArchivistSource) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode archivist request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build archivist request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeTransient, "archivist unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return chain.ErrNotFound
	case resp.StatusCode >= 500:
		return dErrors.Newf(dErrors.CodeTransient, "archivist returned status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return dErrors.Newf(dErrors.CodeValidation, "archivist rejected request with status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTransient, "decode archivist response")
	}
	return nil
}
