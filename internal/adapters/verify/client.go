package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/veriface/veriface/internal/core"
	"github.com/veriface/veriface/internal/domain"
)

// Field names fixed by the verification endpoint contract.
const (
	fieldDocument = "id_document"
	fieldPortrait = "portrait"
)

// Client posts the identity document and the captured portrait to the
// verification endpoint as a single multipart request.
type Client struct {
	endpoint string
	http     *http.Client
}

func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Verify(ctx context.Context, req domain.VerificationRequest) (*domain.VerificationResult, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	doc, err := w.CreateFormFile(fieldDocument, req.Document.Name)
	if err != nil {
		return nil, fmt.Errorf("build %s part: %w", fieldDocument, err)
	}
	if _, err := doc.Write(req.Document.Data); err != nil {
		return nil, fmt.Errorf("write %s part: %w", fieldDocument, err)
	}

	portrait, err := w.CreateFormFile(fieldPortrait, req.Portrait.Name)
	if err != nil {
		return nil, fmt.Errorf("build %s part: %w", fieldPortrait, err)
	}
	if _, err := portrait.Write(req.Portrait.Data); err != nil {
		return nil, fmt.Errorf("write %s part: %w", fieldPortrait, err)
	}

	if err := w.Close(); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &buf)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &core.VerificationTransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Warn().Str("module", "verify").Int("status", resp.StatusCode).Bytes("body", body).Msg("verification rejected at transport level")
		return nil, &core.VerificationTransportError{Status: resp.StatusCode}
	}

	var result domain.VerificationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &core.VerificationTransportError{Err: fmt.Errorf("malformed result: %w", err)}
	}

	log.Info().Str("module", "verify").Bool("legit", result.Verification.Legit).Str("timestamp", result.Verification.Timestamp).Msg("verification result received")
	return &result, nil
}
