package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/veriface/veriface/internal/core"
	"github.com/veriface/veriface/internal/domain"
)

const contentTypeJSON = "application/json"

// Client talks to the signaling server over plain HTTP: one offer/answer
// round-trip plus fire-and-forget candidate posts.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type offerPayload struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

// ExchangeOffer posts the local offer to /offer and decodes the answer.
// Any non-2xx response is a negotiation failure.
func (c *Client) ExchangeOffer(ctx context.Context, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	body, err := json.Marshal(offerPayload{SDP: offer.SDP, Type: offer.Type.String()})
	if err != nil {
		return nil, &core.NegotiationError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/offer", bytes.NewReader(body))
	if err != nil {
		return nil, &core.NegotiationError{Err: err}
	}
	req.Header.Set("Content-Type", contentTypeJSON)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &core.NegotiationError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &core.NegotiationError{Status: resp.StatusCode}
	}

	var answer offerPayload
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, &core.NegotiationError{Err: fmt.Errorf("malformed answer: %w", err)}
	}
	if answer.Type != webrtc.SDPTypeAnswer.String() {
		return nil, &core.NegotiationError{Err: fmt.Errorf("unexpected description type %q", answer.Type)}
	}

	return &webrtc.SessionDescription{
		SDP:  answer.SDP,
		Type: webrtc.SDPTypeAnswer,
	}, nil
}

// SendCandidate posts one candidate to /ice_candidate. The response body is
// ignored beyond its status.
func (c *Client) SendCandidate(ctx context.Context, cand domain.IceCandidate) error {
	body, err := json.Marshal(cand)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ice_candidate", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentTypeJSON)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("candidate relay returned %d", resp.StatusCode)
	}
	log.Debug().Str("module", "signal").Str("type", cand.Type).Str("ip", cand.IP).Msg("candidate relayed")
	return nil
}
