package core

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/veriface/veriface/internal/domain"
)

// Signaling delivers the offer/answer exchange and the fire-and-forget
// candidate relay. Owned by the adapter; safe for concurrent use.
type Signaling interface {
	// ExchangeOffer posts the local offer and returns the remote answer.
	ExchangeOffer(ctx context.Context, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	// SendCandidate relays one gathered candidate. Errors are reported but
	// must never abort the session.
	SendCandidate(ctx context.Context, c domain.IceCandidate) error
}

// Verifier issues a single identity-verification call.
type Verifier interface {
	Verify(ctx context.Context, req domain.VerificationRequest) (*domain.VerificationResult, error)
}

// DocumentSource supplies the identity document acquired before the session
// starts. Returns ErrMissingDocument when nothing was provided.
type DocumentSource interface {
	Document() (domain.IdentityDocument, error)
}

// MediaFeed is an open local capture: one video track plus its stop handle.
type MediaFeed interface {
	Track() webrtc.TrackLocal
	// Stop releases the capture device. Safe to call more than once.
	Stop()
}

// MediaSource acquires local media. Exactly one Open per session.
type MediaSource interface {
	Open(ctx context.Context) (MediaFeed, error)
}

// ChannelHandlers are the callbacks a PeerLink wires onto the control
// channel. send delivers a text message to the remote peer.
type ChannelHandlers struct {
	OnOpen    func(send func(msg string) error)
	OnMessage func(data []byte)
	OnClose   func()
}

// PeerLink abstracts the peer connection for the session manager.
// The production implementation wraps a pion PeerConnection.
type PeerLink interface {
	// Start binds lifecycle logging and the connection lifetime to ctx.
	Start(ctx context.Context) error
	// OpenControlChannel creates the ordered reliable channel carried in the
	// offer and attaches h to it. Called once, before the offer is created.
	OpenControlChannel(label string, h ChannelHandlers) error
	AddLocalTrack(track webrtc.TrackLocal) error
	// OnICECandidate sets the callback for locally gathered candidates.
	OnICECandidate(fn func(*webrtc.ICECandidate))
	// CreateAndSetOffer produces the local offer and starts ICE gathering.
	CreateAndSetOffer() (*webrtc.SessionDescription, error)
	// GatheringComplete resolves when the local agent finished gathering.
	GatheringComplete() <-chan struct{}
	LocalDescription() *webrtc.SessionDescription
	ApplyAnswer(answer webrtc.SessionDescription) error
	Close()
}

// StateSink is the read-only renderer collaborator: it consumes session
// snapshots and feeds nothing back into the core.
type StateSink interface {
	Publish(s Snapshot)
}
