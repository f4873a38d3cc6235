package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/veriface/veriface/internal/core"
	"github.com/veriface/veriface/internal/domain"
)

// PeerFactory builds the peer connection for a new session.
type PeerFactory func(stunServers []string, sid string) (core.PeerLink, error)

// Options are the tunables of the handshake.
type Options struct {
	STUNServers      []string
	GatheringTimeout time.Duration
	ChannelLabel     string
}

// Manager owns the lifecycle of at most one verification session at a time:
// connection setup, the gathering race, offer/answer negotiation, the
// detection handshake and the verification handoff.
type Manager struct {
	opts      Options
	signaling core.Signaling
	verifier  core.Verifier
	media     core.MediaSource
	docs      core.DocumentSource
	peers     PeerFactory
	sinks     []core.StateSink

	mu  sync.Mutex
	cur *session
}

func NewManager(
	opts Options,
	signaling core.Signaling,
	verifier core.Verifier,
	media core.MediaSource,
	docs core.DocumentSource,
	peers PeerFactory,
	sinks ...core.StateSink,
) *Manager {
	if opts.GatheringTimeout <= 0 {
		opts.GatheringTimeout = time.Second
	}
	if opts.ChannelLabel == "" {
		opts.ChannelLabel = "faceDetection"
	}
	return &Manager{
		opts:      opts,
		signaling: signaling,
		verifier:  verifier,
		media:     media,
		docs:      docs,
		peers:     peers,
		sinks:     sinks,
	}
}

// session is the exclusive owner of the connection, the control channel, the
// media feed, the frame buffer and the result. All of its mutable fields are
// guarded by the manager mutex.
type session struct {
	id     string
	cancel context.CancelFunc
	ctx    context.Context

	state        State
	peer         core.PeerLink
	feed         core.MediaFeed
	doc          domain.IdentityDocument
	frame        []byte
	result       *domain.VerificationResult
	errMsg       string
	streaming    bool
	faceDetected bool
	inflight     int
	done         chan struct{}
}

// Start establishes a session and returns once it is active. The detection
// handshake then runs on channel events until the terminal signal; Done()
// resolves when the session terminates.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.cur != nil && m.cur.state != StateTerminated {
		m.mu.Unlock()
		return core.ErrAlreadyActive
	}

	// Precondition before any media access: the document must exist.
	doc, err := m.docs.Document()
	if err != nil {
		m.mu.Unlock()
		return err
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &session{
		id:     uuid.NewString(),
		ctx:    sctx,
		cancel: cancel,
		state:  StateIdle,
		doc:    doc,
		done:   make(chan struct{}),
	}
	m.cur = s
	m.advanceLocked(s, StateConnecting)
	m.mu.Unlock()

	log.Info().Str("module", "session").Str("sid", s.id).Str("document", doc.Name).Msg("session starting")

	feed, err := m.media.Open(sctx)
	if err != nil {
		return m.fail(s, &core.MediaAccessError{Err: err})
	}
	if !m.bind(s, func() { s.feed = feed }) {
		feed.Stop()
		return nil
	}

	peer, err := m.peers(m.opts.STUNServers, s.id)
	if err != nil {
		return m.fail(s, &core.ConnectionSetupError{Err: err})
	}
	if !m.bind(s, func() { s.peer = peer }) {
		peer.Close()
		return nil
	}
	if err := peer.Start(sctx); err != nil {
		return m.fail(s, &core.ConnectionSetupError{Err: err})
	}

	// The control channel must be part of the offer, so it is created before
	// offer generation.
	proto := NewProtocol(&sessionEvents{m: m, s: s})
	if err := peer.OpenControlChannel(m.opts.ChannelLabel, proto.Handlers()); err != nil {
		return m.fail(s, &core.ConnectionSetupError{Err: err})
	}
	if err := peer.AddLocalTrack(feed.Track()); err != nil {
		return m.fail(s, &core.ConnectionSetupError{Err: err})
	}

	gatherer := NewGatherer(m.signaling, m.opts.GatheringTimeout)
	peer.OnICECandidate(func(cand *webrtc.ICECandidate) {
		gatherer.HandleCandidate(sctx, cand)
	})

	if _, err := peer.CreateAndSetOffer(); err != nil {
		return m.fail(s, &core.ConnectionSetupError{Err: err})
	}
	if !m.advance(s, StateIceGathering) {
		return nil
	}

	gatherer.Wait(sctx, peer.GatheringComplete())
	if !m.advance(s, StateNegotiating) {
		return nil
	}

	answer, err := m.signaling.ExchangeOffer(sctx, *peer.LocalDescription())
	if err != nil {
		return m.fail(s, err)
	}
	if err := peer.ApplyAnswer(*answer); err != nil {
		return m.fail(s, &core.NegotiationError{Err: err})
	}
	if !m.advance(s, StateActive) {
		return nil
	}

	log.Info().Str("module", "session").Str("sid", s.id).Msg("session active")
	return nil
}

// Stop tears the current session down. Always succeeds and is safe to call
// repeatedly or with no session at all.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return
	}
	m.teardownLocked(m.cur)
}

// Done resolves when the current session terminates. With no session it
// resolves immediately.
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return m.cur.done
}

// Snapshot returns the current read-only view of the session.
func (m *Manager) Snapshot() core.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return core.Snapshot{State: StateIdle.String()}
	}
	return m.snapshotLocked(m.cur)
}

// bind runs fn under the lock if s is still the live session.
func (m *Manager) bind(s *session, fn func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.aliveLocked(s) {
		return false
	}
	fn()
	return true
}

func (m *Manager) aliveLocked(s *session) bool {
	return m.cur == s && s.state != StateTerminated
}

func (m *Manager) advance(s *session, to State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.advanceLocked(s, to)
}

func (m *Manager) advanceLocked(s *session, to State) bool {
	if !m.aliveLocked(s) {
		return false
	}
	if !s.state.canTransition(to) {
		log.Error().Str("module", "session").Str("sid", s.id).
			Str("from", s.state.String()).Str("to", to.String()).Msg("illegal transition rejected")
		return false
	}
	s.state = to
	if to == StateActive {
		// The preview becomes available to collaborators once negotiation
		// finishes.
		s.streaming = true
	}
	m.publishLocked(s)
	return true
}

// fail records a fatal error, tears the session down and returns the error.
func (m *Manager) fail(s *session, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.aliveLocked(s) {
		return nil
	}
	log.Error().Err(err).Str("module", "session").Str("sid", s.id).Msg("session failed")
	s.errMsg = err.Error()
	m.teardownLocked(s)
	return err
}

// teardownLocked releases every acquired resource exactly once.
func (m *Manager) teardownLocked(s *session) {
	if s.state == StateTerminated {
		return
	}
	s.state = StateTerminated
	s.streaming = false
	if s.feed != nil {
		s.feed.Stop()
	}
	if s.peer != nil {
		s.peer.Close()
	}
	s.cancel()
	close(s.done)
	m.publishLocked(s)
	log.Info().Str("module", "session").Str("sid", s.id).Msg("session terminated")
}

func (m *Manager) snapshotLocked(s *session) core.Snapshot {
	return core.Snapshot{
		SessionID:    s.id,
		State:        s.state.String(),
		Streaming:    s.streaming,
		FaceDetected: s.faceDetected,
		Verifying:    s.inflight > 0,
		Error:        s.errMsg,
		Result:       s.result,
		Frame:        s.frame,
	}
}

func (m *Manager) publishLocked(s *session) {
	snap := m.snapshotLocked(s)
	for _, sink := range m.sinks {
		sink.Publish(snap)
	}
}
