package session

import (
	"github.com/rs/zerolog/log"

	"github.com/veriface/veriface/internal/domain"
)

// sessionEvents routes protocol events into the manager. Every handler
// re-checks that its session is still the live one before touching state:
// a callback firing after teardown must be a no-op.
type sessionEvents struct {
	m *Manager
	s *session
}

// OnFrame buffers the frame and triggers an independent verification
// attempt. Re-invoked on every frame until the terminal signal; attempts are
// not ordered with respect to each other.
func (e *sessionEvents) OnFrame(frame []byte) {
	m, s := e.m, e.s

	m.mu.Lock()
	if !m.aliveLocked(s) || s.faceDetected {
		m.mu.Unlock()
		return
	}
	s.frame = frame
	s.inflight++
	m.publishLocked(s)
	m.mu.Unlock()

	go m.verifyFrame(s, frame)
}

// OnFaceDetected ends the detection phase: capture stops, the preview goes
// away and the session moves to Verifying. Idempotent.
func (e *sessionEvents) OnFaceDetected() {
	m, s := e.m, e.s

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.aliveLocked(s) || s.faceDetected {
		return
	}
	s.faceDetected = true
	s.streaming = false
	if s.feed != nil {
		s.feed.Stop()
	}
	m.advanceLocked(s, StateVerifying)
	// With no handoff in flight there is nothing left to wait for; the last
	// stored result stands.
	if s.inflight == 0 {
		m.teardownLocked(s)
	}
}

// OnChannelClosed before the terminal signal is an implicit session end.
func (e *sessionEvents) OnChannelClosed() {
	m, s := e.m, e.s

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.aliveLocked(s) {
		return
	}
	log.Warn().Str("module", "session").Str("sid", s.id).Msg("channel closed before face detection, ending session")
	m.teardownLocked(s)
}

// verifyFrame issues one verification call for one frame. A transport
// failure is transient: it is surfaced but the session stays active and the
// next frame retries on its own. The result is applied last-write-wins, even
// when it resolves after the terminal signal — but never after teardown.
func (m *Manager) verifyFrame(s *session, frame []byte) {
	req := domain.VerificationRequest{
		Document: s.doc,
		Portrait: domain.NewPortrait(frame),
	}
	result, err := m.verifier.Verify(s.ctx, req)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur != s || s.state == StateTerminated {
		// Stale completion after stop: no state writes.
		return
	}
	s.inflight--
	if err != nil {
		log.Warn().Err(err).Str("module", "session").Str("sid", s.id).Msg("verification attempt failed")
		s.errMsg = err.Error()
	} else {
		s.result = result
		s.errMsg = ""
	}
	m.publishLocked(s)

	if s.state == StateVerifying && s.inflight == 0 {
		m.teardownLocked(s)
	}
}
