package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriface/veriface/internal/core"
	"github.com/veriface/veriface/internal/domain"
)

type fakeFeed struct {
	stops atomic.Int32
}

func (f *fakeFeed) Track() webrtc.TrackLocal { return nil }
func (f *fakeFeed) Stop()                    { f.stops.Add(1) }

type fakeMedia struct {
	feed  *fakeFeed
	err   error
	opens atomic.Int32
}

func (m *fakeMedia) Open(context.Context) (core.MediaFeed, error) {
	m.opens.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.feed, nil
}

type fakeDocs struct {
	err error
}

func (d fakeDocs) Document() (domain.IdentityDocument, error) {
	if d.err != nil {
		return domain.IdentityDocument{}, d.err
	}
	return domain.IdentityDocument{Name: "passport.png", Data: []byte("document-bytes")}, nil
}

type fakePeer struct {
	mu          sync.Mutex
	handlers    core.ChannelHandlers
	onICE       func(*webrtc.ICECandidate)
	gather      chan struct{}
	local       webrtc.SessionDescription
	applied     *webrtc.SessionDescription
	applyErr    error
	emitOnOffer []*webrtc.ICECandidate
	closes      atomic.Int32
}

func (f *fakePeer) Start(context.Context) error { return nil }

func (f *fakePeer) OpenControlChannel(_ string, h core.ChannelHandlers) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = h
	return nil
}

func (f *fakePeer) AddLocalTrack(webrtc.TrackLocal) error { return nil }

func (f *fakePeer) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onICE = fn
}

func (f *fakePeer) CreateAndSetOffer() (*webrtc.SessionDescription, error) {
	f.mu.Lock()
	f.local = webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\n"}
	onICE := f.onICE
	f.mu.Unlock()
	// Setting the local description starts gathering.
	for _, c := range f.emitOnOffer {
		onICE(c)
	}
	return &f.local, nil
}

func (f *fakePeer) GatheringComplete() <-chan struct{} { return f.gather }

func (f *fakePeer) LocalDescription() *webrtc.SessionDescription { return &f.local }

func (f *fakePeer) ApplyAnswer(a webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = &a
	return f.applyErr
}

func (f *fakePeer) Close() { f.closes.Add(1) }

func (f *fakePeer) channel() core.ChannelHandlers {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers
}

type fakeVerifier struct {
	mu      sync.Mutex
	reqs    []domain.VerificationRequest
	result  *domain.VerificationResult
	err     error
	release chan struct{}
}

func (v *fakeVerifier) Verify(_ context.Context, req domain.VerificationRequest) (*domain.VerificationResult, error) {
	v.mu.Lock()
	v.reqs = append(v.reqs, req)
	release := v.release
	result, err := v.result, v.err
	v.mu.Unlock()
	if release != nil {
		<-release
	}
	return result, err
}

func (v *fakeVerifier) calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.reqs)
}

func (v *fakeVerifier) set(result *domain.VerificationResult, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.result, v.err = result, err
}

type collectingSink struct {
	mu    sync.Mutex
	snaps []core.Snapshot
}

func (c *collectingSink) Publish(s core.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps = append(c.snaps, s)
}

type fixture struct {
	manager  *Manager
	peer     *fakePeer
	media    *fakeMedia
	verifier *fakeVerifier
	sig      *recordingSignaling
	sink     *collectingSink
}

func legitResult() *domain.VerificationResult {
	return &domain.VerificationResult{
		Verification: domain.Verdict{Legit: true, Timestamp: "2024-01-01T00:00:00Z"},
		Person:       domain.Person{FirstName: "Jane", LastName: "Doe", Gender: "F"},
		Document:     domain.DocumentRecord{ExpirationDate: "2030-01-01"},
	}
}

func newFixture(t *testing.T, mutate func(*fixture)) *fixture {
	t.Helper()

	gather := make(chan struct{})
	close(gather)
	f := &fixture{
		peer:     &fakePeer{gather: gather},
		media:    &fakeMedia{feed: &fakeFeed{}},
		verifier: &fakeVerifier{result: legitResult()},
		sig:      &recordingSignaling{},
		sink:     &collectingSink{},
	}
	docs := fakeDocs{}
	if mutate != nil {
		mutate(f)
	}

	f.manager = NewManager(
		Options{GatheringTimeout: 50 * time.Millisecond},
		f.sig,
		f.verifier,
		f.media,
		docs,
		func([]string, string) (core.PeerLink, error) { return f.peer, nil },
		f.sink,
	)
	return f
}

func TestStartReachesActive(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.manager.Start(context.Background()))

	snap := f.manager.Snapshot()
	assert.Equal(t, "active", snap.State)
	assert.True(t, snap.Streaming)
	assert.Equal(t, 1, f.sig.offers)
	require.NotNil(t, f.peer.applied)
	assert.Equal(t, webrtc.SDPTypeAnswer, f.peer.applied.Type)
}

func TestStartTimeoutWithZeroCandidates(t *testing.T) {
	// Gathering never completes naturally; negotiation must still proceed at
	// the timeout boundary with an empty candidate set.
	f := newFixture(t, func(f *fixture) {
		f.peer.gather = make(chan struct{})
	})

	start := time.Now()
	require.NoError(t, f.manager.Start(context.Background()))

	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, "active", f.manager.Snapshot().State)
	assert.Zero(t, f.sig.relayed())
}

func TestStartWhileActiveFails(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.manager.Start(context.Background()))
	assert.ErrorIs(t, f.manager.Start(context.Background()), core.ErrAlreadyActive)
}

func TestStartWithoutDocumentFailsBeforeMediaAccess(t *testing.T) {
	gather := make(chan struct{})
	close(gather)
	media := &fakeMedia{feed: &fakeFeed{}}
	m := NewManager(
		Options{GatheringTimeout: 10 * time.Millisecond},
		&recordingSignaling{},
		&fakeVerifier{},
		media,
		fakeDocs{err: core.ErrMissingDocument},
		func([]string, string) (core.PeerLink, error) { return &fakePeer{gather: gather}, nil },
	)

	assert.ErrorIs(t, m.Start(context.Background()), core.ErrMissingDocument)
	assert.Zero(t, media.opens.Load(), "no media may be acquired without a document")
}

func TestStartMediaFailure(t *testing.T) {
	f := newFixture(t, func(f *fixture) {
		f.media.err = assert.AnError
	})

	err := f.manager.Start(context.Background())
	var mediaErr *core.MediaAccessError
	require.ErrorAs(t, err, &mediaErr)
	assert.Equal(t, "terminated", f.manager.Snapshot().State)
}

func TestNegotiationFailureTearsDown(t *testing.T) {
	f := newFixture(t, func(f *fixture) {
		f.sig.offerErr = &core.NegotiationError{Status: 500}
	})

	err := f.manager.Start(context.Background())
	var negErr *core.NegotiationError
	require.ErrorAs(t, err, &negErr)
	assert.Equal(t, 500, negErr.Status)

	snap := f.manager.Snapshot()
	assert.Equal(t, "terminated", snap.State)
	assert.NotEmpty(t, snap.Error)
	assert.Equal(t, int32(1), f.media.feed.stops.Load())
	assert.Equal(t, int32(1), f.peer.closes.Load())
}

func TestMalformedAnswerTearsDown(t *testing.T) {
	f := newFixture(t, func(f *fixture) {
		f.peer.applyErr = assert.AnError
	})

	err := f.manager.Start(context.Background())
	var negErr *core.NegotiationError
	require.ErrorAs(t, err, &negErr)
	assert.Equal(t, "terminated", f.manager.Snapshot().State)
}

func TestCandidateRelayFailureDoesNotAbort(t *testing.T) {
	f := newFixture(t, func(f *fixture) {
		f.sig.relayErr = assert.AnError
		f.peer.emitOnOffer = []*webrtc.ICECandidate{hostCandidate(), hostCandidate()}
	})

	require.NoError(t, f.manager.Start(context.Background()))
	assert.Equal(t, "active", f.manager.Snapshot().State)
}

func TestStopIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.manager.Start(context.Background()))

	f.manager.Stop()
	f.manager.Stop()

	assert.Equal(t, "terminated", f.manager.Snapshot().State)
	assert.Equal(t, int32(1), f.media.feed.stops.Load(), "resources released exactly once")
	assert.Equal(t, int32(1), f.peer.closes.Load())

	select {
	case <-f.manager.Done():
	default:
		t.Fatal("Done must resolve after stop")
	}
}

func TestStopWithoutSession(t *testing.T) {
	f := newFixture(t, nil)
	f.manager.Stop()

	select {
	case <-f.manager.Done():
	default:
		t.Fatal("Done must resolve with no session")
	}
}

func TestChannelOpenSendsStartOnce(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.manager.Start(context.Background()))

	var sent []string
	send := func(msg string) error {
		sent = append(sent, msg)
		return nil
	}
	ch := f.peer.channel()
	ch.OnOpen(send)
	ch.OnOpen(send)

	assert.Equal(t, []string{domain.MessageStart}, sent)
}

func TestFrameTriggersVerification(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.manager.Start(context.Background()))

	frame := []byte("jpeg-frame-bytes")
	f.peer.channel().OnMessage([]byte(domain.EncodeFrame(frame)))

	require.Eventually(t, func() bool {
		return f.manager.Snapshot().Result != nil
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, 1, f.verifier.calls())
	req := f.verifier.reqs[0]
	assert.Equal(t, "passport.png", req.Document.Name)
	assert.Equal(t, "portrait.jpg", req.Portrait.Name)
	assert.Equal(t, frame, req.Portrait.Data)

	snap := f.manager.Snapshot()
	assert.Equal(t, "active", snap.State, "per-frame verification keeps the session active")
	assert.True(t, snap.Result.Verification.Legit)
	assert.Equal(t, "Jane", snap.Result.Person.FirstName)
	assert.Equal(t, frame, snap.Frame)
}

func TestVerificationTransportErrorIsTransient(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.manager.Start(context.Background()))
	f.verifier.set(nil, &core.VerificationTransportError{Status: 500})

	f.peer.channel().OnMessage([]byte(domain.EncodeFrame([]byte("first"))))

	require.Eventually(t, func() bool {
		return f.manager.Snapshot().Error != ""
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "active", f.manager.Snapshot().State, "transport failure must not end the session")

	// The next frame is a fresh, independent attempt.
	f.verifier.set(legitResult(), nil)
	f.peer.channel().OnMessage([]byte(domain.EncodeFrame([]byte("second"))))

	require.Eventually(t, func() bool {
		snap := f.manager.Snapshot()
		return snap.Result != nil && snap.Error == ""
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, f.verifier.calls())
}

func TestFaceDetectedStopsCaptureAndAppliesLateResult(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, func(f *fixture) {
		f.verifier.release = release
	})
	require.NoError(t, f.manager.Start(context.Background()))

	ch := f.peer.channel()
	ch.OnMessage([]byte(domain.EncodeFrame([]byte("frame"))))
	require.Eventually(t, func() bool { return f.verifier.calls() == 1 }, time.Second, 5*time.Millisecond)

	ch.OnMessage([]byte(domain.MessageFaceDetected))

	snap := f.manager.Snapshot()
	assert.True(t, snap.FaceDetected)
	assert.False(t, snap.Streaming, "capture stops on the terminal signal")
	assert.Equal(t, "verifying", snap.State)
	assert.GreaterOrEqual(t, f.media.feed.stops.Load(), int32(1))

	// The in-flight call resolves afterwards: its result still lands.
	close(release)
	require.Eventually(t, func() bool {
		snap := f.manager.Snapshot()
		return snap.State == "terminated" && snap.Result != nil
	}, time.Second, 5*time.Millisecond)
}

func TestFramesAfterFaceDetectedAreIgnored(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.manager.Start(context.Background()))

	ch := f.peer.channel()
	ch.OnMessage([]byte(domain.MessageFaceDetected))
	ch.OnMessage([]byte(domain.EncodeFrame([]byte("late"))))

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, f.verifier.calls(), "frames after the terminal signal must not verify")
}

func TestStaleVerificationAfterStopIsNoOp(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, func(f *fixture) {
		f.verifier.release = release
	})
	require.NoError(t, f.manager.Start(context.Background()))

	f.peer.channel().OnMessage([]byte(domain.EncodeFrame([]byte("frame"))))
	require.Eventually(t, func() bool { return f.verifier.calls() == 1 }, time.Second, 5*time.Millisecond)

	f.manager.Stop()
	close(release)

	time.Sleep(50 * time.Millisecond)
	snap := f.manager.Snapshot()
	assert.Equal(t, "terminated", snap.State)
	assert.Nil(t, snap.Result, "a response arriving after stop must not write state")
}

func TestChannelCloseBeforeTerminalEndsSession(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.manager.Start(context.Background()))

	f.peer.channel().OnClose()

	assert.Equal(t, "terminated", f.manager.Snapshot().State)
}

func TestSnapshotsReachSinks(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.manager.Start(context.Background()))

	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	require.NotEmpty(t, f.sink.snaps)
	states := make([]string, 0, len(f.sink.snaps))
	for _, s := range f.sink.snaps {
		states = append(states, s.State)
	}
	assert.Contains(t, states, "connecting")
	assert.Contains(t, states, "ice_gathering")
	assert.Contains(t, states, "negotiating")
	assert.Contains(t, states, "active")
}
