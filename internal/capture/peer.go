package capture

import (
	"context"
	"errors"
	"io"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/veriface/veriface/internal/domain"
)

// Peer is the answer side of one capture session: it accepts the client's
// offer, consumes the incoming video track and serves the detection
// handshake over the client-created data channel.
type Peer struct {
	pc       *webrtc.PeerConnection
	id       string
	streamer Streamer
	onClosed func()

	cancelStream context.CancelFunc
}

func NewPeer(cfg webrtc.Configuration, id string, streamer Streamer, onClosed func()) (*Peer, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &Peer{pc: pc, id: id, streamer: streamer, onClosed: onClosed}, nil
}

// Answer applies the remote offer and returns a non-trickle answer: local
// gathering finishes before the description is handed back.
func (p *Peer) Answer(ctx context.Context, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "capture").Str("sid", p.id).Str("peer_connection_state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			p.Close()
		}
	})

	p.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().Str("module", "capture").Str("sid", p.id).
			Str("kind", track.Kind().String()).Str("track_id", track.ID()).Msg("track received")
		go p.drainTrack(track)
	})

	p.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		log.Info().Str("module", "capture").Str("sid", p.id).Str("label", dc.Label()).Msg("data channel created by remote")
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			p.handleControl(ctx, dc, string(msg.Data))
		})
	})

	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}

	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	<-gatherComplete

	return p.pc.LocalDescription(), nil
}

func (p *Peer) handleControl(ctx context.Context, dc *webrtc.DataChannel, msg string) {
	switch msg {
	case domain.MessageStart:
		log.Info().Str("module", "capture").Str("sid", p.id).Msg("start received, streaming detection frames")
		streamCtx, cancel := context.WithCancel(ctx)
		p.cancelStream = cancel
		go func() {
			if err := p.streamer.Stream(streamCtx, dc.SendText); err != nil {
				log.Warn().Err(err).Str("module", "capture").Str("sid", p.id).Msg("streamer stopped")
			}
		}()
	case "stop":
		log.Info().Str("module", "capture").Str("sid", p.id).Msg("stop received")
		if p.cancelStream != nil {
			p.cancelStream()
		}
	default:
		log.Warn().Str("module", "capture").Str("sid", p.id).Str("msg", msg).Msg("unknown control message")
	}
}

// drainTrack keeps the RTP flow alive; frame analysis belongs to the
// external detection collaborator.
func (p *Peer) drainTrack(track *webrtc.TrackRemote) {
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Err(err).Str("module", "capture").Str("sid", p.id).Msg("track read ended")
			}
			return
		}
	}
}

// AddICECandidate applies a trickled remote candidate.
func (p *Peer) AddICECandidate(c domain.IceCandidate) error {
	return p.pc.AddICECandidate(c.ToInit())
}

func (p *Peer) Close() {
	if p.cancelStream != nil {
		p.cancelStream()
	}
	if err := p.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "capture").Str("sid", p.id).Msg("close error")
	}
	if p.onClosed != nil {
		p.onClosed()
	}
}
