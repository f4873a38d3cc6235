package rtc

import (
	"context"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/veriface/veriface/internal/core"
)

// Connection wraps a pion PeerConnection in the offerer role: it owns the
// control channel, the local track and the gathering-complete signal for one
// session.
type Connection struct {
	pc     *webrtc.PeerConnection
	sid    string
	onICE  func(*webrtc.ICECandidate)
	cancel context.CancelFunc

	channel *webrtc.DataChannel
}

func WebRTCConfig(stunServers []string) webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stunServers},
		},
	}
}

func NewConnection(cfg webrtc.Configuration, sid string) (*Connection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &Connection{pc: pc, sid: sid}, nil
}

func (c *Connection) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Str("sid", c.sid).Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateDisconnected ||
			s == webrtc.ICEConnectionStateFailed ||
			s == webrtc.ICEConnectionStateClosed {
			cancel()
		}
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("sid", c.sid).Str("peer_connection_state", s.String()).Msg("peer state")
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && c.onICE != nil {
			c.onICE(cand)
		}
	})

	return nil
}

// OpenControlChannel creates the ordered reliable channel before the offer so
// it is negotiated as part of it.
func (c *Connection) OpenControlChannel(label string, h core.ChannelHandlers) error {
	dc, err := c.pc.CreateDataChannel(label, nil)
	if err != nil {
		return err
	}
	c.channel = dc

	dc.OnOpen(func() {
		log.Info().Str("module", "rtc").Str("sid", c.sid).Str("label", dc.Label()).Msg("data channel open")
		if h.OnOpen != nil {
			h.OnOpen(dc.SendText)
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if h.OnMessage != nil {
			h.OnMessage(msg.Data)
		}
	})
	dc.OnClose(func() {
		log.Info().Str("module", "rtc").Str("sid", c.sid).Str("label", dc.Label()).Msg("data channel closed")
		if h.OnClose != nil {
			h.OnClose()
		}
	})
	return nil
}

func (c *Connection) AddLocalTrack(track webrtc.TrackLocal) error {
	_, err := c.pc.AddTrack(track)
	return err
}

func (c *Connection) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	c.onICE = fn
}

// CreateAndSetOffer produces the local offer; setting it starts candidate
// gathering.
func (c *Connection) CreateAndSetOffer() (*webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	return c.pc.LocalDescription(), nil
}

func (c *Connection) GatheringComplete() <-chan struct{} {
	return webrtc.GatheringCompletePromise(c.pc)
}

func (c *Connection) LocalDescription() *webrtc.SessionDescription {
	return c.pc.LocalDescription()
}

func (c *Connection) ApplyAnswer(answer webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(answer)
}

func (c *Connection) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			log.Error().Err(err).Str("module", "rtc").Str("sid", c.sid).Msg("channel close error")
		}
	}
	if c.pc != nil {
		if err := c.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "rtc").Str("sid", c.sid).Msg("close error")
		} else {
			log.Info().Str("module", "rtc").Str("sid", c.sid).Msg("closed")
		}
	}
}
