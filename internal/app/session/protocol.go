package session

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/veriface/veriface/internal/core"
	"github.com/veriface/veriface/internal/domain"
)

// ProtocolEvents receives the decoded server-side messages of the
// face-detection handshake.
type ProtocolEvents interface {
	OnFrame(frame []byte)
	OnFaceDetected()
	OnChannelClosed()
}

// Protocol drives the client side of the data-channel message exchange.
// The client sends exactly one start message per channel instance; every
// later message is server -> client. Frames received after the terminal
// signal are ignored.
type Protocol struct {
	events ProtocolEvents

	startOnce sync.Once

	mu       sync.Mutex
	terminal bool
}

func NewProtocol(events ProtocolEvents) *Protocol {
	return &Protocol{events: events}
}

// Handlers binds the protocol onto a control channel.
func (p *Protocol) Handlers() core.ChannelHandlers {
	return core.ChannelHandlers{
		OnOpen:    p.handleOpen,
		OnMessage: p.handleMessage,
		OnClose:   p.handleClose,
	}
}

func (p *Protocol) handleOpen(send func(msg string) error) {
	p.startOnce.Do(func() {
		if err := send(domain.MessageStart); err != nil {
			log.Error().Err(err).Str("module", "protocol").Msg("failed to send start")
			return
		}
		log.Info().Str("module", "protocol").Msg("start sent, detection phase running")
	})
}

func (p *Protocol) handleMessage(data []byte) {
	msg, err := domain.ParseServerMessage(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "protocol").Msg("unparseable message dropped")
		return
	}

	p.mu.Lock()
	if p.terminal {
		p.mu.Unlock()
		log.Debug().Str("module", "protocol").Msg("message after terminal signal, ignored")
		return
	}
	if msg.Kind == domain.KindFaceDetected {
		p.terminal = true
	}
	p.mu.Unlock()

	switch msg.Kind {
	case domain.KindFaceDetected:
		log.Info().Str("module", "protocol").Msg("face detected")
		p.events.OnFaceDetected()
	case domain.KindFrame:
		log.Debug().Str("module", "protocol").Int("bytes", len(msg.Frame)).Msg("detection frame received")
		p.events.OnFrame(msg.Frame)
	}
}

func (p *Protocol) handleClose() {
	p.mu.Lock()
	terminal := p.terminal
	p.mu.Unlock()

	log.Info().Str("module", "protocol").Bool("terminal_seen", terminal).Msg("channel closed")
	if !terminal {
		p.events.OnChannelClosed()
	}
}
