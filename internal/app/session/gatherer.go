package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/veriface/veriface/internal/core"
	"github.com/veriface/veriface/internal/domain"
)

// Gatherer relays locally gathered candidates to the signaling server as
// they appear and races natural gathering completion against a hard timeout.
// The timeout bounds total negotiation latency: a partial candidate set is
// acceptable, one viable pair suffices.
type Gatherer struct {
	sig     core.Signaling
	timeout time.Duration

	once    sync.Once
	done    chan struct{}
	relayed atomic.Int64
}

func NewGatherer(sig core.Signaling, timeout time.Duration) *Gatherer {
	return &Gatherer{
		sig:     sig,
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

// HandleCandidate relays one candidate, fire-and-forget. Relay failures are
// logged and never abort the session. Candidates arriving after completion
// are dropped.
func (g *Gatherer) HandleCandidate(ctx context.Context, cand *webrtc.ICECandidate) {
	select {
	case <-g.done:
		log.Debug().Str("module", "ice").Msg("candidate after completion, dropped")
		return
	default:
	}

	c := domain.CandidateFromPion(cand)
	go func() {
		if err := g.sig.SendCandidate(ctx, c); err != nil {
			log.Warn().Err(err).Str("module", "ice").Str("type", c.Type).Msg("candidate relay failed")
			return
		}
		g.relayed.Add(1)
	}()
}

// Wait blocks until gathering naturally completes or the timeout elapses,
// whichever fires first, then marks the gatherer complete so the loser path
// cannot resurrect it. Reports whether completion was natural.
func (g *Gatherer) Wait(ctx context.Context, natural <-chan struct{}) bool {
	defer g.complete()

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case <-natural:
		log.Info().Str("module", "ice").Int64("relayed", g.relayed.Load()).Msg("gathering complete")
		return true
	case <-timer.C:
		log.Info().Str("module", "ice").Dur("timeout", g.timeout).Msg("gathering timed out, forcing completion")
		return false
	case <-ctx.Done():
		return false
	}
}

// Done resolves once, whether completion was natural or forced.
func (g *Gatherer) Done() <-chan struct{} { return g.done }

func (g *Gatherer) complete() {
	g.once.Do(func() { close(g.done) })
}
