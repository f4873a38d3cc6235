package capture

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/veriface/veriface/internal/domain"
)

// Server is the signaling surface of the capture side: it answers offers,
// accepts trickled candidates and keeps track of the live peers.
type Server struct {
	rtcConfig webrtc.Configuration
	streamer  Streamer

	mu    sync.Mutex
	peers map[string]*Peer
}

func NewServer(stunServers []string, streamer Streamer) *Server {
	return &Server{
		rtcConfig: webrtc.Configuration{
			ICEServers: []webrtc.ICEServer{{URLs: stunServers}},
		},
		streamer: streamer,
		peers:    make(map[string]*Peer),
	}
}

func (s *Server) SetupRouter(ctx context.Context, mode string) *gin.Engine {
	if mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.POST("/offer", func(c *gin.Context) { s.handleOffer(ctx, c) })
	r.POST("/ice_candidate", s.handleICECandidate)
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type descriptionPayload struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

func (s *Server) handleOffer(ctx context.Context, c *gin.Context) {
	var req descriptionPayload
	if err := c.ShouldBindJSON(&req); err != nil || req.SDP == "" || req.Type != "offer" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid offer"})
		return
	}

	id := uuid.NewString()
	peer, err := NewPeer(s.rtcConfig, id, s.streamer, func() { s.remove(id) })
	if err != nil {
		log.Error().Err(err).Str("module", "capture").Msg("peer creation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "peer setup failed"})
		return
	}

	answer, err := peer.Answer(ctx, webrtc.SessionDescription{
		SDP:  req.SDP,
		Type: webrtc.SDPTypeOffer,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "capture").Str("sid", id).Msg("answer failed")
		peer.Close()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "negotiation failed"})
		return
	}

	s.mu.Lock()
	s.peers[id] = peer
	s.mu.Unlock()
	sessionsStarted.Inc()

	log.Info().Str("module", "capture").Str("sid", id).Msg("session answered")
	c.JSON(http.StatusOK, descriptionPayload{SDP: answer.SDP, Type: answer.Type.String()})
}

func (s *Server) handleICECandidate(c *gin.Context) {
	var cand domain.IceCandidate
	if err := c.ShouldBindJSON(&cand); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed candidate"})
		return
	}
	candidatesReceived.Inc()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, peer := range s.peers {
		if err := peer.AddICECandidate(cand); err != nil {
			log.Warn().Err(err).Str("module", "capture").Str("sid", id).Msg("candidate rejected")
		}
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) remove(id string) {
	s.mu.Lock()
	delete(s.peers, id)
	s.mu.Unlock()
	log.Info().Str("module", "capture").Str("sid", id).Msg("peer removed")
}

// Shutdown closes every live peer.
func (s *Server) Shutdown() {
	s.mu.Lock()
	peers := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.peers = make(map[string]*Peer)
	s.mu.Unlock()

	for _, p := range peers {
		p.Close()
	}
}
