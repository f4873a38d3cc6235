package domain

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateFromPion(t *testing.T) {
	c := CandidateFromPion(&webrtc.ICECandidate{
		Foundation: "foundation",
		Priority:   2130706431,
		Address:    "192.168.1.10",
		Protocol:   webrtc.ICEProtocolUDP,
		Port:       54321,
		Typ:        webrtc.ICECandidateTypeHost,
		Component:  1,
	})

	assert.Equal(t, "foundation", c.Foundation)
	assert.Equal(t, "192.168.1.10", c.IP)
	assert.Equal(t, uint16(54321), c.Port)
	assert.Equal(t, "udp", c.Protocol)
	assert.Equal(t, "host", c.Type)
	require.NotNil(t, c.SDPMid)
	require.NotNil(t, c.SDPMLineIndex)
}

func TestCandidateAttribute(t *testing.T) {
	c := IceCandidate{
		Component:  1,
		Foundation: "1234",
		IP:         "10.0.0.5",
		Port:       9000,
		Priority:   100,
		Protocol:   "udp",
		Type:       "host",
	}
	assert.Equal(t, "candidate:1234 1 udp 100 10.0.0.5 9000 typ host", c.Attribute())
}

func TestCandidateAttributeRelated(t *testing.T) {
	c := IceCandidate{
		Component:      1,
		Foundation:     "99",
		IP:             "203.0.113.4",
		Port:           40000,
		Priority:       50,
		Protocol:       "udp",
		Type:           "srflx",
		RelatedAddress: "10.0.0.5",
		RelatedPort:    9000,
	}
	assert.Equal(t, "candidate:99 1 udp 50 203.0.113.4 40000 typ srflx raddr 10.0.0.5 rport 9000", c.Attribute())
}
