package domain

import (
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

// IceCandidate is the wire form relayed to the signaling server while the
// local agent trickles candidates. Field names follow the /ice_candidate
// endpoint contract.
type IceCandidate struct {
	Component      uint16  `json:"component"`
	Foundation     string  `json:"foundation"`
	IP             string  `json:"ip"`
	Port           uint16  `json:"port"`
	Priority       uint32  `json:"priority"`
	Protocol       string  `json:"protocol"`
	Type           string  `json:"type"`
	RelatedAddress string  `json:"relatedAddress,omitempty"`
	RelatedPort    uint16  `json:"relatedPort,omitempty"`
	SDPMid         *string `json:"sdpMid"`
	SDPMLineIndex  *uint16 `json:"sdpMLineIndex"`
	TCPType        string  `json:"tcpType,omitempty"`
}

// CandidateFromPion flattens a locally gathered pion candidate into the wire
// form. SDP association comes from ToJSON since pion does not keep it on the
// candidate itself.
func CandidateFromPion(c *webrtc.ICECandidate) IceCandidate {
	init := c.ToJSON()
	return IceCandidate{
		Component:      c.Component,
		Foundation:     c.Foundation,
		IP:             c.Address,
		Port:           c.Port,
		Priority:       c.Priority,
		Protocol:       c.Protocol.String(),
		Type:           c.Typ.String(),
		RelatedAddress: c.RelatedAddress,
		RelatedPort:    c.RelatedPort,
		SDPMid:         init.SDPMid,
		SDPMLineIndex:  init.SDPMLineIndex,
		TCPType:        c.TCPType,
	}
}

// Attribute rebuilds the SDP candidate-attribute line from the wire fields.
func (c IceCandidate) Attribute() string {
	var b strings.Builder
	fmt.Fprintf(&b, "candidate:%s %d %s %d %s %d typ %s",
		c.Foundation, c.Component, strings.ToLower(c.Protocol), c.Priority, c.IP, c.Port, c.Type)
	if c.RelatedAddress != "" {
		fmt.Fprintf(&b, " raddr %s rport %d", c.RelatedAddress, c.RelatedPort)
	}
	if c.TCPType != "" {
		fmt.Fprintf(&b, " tcptype %s", c.TCPType)
	}
	return b.String()
}

// ToInit converts the wire form back into what the local agent consumes.
func (c IceCandidate) ToInit() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:     c.Attribute(),
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	}
}
