package domain

import (
	"encoding/base64"
	"fmt"
)

// Control messages exchanged over the face-detection data channel.
// The protocol is asymmetric: the client sends exactly one MessageStart,
// everything afterwards is server -> client.
const (
	MessageStart        = "start"
	MessageFaceDetected = "face_detected"
)

type MessageKind int

const (
	// KindFrame carries the current best captured frame as JPEG bytes.
	KindFrame MessageKind = iota
	// KindFaceDetected terminates the detection phase.
	KindFaceDetected
)

// ControlMessage is one decoded server -> client data-channel message.
type ControlMessage struct {
	Kind  MessageKind
	Frame []byte
}

// ParseServerMessage decodes an incoming data-channel payload. Anything that
// is not the terminal signal is a base64-encoded JPEG frame.
func ParseServerMessage(data []byte) (ControlMessage, error) {
	if string(data) == MessageFaceDetected {
		return ControlMessage{Kind: KindFaceDetected}, nil
	}
	frame, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return ControlMessage{}, fmt.Errorf("malformed frame payload: %w", err)
	}
	return ControlMessage{Kind: KindFrame, Frame: frame}, nil
}

// EncodeFrame is the server-side counterpart of ParseServerMessage.
func EncodeFrame(frame []byte) string {
	return base64.StdEncoding.EncodeToString(frame)
}
