package core

import "github.com/veriface/veriface/internal/domain"

// Snapshot is the read-only view handed to renderer collaborators after
// every state change. Result and Frame hold the latest values, last write
// wins.
type Snapshot struct {
	SessionID    string                     `json:"session_id"`
	State        string                     `json:"state"`
	Streaming    bool                       `json:"streaming"`
	FaceDetected bool                       `json:"face_detected"`
	Verifying    bool                       `json:"verifying"`
	Error        string                     `json:"error,omitempty"`
	Result       *domain.VerificationResult `json:"result,omitempty"`
	Frame        []byte                     `json:"frame,omitempty"`
}
