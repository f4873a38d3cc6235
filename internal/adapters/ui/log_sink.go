package ui

import (
	"github.com/rs/zerolog/log"

	"github.com/veriface/veriface/internal/core"
)

// LogSink mirrors session snapshots into the log, mainly for headless runs.
type LogSink struct{}

func (LogSink) Publish(s core.Snapshot) {
	ev := log.Info().
		Str("module", "ui").
		Str("sid", s.SessionID).
		Str("state", s.State).
		Bool("streaming", s.Streaming).
		Bool("face_detected", s.FaceDetected).
		Bool("verifying", s.Verifying)
	if s.Error != "" {
		ev = ev.Str("error", s.Error)
	}
	if s.Result != nil {
		ev = ev.Bool("legit", s.Result.Verification.Legit)
	}
	ev.Msg("session state")
}
