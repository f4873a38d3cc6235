package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/veriface/veriface/internal/domain"
)

// SendFunc delivers one text message over the data channel.
type SendFunc func(msg string) error

// Streamer produces the server side of the detection handshake: candidate
// frames first, the terminal signal last. Real face detection is an external
// collaborator; implementations decide what a "detection frame" is.
type Streamer interface {
	Stream(ctx context.Context, send SendFunc) error
}

// ReplayStreamer replays JPEG files from a directory as detection frames at
// a fixed rate and closes with face_detected. It is the development and
// end-to-end stand-in for a detector.
type ReplayStreamer struct {
	frames   [][]byte
	interval time.Duration
}

func NewReplayStreamer(dir string, frameRate int) (*ReplayStreamer, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".jpg" || ext == ".jpeg" {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no jpeg frames in %s", dir)
	}
	sort.Strings(names)

	frames := make([][]byte, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		frames = append(frames, data)
	}

	if frameRate <= 0 {
		frameRate = 5
	}
	return &ReplayStreamer{frames: frames, interval: time.Second / time.Duration(frameRate)}, nil
}

func (r *ReplayStreamer) Stream(ctx context.Context, send SendFunc) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for _, frame := range r.frames {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := send(domain.EncodeFrame(frame)); err != nil {
			return fmt.Errorf("send frame: %w", err)
		}
		framesSent.Inc()
	}

	if err := send(domain.MessageFaceDetected); err != nil {
		return fmt.Errorf("send terminal signal: %w", err)
	}
	log.Info().Str("module", "capture").Int("frames", len(r.frames)).Msg("detection phase finished")
	return nil
}
