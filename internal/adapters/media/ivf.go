package media

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/rs/zerolog/log"

	"github.com/veriface/veriface/internal/core"
)

// IVFSource replays a prerecorded IVF file onto a local sample track at a
// fixed frame rate. It stands in for a camera behind core.MediaSource; the
// frame rate is applied as a hard pacing constraint on the track.
type IVFSource struct {
	path      string
	frameRate int
}

func NewIVFSource(path string, frameRate int) *IVFSource {
	return &IVFSource{path: path, frameRate: frameRate}
}

func (s *IVFSource) Open(ctx context.Context) (core.MediaFeed, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}

	reader, header, err := ivfreader.NewWith(file)
	if err != nil {
		file.Close()
		return nil, err
	}

	mimeType := webrtc.MimeTypeVP8
	if header.FourCC == "VP90" {
		mimeType = webrtc.MimeTypeVP9
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mimeType},
		"video", "veriface",
	)
	if err != nil {
		file.Close()
		return nil, err
	}

	feed := &ivfFeed{
		track: track,
		file:  file,
		done:  make(chan struct{}),
	}

	interval := time.Second / time.Duration(s.frameRate)
	go feed.pump(ctx, reader, interval)

	log.Info().Str("module", "media").Str("file", s.path).Int("fps", s.frameRate).Msg("media source opened")
	return feed, nil
}

type ivfFeed struct {
	track *webrtc.TrackLocalStaticSample
	file  *os.File

	stopOnce sync.Once
	done     chan struct{}
}

func (f *ivfFeed) Track() webrtc.TrackLocal { return f.track }

func (f *ivfFeed) Stop() {
	f.stopOnce.Do(func() {
		close(f.done)
	})
}

func (f *ivfFeed) pump(ctx context.Context, reader *ivfreader.IVFReader, interval time.Duration) {
	defer f.file.Close()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		case <-ticker.C:
			frame, _, err := reader.ParseNextFrame()
			if err != nil {
				log.Info().Str("module", "media").Msg("end of media file, feed stopped")
				return
			}
			if err := f.track.WriteSample(media.Sample{Data: frame, Duration: interval}); err != nil {
				log.Error().Err(err).Str("module", "media").Msg("write sample")
				return
			}
		}
	}
}

// Validate reports whether the configured file is readable before a session
// starts acquiring anything else.
func (s *IVFSource) Validate() error {
	if s.path == "" {
		return fmt.Errorf("media file not configured")
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("media file %s is a directory", s.path)
	}
	return nil
}
