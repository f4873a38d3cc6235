package capture

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriface/veriface/internal/domain"
)

func writeFrames(t *testing.T, frames map[string][]byte) string {
	t.Helper()
	dir := t.TempDir()
	for name, data := range frames {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}
	return dir
}

func TestReplayStreamerSendsFramesThenTerminal(t *testing.T) {
	dir := writeFrames(t, map[string][]byte{
		"002.jpg":   []byte("second"),
		"001.jpg":   []byte("first"),
		"notes.txt": []byte("ignored"),
	})

	s, err := NewReplayStreamer(dir, 100)
	require.NoError(t, err)

	var sent []string
	require.NoError(t, s.Stream(context.Background(), func(msg string) error {
		sent = append(sent, msg)
		return nil
	}))

	require.Len(t, sent, 3)
	assert.Equal(t, domain.EncodeFrame([]byte("first")), sent[0])
	assert.Equal(t, domain.EncodeFrame([]byte("second")), sent[1])
	assert.Equal(t, domain.MessageFaceDetected, sent[2], "terminal signal must come last")
}

func TestReplayStreamerEmptyDir(t *testing.T) {
	_, err := NewReplayStreamer(t.TempDir(), 5)
	assert.ErrorContains(t, err, "no jpeg frames")
}

func TestReplayStreamerMissingDir(t *testing.T) {
	_, err := NewReplayStreamer(filepath.Join(t.TempDir(), "missing"), 5)
	assert.Error(t, err)
}

func TestReplayStreamerStopsOnCancel(t *testing.T) {
	dir := writeFrames(t, map[string][]byte{
		"a.jpg": []byte("a"),
		"b.jpg": []byte("b"),
	})

	s, err := NewReplayStreamer(dir, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var sent []string
	err = s.Stream(ctx, func(msg string) error {
		sent = append(sent, msg)
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotContains(t, sent, domain.MessageFaceDetected, "no terminal signal after cancellation")
}
