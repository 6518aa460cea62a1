package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
)

// Converter turns an arbitrary audio file into 16-bit PCM WAV.
type Converter interface {
	ToWav(ctx context.Context, in, out string) error
}

// FFmpeg converts audio by shelling out to ffmpeg.
type FFmpeg struct {
	Path       string // binary; defaults to "ffmpeg" on PATH
	SampleRate int    // 0 keeps the source rate
	Channels   int    // 0 keeps the source layout
}

var (
	ffmpegOnce  sync.Once
	ffmpegFound bool
)

// FFmpegAvailable reports whether ffmpeg is on PATH. Checked once.
func FFmpegAvailable() bool {
	ffmpegOnce.Do(func() {
		_, err := exec.LookPath("ffmpeg")
		ffmpegFound = err == nil
	})
	return ffmpegFound
}

func (c FFmpeg) ToWav(ctx context.Context, in, out string) error {
	bin := c.Path
	if bin == "" {
		bin = "ffmpeg"
	}
	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", in}
	if c.Channels > 0 {
		args = append(args, "-ac", strconv.Itoa(c.Channels))
	}
	if c.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(c.SampleRate))
	}
	args = append(args, "-c:a", "pcm_s16le", "-f", "wav", out)

	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(out)
		return fmt.Errorf("ffmpeg: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}
