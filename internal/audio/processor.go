// Package audio checks recording sizes, splits oversized WAV recordings into
// bounded chunks and joins per-chunk transcriptions back together.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
)

var (
	// ErrUndecodable means the source could not be read as PCM audio, even
	// after conversion.
	ErrUndecodable = errors.New("audio source cannot be decoded")
	// ErrUnsplittable means no chunk size satisfies the per-chunk limit.
	ErrUnsplittable = errors.New("audio cannot be split under the chunk size limit")
)

const (
	bytesPerMB = 1024 * 1024

	// Size of the canonical RIFF/fmt/data header written by the WAV encoder.
	wavHeaderSize = 44

	// Frames copied per read while streaming a chunk.
	copyFrames = 8192

	chunkDirPrefix = "audio_chunks_"
)

// ProgressFunc receives human-readable progress messages.
type ProgressFunc func(msg string)

// Options configures a Processor.
type Options struct {
	MaxFileBytes     int64         // direct-transcription ceiling
	ChunkMaxBytes    int64         // per-chunk ceiling
	ChunkMaxDuration time.Duration // optional extra cap per chunk; 0 = none
	TempDir          string
	Converter        Converter // nil = no conversion of non-PCM input
	Log              zerolog.Logger
}

// Processor splits recordings and tracks the temporary files it creates
// until CleanupTempFiles is called.
type Processor struct {
	opts Options
	log  zerolog.Logger

	mu   sync.Mutex
	temp []string
}

// NewProcessor creates a Processor.
func NewProcessor(opts Options) *Processor {
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	return &Processor{opts: opts, log: opts.Log}
}

// CheckFileSize reports whether path exceeds the direct-transcription
// ceiling, along with its size in MB.
func (p *Processor) CheckFileSize(path string) (bool, float64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return false, 0, fmt.Errorf("stat audio file: %w", err)
	}
	sizeMB := float64(fi.Size()) / bytesPerMB
	needs := fi.Size() > p.opts.MaxFileBytes
	p.log.Info().
		Str("path", path).
		Float64("size_mb", sizeMB).
		Float64("limit_mb", float64(p.opts.MaxFileBytes)/bytesPerMB).
		Bool("needs_splitting", needs).
		Msg("audio file size checked")
	return needs, sizeMB, nil
}

// SplitAudioFile divides path into sequential, non-overlapping WAV chunks,
// each no larger than the per-chunk limit. Every chunk holds the same number
// of frames except the last. Chunk files are tracked for CleanupTempFiles.
func (p *Processor) SplitAudioFile(ctx context.Context, path string, progress ProgressFunc) ([]string, error) {
	if progress == nil {
		progress = func(string) {}
	}

	dir, err := os.MkdirTemp(p.opts.TempDir, chunkDirPrefix)
	if err != nil {
		return nil, fmt.Errorf("create chunk dir: %w", err)
	}
	p.track(dir)

	progress("Loading audio file...")
	src, err := p.openPCM(ctx, path, dir)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dec := wav.NewDecoder(src)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: %s", ErrUndecodable, path)
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	channels := int(dec.NumChans)
	bitDepth := int(dec.BitDepth)
	sampleRate := int(dec.SampleRate)
	bytesPerFrame := channels * bitDepth / 8
	if bytesPerFrame <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("%w: bad format (channels=%d bits=%d rate=%d)", ErrUndecodable, channels, bitDepth, sampleRate)
	}
	totalFrames := dec.PCMLen() / int64(bytesPerFrame)
	if totalFrames == 0 {
		return nil, fmt.Errorf("%w: no audio frames", ErrUndecodable)
	}

	perChunk, err := p.framesPerChunk(bytesPerFrame, sampleRate)
	if err != nil {
		return nil, err
	}
	n := int((totalFrames + perChunk - 1) / perChunk)

	p.log.Info().
		Int64("frames", totalFrames).
		Int64("frames_per_chunk", perChunk).
		Int("chunks", n).
		Int("sample_rate", sampleRate).
		Int("channels", channels).
		Msg("splitting audio")
	progress(fmt.Sprintf("Creating %d audio chunks...", n))

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		SourceBitDepth: bitDepth,
	}
	chunks := make([]string, 0, n)
	remaining := totalFrames
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frames := min(perChunk, remaining)
		name := filepath.Join(dir, fmt.Sprintf("chunk_%03d.wav", i+1))
		written, err := writeChunk(dec, buf, name, frames, sampleRate, bitDepth, channels)
		if err != nil {
			return nil, fmt.Errorf("write chunk %d/%d: %w", i+1, n, err)
		}
		if written == 0 {
			os.Remove(name)
			break
		}
		fi, err := os.Stat(name)
		if err != nil {
			return nil, fmt.Errorf("stat chunk %d/%d: %w", i+1, n, err)
		}
		if fi.Size() > p.opts.ChunkMaxBytes {
			return nil, fmt.Errorf("%w: chunk %d is %d bytes (limit %d)", ErrUnsplittable, i+1, fi.Size(), p.opts.ChunkMaxBytes)
		}
		remaining -= written
		chunks = append(chunks, name)
		progress(fmt.Sprintf("Created chunk %d/%d", i+1, n))
		if written < frames {
			break
		}
	}
	if remaining > 0 {
		p.log.Warn().Int64("declared_frames", totalFrames).Int64("read_frames", totalFrames-remaining).
			Msg("audio data ends before its declared length")
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no audio frames", ErrUndecodable)
	}
	return chunks, nil
}

// framesPerChunk returns the largest frame count whose encoded chunk stays
// within the byte limit, further capped by the duration limit.
func (p *Processor) framesPerChunk(bytesPerFrame, sampleRate int) (int64, error) {
	// One byte of slack for the pad byte an odd-sized data chunk may need.
	frames := (p.opts.ChunkMaxBytes - wavHeaderSize - 1) / int64(bytesPerFrame)
	if d := p.opts.ChunkMaxDuration; d > 0 {
		frames = min(frames, int64(d.Seconds()*float64(sampleRate)))
	}
	if frames < 1 {
		return 0, fmt.Errorf("%w: limit %d bytes holds no %d-byte frame", ErrUnsplittable, p.opts.ChunkMaxBytes, bytesPerFrame)
	}
	return frames, nil
}

// writeChunk copies up to frames frames from dec into a new WAV file and
// returns how many it copied. It copies fewer only when the data runs out.
func writeChunk(dec *wav.Decoder, buf *goaudio.IntBuffer, name string, frames int64, sampleRate, bitDepth, channels int) (int64, error) {
	f, err := os.Create(name)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, bitDepth, channels, 1)
	var written int64
	for written < frames {
		want := min(frames-written, copyFrames)
		if cap(buf.Data) < int(want)*channels {
			buf.Data = make([]int, int(want)*channels)
		}
		buf.Data = buf.Data[:int(want)*channels]
		got, err := dec.PCMBuffer(buf)
		if err != nil {
			return written, fmt.Errorf("read pcm: %w", err)
		}
		// Whole frames only; a trailing partial frame is padding.
		got -= got % channels
		if got == 0 {
			break
		}
		buf.Data = buf.Data[:got]
		if err := enc.Write(buf); err != nil {
			return written, fmt.Errorf("encode: %w", err)
		}
		written += int64(got / channels)
	}
	if err := enc.Close(); err != nil {
		return written, fmt.Errorf("close encoder: %w", err)
	}
	return written, f.Close()
}

// openPCM opens path directly when it is PCM WAV, otherwise converts it
// into dir first.
func (p *Processor) openPCM(ctx context.Context, path, dir string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	if IsPCMWav(f) {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("rewind audio file: %w", err)
		}
		return f, nil
	}
	f.Close()

	if p.opts.Converter == nil {
		return nil, fmt.Errorf("%w: %s is not PCM WAV", ErrUndecodable, path)
	}
	out := filepath.Join(dir, "source.wav")
	if err := p.opts.Converter.ToWav(ctx, path, out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	p.log.Debug().Str("src", path).Str("dst", out).Msg("converted input to PCM WAV")
	return os.Open(out)
}

// IsPCMWav reports whether r holds an uncompressed PCM WAV stream.
func IsPCMWav(r io.ReadSeeker) bool {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return false
	}
	return dec.WavAudioFormat == 1
}

func (p *Processor) track(path string) {
	p.mu.Lock()
	p.temp = append(p.temp, path)
	p.mu.Unlock()
}

// TempFiles returns the paths currently tracked for cleanup.
func (p *Processor) TempFiles() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.temp...)
}

// CleanupTempFiles removes every tracked temporary file and directory.
// Removal errors are logged, not returned.
func (p *Processor) CleanupTempFiles() {
	p.mu.Lock()
	paths := p.temp
	p.temp = nil
	p.mu.Unlock()

	for _, path := range paths {
		if err := os.RemoveAll(path); err != nil {
			p.log.Warn().Err(err).Str("path", path).Msg("failed to remove temp file")
		}
	}
	if len(paths) > 0 {
		p.log.Debug().Int("count", len(paths)).Msg("temp files cleaned up")
	}
}
