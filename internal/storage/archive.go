package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/dictation/internal/transcribe"
)

// Archive stores the audio, transcript and metadata of finished jobs.
// Cancelled jobs are not archived.
type Archive struct {
	store Store
	log   zerolog.Logger
}

type archiveMeta struct {
	JobID      string    `json:"job_id"`
	Source     string    `json:"source"`
	Backend    string    `json:"backend"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	SizeMB     float64   `json:"size_mb"`
	Chunks     int       `json:"chunks"`
	DurationMs int64     `json:"duration_ms"`
	Finished   time.Time `json:"finished"`
	AudioKey   string    `json:"audio_key,omitempty"`
	TextKey    string    `json:"text_key,omitempty"`
}

// NewArchive wraps store.
func NewArchive(store Store, log zerolog.Logger) *Archive {
	return &Archive{store: store, log: log.With().Str("component", "archive").Logger()}
}

// Save archives one job and returns the keys written.
func (a *Archive) Save(ctx context.Context, job transcribe.Job, res transcribe.Result) ([]string, error) {
	if res.Outcome == transcribe.OutcomeCancelled {
		return nil, nil
	}
	finished := res.Finished
	if finished.IsZero() {
		finished = time.Now()
	}
	base := finished.UTC().Format("2006-01-02") + "/" + res.JobID

	meta := archiveMeta{
		JobID:      res.JobID,
		Source:     job.Source,
		Backend:    res.Backend,
		Outcome:    string(res.Outcome),
		SizeMB:     res.SizeMB,
		Chunks:     res.Chunks,
		DurationMs: res.Duration.Milliseconds(),
		Finished:   finished,
	}
	if res.Err != nil {
		meta.Error = res.Err.Error()
	}

	var keys []string
	if data, err := os.ReadFile(job.AudioPath); err == nil {
		ext := strings.ToLower(filepath.Ext(job.AudioPath))
		if ext == "" {
			ext = ".wav"
		}
		key := base + ext
		if err := a.store.Save(ctx, key, data, audioContentType(ext)); err != nil {
			return keys, fmt.Errorf("archive audio: %w", err)
		}
		meta.AudioKey = key
		keys = append(keys, key)
	} else {
		a.log.Debug().Err(err).Str("path", job.AudioPath).Msg("audio not archived")
	}

	if res.Outcome == transcribe.OutcomeCompleted {
		key := base + ".txt"
		if err := a.store.Save(ctx, key, []byte(res.Text+"\n"), "text/plain; charset=utf-8"); err != nil {
			return keys, fmt.Errorf("archive transcript: %w", err)
		}
		meta.TextKey = key
		keys = append(keys, key)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return keys, fmt.Errorf("marshal metadata: %w", err)
	}
	if err := a.store.Save(ctx, base+".json", data, "application/json"); err != nil {
		return keys, fmt.Errorf("archive metadata: %w", err)
	}
	keys = append(keys, base+".json")

	a.log.Debug().Str("job_id", res.JobID).Strs("keys", keys).Str("store", a.store.Type()).Msg("job archived")
	return keys, nil
}

// HandleResult archives a finished job.
func (a *Archive) HandleResult(ctx context.Context, job transcribe.Job, res transcribe.Result) error {
	_, err := a.Save(ctx, job, res)
	return err
}

func audioContentType(ext string) string {
	switch ext {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	case ".webm":
		return "audio/webm"
	}
	return "application/octet-stream"
}
