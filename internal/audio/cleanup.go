package audio

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// UploadPrefix names audio files received over the API before they are
// queued.
const UploadPrefix = "upload_"

// Prefixes of temporary artifacts left behind by an interrupted run.
var stalePrefixes = []string{chunkDirPrefix, "RecordTemp_", UploadPrefix}

// CleanupStale removes leftover chunk directories, recordings and uploads
// in dir that are older than minAge. It returns how many entries it removed.
func CleanupStale(dir string, minAge time.Duration, log zerolog.Logger) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("stale temp scan failed")
		return 0
	}
	cutoff := time.Now().Add(-minAge)
	removed := 0
	for _, e := range entries {
		if !hasStalePrefix(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("failed to remove stale temp entry")
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Str("dir", dir).Msg("stale temp files removed")
	}
	return removed
}

func hasStalePrefix(name string) bool {
	for _, p := range stalePrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
