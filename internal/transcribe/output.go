package transcribe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// OutputPathFor returns the default transcript path for audioPath: the same
// name with a .txt extension.
func OutputPathFor(audioPath string) string {
	return strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".txt"
}

// WriteOutput is a ResultSink that writes completed transcripts to
// job.OutputPath. Jobs without an output path are ignored.
var WriteOutput ResultSinkFunc = func(_ context.Context, job Job, res Result) error {
	if job.OutputPath == "" || res.Outcome != OutcomeCompleted {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(job.OutputPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp := job.OutputPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(res.Text+"\n"), 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	if err := os.Rename(tmp, job.OutputPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename transcript: %w", err)
	}
	return nil
}
