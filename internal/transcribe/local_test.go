package transcribe

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// fakeWhisperCLI writes a shell script that echoes its arguments after the
// transcript so tests can check the flags it was given.
func fakeWhisperCLI(t *testing.T) (cmd, modelDir string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script CLI stand-in needs a POSIX shell")
	}
	dir := t.TempDir()
	cmd = filepath.Join(dir, "whisper-cli")
	script := "#!/bin/sh\necho '  hello from'\necho '  local   whisper '\necho \"ARGS $*\" >&2\n"
	if err := os.WriteFile(cmd, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	modelDir = filepath.Join(dir, "models")
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		t.Fatal(err)
	}
	return cmd, modelDir
}

func TestLocalBackend(t *testing.T) {
	cmd, modelDir := fakeWhisperCLI(t)

	b, err := NewLocalBackend(LocalOptions{Command: cmd + " --threads 2", ModelDir: modelDir, Model: "tiny", Language: "en", Log: nopLog})
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}
	if b.Name() != "local/tiny" {
		t.Errorf("Name = %q", b.Name())
	}
	if b.ModelPath() != filepath.Join(modelDir, "ggml-tiny.bin") {
		t.Errorf("ModelPath = %q", b.ModelPath())
	}

	t.Run("unavailable_without_model", func(t *testing.T) {
		if b.Available() {
			t.Error("Available should be false before the model exists")
		}
		_, err := b.Transcribe(context.Background(), "in.wav")
		if KindOf(classify("x", err, 0)) != KindBackendUnavailable {
			t.Errorf("err = %v, want backend unavailable", err)
		}
	})

	if err := os.WriteFile(b.ModelPath(), []byte("model"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("transcribes", func(t *testing.T) {
		if !b.Available() {
			t.Fatal("Available should be true once the model exists")
		}
		text, err := b.Transcribe(context.Background(), writeAudio(t))
		if err != nil {
			t.Fatalf("Transcribe: %v", err)
		}
		if text != "hello from local whisper" {
			t.Errorf("text = %q", text)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		b.Cancel()
		defer b.ResetCancel()
		if _, err := b.Transcribe(context.Background(), writeAudio(t)); err != ErrCancelled {
			t.Errorf("err = %v, want ErrCancelled", err)
		}
	})
}

func TestNewLocalBackendErrors(t *testing.T) {
	for _, cmd := range []string{"", "  ", `whisper "unterminated`} {
		if _, err := NewLocalBackend(LocalOptions{Command: cmd}); err == nil {
			t.Errorf("NewLocalBackend(%q) should fail", cmd)
		}
	}
}

func TestLocalBackendFailureIncludesStderr(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	dir := t.TempDir()
	cmd := filepath.Join(dir, "broken")
	os.WriteFile(cmd, []byte("#!/bin/sh\necho 'failed to load model' >&2\nexit 3\n"), 0o755)
	os.WriteFile(filepath.Join(dir, "ggml-base.bin"), nil, 0o644)

	b, err := NewLocalBackend(LocalOptions{Command: cmd, ModelDir: dir, Model: "base", Log: nopLog})
	if err != nil {
		t.Fatal(err)
	}
	_, err = b.Transcribe(context.Background(), writeAudio(t))
	if err == nil || !strings.Contains(err.Error(), "failed to load model") {
		t.Errorf("err = %v, want stderr in message", err)
	}
}
