package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/rs/zerolog"
	"github.com/snarg/dictation/internal/audio"
)

// LocalOptions configures a LocalBackend.
type LocalOptions struct {
	Command   string // whisper.cpp CLI, may include extra flags
	ModelDir  string
	Model     string // "base", "small", ... resolved to ggml-<model>.bin
	Language  string
	Prompt    string
	Converter audio.Converter // nil = pass input through as-is
	TempDir   string
	Log       zerolog.Logger
}

// LocalBackend runs an on-device whisper.cpp model through its CLI.
// It has no chunk batch method; the orchestrator transcribes chunks one by one.
type LocalBackend struct {
	flags
	cmd       []string
	modelPath string
	opts      LocalOptions
	log       zerolog.Logger
}

// NewLocalBackend parses the command line. The model file is not checked
// until Available or Transcribe.
func NewLocalBackend(opts LocalOptions) (*LocalBackend, error) {
	args, err := shellwords.NewParser().Parse(opts.Command)
	if err != nil {
		return nil, fmt.Errorf("parse local whisper command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("local whisper command is empty")
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	return &LocalBackend{
		cmd:       args,
		modelPath: filepath.Join(opts.ModelDir, "ggml-"+opts.Model+".bin"),
		opts:      opts,
		log:       opts.Log,
	}, nil
}

func (b *LocalBackend) Name() string { return "local/" + b.opts.Model }

// ModelPath is the resolved model file.
func (b *LocalBackend) ModelPath() string { return b.modelPath }

func (b *LocalBackend) Available() bool {
	if _, err := exec.LookPath(b.cmd[0]); err != nil {
		return false
	}
	_, err := os.Stat(b.modelPath)
	return err == nil
}

func (b *LocalBackend) Transcribe(ctx context.Context, path string) (string, error) {
	if !b.Available() {
		return "", fmt.Errorf("%s: %w (command %q, model %s)", b.Name(), ErrBackendUnavailable, b.cmd[0], b.modelPath)
	}
	if err := b.acquire(); err != nil {
		return "", err
	}
	defer b.release()

	if err := b.checkCancel(); err != nil {
		return "", err
	}
	input, cleanup, err := b.prepareInput(ctx, path)
	if err != nil {
		return "", err
	}
	defer cleanup()

	args := append([]string{}, b.cmd[1:]...)
	args = append(args, "-m", b.modelPath, "-f", input, "-nt", "-np")
	if b.opts.Language != "" {
		args = append(args, "-l", b.opts.Language)
	}
	if b.opts.Prompt != "" {
		args = append(args, "--prompt", b.opts.Prompt)
	}

	cmd := exec.CommandContext(ctx, b.cmd[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("local whisper failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	if err := b.checkCancel(); err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(stdout.String()), " "), nil
}

// prepareInput converts non-PCM input into a temporary WAV the CLI can read.
// The returned cleanup removes that temporary file.
func (b *LocalBackend) prepareInput(ctx context.Context, path string) (string, func(), error) {
	noop := func() {}
	if b.opts.Converter == nil {
		return path, noop, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", noop, fmt.Errorf("open audio file: %w", err)
	}
	pcm := audio.IsPCMWav(f)
	f.Close()
	if pcm {
		return path, noop, nil
	}

	tmp, err := os.CreateTemp(b.opts.TempDir, "local_whisper_*.wav")
	if err != nil {
		return "", noop, fmt.Errorf("create temp file: %w", err)
	}
	tmp.Close()
	if err := b.opts.Converter.ToWav(ctx, path, tmp.Name()); err != nil {
		os.Remove(tmp.Name())
		return "", noop, fmt.Errorf("convert input: %w", err)
	}
	return tmp.Name(), func() { os.Remove(tmp.Name()) }, nil
}
