package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/dictation/internal/config"
	"github.com/snarg/dictation/internal/transcribe"
)

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir)
	ctx := context.Background()

	if s.Exists(ctx, "2024-01-02/a.txt") {
		t.Error("Exists before Save")
	}
	if err := s.Save(ctx, "2024-01-02/a.txt", []byte("hi"), "text/plain"); err != nil {
		t.Fatal(err)
	}
	if !s.Exists(ctx, "2024-01-02/a.txt") {
		t.Error("Exists after Save")
	}
	data, _ := os.ReadFile(filepath.Join(dir, "2024-01-02", "a.txt"))
	if string(data) != "hi" {
		t.Errorf("data = %q", data)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "2024-01-02"))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestArchive(t *testing.T) {
	dir := t.TempDir()
	audioPath := filepath.Join(t.TempDir(), "RecordTemp_abc.wav")
	os.WriteFile(audioPath, []byte("RIFF"), 0o644)
	finished := time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC)
	a := NewArchive(NewLocalStore(dir), zerolog.Nop())
	ctx := context.Background()

	tests := []struct {
		name     string
		res      transcribe.Result
		wantKeys []string
	}{
		{
			name:     "completed",
			res:      transcribe.Result{JobID: "j1", Outcome: transcribe.OutcomeCompleted, Text: "hello", Finished: finished},
			wantKeys: []string{"2024-03-09/j1.wav", "2024-03-09/j1.txt", "2024-03-09/j1.json"},
		},
		{
			name:     "failed_has_no_text",
			res:      transcribe.Result{JobID: "j2", Outcome: transcribe.OutcomeFailed, Err: errors.New("boom"), Finished: finished},
			wantKeys: []string{"2024-03-09/j2.wav", "2024-03-09/j2.json"},
		},
		{
			name: "cancelled_not_archived",
			res:  transcribe.Result{JobID: "j3", Outcome: transcribe.OutcomeCancelled, Finished: finished},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys, err := a.Save(ctx, transcribe.Job{AudioPath: audioPath, Source: "hotkey"}, tt.res)
			if err != nil {
				t.Fatal(err)
			}
			if strings.Join(keys, ",") != strings.Join(tt.wantKeys, ",") {
				t.Errorf("keys = %v, want %v", keys, tt.wantKeys)
			}
		})
	}

	var meta archiveMeta
	data, err := os.ReadFile(filepath.Join(dir, "2024-03-09", "j2.json"))
	if err != nil {
		t.Fatal(err)
	}
	json.Unmarshal(data, &meta)
	if meta.Outcome != "failed" || meta.Error != "boom" || meta.Source != "hotkey" || meta.AudioKey != "2024-03-09/j2.wav" {
		t.Errorf("meta = %+v", meta)
	}
	text, _ := os.ReadFile(filepath.Join(dir, "2024-03-09", "j1.txt"))
	if string(text) != "hello\n" {
		t.Errorf("transcript = %q", text)
	}
}

func TestArchiveMissingAudio(t *testing.T) {
	a := NewArchive(NewLocalStore(t.TempDir()), zerolog.Nop())
	keys, err := a.Save(context.Background(),
		transcribe.Job{AudioPath: "/nonexistent/x.wav"},
		transcribe.Result{JobID: "j", Outcome: transcribe.OutcomeCompleted, Text: "t", Finished: time.Unix(0, 0)})
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Errorf("keys = %v, want text and metadata only", keys)
	}
}

type fakeSaver struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (f *fakeSaver) Save(_ context.Context, key string, _ []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return f.err
}

func TestMirrorStore(t *testing.T) {
	dst := &fakeSaver{err: errors.New("s3 down")}
	up := NewAsyncUploader(dst, 8, zerolog.Nop())
	up.Start(1)
	s := NewMirrorStore(NewLocalStore(t.TempDir()), up, zerolog.Nop())

	ctx := context.Background()
	if err := s.Save(ctx, "d/a.txt", []byte("x"), "text/plain"); err != nil {
		t.Fatalf("Save should succeed when S3 fails: %v", err)
	}
	up.Stop()
	up.Stop()

	if !s.Exists(ctx, "d/a.txt") {
		t.Error("local copy missing")
	}
	if len(dst.keys) != 1 || dst.keys[0] != "d/a.txt" {
		t.Errorf("uploaded keys = %v", dst.keys)
	}
	up.Enqueue("late", nil, "") // ignored after Stop
}

func TestS3Store(t *testing.T) {
	var mu sync.Mutex
	objects := map[string]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			objects[r.URL.Path] = string(body)
			w.WriteHeader(http.StatusOK)
		case http.MethodHead:
			if r.URL.Path == "/archive" {
				w.WriteHeader(http.StatusOK)
				return
			}
			if _, ok := objects[r.URL.Path]; ok {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	store, err := NewS3Store(config.S3Config{
		Bucket:    "archive",
		Endpoint:  srv.URL,
		Region:    "us-east-1",
		AccessKey: "test",
		SecretKey: "test",
		Prefix:    "laptop",
	}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := store.Check(ctx); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if err := store.Save(ctx, "2024-01-01/j.txt", []byte("hello"), "text/plain"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	mu.Lock()
	got := objects["/archive/laptop/transcriptions/2024-01-01/j.txt"]
	mu.Unlock()
	if got != "hello" {
		t.Errorf("stored objects = %v", objects)
	}
	if !store.Exists(ctx, "2024-01-01/j.txt") {
		t.Error("Exists should be true after Save")
	}
	if store.Exists(ctx, "2024-01-01/missing.txt") {
		t.Error("Exists should be false for a missing key")
	}
}

func TestNewWithoutTargets(t *testing.T) {
	s, stopper, err := New(config.S3Config{}, "", zerolog.Nop())
	if err != nil || s != nil || stopper != nil {
		t.Errorf("New() = %v, %v, %v; want all nil", s, stopper, err)
	}
	s, _, err = New(config.S3Config{}, t.TempDir(), zerolog.Nop())
	if err != nil || s.Type() != "local" {
		t.Errorf("New(dir) = %v, %v", s, err)
	}
}

type fakeRemote struct {
	fakeSaver
	present map[string]bool
}

func (f *fakeRemote) Exists(_ context.Context, key string) bool { return f.present[key] }

func TestReconciler(t *testing.T) {
	dir := t.TempDir()
	local := NewLocalStore(dir)
	ctx := context.Background()
	today := time.Now().UTC().Format("2006-01-02")

	local.Save(ctx, today+"/a.wav", []byte("RIFF"), "audio/wav")
	local.Save(ctx, today+"/a.txt", []byte("hi"), "text/plain")
	local.Save(ctx, "2001-01-01/old.txt", []byte("old"), "text/plain")
	os.WriteFile(filepath.Join(dir, today, ".archive-123.tmp"), []byte("x"), 0o644)

	t.Run("uploads_missing_recent_files", func(t *testing.T) {
		dst := &fakeRemote{present: map[string]bool{today + "/a.txt": true}}
		r := NewReconciler(local, dst, zerolog.Nop())
		uploaded, failed := r.Reconcile(ctx)
		if uploaded != 1 || failed != 0 {
			t.Errorf("uploaded=%d failed=%d, want 1/0", uploaded, failed)
		}
		if len(dst.keys) != 1 || dst.keys[0] != today+"/a.wav" {
			t.Errorf("uploaded keys = %v", dst.keys)
		}
	})

	t.Run("counts_failures", func(t *testing.T) {
		dst := &fakeRemote{fakeSaver: fakeSaver{err: errors.New("s3 down")}}
		r := NewReconciler(local, dst, zerolog.Nop())
		uploaded, failed := r.Reconcile(ctx)
		if uploaded != 0 || failed != 2 {
			t.Errorf("uploaded=%d failed=%d, want 0/2", uploaded, failed)
		}
	})

	t.Run("stop_before_first_pass", func(t *testing.T) {
		dst := &fakeRemote{}
		r := NewReconciler(local, dst, zerolog.Nop())
		r.Start()
		r.Stop()
		r.Stop()
		if len(dst.keys) != 0 {
			t.Errorf("uploaded before delay: %v", dst.keys)
		}
	})
}

func TestContentTypeFor(t *testing.T) {
	tests := map[string]string{
		"a.wav":  "audio/wav",
		"a.TXT":  "text/plain; charset=utf-8",
		"a.json": "application/json",
		"a.bin":  "application/octet-stream",
	}
	for name, want := range tests {
		if got := contentTypeFor(name); got != want {
			t.Errorf("contentTypeFor(%q) = %q, want %q", name, got, want)
		}
	}
}
