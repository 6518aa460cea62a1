package api

import (
	"errors"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/dictation/internal/audio"
	"github.com/snarg/dictation/internal/events"
	"github.com/snarg/dictation/internal/history"
	"github.com/snarg/dictation/internal/transcribe"
	"github.com/snarg/dictation/internal/watch"
)

const maxUploadBytes = 1 << 30

// TranscriptionsHandler accepts audio uploads and serves history.
type TranscriptionsHandler struct {
	ctl           Controller
	events        EventSource
	history       HistoryStore
	tempDir       string
	uploadTimeout time.Duration
	log           zerolog.Logger
}

// NewTranscriptionsHandler builds the handler. A positive uploadTimeout
// replaces the server read deadline while an upload body is read.
func NewTranscriptionsHandler(ctl Controller, src EventSource, hist HistoryStore, tempDir string, uploadTimeout time.Duration, log zerolog.Logger) *TranscriptionsHandler {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &TranscriptionsHandler{
		ctl:           ctl,
		events:        src,
		history:       hist,
		tempDir:       tempDir,
		uploadTimeout: uploadTimeout,
		log:           log.With().Str("handler", "transcriptions").Logger(),
	}
}

func (h *TranscriptionsHandler) Routes(r chi.Router) {
	r.Post("/transcriptions", h.Upload)
	r.Get("/transcriptions", h.List)
	r.Get("/transcriptions/{id}", h.Get)
}

type uploadResponse struct {
	JobID   string `json:"job_id"`
	Outcome string `json:"outcome,omitempty"`
	Text    string `json:"text,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Upload handles POST /api/v1/transcriptions.
// The multipart "file" field is queued as a job. With ?wait=true the request
// blocks until the job finishes and returns its outcome.
func (h *TranscriptionsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.uploadTimeout > 0 {
		// Fails only on writers without deadline support, e.g. recorders.
		_ = http.NewResponseController(w).SetReadDeadline(time.Now().Add(h.uploadTimeout))
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "missing file", err.Error())
		return
	}
	defer file.Close()
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !watch.AudioExtensions[ext] {
		WriteErrorDetail(w, http.StatusUnsupportedMediaType, "unsupported audio type", ext)
		return
	}

	path := filepath.Join(h.tempDir, audio.UploadPrefix+uuid.NewString()+ext)
	if err := saveUpload(path, file); err != nil {
		h.log.Error().Err(err).Str("path", path).Msg("failed to save upload")
		WriteError(w, http.StatusInternalServerError, "failed to save upload")
		return
	}

	job := transcribe.NewJob(path, transcribe.SourceUpload)
	job.RemoveSource = true

	wait, _ := QueryBool(r, "wait")
	var done <-chan events.Event
	if wait {
		ch, cancel := h.events.Subscribe(events.Filter{
			JobID: job.ID,
			Types: []string{events.TypeResult, events.TypeError, events.TypeCancelled},
		})
		defer cancel()
		done = ch
	}

	if !h.ctl.Enqueue(job) {
		os.Remove(path)
		WriteError(w, http.StatusServiceUnavailable, "transcription queue full")
		return
	}
	h.log.Info().Str("job_id", job.ID).Str("filename", header.Filename).Int64("bytes", header.Size).Msg("upload queued")

	if !wait {
		WriteJSON(w, http.StatusAccepted, uploadResponse{JobID: job.ID})
		return
	}

	select {
	case <-r.Context().Done():
		return
	case e := <-done:
		resp := uploadResponse{JobID: job.ID}
		switch e.Type {
		case events.TypeResult:
			resp.Outcome = string(transcribe.OutcomeCompleted)
			resp.Text = e.Message
		case events.TypeCancelled:
			resp.Outcome = string(transcribe.OutcomeCancelled)
		default:
			resp.Outcome = string(transcribe.OutcomeFailed)
			resp.Error = e.Message
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func saveUpload(path string, src io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// List handles GET /api/v1/transcriptions.
func (h *TranscriptionsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		WriteError(w, http.StatusServiceUnavailable, "history not enabled")
		return
	}
	f, err := parseListFilter(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, total, err := h.history.List(r.Context(), f)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list history")
		WriteError(w, http.StatusInternalServerError, "failed to list transcriptions")
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"transcriptions": entries,
		"total":          total,
		"limit":          f.Limit,
		"offset":         f.Offset,
	})
}

// parseListFilter reads outcome, q, limit (1..500, default 50) and offset.
func parseListFilter(r *http.Request) (history.ListFilter, error) {
	var f history.ListFilter
	var err error
	if f.Limit, err = QueryInt(r, "limit", 50, 1, 500); err != nil {
		return f, err
	}
	if f.Offset, err = QueryInt(r, "offset", 0, 0, math.MaxInt32); err != nil {
		return f, err
	}
	f.Outcome, _ = QueryString(r, "outcome")
	f.Search, _ = QueryString(r, "q")
	return f, nil
}

// Get handles GET /api/v1/transcriptions/{id}, where id is the job ID.
func (h *TranscriptionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		WriteError(w, http.StatusServiceUnavailable, "history not enabled")
		return
	}
	e, err := h.history.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, history.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "transcription not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("failed to get history entry")
		WriteError(w, http.StatusInternalServerError, "failed to get transcription")
		return
	}
	WriteJSON(w, http.StatusOK, e)
}
