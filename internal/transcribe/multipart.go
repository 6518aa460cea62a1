package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

// maxErrorBody caps how much of a failed response is kept in StatusError.
const maxErrorBody = 4 << 10

// StatusError is returned when a transcription endpoint answers with a
// non-200 status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.Code, e.Body)
}

// formField is a non-file multipart field. Empty values are skipped.
type formField struct {
	name, value string
}

// audioForm is a multipart request body carrying one audio file.
type audioForm struct {
	buf         bytes.Buffer
	contentType string
}

func newAudioForm(fileField, audioPath string, fields []formField) (*audioForm, error) {
	src, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer src.Close()

	form := &audioForm{}
	mw := multipart.NewWriter(&form.buf)
	part, err := mw.CreateFormFile(fileField, filepath.Base(audioPath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, src); err != nil {
		return nil, fmt.Errorf("read audio file: %w", err)
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := mw.WriteField(f.name, f.value); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	form.contentType = mw.FormDataContentType()
	return form, nil
}

// postAudio uploads audioPath and returns the body of a 200 reply.
func postAudio(ctx context.Context, client *http.Client, url, fileField, audioPath string, fields []formField, headers map[string]string) ([]byte, error) {
	form, err := newAudioForm(fileField, audioPath, fields)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &form.buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", form.contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", filepath.Base(audioPath), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}
