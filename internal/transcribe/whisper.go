package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// WhisperClient calls a self-hosted OpenAI-compatible
// /v1/audio/transcriptions endpoint (speaches, whisper-server, etc).
type WhisperClient struct {
	url    string
	model  string
	client *http.Client
}

type whisperResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

// NewWhisperClient creates a Whisper HTTP client.
func NewWhisperClient(url, model string, client *http.Client) *WhisperClient {
	return &WhisperClient{url: url, model: model, client: client}
}

func (wc *WhisperClient) Name() string  { return "whisper" }
func (wc *WhisperClient) Model() string { return wc.model }

// Transcribe sends an audio file and returns the result. Only non-default
// parameters are sent so servers that reject unknown fields keep working.
func (wc *WhisperClient) Transcribe(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error) {
	fields := []formField{
		{"model", wc.model},
		{"language", opts.Language},
		{"prompt", opts.Prompt},
		{"response_format", "verbose_json"},
	}
	if opts.Temperature > 0 {
		fields = append(fields, formField{"temperature", fmt.Sprintf("%.2f", opts.Temperature)})
	}

	body, err := postAudio(ctx, wc.client, wc.url, "file", audioPath, fields, nil)
	if err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}

	var result whisperResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &Response{Text: result.Text, Language: result.Language, Duration: result.Duration}, nil
}
