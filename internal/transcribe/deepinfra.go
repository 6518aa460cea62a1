package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const deepInfraBaseURL = "https://api.deepinfra.com/v1/inference/"

// DeepInfraClient calls DeepInfra's native inference API for Whisper models.
type DeepInfraClient struct {
	apiKey  string
	model   string // e.g. "openai/whisper-large-v3-turbo"
	baseURL string
	client  *http.Client
}

type deepInfraResponse struct {
	Text     string             `json:"text"`
	Language string             `json:"language"`
	Duration float64            `json:"duration"`
	Segments []deepInfraSegment `json:"segments"`
}

type deepInfraSegment struct {
	Text string  `json:"text"`
	End  float64 `json:"end"`
}

// NewDeepInfraClient creates a DeepInfra inference client.
func NewDeepInfraClient(apiKey, model string, client *http.Client) *DeepInfraClient {
	return &DeepInfraClient{apiKey: apiKey, model: model, baseURL: deepInfraBaseURL, client: client}
}

func (di *DeepInfraClient) Name() string  { return "deepinfra" }
func (di *DeepInfraClient) Model() string { return di.model }

// Transcribe posts to {baseURL}{model} with the file in the "audio" field.
func (di *DeepInfraClient) Transcribe(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error) {
	fields := []formField{
		{"language", opts.Language},
		{"initial_prompt", opts.Prompt},
	}
	if opts.Temperature > 0 {
		fields = append(fields, formField{"temperature", fmt.Sprintf("%.2f", opts.Temperature)})
	}
	headers := map[string]string{"Authorization": "Bearer " + di.apiKey}

	body, err := postAudio(ctx, di.client, di.baseURL+di.model, "audio", audioPath, fields, headers)
	if err != nil {
		return nil, fmt.Errorf("deepinfra: %w", err)
	}

	var result deepInfraResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	text := result.Text
	if text == "" && len(result.Segments) > 0 {
		parts := make([]string, 0, len(result.Segments))
		for _, seg := range result.Segments {
			parts = append(parts, strings.TrimSpace(seg.Text))
		}
		text = strings.Join(parts, " ")
	}
	duration := result.Duration
	if duration == 0 && len(result.Segments) > 0 {
		duration = result.Segments[len(result.Segments)-1].End
	}
	return &Response{Text: text, Language: result.Language, Duration: duration}, nil
}
