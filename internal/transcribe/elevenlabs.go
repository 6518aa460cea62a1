package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const elevenLabsSTTEndpoint = "https://api.elevenlabs.io/v1/speech-to-text"

// ElevenLabsClient calls the ElevenLabs Speech-to-Text API.
type ElevenLabsClient struct {
	apiKey   string
	model    string // "scribe_v1" or "scribe_v2"
	keyterms string // comma-separated boost terms
	endpoint string
	client   *http.Client
}

type elevenlabsResponse struct {
	LanguageCode string `json:"language_code"`
	Text         string `json:"text"`
}

// NewElevenLabsClient creates an ElevenLabs STT client.
func NewElevenLabsClient(apiKey, model, keyterms string, client *http.Client) *ElevenLabsClient {
	return &ElevenLabsClient{
		apiKey:   apiKey,
		model:    model,
		keyterms: keyterms,
		endpoint: elevenLabsSTTEndpoint,
		client:   client,
	}
}

func (el *ElevenLabsClient) Name() string  { return "elevenlabs" }
func (el *ElevenLabsClient) Model() string { return el.model }

func (el *ElevenLabsClient) Transcribe(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error) {
	fields := []formField{
		{"model_id", el.model},
		{"language_code", opts.Language},
		{"tag_audio_events", "false"},
		{"keyterms", el.buildKeyterms()},
	}
	headers := map[string]string{"xi-api-key": el.apiKey}

	body, err := postAudio(ctx, el.client, el.endpoint, "file", audioPath, fields, headers)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: %w", err)
	}

	var result elevenlabsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &Response{Text: result.Text, Language: result.LanguageCode}, nil
}

// buildKeyterms turns the comma-separated config string into the JSON array
// of {"text": term} objects the API expects.
func (el *ElevenLabsClient) buildKeyterms() string {
	type keyterm struct {
		Text string `json:"text"`
	}
	var arr []keyterm
	for _, t := range strings.Split(el.keyterms, ",") {
		if t = strings.TrimSpace(t); t != "" {
			arr = append(arr, keyterm{Text: t})
		}
	}
	if len(arr) == 0 {
		return ""
	}
	b, _ := json.Marshal(arr)
	return string(b)
}
