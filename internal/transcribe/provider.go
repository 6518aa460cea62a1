package transcribe

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// Provider is a remote speech-to-text API.
type Provider interface {
	Transcribe(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error)
	Name() string  // "openai", "whisper", "deepinfra", "elevenlabs"
	Model() string // model identifier for history and logs
}

// TranscribeOpts are per-request options. Zero values are omitted.
type TranscribeOpts struct {
	Language    string
	Prompt      string
	Temperature float64
}

// Response is the common transcription result from any provider.
type Response struct {
	Text     string
	Language string
	Duration float64 // audio duration in seconds, 0 if unknown
}

// NewHTTPClient builds the client shared by the HTTP providers.
func NewHTTPClient(timeout time.Duration, enableHTTP2 bool) *http.Client {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if enableHTTP2 {
		_ = http2.ConfigureTransport(tr)
	}
	return &http.Client{Transport: tr, Timeout: timeout}
}
