// Package speech synthesizes note content to audio and serves repeats from
// the audio cache.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kuitang/studynotes/internal/errs"
	"github.com/kuitang/studynotes/internal/obs"
)

// Voice is a provider voice id.
type Voice string

const (
	// DefaultVoice is the ElevenLabs "Rachel" voice.
	DefaultVoice Voice = "21m00Tcm4TlvDq8ikWAM"

	// DefaultModelID is the ElevenLabs synthesis model.
	DefaultModelID = "eleven_monolingual_v1"

	// DefaultBaseURL is the ElevenLabs API root.
	DefaultBaseURL = "https://api.elevenlabs.io"

	// MaxTextChars is the longest text accepted for one synthesis.
	MaxTextChars = 5000

	maxAudioBytes = 32 << 20
)

// Synthesizer turns text into audio/mpeg bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice Voice) ([]byte, error)
}

// Config configures the ElevenLabs client.
type Config struct {
	APIKey  string
	BaseURL string
	ModelID string
	Timeout time.Duration
}

// ElevenLabs calls the ElevenLabs text-to-speech REST API.
type ElevenLabs struct {
	cfg        Config
	httpClient *http.Client
}

// NewElevenLabs validates cfg and fills defaults.
func NewElevenLabs(cfg Config) (*ElevenLabs, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing ElevenLabs API key")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.ModelID == "" {
		cfg.ModelID = DefaultModelID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &ElevenLabs{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type synthesizeRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

func (e *ElevenLabs) Synthesize(ctx context.Context, text string, voice Voice) ([]byte, error) {
	if err := validateText(text); err != nil {
		return nil, err
	}
	if voice == "" {
		voice = DefaultVoice
	}

	body, err := json.Marshal(synthesizeRequest{
		Text:          text,
		ModelID:       e.cfg.ModelID,
		VoiceSettings: voiceSettings{Stability: 0.5, SimilarityBoost: 0.5},
	})
	if err != nil {
		return nil, fmt.Errorf("encode speech request: %w", err)
	}

	endpoint := e.cfg.BaseURL + "/v1/text-to-speech/" + url.PathEscape(string(voice))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build speech request: %w", err)
	}
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.cfg.APIKey)

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	if err != nil {
		obs.From(ctx).Warn("speech.request_failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return nil, errs.Wrap(errs.Unavailable, "speech service unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := providerDetail(resp.Body)
		obs.From(ctx).Warn("speech.provider_error", "status", resp.StatusCode, "detail", obs.Truncate(detail, 200))
		return nil, errs.New(errs.Unavailable, fmt.Sprintf("speech synthesis failed (status %d): %s", resp.StatusCode, detail))
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes+1))
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "speech service unavailable", err)
	}
	if len(audio) > maxAudioBytes {
		return nil, errs.New(errs.Unavailable, "speech response too large")
	}
	if len(audio) == 0 {
		return nil, errs.New(errs.Unavailable, "speech service returned no audio")
	}

	obs.From(ctx).Info("speech.synthesized", "voice", string(voice), "chars", utf8.RuneCountInString(text),
		"bytes", len(audio), "duration_ms", time.Since(start).Milliseconds())
	return audio, nil
}

// providerDetail extracts the error detail from an ElevenLabs error body.
// detail is either a string or an object with a message.
func providerDetail(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 64*1024))
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err != nil || len(body.Detail) == 0 {
		if s := strings.TrimSpace(string(data)); s != "" {
			return obs.Truncate(s, 200)
		}
		return "Failed to generate speech"
	}
	var s string
	if json.Unmarshal(body.Detail, &s) == nil && s != "" {
		return s
	}
	var obj struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	}
	if json.Unmarshal(body.Detail, &obj) == nil && (obj.Message != "" || obj.Status != "") {
		if obj.Message == "" {
			return obj.Status
		}
		return obj.Message
	}
	return string(body.Detail)
}

func validateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return errs.New(errs.InvalidArgument, "text is required")
	}
	if n := utf8.RuneCountInString(text); n > MaxTextChars {
		return errs.New(errs.InvalidArgument, fmt.Sprintf("text is %d characters, limit is %d", n, MaxTextChars))
	}
	return nil
}
