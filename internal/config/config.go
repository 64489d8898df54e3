// Package config loads the server configuration from CLI flags and
// environment variables, validates it, and fills in defaults.
//
// CLI flags control which external services are mocked (--no-s3, --no-ai,
// --no-tts, --test). Environment variables provide secrets and tuning.
package config

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kuitang/studynotes/internal/ai"
	"github.com/kuitang/studynotes/internal/audiocache"
	"github.com/kuitang/studynotes/internal/notes"
	"github.com/kuitang/studynotes/internal/ratelimit"
	"github.com/kuitang/studynotes/internal/speech"
)

const (
	defaultTigrisRegion = "auto"
	defaultBucketName   = "studynotes-audio"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	ListenAddr string

	// Database and encryption
	MasterKey    string // 64 hex characters (32 bytes)
	DatabasePath string // Directory holding studynotes.db
	StorageLimit int64  // Bytes of note and tile text; 0 means unlimited

	// Rate limiting of the AI and speech routes
	RateLimitConfig ratelimit.Config
	TrustedProxies  string // Comma-separated IPs/CIDRs allowed to set X-Forwarded-For

	// Mock service flags (controlled by CLI flags, not env vars)
	NoS3  bool // --no-s3: in-process S3 for audio blobs
	NoAI  bool // --no-ai: deterministic term extraction and formatting
	NoTTS bool // --no-tts: deterministic fake audio

	// OpenAI
	OpenAIAPIKey string
	OpenAIModel  string

	// ElevenLabs
	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string
	ElevenLabsModelID string

	// Audio cache
	AudioCacheMaxAge   time.Duration
	AudioSweepInterval time.Duration

	// S3/Tigris Storage (uses AWS_ env vars, set automatically by `fly storage create`)
	AWSEndpointS3      string // AWS_ENDPOINT_URL_S3
	AWSRegion          string // AWS_REGION
	AWSAccessKeyID     string // AWS_ACCESS_KEY_ID
	AWSSecretAccessKey string // AWS_SECRET_ACCESS_KEY
	AWSBucketName      string // BUCKET_NAME
}

// Flags are the CLI switches.
type Flags struct {
	NoS3  bool
	NoAI  bool
	NoTTS bool
	Addr  string
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// ParseFlags parses args (normally os.Args[1:]). --test is shorthand for
// --no-s3 --no-ai --no-tts.
func ParseFlags(args []string) (Flags, error) {
	var f Flags
	var testMode bool
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.BoolVar(&f.NoS3, "no-s3", false, "Use in-process S3 for audio blobs")
	fs.BoolVar(&f.NoAI, "no-ai", false, "Use the deterministic mock AI service")
	fs.BoolVar(&f.NoTTS, "no-tts", false, "Use the mock speech synthesizer")
	fs.BoolVar(&testMode, "test", false, "Shorthand for --no-s3 --no-ai --no-tts")
	fs.StringVar(&f.Addr, "addr", "", "Listen address (default :8080, overrides LISTEN_ADDR env var)")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	if testMode {
		f.NoS3 = true
		f.NoAI = true
		f.NoTTS = true
	}
	return f, nil
}

// LoadConfig loads configuration from environment variables and flag values.
// A non-empty f.Addr overrides LISTEN_ADDR.
func LoadConfig(f Flags) (*Config, error) {
	cfg := &Config{
		NoS3:  f.NoS3,
		NoAI:  f.NoAI,
		NoTTS: f.NoTTS,
	}

	cfg.ListenAddr = getEnvOrDefault("LISTEN_ADDR", ":8080")
	if f.Addr != "" {
		cfg.ListenAddr = f.Addr
	}

	cfg.MasterKey = getEnvOrDefault("MASTER_KEY", "")
	cfg.DatabasePath = getEnvOrDefault("DATABASE_PATH", "/data")
	cfg.StorageLimit = parseInt64OrDefault("NOTES_STORAGE_LIMIT_BYTES", notes.DefaultStorageLimitBytes)

	def := ratelimit.DefaultConfig
	cfg.RateLimitConfig = ratelimit.Config{
		RPS:             parseFloat64OrDefault("RATE_LIMIT_RPS", def.RPS),
		Burst:           parseIntOrDefault("RATE_LIMIT_BURST", def.Burst),
		CleanupInterval: parseDurationOrDefault("RATE_LIMIT_CLEANUP_INTERVAL", def.CleanupInterval),
	}
	cfg.TrustedProxies = getEnvOrDefault("TRUSTED_PROXIES", "")

	cfg.OpenAIAPIKey = getEnvOrDefault("OPENAI_API_KEY", "")
	cfg.OpenAIModel = getEnvOrDefault("OPENAI_MODEL", ai.DefaultModel)

	cfg.ElevenLabsAPIKey = getEnvOrDefault("ELEVENLABS_API_KEY", "")
	cfg.ElevenLabsVoiceID = getEnvOrDefault("ELEVENLABS_VOICE_ID", string(speech.DefaultVoice))
	cfg.ElevenLabsModelID = getEnvOrDefault("ELEVENLABS_MODEL_ID", speech.DefaultModelID)

	cfg.AudioCacheMaxAge = parseDurationOrDefault("AUDIO_CACHE_MAX_AGE", audiocache.DefaultMaxAge)
	cfg.AudioSweepInterval = parseDurationOrDefault("AUDIO_SWEEP_INTERVAL", time.Hour)

	cfg.AWSEndpointS3 = getEnvOrDefault("AWS_ENDPOINT_URL_S3", "")
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", defaultTigrisRegion)
	cfg.AWSAccessKeyID = getEnvOrDefault("AWS_ACCESS_KEY_ID", "")
	cfg.AWSSecretAccessKey = getEnvOrDefault("AWS_SECRET_ACCESS_KEY", "")
	cfg.AWSBucketName = getEnvOrDefault("BUCKET_NAME", "")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present and valid.
// When a service is not mocked, its secrets are required.
func (c *Config) Validate() error {
	var errs []string

	if !c.NoAI && c.OpenAIAPIKey == "" {
		errs = append(errs, "OPENAI_API_KEY is required (set env var or use --no-ai)")
	}
	if !c.NoTTS && c.ElevenLabsAPIKey == "" {
		errs = append(errs, "ELEVENLABS_API_KEY is required (set env var or use --no-tts)")
	}

	if !c.NoS3 {
		if c.AWSEndpointS3 == "" {
			errs = append(errs, "AWS_ENDPOINT_URL_S3 is required (set env var or use --no-s3)")
		}
		if c.AWSBucketName == "" {
			errs = append(errs, "BUCKET_NAME is required (set env var or use --no-s3)")
		}
		if c.AWSAccessKeyID == "" {
			errs = append(errs, "AWS_ACCESS_KEY_ID is required (set env var or use --no-s3)")
		}
		if c.AWSSecretAccessKey == "" {
			errs = append(errs, "AWS_SECRET_ACCESS_KEY is required (set env var or use --no-s3)")
		}
	}

	// Losing the master key makes the database unreadable.
	if c.MasterKey == "" {
		errs = append(errs, "MASTER_KEY is required (generate with: openssl rand -hex 32)")
	} else if _, err := c.MasterKeyBytes(); err != nil {
		errs = append(errs, "MASTER_KEY must be 64 hex characters (32 bytes)")
	}

	if c.StorageLimit < 0 {
		errs = append(errs, "NOTES_STORAGE_LIMIT_BYTES must not be negative")
	}
	if c.RateLimitConfig.RPS <= 0 {
		errs = append(errs, "RATE_LIMIT_RPS must be positive")
	}
	if c.RateLimitConfig.Burst <= 0 {
		errs = append(errs, "RATE_LIMIT_BURST must be positive")
	}
	if _, err := ratelimit.ParseTrustedProxies(c.TrustedProxies); err != nil {
		errs = append(errs, fmt.Sprintf("TRUSTED_PROXIES is invalid: %v", err))
	}
	if c.AudioCacheMaxAge <= 0 {
		errs = append(errs, "AUDIO_CACHE_MAX_AGE must be positive")
	}
	if c.AudioSweepInterval <= 0 {
		errs = append(errs, "AUDIO_SWEEP_INTERVAL must be positive")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// MasterKeyBytes decodes MASTER_KEY.
func (c *Config) MasterKeyBytes() ([]byte, error) {
	key, err := hex.DecodeString(c.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("decode MASTER_KEY: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("MASTER_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// RateLimitKey returns the client key for the rate limiter. Without
// trusted proxies only the connection address is used.
func (c *Config) RateLimitKey() (func(*http.Request) string, error) {
	trusted, err := ratelimit.ParseTrustedProxies(c.TrustedProxies)
	if err != nil {
		return nil, err
	}
	if len(trusted) == 0 {
		return ratelimit.ClientIP, nil
	}
	return ratelimit.ProxiedClientIP(trusted), nil
}

// BucketName returns the audio bucket, with a default for the in-process S3.
func (c *Config) BucketName() string {
	if c.AWSBucketName == "" {
		return defaultBucketName
	}
	return c.AWSBucketName
}

// IsDevelopment returns true if any mock services are enabled.
func (c *Config) IsDevelopment() bool {
	return c.NoS3 || c.NoAI || c.NoTTS
}

// PrintStartupSummary prints a human-readable summary of the configuration to w.
func (c *Config) PrintStartupSummary(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "studynotes server starting...")

	if c.NoAI {
		fmt.Fprintln(w, "  AI:      Mock (--no-ai)")
	} else {
		fmt.Fprintf(w, "  AI:      OpenAI (real, model: %s)\n", c.OpenAIModel)
	}

	if c.NoTTS {
		fmt.Fprintln(w, "  Speech:  Mock (--no-tts)")
	} else {
		fmt.Fprintf(w, "  Speech:  ElevenLabs (real, voice: %s)\n", c.ElevenLabsVoiceID)
	}

	if c.NoS3 {
		fmt.Fprintln(w, "  Audio:   Mock S3 (--no-s3)")
	} else {
		fmt.Fprintf(w, "  Audio:   S3 (real, endpoint: %s, bucket: %s)\n", c.AWSEndpointS3, c.AWSBucketName)
	}
	fmt.Fprintf(w, "  Cache:   max age %s, sweep every %s\n", c.AudioCacheMaxAge, c.AudioSweepInterval)

	fmt.Fprintln(w, "  Master:  From MASTER_KEY env var")
	fmt.Fprintf(w, "  Data:    %s\n", c.DatabasePath)
	fmt.Fprintf(w, "  Listen:  %s\n", c.ListenAddr)
	if c.TrustedProxies != "" {
		fmt.Fprintf(w, "  Proxies: %s\n", c.TrustedProxies)
	}
	fmt.Fprintln(w, "")
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseInt64OrDefault(key string, defaultValue int64) int64 {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloat64OrDefault(key string, defaultValue float64) float64 {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
