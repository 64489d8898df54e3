package speech

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kuitang/studynotes/internal/audiocache"
	"github.com/kuitang/studynotes/internal/errs"
	"github.com/kuitang/studynotes/internal/highlight"
	"github.com/kuitang/studynotes/internal/obs"
)

// Cache is the audio cache surface the service needs.
type Cache interface {
	Get(ctx context.Context, ownerID, fingerprint string) ([]byte, bool)
	Put(ctx context.Context, ownerID, fingerprint, title string, audio []byte) error
}

// Result is synthesized audio for one content body.
type Result struct {
	Audio       []byte
	Fingerprint string
	Cached      bool
}

// DefaultSynthesisTimeout bounds one shared synthesis.
const DefaultSynthesisTimeout = 90 * time.Second

// Service reads note content aloud, caching audio per owner.
type Service struct {
	synth   Synthesizer
	cache   Cache
	voice   Voice
	timeout time.Duration
	group   singleflight.Group
}

// NewService creates a speech service. An empty voice uses DefaultVoice.
func NewService(synth Synthesizer, cache Cache, voice Voice) *Service {
	if voice == "" {
		voice = DefaultVoice
	}
	return &Service{synth: synth, cache: cache, voice: voice, timeout: DefaultSynthesisTimeout}
}

// Speak returns audio for content, synthesizing it only when the cache has
// no entry for the content's fingerprint. Cache write failures are logged
// and the audio is still returned.
func (s *Service) Speak(ctx context.Context, ownerID, title, content string) (Result, error) {
	if strings.TrimSpace(ownerID) == "" {
		return Result{}, errs.New(errs.InvalidArgument, "owner ID is required")
	}
	text := highlight.PlainText(content)
	if strings.TrimSpace(text) == "" {
		return Result{}, errs.New(errs.InvalidArgument, "nothing to read: content is empty")
	}
	fp := audiocache.Fingerprint(content)
	log := obs.From(ctx).With("owner_id", ownerID, "fingerprint", fp)

	if audio, ok := s.cache.Get(ctx, ownerID, fp); ok {
		log.Debug("speech.cache_hit")
		return Result{Audio: audio, Fingerprint: fp, Cached: true}, nil
	}

	// Detached from the caller: others may be waiting on the same flight.
	flight := s.group.DoChan(ownerID+"/"+fp, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		audio, err := s.synth.Synthesize(fctx, text, s.voice)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Put(fctx, ownerID, fp, title, audio); err != nil {
			log.Warn("speech.cache_write_failed", "error", err)
		}
		return audio, nil
	})

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case res := <-flight:
		if res.Err != nil {
			return Result{}, res.Err
		}
		log.Info("speech.cache_miss", "shared", res.Shared)
		return Result{Audio: res.Val.([]byte), Fingerprint: fp}, nil
	}
}

// IsCurrent reports whether audio with fingerprint still matches content.
// Audio for superseded content is stale and should not be played.
func (s *Service) IsCurrent(fingerprint, content string) bool {
	return fingerprint != "" && fingerprint == audiocache.Fingerprint(content)
}
