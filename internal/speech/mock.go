package speech

import (
	"context"
	"crypto/sha256"
	"sync/atomic"
)

// Mock returns deterministic fake audio derived from the text.
type Mock struct {
	// Err, when set, is returned by every call.
	Err   error
	calls atomic.Int64
}

func (m *Mock) Synthesize(_ context.Context, text string, voice Voice) ([]byte, error) {
	m.calls.Add(1)
	if m.Err != nil {
		return nil, m.Err
	}
	if err := validateText(text); err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(string(voice) + "\x00" + text))
	// ID3 header so players treat it as mp3.
	return append([]byte("ID3"), sum[:]...), nil
}

// Calls reports how many times Synthesize ran.
func (m *Mock) Calls() int64 {
	return m.calls.Load()
}
