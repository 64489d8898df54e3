package audiocache

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// ErrBlobNotFound is returned by a BlobStore for a missing key.
var ErrBlobNotFound = errors.New("audiocache: blob not found")

// Entry is the metadata of one cached synthesis.
type Entry struct {
	OwnerID     string    `json:"owner_id"`
	Fingerprint string    `json:"fingerprint"`
	Title       string    `json:"title"`
	BlobKey     string    `json:"blob_key"`
	Size        int64     `json:"size_bytes"`
	Timestamp   time.Time `json:"timestamp"`
}

// EntryStore persists entry metadata.
type EntryStore interface {
	Get(ctx context.Context, ownerID, fingerprint string) (Entry, bool, error)
	// Insert adds or replaces the entry at (OwnerID, Fingerprint).
	Insert(ctx context.Context, e Entry) error
	Touch(ctx context.Context, ownerID, fingerprint string, ts time.Time) error
	// DeleteOwner removes and returns every entry of ownerID.
	DeleteOwner(ctx context.Context, ownerID string) ([]Entry, error)
	// DeleteIfOlder removes the entry only while its timestamp is before cutoff.
	DeleteIfOlder(ctx context.Context, ownerID, fingerprint string, cutoff time.Time) (bool, error)
	ListOlderThan(ctx context.Context, cutoff time.Time) ([]Entry, error)
	List(ctx context.Context) ([]Entry, error)
	Stats(ctx context.Context) (entries int, bytes int64, err error)
}

// BlobStore holds audio bytes. *s3client.Client satisfies it.
type BlobStore interface {
	PutObject(ctx context.Context, key string, content []byte, contentType string) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	DeleteObject(ctx context.Context, key string) error
}

type entryKey struct{ owner, fingerprint string }

// MemoryEntries is an in-process EntryStore.
type MemoryEntries struct {
	mu      sync.Mutex
	entries map[entryKey]Entry
}

func NewMemoryEntries() *MemoryEntries {
	return &MemoryEntries{entries: make(map[entryKey]Entry)}
}

func (m *MemoryEntries) Get(_ context.Context, ownerID, fingerprint string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[entryKey{ownerID, fingerprint}]
	return e, ok, nil
}

func (m *MemoryEntries) Insert(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entryKey{e.OwnerID, e.Fingerprint}] = e
	return nil
}

func (m *MemoryEntries) Touch(_ context.Context, ownerID, fingerprint string, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := entryKey{ownerID, fingerprint}
	if e, ok := m.entries[k]; ok {
		e.Timestamp = ts
		m.entries[k] = e
	}
	return nil
}

func (m *MemoryEntries) DeleteOwner(_ context.Context, ownerID string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed []Entry
	for k, e := range m.entries {
		if k.owner == ownerID {
			removed = append(removed, e)
			delete(m.entries, k)
		}
	}
	return removed, nil
}

func (m *MemoryEntries) DeleteIfOlder(_ context.Context, ownerID, fingerprint string, cutoff time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := entryKey{ownerID, fingerprint}
	e, ok := m.entries[k]
	if !ok || !e.Timestamp.Before(cutoff) {
		return false, nil
	}
	delete(m.entries, k)
	return true, nil
}

func (m *MemoryEntries) ListOlderThan(_ context.Context, cutoff time.Time) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.entries {
		if e.Timestamp.Before(cutoff) {
			out = append(out, e)
		}
	}
	return sortEntries(out), nil
}

func (m *MemoryEntries) List(_ context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return sortEntries(out), nil
}

func (m *MemoryEntries) Stats(_ context.Context) (int, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, e := range m.entries {
		total += e.Size
	}
	return len(m.entries), total, nil
}

func sortEntries(es []Entry) []Entry {
	slices.SortFunc(es, func(a, b Entry) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		if a.OwnerID != b.OwnerID {
			if a.OwnerID < b.OwnerID {
				return -1
			}
			return 1
		}
		switch {
		case a.Fingerprint < b.Fingerprint:
			return -1
		case a.Fingerprint > b.Fingerprint:
			return 1
		}
		return 0
	})
	return es
}

// MemoryBlobs is an in-process BlobStore.
type MemoryBlobs struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func NewMemoryBlobs() *MemoryBlobs {
	return &MemoryBlobs{blobs: make(map[string][]byte)}
}

func (m *MemoryBlobs) PutObject(_ context.Context, key string, content []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = slices.Clone(content)
	return nil
}

func (m *MemoryBlobs) GetObject(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[key]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return slices.Clone(b), nil
}

func (m *MemoryBlobs) DeleteObject(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

// Len reports the number of stored blobs.
func (m *MemoryBlobs) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}
