// Package audiocache stores synthesized speech keyed by (owner, content
// fingerprint) so unchanged content is never synthesized twice.
//
// An owner (note or tile) has at most one entry: Put replaces whatever the
// owner had. Entry metadata lives in an EntryStore and the audio bytes in a
// BlobStore. Reads fail open; any storage problem is a miss.
package audiocache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/kuitang/studynotes/internal/clock"
	"github.com/kuitang/studynotes/internal/crypto"
	"github.com/kuitang/studynotes/internal/obs"
)

const (
	// DefaultMaxAge is how long an untouched entry survives a sweep.
	DefaultMaxAge = 7 * 24 * time.Hour

	contentType = "audio/mpeg"
)

// Cache is the audio fingerprint cache.
type Cache struct {
	entries EntryStore
	blobs   BlobStore
	clock   clock.Clock
	sealKey []byte

	locksMu sync.Mutex
	locks   map[string]*ownerLock
}

type ownerLock struct {
	mu   sync.Mutex
	refs int
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock sets the time source for timestamps and sweeps.
func WithClock(c clock.Clock) Option {
	return func(cache *Cache) { cache.clock = c }
}

// WithSealKey encrypts blobs with key before they reach the BlobStore.
func WithSealKey(key []byte) Option {
	return func(cache *Cache) { cache.sealKey = key }
}

// New creates a Cache.
func New(entries EntryStore, blobs BlobStore, opts ...Option) *Cache {
	c := &Cache{
		entries: entries,
		blobs:   blobs,
		clock:   clock.Real{},
		locks:   make(map[string]*ownerLock),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// lock serializes Put, Delete, sweep and cleanup removals for one owner.
func (c *Cache) lock(ownerID string) func() {
	c.locksMu.Lock()
	l, ok := c.locks[ownerID]
	if !ok {
		l = &ownerLock{}
		c.locks[ownerID] = l
	}
	l.refs++
	c.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		c.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, ownerID)
		}
		c.locksMu.Unlock()
	}
}

func (c *Cache) now() time.Time {
	// Stores keep millisecond precision.
	return c.clock.Now().Truncate(time.Millisecond)
}

// BlobKey is the object key for an owner's audio.
func BlobKey(ownerID, fingerprint string) string {
	return "audio/" + url.PathEscape(ownerID) + "/" + fingerprint
}

// Get returns the cached audio for (ownerID, fingerprint) and refreshes the
// entry's timestamp. Any failure is reported as a miss.
func (c *Cache) Get(ctx context.Context, ownerID, fingerprint string) ([]byte, bool) {
	log := obs.From(ctx)

	e, ok, err := c.entries.Get(ctx, ownerID, fingerprint)
	if err != nil {
		log.Warn("audiocache.read_failed", "owner_id", ownerID, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	data, err := c.readBlob(ctx, e.BlobKey)
	if err != nil {
		log.Warn("audiocache.blob_unreadable", "owner_id", ownerID, "blob_key", e.BlobKey, "error", err)
		if derr := c.dropUnreadable(ctx, ownerID, fingerprint); derr != nil {
			log.Warn("audiocache.entry_cleanup_failed", "owner_id", ownerID, "error", derr)
		}
		return nil, false
	}

	if err := c.entries.Touch(ctx, ownerID, fingerprint, c.now()); err != nil {
		log.Warn("audiocache.touch_failed", "owner_id", ownerID, "error", err)
	}
	return data, true
}

func (c *Cache) readBlob(ctx context.Context, key string) ([]byte, error) {
	data, err := c.blobs.GetObject(ctx, key)
	if err == nil && c.sealKey != nil {
		data, err = crypto.Open(c.sealKey, data)
	}
	return data, err
}

// dropUnreadable removes the entry at (ownerID, fingerprint) and its blob.
// It re-reads both under the owner lock, so an entry rewritten by a Put
// since the failed read is kept.
func (c *Cache) dropUnreadable(ctx context.Context, ownerID, fingerprint string) error {
	unlock := c.lock(ownerID)
	defer unlock()

	e, ok, err := c.entries.Get(ctx, ownerID, fingerprint)
	if err != nil || !ok {
		return err
	}
	if _, err := c.readBlob(ctx, e.BlobKey); err == nil {
		return nil
	}
	// Puts are excluded by the lock; only Touch can move the timestamp,
	// and it never moves it backwards.
	removed, err := c.entries.DeleteIfOlder(ctx, ownerID, fingerprint, e.Timestamp.Add(time.Millisecond))
	if err != nil || !removed {
		return err
	}
	c.deleteBlobs(ctx, []Entry{e})
	return nil
}

// Put stores audio as the owner's only entry. Prior entries of the owner
// are deleted first.
func (c *Cache) Put(ctx context.Context, ownerID, fingerprint, title string, audio []byte) error {
	if ownerID == "" || fingerprint == "" {
		return fmt.Errorf("audio cache put: owner and fingerprint are required")
	}
	unlock := c.lock(ownerID)
	defer unlock()

	if err := c.deleteOwnerLocked(ctx, ownerID); err != nil {
		return err
	}

	blob := audio
	if c.sealKey != nil {
		var err error
		if blob, err = crypto.Seal(c.sealKey, audio); err != nil {
			return fmt.Errorf("audio cache seal: %w", err)
		}
	}

	key := BlobKey(ownerID, fingerprint)
	if err := c.blobs.PutObject(ctx, key, blob, contentType); err != nil {
		return fmt.Errorf("audio cache write blob: %w", err)
	}

	e := Entry{
		OwnerID:     ownerID,
		Fingerprint: fingerprint,
		Title:       title,
		BlobKey:     key,
		Size:        int64(len(audio)),
		Timestamp:   c.now(),
	}
	if err := c.entries.Insert(ctx, e); err != nil {
		if derr := c.blobs.DeleteObject(ctx, key); derr != nil {
			obs.From(ctx).Warn("audiocache.orphan_blob", "blob_key", key, "error", derr)
		}
		return fmt.Errorf("audio cache write entry: %w", err)
	}
	return nil
}

// Delete removes every entry of ownerID.
func (c *Cache) Delete(ctx context.Context, ownerID string) error {
	unlock := c.lock(ownerID)
	defer unlock()
	return c.deleteOwnerLocked(ctx, ownerID)
}

func (c *Cache) deleteOwnerLocked(ctx context.Context, ownerID string) error {
	removed, err := c.entries.DeleteOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("audio cache delete entries: %w", err)
	}
	c.deleteBlobs(ctx, removed)
	return nil
}

// deleteBlobs removes the blobs of removed entries. A blob that cannot be
// deleted is unreachable once its entry is gone, so failures are logged.
func (c *Cache) deleteBlobs(ctx context.Context, removed []Entry) {
	for _, e := range removed {
		if err := c.blobs.DeleteObject(ctx, e.BlobKey); err != nil {
			obs.From(ctx).Warn("audiocache.blob_delete_failed", "blob_key", e.BlobKey, "error", err)
		}
	}
}

// Sweep removes entries whose timestamp is before now - maxAge and returns
// how many were removed. Entries touched after the scan are kept.
func (c *Cache) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := c.now().Add(-maxAge)
	expired, err := c.entries.ListOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audio cache sweep: %w", err)
	}

	removed := 0
	for _, e := range expired {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		ok, err := c.expire(ctx, e, cutoff)
		if err != nil {
			obs.From(ctx).Warn("audiocache.sweep_entry_failed", "owner_id", e.OwnerID, "error", err)
			continue
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

func (c *Cache) expire(ctx context.Context, e Entry, cutoff time.Time) (bool, error) {
	unlock := c.lock(e.OwnerID)
	defer unlock()

	ok, err := c.entries.DeleteIfOlder(ctx, e.OwnerID, e.Fingerprint, cutoff)
	if err != nil || !ok {
		return false, err
	}
	c.deleteBlobs(ctx, []Entry{e})
	return true, nil
}

// Clear removes every entry and blob.
func (c *Cache) Clear(ctx context.Context) error {
	all, err := c.entries.List(ctx)
	if err != nil {
		return fmt.Errorf("audio cache clear: %w", err)
	}
	seen := make(map[string]bool)
	var errList []error
	for _, e := range all {
		if seen[e.OwnerID] {
			continue
		}
		seen[e.OwnerID] = true
		if err := c.Delete(ctx, e.OwnerID); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

// SizeInfo summarizes cache usage.
type SizeInfo struct {
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
}

// Size returns the number of entries and total audio bytes stored.
func (c *Cache) Size(ctx context.Context) (SizeInfo, error) {
	n, total, err := c.entries.Stats(ctx)
	if err != nil {
		return SizeInfo{}, fmt.Errorf("audio cache size: %w", err)
	}
	return SizeInfo{Entries: n, Bytes: total}, nil
}
