package notes

import (
	"fmt"

	"github.com/kuitang/studynotes/internal/errs"
)

const (
	// DefaultStorageLimitBytes caps the total title and content bytes of all
	// notes and tiles (100MB).
	DefaultStorageLimitBytes int64 = 100 * 1024 * 1024

	// MaxContentBytes is the largest single content body (1MB).
	MaxContentBytes = 1 << 20
)

// StorageUsageInfo contains information about storage usage
type StorageUsageInfo struct {
	UsedBytes  int64   `json:"used_bytes"`
	LimitBytes int64   `json:"limit_bytes"`
	UsedMB     float64 `json:"used_mb"`
	LimitMB    float64 `json:"limit_mb"`
	Percentage float64 `json:"percentage"`
}

// CheckStorageLimit checks if adding newContentSize bytes to the current storage
// would exceed limit. A limit of 0 means unlimited.
func CheckStorageLimit(currentSize, newContentSize, limit int64) error {
	if limit > 0 && currentSize+newContentSize > limit {
		return errs.New(errs.ResourceExhausted, fmt.Sprintf(
			"storage limit exceeded (current: %d bytes, new: %d bytes, limit: %d bytes)",
			currentSize, newContentSize, limit))
	}
	return nil
}

// CheckStorageLimitForUpdate checks if an update operation would exceed storage limits.
// Shrinking or unchanged content is always allowed.
func CheckStorageLimitForUpdate(currentTotalSize, oldContentSize, newContentSize, limit int64) error {
	delta := newContentSize - oldContentSize
	if delta <= 0 {
		return nil
	}
	return CheckStorageLimit(currentTotalSize, delta, limit)
}

// CheckContentSize rejects a single body over MaxContentBytes.
func CheckContentSize(content string) error {
	if len(content) > MaxContentBytes {
		return errs.New(errs.InvalidArgument, fmt.Sprintf(
			"content is %d bytes, limit is %d", len(content), MaxContentBytes))
	}
	return nil
}

// NewStorageUsageInfo creates a StorageUsageInfo from the given used bytes.
func NewStorageUsageInfo(usedBytes, limit int64) StorageUsageInfo {
	usedMB := float64(usedBytes) / (1024 * 1024)
	limitMB := float64(limit) / (1024 * 1024)
	percentage := float64(0)
	if limit > 0 {
		percentage = float64(usedBytes) / float64(limit) * 100
	}
	if percentage > 100 {
		percentage = 100
	}
	return StorageUsageInfo{
		UsedBytes:  usedBytes,
		LimitBytes: limit,
		UsedMB:     usedMB,
		LimitMB:    limitMB,
		Percentage: percentage,
	}
}
