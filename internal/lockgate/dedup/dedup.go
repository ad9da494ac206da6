// Package dedup suppresses repeat deliveries of the same physical lock event.
//
// Two windows are tracked per device.  The raw window drops any event that
// arrives too soon after the last accepted one.  The authorized window lets
// the engine drop a spurious no-identity denial that trails a real
// authorization.
package dedup

import (
	"context"
	"time"
)

const (
	DefaultRawWindow          = 3 * time.Second
	DefaultAuthSuppressWindow = 5 * time.Second
)

// Store is a keyed set of expiring marks.  Implementations must make
// CheckAndMark atomic per key.
type Store interface {
	// CheckAndMark marks key and returns true unless it was already marked
	// within window, in which case it returns false and leaves the mark
	// alone.
	CheckAndMark(ctx context.Context, key string, window time.Duration) (bool, error)
	// Mark unconditionally (re)marks key.
	Mark(ctx context.Context, key string, window time.Duration) error
	// Marked reports whether key was marked within window.
	Marked(ctx context.Context, key string, window time.Duration) (bool, error)
}

func rawKey(deviceID string) string        { return "raw:" + deviceID }
func authorizedKey(deviceID string) string { return "authorized:" + deviceID }

// Deduplicator applies the raw and authorized windows on top of a Store.
type Deduplicator struct {
	store        Store
	rawWindow    time.Duration
	authorizeWin time.Duration
}

func New(s Store, rawWindow, authSuppressWindow time.Duration) *Deduplicator {
	if rawWindow <= 0 {
		rawWindow = DefaultRawWindow
	}
	if authSuppressWindow <= 0 {
		authSuppressWindow = DefaultAuthSuppressWindow
	}
	return &Deduplicator{store: s, rawWindow: rawWindow, authorizeWin: authSuppressWindow}
}

// AcceptRaw reports whether an event for deviceID is outside the raw window
// and, if so, records it as the last accepted event.
func (d *Deduplicator) AcceptRaw(ctx context.Context, deviceID string) (bool, error) {
	return d.store.CheckAndMark(ctx, rawKey(deviceID), d.rawWindow)
}

// MarkAuthorized records an authorized decision for deviceID.
func (d *Deduplicator) MarkAuthorized(ctx context.Context, deviceID string) error {
	return d.store.Mark(ctx, authorizedKey(deviceID), d.authorizeWin)
}

// RecentlyAuthorized reports whether deviceID had an authorized decision
// within the suppression window.
func (d *Deduplicator) RecentlyAuthorized(ctx context.Context, deviceID string) (bool, error) {
	return d.store.Marked(ctx, authorizedKey(deviceID), d.authorizeWin)
}
