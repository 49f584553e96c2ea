package tracking

import (
	"context"
)

// ChannelStatusUpdate is one element of a batch status write: it targets a
// single configuration of a single channel of a single notification.
// ConfigKey is the raw key; the storage encodes it before building the
// update path.
type ChannelStatusUpdate struct {
	ID        string
	Channel   string
	ConfigKey string
	Info      ChannelSendInfo
}

// Storage persists notifications and performs the idempotent status
// transitions. Implementations must not use client-side locking: correctness
// under concurrent writers relies on document-level atomic conditional
// updates (set-if-absent guards, min/max merges).
type Storage interface {
	// Insert stores a new notification. A duplicate ID is reported as
	// ErrAlreadyExists and never overwrites the stored document.
	Insert(ctx context.Context, n Notification) error

	// Find retrieves a notification by ID, or ErrNotFound.
	Find(ctx context.Context, id string) (*Notification, error)

	// Delete soft-deletes a notification. Deleting an unknown ID is a no-op.
	Delete(ctx context.Context, id string) error

	// Query lists one user's notifications ordered by creation time
	// descending, together with the total number of matches.
	Query(ctx context.Context, appID, userID string, q Query) ([]Notification, int64, error)

	// TrackDelivered marks the first delivery of each notification. The
	// record-level FirstDelivered is set only if still unset; the
	// channel-level timestamp is lowered to the earliest observed value
	// when the handle names a channel the notification was created with.
	// Unknown IDs and already-set fields are silent no-ops.
	TrackDelivered(ctx context.Context, ids []string, handle HandledInfo) error

	// TrackSeen marks notifications as seen. Seeing implies delivery, so
	// the delivered transition is applied first.
	TrackSeen(ctx context.Context, ids []string, handle HandledInfo) error

	// TrackConfirmed marks a notification as explicitly confirmed. The seen
	// transition is applied first. FirstConfirmed is set only when the
	// notification uses ConfirmModeExplicit and is not yet confirmed; in
	// every case the current record is returned so the caller can tell
	// "confirmed now or earlier" from "not confirmable" by inspecting
	// FirstConfirmed.
	TrackConfirmed(ctx context.Context, id string, handle HandledInfo) (*Notification, error)

	// WriteChannelStatus applies a batch of per-configuration status
	// updates. Updates are grouped into one combined write per
	// notification; writes for different notifications are independent and
	// issued best-effort without cross-document atomicity or retries.
	WriteChannelStatus(ctx context.Context, updates []ChannelStatusUpdate) error

	// IsConfirmedOrHandled reports whether the notification is confirmed at
	// the record level or the given channel configuration already reached
	// SendStatusHandled. Used to short-circuit redundant delivery attempts.
	IsConfirmedOrHandled(ctx context.Context, id, channel, configKey string) (bool, error)

	// DeleteOldest removes every notification of the user beyond the keep
	// most recently created ones and returns the number removed. Deletion
	// happens in bounded batches.
	DeleteOldest(ctx context.Context, appID, userID string, keep int) (int64, error)
}
