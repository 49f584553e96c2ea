package tracking

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notiftrack/pkg/async"
	"github.com/dmitrymomot/notiftrack/pkg/logger"
)

// defaultCleanupTimeout bounds how long an insert waits for the per-user
// retention sweep before letting it finish in the background.
const defaultCleanupTimeout = 10 * time.Second

// Tracker is the public facade of the store: it composes the status
// transitions, queries and retention policies behind the Storage interface
// and owns the post-insert retention sweep.
type Tracker struct {
	storage        Storage
	retention      RetentionConfig
	cleanupTimeout time.Duration
	logger         *slog.Logger
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithLogger sets the logger used for retention sweep reporting.
func WithLogger(log *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		if log != nil {
			t.logger = log
		}
	}
}

// WithRetention sets the retention policies.
func WithRetention(cfg RetentionConfig) TrackerOption {
	return func(t *Tracker) {
		t.retention = cfg
	}
}

// WithCleanupTimeout bounds the synchronous part of the post-insert sweep.
func WithCleanupTimeout(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		if d > 0 {
			t.cleanupTimeout = d
		}
	}
}

// NewTracker creates a tracker on top of the given storage.
func NewTracker(storage Storage, opts ...TrackerOption) (*Tracker, error) {
	if storage == nil {
		return nil, ErrStorageNil
	}

	t := &Tracker{
		storage:        storage,
		cleanupTimeout: defaultCleanupTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Insert validates and stores a new notification, filling the ID and
// timestamps when the caller left them empty, then sweeps the user's
// notifications beyond the retention cap. Sweep failures are logged and
// suppressed: they never undo or fail the insert.
func (t *Tracker) Insert(ctx context.Context, n Notification) (Notification, error) {
	if n.AppID == "" {
		return n, ErrAppIDRequired
	}
	if n.UserID == "" {
		return n, ErrUserIDRequired
	}
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Created.IsZero() {
		n.Created = time.Now().UTC()
	}
	if n.Updated.Before(n.Created) {
		n.Updated = n.Created
	}
	if n.Formatting.ConfirmMode == "" {
		n.Formatting.ConfirmMode = ConfirmModeImplicit
	}

	if err := t.storage.Insert(ctx, n); err != nil {
		return n, err
	}

	t.sweepAfterInsert(ctx, n.AppID, n.UserID)
	return n, nil
}

func (t *Tracker) Find(ctx context.Context, id string) (*Notification, error) {
	return t.storage.Find(ctx, id)
}

func (t *Tracker) Delete(ctx context.Context, id string) error {
	return t.storage.Delete(ctx, id)
}

func (t *Tracker) Query(ctx context.Context, appID, userID string, q Query) ([]Notification, int64, error) {
	return t.storage.Query(ctx, appID, userID, q)
}

func (t *Tracker) TrackDelivered(ctx context.Context, ids []string, handle HandledInfo) error {
	return t.storage.TrackDelivered(ctx, ids, handle)
}

func (t *Tracker) TrackSeen(ctx context.Context, ids []string, handle HandledInfo) error {
	return t.storage.TrackSeen(ctx, ids, handle)
}

func (t *Tracker) TrackConfirmed(ctx context.Context, id string, handle HandledInfo) (*Notification, error) {
	return t.storage.TrackConfirmed(ctx, id, handle)
}

func (t *Tracker) WriteChannelStatus(ctx context.Context, updates []ChannelStatusUpdate) error {
	return t.storage.WriteChannelStatus(ctx, updates)
}

func (t *Tracker) IsConfirmedOrHandled(ctx context.Context, id, channel, configKey string) (bool, error) {
	return t.storage.IsConfirmedOrHandled(ctx, id, channel, configKey)
}

// Storage returns the underlying notification storage.
func (t *Tracker) Storage() Storage {
	return t.storage
}

// sweepAfterInsert runs the per-user cap cleanup as a detached best-effort
// task. The caller's cancellation must not abort the sweep, so it runs on a
// context stripped of the request's cancel; the insert path waits at most
// cleanupTimeout before letting the sweep finish on its own.
func (t *Tracker) sweepAfterInsert(ctx context.Context, appID, userID string) {
	if !t.retention.capEnabled() {
		return
	}

	type target struct {
		appID  string
		userID string
	}
	fut := async.Async(context.WithoutCancel(ctx), target{appID, userID},
		func(ctx context.Context, tg target) (int64, error) {
			return t.storage.DeleteOldest(ctx, tg.appID, tg.userID, t.retention.MaxItemsPerUser)
		})

	deleted, err := fut.AwaitWithTimeout(t.cleanupTimeout)
	switch {
	case err != nil:
		t.logger.LogAttrs(ctx, slog.LevelWarn, "Per-user retention sweep did not finish cleanly",
			logger.AppID(appID),
			logger.UserID(userID),
			logger.Error(err),
		)
	case deleted > 0:
		t.logger.LogAttrs(ctx, slog.LevelDebug, "Per-user retention sweep removed notifications",
			logger.AppID(appID),
			logger.UserID(userID),
			logger.Count(deleted),
		)
	}
}
