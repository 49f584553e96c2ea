// Package tracking records the delivery lifecycle of notifications across
// channels (email, push, in-app): when each notification was first delivered,
// seen, and confirmed, both at the record level and per channel.
//
// The package is built for concurrent, out-of-order writers. Multiple channel
// callbacks may report events for the same notification at the same time, so
// every transition is an idempotent conditional update evaluated atomically
// per document by the store: record-level first-occurrence fields use
// set-if-absent guards (exactly one racing writer wins, the rest are silent
// no-ops), channel-level timestamps use min merges (the earliest event wins
// regardless of arrival order), and the modification time uses a max merge so
// it never decreases. No client-side locking is involved.
//
// # Components
//
//   - Notification and its nested types: the persisted document shape.
//   - Storage: the store contract with two implementations, MongoStorage for
//     production and MemoryStorage for development and tests.
//   - Tracker: the public facade. It validates and defaults inserts, then
//     sweeps the user's notifications beyond the configured retention cap as
//     a detached best-effort task whose failures are logged, never surfaced.
//   - RetentionConfig: declares the TTL policy (enforced by a store expiry
//     index on the creation time) and the per-user cap.
//
// # Usage
//
//	storage := tracking.NewMongoStorage(db)
//	if err := storage.EnsureIndexes(ctx, retention.Period); err != nil {
//		return err
//	}
//
//	tracker, err := tracking.NewTracker(storage,
//		tracking.WithRetention(retention),
//		tracking.WithLogger(log),
//	)
//	if err != nil {
//		return err
//	}
//
//	n, err := tracker.Insert(ctx, tracking.Notification{
//		AppID:  "app",
//		UserID: "user",
//		Formatting: tracking.Formatting{
//			Subject:     "Build finished",
//			ConfirmMode: tracking.ConfirmModeExplicit,
//		},
//		Channels: map[string]tracking.ChannelState{"email": {}},
//	})
//	if err != nil {
//		return err
//	}
//
//	// A channel callback reports delivery; repeated and out-of-order
//	// reports are safe.
//	err = tracker.TrackDelivered(ctx, []string{n.ID}, tracking.HandledInfo{
//		Timestamp: time.Now().UTC(),
//		Channel:   "email",
//	})
//
// # Error Handling
//
// Conditional updates that do not match (field already set, unknown channel,
// wrong confirm mode) are not errors; the outcome is observable only in the
// returned record state. Real failures are sentinel errors in errors.go,
// checked with errors.Is.
package tracking
