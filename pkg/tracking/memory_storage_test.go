package tracking_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notiftrack/pkg/tracking"
)

func newNotification(id, appID, userID string, created time.Time, mode tracking.ConfirmMode, channels ...string) tracking.Notification {
	n := tracking.Notification{
		ID:      id,
		AppID:   appID,
		UserID:  userID,
		Created: created,
		Updated: created,
		Formatting: tracking.Formatting{
			Subject:     "subject of " + id,
			ConfirmMode: mode,
		},
	}
	if len(channels) > 0 {
		n.Channels = make(map[string]tracking.ChannelState, len(channels))
		for _, ch := range channels {
			n.Channels[ch] = tracking.ChannelState{}
		}
	}
	return n
}

func TestMemoryStorage_Insert_DuplicateID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := tracking.NewMemoryStorage()
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	original := newNotification("n-1", "app", "user", created, tracking.ConfirmModeImplicit)
	require.NoError(t, storage.Insert(ctx, original))

	duplicate := original
	duplicate.Formatting.Subject = "overwritten"
	err := storage.Insert(ctx, duplicate)
	assert.ErrorIs(t, err, tracking.ErrAlreadyExists)

	// The stored record is unchanged by the second attempt.
	stored, err := storage.Find(ctx, "n-1")
	require.NoError(t, err)
	assert.Equal(t, "subject of n-1", stored.Formatting.Subject)
}

func TestMemoryStorage_TrackDelivered_FirstWins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	t1 := created.Add(time.Minute)
	t2 := created.Add(2 * time.Minute)

	// Whatever the call order, FirstDelivered keeps the first applied
	// handle and Updated ends at the maximum timestamp.
	orders := [][]time.Time{{t1, t2}, {t2, t1}}
	for _, order := range orders {
		storage := tracking.NewMemoryStorage()
		require.NoError(t, storage.Insert(ctx, newNotification("n-1", "app", "user", created, tracking.ConfirmModeImplicit)))

		for _, ts := range order {
			require.NoError(t, storage.TrackDelivered(ctx, []string{"n-1"}, tracking.HandledInfo{Timestamp: ts}))
		}

		n, err := storage.Find(ctx, "n-1")
		require.NoError(t, err)
		require.NotNil(t, n.FirstDelivered)
		assert.Equal(t, order[0], n.FirstDelivered.Timestamp)
		assert.Equal(t, t2, n.Updated)
	}
}

func TestMemoryStorage_TrackDelivered_UnknownIDIsNoop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := tracking.NewMemoryStorage()

	err := storage.TrackDelivered(ctx, []string{"ghost"}, tracking.HandledInfo{Timestamp: time.Now()})
	assert.NoError(t, err)
}

func TestMemoryStorage_TrackSeen_ImpliesDelivered(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := tracking.NewMemoryStorage()
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, storage.Insert(ctx, newNotification("n-1", "app", "user", created, tracking.ConfirmModeImplicit)))

	handle := tracking.HandledInfo{Timestamp: created.Add(time.Minute), Channel: ""}
	require.NoError(t, storage.TrackSeen(ctx, []string{"n-1"}, handle))

	n, err := storage.Find(ctx, "n-1")
	require.NoError(t, err)
	require.NotNil(t, n.FirstDelivered)
	require.NotNil(t, n.FirstSeen)
	assert.Equal(t, handle.Timestamp, n.FirstDelivered.Timestamp)
	assert.Equal(t, handle.Timestamp, n.FirstSeen.Timestamp)
}

func TestMemoryStorage_ChannelFirsts_MinWins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	early := created.Add(time.Minute)
	late := created.Add(time.Hour)

	// The channel-level timestamp tracks the earliest event in any
	// application order, unlike the record-level first-write-wins field.
	orders := [][]time.Time{{late, early}, {early, late}}
	for _, order := range orders {
		storage := tracking.NewMemoryStorage()
		require.NoError(t, storage.Insert(ctx, newNotification("n-1", "app", "user", created, tracking.ConfirmModeImplicit, "email")))

		for _, ts := range order {
			require.NoError(t, storage.TrackDelivered(ctx, []string{"n-1"}, tracking.HandledInfo{Timestamp: ts, Channel: "email"}))
		}

		n, err := storage.Find(ctx, "n-1")
		require.NoError(t, err)
		state := n.Channels["email"]
		require.NotNil(t, state.FirstDelivered)
		assert.Equal(t, early, *state.FirstDelivered)

		// Record-level field keeps whichever handle was applied first.
		require.NotNil(t, n.FirstDelivered)
		assert.Equal(t, order[0], n.FirstDelivered.Timestamp)
	}
}

func TestMemoryStorage_UnknownChannelIsNoop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := tracking.NewMemoryStorage()
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, storage.Insert(ctx, newNotification("n-1", "app", "user", created, tracking.ConfirmModeImplicit, "email")))

	handle := tracking.HandledInfo{Timestamp: created.Add(time.Minute), Channel: "sms"}
	require.NoError(t, storage.TrackDelivered(ctx, []string{"n-1"}, handle))

	n, err := storage.Find(ctx, "n-1")
	require.NoError(t, err)
	assert.False(t, n.HasChannel("sms"))
	assert.Nil(t, n.Channels["email"].FirstDelivered)
}

func TestMemoryStorage_TrackConfirmed_ImplicitModeNeverConfirms(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := tracking.NewMemoryStorage()
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, storage.Insert(ctx, newNotification("n-1", "app", "user", created, tracking.ConfirmModeImplicit)))

	for i := 0; i < 3; i++ {
		n, err := storage.TrackConfirmed(ctx, "n-1", tracking.HandledInfo{Timestamp: created.Add(time.Minute)})
		require.NoError(t, err)
		assert.Nil(t, n.FirstConfirmed)
		// The seen transition still applies.
		assert.NotNil(t, n.FirstSeen)
	}
}

func TestMemoryStorage_TrackConfirmed_ExplicitOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := tracking.NewMemoryStorage()
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, storage.Insert(ctx, newNotification("n-1", "app", "user", created, tracking.ConfirmModeExplicit)))

	first := tracking.HandledInfo{Timestamp: created.Add(time.Minute)}
	n, err := storage.TrackConfirmed(ctx, "n-1", first)
	require.NoError(t, err)
	require.NotNil(t, n.FirstConfirmed)
	assert.Equal(t, first.Timestamp, n.FirstConfirmed.Timestamp)

	// A later confirm is a no-op; the original value survives.
	n, err = storage.TrackConfirmed(ctx, "n-1", tracking.HandledInfo{Timestamp: created.Add(time.Hour)})
	require.NoError(t, err)
	require.NotNil(t, n.FirstConfirmed)
	assert.Equal(t, first.Timestamp, n.FirstConfirmed.Timestamp)
}

func TestMemoryStorage_TrackConfirmed_Concurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := tracking.NewMemoryStorage()
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, storage.Insert(ctx, newNotification("n-1", "app", "user", created, tracking.ConfirmModeExplicit)))

	const writers = 16
	results := make([]*tracking.Notification, writers)
	errs := make([]error, writers)

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = storage.TrackConfirmed(ctx, "n-1", tracking.HandledInfo{
				Timestamp: created.Add(time.Duration(i+1) * time.Second),
			})
		}(i)
	}
	wg.Wait()

	// All writers converge on the same confirmation value.
	final, err := storage.Find(ctx, "n-1")
	require.NoError(t, err)
	require.NotNil(t, final.FirstConfirmed)
	for i, n := range results {
		require.NoError(t, errs[i])
		require.NotNil(t, n.FirstConfirmed)
		assert.Equal(t, final.FirstConfirmed.Timestamp, n.FirstConfirmed.Timestamp)
	}
}

func TestMemoryStorage_WriteChannelStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := tracking.NewMemoryStorage()
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, storage.Insert(ctx, newNotification("n-1", "app", "user", created, tracking.ConfirmModeImplicit, "push")))

	ts := created.Add(time.Minute)
	err := storage.WriteChannelStatus(ctx, []tracking.ChannelStatusUpdate{
		{ID: "n-1", Channel: "push", ConfigKey: "device.1", Info: tracking.ChannelSendInfo{Status: tracking.SendStatusHandled, LastUpdate: ts}},
		{ID: "n-1", Channel: "push", ConfigKey: "device.2", Info: tracking.ChannelSendInfo{Status: tracking.SendStatusFailed, Detail: "token expired", LastUpdate: ts}},
		{ID: "ghost", Channel: "push", ConfigKey: "device.1", Info: tracking.ChannelSendInfo{Status: tracking.SendStatusSent, LastUpdate: ts}},
	})
	require.NoError(t, err)

	n, err := storage.Find(ctx, "n-1")
	require.NoError(t, err)
	state := n.Channels["push"]
	require.Len(t, state.Status, 2)
	assert.Equal(t, tracking.SendStatusHandled, state.Status[tracking.EncodeConfigKey("device.1")].Status)
	assert.Equal(t, "token expired", state.Status[tracking.EncodeConfigKey("device.2")].Detail)
	assert.Equal(t, ts, n.Updated)
}

func TestMemoryStorage_IsConfirmedOrHandled(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := tracking.NewMemoryStorage()
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	ts := created.Add(time.Minute)

	confirmed := newNotification("n-confirmed", "app", "user", created, tracking.ConfirmModeExplicit)
	require.NoError(t, storage.Insert(ctx, confirmed))
	_, err := storage.TrackConfirmed(ctx, "n-confirmed", tracking.HandledInfo{Timestamp: ts})
	require.NoError(t, err)

	handled := newNotification("n-handled", "app", "user", created, tracking.ConfirmModeImplicit, "push")
	require.NoError(t, storage.Insert(ctx, handled))
	require.NoError(t, storage.WriteChannelStatus(ctx, []tracking.ChannelStatusUpdate{
		{ID: "n-handled", Channel: "push", ConfigKey: "device.1", Info: tracking.ChannelSendInfo{Status: tracking.SendStatusHandled, LastUpdate: ts}},
	}))

	pending := newNotification("n-pending", "app", "user", created, tracking.ConfirmModeImplicit, "push")
	require.NoError(t, storage.Insert(ctx, pending))

	tests := []struct {
		name      string
		id        string
		channel   string
		configKey string
		want      bool
	}{
		{name: "record-level confirmed", id: "n-confirmed", channel: "any", configKey: "any", want: true},
		{name: "channel configuration handled", id: "n-handled", channel: "push", configKey: "device.1", want: true},
		{name: "other configuration not handled", id: "n-handled", channel: "push", configKey: "device.2", want: false},
		{name: "pending", id: "n-pending", channel: "push", configKey: "device.1", want: false},
		{name: "unknown id", id: "ghost", channel: "push", configKey: "device.1", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := storage.IsConfirmedOrHandled(ctx, tt.id, tt.channel, tt.configKey)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMemoryStorage_Query_Scopes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := tracking.NewMemoryStorage()
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"n-1", "n-2", "n-3", "n-4"} {
		require.NoError(t, storage.Insert(ctx, newNotification(id, "app", "user", created.Add(time.Duration(i)*time.Minute), tracking.ConfirmModeImplicit)))
	}
	require.NoError(t, storage.Delete(ctx, "n-2"))

	deleted, total, err := storage.Query(ctx, "app", "user", tracking.Query{Scope: tracking.ScopeDeleted})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, deleted, 1)
	assert.True(t, deleted[0].Deleted)

	live, total, err := storage.Query(ctx, "app", "user", tracking.Query{Scope: tracking.ScopeNonDeleted})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	for _, n := range live {
		assert.False(t, n.Deleted)
	}

	all, total, err := storage.Query(ctx, "app", "user", tracking.Query{Scope: tracking.ScopeAll})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	assert.Len(t, all, 4)

	// Newest first.
	assert.Equal(t, "n-4", all[0].ID)
	assert.Equal(t, "n-1", all[3].ID)
}

func TestMemoryStorage_Query_Pagination(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := tracking.NewMemoryStorage()
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 25; i++ {
		n := newNotification("n-"+strconv.Itoa(i), "app", "user", created.Add(time.Duration(i)*time.Minute), tracking.ConfirmModeImplicit)
		require.NoError(t, storage.Insert(ctx, n))
	}

	// A full page triggers an exact count.
	page, total, err := storage.Query(ctx, "app", "user", tracking.Query{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page, 10)
	assert.EqualValues(t, 25, total)

	// A short page infers the total from offset plus returned items.
	page, total, err = storage.Query(ctx, "app", "user", tracking.Query{Limit: 10, Offset: 20})
	require.NoError(t, err)
	assert.Len(t, page, 5)
	assert.EqualValues(t, 25, total)
}

func TestMemoryStorage_Query_SearchLiteral(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := tracking.NewMemoryStorage()
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	withMeta := newNotification("n-1", "app", "user", created, tracking.ConfirmModeImplicit)
	withMeta.Formatting.Subject = "metrics a.b* report"
	require.NoError(t, storage.Insert(ctx, withMeta))

	other := newNotification("n-2", "app", "user", created.Add(time.Minute), tracking.ConfirmModeImplicit)
	other.Formatting.Subject = "metrics aXbY report"
	require.NoError(t, storage.Insert(ctx, other))

	items, total, err := storage.Query(ctx, "app", "user", tracking.Query{Search: "A.B*"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "n-1", items[0].ID)
}

func TestMemoryStorage_DeleteOldest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := tracking.NewMemoryStorage()
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 12; i++ {
		id := newNotification("user-"+string(rune('a'+i)), "app", "user", created.Add(time.Duration(i)*time.Minute), tracking.ConfirmModeImplicit)
		require.NoError(t, storage.Insert(ctx, id))
	}
	other := newNotification("other-1", "app", "other-user", created, tracking.ConfirmModeImplicit)
	require.NoError(t, storage.Insert(ctx, other))

	deleted, err := storage.DeleteOldest(ctx, "app", "user", 5)
	require.NoError(t, err)
	assert.EqualValues(t, 7, deleted)

	// The five most recently created notifications remain.
	items, total, err := storage.Query(ctx, "app", "user", tracking.Query{})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	for _, n := range items {
		assert.False(t, n.Created.Before(created.Add(7*time.Minute)))
	}

	// Other users are untouched.
	_, total, err = storage.Query(ctx, "app", "other-user", tracking.Query{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}
