package tracking

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStorage is an in-memory implementation of the Storage interface.
// Suitable for development and testing. The mutex stands in for the
// per-document atomicity a real document store provides; the transition
// semantics are identical to MongoStorage.
type MemoryStorage struct {
	notifications map[string]*Notification
	mu            sync.RWMutex
}

// NewMemoryStorage creates an empty in-memory notification storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		notifications: make(map[string]*Notification),
	}
}

func (s *MemoryStorage) Insert(ctx context.Context, n Notification) error {
	if n.ID == "" {
		return ErrIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.notifications[n.ID]; exists {
		return ErrAlreadyExists
	}

	stored := n.clone()
	s.notifications[n.ID] = &stored
	return nil
}

func (s *MemoryStorage) Find(ctx context.Context, id string) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, exists := s.notifications[id]
	if !exists {
		return nil, ErrNotFound
	}

	out := n.clone()
	return &out, nil
}

func (s *MemoryStorage) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, exists := s.notifications[id]; exists {
		n.Deleted = true
		raiseUpdated(n, time.Now().UTC())
	}
	return nil
}

func (s *MemoryStorage) Query(ctx context.Context, appID, userID string, q Query) ([]Notification, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Notification
	for _, n := range s.notifications {
		if n.AppID != appID || n.UserID != userID {
			continue
		}
		if !q.matches(n) {
			continue
		}
		matched = append(matched, n)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Created.After(matched[j].Created)
	})

	page := matched
	if q.Offset > 0 {
		if q.Offset >= len(page) {
			page = nil
		} else {
			page = page[q.Offset:]
		}
	}
	if q.Limit > 0 && len(page) > q.Limit {
		page = page[:q.Limit]
	}

	items := make([]Notification, len(page))
	for i, n := range page {
		items[i] = n.clone()
	}

	total, exact := inferredTotal(q.Offset, len(items), q.Limit)
	if !exact {
		total = int64(len(matched))
	}
	return items, total, nil
}

func (s *MemoryStorage) TrackDelivered(ctx context.Context, ids []string, handle HandledInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trackDelivered(ids, handle)
	return nil
}

func (s *MemoryStorage) TrackSeen(ctx context.Context, ids []string, handle HandledInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trackDelivered(ids, handle)
	s.trackSeen(ids, handle)
	return nil
}

func (s *MemoryStorage) TrackConfirmed(ctx context.Context, id string, handle HandledInfo) (*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := []string{id}
	s.trackDelivered(ids, handle)
	s.trackSeen(ids, handle)

	n, exists := s.notifications[id]
	if !exists {
		return nil, ErrNotFound
	}

	if n.Formatting.ConfirmMode == ConfirmModeExplicit && n.FirstConfirmed == nil {
		h := handle
		n.FirstConfirmed = &h
		raiseUpdated(n, handle.Timestamp)
	}

	out := n.clone()
	return &out, nil
}

func (s *MemoryStorage) WriteChannelStatus(ctx context.Context, updates []ChannelStatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range updates {
		// Validate the path the same way the document store would,
		// even though the map write below does not need it.
		if _, err := statusFieldPath(u.Channel, u.ConfigKey, "status"); err != nil {
			return err
		}

		n, exists := s.notifications[u.ID]
		if !exists {
			continue
		}

		if n.Channels == nil {
			n.Channels = make(map[string]ChannelState)
		}
		state := n.Channels[u.Channel]
		if state.Status == nil {
			state.Status = make(map[string]ChannelSendInfo)
		}
		state.Status[EncodeConfigKey(u.ConfigKey)] = u.Info
		n.Channels[u.Channel] = state
		raiseUpdated(n, u.Info.LastUpdate)
	}
	return nil
}

func (s *MemoryStorage) IsConfirmedOrHandled(ctx context.Context, id, channel, configKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, exists := s.notifications[id]
	if !exists {
		return false, nil
	}
	if n.FirstConfirmed != nil {
		return true, nil
	}
	if state, ok := n.Channels[channel]; ok {
		if info, ok := state.Status[EncodeConfigKey(configKey)]; ok {
			return info.Status == SendStatusHandled, nil
		}
	}
	return false, nil
}

func (s *MemoryStorage) DeleteOldest(ctx context.Context, appID, userID string, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var owned []*Notification
	for _, n := range s.notifications {
		if n.AppID == appID && n.UserID == userID {
			owned = append(owned, n)
		}
	}
	if len(owned) <= keep {
		return 0, nil
	}

	sort.Slice(owned, func(i, j int) bool {
		return owned[i].Created.After(owned[j].Created)
	})

	var deleted int64
	for _, n := range owned[keep:] {
		delete(s.notifications, n.ID)
		deleted++
	}
	return deleted, nil
}

// trackDelivered applies the record-level set-if-absent and channel-level min
// transitions for delivery. Callers must hold the write lock.
func (s *MemoryStorage) trackDelivered(ids []string, handle HandledInfo) {
	for _, id := range ids {
		n, exists := s.notifications[id]
		if !exists {
			continue
		}
		if n.FirstDelivered == nil {
			h := handle
			n.FirstDelivered = &h
			raiseUpdated(n, handle.Timestamp)
		}
	}
	s.lowerChannelFirsts(ids, handle, channelFieldDelivered)
}

func (s *MemoryStorage) trackSeen(ids []string, handle HandledInfo) {
	for _, id := range ids {
		n, exists := s.notifications[id]
		if !exists {
			continue
		}
		if n.FirstSeen == nil {
			h := handle
			n.FirstSeen = &h
			raiseUpdated(n, handle.Timestamp)
		}
	}
	s.lowerChannelFirsts(ids, handle, channelFieldSeen)
}

type channelFirstField int

const (
	channelFieldDelivered channelFirstField = iota
	channelFieldSeen
)

// lowerChannelFirsts applies the per-channel min merge: the stored timestamp
// only ever moves to an earlier value. Channels the notification was not
// created with are ignored.
func (s *MemoryStorage) lowerChannelFirsts(ids []string, handle HandledInfo, field channelFirstField) {
	if handle.Channel == "" {
		return
	}
	for _, id := range ids {
		n, exists := s.notifications[id]
		if !exists {
			continue
		}
		state, ok := n.Channels[handle.Channel]
		if !ok {
			continue
		}

		target := &state.FirstDelivered
		if field == channelFieldSeen {
			target = &state.FirstSeen
		}
		if *target == nil || handle.Timestamp.Before(**target) {
			ts := handle.Timestamp
			*target = &ts
		}
		n.Channels[handle.Channel] = state
		raiseUpdated(n, handle.Timestamp)
	}
}

// raiseUpdated applies the max merge on Updated: it never decreases.
func raiseUpdated(n *Notification, ts time.Time) {
	if ts.After(n.Updated) {
		n.Updated = ts
	}
}
