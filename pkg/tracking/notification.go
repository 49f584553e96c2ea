package tracking

import "time"

// ConfirmMode controls whether a notification expects an explicit user
// confirmation or is considered handled once it has been seen.
type ConfirmMode string

const (
	ConfirmModeImplicit ConfirmMode = "implicit"
	ConfirmModeExplicit ConfirmMode = "explicit"
)

// SendStatus describes the delivery progress of a single channel configuration.
type SendStatus string

const (
	SendStatusPending   SendStatus = "pending"
	SendStatusSent      SendStatus = "sent"
	SendStatusDelivered SendStatus = "delivered"
	SendStatusSeen      SendStatus = "seen"
	SendStatusHandled   SendStatus = "handled"
	SendStatusFailed    SendStatus = "failed"
)

// HandledInfo records when a lifecycle event happened and, optionally,
// which channel reported it.
type HandledInfo struct {
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	Channel   string    `bson:"channel,omitempty" json:"channel,omitempty"`
}

// ChannelSendInfo is the delivery state of one configuration within a channel,
// e.g. a single device token for the push channel.
type ChannelSendInfo struct {
	Detail     string     `bson:"detail,omitempty" json:"detail,omitempty"`
	Status     SendStatus `bson:"status" json:"status"`
	LastUpdate time.Time  `bson:"last_update" json:"last_update"`
}

// ChannelState aggregates per-channel tracking data. FirstDelivered and
// FirstSeen hold the earliest timestamp ever reported for the channel; late or
// out-of-order events can only lower them, never raise them.
type ChannelState struct {
	FirstDelivered *time.Time `bson:"first_delivered,omitempty" json:"first_delivered,omitempty"`
	FirstSeen      *time.Time `bson:"first_seen,omitempty" json:"first_seen,omitempty"`

	// Status is keyed by the path-safe encoded configuration key,
	// see EncodeConfigKey.
	Status map[string]ChannelSendInfo `bson:"status,omitempty" json:"status,omitempty"`
}

// Formatting holds the user-facing representation of a notification.
type Formatting struct {
	Subject     string      `bson:"subject" json:"subject"`
	ConfirmMode ConfirmMode `bson:"confirm_mode" json:"confirm_mode"`
}

// Notification is the aggregate root persisted by the store. Record-level
// FirstDelivered/FirstSeen/FirstConfirmed are set exactly once (first write
// wins); Updated never decreases.
type Notification struct {
	ID             string                  `bson:"_id" json:"id"`
	AppID          string                  `bson:"app_id" json:"app_id"`
	UserID         string                  `bson:"user_id" json:"user_id"`
	Created        time.Time               `bson:"created" json:"created"`
	Updated        time.Time               `bson:"updated" json:"updated"`
	Deleted        bool                    `bson:"deleted" json:"deleted"`
	FirstDelivered *HandledInfo            `bson:"first_delivered,omitempty" json:"first_delivered,omitempty"`
	FirstSeen      *HandledInfo            `bson:"first_seen,omitempty" json:"first_seen,omitempty"`
	FirstConfirmed *HandledInfo            `bson:"first_confirmed,omitempty" json:"first_confirmed,omitempty"`
	Formatting     Formatting              `bson:"formatting" json:"formatting"`
	Channels       map[string]ChannelState `bson:"channels,omitempty" json:"channels,omitempty"`
}

// IsConfirmed returns true once the notification has been explicitly confirmed.
func (n *Notification) IsConfirmed() bool {
	return n.FirstConfirmed != nil
}

// HasChannel reports whether the notification was created with the given
// delivery channel. Tracking events for unknown channels are ignored.
func (n *Notification) HasChannel(channel string) bool {
	_, ok := n.Channels[channel]
	return ok
}

// clone returns a deep copy so stored state can never be mutated through
// values handed out to callers.
func (n Notification) clone() Notification {
	out := n
	out.FirstDelivered = cloneHandled(n.FirstDelivered)
	out.FirstSeen = cloneHandled(n.FirstSeen)
	out.FirstConfirmed = cloneHandled(n.FirstConfirmed)
	if n.Channels != nil {
		out.Channels = make(map[string]ChannelState, len(n.Channels))
		for name, state := range n.Channels {
			out.Channels[name] = state.clone()
		}
	}
	return out
}

func (s ChannelState) clone() ChannelState {
	out := s
	out.FirstDelivered = cloneTime(s.FirstDelivered)
	out.FirstSeen = cloneTime(s.FirstSeen)
	if s.Status != nil {
		out.Status = make(map[string]ChannelSendInfo, len(s.Status))
		for key, info := range s.Status {
			out.Status[key] = info
		}
	}
	return out
}

func cloneHandled(h *HandledInfo) *HandledInfo {
	if h == nil {
		return nil
	}
	c := *h
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
