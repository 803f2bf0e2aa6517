package models

import (
	"encoding/json"
	"time"
)

// EventKind classifies an incoming live-stream event.
type EventKind string

const (
	EventConnect    EventKind = "connect"
	EventDisconnect EventKind = "disconnect"
	EventComment    EventKind = "comment"
	EventGift       EventKind = "gift"
	EventFollow     EventKind = "follow"
	EventJoin       EventKind = "join"
	EventShare      EventKind = "share"
	EventLike       EventKind = "like"
)

// Actor is the canonical viewer record extracted from any source event shape.
// Optional fields are pointers; nil means the source did not carry the field.
type Actor struct {
	Username            string  `json:"username"`
	DisplayName         *string `json:"display_name,omitempty"`
	ProfileImageURL     *string `json:"profile_image_url,omitempty"`
	FollowerCount       *int    `json:"follower_count,omitempty"`
	FollowingCount      *int    `json:"following_count,omitempty"`
	IsFollowingStreamer *bool   `json:"is_following_streamer,omitempty"`
}

// Name returns the best display handle for the actor.
func (a Actor) Name() string {
	if a.DisplayName != nil && *a.DisplayName != "" {
		return *a.DisplayName
	}
	return a.Username
}

// GiftDetail is the normalized donation attached to a gift event.
type GiftDetail struct {
	GiftID   *string `json:"gift_id,omitempty"`
	Name     string  `json:"gift_name"`
	Type     *string `json:"gift_type,omitempty"`
	Count    int     `json:"gift_count"`
	Coins    *int    `json:"coins,omitempty"`
	ImageURL *string `json:"gift_image_url,omitempty"`
	Message  *string `json:"message,omitempty"`
}

// EventRecord is one stored row in a day-partition file. Records are
// append-only; they are never mutated or deleted once written.
type EventRecord struct {
	ID               int64           `json:"id,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`
	Kind             EventKind       `json:"event_type"`
	ActorName        string          `json:"user_nickname"`
	StreamerUsername string          `json:"streamer_username"`
	SessionID        int64           `json:"stream_session_id"`
	PartNumber       int             `json:"stream_part_number"`
	Payload          json.RawMessage `json:"simple_data"` // normalized fields
	Raw              json.RawMessage `json:"raw_data"`    // original source object
}

// EventPayload is the normalized structure serialized into EventRecord.Payload.
type EventPayload struct {
	Content  string         `json:"content"`
	Actor    Actor          `json:"actor"`
	Gift     *GiftDetail    `json:"donation,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
