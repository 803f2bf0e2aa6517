// Package ingest turns raw source notifications into stored events and
// outbound backend calls.
package ingest

import (
	"encoding/json"
	"time"

	"github.com/liverelay/liverelay/internal/models"
)

// Notification is one decoded event from the live source. Concrete types
// declare the data they carry through the bearer interfaces below; the
// pipeline asks for capabilities instead of probing optional fields.
type Notification interface {
	EventKind() models.EventKind
	OccurredAt() time.Time
	RawData() json.RawMessage
}

// ActorBearer is implemented by notifications attributed to a viewer.
type ActorBearer interface {
	SourceActor() SourceActor
}

// ContentBearer is implemented by notifications with display text.
type ContentBearer interface {
	EventContent() string
}

// GiftBearer is implemented by gift notifications.
type GiftBearer interface {
	GiftInfo() SourceGift
}

// ViewerCountBearer is implemented by notifications that carry the room's
// current viewer count.
type ViewerCountBearer interface {
	CurrentViewers() int
}

// SourceActor is the viewer object as the source feed encodes it. Different
// feed versions use different field names for the same thing; aliases are
// reconciled by NormalizeActor.
type SourceActor struct {
	UniqueID       string `json:"unique_id"`
	Nickname       string `json:"nickname"`
	AvatarURL      string `json:"avatar_url"`
	ProfilePicture string `json:"profile_picture"`
	FollowerCount  *int   `json:"follower_count"`
	FollowingCount *int   `json:"following_count"`
	IsFollowing    *bool  `json:"is_following"`
}

// NormalizeActor converts a source viewer object to the canonical Actor.
// Fields the source did not carry stay nil rather than defaulting to zero,
// so downstream consumers can tell "absent" from "zero".
func NormalizeActor(src SourceActor) models.Actor {
	actor := models.Actor{Username: src.UniqueID}

	if src.Nickname != "" && src.Nickname != src.UniqueID {
		nick := src.Nickname
		actor.DisplayName = &nick
	}
	if url := firstNonEmpty(src.AvatarURL, src.ProfilePicture); url != "" {
		actor.ProfileImageURL = &url
	}
	actor.FollowerCount = src.FollowerCount
	actor.FollowingCount = src.FollowingCount
	actor.IsFollowingStreamer = src.IsFollowing
	return actor
}

// SourceGift is the donation object as the source feed encodes it.
type SourceGift struct {
	ID           *string `json:"gift_id"`
	Name         string  `json:"gift_name"`
	Type         *string `json:"gift_type"`
	RepeatCount  int     `json:"repeat_count"`
	Coins        *int    `json:"coins"`
	DiamondCount *int    `json:"diamond_count"`
	ImageURL     string  `json:"gift_image_url"`
	IconURL      string  `json:"gift_icon_url"`
	Message      *string `json:"message"`
}

// NormalizeGift converts a source donation to the canonical GiftDetail.
// Coins win over the diamond count when both are present, and the image URL
// wins over the icon URL.
func NormalizeGift(src SourceGift) models.GiftDetail {
	gift := models.GiftDetail{
		GiftID:  src.ID,
		Name:    src.Name,
		Type:    src.Type,
		Count:   src.RepeatCount,
		Message: src.Message,
	}
	if gift.Count < 1 {
		gift.Count = 1
	}
	if src.Coins != nil {
		gift.Coins = src.Coins
	} else if src.DiamondCount != nil {
		gift.Coins = src.DiamondCount
	}
	if url := firstNonEmpty(src.ImageURL, src.IconURL); url != "" {
		gift.ImageURL = &url
	}
	return gift
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Base carries the fields every notification shares: when the event
// happened and the raw wire object it was decoded from.
type Base struct {
	At  time.Time
	Raw json.RawMessage
}

func (b Base) OccurredAt() time.Time    { return b.At }
func (b Base) RawData() json.RawMessage { return b.Raw }

// ConnectNotification marks the relay attaching to a live broadcast.
type ConnectNotification struct {
	Base
	Viewers *int
}

func (ConnectNotification) EventKind() models.EventKind { return models.EventConnect }

// DisconnectNotification marks the broadcast ending or the feed dropping.
type DisconnectNotification struct {
	Base
}

func (DisconnectNotification) EventKind() models.EventKind { return models.EventDisconnect }

// CommentNotification is one chat message.
type CommentNotification struct {
	Base
	Actor SourceActor
	Text  string
}

func (CommentNotification) EventKind() models.EventKind { return models.EventComment }
func (n CommentNotification) SourceActor() SourceActor  { return n.Actor }
func (n CommentNotification) EventContent() string      { return n.Text }

// GiftNotification is one completed donation.
type GiftNotification struct {
	Base
	Actor SourceActor
	Gift  SourceGift
}

func (GiftNotification) EventKind() models.EventKind { return models.EventGift }
func (n GiftNotification) SourceActor() SourceActor  { return n.Actor }
func (n GiftNotification) GiftInfo() SourceGift      { return n.Gift }

// FollowNotification is a viewer following the streamer.
type FollowNotification struct {
	Base
	Actor SourceActor
}

func (FollowNotification) EventKind() models.EventKind { return models.EventFollow }
func (n FollowNotification) SourceActor() SourceActor  { return n.Actor }

// JoinNotification is a viewer entering the room. It carries the room's
// viewer count at that moment.
type JoinNotification struct {
	Base
	Actor   SourceActor
	Viewers int
}

func (JoinNotification) EventKind() models.EventKind { return models.EventJoin }
func (n JoinNotification) SourceActor() SourceActor  { return n.Actor }
func (n JoinNotification) CurrentViewers() int       { return n.Viewers }

// ShareNotification is a viewer sharing the broadcast.
type ShareNotification struct {
	Base
	Actor SourceActor
}

func (ShareNotification) EventKind() models.EventKind { return models.EventShare }
func (n ShareNotification) SourceActor() SourceActor  { return n.Actor }

// LikeNotification is a batch of likes from one viewer.
type LikeNotification struct {
	Base
	Actor SourceActor
	Count int
}

func (LikeNotification) EventKind() models.EventKind { return models.EventLike }
func (n LikeNotification) SourceActor() SourceActor  { return n.Actor }
