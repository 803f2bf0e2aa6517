// Package source connects to the live-event feed and decodes its frames
// into typed notifications.
package source

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	apperrors "github.com/liverelay/liverelay/internal/errors"
	"github.com/liverelay/liverelay/internal/ingest"
	"github.com/liverelay/liverelay/internal/models"
)

// Handler consumes one decoded notification.
type Handler func(ctx context.Context, n ingest.Notification)

// envelope is the framing used by the feed: a type tag plus an opaque body.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Feed is a websocket client for one connector endpoint.
type Feed struct {
	url    string
	dialer *websocket.Dialer
}

// NewFeed creates a Feed for the given websocket URL.
func NewFeed(url string) *Feed {
	return &Feed{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Run connects and pumps notifications into the handler until the stream
// ends, the connection drops, or ctx is cancelled. It returns
// SOURCE_NOT_LIVE when the feed reports the broadcast is over and
// SOURCE_DISCONNECTED on transport failure; the caller decides how long to
// wait before reconnecting.
func (f *Feed) Run(ctx context.Context, handle Handler) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrSourceDisconnected, "failed to dial feed", err)
	}
	defer conn.Close()
	log.Printf("[Feed] Connected to %s", f.url)

	// unblock ReadMessage when the context ends
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	handle(ctx, ingest.ConnectNotification{Base: ingest.Base{At: time.Now().UTC()}})

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[Feed] Read error: %v", err)
			handle(ctx, ingest.DisconnectNotification{Base: ingest.Base{At: time.Now().UTC()}})
			return apperrors.Wrap(apperrors.ErrSourceDisconnected, "feed connection lost", err)
		}

		var env envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			log.Printf("[Feed] Skipping malformed frame: %v", err)
			continue
		}

		if env.Type == "stream_ended" {
			log.Printf("[Feed] Stream ended")
			handle(ctx, ingest.DisconnectNotification{Base: ingest.Base{At: time.Now().UTC()}})
			return apperrors.New(apperrors.ErrSourceNotLive, "broadcast is over")
		}

		n, err := decode(env)
		if err != nil {
			log.Printf("[Feed] Skipping %s frame: %v", env.Type, err)
			continue
		}
		if n != nil {
			handle(ctx, n)
		}
	}
}

// frame bodies, one per event type the feed emits.
type commentFrame struct {
	User    ingest.SourceActor `json:"user"`
	Comment string             `json:"comment"`
}

type giftFrame struct {
	User ingest.SourceActor `json:"user"`
	Gift ingest.SourceGift  `json:"gift"`
}

type actorFrame struct {
	User ingest.SourceActor `json:"user"`
}

type joinFrame struct {
	User        ingest.SourceActor `json:"user"`
	ViewerCount int                `json:"viewer_count"`
}

type likeFrame struct {
	User      ingest.SourceActor `json:"user"`
	LikeCount int                `json:"like_count"`
}

type connectFrame struct {
	ViewerCount *int `json:"viewer_count"`
}

// decode maps an envelope to its typed notification. Unknown types return
// nil so new feed events degrade to a skipped frame instead of an error.
func decode(env envelope) (ingest.Notification, error) {
	stamp := ingest.Base{At: time.Now().UTC(), Raw: env.Data}

	switch models.EventKind(env.Type) {
	case models.EventConnect:
		var body connectFrame
		if err := json.Unmarshal(env.Data, &body); err != nil {
			return nil, err
		}
		return ingest.ConnectNotification{Base: stamp, Viewers: body.ViewerCount}, nil

	case models.EventDisconnect:
		return ingest.DisconnectNotification{Base: stamp}, nil

	case models.EventComment:
		var body commentFrame
		if err := json.Unmarshal(env.Data, &body); err != nil {
			return nil, err
		}
		return ingest.CommentNotification{Base: stamp, Actor: body.User, Text: body.Comment}, nil

	case models.EventGift:
		var body giftFrame
		if err := json.Unmarshal(env.Data, &body); err != nil {
			return nil, err
		}
		return ingest.GiftNotification{Base: stamp, Actor: body.User, Gift: body.Gift}, nil

	case models.EventFollow:
		var body actorFrame
		if err := json.Unmarshal(env.Data, &body); err != nil {
			return nil, err
		}
		return ingest.FollowNotification{Base: stamp, Actor: body.User}, nil

	case models.EventJoin:
		var body joinFrame
		if err := json.Unmarshal(env.Data, &body); err != nil {
			return nil, err
		}
		return ingest.JoinNotification{Base: stamp, Actor: body.User, Viewers: body.ViewerCount}, nil

	case models.EventShare:
		var body actorFrame
		if err := json.Unmarshal(env.Data, &body); err != nil {
			return nil, err
		}
		return ingest.ShareNotification{Base: stamp, Actor: body.User}, nil

	case models.EventLike:
		var body likeFrame
		if err := json.Unmarshal(env.Data, &body); err != nil {
			return nil, err
		}
		return ingest.LikeNotification{Base: stamp, Actor: body.User, Count: body.LikeCount}, nil

	default:
		log.Printf("[Feed] Unknown frame type %q", env.Type)
		return nil, nil
	}
}
