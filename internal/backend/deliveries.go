package backend

import (
	"context"
	"encoding/json"

	apperrors "github.com/liverelay/liverelay/internal/errors"
	"github.com/liverelay/liverelay/internal/models"
	"github.com/liverelay/liverelay/internal/outbox"
)

// Queued payload shapes. Items read back from disk after a restart must
// decode with the same shapes used when they were enqueued, so these stay
// stable even if the client API changes.

// ViewerCountPayload drives both live count patches and history samples.
type ViewerCountPayload struct {
	StreamID    string `json:"stream_id"`
	ViewerCount int    `json:"viewer_count"`
}

// StreamStatePayload patches arbitrary stream fields, typically ended_at.
type StreamStatePayload struct {
	StreamID string         `json:"stream_id"`
	Fields   map[string]any `json:"fields"`
}

// Deliveries returns the dispatcher's delivery table: one function per queue
// kind, each decoding its payload and issuing the matching backend call.
func (c *Client) Deliveries() map[models.QueueKind]outbox.DeliveryFunc {
	return map[models.QueueKind]outbox.DeliveryFunc{
		models.KindSubmitEvent: func(ctx context.Context, payload json.RawMessage) error {
			return c.SubmitEvent(ctx, payload)
		},

		models.KindUpdateViewerCount: func(ctx context.Context, payload json.RawMessage) error {
			var p ViewerCountPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return apperrors.Wrap(apperrors.ErrInvalid, "bad viewer count payload", err)
			}
			return c.UpdateViewerCount(ctx, p.StreamID, p.ViewerCount)
		},

		models.KindRecordViewerHistory: func(ctx context.Context, payload json.RawMessage) error {
			var p ViewerCountPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return apperrors.Wrap(apperrors.ErrInvalid, "bad viewer history payload", err)
			}
			return c.AppendViewerHistory(ctx, ViewerHistoryRequest{
				StreamID:    p.StreamID,
				ViewerCount: p.ViewerCount,
			})
		},

		models.KindUpdateStreamState: func(ctx context.Context, payload json.RawMessage) error {
			var p StreamStatePayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return apperrors.Wrap(apperrors.ErrInvalid, "bad stream state payload", err)
			}
			return c.PatchStream(ctx, p.StreamID, p.Fields)
		},

		models.KindRegisterStreamer: func(ctx context.Context, payload json.RawMessage) error {
			var p RegisterStreamerRequest
			if err := json.Unmarshal(payload, &p); err != nil {
				return apperrors.Wrap(apperrors.ErrInvalid, "bad streamer payload", err)
			}
			_, err := c.RegisterStreamer(ctx, p)
			return err
		},

		models.KindCreateStream: func(ctx context.Context, payload json.RawMessage) error {
			var p CreateStreamRequest
			if err := json.Unmarshal(payload, &p); err != nil {
				return apperrors.Wrap(apperrors.ErrInvalid, "bad stream payload", err)
			}
			_, err := c.CreateStream(ctx, p)
			return err
		},
	}
}
