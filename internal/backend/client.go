// Package backend provides the REST client for the remote event API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/liverelay/liverelay/internal/errors"
	"github.com/liverelay/liverelay/internal/logging"
)

// Client calls the remote backend. Lightweight calls (event submission,
// patches, history samples) use a short timeout; registration and stream
// creation get a longer one. The backend is assumed idempotent-tolerant:
// a retried call that already landed must not corrupt its state.
type Client struct {
	baseURL string
	light   *http.Client
	heavy   *http.Client
	logger  *logging.Logger
}

// New creates a Client for the given base URL, e.g. "http://localhost:3000/api".
func New(baseURL string, lightTimeout, createTimeout time.Duration, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Get()
	}
	if lightTimeout <= 0 {
		lightTimeout = 5 * time.Second
	}
	if createTimeout <= 0 {
		createTimeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		light:   &http.Client{Timeout: lightTimeout},
		heavy:   &http.Client{Timeout: createTimeout},
		logger:  logger,
	}
}

// do sends one JSON request and classifies the outcome: transport failures
// become DELIVERY_FAILED, non-2xx responses BACKEND_STATUS. Both are
// retryable; the outbox makes no finer distinction.
func (c *Client) do(ctx context.Context, client *http.Client, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to encode request body", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDeliveryFailed, fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDeliveryFailed, "failed to read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperrors.New(apperrors.ErrBackendStatus,
			fmt.Sprintf("%s %s returned %d", method, path, resp.StatusCode))
	}
	return data, nil
}

// idResponse is the shape shared by creation endpoints.
type idResponse struct {
	ID string `json:"id"`
}

// RegisterStreamerRequest registers or refreshes a streamer.
type RegisterStreamerRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// RegisterStreamer creates or updates the streamer record, returning its id.
func (c *Client) RegisterStreamer(ctx context.Context, req RegisterStreamerRequest) (string, error) {
	data, err := c.do(ctx, c.heavy, http.MethodPost, "/streamers", req)
	if err != nil {
		return "", err
	}
	var out idResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", apperrors.Wrap(apperrors.ErrInternal, "unexpected streamer response", err)
	}
	return out.ID, nil
}

// CreateStreamRequest opens a new stream, or a continuation part of one.
type CreateStreamRequest struct {
	StreamerID  string `json:"streamer_id"`
	SessionDate string `json:"session_date,omitempty"`
	PartNumber  int    `json:"part_number,omitempty"`
}

// CreateStream creates a stream resource and returns its id.
func (c *Client) CreateStream(ctx context.Context, req CreateStreamRequest) (string, error) {
	data, err := c.do(ctx, c.heavy, http.MethodPost, "/streams", req)
	if err != nil {
		return "", err
	}
	var out idResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", apperrors.Wrap(apperrors.ErrInternal, "unexpected stream response", err)
	}
	return out.ID, nil
}

// PatchStream updates fields of a stream resource (viewer count, ended_at).
func (c *Client) PatchStream(ctx context.Context, streamID string, fields map[string]any) error {
	_, err := c.do(ctx, c.light, http.MethodPatch, "/streams/"+streamID, fields)
	return err
}

// SubmitEvent posts one normalized live event.
func (c *Client) SubmitEvent(ctx context.Context, payload json.RawMessage) error {
	_, err := c.do(ctx, c.light, http.MethodPost, "/events", payload)
	return err
}

// UpdateViewerCount patches the live viewer count of a stream.
func (c *Client) UpdateViewerCount(ctx context.Context, streamID string, count int) error {
	return c.PatchStream(ctx, streamID, map[string]any{"viewer_count": count})
}

// ViewerHistoryRequest appends one viewer-count sample.
type ViewerHistoryRequest struct {
	StreamID    string `json:"stream_id"`
	ViewerCount int    `json:"viewer_count"`
}

// AppendViewerHistory records a viewer-count sample.
func (c *Client) AppendViewerHistory(ctx context.Context, req ViewerHistoryRequest) error {
	_, err := c.do(ctx, c.light, http.MethodPost, "/viewer-history", req)
	return err
}
