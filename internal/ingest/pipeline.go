package ingest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/liverelay/liverelay/internal/backend"
	apperrors "github.com/liverelay/liverelay/internal/errors"
	"github.com/liverelay/liverelay/internal/logging"
	"github.com/liverelay/liverelay/internal/models"
	"github.com/liverelay/liverelay/internal/outbox"
	"github.com/liverelay/liverelay/internal/session"
	"github.com/liverelay/liverelay/internal/statestore"
)

// Publisher receives every stored event for local fan-out. Publishing is
// best effort and never blocks the pipeline.
type Publisher interface {
	Publish(kind models.EventKind, payload any)
}

// WireEvent is the event shape posted to the backend and mirrored to the
// dashboard.
type WireEvent struct {
	StreamerUsername string              `json:"streamer_username"`
	EventType        models.EventKind    `json:"event_type"`
	Timestamp        time.Time           `json:"timestamp"`
	SessionDate      string              `json:"session_date"`
	PartNumber       int                 `json:"part_number"`
	Data             models.EventPayload `json:"data"`
}

// Pipeline is the per-streamer ingestion path: resolve the session, persist
// the event locally, then deliver it to the backend directly or through the
// outbox. Local persistence is the gate; an event that cannot be stored is
// dropped, never queued.
type Pipeline struct {
	streamer   string
	resolver   *session.Resolver
	store      *statestore.Store
	client     *backend.Client
	dispatcher *outbox.Dispatcher
	publisher  Publisher
	logger     *logging.Logger

	historyInterval time.Duration

	mu          sync.Mutex
	streamID    string
	lastHistory time.Time
}

// NewPipeline wires the ingestion path for one streamer.
func NewPipeline(streamer string, resolver *session.Resolver, store *statestore.Store,
	client *backend.Client, dispatcher *outbox.Dispatcher, publisher Publisher,
	historyInterval time.Duration, logger *logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.Get()
	}
	if historyInterval <= 0 {
		historyInterval = 10 * time.Second
	}
	return &Pipeline{
		streamer:        streamer,
		resolver:        resolver,
		store:           store,
		client:          client,
		dispatcher:      dispatcher,
		publisher:       publisher,
		logger:          logger,
		historyInterval: historyInterval,
	}
}

// Handle processes one source notification end to end.
func (p *Pipeline) Handle(ctx context.Context, n Notification) error {
	switch n.(type) {
	case ConnectNotification:
		if err := p.handleConnect(ctx); err != nil {
			return err
		}
	case DisconnectNotification:
		defer p.handleDisconnect(ctx)
	}

	assignment, err := p.resolver.Resolve(ctx, p.streamer)
	if err != nil {
		p.logger.Error("session resolution failed, dropping event", err, map[string]any{
			"kind": string(n.EventKind()),
		})
		return err
	}

	payload := p.buildPayload(n)
	encoded, err := json.Marshal(payload)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to encode event payload", err)
	}

	rec := &models.EventRecord{
		Timestamp:        n.OccurredAt(),
		Kind:             n.EventKind(),
		ActorName:        payload.Actor.Name(),
		StreamerUsername: p.streamer,
		SessionID:        assignment.SessionID,
		PartNumber:       assignment.Part,
		Payload:          encoded,
		Raw:              n.RawData(),
	}
	if err := p.store.InsertEvent(ctx, assignment.Day, rec); err != nil {
		p.logger.Error("event persistence failed, dropping event", err, map[string]any{
			"kind": string(n.EventKind()), "day": assignment.Day,
		})
		return err
	}

	wire := WireEvent{
		StreamerUsername: p.streamer,
		EventType:        n.EventKind(),
		Timestamp:        n.OccurredAt().UTC(),
		SessionDate:      assignment.Day,
		PartNumber:       assignment.Part,
		Data:             payload,
	}
	wireJSON, err := json.Marshal(wire)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to encode wire event", err)
	}

	p.sendOrQueue(ctx, models.KindSubmitEvent, wireJSON, models.PriorityHigh, func(c context.Context) error {
		return p.client.SubmitEvent(c, wireJSON)
	})

	if counted, ok := n.(ViewerCountBearer); ok {
		p.trackViewers(ctx, counted.CurrentViewers())
	}

	if p.publisher != nil {
		p.publisher.Publish(n.EventKind(), wire)
	}
	return nil
}

// buildPayload assembles the normalized payload from whatever capabilities
// the notification declares.
func (p *Pipeline) buildPayload(n Notification) models.EventPayload {
	var payload models.EventPayload

	if bearer, ok := n.(ActorBearer); ok {
		payload.Actor = NormalizeActor(bearer.SourceActor())
	}
	if bearer, ok := n.(ContentBearer); ok {
		payload.Content = bearer.EventContent()
	}
	if bearer, ok := n.(GiftBearer); ok {
		gift := NormalizeGift(bearer.GiftInfo())
		payload.Gift = &gift
	}

	switch v := n.(type) {
	case ConnectNotification:
		if v.Viewers != nil {
			payload.Metadata = map[string]any{"viewer_count": *v.Viewers}
		}
	case JoinNotification:
		payload.Metadata = map[string]any{"viewer_count": v.Viewers}
	case LikeNotification:
		payload.Metadata = map[string]any{"like_count": v.Count}
	}
	return payload
}

// handleConnect registers the streamer and opens the backend stream
// resource. Both calls fall back to the outbox; the stream id is only
// remembered when creation succeeded directly.
func (p *Pipeline) handleConnect(ctx context.Context) error {
	register := backend.RegisterStreamerRequest{Username: p.streamer, DisplayName: p.streamer}
	registerJSON, _ := json.Marshal(register)

	streamerID, err := p.client.RegisterStreamer(ctx, register)
	if err != nil {
		p.logger.Warn("streamer registration deferred to outbox", map[string]any{"error": err.Error()})
		p.dispatcher.Enqueue(models.KindRegisterStreamer, registerJSON, models.PriorityCritical)
	}

	create := backend.CreateStreamRequest{StreamerID: streamerID}
	createJSON, _ := json.Marshal(create)

	streamID, err := p.client.CreateStream(ctx, create)
	if err != nil {
		p.logger.Warn("stream creation deferred to outbox", map[string]any{"error": err.Error()})
		p.dispatcher.Enqueue(models.KindCreateStream, createJSON, models.PriorityCritical)
		return nil
	}

	p.mu.Lock()
	p.streamID = streamID
	p.mu.Unlock()
	p.logger.Info("stream registered with backend", map[string]any{"stream_id": streamID})
	return nil
}

// handleDisconnect closes the local session and tells the backend the
// stream ended. It runs after the disconnect event itself is stored, so the
// closing event lands in the part it belongs to.
func (p *Pipeline) handleDisconnect(ctx context.Context) {
	if err := p.resolver.End(ctx, p.streamer); err != nil {
		p.logger.Error("failed to close session", err, map[string]any{"streamer": p.streamer})
	}

	p.mu.Lock()
	streamID := p.streamID
	p.streamID = ""
	p.lastHistory = time.Time{}
	p.mu.Unlock()

	state := backend.StreamStatePayload{
		StreamID: streamID,
		Fields:   map[string]any{"ended_at": time.Now().UTC().Format(time.RFC3339)},
	}
	stateJSON, _ := json.Marshal(state)
	p.sendOrQueue(ctx, models.KindUpdateStreamState, stateJSON, models.PriorityCritical, func(c context.Context) error {
		return p.client.PatchStream(c, streamID, state.Fields)
	})
}

// trackViewers pushes the live count on every sample and appends a history
// row at most once per interval.
func (p *Pipeline) trackViewers(ctx context.Context, count int) {
	p.mu.Lock()
	streamID := p.streamID
	sampleDue := time.Since(p.lastHistory) >= p.historyInterval
	if sampleDue {
		p.lastHistory = time.Now()
	}
	p.mu.Unlock()

	countPayload := backend.ViewerCountPayload{StreamID: streamID, ViewerCount: count}
	countJSON, _ := json.Marshal(countPayload)
	p.sendOrQueue(ctx, models.KindUpdateViewerCount, countJSON, models.PriorityCritical, func(c context.Context) error {
		return p.client.UpdateViewerCount(c, streamID, count)
	})

	if sampleDue {
		p.sendOrQueue(ctx, models.KindRecordViewerHistory, countJSON, models.PriorityHigh, func(c context.Context) error {
			return p.client.AppendViewerHistory(c, backend.ViewerHistoryRequest{
				StreamID: streamID, ViewerCount: count,
			})
		})
	}
}

// sendOrQueue tries the direct call once; any failure routes the payload
// through the outbox for retry.
func (p *Pipeline) sendOrQueue(ctx context.Context, kind models.QueueKind, payload json.RawMessage, priority int, direct func(context.Context) error) {
	if err := direct(ctx); err != nil {
		p.logger.Warn("direct delivery failed, queueing", map[string]any{
			"kind": string(kind), "error": err.Error(),
		})
		p.dispatcher.Enqueue(kind, payload, priority)
		return
	}
	p.logger.Debug("delivered directly", map[string]any{"kind": string(kind)})
}
