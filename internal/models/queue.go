// Package models provides data model definitions for the liverelay core.
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// QueueKind identifies the outbound API call a queue item represents.
type QueueKind string

const (
	KindSubmitEvent         QueueKind = "submit_event"
	KindUpdateViewerCount   QueueKind = "update_viewer_count"
	KindRecordViewerHistory QueueKind = "record_viewer_history"
	KindUpdateStreamState   QueueKind = "update_stream_state"
	KindRegisterStreamer    QueueKind = "register_streamer"
	KindCreateStream        QueueKind = "create_stream"
)

// QueueStatus represents the lifecycle state of a queue item.
type QueueStatus string

const (
	StatusPending QueueStatus = "pending"
	StatusSent    QueueStatus = "sent"
	StatusFailed  QueueStatus = "failed"
)

// Queue priorities. Higher values are delivered first.
const (
	PriorityNormal   = 0
	PriorityHigh     = 1
	PriorityCritical = 2
)

// QueueItem is one durable outbound call waiting for delivery.
// The JSON tags define the persisted outbox file format.
type QueueItem struct {
	ID            string          `json:"id"`
	Kind          QueueKind       `json:"kind"`
	Payload       json.RawMessage `json:"payload"`
	Priority      int             `json:"priority"`
	Status        QueueStatus     `json:"status"`
	Attempts      int             `json:"attempts"`
	CreatedAt     time.Time       `json:"created_at"`
	LastAttemptAt *time.Time      `json:"last_attempt_at,omitempty"`
	SentAt        *time.Time      `json:"sent_at,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
}

// NewQueueItem builds a pending queue item with a time-derived unique ID.
func NewQueueItem(kind QueueKind, payload json.RawMessage, priority int) QueueItem {
	now := time.Now().UTC()
	return QueueItem{
		ID:        fmt.Sprintf("%s_%s_%s", now.Format("20060102T150405.000000000"), kind, uuid.New().String()[:8]),
		Kind:      kind,
		Payload:   payload,
		Priority:  priority,
		Status:    StatusPending,
		CreatedAt: now,
	}
}

// QueueStats summarizes the outbox contents by status.
type QueueStats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}
