package models

import "time"

// Session is one contiguous part of a broadcast, filed under the day-partition
// named by SessionDate. The (StreamerUsername, SessionDate, PartNumber) triple
// is unique within a partition.
type Session struct {
	ID               int64      `json:"id"`
	StreamerUsername string     `json:"streamer_username"`
	SessionDate      string     `json:"session_date"` // broadcast day, YYYY-MM-DD
	PartNumber       int        `json:"part_number"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	IsActive         bool       `json:"is_active"`
	TotalEvents      int        `json:"total_events"`
	Notes            string     `json:"notes,omitempty"`
}
