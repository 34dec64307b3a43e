package events

import "time"

// SessionStarted is emitted when the tracker opens a live session.
type SessionStarted struct {
	UserID     int64     `json:"user_id"`
	ActivityID int64     `json:"activity_id"`
	StartedAt  time.Time `json:"started_at"`
}

// PlaytimeRecorded is emitted when a session is reconciled into the
// playtime totals.
type PlaytimeRecorded struct {
	UserID     int64     `json:"user_id"`
	ActivityID int64     `json:"activity_id"`
	Seconds    int64     `json:"seconds"`
	StartedAt  time.Time `json:"started_at"`
	ObservedAt time.Time `json:"observed_at"`
	Clamped    bool      `json:"clamped,omitempty"`
}
