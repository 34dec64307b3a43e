// Package events defines the payloads exchanged with the presence gateway
// and downstream playtime consumers.
package events

import "time"

// Event types carried in the event_type message header.
const (
	TypePresenceUpdated  = "presence.updated"
	TypeSessionStarted   = "session.started"
	TypePlaytimeRecorded = "playtime.recorded"
)

// PresenceUpdated is emitted by the presence gateway whenever a user's
// externally-observed status changes. A null activity means the user is not
// playing anything tracked.
type PresenceUpdated struct {
	UserID     int64             `json:"user_id"`
	Activity   *PresenceActivity `json:"activity"`
	ObservedAt time.Time         `json:"observed_at"`
}

// PresenceActivity names the activity and when the gateway saw it start.
// StartedAt is seconds since epoch, the gateway's native resolution.
type PresenceActivity struct {
	Name      string `json:"name"`
	StartedAt int64  `json:"started_at"`
}
