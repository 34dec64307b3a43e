package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"example.com/playtime/internal/domain"
	"example.com/playtime/internal/events"
)

// PresenceTracker is the subset of the domain tracker the handler drives.
type PresenceTracker interface {
	HandlePresence(ctx context.Context, sig domain.PresenceSignal) error
}

// PresenceHandler decodes presence.updated events and feeds them into the
// session tracker. Malformed payloads are logged and skipped so the
// partition keeps draining; tracker failures propagate so the message is
// redelivered and the signal retried.
type PresenceHandler struct {
	tracker PresenceTracker
	logger  *log.Logger
}

// NewPresenceHandler constructs a handler around the tracker.
func NewPresenceHandler(tracker PresenceTracker, logger *log.Logger) *PresenceHandler {
	if logger == nil {
		logger = log.New(log.Writer(), "[presence] ", log.LstdFlags)
	}
	return &PresenceHandler{tracker: tracker, logger: logger}
}

// Handle applies one decoded Kafka message.
func (h *PresenceHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != events.TypePresenceUpdated {
		h.logger.Printf("skipping event (event_type=%s, offset=%d)", msg.EventType, msg.Offset)
		recordSkipped(msg.Topic)
		return nil
	}

	var evt events.PresenceUpdated
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		h.logger.Printf("skipping malformed presence payload (offset=%d): %v", msg.Offset, err)
		recordSkipped(msg.Topic)
		return nil
	}
	if evt.UserID == 0 {
		h.logger.Printf("skipping presence event without user_id (offset=%d)", msg.Offset)
		recordSkipped(msg.Topic)
		return nil
	}

	sig := domain.PresenceSignal{
		UserID:     evt.UserID,
		ObservedAt: evt.ObservedAt,
	}
	if sig.ObservedAt.IsZero() {
		sig.ObservedAt = msg.Timestamp
	}

	if evt.Activity != nil {
		if evt.Activity.Name == "" {
			h.logger.Printf("skipping presence event with empty activity name (user=%d, offset=%d)", evt.UserID, msg.Offset)
			recordSkipped(msg.Topic)
			return nil
		}
		sig.Activity = &domain.ActivityStatus{
			Name:      evt.Activity.Name,
			StartedAt: time.Unix(evt.Activity.StartedAt, 0).UTC(),
		}
	}

	if err := h.tracker.HandlePresence(ctx, sig); err != nil {
		return fmt.Errorf("apply presence signal (user=%d): %w", evt.UserID, err)
	}
	return nil
}
