package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/playtime/internal/domain"
)

type stubTracker struct {
	signals []domain.PresenceSignal
	err     error
}

func (s *stubTracker) HandlePresence(_ context.Context, sig domain.PresenceSignal) error {
	s.signals = append(s.signals, sig)
	return s.err
}

func presenceMessage(t *testing.T, payload string) Message {
	t.Helper()
	return Message{
		Topic:     "presence_events",
		Offset:    1,
		Timestamp: time.Unix(9000, 0).UTC(),
		EventType: "presence.updated",
		Payload:   json.RawMessage(payload),
	}
}

func TestPresenceHandlerPlayingSignal(t *testing.T) {
	tracker := &stubTracker{}
	handler := NewPresenceHandler(tracker, log.New(testWriter{t}, "", 0))

	msg := presenceMessage(t, `{"user_id":42,"activity":{"name":"Chess","started_at":1000},"observed_at":"2023-01-01T00:00:00Z"}`)
	require.NoError(t, handler.Handle(context.Background(), msg))

	require.Len(t, tracker.signals, 1)
	sig := tracker.signals[0]
	require.EqualValues(t, 42, sig.UserID)
	require.NotNil(t, sig.Activity)
	require.Equal(t, "Chess", sig.Activity.Name)
	require.True(t, sig.Activity.StartedAt.Equal(time.Unix(1000, 0)))
	require.Equal(t, 2023, sig.ObservedAt.Year())
}

func TestPresenceHandlerStoppedSignal(t *testing.T) {
	tracker := &stubTracker{}
	handler := NewPresenceHandler(tracker, log.New(testWriter{t}, "", 0))

	msg := presenceMessage(t, `{"user_id":42,"activity":null}`)
	require.NoError(t, handler.Handle(context.Background(), msg))

	require.Len(t, tracker.signals, 1)
	require.Nil(t, tracker.signals[0].Activity)
}

func TestPresenceHandlerFallsBackToMessageTimestamp(t *testing.T) {
	tracker := &stubTracker{}
	handler := NewPresenceHandler(tracker, log.New(testWriter{t}, "", 0))

	msg := presenceMessage(t, `{"user_id":42,"activity":null}`)
	require.NoError(t, handler.Handle(context.Background(), msg))

	require.Len(t, tracker.signals, 1)
	require.True(t, tracker.signals[0].ObservedAt.Equal(time.Unix(9000, 0)))
}

func TestPresenceHandlerSkipsMalformedPayload(t *testing.T) {
	tracker := &stubTracker{}
	handler := NewPresenceHandler(tracker, log.New(testWriter{t}, "", 0))

	msg := presenceMessage(t, `{not json`)
	require.NoError(t, handler.Handle(context.Background(), msg))
	require.Empty(t, tracker.signals)
}

func TestPresenceHandlerSkipsMissingUserID(t *testing.T) {
	tracker := &stubTracker{}
	handler := NewPresenceHandler(tracker, log.New(testWriter{t}, "", 0))

	msg := presenceMessage(t, `{"activity":{"name":"Chess","started_at":1000}}`)
	require.NoError(t, handler.Handle(context.Background(), msg))
	require.Empty(t, tracker.signals)
}

func TestPresenceHandlerSkipsEmptyActivityName(t *testing.T) {
	tracker := &stubTracker{}
	handler := NewPresenceHandler(tracker, log.New(testWriter{t}, "", 0))

	msg := presenceMessage(t, `{"user_id":42,"activity":{"name":"","started_at":1000}}`)
	require.NoError(t, handler.Handle(context.Background(), msg))
	require.Empty(t, tracker.signals)
}

func TestPresenceHandlerSkipsUnknownEventType(t *testing.T) {
	tracker := &stubTracker{}
	handler := NewPresenceHandler(tracker, log.New(testWriter{t}, "", 0))

	msg := presenceMessage(t, `{"user_id":42}`)
	msg.EventType = "presence.deleted"
	require.NoError(t, handler.Handle(context.Background(), msg))
	require.Empty(t, tracker.signals)
}

func TestPresenceHandlerPropagatesTrackerErrors(t *testing.T) {
	tracker := &stubTracker{err: errors.New("storage down")}
	handler := NewPresenceHandler(tracker, log.New(testWriter{t}, "", 0))

	msg := presenceMessage(t, `{"user_id":42,"activity":null}`)
	err := handler.Handle(context.Background(), msg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "user=42")
}
