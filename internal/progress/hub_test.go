package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(s *Subscriber) []Event {
	var events []Event
	for {
		select {
		case e, ok := <-s.Events():
			if !ok {
				return events
			}
			events = append(events, e)
		case <-time.After(50 * time.Millisecond):
			return events
		}
	}
}

func TestHub(t *testing.T) {
	t.Run("ConnectedEventOnSubscribe", func(t *testing.T) {
		hub := NewHub()
		s := hub.Subscribe()
		defer hub.Unsubscribe(s)

		events := drain(s)
		require.Len(t, events, 1)
		assert.Equal(t, TypeConnected, events[0].Type)
		assert.False(t, events[0].Timestamp.IsZero())
	})

	t.Run("FanOutToAllSubscribers", func(t *testing.T) {
		hub := NewHub()
		a := hub.Subscribe()
		b := hub.Subscribe()

		hub.Publish(Event{Type: TypeStarted, DownloadID: "d1"})

		for _, s := range []*Subscriber{a, b} {
			events := drain(s)
			require.Len(t, events, 2)
			assert.Equal(t, TypeStarted, events[1].Type)
		}
	})

	t.Run("DeliveryOrderMatchesPublicationOrder", func(t *testing.T) {
		hub := NewHub()
		s := hub.Subscribe()

		hub.Publish(Event{Type: TypeStarted, DownloadID: "d1"})
		hub.Publish(Event{Type: TypeProgress, DownloadID: "d1", Percentage: 50})
		hub.Publish(Event{Type: TypeCompleted, DownloadID: "d1"})

		events := drain(s)
		require.Len(t, events, 4)
		assert.Equal(t, TypeConnected, events[0].Type)
		assert.Equal(t, TypeStarted, events[1].Type)
		assert.Equal(t, TypeProgress, events[2].Type)
		assert.Equal(t, TypeCompleted, events[3].Type)
	})

	t.Run("FilterSuppressesOtherDownloads", func(t *testing.T) {
		hub := NewHub()
		s := hub.Subscribe()
		s.SetFilter("mine")

		hub.Publish(Event{Type: TypeProgress, DownloadID: "other"})
		hub.Publish(Event{Type: TypeProgress, DownloadID: "mine"})
		hub.Publish(Event{Type: TypeRetry}) // no id: passes any filter

		events := drain(s)
		require.Len(t, events, 3)
		assert.Equal(t, TypeConnected, events[0].Type)
		assert.Equal(t, "mine", events[1].DownloadID)
		assert.Equal(t, TypeRetry, events[2].Type)
	})

	t.Run("SlowSubscriberIsDropped", func(t *testing.T) {
		hub := NewHub()
		s := hub.Subscribe()

		// overflow the buffer without consuming
		for i := 0; i < subscriberBuffer+8; i++ {
			hub.Publish(Event{Type: TypeProgress, DownloadID: "d1", Percentage: i})
		}

		assert.Equal(t, 0, hub.SubscriberCount())
		// channel is closed after the buffered events
		events := drain(s)
		assert.NotEmpty(t, events)
	})

	t.Run("PongBypassesDroppedSubscriber", func(t *testing.T) {
		hub := NewHub()
		s := hub.Subscribe()
		hub.Unsubscribe(s)

		// must not panic on the closed channel
		s.Reply(Event{Type: TypePong})
	})

	t.Run("UnsubscribeTwiceIsSafe", func(t *testing.T) {
		hub := NewHub()
		s := hub.Subscribe()
		hub.Unsubscribe(s)
		hub.Unsubscribe(s)
		assert.Equal(t, 0, hub.SubscriberCount())
	})
}
