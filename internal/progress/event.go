package progress

import (
	"encoding/json"
	"time"
)

// EventType classifies progress events pushed to subscribers.
type EventType string

const (
	TypeConnected EventType = "connected"
	TypeStarted   EventType = "started"
	TypeProgress  EventType = "progress"
	TypeCompleted EventType = "completed"
	TypeFailed    EventType = "failed"
	TypeCancelled EventType = "cancelled"
	TypeError     EventType = "error"
	TypeRetry     EventType = "retry"
	TypePong      EventType = "pong"
)

// Event is one status transition or progress sample of a download.
type Event struct {
	Type              EventType `json:"type"`
	DownloadID        string    `json:"downloadId,omitempty"`
	Title             string    `json:"title,omitempty"`
	SourceURL         string    `json:"sourceUrl,omitempty"`
	Status            string    `json:"status,omitempty"`
	CurrentChapter    float64   `json:"currentChapter,omitempty"`
	TotalChapters     int       `json:"totalChapters,omitempty"`
	CompletedChapters int       `json:"completedChapters,omitempty"`
	FilesDownloaded   int       `json:"filesDownloaded,omitempty"`
	Percentage        int       `json:"percentage,omitempty"`
	RetryAttempt      int       `json:"retryAttempt,omitempty"`
	ErrorMessage      string    `json:"errorMessage,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// Publisher is the narrow surface the executor publishes through; it breaks
// the executor/hub cycle.
type Publisher interface {
	Publish(event Event)
}

// Command is an inbound request from a subscriber.
type Command struct {
	Action     string `json:"action"`
	DownloadID string `json:"downloadId,omitempty"`
}

// inbound actions
const (
	ActionSubscribe = "subscribe"
	ActionPing      = "ping"
)

// ToJSON marshals the event for the wire.
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// CommandFromJSON parses an inbound subscriber message.
func CommandFromJSON(data []byte) (*Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, err
	}
	return &cmd, nil
}
