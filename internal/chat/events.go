package chat

import "github.com/hyperjump/kotae/internal/models"

// EventType names a stream event.
type EventType string

const (
	EventDelta     EventType = "delta"
	EventCompleted EventType = "completed"
	EventError     EventType = "error"
	EventCancelled EventType = "cancelled"
)

// Event is one item of a chat stream: zero or more deltas followed by
// exactly one terminal event.
type Event struct {
	Type           EventType
	Delta          string
	ConversationID string
	MessageID      string
	Citations      []models.Citation
	Kind           string
	Err            error
}

// Terminal reports whether e ends the stream.
func (e Event) Terminal() bool {
	return e.Type != EventDelta
}

// Payload returns the JSON body sent for the event.
func (e Event) Payload() any {
	switch e.Type {
	case EventDelta:
		return deltaPayload{Delta: e.Delta}
	case EventCompleted:
		citations := e.Citations
		if citations == nil {
			citations = []models.Citation{}
		}
		return completedPayload{ConversationID: e.ConversationID, MessageID: e.MessageID, Citations: citations}
	case EventError:
		msg := ""
		if e.Err != nil {
			msg = e.Err.Error()
		}
		return errorPayload{ConversationID: e.ConversationID, MessageID: e.MessageID, Kind: e.Kind, Error: msg}
	default:
		return cancelledPayload{ConversationID: e.ConversationID, MessageID: e.MessageID}
	}
}

type deltaPayload struct {
	Delta string `json:"delta"`
}

type completedPayload struct {
	ConversationID string            `json:"conversation_id"`
	MessageID      string            `json:"message_id"`
	Citations      []models.Citation `json:"citations"`
}

type errorPayload struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Kind           string `json:"kind"`
	Error          string `json:"error"`
}

type cancelledPayload struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}
