package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// Event is one server-sent event.
type Event struct {
	Name string
	Data string
}

const maxEventLine = 1 << 20

// ReadEvents parses a text/event-stream body and calls fn for every event.
// Comment lines such as heartbeats are skipped. A non-nil error from fn stops
// reading and is returned.
func ReadEvents(r io.Reader, fn func(Event) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	var ev Event
	var data []string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if ev.Name != "" || len(data) > 0 {
				if ev.Name == "" {
					ev.Name = "message"
				}
				ev.Data = strings.Join(data, "\n")
				if err := fn(ev); err != nil {
					return err
				}
			}
			ev, data = Event{}, nil
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			ev.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return sc.Err()
}

// ChatResult is the outcome of a streamed chat turn.
type ChatResult struct {
	ConversationID string            `json:"conversation_id"`
	MessageID      string            `json:"message_id"`
	Citations      []models.Citation `json:"citations"`
	Cancelled      bool              `json:"cancelled,omitempty"`
}

// StreamError is a terminal error event.
type StreamError struct {
	Kind    string
	Message string
	Result  ChatResult
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

var errStreamEnded = errors.New("stream ended without a terminal event")

// CopyChat writes every delta of a chat stream to out and returns the
// terminal outcome. An error event is returned as *StreamError.
func CopyChat(r io.Reader, out io.Writer) (*ChatResult, error) {
	var result *ChatResult
	errTerminal := errors.New("terminal")
	err := ReadEvents(r, func(ev Event) error {
		switch ev.Name {
		case "delta":
			var d struct {
				Delta string `json:"delta"`
			}
			if err := json.Unmarshal([]byte(ev.Data), &d); err != nil {
				return fmt.Errorf("decode delta: %w", err)
			}
			_, err := io.WriteString(out, d.Delta)
			return err
		case "completed", "cancelled":
			var res ChatResult
			if err := json.Unmarshal([]byte(ev.Data), &res); err != nil {
				return fmt.Errorf("decode %s: %w", ev.Name, err)
			}
			res.Cancelled = ev.Name == "cancelled"
			result = &res
			return errTerminal
		case "error":
			var e struct {
				ChatResult
				Kind  string `json:"kind"`
				Error string `json:"error"`
			}
			if err := json.Unmarshal([]byte(ev.Data), &e); err != nil {
				return fmt.Errorf("decode error event: %w", err)
			}
			return &StreamError{Kind: e.Kind, Message: e.Error, Result: e.ChatResult}
		}
		return nil
	})
	switch {
	case errors.Is(err, errTerminal):
		return result, nil
	case err != nil:
		return nil, err
	default:
		return nil, errStreamEnded
	}
}
