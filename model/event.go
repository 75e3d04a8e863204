package model

import (
	"encoding/json"
	"fmt"
)

type EventType string

const (
	EventChannels EventType = "channels"
	EventMessages EventType = "messages"
	EventError    EventType = "error"
)

// Event is one unit of walk progress. Exactly one payload field set is
// meaningful, selected by Type: Channels for EventChannels, Channel/Message
// for EventMessages, Err for EventError.
type Event struct {
	Type     EventType
	Channels []Channel
	Channel  string
	Message  Message
	Err      error
}

type errorPayload struct {
	Message string `json:"message"`
}

// MarshalJSON renders the NDJSON wire shape for each event type.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventChannels:
		channels := e.Channels
		if channels == nil {
			channels = []Channel{}
		}
		return json.Marshal(struct {
			Type EventType `json:"type"`
			Data []Channel `json:"data"`
		}{e.Type, channels})
	case EventMessages:
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Channel string    `json:"channel"`
			Data    []Message `json:"data"`
		}{e.Type, e.Channel, []Message{e.Message}})
	case EventError:
		message := ""
		if e.Err != nil {
			message = e.Err.Error()
		}
		return json.Marshal(struct {
			Type EventType    `json:"type"`
			Data errorPayload `json:"data"`
		}{e.Type, errorPayload{Message: message}})
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
}
