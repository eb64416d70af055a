package browser

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/ysmood/gson"
)

const (
	messageStarted = "started"
	messagePaused  = "paused"
	messageResumed = "resumed"
	messageData    = "data"
	messageStopped = "stopped"
	messageEnded   = "ended"
	messageError   = "error"
)

// message is an event sent by the recorder page
type message struct {
	Type   string `json:"type"`
	Handle string `json:"handle,omitempty"`
	Track  string `json:"track,omitempty"`
	Chunk  string `json:"chunk,omitempty"`
	Error  string `json:"error,omitempty"`
}

func decodeMessage(payload gson.JSON) (message, error) {
	var msg message
	if err := json.Unmarshal([]byte(payload.JSON("", "")), &msg); err != nil {
		return msg, fmt.Errorf("failed to decode message: %w", err)
	}

	switch msg.Type {
	case messageStarted, messagePaused, messageResumed, messageData, messageStopped, messageError:
		if msg.Handle == "" {
			return msg, fmt.Errorf("%s message without handle", msg.Type)
		}
	case messageEnded:
		if msg.Track == "" {
			return msg, fmt.Errorf("ended message without track")
		}
	default:
		return msg, fmt.Errorf("unknown message type: %q", msg.Type)
	}
	return msg, nil
}

// chunkBytes decodes the base64 data of a data message
func (m message) chunkBytes() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(m.Chunk)
	if err != nil {
		return nil, fmt.Errorf("failed to decode chunk: %w", err)
	}
	return data, nil
}
