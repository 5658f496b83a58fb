// Package notify fans dirty-element notifications out to in-process
// subscribers and, optionally, to remote editors over a PUB socket.
package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TopicDirty is the topic dirty-element events are published on.
const TopicDirty = "dirty"

var (
	ErrHubClosed            = errors.New("notify hub is shut down")
	ErrTransportUnavailable = errors.New("notify transport not compiled in")
	ErrBadFrame             = errors.New("malformed notification frame")
)

// DirtyEvent reports that a telemetry session marked an element for
// refresh.
type DirtyEvent struct {
	SessionID  string    `json:"session_id"`
	Category   string    `json:"category"`
	Name       string    `json:"name"`
	Generation uint64    `json:"generation"`
	At         time.Time `json:"at"`
}

// EncodeFrame renders ev as a wire frame: the topic, a space, then the
// JSON body. Subscribers filter on the topic prefix.
func EncodeFrame(ev DirtyEvent) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode dirty event: %w", err)
	}
	frame := make([]byte, 0, len(TopicDirty)+1+len(body))
	frame = append(frame, TopicDirty...)
	frame = append(frame, ' ')
	return append(frame, body...), nil
}

// DecodeFrame parses a frame produced by EncodeFrame.
func DecodeFrame(frame []byte) (DirtyEvent, error) {
	var ev DirtyEvent
	topic, body, ok := bytes.Cut(frame, []byte{' '})
	if !ok || string(topic) != TopicDirty {
		return ev, ErrBadFrame
	}
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	return ev, nil
}
