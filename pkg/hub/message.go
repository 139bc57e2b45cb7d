// Package hub provides a thread-safe websocket broadcast hub for session
// state and error notifications, using a channel-based fan-out.
package hub

import "encoding/json"

// Message is one encoded status update. Updates always go out as websocket
// text frames.
type Message struct {
	// Topic names the update (the protocol message type) for logs.
	Topic string
	Data  []byte
}

// Encode marshals v into a Message tagged with topic.
func Encode(topic string, v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return Message{Topic: topic, Data: data}, nil
}
