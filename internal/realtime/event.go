package realtime

import (
	"encoding/json"
	"fmt"
)

// event is the wire format of a push frame from the mirror backend.
// Optional fields that must distinguish "absent" from "empty" are pointers.
type event struct {
	Type      string  `json:"type"`
	ChannelID int64   `json:"channel_id"`
	MessageID int64   `json:"message_id"`
	Text      *string `json:"text,omitempty"`
	MediaURL  string  `json:"media_url,omitempty"`
	MediaType string  `json:"media_type,omitempty"`
	EditDate  *string `json:"edit_date,omitempty"`
	Views     *int    `json:"views,omitempty"`
	Date      string  `json:"date,omitempty"`
}

// controlTypes are protocol-level frames carrying no post data. They are
// recognized and ignored before dedup and dispatch.
var controlTypes = map[string]struct{}{
	"ping":           {},
	"pong":           {},
	"welcome":        {},
	"heartbeat":      {},
	"buffering":      {},
	"flush_start":    {},
	"flush_complete": {},
}

func parseEvent(data []byte) (*event, error) {
	var ev event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return &ev, nil
}

func (e *event) control() bool {
	_, ok := controlTypes[e.Type]
	return ok
}
