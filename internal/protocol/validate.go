package protocol

import (
	"encoding/json"
	"fmt"
)

// validClientTypes is the set of allowed client→server message types.
var validClientTypes = map[string]bool{
	TypeSessionLaunch: true,
	TypeSessionInput:  true,
	TypeSessionKill:   true,
}

// ValidateClientMessage validates a raw JSON message from a mirror client.
// Returns the parsed Message and any validation error.
func ValidateClientMessage(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if msg.Type == "" {
		return nil, fmt.Errorf("missing 'type' field")
	}

	if !validClientTypes[msg.Type] {
		return nil, fmt.Errorf("unknown message type: %s", msg.Type)
	}

	if msg.Payload == nil {
		return nil, fmt.Errorf("missing 'payload' field")
	}

	// Validate required payload fields per type. Command strings are
	// opaque: only presence is checked, never content.
	switch msg.Type {
	case TypeSessionLaunch:
		var p SessionLaunchPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
		}
		if p.Command == "" {
			return nil, fmt.Errorf("missing required field 'command' in %s payload", msg.Type)
		}

	case TypeSessionInput:
		var p SessionInputPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
		}
		if p.SessionID == "" {
			return nil, fmt.Errorf("missing required field 'sessionId' in %s payload", msg.Type)
		}

	case TypeSessionKill:
		var p SessionKillPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
		}
		if p.SessionID == "" {
			return nil, fmt.Errorf("missing required field 'sessionId' in %s payload", msg.Type)
		}
	}

	return &msg, nil
}
