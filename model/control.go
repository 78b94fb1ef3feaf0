package model

import (
	"bytes"
	"encoding/json"
)

// ControlStop is the only control type the relay acts on.
const ControlStop = "stop"

// Control is an inbound JSON frame from the capture client.
type Control struct {
	Type string `json:"type"`
}

func (c Control) IsStop() bool {
	return c.Type == ControlStop
}

// ParseControl inspects an inbound frame. ok is false when the payload is not
// a JSON object, in which case it is audio. Failing to parse is expected.
func ParseControl(msg []byte) (Control, bool) {
	trimmed := bytes.TrimSpace(msg)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Control{}, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Control{}, false
	}
	var ctrl Control
	if raw, found := fields["type"]; found {
		// a non-string type is still JSON, just not a control we know
		_ = json.Unmarshal(raw, &ctrl.Type)
	}
	return ctrl, true
}
