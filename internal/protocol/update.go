// Package protocol defines the NetPlay wire formats: per-tick NetUpdates, the
// rendezvous envelopes, and the DataChannel fragment framing.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// PortReleased is the controller port value with every input released.
const PortReleased uint8 = 0x7f

// ErrMalformedUpdate is returned when an inbound NetUpdate cannot be decoded.
var ErrMalformedUpdate = errors.New("malformed net update")

// PortValues holds the values of both controller ports.
type PortValues [2]uint8

// ReleasedPorts returns both ports in the all-released state.
func ReleasedPorts() PortValues {
	return PortValues{PortReleased, PortReleased}
}

// ControlChange is a machine control transition packed as (control<<4)|pressed.
type ControlChange uint32

// NewControlChange packs a machine control transition.
func NewControlChange(control int, pressed bool) ControlChange {
	return ControlChange(control<<4 | bit(pressed))
}

func (c ControlChange) Control() int  { return int(c >> 4) }
func (c ControlChange) Pressed() bool { return c&0x01 != 0 }

// KeyChange is a keyboard matrix transition packed as
// (line<<8)|(column<<4)|pressed.
type KeyChange uint32

// NewKeyChange packs a keyboard matrix transition.
func NewKeyChange(line, column int, pressed bool) KeyChange {
	return KeyChange(line<<8 | (column&0x0f)<<4 | bit(pressed))
}

func (k KeyChange) Line() int     { return int(k >> 8) }
func (k KeyChange) Column() int   { return int(k&0xf0) >> 4 }
func (k KeyChange) Pressed() bool { return k&0x01 != 0 }

func bit(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Update is one tick's synchronization payload: either a Full snapshot or an
// Incremental delta.
type Update interface {
	isUpdate()
}

// Full replaces the whole local state. The host sends it when a client
// attaches or needs to resynchronize.
type Full struct {
	State    json.RawMessage
	Keyboard json.RawMessage
	Ports    PortValues
}

// Incremental carries the changes of a single tick. Every field is optional;
// an empty Incremental is a valid liveness heartbeat.
type Incremental struct {
	Controls []ControlChange
	Keys     []KeyChange
	Ports    *PortValues
	DiskOps  json.RawMessage
}

func (Full) isUpdate()        {}
func (Incremental) isUpdate() {}

// wireUpdate is the JSON shape shared by both update kinds.
type wireUpdate struct {
	State    json.RawMessage `json:"s,omitempty"`
	Keyboard json.RawMessage `json:"ks,omitempty"`
	Controls []ControlChange `json:"c,omitempty"`
	Keys     []KeyChange     `json:"k,omitempty"`
	Ports    *PortValues     `json:"cp,omitempty"`
	DiskOps  json.RawMessage `json:"dd,omitempty"`
}

// EncodeUpdate serializes an update to its JSON text form.
func EncodeUpdate(u Update) (string, error) {
	var w wireUpdate
	switch u := u.(type) {
	case Full:
		ports := u.Ports
		w = wireUpdate{State: u.State, Keyboard: u.Keyboard, Ports: &ports}
	case Incremental:
		w = wireUpdate{Controls: u.Controls, Keys: u.Keys, Ports: u.Ports, DiskOps: u.DiskOps}
	default:
		return "", fmt.Errorf("encode update: unsupported type %T", u)
	}

	data, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("encode update: %w", err)
	}
	return string(data), nil
}

// DecodeUpdate parses the JSON text form of an update. The presence of a
// simulation snapshot ("s") selects the Full shape.
func DecodeUpdate(data []byte) (Update, error) {
	var w wireUpdate
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedUpdate, err)
	}

	if isPresent(w.State) {
		full := Full{State: w.State, Keyboard: w.Keyboard, Ports: ReleasedPorts()}
		if w.Ports != nil {
			full.Ports = *w.Ports
		}
		return full, nil
	}

	inc := Incremental{Controls: w.Controls, Keys: w.Keys, Ports: w.Ports}
	if isPresent(w.DiskOps) {
		inc.DiskOps = w.DiskOps
	}
	return inc, nil
}

// isPresent reports whether an optional raw field carries a value.
func isPresent(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}
