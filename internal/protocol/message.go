package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Session control verbs used on the rendezvous link.
const (
	ControlJoinSession      = "joinSession"
	ControlKeepAlive        = "keep-alive"
	ControlSessionJoined    = "sessionJoined"
	ControlSessionDestroyed = "sessionDestroyed"
	ControlJoinError        = "joinError"
)

// RTCConfigVariable is the host-provided variable carrying the peer
// connection configuration.
const RTCConfigVariable = "RTC_CONFIG"

// ErrUnknownMessage is returned for rendezvous messages outside the known set.
var ErrUnknownMessage = errors.New("unknown rendezvous message")

// Message is one envelope exchanged with the rendezvous service.
type Message interface {
	isMessage()
}

// Client → server.

type JoinSession struct {
	SessionType string
	SessionID   string
	ClientNick  string
	WSOnly      bool
}

type KeepAlive struct{}

type ClientSDP struct {
	SDP webrtc.SessionDescription
}

// Both directions: an update relayed through the rendezvous service.

type RelayUpdate struct {
	Update string
}

// Server → client.

type SessionJoined struct {
	SessionID  string
	ClientNick string
	WSOnly     bool
	// RTCConfig is the raw JSON text of the host's peer configuration, or
	// empty when none was provided.
	RTCConfig string
}

type SessionDestroyed struct{}

type JoinError struct {
	ErrorMessage string
}

type ServerSDP struct {
	SDP webrtc.SessionDescription
}

func (JoinSession) isMessage()      {}
func (KeepAlive) isMessage()        {}
func (ClientSDP) isMessage()        {}
func (RelayUpdate) isMessage()      {}
func (SessionJoined) isMessage()    {}
func (SessionDestroyed) isMessage() {}
func (JoinError) isMessage()        {}
func (ServerSDP) isMessage()        {}

type wireJoin struct {
	SessionControl string   `json:"sessionControl"`
	SessionType    string   `json:"sessionType"`
	SessionID      string   `json:"sessionID"`
	ClientNick     string   `json:"clientNick"`
	WSOnly         bool     `json:"wsOnly"`
	QueryVariables []string `json:"queryVariables"`
}

type wireControl struct {
	SessionControl string `json:"sessionControl"`
}

type wireClientSDP struct {
	ClientSDP webrtc.SessionDescription `json:"clientSDP"`
}

type wireRelay struct {
	WMSXUpdate string `json:"wmsxUpdate"`
}

// wireInbound is the union of every field the server may send.
type wireInbound struct {
	SessionControl   string                     `json:"sessionControl"`
	SessionID        string                     `json:"sessionID"`
	ClientNick       string                     `json:"clientNick"`
	WSOnly           bool                       `json:"wsOnly"`
	ErrorMessage     string                     `json:"errorMessage"`
	QueriedVariables map[string]json.RawMessage `json:"queriedVariables"`
	ServerSDP        *webrtc.SessionDescription `json:"serverSDP"`
	WMSXUpdate       json.RawMessage            `json:"wmsxUpdate"`
}

// MarshalMessage encodes a client-originated envelope.
func MarshalMessage(m Message) ([]byte, error) {
	var v any
	switch m := m.(type) {
	case JoinSession:
		v = wireJoin{
			SessionControl: ControlJoinSession,
			SessionType:    m.SessionType,
			SessionID:      m.SessionID,
			ClientNick:     m.ClientNick,
			WSOnly:         m.WSOnly,
			QueryVariables: []string{RTCConfigVariable},
		}
	case KeepAlive:
		v = wireControl{SessionControl: ControlKeepAlive}
	case ClientSDP:
		v = wireClientSDP{ClientSDP: m.SDP}
	case RelayUpdate:
		v = wireRelay{WMSXUpdate: m.Update}
	default:
		return nil, fmt.Errorf("marshal message: %w: %T", ErrUnknownMessage, m)
	}
	return json.Marshal(v)
}

// UnmarshalMessage decodes a server-originated envelope.
func UnmarshalMessage(data []byte) (Message, error) {
	var w wireInbound
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}

	if isPresent(w.WMSXUpdate) {
		update, err := unwrapText(w.WMSXUpdate)
		if err != nil {
			return nil, fmt.Errorf("unmarshal wmsxUpdate: %w", err)
		}
		return RelayUpdate{Update: update}, nil
	}

	switch w.SessionControl {
	case "":
	case ControlSessionJoined:
		joined := SessionJoined{SessionID: w.SessionID, ClientNick: w.ClientNick, WSOnly: w.WSOnly}
		if raw, ok := w.QueriedVariables[RTCConfigVariable]; ok && isPresent(raw) {
			cfg, err := unwrapText(raw)
			if err != nil {
				return nil, fmt.Errorf("unmarshal %s: %w", RTCConfigVariable, err)
			}
			joined.RTCConfig = cfg
		}
		return joined, nil
	case ControlSessionDestroyed:
		return SessionDestroyed{}, nil
	case ControlJoinError:
		return JoinError{ErrorMessage: w.ErrorMessage}, nil
	default:
		return nil, fmt.Errorf("%w: sessionControl %q", ErrUnknownMessage, w.SessionControl)
	}

	if w.ServerSDP != nil {
		return ServerSDP{SDP: *w.ServerSDP}, nil
	}
	return nil, ErrUnknownMessage
}

// unwrapText accepts a value sent either as a JSON string holding serialized
// JSON or as an inline JSON value, and returns the serialized text.
func unwrapText(raw json.RawMessage) (string, error) {
	if raw[0] != '"' {
		return string(raw), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}
