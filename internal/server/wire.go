// Package server defines the JSON envelope exchanged over the WebSocket and
// utility helpers that are reused across client and hub logic.
package server

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/Tyrowin/geochat/internal/geofence"
	"github.com/Tyrowin/geochat/internal/session"
)

// Inbound event types.
const (
	inboundAuth    = "auth"
	inboundFix     = "gps"
	inboundMessage = "message"
	inboundDirect  = "dm_send"
	inboundLeave   = "leave"
)

var errMalformedFix = errors.New("fix needs finite lat and lng")

// envelope is the frame format in both directions.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Type session.EventType `json:"type"`
	Data any               `json:"data"`
}

type authPayload struct {
	SessionID string `json:"sessionId"`
}

type fixPayload struct {
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
	Accuracy float64  `json:"accuracy"`
}

type textPayload struct {
	Text string `json:"text"`
}

type directPayload struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

func decodeEnvelope(raw []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, err
	}
	if env.Type == "" {
		return envelope{}, errors.New("missing event type")
	}
	return env, nil
}

// decodeData unmarshals the payload of env into v. An absent payload leaves
// v at its zero value.
func decodeData(env envelope, v any) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	return json.Unmarshal(env.Data, v)
}

func (p fixPayload) fix() (geofence.Fix, error) {
	if p.Lat == nil || p.Lng == nil {
		return geofence.Fix{}, errMalformedFix
	}
	pt := geofence.Point{Lat: *p.Lat, Lng: *p.Lng}
	if !pt.Valid() {
		return geofence.Fix{}, errMalformedFix
	}
	return geofence.Fix{Point: pt, AccuracyMeters: p.Accuracy}, nil
}

func encodeEvent(ev session.Event) ([]byte, error) {
	return json.Marshal(outbound{Type: ev.Type, Data: ev.Data})
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
