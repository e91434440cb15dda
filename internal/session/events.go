package session

import "github.com/Tyrowin/geochat/internal/geofence"

// EventType names an outbound event on the wire.
type EventType string

const (
	EventWelcome    EventType = "welcome"
	EventAuthError  EventType = "auth_error"
	EventPresence   EventType = "presence"
	EventMessage    EventType = "message"
	EventDirect     EventType = "dm_message"
	EventGeofence   EventType = "geofence"
	EventFixIgnored EventType = "geodebug"
	EventKicked     EventType = "kicked"
)

// Event is one outbound notification. Data is one of the payload types
// below and is encoded by the gateway.
type Event struct {
	Type EventType
	Data any
}

// Conn is the registry's view of a live connection. The gateway owns it;
// the registry only records where a session is reachable.
type Conn interface {
	// Send queues ev for delivery. It must not block; it reports false
	// when the event was dropped.
	Send(ev Event) bool
	// Close asks the connection to flush queued events and shut down.
	// It must not block and must be safe to call more than once.
	Close()
}

// VenueSummary is the venue data included in a welcome.
type VenueSummary struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Radius float64 `json:"radius"`
}

// Welcome is sent once after a successful bind.
type Welcome struct {
	SessionID string `json:"sessionId"`
	PublicProfile
	Place VenueSummary `json:"place"`
}

// AuthFailed is sent instead of Welcome when the token is rejected.
type AuthFailed struct {
	Reason string `json:"reason"`
}

// Presence types.
const (
	PresenceJoin  = "join"
	PresenceLeave = "leave"
)

// Presence announces a participant joining or leaving a room.
type Presence struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	PublicProfile
}

// ChatMessage is a room-wide message.
type ChatMessage struct {
	ID   string `json:"id"`
	From string `json:"from"`
	PublicProfile
	Text string `json:"text"`
	At   int64  `json:"at"`
}

// DirectMessage is delivered to both participants of a private thread.
// Peer is always the other party from the receiving connection's view.
type DirectMessage struct {
	ID   string `json:"id"`
	From string `json:"from"`
	Peer string `json:"peer"`
	PublicProfile
	Text string `json:"text"`
	At   int64  `json:"at"`
}

// GeofenceStatus reports the outcome of an accepted fix to its owner.
type GeofenceStatus struct {
	State    geofence.Report `json:"state"`
	Distance int             `json:"distance"`
	Accuracy int             `json:"accuracy"`
	Radius   float64         `json:"radius"`
	OutCount int             `json:"outCount"`
	// CountdownSec is set only while outside.
	CountdownSec *int `json:"countdownSec,omitempty"`
}

// FixIgnored is the diagnostic sent for fixes too inaccurate to use.
type FixIgnored struct {
	State          string  `json:"state"`
	Distance       float64 `json:"distance"`
	Accuracy       float64 `json:"accuracy"`
	Radius         float64 `json:"radius"`
	EnterThreshold float64 `json:"enterThreshold"`
	LeaveThreshold float64 `json:"leaveThreshold"`
}

// Kicked is the terminal event for an evicted session.
type Kicked struct {
	Reason string `json:"reason"`
}

// KickReasonLeftArea is the reason given when the geofence evicts.
const KickReasonLeftArea = "left_area"
