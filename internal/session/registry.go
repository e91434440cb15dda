// Package session owns the participants of every venue room: who is
// admitted, which connection each one is reachable on, and where each one
// stands in the geofence state machine.
//
// The Registry is the single point of serialization. Every mutation runs
// under one mutex, including eviction timer callbacks, which re-check the
// session before acting. Outbound events are handed to Conn.Send, which
// never blocks, so no network I/O happens while the mutex is held.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Tyrowin/geochat/internal/clock"
	"github.com/Tyrowin/geochat/internal/geofence"
	"github.com/Tyrowin/geochat/internal/logger"
	"github.com/Tyrowin/geochat/internal/venue"
)

// DefaultGracePeriod is how long an outside participant has to return.
const DefaultGracePeriod = 10 * time.Second

// Options configures a Registry. Zero values pick production defaults.
type Options struct {
	Clock       clock.Clock
	Logger      *slog.Logger
	GracePeriod time.Duration
	// NewID generates session tokens. Defaults to random UUIDs.
	NewID func() string
}

type session struct {
	id         string
	venue      venue.Venue
	profile    Profile
	seq        uint64
	admittedAt time.Time

	conn      Conn
	status    geofence.Status
	lastFixAt time.Time
	eviction  *eviction
}

type eviction struct {
	timer    *clock.Timer
	deadline time.Time
}

// Snapshot is a copy of a session's state at one instant.
type Snapshot struct {
	ID              string
	Venue           venue.Venue
	Profile         Profile
	State           geofence.State
	OutsideVotes    int
	LastFixAt       time.Time
	AdmittedAt      time.Time
	Bound           bool
	EvictionPending bool
}

// Member is a roster entry for a bound session.
type Member struct {
	ID string `json:"sessionId"`
	PublicProfile
	State     string `json:"state"`
	LastFixAt int64  `json:"lastGpsAt,omitempty"`
}

// Departure describes a session that was unbound.
type Departure struct {
	ID          string
	VenueID     string
	DisplayName string
}

// Registry is the authoritative table of sessions.
type Registry struct {
	dir   venue.Directory
	clock clock.Clock
	log   *slog.Logger
	grace time.Duration
	newID func() string

	mu       sync.Mutex
	sessions map[string]*session
	rooms    map[string]map[string]*session
	nextSeq  uint64
}

// NewRegistry returns an empty registry resolving venues through dir.
func NewRegistry(dir venue.Directory, opts Options) *Registry {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Registry{
		dir:      dir,
		clock:    opts.Clock,
		log:      logger.OrDefault(opts.Logger),
		grace:    opts.GracePeriod,
		newID:    opts.NewID,
		sessions: make(map[string]*session),
		rooms:    make(map[string]map[string]*session),
	}
}

// GracePeriod returns the eviction grace period.
func (r *Registry) GracePeriod() time.Duration { return r.grace }

// Admit creates a session for profile in venueID and returns its token.
func (r *Registry) Admit(ctx context.Context, venueID string, profile Profile) (string, error) {
	v, err := r.dir.Resolve(ctx, venueID)
	if err != nil {
		if errors.Is(err, venue.ErrNotFound) {
			return "", ErrInvalidVenue
		}
		return "", fmt.Errorf("resolve venue: %w", err)
	}
	profile, err = profile.Normalize()
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	for _, taken := r.sessions[id]; taken; _, taken = r.sessions[id] {
		id = r.newID()
	}
	r.nextSeq++
	s := &session{
		id:         id,
		venue:      v,
		profile:    profile,
		seq:        r.nextSeq,
		admittedAt: r.clock.Now(),
	}
	r.sessions[id] = s
	room := r.rooms[v.ID]
	if room == nil {
		room = make(map[string]*session)
		r.rooms[v.ID] = room
	}
	room[id] = s

	r.log.Info("session admitted", logger.SessionID(id), logger.VenueID(v.ID), slog.Int("sessions", len(r.sessions)))
	return id, nil
}

// Bind attaches conn to the session, sends it a welcome and announces the
// join to the room. A session rebound to a new connection closes the old
// one without a leave announcement.
func (r *Registry) Bind(sessionID string, conn Conn) (Snapshot, error) {
	if conn == nil {
		return Snapshot{}, fmt.Errorf("bind %s: nil connection", sessionID)
	}

	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return Snapshot{}, ErrUnknownSession
	}

	previous := s.conn
	s.conn = conn
	conn.Send(Event{Type: EventWelcome, Data: Welcome{
		SessionID:     s.id,
		PublicProfile: s.profile.Public(),
		Place:         VenueSummary{ID: s.venue.ID, Name: s.venue.Name, Radius: s.venue.Radius},
	}})
	if previous == nil {
		r.broadcastLocked(s.venue.ID, Event{Type: EventPresence, Data: Presence{
			Type:          PresenceJoin,
			ID:            s.id,
			PublicProfile: s.profile.Public(),
		}})
	}
	snap := s.snapshot()
	r.mu.Unlock()

	if previous != nil && previous != conn {
		previous.Close()
		r.log.Info("session rebound to a new connection", logger.SessionID(sessionID))
	} else {
		r.log.Info("session bound", logger.SessionID(sessionID), logger.VenueID(snap.Venue.ID))
	}
	return snap, nil
}

// Unbind removes the session, cancelling any pending eviction, and tells
// the room, the leaving connection included. When conn is non-nil the call
// is a no-op unless conn is the session's current connection, so a replaced
// connection closing late cannot end its successor's session.
func (r *Registry) Unbind(sessionID string, conn Conn) (Departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok || (conn != nil && s.conn != conn) {
		return Departure{}, false
	}

	if s.conn != nil {
		r.broadcastLocked(s.venue.ID, leaveEvent(s))
	}
	r.removeLocked(s)

	r.log.Info("session unbound", logger.SessionID(sessionID), logger.VenueID(s.venue.ID), slog.Int("sessions", len(r.sessions)))
	return Departure{ID: s.id, VenueID: s.venue.ID, DisplayName: s.profile.DisplayName}, true
}

// Lookup returns a snapshot of the session, if it exists.
func (r *Registry) Lookup(sessionID string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return Snapshot{}, false
	}
	return s.snapshot(), true
}

// ListByVenue returns the bound sessions of venueID in admission order.
func (r *Registry) ListByVenue(venueID string) []Member {
	r.mu.Lock()
	defer r.mu.Unlock()

	bound := r.boundLocked(venueID)
	members := make([]Member, 0, len(bound))
	for _, s := range bound {
		m := Member{ID: s.id, PublicProfile: s.profile.Public(), State: s.status.State.String()}
		if !s.lastFixAt.IsZero() {
			m.LastFixAt = s.lastFixAt.UnixMilli()
		}
		members = append(members, m)
	}
	return members
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// PruneUnbound removes sessions that were admitted more than maxAge ago
// and never bound. It returns how many were removed.
func (r *Registry) PruneUnbound(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.clock.Now().Add(-maxAge)
	pruned := 0
	for _, s := range r.sessions {
		if s.conn == nil && s.admittedAt.Before(cutoff) {
			r.removeLocked(s)
			pruned++
		}
	}
	if pruned > 0 {
		r.log.Info("pruned unbound sessions", slog.Int("count", pruned), slog.Int("sessions", len(r.sessions)))
	}
	return pruned
}

// RunJanitor calls PruneUnbound every interval until ctx is done.
func (r *Registry) RunJanitor(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 || maxAge <= 0 {
		return
	}
	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.PruneUnbound(maxAge)
		}
	}
}

// Close cancels every pending eviction and drops all sessions without
// announcements. Connections are left to the gateway.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		r.removeLocked(s)
	}
}

func (r *Registry) removeLocked(s *session) {
	r.cancelEvictionLocked(s)
	delete(r.sessions, s.id)
	if room := r.rooms[s.venue.ID]; room != nil {
		delete(room, s.id)
		if len(room) == 0 {
			delete(r.rooms, s.venue.ID)
		}
	}
	s.conn = nil
}

// boundLocked returns the venue's bound sessions ordered by admission.
func (r *Registry) boundLocked(venueID string) []*session {
	room := r.rooms[venueID]
	bound := make([]*session, 0, len(room))
	for _, s := range room {
		if s.conn != nil {
			bound = append(bound, s)
		}
	}
	sort.Slice(bound, func(i, j int) bool { return bound[i].seq < bound[j].seq })
	return bound
}

func (s *session) snapshot() Snapshot {
	return Snapshot{
		ID:              s.id,
		Venue:           s.venue,
		Profile:         s.profile,
		State:           s.status.State,
		OutsideVotes:    s.status.OutsideVotes,
		LastFixAt:       s.lastFixAt,
		AdmittedAt:      s.admittedAt,
		Bound:           s.conn != nil,
		EvictionPending: s.eviction != nil,
	}
}

func leaveEvent(s *session) Event {
	return Event{Type: EventPresence, Data: Presence{
		Type:          PresenceLeave,
		ID:            s.id,
		PublicProfile: s.profile.Public(),
	}}
}
