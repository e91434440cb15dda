package session

import (
	"log/slog"
	"math"

	"github.com/Tyrowin/geochat/internal/geofence"
	"github.com/Tyrowin/geochat/internal/logger"
)

// ApplyFix evaluates a location fix for the session and drives its
// geofence state machine. The owner's connection receives a geofence
// status for every accepted fix and a diagnostic for ignored ones.
func (r *Registry) ApplyFix(sessionID string, fix geofence.Fix) (geofence.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return geofence.Result{}, ErrUnknownSession
	}

	result := geofence.Evaluate(s.venue.Center(), s.venue.Radius, fix)
	if result.Classification == geofence.Ignored {
		r.sendLocked(s, Event{Type: EventFixIgnored, Data: FixIgnored{
			State:          "ignored",
			Distance:       result.DistanceMeters,
			Accuracy:       result.AccuracyMeters,
			Radius:         s.venue.Radius,
			EnterThreshold: result.EnterThreshold,
			LeaveThreshold: result.LeaveThreshold,
		}})
		r.log.Debug("fix ignored", logger.SessionID(s.id), slog.Float64("accuracy", result.AccuracyMeters))
		return result, nil
	}

	now := r.clock.Now()
	s.lastFixAt = now

	tr := geofence.Step(s.status, result.Classification)
	s.status = tr.Next
	if tr.CancelGrace {
		r.cancelEvictionLocked(s)
	}
	if tr.StartGrace && s.eviction == nil {
		r.armEvictionLocked(s)
	}

	status := GeofenceStatus{
		State:    tr.Report,
		Distance: int(math.Round(result.DistanceMeters)),
		Accuracy: int(math.Round(result.AccuracyMeters)),
		Radius:   s.venue.Radius,
		OutCount: s.status.OutsideVotes,
	}
	if tr.Report == geofence.ReportOutside && s.eviction != nil {
		remaining := int(math.Ceil(s.eviction.deadline.Sub(now).Seconds()))
		if tr.EnteredOutside {
			remaining = int(math.Round(r.grace.Seconds()))
		}
		status.CountdownSec = &remaining
	}
	r.sendLocked(s, Event{Type: EventGeofence, Data: status})

	if tr.EnteredOutside {
		r.log.Info("participant outside venue, grace period started",
			logger.SessionID(s.id), logger.VenueID(s.venue.ID),
			slog.Float64("distance", result.DistanceMeters), slog.Duration("grace", r.grace))
	}
	return result, nil
}

func (r *Registry) armEvictionLocked(s *session) {
	ev := &eviction{deadline: r.clock.Now().Add(r.grace)}
	id := s.id
	ev.timer = r.clock.AfterFunc(r.grace, func() { r.evict(id, ev) })
	s.eviction = ev
}

func (r *Registry) cancelEvictionLocked(s *session) {
	if s.eviction == nil {
		return
	}
	s.eviction.timer.Stop()
	s.eviction = nil
}

// evict runs when an eviction timer fires. The timer may have lost a race
// with a return inside, a disconnect or a newer timer; each of those makes
// this a no-op.
func (r *Registry) evict(sessionID string, ev *eviction) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok || s.eviction != ev || s.status.State != geofence.StateOutsidePending {
		r.mu.Unlock()
		r.log.Debug("stale eviction timer ignored", logger.SessionID(sessionID))
		return
	}

	conn := s.conn
	r.sendLocked(s, Event{Type: EventKicked, Data: Kicked{Reason: KickReasonLeftArea}})
	s.eviction = nil
	r.removeLocked(s)
	s.status.State = geofence.StateEvicted
	if conn != nil {
		r.broadcastLocked(s.venue.ID, leaveEvent(s))
	}
	r.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	r.log.Info("session evicted", logger.SessionID(sessionID), logger.VenueID(s.venue.ID))
}
