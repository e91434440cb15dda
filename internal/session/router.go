package session

import (
	"github.com/oklog/ulid/v2"

	"github.com/Tyrowin/geochat/internal/logger"
)

// Broadcast delivers ev to every bound session of venueID.
func (r *Registry) Broadcast(venueID string, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastLocked(venueID, ev)
}

// SendChat broadcasts text from the sender to its room. Text that is
// empty after trimming is dropped without error.
func (r *Registry) SendChat(senderID, text string) error {
	cleaned, ok := cleanText(text)
	if !ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, found := r.sessions[senderID]
	if !found {
		return ErrUnknownSession
	}
	r.broadcastLocked(s.venue.ID, Event{Type: EventMessage, Data: ChatMessage{
		ID:            ulid.Make().String(),
		From:          s.id,
		PublicProfile: s.profile.Public(),
		Text:          cleaned,
		At:            r.clock.Now().UnixMilli(),
	}})
	return nil
}

// SendDirect delivers text privately between sender and recipient. Each
// side gets one copy tagged with the other party's id. Sessions in
// different venues never exchange messages; ErrCrossVenue is for logging
// only and must not reach the sender.
func (r *Registry) SendDirect(senderID, recipientID, text string) error {
	cleaned, ok := cleanText(text)
	if !ok || senderID == recipientID {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	from, okFrom := r.sessions[senderID]
	to, okTo := r.sessions[recipientID]
	if !okFrom || !okTo {
		return ErrUnknownSession
	}
	if from.venue.ID != to.venue.ID {
		return ErrCrossVenue
	}

	msg := DirectMessage{
		ID:            ulid.Make().String(),
		From:          from.id,
		Peer:          to.id,
		PublicProfile: from.profile.Public(),
		Text:          cleaned,
		At:            r.clock.Now().UnixMilli(),
	}
	r.sendLocked(from, Event{Type: EventDirect, Data: msg})
	msg.Peer = from.id
	r.sendLocked(to, Event{Type: EventDirect, Data: msg})
	return nil
}

func (r *Registry) broadcastLocked(venueID string, ev Event) {
	for _, s := range r.boundLocked(venueID) {
		r.sendLocked(s, ev)
	}
}

func (r *Registry) sendLocked(s *session, ev Event) {
	if s.conn == nil {
		return
	}
	if !s.conn.Send(ev) {
		r.log.Debug("event dropped for slow connection", logger.SessionID(s.id), logger.Event(string(ev.Type)))
	}
}
