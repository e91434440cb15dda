package session

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/geochat/internal/clock"
	"github.com/Tyrowin/geochat/internal/geofence"
	"github.com/Tyrowin/geochat/internal/logger"
	"github.com/Tyrowin/geochat/internal/venue"
)

var epoch = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

type staticDirectory map[string]venue.Venue

func (d staticDirectory) Resolve(_ context.Context, id string) (venue.Venue, error) {
	v, ok := d[id]
	if !ok {
		return venue.Venue{}, venue.ErrNotFound
	}
	return v, nil
}

var testVenues = staticDirectory{
	"plaza":  {ID: "plaza", Name: "Plaza", Lat: 0, Lng: 0, Radius: 90},
	"harbor": {ID: "harbor", Name: "Harbor", Lat: 10, Lng: 10, Radius: 90},
}

// fakeConn records events and never blocks.
type fakeConn struct {
	mu     sync.Mutex
	events []Event
	closed int
	full   bool
}

func (c *fakeConn) Send(ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return false
	}
	c.events = append(c.events, ev)
	return true
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
}

func (c *fakeConn) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func (c *fakeConn) ofType(t EventType) []Event {
	var out []Event
	for _, ev := range c.all() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (c *fakeConn) last(t EventType) Event {
	evs := c.ofType(t)
	if len(evs) == 0 {
		return Event{}
	}
	return evs[len(evs)-1]
}

func (c *fakeConn) closedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

func (c *fakeConn) presences(kind string) []Presence {
	var out []Presence
	for _, ev := range c.ofType(EventPresence) {
		if p := ev.Data.(Presence); p.Type == kind {
			out = append(out, p)
		}
	}
	return out
}

func newTestRegistry(t *testing.T) (*Registry, *clock.FakeClock) {
	t.Helper()
	fc := clock.Fake(epoch)
	seq := 0
	r := NewRegistry(testVenues, Options{
		Clock:  fc,
		Logger: logger.Discard(),
		NewID: func() string {
			seq++
			return fmt.Sprintf("s%02d", seq)
		},
	})
	return r, fc
}

func validProfile(name string) Profile {
	return Profile{DisplayName: name, ContactHandle: "+15550100", GenderTag: "nb", FunFact: "likes maps"}
}

// join admits and binds a participant, returning its id and connection.
func join(t *testing.T, r *Registry, venueID, name string) (string, *fakeConn) {
	t.Helper()
	id, err := r.Admit(context.Background(), venueID, validProfile(name))
	require.NoError(t, err)
	conn := &fakeConn{}
	_, err = r.Bind(id, conn)
	require.NoError(t, err)
	return id, conn
}

// fixAt returns a fix d meters east of (lat, lng) on the equator-ish.
func fixAt(center geofence.Point, meters, accuracy float64) geofence.Fix {
	deg := meters / (geofence.EarthRadiusMeters * math.Pi / 180)
	return geofence.Fix{
		Point:          geofence.Point{Lat: center.Lat, Lng: center.Lng + deg/math.Cos(center.Lat*math.Pi/180)},
		AccuracyMeters: accuracy,
	}
}

var plazaCenter = geofence.Point{}
