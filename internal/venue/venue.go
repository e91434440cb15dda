// Package venue holds the venue directory: the places a chat room can be
// tied to, each with a center coordinate and an admission radius.
//
// The chat core only reads through Directory. Store adds the admin
// mutations and has a file-backed and a SQLite-backed implementation.
package venue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Tyrowin/geochat/internal/geofence"
)

// DefaultRadius is used when a venue is stored without a radius.
const DefaultRadius = 90

var (
	// ErrNotFound is returned when no venue has the requested id.
	ErrNotFound = errors.New("venue not found")
	// ErrInvalid is returned when a venue fails validation.
	ErrInvalid = errors.New("invalid venue")
	// ErrExists is returned when a venue id is already taken.
	ErrExists = errors.New("venue already exists")
)

// Venue is a physical place with an admission circle.
type Venue struct {
	ID      string  `json:"id" yaml:"id"`
	Name    string  `json:"name" yaml:"name"`
	Address string  `json:"address,omitempty" yaml:"address,omitempty"`
	Lat     float64 `json:"lat" yaml:"lat"`
	Lng     float64 `json:"lng" yaml:"lng"`
	Radius  float64 `json:"radius" yaml:"radius"`
}

// Center returns the venue coordinate.
func (v Venue) Center() geofence.Point {
	return geofence.Point{Lat: v.Lat, Lng: v.Lng}
}

// Directory resolves venue ids. Implementations must be safe for
// concurrent use.
type Directory interface {
	Resolve(ctx context.Context, id string) (Venue, error)
}

// Store is a Directory that can also be listed and edited by an admin.
type Store interface {
	Directory
	List(ctx context.Context) ([]Venue, error)
	// Create assigns an id derived from the venue name and stores v.
	Create(ctx context.Context, v Venue) (Venue, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// normalize trims fields, applies the default radius and validates v.
// The id is not checked.
func normalize(v Venue, defaultRadius float64) (Venue, error) {
	v.ID = strings.TrimSpace(v.ID)
	v.Name = strings.TrimSpace(v.Name)
	v.Address = strings.TrimSpace(v.Address)
	if v.Name == "" {
		v.Name = v.Address
	}
	if v.Name == "" {
		return Venue{}, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if !v.Center().Valid() {
		return Venue{}, fmt.Errorf("%w: coordinates out of range", ErrInvalid)
	}
	if v.Radius == 0 {
		v.Radius = defaultRadius
	}
	if v.Radius <= 0 || math.IsNaN(v.Radius) || math.IsInf(v.Radius, 0) {
		return Venue{}, fmt.Errorf("%w: radius must be positive", ErrInvalid)
	}
	return v, nil
}
