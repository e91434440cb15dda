// Package geofence decides whether a location fix places a participant
// inside a venue's admission circle.
//
// Evaluate is pure: it maps a venue center, radius and fix to a distance
// and a Classification. Step applies a Classification to a session's
// Status and reports which side effects the caller must perform. Neither
// touches timers, connections or locks.
package geofence

import "math"

const (
	// EarthRadiusMeters is the mean Earth radius used by Distance.
	EarthRadiusMeters = 6_371_000

	// MaxUsableAccuracy is the reported accuracy above which a fix is ignored.
	MaxUsableAccuracy = 150

	// AccuracyCap bounds how far accuracy can widen the thresholds.
	AccuracyCap = 80

	enterMargin = 10
	enterFactor = 0.3
	leaveMargin = 25
	leaveFactor = 0.6
)

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Valid reports whether p is a finite coordinate within range.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Fix is one device location report.
type Fix struct {
	Point
	// AccuracyMeters is the device's horizontal accuracy estimate.
	AccuracyMeters float64
}

// Classification is the evaluator's verdict for a single fix.
type Classification int

const (
	// Ignored means the fix was too inaccurate to act on.
	Ignored Classification = iota
	// Inside means the fix is within the enter threshold.
	Inside
	// Borderline means the fix is between the two thresholds.
	Borderline
	// CandidateOutside is one vote that the participant left.
	CandidateOutside
)

func (c Classification) String() string {
	switch c {
	case Ignored:
		return "ignored"
	case Inside:
		return "inside"
	case Borderline:
		return "borderline"
	case CandidateOutside:
		return "candidate_outside"
	default:
		return "unknown"
	}
}

// Result is the output of Evaluate.
type Result struct {
	DistanceMeters float64
	// AccuracyMeters is the raw accuracy floored at zero, before the cap.
	AccuracyMeters float64
	Classification Classification
	EnterThreshold float64
	LeaveThreshold float64
}

// Distance returns the great-circle distance between a and b in meters
// using the haversine formula on a spherical Earth.
func Distance(a, b Point) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	s := math.Pow(math.Sin(dLat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dLng/2), 2)
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(s)))
}

// Thresholds returns the enter and leave distances for a venue radius and
// fix accuracy. The leave threshold is always strictly larger.
func Thresholds(radiusMeters, accuracyMeters float64) (enter, leave float64) {
	accuracy := math.Min(math.Max(0, accuracyMeters), AccuracyCap)
	enter = radiusMeters + enterMargin + enterFactor*accuracy
	leave = radiusMeters + leaveMargin + leaveFactor*accuracy
	return enter, leave
}

// Evaluate classifies fix against a venue circle.
func Evaluate(center Point, radiusMeters float64, fix Fix) Result {
	accuracy := fix.AccuracyMeters
	if math.IsNaN(accuracy) || accuracy < 0 {
		accuracy = 0
	}

	enter, leave := Thresholds(radiusMeters, accuracy)
	result := Result{
		DistanceMeters: Distance(fix.Point, center),
		AccuracyMeters: accuracy,
		EnterThreshold: enter,
		LeaveThreshold: leave,
	}

	switch {
	case accuracy > MaxUsableAccuracy:
		result.Classification = Ignored
	case result.DistanceMeters <= enter:
		result.Classification = Inside
	case result.DistanceMeters < leave:
		result.Classification = Borderline
	default:
		result.Classification = CandidateOutside
	}
	return result
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
