package geofence

// State is a session's position in the geofence state machine.
type State int

const (
	StateUnknown State = iota
	StateInside
	StateBorderline
	StateOutsidePending
	StateEvicted
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateInside:
		return "inside"
	case StateBorderline:
		return "borderline"
	case StateOutsidePending:
		return "outside_pending"
	case StateEvicted:
		return "evicted"
	default:
		return "invalid"
	}
}

// Report is the state shown to the participant in a status update.
type Report string

const (
	ReportInside     Report = "inside"
	ReportBorderline Report = "borderline"
	ReportOutside    Report = "outside"
)

// OutsideVotesToEvict is the number of consecutive CandidateOutside
// classifications needed before the grace period starts.
const OutsideVotesToEvict = 3

// Status is the per-session geofence state the registry stores.
type Status struct {
	State        State
	OutsideVotes int
}

// Transition is the result of applying one classification to a Status.
type Transition struct {
	Next Status
	// Report is what the participant is told. Empty for ignored fixes.
	Report Report
	// StartGrace asks the caller to arm an eviction timer if none is pending.
	StartGrace bool
	// CancelGrace asks the caller to cancel any pending eviction timer.
	CancelGrace bool
	// EnteredOutside is true only on the fix that flips into OutsidePending.
	EnteredOutside bool
}

// Step applies c to cur. Evicted is terminal; Ignored leaves cur intact.
func Step(cur Status, c Classification) Transition {
	if cur.State == StateEvicted {
		return Transition{Next: cur}
	}

	switch c {
	case Inside:
		return Transition{
			Next:        Status{State: StateInside},
			Report:      ReportInside,
			CancelGrace: true,
		}

	case Borderline:
		report := ReportBorderline
		if cur.State == StateInside {
			report = ReportInside
		}
		return Transition{Next: cur, Report: report}

	case CandidateOutside:
		next := Status{State: cur.State, OutsideVotes: cur.OutsideVotes + 1}
		if next.OutsideVotes < OutsideVotesToEvict {
			// A strike alone never changes the retained state.
			return Transition{Next: next, Report: ReportBorderline}
		}
		t := Transition{Report: ReportOutside, StartGrace: true}
		if cur.State != StateOutsidePending {
			t.EnteredOutside = true
		}
		next.State = StateOutsidePending
		t.Next = next
		return t

	default:
		return Transition{Next: cur}
	}
}
