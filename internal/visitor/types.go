package visitor

import "time"

// Status represents a visitor's position in the visit lifecycle.
type Status string

const (
	// StatusPending is the initial state: registered, awaiting host decision.
	StatusPending Status = "pending"

	// StatusApproved means the host (or an admin) accepted the visit.
	StatusApproved Status = "approved"

	// StatusRejected means the host (or an admin) declined the visit.
	// Rejected is terminal; a new visit requires a new registration.
	StatusRejected Status = "rejected"

	// StatusCheckedIn means the visitor is on site.
	StatusCheckedIn Status = "checked_in"

	// StatusCheckedOut means the visit has ended. Terminal.
	StatusCheckedOut Status = "checked_out"
)

// predecessor maps each reachable status to the single status a visitor
// must currently be in for the transition to be valid. Pending is initial
// and never a transition target.
var predecessor = map[Status]Status{
	StatusApproved:   StatusPending,
	StatusRejected:   StatusPending,
	StatusCheckedIn:  StatusApproved,
	StatusCheckedOut: StatusCheckedIn,
}

// CanTransition reports whether a visitor currently in from may move to target.
// No edge skips a step: pending cannot go straight to checked_in.
func CanTransition(from, target Status) bool {
	pred, ok := predecessor[target]
	return ok && pred == from
}

// IsValidStatus returns true for a known lifecycle status.
func IsValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCheckedIn, StatusCheckedOut:
		return true
	}
	return false
}

// Visitor represents a registered visit request and its lifecycle state.
//
// Status moves only along the lifecycle graph, and only through the
// lifecycle engine; nothing else mutates a stored visitor.
type Visitor struct {
	ID                  int64      `json:"id"`
	Name                string     `json:"name"`
	NationalID          string     `json:"national_id"`
	Phone               string     `json:"phone"`
	Email               string     `json:"email,omitempty"`
	Company             string     `json:"company,omitempty"`
	Purpose             string     `json:"purpose"`
	PhotoRef            string     `json:"photo_ref,omitempty"`
	HostID              int64      `json:"host_id"`
	RegisteredByID      int64      `json:"registered_by_id,omitempty"`
	Status              Status     `json:"status"`
	CheckinTime         *time.Time `json:"checkin_time,omitempty"`
	CheckoutTime        *time.Time `json:"checkout_time,omitempty"`
	ExpectedDurationMin int        `json:"expected_duration_min,omitempty"`
	Notes               string     `json:"notes,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}
