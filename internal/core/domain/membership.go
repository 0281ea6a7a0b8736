package domain

// MembershipStatus is the state of a user's membership in a trip.
type MembershipStatus string

// Membership statuses. Only active members may read trip data.
const (
	MembershipActive  MembershipStatus = "active"
	MembershipPending MembershipStatus = "pending"
	MembershipRemoved MembershipStatus = "removed"
)

// IsValid returns true if the status is recognised.
func (s MembershipStatus) IsValid() bool {
	switch s {
	case MembershipActive, MembershipPending, MembershipRemoved:
		return true
	default:
		return false
	}
}

// Membership is a row of the external trip membership relation.
type Membership struct {
	TripID string
	UserID string
	Status MembershipStatus

	// Role is the member's team role (organiser, treasurer, ...). Informational only.
	Role string
}

// IsActive returns true if the membership grants read access.
func (m Membership) IsActive() bool {
	return m.Status == MembershipActive
}
