package domain

import "fmt"

// Tier is a subscription tier with a daily query ceiling.
type Tier string

// Known tiers.
const (
	TierFree      Tier = "free"
	TierPlus      Tier = "plus"
	TierPro       Tier = "pro"
	TierUnlimited Tier = "unlimited"
)

// IsValid returns true if the tier is recognised.
func (t Tier) IsValid() bool {
	switch t {
	case TierFree, TierPlus, TierPro, TierUnlimited:
		return true
	default:
		return false
	}
}

// IsUnlimited returns true if the tier skips the quota check.
func (t Tier) IsUnlimited() bool {
	return t == TierUnlimited
}

// ParseTier converts a string to a Tier.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !t.IsValid() {
		return "", fmt.Errorf("%w: unknown tier %q", ErrInvalidInput, s)
	}
	return t, nil
}

// UsageKey scopes a usage counter to one user, trip and calendar day.
type UsageKey struct {
	UserID string
	TripID string

	// Date is YYYY-MM-DD in the limiter's configured timezone.
	Date string
}

// String returns a stable textual key.
func (k UsageKey) String() string {
	return k.UserID + "/" + k.TripID + "/" + k.Date
}

// UsageDecision is the outcome of a quota check.
type UsageDecision struct {
	Allowed bool

	// Remaining is the number of queries left today, or -1 for unlimited tiers.
	Remaining int

	// Count is the counter value after this check.
	Count int

	// Limit is the tier ceiling, or -1 for unlimited tiers.
	Limit int
}
