package domain

import "time"

// SectionKind names one structured section of an aggregate record.
type SectionKind string

// Structured sections.
const (
	SectionCalendar    SectionKind = "calendar"
	SectionLedger      SectionKind = "ledger"
	SectionPolls       SectionKind = "polls"
	SectionPlaces      SectionKind = "places"
	SectionChat        SectionKind = "chat"
	SectionRoster      SectionKind = "roster"
	SectionBroadcasts  SectionKind = "broadcasts"
	SectionPreferences SectionKind = "preferences"
)

// SectionOrder is the fixed order sections appear in a record and a prompt.
var SectionOrder = []SectionKind{
	SectionCalendar,
	SectionLedger,
	SectionPolls,
	SectionPlaces,
	SectionChat,
	SectionRoster,
	SectionBroadcasts,
	SectionPreferences,
}

// IsValid returns true if the section kind is recognised.
func (k SectionKind) IsValid() bool {
	for _, s := range SectionOrder {
		if s == k {
			return true
		}
	}
	return false
}

// CalendarEvent is an itinerary entry.
type CalendarEvent struct {
	ID       string    `json:"id" yaml:"id"`
	Title    string    `json:"title" yaml:"title"`
	Start    time.Time `json:"start" yaml:"start"`
	End      time.Time `json:"end" yaml:"end"`
	AllDay   bool      `json:"all_day,omitempty" yaml:"all_day"`
	Location string    `json:"location,omitempty" yaml:"location"`
}

// LedgerEntry is a shared expense. Amount is in minor currency units.
type LedgerEntry struct {
	ID          string    `json:"id" yaml:"id"`
	Description string    `json:"description" yaml:"description"`
	Amount      int64     `json:"amount" yaml:"amount"`
	Currency    string    `json:"currency" yaml:"currency"`
	PaidBy      string    `json:"paid_by" yaml:"paid_by"`
	SplitWith   []string  `json:"split_with,omitempty" yaml:"split_with"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// PollOption is one choice in a poll.
type PollOption struct {
	Label string `json:"label" yaml:"label"`
	Votes int    `json:"votes" yaml:"votes"`
}

// Poll is a group decision.
type Poll struct {
	ID        string       `json:"id" yaml:"id"`
	Question  string       `json:"question" yaml:"question"`
	Options   []PollOption `json:"options" yaml:"options"`
	Closed    bool         `json:"closed,omitempty" yaml:"closed"`
	CreatedAt time.Time    `json:"created_at" yaml:"created_at"`
}

// Place is a saved location.
type Place struct {
	ID       string    `json:"id" yaml:"id"`
	Name     string    `json:"name" yaml:"name"`
	Address  string    `json:"address,omitempty" yaml:"address"`
	Category string    `json:"category,omitempty" yaml:"category"`
	Notes    string    `json:"notes,omitempty" yaml:"notes"`
	AddedAt  time.Time `json:"added_at" yaml:"added_at"`
}

// ChatMessage is one trip chat message.
type ChatMessage struct {
	ID     string    `json:"id" yaml:"id"`
	Author string    `json:"author" yaml:"author"`
	Text   string    `json:"text" yaml:"text"`
	SentAt time.Time `json:"sent_at" yaml:"sent_at"`
}

// SentimentLabel classifies the mood of recent chat.
type SentimentLabel string

// Sentiment labels.
const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentNegative SentimentLabel = "negative"
)

// Sentiment is derived from a chat excerpt. Score is in [-1,1].
type Sentiment struct {
	Label SentimentLabel `json:"label"`
	Score float64        `json:"score"`
}

// ChatExcerpt holds recent messages, oldest first, and their derived sentiment.
type ChatExcerpt struct {
	Messages  []ChatMessage `json:"messages"`
	Sentiment Sentiment     `json:"sentiment"`
}

// RosterEntry is a trip member and their team role.
type RosterEntry struct {
	UserID      string `json:"user_id" yaml:"user_id"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	Role        string `json:"role,omitempty" yaml:"role"`
}

// Broadcast is an organiser announcement.
type Broadcast struct {
	ID     string    `json:"id" yaml:"id"`
	Author string    `json:"author" yaml:"author"`
	Text   string    `json:"text" yaml:"text"`
	SentAt time.Time `json:"sent_at" yaml:"sent_at"`
}

// Preference is one member preference (diet, budget, pace, ...).
type Preference struct {
	UserID string `json:"user_id" yaml:"user_id"`
	Key    string `json:"key" yaml:"key"`
	Value  string `json:"value" yaml:"value"`
}

// OmittedSection marks a section left out of a record and why.
type OmittedSection struct {
	Section SectionKind `json:"section"`
	Reason  string      `json:"reason"`
}

// AggregateRecord is the merged best-effort snapshot of a trip's structured data.
type AggregateRecord struct {
	TripID     string    `json:"trip_id"`
	UserID     string    `json:"user_id"`
	ComputedAt time.Time `json:"computed_at"`

	Calendar    []CalendarEvent `json:"calendar,omitempty"`
	Ledger      []LedgerEntry   `json:"ledger,omitempty"`
	Polls       []Poll          `json:"polls,omitempty"`
	Places      []Place         `json:"places,omitempty"`
	Chat        ChatExcerpt     `json:"chat"`
	Roster      []RosterEntry   `json:"roster,omitempty"`
	Broadcasts  []Broadcast     `json:"broadcasts,omitempty"`
	Preferences []Preference    `json:"preferences,omitempty"`

	// Omitted lists sections that could not be fetched, in section order.
	Omitted []OmittedSection `json:"omitted,omitempty"`

	// Stale is set when the record is an expired cache entry served as a fallback.
	Stale bool `json:"-"`
}

// IsOmitted returns true if the section was left out of the record.
func (r *AggregateRecord) IsOmitted(kind SectionKind) bool {
	for _, o := range r.Omitted {
		if o.Section == kind {
			return true
		}
	}
	return false
}

// OmissionReason returns the reason a section was omitted, or "".
func (r *AggregateRecord) OmissionReason(kind SectionKind) string {
	for _, o := range r.Omitted {
		if o.Section == kind {
			return o.Reason
		}
	}
	return ""
}
