package calendar

// Config holds Google Calendar source configuration.
type Config struct {
	// CalendarID is the calendar holding trip events.
	CalendarID string
	// TripProperty is the private extended property that tags an event with
	// its trip. Empty returns every event on the calendar.
	TripProperty string
	// MaxResults is the page size for API requests.
	MaxResults int64
}

// DefaultConfig returns the default configuration.
func DefaultConfig(calendarID string) Config {
	return Config{
		CalendarID:   calendarID,
		TripProperty: "trip_id",
		MaxResults:   50,
	}
}
