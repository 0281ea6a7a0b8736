package google

import (
	"context"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// NewCalendarService creates a Google Calendar API service using the provided TokenSource.
// Extra options are appended, which lets tests point the client at a local server.
func NewCalendarService(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*calendar.Service, error) {
	all := append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	return calendar.NewService(ctx, all...)
}
