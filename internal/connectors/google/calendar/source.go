// Package calendar implements the itinerary source on top of the Google
// Calendar API.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	"github.com/tripsync/tripctx/internal/connectors/google"
	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
	"github.com/tripsync/tripctx/internal/logger"
)

// Source reads upcoming trip events from one Google calendar.
type Source struct {
	svc     *calendar.Service
	cfg     Config
	limiter *google.RateLimiter
	now     func() time.Time
}

var _ driven.CalendarSource = (*Source)(nil)

// New creates a calendar source.
func New(svc *calendar.Service, cfg Config) *Source {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultConfig(cfg.CalendarID).MaxResults
	}
	return &Source{
		svc:     svc,
		cfg:     cfg,
		limiter: google.NewRateLimiter(google.DefaultCalendarRateLimit),
		now:     time.Now,
	}
}

// Events returns the trip's events that have not yet ended, soonest first.
func (s *Source) Events(ctx context.Context, tripID string) ([]domain.CalendarEvent, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: calendar: %w", domain.ErrSourceUnavailable, err)
	}

	call := s.svc.Events.List(s.cfg.CalendarID).
		SingleEvents(true).
		OrderBy("startTime").
		ShowDeleted(false).
		TimeMin(s.now().UTC().Format(time.RFC3339)).
		MaxResults(s.cfg.MaxResults).
		Context(ctx)
	if s.cfg.TripProperty != "" {
		call = call.PrivateExtendedProperty(s.cfg.TripProperty + "=" + tripID)
	}

	resp, err := call.Do()
	if err != nil {
		if google.IsRateLimited(err) {
			backoff := retryAfter(err)
			s.limiter.RecordRateLimitError(backoff)
			logger.Warn("google calendar rate limited, backing off %s", backoff)
		}
		return nil, google.WrapError(err)
	}

	events := make([]domain.CalendarEvent, 0, len(resp.Items))
	for _, item := range resp.Items {
		if ev, ok := EventToCalendarEvent(item); ok {
			events = append(events, ev)
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
	return events, nil
}

// retryAfter reads the Retry-After header of a 429, in seconds.
func retryAfter(err error) time.Duration {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) || gerr.Header == nil {
		return 0
	}
	secs, convErr := strconv.Atoi(gerr.Header.Get("Retry-After"))
	if convErr != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
