// Package google provides shared infrastructure for Google API sources.
//
// It contains:
//   - a static token source for pre-issued access tokens
//   - service factories for Google API clients
//   - mapping of Google API errors onto domain errors
//   - rate limiting to respect Google API quotas
//
// # Usage
//
//	ts := google.NewStaticTokenSource(accessToken)
//	svc, err := google.NewCalendarService(ctx, ts)
//
// # OAuth2 Scopes
//
// The calendar source needs https://www.googleapis.com/auth/calendar.readonly.
// Token issuance and refresh belong to the host application.
package google
