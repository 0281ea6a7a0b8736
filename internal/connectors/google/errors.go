package google

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"

	"github.com/tripsync/tripctx/internal/core/domain"
)

// ErrBackoff is returned while a rate limit backoff window is open and the
// caller's deadline falls inside it.
var ErrBackoff = fmt.Errorf("google: backing off: %w", domain.ErrRateLimited)

// IsRateLimited returns true if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	if errors.Is(err, domain.ErrRateLimited) {
		return true
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests
	}
	return false
}

// WrapError converts a Google API error into a domain error. Every failure is
// an ErrSourceUnavailable; rate limiting additionally matches ErrRateLimited.
func WrapError(err error) error {
	if err == nil {
		return nil
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return fmt.Errorf("%w: google: %w", domain.ErrSourceUnavailable, err)
	}

	switch gerr.Code {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: google: unauthorised (invalid credentials)", domain.ErrSourceUnavailable)
	case http.StatusForbidden:
		return fmt.Errorf("%w: google: forbidden (insufficient permissions)", domain.ErrSourceUnavailable)
	case http.StatusNotFound:
		return fmt.Errorf("%w: google: calendar not found", domain.ErrSourceUnavailable)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: google: %w", domain.ErrSourceUnavailable, domain.ErrRateLimited)
	default:
		return fmt.Errorf("%w: google: %w", domain.ErrSourceUnavailable, err)
	}
}
