package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
	"github.com/tripsync/tripctx/internal/logger"
)

// requireActiveMember fails with domain.ErrAccessDenied unless callerID is an
// active member of tripID. A missing row, a pending or removed membership and
// an empty id all deny. Oracle failures other than not-found are returned
// wrapped so callers never treat an outage as a grant.
func requireActiveMember(ctx context.Context, oracle driven.MembershipOracle, tripID, callerID string) error {
	if oracle == nil {
		return fmt.Errorf("%w: membership oracle not configured", domain.ErrAccessDenied)
	}
	if strings.TrimSpace(tripID) == "" || strings.TrimSpace(callerID) == "" {
		return domain.ErrAccessDenied
	}

	m, err := oracle.GetMembership(ctx, tripID, callerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Debug("Access denied: %s has no membership in %s", callerID, tripID)
			return domain.ErrAccessDenied
		}
		return fmt.Errorf("membership lookup: %w", err)
	}
	if !m.IsActive() {
		logger.Debug("Access denied: %s membership in %s is %s", callerID, tripID, m.Status)
		return domain.ErrAccessDenied
	}
	return nil
}
