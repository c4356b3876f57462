// Package sweeper implements the periodic TTL sweep of spec section
// 4.D, grounded on the donor repo's recon.Scheduler timer/select loop.
package sweeper

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/saborhub/ordercore/internal/draft"
	"github.com/saborhub/ordercore/internal/tenancy"
)

// Sweeper runs the two-pass draft sweep of spec 4.D at a fixed
// interval: expire timed-out pending drafts, then release stale
// lock leases. It is cancellable and each run is idempotent — both
// required by spec section 5.
type Sweeper struct {
	draft    *draft.Service
	interval time.Duration
	log      zerolog.Logger
}

func New(draftSvc *draft.Service, interval time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{draft: draftSvc, interval: interval, log: log}
}

// Start blocks until ctx is cancelled, running one sweep every interval.
func (s *Sweeper) Start(ctx context.Context) {
	timer := time.NewTimer(s.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.runOnce(ctx)
			timer.Reset(s.interval)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	now := time.Now().UTC()

	expired, err := s.draft.PendingExpired(ctx, now)
	if err != nil {
		s.log.Error().Err(err).Msg("sweeper: list expired drafts")
	}
	for _, d := range expired {
		tctx := tenancy.WithTenant(ctx, d.TenantID)
		if _, err := s.draft.ExpireOne(tctx, d.ID, d.Version); err != nil {
			s.log.Warn().Err(err).Str("draft_id", d.ID.String()).Msg("sweeper: expire draft")
		}
	}

	stale, err := s.draft.StaleLocks(ctx, now)
	if err != nil {
		s.log.Error().Err(err).Msg("sweeper: list stale locks")
	}
	for _, d := range stale {
		tctx := tenancy.WithTenant(ctx, d.TenantID)
		if _, err := s.draft.ReleaseStaleLock(tctx, d.ID, d.Version); err != nil {
			s.log.Warn().Err(err).Str("draft_id", d.ID.String()).Msg("sweeper: release stale lock")
		}
	}
}
