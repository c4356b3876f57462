package payment

import (
	"time"

	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/saborhub/ordercore/internal/apperr"
	"github.com/saborhub/ordercore/internal/metrics"
	"github.com/saborhub/ordercore/internal/models"
	"github.com/saborhub/ordercore/internal/tenancy"
)

// WebhookPayload is the inbound contract of spec 6.3: a provider
// reference plus a provider-specific status string. No provider
// signature is verified, neither here nor in the HTTP handler that
// calls IngestWebhook. The
// intent is never taken from the wire — a real provider delivery only
// knows external_reference, so the intent (and its tenant) is resolved
// from it via idempotency_key.
type WebhookPayload struct {
	Provider          string
	ExternalReference string
	Status            string
	TerminalRef       *string
	CardLast4         *string
	RawBody           string
}

// statusMapping is spec 4.F's provider-status-to-domain-status table.
var statusMapping = map[string]models.PaymentIntentStatus{
	"approved":   models.PaymentIntentCompleted,
	"paid":       models.PaymentIntentCompleted,
	"rejected":   models.PaymentIntentFailed,
	"expired":    models.PaymentIntentFailed,
	"cancelled":  models.PaymentIntentCancelled,
	"in_process": models.PaymentIntentInProgress,
	"pending":    models.PaymentIntentPending,
}

// IngestWebhook implements spec 4.F's 5-step webhook algorithm:
// 1. idempotency check against (provider, external_reference)
// 2. resolve the intent via idempotency_key = external_reference
// 3. map provider status to a domain status
// 4. apply the corresponding state transition
// 5. record the webhook log entry
//
// An unrecognized status is treated as ambiguous: the log is recorded
// with status "unmapped" and no intent transition is applied, leaving
// room for an out-of-band provider re-query (spec 4.F, "ambiguous
// provider status").
func (s *Service) IngestWebhook(ctx context.Context, p WebhookPayload) error {
	var existing models.WebhookLog
	err := s.db.WithContext(ctx).Where("provider = ? AND external_reference = ?", p.Provider, p.ExternalReference).First(&existing).Error
	if err == nil {
		metrics.WebhooksProcessed.WithLabelValues(p.Provider, "duplicate").Inc()
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return apperr.Wrap(apperr.KindInternal, "check webhook idempotency", err)
	}

	var intent models.PaymentIntent
	if err := s.db.WithContext(ctx).Where("idempotency_key = ?", p.ExternalReference).First(&intent).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return apperr.New(apperr.KindNotFound, "no intent matches external_reference")
		}
		return apperr.Wrap(apperr.KindInternal, "resolve intent by idempotency key", err)
	}
	ctx = tenancy.WithTenant(ctx, intent.TenantID)

	mapped, known := statusMapping[p.Status]
	outcome := "unmapped"
	if known {
		outcome = string(mapped)
		var opErr error
		switch mapped {
		case models.PaymentIntentCompleted:
			_, opErr = s.CompleteAsync(ctx, intent.ID, p.TerminalRef, p.CardLast4)
		case models.PaymentIntentFailed:
			_, opErr = s.FailIntent(ctx, intent.ID, intent.Version, "provider reported "+p.Status)
		case models.PaymentIntentCancelled:
			_, opErr = s.CancelIntent(ctx, intent.ID, intent.Version, "provider reported "+p.Status)
		case models.PaymentIntentInProgress:
			if intent.Status == models.PaymentIntentPending {
				_, opErr = s.RecordAsyncStart(ctx, intent.ID, intent.Version)
			}
		}
		if opErr != nil {
			return opErr
		}
	}

	log := &models.WebhookLog{
		ID: uuid.New(), TenantID: intent.TenantID, Provider: p.Provider, ExternalReference: p.ExternalReference,
		Status: outcome, RawPayload: p.RawBody, ProcessedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(log).Error; err != nil {
		return apperr.Wrap(apperr.KindInternal, "record webhook log", err)
	}
	metrics.WebhooksProcessed.WithLabelValues(p.Provider, outcome).Inc()
	return nil
}
