// Package ticket implements the KDS ticket dispatcher of spec section
// 4.E: draft-to-ticket fan-out by (station, course), auto-fire, Expo
// hold/fire, bump, and void. Grounded on the donor server's CAS
// transition handler shape and workflow.go's transition table.
package ticket

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/saborhub/ordercore/internal/apperr"
	"github.com/saborhub/ordercore/internal/events"
	"github.com/saborhub/ordercore/internal/metrics"
	"github.com/saborhub/ordercore/internal/models"
	"github.com/saborhub/ordercore/internal/tenancy"
)

var allowedTransitions = map[models.TicketStatus][]models.TicketStatus{
	models.TicketStatusNew:       {models.TicketStatusPending, models.TicketStatusVoided},
	models.TicketStatusPending:   {models.TicketStatusPreparing, models.TicketStatusCompleted, models.TicketStatusVoided},
	models.TicketStatusPreparing: {models.TicketStatusReady, models.TicketStatusVoided},
	models.TicketStatusReady:     {models.TicketStatusCompleted, models.TicketStatusVoided},
}

func validateTransition(current, next models.TicketStatus) error {
	if current == next {
		return nil
	}
	for _, allowed := range allowedTransitions[current] {
		if allowed == next {
			return nil
		}
	}
	return apperr.ErrInvalidTransition
}

type Service struct {
	db  *gorm.DB
	bus *events.Bus
}

func NewService(db *gorm.DB, bus *events.Bus) *Service {
	return &Service{db: db, bus: bus}
}

// HandleDraftConfirmed is an events.Subscriber: spec 4.E names
// DraftConfirmed as the dispatcher's trigger ("E consumes" in the
// control-flow summary of spec section 2).
func (s *Service) HandleDraftConfirmed(e events.Event) {
	dc, ok := e.(events.DraftConfirmed)
	if !ok {
		return
	}
	ctx := tenancy.WithTenant(context.Background(), dc.TenantID)
	_, _ = s.GenerateForDraft(ctx, dc.DraftID)
}

// GenerateForDraft is the fan-out algorithm of spec 4.E. It is
// idempotent per draft: a second call for a draft that already has
// tickets returns the existing set unchanged.
func (s *Service) GenerateForDraft(ctx context.Context, draftID uuid.UUID) ([]models.Ticket, error) {
	var existing []models.Ticket
	if err := tenancy.Scope(ctx, s.db.WithContext(ctx)).Where("draft_order_id = ?", draftID).Find(&existing).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "check existing tickets", err)
	}
	if len(existing) > 0 {
		return existing, nil
	}

	var draftRow models.DraftOrder
	if err := tenancy.Scope(ctx, s.db.WithContext(ctx)).First(&draftRow, "id = ?", draftID).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "load draft", err)
	}
	var lineItems []models.DraftLineItem
	if err := tenancy.Scope(ctx, s.db.WithContext(ctx)).Where("draft_order_id = ?", draftID).Order("sort_order").Find(&lineItems).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "load draft line items", err)
	}

	type groupKey struct {
		stationID uuid.UUID
		courseID  uuid.UUID
	}
	groups := map[groupKey][]models.DraftLineItem{}
	order := []groupKey{}
	courses := map[uuid.UUID]models.KitchenCourse{}

	for _, li := range lineItems {
		var route models.MenuItemRoute
		if err := tenancy.Scope(ctx, s.db.WithContext(ctx)).First(&route, "id = ?", li.MenuItemID).Error; err != nil {
			continue // unrouted/unknown item: skip per spec 4.E step 2
		}
		if route.StationID == nil || route.CourseID == nil {
			continue
		}
		key := groupKey{stationID: *route.StationID, courseID: *route.CourseID}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
			var course models.KitchenCourse
			if err := tenancy.Scope(ctx, s.db.WithContext(ctx)).First(&course, "id = ?", key.courseID).Error; err == nil {
				courses[key.courseID] = course
			}
		}
		groups[key] = append(groups[key], li)
	}

	var created []models.Ticket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, key := range order {
			items := groups[key]
			course := courses[key.courseID]
			now := time.Now().UTC()

			t := &models.Ticket{
				ID:             uuid.New(),
				TenantID:       draftRow.TenantID,
				DraftOrderID:   draftRow.ID,
				TableSessionID: draftRow.TableSessionID,
				StationID:      key.stationID,
				CourseNumber:   course.CourseNumber,
				CourseName:     course.Name,
				CreatedAt:      now,
				UpdatedAt:      now,
				Version:        1,
			}
			lineStatus := models.TicketLineItemPending
			if course.AutoFireOnConfirm {
				t.Status = models.TicketStatusPending
				t.FiredAt = &now
				lineStatus = models.TicketLineItemFired
			} else {
				t.Status = models.TicketStatusNew
			}
			if err := tenancy.Scope(ctx, tx).Create(t).Error; err != nil {
				return apperr.Wrap(apperr.KindInternal, "create ticket", err)
			}
			for _, li := range items {
				tli := &models.TicketLineItem{
					ID:                  uuid.New(),
					TenantID:            draftRow.TenantID,
					TicketID:            t.ID,
					DraftLineItemID:     li.ID,
					Name:                li.Name,
					Quantity:            li.Quantity,
					PriceAtOrder:        li.PriceAtOrder,
					Modifiers:           li.Modifiers,
					SpecialInstructions: li.SpecialInstructions,
					CourseNumber:        course.CourseNumber,
					Status:              lineStatus,
					CreatedAt:           now,
				}
				if err := tenancy.Scope(ctx, tx).Create(tli).Error; err != nil {
					return apperr.Wrap(apperr.KindInternal, "create ticket line item", err)
				}
			}
			created = append(created, *t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, t := range created {
		metrics.TicketsCreated.WithLabelValues(t.StationID.String()).Inc()
		s.bus.Publish(events.TicketCreated{TicketID: t.ID, StationID: t.StationID})
	}
	return created, nil
}

// Fire makes a ticket visible to the kitchen: status -> pending,
// fired_at set, line items -> fired. Works for new and held tickets.
func (s *Service) Fire(ctx context.Context, ticketID uuid.UUID, expectedVersion int64) (*models.Ticket, error) {
	var result *models.Ticket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := tenancy.CAS(ctx, tx, ticketID, expectedVersion, func(t *models.Ticket) int64 { return t.Version }, func(t *models.Ticket) error {
			if t.Status != models.TicketStatusNew && !(t.Status == models.TicketStatusPending && t.IsHeld) {
				return apperr.ErrInvalidTransition
			}
			now := time.Now().UTC()
			t.Status = models.TicketStatusPending
			t.FiredAt = &now
			t.IsHeld = false
			t.HeldReason = nil
			t.Version++
			t.UpdatedAt = now
			return nil
		})
		result = row
		if err != nil {
			return err
		}
		return tenancy.Scope(ctx, tx).Model(&models.TicketLineItem{}).
			Where("ticket_id = ?", ticketID).
			Updates(map[string]any{"status": models.TicketLineItemFired}).Error
	})
	if err != nil {
		return nil, err
	}
	s.bus.Publish(events.TicketFired{TicketID: result.ID, StationID: result.StationID})
	return result, nil
}

// Hold suppresses a ticket from the kitchen's view without changing its
// status (spec 4.E: "A held ticket is status = pending ∧ is_held = true").
func (s *Service) Hold(ctx context.Context, ticketID uuid.UUID, expectedVersion int64, reason string) (*models.Ticket, error) {
	var result *models.Ticket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := tenancy.CAS(ctx, tx, ticketID, expectedVersion, func(t *models.Ticket) int64 { return t.Version }, func(t *models.Ticket) error {
			now := time.Now().UTC()
			t.IsHeld = true
			t.HeldReason = &reason
			t.HeldAt = &now
			t.Version++
			t.UpdatedAt = now
			return nil
		})
		result = row
		return err
	})
	if err != nil {
		return nil, err
	}
	s.bus.Publish(events.TicketHeld{TicketID: result.ID, StationID: result.StationID, Reason: reason})
	return result, nil
}

// Bump advances a ticket to the next KDS queue state.
func (s *Service) Bump(ctx context.Context, ticketID uuid.UUID, expectedVersion int64, to models.TicketStatus) (*models.Ticket, error) {
	var result *models.Ticket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := tenancy.CAS(ctx, tx, ticketID, expectedVersion, func(t *models.Ticket) int64 { return t.Version }, func(t *models.Ticket) error {
			if err := validateTransition(t.Status, to); err != nil {
				return err
			}
			now := time.Now().UTC()
			switch to {
			case models.TicketStatusPreparing:
				t.PrepStartedAt = &now
			case models.TicketStatusReady:
				t.ReadyAt = &now
			case models.TicketStatusCompleted:
				t.CompletedAt = &now
			}
			t.Status = to
			t.Version++
			t.UpdatedAt = now
			return nil
		})
		result = row
		return err
	})
	if err != nil {
		return nil, err
	}
	s.bus.Publish(events.TicketBumped{TicketID: result.ID, StationID: result.StationID, NewStatus: string(result.Status)})
	return result, nil
}

// Void marks a non-terminal ticket voided. Manager/admin-only at the
// authz layer (spec 4.H).
func (s *Service) Void(ctx context.Context, ticketID uuid.UUID, expectedVersion int64, voidedBy uuid.UUID, reason string) (*models.Ticket, error) {
	var result *models.Ticket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := tenancy.CAS(ctx, tx, ticketID, expectedVersion, func(t *models.Ticket) int64 { return t.Version }, func(t *models.Ticket) error {
			if t.Status == models.TicketStatusCompleted || t.Status == models.TicketStatusVoided {
				return apperr.ErrInvalidTransition
			}
			now := time.Now().UTC()
			t.Status = models.TicketStatusVoided
			t.VoidedAt = &now
			t.VoidedBy = &voidedBy
			t.VoidedReason = &reason
			t.Version++
			t.UpdatedAt = now
			return nil
		})
		result = row
		return err
	})
	if err != nil {
		return nil, err
	}
	s.bus.Publish(events.TicketVoided{TicketID: result.ID, StationID: result.StationID, Reason: reason})
	return result, nil
}

// Reassign moves a ticket to a different station, keeping state/history
// (spec 4.E: "Re-assignment changes only station_id").
func (s *Service) Reassign(ctx context.Context, ticketID uuid.UUID, expectedVersion int64, newStationID uuid.UUID) (*models.Ticket, error) {
	var result *models.Ticket
	var oldStation uuid.UUID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := tenancy.CAS(ctx, tx, ticketID, expectedVersion, func(t *models.Ticket) int64 { return t.Version }, func(t *models.Ticket) error {
			oldStation = t.StationID
			t.StationID = newStationID
			t.Version++
			t.UpdatedAt = time.Now().UTC()
			return nil
		})
		result = row
		return err
	})
	if err != nil {
		return nil, err
	}
	s.bus.Publish(events.TicketCreated{TicketID: result.ID, StationID: newStationID})
	s.bus.Publish(events.TicketUpdated{TicketID: result.ID, StationID: oldStation})
	return result, nil
}

// Reprint bumps the print counter; any staff role may do this (spec 4.H).
func (s *Service) Reprint(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, error) {
	var result models.Ticket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tenancy.Scope(ctx, tx).First(&result, "id = ?", ticketID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperr.ErrNotFound
			}
			return apperr.Wrap(apperr.KindInternal, "load ticket", err)
		}
		now := time.Now().UTC()
		result.PrintCount++
		result.LastPrintedAt = &now
		return tenancy.Scope(ctx, tx).Save(&result).Error
	})
	return &result, err
}

// StationQueue returns the KDS display order for one station (spec 4.E
// "Ordering on the station queue"): last 24h, is_rush desc, course_number
// asc, created_at asc.
func (s *Service) StationQueue(ctx context.Context, stationID uuid.UUID, status *models.TicketStatus) ([]models.Ticket, error) {
	var rows []models.Ticket
	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	q := tenancy.Scope(ctx, s.db.WithContext(ctx)).
		Where("station_id = ? AND created_at > ?", stationID, cutoff)
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	err := q.Order("is_rush DESC, course_number ASC, created_at ASC").
		Preload("LineItems").
		Find(&rows).Error
	return rows, err
}
