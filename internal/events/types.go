package events

import "github.com/google/uuid"

// Channel identifies which push-hub subject map an event routes to
// (spec 4.B routing table).
type Channel string

const (
	ChannelTable   Channel = "table"
	ChannelStation Channel = "station"
	ChannelUser    Channel = "user"
)

// Routed is implemented by every event type so the push hub can decide
// which connection set to fan a frame out to without a type switch over
// every concrete event.
type Routed interface {
	Event
	Channel() Channel
	SubjectID() uuid.UUID
}

type DraftCreated struct {
	DraftID        uuid.UUID `json:"draft_id"`
	TableSessionID uuid.UUID `json:"table_session_id"`
}

func (e DraftCreated) EventType() string   { return "DraftCreated" }
func (e DraftCreated) Channel() Channel    { return ChannelTable }
func (e DraftCreated) SubjectID() uuid.UUID { return e.TableSessionID }

type DraftSubmitted struct {
	DraftID        uuid.UUID `json:"draft_id"`
	TableSessionID uuid.UUID `json:"table_session_id"`
}

func (e DraftSubmitted) EventType() string   { return "DraftSubmitted" }
func (e DraftSubmitted) Channel() Channel    { return ChannelTable }
func (e DraftSubmitted) SubjectID() uuid.UUID { return e.TableSessionID }

type DraftAcquired struct {
	DraftID        uuid.UUID `json:"draft_id"`
	TableSessionID uuid.UUID `json:"table_session_id"`
	LockedBy       uuid.UUID `json:"locked_by"`
}

func (e DraftAcquired) EventType() string   { return "DraftAcquired" }
func (e DraftAcquired) Channel() Channel    { return ChannelTable }
func (e DraftAcquired) SubjectID() uuid.UUID { return e.TableSessionID }

type DraftConfirmed struct {
	TenantID       uuid.UUID `json:"-"`
	DraftID        uuid.UUID `json:"draft_id"`
	TableSessionID uuid.UUID `json:"table_session_id"`
	OrderID        uuid.UUID `json:"order_id"`
	ItemCount      int       `json:"items"`
	Total          string    `json:"total"`
}

func (e DraftConfirmed) EventType() string   { return "DraftConfirmed" }
func (e DraftConfirmed) Channel() Channel    { return ChannelTable }
func (e DraftConfirmed) SubjectID() uuid.UUID { return e.TableSessionID }

type DraftRejected struct {
	DraftID        uuid.UUID `json:"draft_id"`
	TableSessionID uuid.UUID `json:"table_session_id"`
	Reason         string    `json:"reason"`
}

func (e DraftRejected) EventType() string   { return "DraftRejected" }
func (e DraftRejected) Channel() Channel    { return ChannelTable }
func (e DraftRejected) SubjectID() uuid.UUID { return e.TableSessionID }

type DraftReassigned struct {
	DraftID        uuid.UUID `json:"draft_id"`
	OldSessionID   uuid.UUID `json:"old_session_id"`
	NewSessionID   uuid.UUID `json:"new_session_id"`
}

func (e DraftReassigned) EventType() string   { return "DraftReassigned" }
func (e DraftReassigned) Channel() Channel    { return ChannelTable }
func (e DraftReassigned) SubjectID() uuid.UUID { return e.NewSessionID }

type TicketCreated struct {
	TicketID  uuid.UUID `json:"ticket_id"`
	StationID uuid.UUID `json:"station_id"`
}

func (e TicketCreated) EventType() string   { return "TicketCreated" }
func (e TicketCreated) Channel() Channel    { return ChannelStation }
func (e TicketCreated) SubjectID() uuid.UUID { return e.StationID }

type TicketUpdated struct {
	TicketID  uuid.UUID `json:"ticket_id"`
	StationID uuid.UUID `json:"station_id"`
}

func (e TicketUpdated) EventType() string   { return "TicketUpdated" }
func (e TicketUpdated) Channel() Channel    { return ChannelStation }
func (e TicketUpdated) SubjectID() uuid.UUID { return e.StationID }

type TicketBumped struct {
	TicketID  uuid.UUID `json:"ticket_id"`
	StationID uuid.UUID `json:"station_id"`
	NewStatus string    `json:"new_status"`
}

func (e TicketBumped) EventType() string   { return "TicketBumped" }
func (e TicketBumped) Channel() Channel    { return ChannelStation }
func (e TicketBumped) SubjectID() uuid.UUID { return e.StationID }

type TicketHeld struct {
	TicketID  uuid.UUID `json:"ticket_id"`
	StationID uuid.UUID `json:"station_id"`
	Reason    string    `json:"reason"`
}

func (e TicketHeld) EventType() string   { return "TicketHeld" }
func (e TicketHeld) Channel() Channel    { return ChannelStation }
func (e TicketHeld) SubjectID() uuid.UUID { return e.StationID }

type TicketFired struct {
	TicketID  uuid.UUID `json:"ticket_id"`
	StationID uuid.UUID `json:"station_id"`
}

func (e TicketFired) EventType() string   { return "TicketFired" }
func (e TicketFired) Channel() Channel    { return ChannelStation }
func (e TicketFired) SubjectID() uuid.UUID { return e.StationID }

type TicketVoided struct {
	TicketID  uuid.UUID `json:"ticket_id"`
	StationID uuid.UUID `json:"station_id"`
	Reason    string    `json:"reason"`
}

func (e TicketVoided) EventType() string   { return "TicketVoided" }
func (e TicketVoided) Channel() Channel    { return ChannelStation }
func (e TicketVoided) SubjectID() uuid.UUID { return e.StationID }

type OrderCreated struct {
	OrderID        uuid.UUID `json:"order_id"`
	TableSessionID uuid.UUID `json:"table_session_id"`
}

func (e OrderCreated) EventType() string   { return "OrderCreated" }
func (e OrderCreated) Channel() Channel    { return ChannelTable }
func (e OrderCreated) SubjectID() uuid.UUID { return e.TableSessionID }

type OrderUpdated struct {
	OrderID        uuid.UUID `json:"order_id"`
	TableSessionID uuid.UUID `json:"table_session_id"`
	Status         string    `json:"status"`
}

func (e OrderUpdated) EventType() string   { return "OrderUpdated" }
func (e OrderUpdated) Channel() Channel    { return ChannelTable }
func (e OrderUpdated) SubjectID() uuid.UUID { return e.TableSessionID }

type OrderCompleted struct {
	OrderID        uuid.UUID `json:"order_id"`
	TableSessionID uuid.UUID `json:"table_session_id"`
}

func (e OrderCompleted) EventType() string   { return "OrderCompleted" }
func (e OrderCompleted) Channel() Channel    { return ChannelTable }
func (e OrderCompleted) SubjectID() uuid.UUID { return e.TableSessionID }

type OrderCancelled struct {
	OrderID        uuid.UUID `json:"order_id"`
	TableSessionID uuid.UUID `json:"table_session_id"`
}

func (e OrderCancelled) EventType() string   { return "OrderCancelled" }
func (e OrderCancelled) Channel() Channel    { return ChannelTable }
func (e OrderCancelled) SubjectID() uuid.UUID { return e.TableSessionID }

type PaymentCreated struct {
	PaymentID      uuid.UUID `json:"payment_id"`
	OrderID        uuid.UUID `json:"order_id"`
	TableSessionID uuid.UUID `json:"table_session_id"`
}

func (e PaymentCreated) EventType() string   { return "PaymentCreated" }
func (e PaymentCreated) Channel() Channel    { return ChannelTable }
func (e PaymentCreated) SubjectID() uuid.UUID { return e.TableSessionID }

type PaymentCompleted struct {
	PaymentID      uuid.UUID `json:"payment_id"`
	OrderID        uuid.UUID `json:"order_id"`
	TableSessionID uuid.UUID `json:"table_session_id"`
}

func (e PaymentCompleted) EventType() string   { return "PaymentCompleted" }
func (e PaymentCompleted) Channel() Channel    { return ChannelTable }
func (e PaymentCompleted) SubjectID() uuid.UUID { return e.TableSessionID }

type PaymentFailed struct {
	PaymentID      uuid.UUID `json:"payment_id"`
	OrderID        uuid.UUID `json:"order_id"`
	TableSessionID uuid.UUID `json:"table_session_id"`
	Reason         string    `json:"reason"`
}

func (e PaymentFailed) EventType() string   { return "PaymentFailed" }
func (e PaymentFailed) Channel() Channel    { return ChannelTable }
func (e PaymentFailed) SubjectID() uuid.UUID { return e.TableSessionID }

type RefundCreated struct {
	RefundID       uuid.UUID `json:"refund_id"`
	PaymentID      uuid.UUID `json:"payment_id"`
	TableSessionID uuid.UUID `json:"table_session_id"`
}

func (e RefundCreated) EventType() string   { return "RefundCreated" }
func (e RefundCreated) Channel() Channel    { return ChannelTable }
func (e RefundCreated) SubjectID() uuid.UUID { return e.TableSessionID }

type ShiftOpened struct {
	ShiftID  uuid.UUID `json:"shift_id"`
	ServerID uuid.UUID `json:"server_id"`
}

func (e ShiftOpened) EventType() string   { return "ShiftOpened" }
func (e ShiftOpened) Channel() Channel    { return ChannelUser }
func (e ShiftOpened) SubjectID() uuid.UUID { return e.ServerID }

type ShiftClosed struct {
	ShiftID  uuid.UUID `json:"shift_id"`
	ServerID uuid.UUID `json:"server_id"`
}

func (e ShiftClosed) EventType() string   { return "ShiftClosed" }
func (e ShiftClosed) Channel() Channel    { return ChannelUser }
func (e ShiftClosed) SubjectID() uuid.UUID { return e.ServerID }

type ShiftReconciled struct {
	ShiftID      uuid.UUID `json:"shift_id"`
	ServerID     uuid.UUID `json:"server_id"`
	CashVariance string    `json:"cash_variance"`
}

func (e ShiftReconciled) EventType() string   { return "ShiftReconciled" }
func (e ShiftReconciled) Channel() Channel    { return ChannelUser }
func (e ShiftReconciled) SubjectID() uuid.UUID { return e.ServerID }
