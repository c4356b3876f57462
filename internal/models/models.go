// Package models holds the gorm-mapped persistent entities of spec
// section 3 and the AutoMigrate wiring for them.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TableSessionStatus enumerates a seated party's lifecycle.
type TableSessionStatus string

const (
	TableSessionSeated TableSessionStatus = "seated"
	TableSessionActive TableSessionStatus = "active"
	TableSessionPaying TableSessionStatus = "paying"
	TableSessionPaid   TableSessionStatus = "paid"
	TableSessionClosed TableSessionStatus = "closed"
)

type TableSession struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID   uuid.UUID `gorm:"type:uuid;index;not null"`
	TableID    uuid.UUID `gorm:"type:uuid;index;not null"`
	GuestCount int
	ServerID   *uuid.UUID `gorm:"type:uuid;index"`
	Status     TableSessionStatus `gorm:"index;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DraftStatus enumerates the draft coordinator state machine (spec 4.D).
type DraftStatus string

const (
	DraftStatusDraft     DraftStatus = "draft"
	DraftStatusPending   DraftStatus = "pending"
	DraftStatusConfirmed DraftStatus = "confirmed"
	DraftStatusRejected  DraftStatus = "rejected"
	DraftStatusExpired   DraftStatus = "expired"
)

type DraftOrder struct {
	ID             uuid.UUID   `gorm:"type:uuid;primaryKey"`
	TenantID       uuid.UUID   `gorm:"type:uuid;index;not null"`
	TableSessionID uuid.UUID   `gorm:"type:uuid;index;not null"`
	Status         DraftStatus `gorm:"index;not null"`
	Version        int64       `gorm:"not null;default:1"`

	LockedBy *uuid.UUID `gorm:"type:uuid;index"`
	LockedAt *time.Time

	RejectionReason *string
	RejectedBy      *uuid.UUID `gorm:"type:uuid"`
	RejectedAt      *time.Time

	ConfirmedBy *uuid.UUID `gorm:"type:uuid"`
	ConfirmedAt *time.Time
	OrderID     *uuid.UUID `gorm:"type:uuid;index"`

	Subtotal       decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0"`
	TaxAmount      decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0"`
	DiscountAmount decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0"`
	ServiceCharge  decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0"`
	TipAmount      decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0"`
	TotalAmount    decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0"`

	SpecialRequests *string

	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time `gorm:"index;not null"`

	LineItems []DraftLineItem `gorm:"foreignKey:DraftOrderID"`
}

type DraftLineItem struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TenantID          uuid.UUID       `gorm:"type:uuid;index;not null"`
	DraftOrderID      uuid.UUID       `gorm:"type:uuid;index;not null"`
	MenuItemID        uuid.UUID       `gorm:"type:uuid;index;not null"`
	ParentLineItemID  *uuid.UUID      `gorm:"type:uuid;index"`
	Name              string          `gorm:"not null"`
	Quantity          int             `gorm:"not null"`
	PriceAtOrder      decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	LineTotal         decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Modifiers         string          `gorm:"type:text"` // JSON-encoded []Modifier
	SpecialInstructions *string
	SortOrder         int
	CreatedAt         time.Time
}

// Modifier mirrors spec's {type, value, price_adjustment} tuple; it is
// marshalled into DraftLineItem.Modifiers / TicketLineItem.Modifiers.
type Modifier struct {
	Type            string          `json:"type"`
	Value           string          `json:"value"`
	PriceAdjustment decimal.Decimal `json:"price_adjustment"`
}

// OrderStatus enumerates the immutable financial record's lifecycle.
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusInProgress     OrderStatus = "in_progress"
	OrderStatusPartiallyPaid  OrderStatus = "partially_paid"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusCompleted      OrderStatus = "completed"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusVoided         OrderStatus = "voided"
)

type Order struct {
	ID             uuid.UUID   `gorm:"type:uuid;primaryKey"`
	TenantID       uuid.UUID   `gorm:"type:uuid;index;not null"`
	TableSessionID uuid.UUID   `gorm:"type:uuid;index;not null"`
	DraftOrderID   uuid.UUID   `gorm:"type:uuid;uniqueIndex;not null"`
	Status         OrderStatus `gorm:"index;not null"`
	Version        int64       `gorm:"not null;default:1"`

	Subtotal       decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	TaxAmount      decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	DiscountAmount decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	ServiceCharge  decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	TipAmount      decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	TotalAmount    decimal.Decimal `gorm:"type:numeric(12,2);not null"`

	CreatedAt time.Time
	UpdatedAt time.Time

	LineItems []OrderLineItem `gorm:"foreignKey:OrderID"`
}

type OrderLineItemStatus string

const (
	OrderLineItemPending   OrderLineItemStatus = "pending"
	OrderLineItemInProgress OrderLineItemStatus = "in_progress"
	OrderLineItemCompleted OrderLineItemStatus = "completed"
	OrderLineItemCancelled OrderLineItemStatus = "cancelled"
)

type OrderLineItem struct {
	ID           uuid.UUID           `gorm:"type:uuid;primaryKey"`
	TenantID     uuid.UUID           `gorm:"type:uuid;index;not null"`
	OrderID      uuid.UUID           `gorm:"type:uuid;index;not null"`
	Name         string              `gorm:"not null"`
	Quantity     int                 `gorm:"not null"`
	PriceAtOrder decimal.Decimal     `gorm:"type:numeric(10,2);not null"`
	LineTotal    decimal.Decimal     `gorm:"type:numeric(10,2);not null"`
	Status       OrderLineItemStatus `gorm:"index;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type MenuStation struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID  uuid.UUID `gorm:"type:uuid;index;not null"`
	Name      string    `gorm:"not null"`
	FilterHint string
	PrinterID *string
	CreatedAt time.Time
}

type KitchenCourse struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID          uuid.UUID `gorm:"type:uuid;index;not null"`
	Name              string    `gorm:"not null"`
	CourseNumber      int       `gorm:"not null"`
	AutoFireOnConfirm bool      `gorm:"not null;default:false"`
	CreatedAt         time.Time
}

// MenuItemRoute is the routing hint used by the ticket dispatcher: it
// resolves which station/course a DraftLineItem's menu item belongs to.
// spec.md treats menu CRUD as an external collaborator; this is the
// minimal read contract the dispatcher needs from it.
type MenuItemRoute struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID  uuid.UUID `gorm:"type:uuid;index;not null"`
	Name      string    `gorm:"not null"`
	StationID *uuid.UUID `gorm:"type:uuid;index"`
	CourseID  *uuid.UUID `gorm:"type:uuid;index"`
}

// TicketStatus enumerates the kitchen ticket lifecycle (spec 4.E).
type TicketStatus string

const (
	TicketStatusNew       TicketStatus = "new"
	TicketStatusPending   TicketStatus = "pending"
	TicketStatusPreparing TicketStatus = "preparing"
	TicketStatusReady     TicketStatus = "ready"
	TicketStatusCompleted TicketStatus = "completed"
	TicketStatusVoided    TicketStatus = "voided"
)

type Ticket struct {
	ID             uuid.UUID    `gorm:"type:uuid;primaryKey"`
	TenantID       uuid.UUID    `gorm:"type:uuid;index;not null"`
	DraftOrderID   uuid.UUID    `gorm:"type:uuid;index;not null"`
	TableSessionID uuid.UUID    `gorm:"type:uuid;index;not null"`
	StationID      uuid.UUID    `gorm:"type:uuid;index;not null"`
	Status         TicketStatus `gorm:"index;not null"`
	Version        int64        `gorm:"not null;default:1"`

	CourseNumber int
	CourseName   string

	IsRush        bool `gorm:"index"`
	PriorityLevel *int
	EstimatedPrepTimeMinutes *int

	PrepStartedAt *time.Time
	ReadyAt       *time.Time
	CompletedAt   *time.Time

	TableNumber *string
	ServerName  *string

	SpecialInstructions *string

	IsHeld     bool `gorm:"index"`
	HeldReason *string
	HeldAt     *time.Time

	PrintCount    int
	LastPrintedAt *time.Time

	FiredAt      *time.Time
	VoidedAt     *time.Time
	VoidedBy     *uuid.UUID `gorm:"type:uuid"`
	VoidedReason *string

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time

	LineItems []TicketLineItem `gorm:"foreignKey:TicketID"`
}

type TicketLineItemStatus string

const (
	TicketLineItemPending   TicketLineItemStatus = "pending"
	TicketLineItemFired     TicketLineItemStatus = "fired"
	TicketLineItemCompleted TicketLineItemStatus = "completed"
	TicketLineItemHeld      TicketLineItemStatus = "held"
	TicketLineItemVoided    TicketLineItemStatus = "voided"
)

type TicketLineItem struct {
	ID                  uuid.UUID            `gorm:"type:uuid;primaryKey"`
	TenantID            uuid.UUID            `gorm:"type:uuid;index;not null"`
	TicketID            uuid.UUID            `gorm:"type:uuid;index;not null"`
	DraftLineItemID     uuid.UUID            `gorm:"type:uuid;index;not null"`
	Name                string               `gorm:"not null"`
	Quantity            int                  `gorm:"not null"`
	PriceAtOrder        decimal.Decimal      `gorm:"type:numeric(10,2);not null"`
	Modifiers           string               `gorm:"type:text"`
	SpecialInstructions *string
	CourseNumber        int
	Status              TicketLineItemStatus `gorm:"index;not null"`
	CreatedAt           time.Time
}

// PaymentMethod enumerates the payment instruments of spec 4.F.
type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodTerminal PaymentMethod = "terminal"
	PaymentMethodQR       PaymentMethod = "qr"
	PaymentMethodSplit    PaymentMethod = "split"
)

type PaymentIntentStatus string

const (
	PaymentIntentPending    PaymentIntentStatus = "pending"
	PaymentIntentInProgress PaymentIntentStatus = "in_progress"
	PaymentIntentCompleted  PaymentIntentStatus = "completed"
	PaymentIntentCancelled  PaymentIntentStatus = "cancelled"
	PaymentIntentFailed     PaymentIntentStatus = "failed"
)

type PaymentIntent struct {
	ID       uuid.UUID           `gorm:"type:uuid;primaryKey"`
	TenantID uuid.UUID           `gorm:"type:uuid;index;not null"`
	OrderID  uuid.UUID           `gorm:"type:uuid;index;not null"`
	Method   PaymentMethod       `gorm:"index;not null"`
	Amount   decimal.Decimal     `gorm:"type:numeric(10,2);not null"`
	Currency string              `gorm:"size:3;not null;default:'USD'"`
	Status   PaymentIntentStatus `gorm:"index;not null"`
	Version  int64               `gorm:"not null;default:1"`

	InitiatedByUserID uuid.UUID `gorm:"type:uuid;index;not null"`

	IdempotencyKey *string `gorm:"uniqueIndex"`

	QRCode      *string
	QRProvider  string `gorm:"default:'mercadopago'"`
	QRExpiresAt *time.Time

	TipAmount decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0"`

	Notes *string

	CancelledReason *string
	FailedReason    *string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProcessedAt *time.Time
	CancelledAt *time.Time
	FailedAt    *time.Time
}

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

type Payment struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TenantID        uuid.UUID       `gorm:"type:uuid;index;not null"`
	PaymentIntentID uuid.UUID       `gorm:"type:uuid;index;not null"`
	Method          PaymentMethod   `gorm:"index;not null"`
	Amount          decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Status          PaymentStatus   `gorm:"index;not null"`
	Version         int64           `gorm:"not null;default:1"`

	TerminalReferenceID *string
	CardLast4           *string

	CreatedAt  time.Time
	UpdatedAt  time.Time
	RefundedAt *time.Time
}

type RefundStatus string

const (
	RefundStatusRequested  RefundStatus = "requested"
	RefundStatusProcessing RefundStatus = "processing"
	RefundStatusCompleted  RefundStatus = "completed"
	RefundStatusFailed     RefundStatus = "failed"
)

type RefundReasonCode string

const (
	RefundReasonCustomerRequest RefundReasonCode = "customer_request"
	RefundReasonOrderError      RefundReasonCode = "order_error"
	RefundReasonDuplicate       RefundReasonCode = "duplicate_charge"
	RefundReasonOther           RefundReasonCode = "other"
)

type Refund struct {
	ID         uuid.UUID        `gorm:"type:uuid;primaryKey"`
	TenantID   uuid.UUID        `gorm:"type:uuid;index;not null"`
	PaymentID  uuid.UUID        `gorm:"type:uuid;index;not null"`
	Amount     decimal.Decimal  `gorm:"type:numeric(10,2);not null"`
	Status     RefundStatus     `gorm:"index;not null"`
	ReasonCode RefundReasonCode `gorm:"not null"`
	Reason     string
	CreatedBy  uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt  time.Time
	CompletedAt *time.Time
}

type OrderPayment struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TenantID         uuid.UUID       `gorm:"type:uuid;index;not null"`
	OrderID          uuid.UUID       `gorm:"type:uuid;index;not null"`
	PaymentID        uuid.UUID       `gorm:"type:uuid;uniqueIndex;not null"`
	AllocatedAmount  decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	CreatedAt        time.Time
}

// ShiftStatus enumerates the server-shift state machine (spec 4.G).
type ShiftStatus string

const (
	ShiftStatusOpening    ShiftStatus = "opening"
	ShiftStatusActive     ShiftStatus = "active"
	ShiftStatusClosing    ShiftStatus = "closing"
	ShiftStatusClosed     ShiftStatus = "closed"
	ShiftStatusReconciled ShiftStatus = "reconciled"
)

type Shift struct {
	ID         uuid.UUID   `gorm:"type:uuid;primaryKey"`
	TenantID   uuid.UUID   `gorm:"type:uuid;index;not null"`
	ServerID   uuid.UUID   `gorm:"type:uuid;index;not null"`
	LocationID uuid.UUID   `gorm:"type:uuid;index;not null"`
	Status     ShiftStatus `gorm:"index;not null"`
	Version    int64       `gorm:"not null;default:1"`

	OpenedAt     time.Time
	ClosedAt     *time.Time
	ReconciledAt *time.Time

	OpeningBalance decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0"`
	CashSales      decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	CardSales      decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	TipSales       decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0"`

	ClosingCashCount *decimal.Decimal `gorm:"type:numeric(12,2)"`
	CardCount        *decimal.Decimal `gorm:"type:numeric(12,2)"`

	ExpectedCash *decimal.Decimal `gorm:"type:numeric(12,2)"`
	CashVariance *decimal.Decimal `gorm:"type:numeric(10,2)"`
	IsOver       *bool

	TotalBreakTimeMinutes int
	BreakCount            int

	OpeningNotes        *string
	ClosingNotes        *string
	ReconciliationNotes *string

	OpenedBy     uuid.UUID  `gorm:"type:uuid;not null"`
	ClosedBy     *uuid.UUID `gorm:"type:uuid"`
	ReconciledBy *uuid.UUID `gorm:"type:uuid"`

	CashDrawerEvents []CashDrawerEvent `gorm:"foreignKey:ShiftID"`
}

type CashDrawerEventType string

const (
	CashEventOpeningBalance CashDrawerEventType = "opening_balance"
	CashEventPaymentIn      CashDrawerEventType = "payment_in"
	CashEventChangeOut      CashDrawerEventType = "change_out"
	CashEventCashDrop       CashDrawerEventType = "cash_drop"
	CashEventTipPayout      CashDrawerEventType = "tip_payout"
	CashEventCashAdjustment CashDrawerEventType = "cash_adjustment"
	CashEventCashShortage   CashDrawerEventType = "cash_shortage"
	CashEventPettyCash      CashDrawerEventType = "petty_cash"
	CashEventOther          CashDrawerEventType = "other"
)

// RequiresApproval reports whether this event type needs an approver
// distinct policy from the performer, per spec 4.G.
func (t CashDrawerEventType) RequiresApproval() bool {
	switch t {
	case CashEventCashDrop, CashEventCashAdjustment, CashEventCashShortage:
		return true
	default:
		return false
	}
}

type CashDrawerEvent struct {
	ID            uuid.UUID           `gorm:"type:uuid;primaryKey"`
	TenantID      uuid.UUID           `gorm:"type:uuid;index;not null"`
	ShiftID       uuid.UUID           `gorm:"type:uuid;index;not null"`
	EventType     CashDrawerEventType `gorm:"index;not null"`
	Amount        decimal.Decimal     `gorm:"type:numeric(10,2);not null"`
	BalanceAfter  decimal.Decimal     `gorm:"type:numeric(12,2);not null"`
	PaymentID     *uuid.UUID          `gorm:"type:uuid"`
	OrderID       *uuid.UUID          `gorm:"type:uuid"`
	PerformedBy   uuid.UUID           `gorm:"type:uuid;not null"`
	ApprovedBy    *uuid.UUID          `gorm:"type:uuid"`
	Note          *string
	CreatedAt     time.Time `gorm:"index"`
}

type OrderAdjustmentType string

const (
	AdjustmentComp              OrderAdjustmentType = "comp"
	AdjustmentDiscountPercent   OrderAdjustmentType = "discount_percent"
	AdjustmentDiscountAmount    OrderAdjustmentType = "discount_amount"
	AdjustmentPromoCode         OrderAdjustmentType = "promo_code"
	AdjustmentCustomerReward    OrderAdjustmentType = "customer_reward"
	AdjustmentVoid              OrderAdjustmentType = "void"
	AdjustmentPriceOverride     OrderAdjustmentType = "price_override"
	AdjustmentServiceAdjustment OrderAdjustmentType = "service_adjustment"
	AdjustmentTaxAdjustment     OrderAdjustmentType = "tax_adjustment"
	AdjustmentOther             OrderAdjustmentType = "other"
)

type OrderAdjustment struct {
	ID         uuid.UUID           `gorm:"type:uuid;primaryKey"`
	TenantID   uuid.UUID           `gorm:"type:uuid;index;not null"`
	OrderID    uuid.UUID           `gorm:"type:uuid;index;not null"`
	LineItemID *uuid.UUID          `gorm:"type:uuid;index"`
	Type       OrderAdjustmentType `gorm:"not null"`
	Amount     decimal.Decimal     `gorm:"type:numeric(10,2);not null"`
	Reason     *string
	AuthorisedBy uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt  time.Time
}

// DomainEvent is the append-only audit trail for events published on the
// in-process bus (internal/events). The table is migrated, but no code
// path writes rows to it: published events are not persisted.
type DomainEvent struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID  uuid.UUID `gorm:"type:uuid;index;not null"`
	EventType string    `gorm:"index;not null"`
	SubjectID uuid.UUID `gorm:"type:uuid;index;not null"`
	Payload   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index"`
}

// WebhookLog enforces the (provider, external_reference) idempotency
// tuple required by spec 4.F's webhook ingestion contract.
type WebhookLog struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID          uuid.UUID `gorm:"type:uuid;index;not null"`
	Provider          string    `gorm:"not null;uniqueIndex:idx_webhook_provider_ref"`
	ExternalReference string    `gorm:"not null;uniqueIndex:idx_webhook_provider_ref"`
	Status            string    `gorm:"not null"`
	RawPayload        string    `gorm:"type:text"`
	ProcessedAt       time.Time
}

// User is the minimal read model authz/shift code needs; full user CRUD
// is an external collaborator per spec.md's Out-of-scope list.
type User struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID uuid.UUID `gorm:"type:uuid;index;not null"`
	Name     string
	Role     string `gorm:"index;not null"`
}

// AutoMigrate creates/updates every table this service owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&TableSession{},
		&DraftOrder{},
		&DraftLineItem{},
		&Order{},
		&OrderLineItem{},
		&MenuStation{},
		&KitchenCourse{},
		&MenuItemRoute{},
		&Ticket{},
		&TicketLineItem{},
		&PaymentIntent{},
		&Payment{},
		&Refund{},
		&OrderPayment{},
		&Shift{},
		&CashDrawerEvent{},
		&OrderAdjustment{},
		&DomainEvent{},
		&WebhookLog{},
		&User{},
	)
}
