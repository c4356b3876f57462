// Package httpapi wires the domain services behind the HTTP surface of
// spec section 6.1, grounded on the donor otc-gateway server's chi
// router construction (RequestID/RealIP/Logger/Recoverer chain,
// auth middleware, JSON request/response helpers).
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/saborhub/ordercore/internal/apperr"
	"github.com/saborhub/ordercore/internal/authz"
	"github.com/saborhub/ordercore/internal/draft"
	"github.com/saborhub/ordercore/internal/events"
	"github.com/saborhub/ordercore/internal/payment"
	"github.com/saborhub/ordercore/internal/pushhub"
	"github.com/saborhub/ordercore/internal/shift"
	"github.com/saborhub/ordercore/internal/ticket"
)

// Config captures the dependencies required to construct the server.
type Config struct {
	DB      *gorm.DB
	Bus     *events.Bus
	Hub     *pushhub.Hub
	Auth    *authz.Middleware
	Draft   *draft.Service
	Ticket  *ticket.Service
	Payment *payment.Service
	Shift   *shift.Service
	Log     zerolog.Logger
}

// Server is the HTTP entry point: a thin dispatch layer over the
// domain services, with no business logic of its own.
type Server struct {
	db      *gorm.DB
	bus     *events.Bus
	hub     *pushhub.Hub
	auth    *authz.Middleware
	draftS  *draft.Service
	ticketS *ticket.Service
	payS    *payment.Service
	shiftS  *shift.Service
	log     zerolog.Logger

	router http.Handler
}

func New(cfg Config) *Server {
	s := &Server{
		db: cfg.DB, bus: cfg.Bus, hub: cfg.Hub, auth: cfg.Auth,
		draftS: cfg.Draft, ticketS: cfg.Ticket, payS: cfg.Payment, shiftS: cfg.Shift,
		log: cfg.Log,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// The webhook endpoint is unauthenticated by design: the provider
	// has no bearer token for this tenant. Signature verification is
	// spec 6.3's declared out-of-scope concern.
	r.Post("/webhooks/mercadopago", s.handleWebhook)

	r.Group(func(api chi.Router) {
		api.Use(s.auth.Handler)

		api.Post("/table-sessions", s.handleCreateTableSession)
		api.Get("/table-sessions/{id}", s.handleGetTableSession)

		api.With(authz.RequirePermission(authz.PermDraftWrite)).Post("/drafts", s.handleCreateDraft)
		api.With(authz.RequirePermission(authz.PermDraftWrite)).Patch("/drafts/{id}", s.handleSetLineItems)
		api.With(authz.RequirePermission(authz.PermDraftWrite)).Post("/drafts/{id}/submit", s.handleSubmitDraft)
		api.With(authz.RequirePermission(authz.PermDraftApprove)).Patch("/drafts/{id}/acquire", s.handleAcquireLock)
		api.With(authz.RequirePermission(authz.PermDraftApprove)).Patch("/drafts/{id}/confirm", s.handleConfirmDraft)
		api.With(authz.RequirePermission(authz.PermDraftApprove)).Patch("/drafts/{id}/reject", s.handleRejectDraft)
		api.With(authz.RequirePermission(authz.PermDraftWrite)).Post("/drafts/{id}/reassign", s.handleReassignDraft)

		api.With(authz.RequirePermission(authz.PermTicketWork)).Post("/tickets/generate", s.handleGenerateTickets)
		api.With(authz.RequirePermission(authz.PermTicketWork)).Patch("/tickets/{id}/bump", s.handleBumpTicket)
		api.With(authz.RequirePermission(authz.PermTicketWork)).Patch("/tickets/{id}/hold", s.handleHoldTicket)
		api.With(authz.RequirePermission(authz.PermTicketWork)).Patch("/tickets/{id}/fire", s.handleFireTicket)
		api.With(authz.RequirePermission(authz.PermTicketVoid)).Patch("/tickets/{id}/void", s.handleVoidTicket)
		api.With(authz.RequirePermission(authz.PermTicketWork)).Patch("/tickets/{id}/status", s.handleBumpTicket)
		api.With(authz.RequirePermission(authz.PermTicketWork)).Post("/tickets/{id}/reassign", s.handleReassignTicket)
		api.With(authz.RequirePermission(authz.PermTicketReprint)).Post("/tickets/{id}/reprint", s.handleReprintTicket)
		api.Get("/tickets", s.handleStationQueue)

		api.Post("/orders/{id}/complete", s.handleCompleteOrder)
		api.Post("/orders/{id}/cancel", s.handleCancelOrder)

		api.With(authz.RequirePermission(authz.PermPaymentProcess)).Post("/payments/intents", s.handleCreateIntent)
		api.With(authz.RequirePermission(authz.PermPaymentProcess)).Post("/payments/qr-intent", s.handleCreateQRIntent)
		api.With(authz.RequirePermission(authz.PermPaymentProcess)).Post("/payments/process", s.handleProcessCash)
		api.With(authz.RequirePermission(authz.PermPaymentProcess)).Post("/payments/split", s.handleSplitPayment)
		api.With(authz.RequirePermission(authz.PermPaymentRefund)).Post("/payments/{id}/refund", s.handleRefund)

		api.With(authz.RequirePermission(authz.PermShiftOpenClose)).Post("/shifts/open", s.handleOpenShift)
		api.With(authz.RequirePermission(authz.PermShiftOpenClose)).Post("/shifts/{id}/close", s.handleCloseShift)
		api.With(authz.RequirePermission(authz.PermShiftOpenClose)).Post("/shifts/{id}/reconcile", s.handleReconcileShift)
		api.With(authz.RequirePermission(authz.PermShiftCashEvent)).Post("/shifts/{id}/cash-drop", s.handleCashDrop)
		api.With(authz.RequirePermission(authz.PermShiftCashEvent)).Post("/shifts/{id}/tip-payout", s.handleTipPayout)
		api.With(authz.RequirePermission(authz.PermShiftCashEvent)).Post("/shifts/{id}/adjustment", s.handleCashAdjustment)

		api.Get("/ws/table/{table_session_id}", s.handleWSTable)
		api.Get("/ws/user/{user_id}", s.handleWSUser)
		api.Get("/ws/station/{station_id}", s.handleWSStation)
	})

	return r
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError translates a domain error to the HTTP status mapping of
// spec section 7.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperr.Status(err), map[string]string{"error": err.Error()})
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}
