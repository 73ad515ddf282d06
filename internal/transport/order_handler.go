package transport

import (
	"encoding/csv"
	"errors"
	"io"
	"net/http"

	"shopline/internal/domain"
	"shopline/internal/middleware"
	"shopline/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderListResponse pairs an order page with its pagination metadata.
type OrderListResponse struct {
	Orders     []*domain.Order    `json:"orders"`
	Pagination service.Pagination `json:"pagination"`
}

// UpdateStatusRequest is the admin status mutation payload.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// AddNoteRequest is the admin note payload.
type AddNoteRequest struct {
	Note string `json:"note" validate:"required"`
}

// ExportRequest selects orders for CSV export; empty means all orders.
type ExportRequest struct {
	OrderIDs []uuid.UUID `json:"order_ids"`
}

// csvTimeLayout is the timestamp format of the CSV export.
const csvTimeLayout = "2006-01-02 15:04:05"

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	orderService service.OrderService
	logger       *zap.Logger
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderService service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		logger:       logger,
	}
}

// RegisterRoutes registers the storefront order routes; all of them require
// authentication.
func (h *OrderHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/", h.Place)
		r.Get("/user", h.ListOwn)
		r.Get("/{id}", h.GetOwn)
	})
}

// RegisterAdminRoutes registers the admin order routes. The caller wraps
// them in auth + admin middleware.
func (h *OrderHandler) RegisterAdminRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.AdminList)
		r.Post("/export", h.ExportCSV)
		r.Get("/dashboard/stats", h.DashboardStats)
		r.Get("/{id}", h.AdminGet)
		r.Put("/{id}/status", h.UpdateStatus)
		r.Put("/{id}/notes", h.AddNote)
	})
}

// Place handles order placement for the authenticated user.
func (h *OrderHandler) Place(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var input service.PlaceOrderInput
	if err := middleware.DecodeAndValidate(r, &input); err != nil {
		h.logger.Debug("Order validation failed", zap.Error(err))
		respondDecodeError(w, err)
		return
	}

	order, err := h.orderService.Place(r.Context(), userID, input)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, order)
}

// ListOwn returns the authenticated user's orders.
func (h *OrderHandler) ListOwn(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orders, err := h.orderService.ListForUser(r.Context(), userID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, orders)
}

// GetOwn returns one of the authenticated user's orders. Another user's
// order is indistinguishable from a missing one.
func (h *OrderHandler) GetOwn(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.orderService.GetForUser(r.Context(), userID, orderID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, order)
}

// AdminList returns orders with search, status filter, and pagination.
func (h *OrderHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := service.OrderListParams{
		Search: q.Get("search"),
		Status: q.Get("status"),
		Page:   queryInt(r, "page", 1),
		Limit:  queryInt(r, "limit", 10),
	}

	orders, pagination, err := h.orderService.AdminList(r.Context(), params)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, OrderListResponse{Orders: orders, Pagination: pagination})
}

// AdminGet returns any order by ID.
func (h *OrderHandler) AdminGet(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.orderService.AdminGet(r.Context(), orderID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]*domain.Order{"order": order})
}

// UpdateStatus overwrites an order's status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req UpdateStatusRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}

	order, err := h.orderService.UpdateStatus(r.Context(), orderID, req.Status)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("Order status updated",
		zap.String("order_id", order.OrderID),
		zap.String("status", string(order.Status)),
	)
	middleware.RespondWithJSON(w, http.StatusOK, order)
}

// AddNote appends an admin note to an order.
func (h *OrderHandler) AddNote(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req AddNoteRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}

	note, err := h.orderService.AddNote(r.Context(), orderID, req.Note)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, note)
}

// ExportCSV streams selected orders (or all of them) as a CSV attachment.
func (h *OrderHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	// An absent body means "export everything"; ContentLength is not
	// trusted since chunked requests report -1
	var req ExportRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondDecodeError(w, err)
		return
	}

	orders, err := h.orderService.Export(r.Context(), req.OrderIDs)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="orders.csv"`)
	w.WriteHeader(http.StatusOK)

	writer := csv.NewWriter(w)
	writer.Write([]string{"Order ID", "Customer Email", "Total Amount", "Status", "Created At"})
	for _, order := range orders {
		writer.Write([]string{
			order.OrderID,
			order.UserEmail,
			order.TotalAmount.StringFixed(2),
			string(order.Status),
			order.CreatedAt.Format(csvTimeLayout),
		})
	}
	writer.Flush()

	if err := writer.Error(); err != nil {
		h.logger.Error("Failed to write CSV export", zap.Error(err))
	}
}

// DashboardStats returns the admin dashboard aggregation.
func (h *OrderHandler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.orderService.DashboardStats(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, stats)
}
