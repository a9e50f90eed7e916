package v1

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"aurika-backend/internal/domain"
	"aurika-backend/internal/usecase"
	"aurika-backend/pkg/utils"
)

func paginationMeta(page, limit int, total int64) domain.Pagination {
	totalPages := int(total) / limit
	if int(total)%limit != 0 {
		totalPages++
	}
	return domain.Pagination{
		Page:       page,
		Limit:      limit,
		TotalItems: total,
		TotalPages: totalPages,
	}
}

type AdminOrderHandler struct {
	orderUC     *usecase.OrderUsecase
	reconcileUC *usecase.ReconcileUsecase
}

func NewAdminOrderHandler(orderUC *usecase.OrderUsecase, reconcileUC *usecase.ReconcileUsecase) *AdminOrderHandler {
	return &AdminOrderHandler{orderUC: orderUC, reconcileUC: reconcileUC}
}

func (h *AdminOrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 20
	}

	filter := domain.OrderFilter{
		Page:          page,
		Limit:         limit,
		Status:        r.URL.Query().Get("status"),
		PaymentStatus: r.URL.Query().Get("payment_status"),
		Search:        r.URL.Query().Get("search"),
	}

	orders, total, err := h.orderUC.GetAllOrders(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, domain.Response{
		Success: true,
		Data:    orders,
		Meta:    paginationMeta(page, limit, total),
	})
}

func (h *AdminOrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Order ID required", http.StatusBadRequest)
		return
	}

	order, err := h.orderUC.GetOrder(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(order)
}

func (h *AdminOrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Order ID required", http.StatusBadRequest)
		return
	}

	var req struct {
		Status string `json:"status"`
		Note   string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid input", http.StatusBadRequest)
		return
	}

	user, ok := r.Context().Value(domain.UserContextKey).(*domain.User)
	if !ok || user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.orderUC.UpdateOrderStatus(r.Context(), id, req.Status, req.Note, user.ID); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrTransitionConflict) {
			status = http.StatusConflict
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"message": "Order status updated"})
}

type attachShipmentReq struct {
	ShipmentID     *string `json:"shipmentId"`
	CarrierOrderID *string `json:"carrierOrderId"`
	AWBCode        *string `json:"awbCode"`
	CourierName    *string `json:"courierName"`
	EstimatedDate  *string `json:"estimatedDate"` // RFC3339
}

// AttachShipment records the carrier identifiers handed back when a
// shipment is booked. Later webhooks resolve the order through them.
func (h *AdminOrderHandler) AttachShipment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Order ID required", http.StatusBadRequest)
		return
	}

	var req attachShipmentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid input", http.StatusBadRequest)
		return
	}
	if req.ShipmentID == nil && req.CarrierOrderID == nil && req.AWBCode == nil {
		http.Error(w, "At least one carrier identifier required", http.StatusBadRequest)
		return
	}

	info := domain.ShippingInfo{
		Status:         domain.ShippingStatusProcessing,
		ShipmentID:     req.ShipmentID,
		CarrierOrderID: req.CarrierOrderID,
		AWBCode:        req.AWBCode,
		CourierName:    req.CourierName,
	}
	if req.EstimatedDate != nil {
		if t, err := time.Parse(time.RFC3339, *req.EstimatedDate); err == nil {
			info.EstimatedDate = &t
		}
	}

	if err := h.orderUC.AttachShipment(r.Context(), id, info); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrNotFound) {
			status = http.StatusNotFound
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"message": "Shipment attached"})
}

func (h *AdminOrderHandler) GetOrderHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	history, err := h.orderUC.GetOrderHistory(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(history)
}

// Resync pulls the current tracking state from the carrier and replays it
// through the same path webhooks take.
func (h *AdminOrderHandler) Resync(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Order ID required", http.StatusBadRequest)
		return
	}

	order, err := h.reconcileUC.ResyncOrderTracking(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrNotFound) {
			status = http.StatusNotFound
		}
		var extErr *domain.ExternalCallFailure
		if errors.As(err, &extErr) {
			status = http.StatusBadGateway
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(order)
}
