package v1

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"aurika-backend/internal/domain"
	"aurika-backend/internal/usecase"
	"aurika-backend/pkg/utils"
)

type AdminReturnHandler struct {
	returnUC *usecase.ReturnUsecase
	refundUC *usecase.RefundUsecase
}

func NewAdminReturnHandler(returnUC *usecase.ReturnUsecase, refundUC *usecase.RefundUsecase) *AdminReturnHandler {
	return &AdminReturnHandler{returnUC: returnUC, refundUC: refundUC}
}

func (h *AdminReturnHandler) ListReturns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 20
	}

	filter := domain.ReturnFilter{
		Page:   page,
		Limit:  limit,
		Status: r.URL.Query().Get("status"),
	}

	returns, total, err := h.returnUC.GetAllReturns(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, domain.Response{
		Success: true,
		Data:    returns,
		Meta:    paginationMeta(page, limit, total),
	})
}

func (h *AdminReturnHandler) GetReturn(w http.ResponseWriter, r *http.Request) {
	ret, err := h.returnUC.GetReturn(r.Context(), r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ret)
}

func (h *AdminReturnHandler) GetTransitions(w http.ResponseWriter, r *http.Request) {
	transitions, err := h.returnUC.GetTransitions(r.Context(), r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transitions)
}

func (h *AdminReturnHandler) AddNote(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		Note string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Note == "" {
		http.Error(w, "Note required", http.StatusBadRequest)
		return
	}

	user, ok := r.Context().Value(domain.UserContextKey).(*domain.User)
	if !ok || user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.returnUC.AddAdminNote(r.Context(), id, req.Note, user.ID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"message": "Note added"})
}

type attachReturnShipmentReq struct {
	ShipmentID *string `json:"shipmentId"`
	AWBCode    *string `json:"awbCode"`
}

func (h *AdminReturnHandler) AttachShipment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req attachReturnShipmentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid input", http.StatusBadRequest)
		return
	}
	if req.ShipmentID == nil && req.AWBCode == nil {
		http.Error(w, "At least one carrier identifier required", http.StatusBadRequest)
		return
	}

	shipping := domain.ReturnShipping{ShipmentID: req.ShipmentID, AWBCode: req.AWBCode}
	if err := h.returnUC.AttachReturnShipment(r.Context(), id, shipping); err != nil {
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
	json.NewEncoder(w).Encode(map[string]string{"message": "Return shipment attached"})
}

// ApproveInspection is the manual override for items that did not
// auto-approve by condition.
func (h *AdminReturnHandler) ApproveInspection(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	user, ok := r.Context().Value(domain.UserContextKey).(*domain.User)
	if !ok || user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.refundUC.ApproveInspection(r.Context(), id, user.ID); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrNotFound) {
			status = http.StatusNotFound
		}
		if errors.Is(err, domain.ErrTransitionConflict) {
			status = http.StatusConflict
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"message": "Inspection approved"})
}

func (h *AdminReturnHandler) RetryRefund(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	user, ok := r.Context().Value(domain.UserContextKey).(*domain.User)
	if !ok || user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.refundUC.RetryRefund(r.Context(), id, user.ID); err != nil {
		status := http.StatusBadRequest
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

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"message": "Refund retried"})
}

func (h *AdminReturnHandler) RefundEligibility(w http.ResponseWriter, r *http.Request) {
	eligibility, err := h.refundUC.CheckEligibility(r.Context(), r.PathValue("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(eligibility)
}
