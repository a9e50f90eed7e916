package v1

import (
	"encoding/json"
	"net/http"
	"strconv"

	"aurika-backend/internal/domain"
	"aurika-backend/internal/usecase"
	"aurika-backend/pkg/utils"
)

// AdminReconHandler exposes the diagnostic surfaces: the stuck-entity
// report and the transaction audit log.
type AdminReconHandler struct {
	stuckUC   *usecase.StuckUsecase
	txLogRepo domain.TransactionLogRepository
}

func NewAdminReconHandler(stuckUC *usecase.StuckUsecase, txLogRepo domain.TransactionLogRepository) *AdminReconHandler {
	return &AdminReconHandler{stuckUC: stuckUC, txLogRepo: txLogRepo}
}

func (h *AdminReconHandler) StuckReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.stuckUC.Report(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

func (h *AdminReconHandler) ListTransactionLogs(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 50
	}

	filter := domain.TransactionLogFilter{
		Page:   page,
		Limit:  limit,
		Level:  r.URL.Query().Get("level"),
		TxType: r.URL.Query().Get("tx_type"),
	}

	entries, total, err := h.txLogRepo.GetAll(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, domain.Response{
		Success: true,
		Data:    entries,
		Meta:    paginationMeta(page, limit, total),
	})
}
