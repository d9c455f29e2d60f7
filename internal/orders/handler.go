package orders

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/platform/httpx"
)

// Handler serves the read side consumed by the margin dashboard.
type Handler struct {
	repo    Repository
	storeID string
	logger  *slog.Logger
}

func NewHandler(repo Repository, storeID string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{repo: repo, storeID: storeID, logger: logger}
}

// MountRoutes attaches the order read routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{orderID}", h.get)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	status := OrderStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = StatusNeedsCompletion
	}
	if status.rank() == 0 {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	list, err := h.repo.ListByStatus(r.Context(), h.storeID, status)
	if err != nil {
		h.logger.Error("list orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if list == nil {
		list = []Order{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": list})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	order, err := h.repo.GetByID(r.Context(), h.storeID, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("get order", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}
