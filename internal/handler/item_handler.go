package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/Siddarth2230/asset-labels/internal/models"
	"github.com/Siddarth2230/asset-labels/internal/service"
)

type ItemHandler struct {
	service   *service.ItemService
	validator *validator.Validate
	logger    *slog.Logger
}

func NewItemHandler(svc *service.ItemService, logger *slog.Logger) *ItemHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ItemHandler{service: svc, validator: validator.New(), logger: logger}
}

// POST /items
func (h *ItemHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req models.CreateItemRequest
	if msg, ok := decodeAndValidate(r, h.validator, &req); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	item, err := h.service.CreateItem(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, "create_item", err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// GET /items/{label}
func (h *ItemHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	label := mux.Vars(r)["label"]
	if label == "" {
		writeError(w, http.StatusBadRequest, "missing label")
		return
	}

	item, err := h.service.GetItemByLabel(r.Context(), label)
	if err != nil {
		writeServiceError(w, h.logger, "get_item", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// DELETE /items/{label}
func (h *ItemHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	label := mux.Vars(r)["label"]
	if label == "" {
		writeError(w, http.StatusBadRequest, "missing label")
		return
	}

	if err := h.service.DeleteItem(r.Context(), label); err != nil {
		writeServiceError(w, h.logger, "delete_item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
