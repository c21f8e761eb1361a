package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/Siddarth2230/asset-labels/internal/models"
	"github.com/Siddarth2230/asset-labels/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type LabelHandler struct {
	service   *service.LabelService
	validator *validator.Validate
	logger    *slog.Logger
}

func NewLabelHandler(svc *service.LabelService, logger *slog.Logger) *LabelHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LabelHandler{service: svc, validator: validator.New(), logger: logger}
}

// POST /labels
func (h *LabelHandler) GenerateLabels(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateLabelsRequest
	if msg, ok := decodeAndValidate(r, h.validator, &req); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	resp, err := h.service.GenerateLabels(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, "generate_labels", err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// GET /labels/{label}
func (h *LabelHandler) CheckLabel(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.CheckLabel(r.Context(), mux.Vars(r)["label"])
	if err != nil {
		writeServiceError(w, h.logger, "check_label", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// GET /labels?from=&to=
func (h *LabelHandler) ListLabels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	infos, err := h.service.ListLabels(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		writeServiceError(w, h.logger, "list_labels", err)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// GET /labels/export?from=&to=
func (h *LabelHandler) ExportLabels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	buf, err := h.service.ExportLabels(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		writeServiceError(w, h.logger, "export_labels", err)
		return
	}

	filename := fmt.Sprintf("labels_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("export write failed", "error", err)
	}
}

// GET /status
func (h *LabelHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.Status(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
