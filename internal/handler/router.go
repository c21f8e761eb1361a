package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Siddarth2230/asset-labels/internal/middleware"
)

// NewRouter wires every route. ready backs /healthz.
func NewRouter(items *ItemHandler, labels *LabelHandler, ready func(context.Context) error, logger *slog.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestID, middleware.Logging(logger), middleware.MetricsMiddleware)

	r.HandleFunc("/items", items.CreateItem).Methods(http.MethodPost)
	r.HandleFunc("/items/{label}", items.GetItem).Methods(http.MethodGet)
	r.HandleFunc("/items/{label}", items.DeleteItem).Methods(http.MethodDelete)

	r.HandleFunc("/labels", labels.GenerateLabels).Methods(http.MethodPost)
	r.HandleFunc("/labels", labels.ListLabels).Methods(http.MethodGet)
	r.HandleFunc("/labels/export", labels.ExportLabels).Methods(http.MethodGet)
	r.HandleFunc("/labels/{label}", labels.CheckLabel).Methods(http.MethodGet)
	r.HandleFunc("/status", labels.Status).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := ready(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	return r
}
