package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"stockcast/db"
	"stockcast/ml"
	"stockcast/pipeline"
)

// Handlers exposes the pipeline session over JSON endpoints.
type Handlers struct {
	session *pipeline.Session
	store   *db.Store // optional
	hub     *ProgressHub
	log     *zap.SugaredLogger
}

func NewHandlers(session *pipeline.Session, store *db.Store, hub *ProgressHub, log *zap.SugaredLogger) *Handlers {
	return &Handlers{session: session, store: store, hub: hub, log: log}
}

// Register wires all routes onto the mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/health", h.handleHealth)
	mux.HandleFunc("/api/insights", h.handleInsights)
	mux.HandleFunc("/api/historical", h.handleHistorical)
	mux.HandleFunc("/api/data/reload", h.handleReload)
	mux.HandleFunc("/api/train", h.handleTrain)
	mux.HandleFunc("/api/metrics", h.handleMetrics)
	mux.HandleFunc("/api/forecast", h.handleForecast)
	mux.HandleFunc("/api/ws/progress", h.hub.HandleWebSocket)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps pipeline errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ml.ErrTrainingInProgress):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrNotPrepared),
		errors.Is(err, ml.ErrNoData),
		errors.Is(err, ml.ErrInsufficientData),
		errors.Is(err, ml.ErrInputMissing):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	hist := h.session.HistoricalData()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"data_points": len(hist.Prices),
		"trained":     h.session.Trained(),
		"training":    h.session.TrainingInProgress(),
	})
}

func (h *Handlers) handleInsights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, h.session.Insights())
}

func (h *Handlers) handleHistorical(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, h.session.HistoricalData())
}

// handleReload fetches the feed again and rebuilds the dataset.
func (h *Handlers) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := h.session.LoadData(r.Context()); err != nil {
		h.log.Errorw("data reload failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if err := h.session.PrepareData(); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	hist := h.session.HistoricalData()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "reloaded",
		"data_points": len(hist.Prices),
	})
}

type trainRequest struct {
	Epochs int `json:"epochs"`
}

// handleTrain starts an asynchronous training run. Progress is observable
// on the websocket endpoint; a concurrent run yields 409.
func (h *Handlers) handleTrain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.session.TrainingInProgress() {
		writeError(w, http.StatusConflict, ml.ErrTrainingInProgress.Error())
		return
	}

	var req trainRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req) // empty body keeps the default
	}

	// detach from the request context: training outlives the response
	go func() {
		if _, err := h.session.Train(context.Background(), req.Epochs); err != nil {
			h.log.Errorw("background training failed", "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status": "training started",
		"epochs": req.Epochs,
	})
}

func (h *Handlers) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if metrics, ok := h.session.Metrics(); ok {
		writeJSON(w, http.StatusOK, metrics)
		return
	}
	if h.store != nil {
		if metrics, err := h.store.LatestTrainingRun(); err == nil {
			writeJSON(w, http.StatusOK, metrics)
			return
		}
	}
	writeError(w, http.StatusNotFound, "no training run recorded")
}

func (h *Handlers) handleForecast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	days, err := h.session.Forecast()
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"forecast": days})
}
