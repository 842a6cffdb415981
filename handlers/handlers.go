package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"npcheck/messaging"
	"npcheck/models"
	"npcheck/services"

	"github.com/gorilla/mux"
)

const maxMessageBytes = 1 << 20

// Handlers exposes the background service over HTTP.
type Handlers struct {
	router *messaging.Router
	bus    *messaging.LocalBus
	rates  *services.RateService
}

// NewHandlers creates a new handlers instance
func NewHandlers(router *messaging.Router, bus *messaging.LocalBus, rates *services.RateService) *Handlers {
	return &Handlers{router: router, bus: bus, rates: rates}
}

// Routes registers the service endpoints on r.
func (h *Handlers) Routes(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/messages", h.HandleMessage).Methods("POST")
	apiV1.HandleFunc("/rate", h.GetRate).Methods("GET")
}

// HealthCheck reports service liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":   "npcheck",
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

// HandleMessage accepts one action-tagged message. Requests are dispatched
// to the background router; broadcasts go to local subscribers and are
// acknowledged immediately.
func (h *Handlers) HandleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	msg, err := messaging.Decode(body)
	if err != nil {
		if errors.Is(err, messaging.ErrUnknownAction) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if ev, ok := msg.(messaging.ProductsEvent); ok {
		h.bus.Publish(r.Context(), ev)
		writeJSON(w, http.StatusOK, messaging.Ack{})
		return
	}

	writeJSON(w, http.StatusOK, h.router.Dispatch(r.Context(), msg))
}

type rateResponse struct {
	models.ExchangeRateData
	LastUpdated string `json:"last_updated"`
}

// GetRate returns the cached exchange rate, refreshing it when stale.
func (h *Handlers) GetRate(w http.ResponseWriter, r *http.Request) {
	data := h.rates.GetRate(r.Context())
	writeJSON(w, http.StatusOK, rateResponse{
		ExchangeRateData: data,
		LastUpdated:      services.FormatTimestamp(data.Timestamp),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
