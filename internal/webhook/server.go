// Package webhook exposes the inbound HTTP surface: the TradingView alert
// endpoint, a health check, and Prometheus metrics.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/mageshtv/dhanbridge/internal/models"
	"github.com/mageshtv/dhanbridge/internal/processor"
)

// SignalHandler is the processing surface the server forwards alerts to.
type SignalHandler interface {
	Process(ctx context.Context, sig models.Signal) (*processor.Result, error)
}

// Config holds server settings.
type Config struct {
	Port   int
	Secret string
}

// Server is the inbound webhook HTTP server.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	processor SignalHandler
	secret    string
	logger    *logrus.Logger
}

// NewServer creates the webhook server. gatherer may be nil to disable the
// /metrics endpoint.
func NewServer(cfg Config, proc SignalHandler, gatherer prometheus.Gatherer, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{
		router:    chi.NewRouter(),
		processor: proc,
		secret:    cfg.Secret,
		logger:    logger,
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.setupRoutes(gatherer)
	return s
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	s.router.Post("/webhook", s.handleWebhook)
	s.router.Get("/health", s.handleHealth)
	if gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
}

// Start runs the server until Shutdown.
func (s *Server) Start() error {
	s.logger.Infof("webhook server listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// webhookPayload is the raw TradingView alert body. Spot is accepted as a
// JSON number or a numeric string.
type webhookPayload struct {
	Secret  string          `json:"secret"`
	Signal  string          `json:"signal"`
	Symbol  string          `json:"symbol"`
	Spot    json.RawMessage `json:"spot"`
	AlertID string          `json:"alert_id"`
	ID      string          `json:"id"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	if subtle.ConstantTimeCompare([]byte(payload.Secret), []byte(s.secret)) != 1 {
		s.logger.Warn("webhook rejected: invalid secret")
		s.writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid secret"})
		return
	}

	if payload.Signal == "" || len(payload.Spot) == 0 {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing signal or spot"})
		return
	}

	spot, err := parseSpot(payload.Spot)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid spot value"})
		return
	}

	alertID := payload.AlertID
	if alertID == "" {
		alertID = payload.ID
	}

	symbol := payload.Symbol
	if symbol == "" {
		symbol = "NIFTY"
	}

	sig := models.Signal{
		Kind:    payload.Signal,
		Symbol:  symbol,
		Spot:    spot,
		AlertID: alertID,
	}

	s.logger.WithFields(logrus.Fields{
		"request_id": middleware.GetReqID(r.Context()),
		"signal":     sig.Kind,
		"symbol":     sig.Symbol,
		"spot":       sig.Spot,
	}).Info("webhook signal received")

	// The engine runs each accepted signal to completion even if the alert
	// sender disconnects mid-order.
	res, err := s.processor.Process(context.WithoutCancel(r.Context()), sig)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if res.Status == processor.StatusDuplicateIgnored {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": processor.StatusDuplicateIgnored})
		return
	}

	resp := map[string]interface{}{
		"signal": sig.Kind,
		"symbol": res.Symbol,
		"spot":   res.Spot,
		"result": res.Status,
	}
	if res.Expiry != "" {
		resp["expiry"] = res.Expiry
	}
	if res.Leg != nil {
		resp["leg"] = res.Leg
	}
	if res.OrderID != "" {
		resp["order"] = res.OrderID
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, processor.ErrInvalidSignal), errors.Is(err, processor.ErrUnknownSignal):
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, processor.ErrBusy):
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	default:
		s.logger.Errorf("signal failed: %v", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal", "details": err.Error()})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Errorf("writing response: %v", err)
	}
}

// parseSpot accepts 22000, 22000.5, and "22000.5".
func parseSpot(raw json.RawMessage) (float64, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0, fmt.Errorf("spot is neither number nor string")
	}
	return strconv.ParseFloat(str, 64)
}
