// Package processor translates discrete trading signals into at-most-one-open
// option position transitions: it validates a signal, resolves the target
// contract, drives the leg lifecycle, and persists the resulting state.
package processor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mageshtv/dhanbridge/internal/broker"
	"github.com/mageshtv/dhanbridge/internal/catalog"
	"github.com/mageshtv/dhanbridge/internal/metrics"
	"github.com/mageshtv/dhanbridge/internal/models"
	"github.com/mageshtv/dhanbridge/internal/notify"
	"github.com/mageshtv/dhanbridge/internal/storage"
	"github.com/mageshtv/dhanbridge/internal/strike"
)

// ErrInvalidSignal is returned for a signal missing its kind or spot.
var ErrInvalidSignal = errors.New("invalid signal payload")

// ErrUnknownSignal is returned for a recognized payload with an unsupported
// signal kind. No state is mutated.
var ErrUnknownSignal = errors.New("unknown signal")

// ErrBusy is returned when another signal holds the processing lock longer
// than the configured wait.
var ErrBusy = errors.New("processor busy")

// Result statuses, mirrored into the webhook response.
const (
	StatusDuplicateIgnored = "duplicate_alert_ignored"
	StatusBoughtCE         = "bought CE"
	StatusBoughtPE         = "bought PE"
	StatusClosedLeg        = "closed leg"
	StatusNoOpenLeg        = "no open leg"
)

// Catalog is the instrument-resolution surface the processor needs.
type Catalog interface {
	NearestExpiry(ctx context.Context, underlying string, index int) (time.Time, error)
	ResolveOption(ctx context.Context, underlying string, expiry time.Time, strike int, optionType models.OptionType) (*catalog.Row, error)
}

// Config holds the runtime strike and order policy.
type Config struct {
	ExpiryIndex     int
	CEStrikeType    string
	PEStrikeType    string
	StrikeStep      float64
	Lots            int
	OrderType       string
	ProductType     string
	ExchangeSegment string
	// BusyTimeout bounds the wait for the processing lock; zero waits
	// indefinitely. Without a bound, a hung broker call blocks every
	// subsequent signal — that risk is inherent to the serialized model.
	BusyTimeout time.Duration
}

// Result is the outcome of one processed signal.
type Result struct {
	Status  string      `json:"result"`
	Symbol  string      `json:"symbol,omitempty"`
	Spot    float64     `json:"spot,omitempty"`
	Expiry  string      `json:"expiry,omitempty"`
	Leg     *models.Leg `json:"leg,omitempty"`
	OrderID string      `json:"order,omitempty"`
}

// Processor orchestrates signal handling. All signals serialize through one
// lock held for the entire end-to-end handling, broker call included.
type Processor struct {
	cfg      Config
	catalog  Catalog
	store    storage.Interface
	broker   broker.Broker
	notifier notify.Notifier
	logger   *logrus.Logger
	metrics  *metrics.Metrics

	sem chan struct{}
}

// New creates a Processor.
func New(cfg Config, cat Catalog, store storage.Interface, brk broker.Broker,
	notifier notify.Notifier, logger *logrus.Logger, m *metrics.Metrics) *Processor {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Processor{
		cfg:      cfg,
		catalog:  cat,
		store:    store,
		broker:   brk,
		notifier: notifier,
		logger:   logger,
		metrics:  m,
		sem:      make(chan struct{}, 1),
	}
}

// Process handles one signal end to end: validate, dedupe, drive the leg
// state machine, persist, record the alert ID.
func (p *Processor) Process(ctx context.Context, sig models.Signal) (*Result, error) {
	start := time.Now()
	defer func() { p.metrics.SignalDuration.Observe(time.Since(start).Seconds()) }()

	if strings.TrimSpace(sig.Kind) == "" || sig.Spot <= 0 || math.IsNaN(sig.Spot) || math.IsInf(sig.Spot, 0) {
		p.metrics.SignalsTotal.WithLabelValues("invalid", "rejected").Inc()
		return nil, fmt.Errorf("%w: signal=%q spot=%v", ErrInvalidSignal, sig.Kind, sig.Spot)
	}

	if err := p.acquire(ctx); err != nil {
		return nil, err
	}
	defer p.release()

	if sig.AlertID != "" && p.store.IsDuplicate(sig.AlertID) {
		p.logger.WithField("alert_id", sig.AlertID).Debug("duplicate alert ignored")
		p.metrics.DuplicateAlerts.Inc()
		return &Result{Status: StatusDuplicateIgnored}, nil
	}

	kind, ok := models.ParseSignalKind(sig.Kind)
	if !ok {
		p.metrics.SignalsTotal.WithLabelValues("unknown", "rejected").Inc()
		return nil, fmt.Errorf("%w: %q", ErrUnknownSignal, sig.Kind)
	}

	symbol := NormalizeSymbol(sig.Symbol)
	res, err := p.dispatch(ctx, kind, symbol, sig.Spot)

	// The alert is marked processed even when an open/close sub-step failed
	// partway. This mirrors the reference behavior and means a failed open
	// permanently suppresses retries carrying the same alert ID.
	if sig.AlertID != "" {
		if rerr := p.store.RecordAlert(sig.AlertID); rerr != nil {
			p.logger.Errorf("recording alert %s: %v", sig.AlertID, rerr)
		}
	}

	if err != nil {
		p.metrics.SignalsTotal.WithLabelValues(string(kind), "error").Inc()
		p.notify(ctx, fmt.Sprintf("Error handling %s for %s: %v", kind, symbol, err))
		return nil, err
	}

	p.metrics.SignalsTotal.WithLabelValues(string(kind), "ok").Inc()
	res.Symbol = symbol
	res.Spot = sig.Spot
	return res, nil
}

func (p *Processor) dispatch(ctx context.Context, kind models.SignalKind, symbol string, spot float64) (*Result, error) {
	switch kind {
	case models.SignalSmartBuy:
		return p.swapTo(ctx, models.OptionCE, symbol, spot)
	case models.SignalSmartSell:
		return p.swapTo(ctx, models.OptionPE, symbol, spot)
	case models.SignalBookProfit:
		leg := p.store.OpenLeg()
		if leg == nil {
			return &Result{Status: StatusNoOpenLeg}, nil
		}
		resp, err := p.closeLeg(ctx, leg)
		if err != nil {
			return nil, err
		}
		return &Result{Status: StatusClosedLeg, OrderID: resp.OrderID}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSignal, kind)
	}
}

// swapTo closes an open leg of the opposite type, then opens a leg of type t.
//
// An already-open leg of the same type is NOT closed or rejected: a second
// smart buy on top of an open CE leg opens another CE and overwrites the
// stored one. Deliberately preserved pending a product decision.
func (p *Processor) swapTo(ctx context.Context, t models.OptionType, symbol string, spot float64) (*Result, error) {
	if leg := p.store.OpenLeg(); leg != nil && leg.Type == t.Opposite() {
		if _, err := p.closeLeg(ctx, leg); err != nil {
			return nil, err
		}
	}

	leg, err := p.openLeg(ctx, t, symbol, spot)
	if err != nil {
		return nil, err
	}

	status := StatusBoughtCE
	if t == models.OptionPE {
		status = StatusBoughtPE
	}
	return &Result{Status: status, Expiry: leg.Expiry, Leg: leg, OrderID: leg.OrderRef}, nil
}

// openLeg resolves expiry, strike, and contract, places a BUY order, and
// persists the new leg. Resolution failures abort before any broker call; a
// broker failure aborts before persistence.
func (p *Processor) openLeg(ctx context.Context, t models.OptionType, symbol string, spot float64) (*models.Leg, error) {
	expiry, err := p.catalog.NearestExpiry(ctx, symbol, p.cfg.ExpiryIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving expiry index %d for %s: %w", p.cfg.ExpiryIndex, symbol, err)
	}

	strikeType := p.cfg.CEStrikeType
	if t == models.OptionPE {
		strikeType = p.cfg.PEStrikeType
	}
	target, err := strike.SelectByType(spot, p.cfg.StrikeStep, string(t), strikeType)
	if err != nil {
		return nil, err
	}

	row, err := p.catalog.ResolveOption(ctx, symbol, expiry, target, t)
	if err != nil {
		return nil, err
	}

	quantity := p.cfg.Lots
	if row.LotSize > 0 {
		quantity = row.LotSize * p.cfg.Lots
	}

	resp, err := p.placeOrder(ctx, broker.OrderRequest{
		SecurityID:      row.SecurityID,
		Side:            broker.SideBuy,
		Quantity:        quantity,
		OrderType:       p.cfg.OrderType,
		ProductType:     p.cfg.ProductType,
		ExchangeSegment: p.cfg.ExchangeSegment,
		Tag:             uuid.NewString(),
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s %d for %s: %w", t, target, symbol, err)
	}

	leg := &models.Leg{
		Type:       t,
		Strike:     target,
		StrikeType: models.StrikeType(strings.ToUpper(strikeType)),
		Expiry:     expiry.Format("2006-01-02"),
		SecurityID: row.SecurityID,
		Quantity:   quantity,
		OrderRef:   resp.OrderID,
	}
	if err := p.store.SetOpenLeg(leg); err != nil {
		return nil, fmt.Errorf("persisting %s leg: %w", t, err)
	}

	p.logger.WithFields(logrus.Fields{
		"type": t, "strike": leg.Strike, "expiry": leg.Expiry, "order": resp.OrderID,
	}).Info("opened leg")
	p.notify(ctx, fmt.Sprintf("Opened %s %d %s: %s", t, leg.Strike, leg.Expiry, resp.OrderID))
	return leg, nil
}

// closeLeg sells the held leg. On broker failure the stored leg stays
// untouched; the position is not assumed closed.
func (p *Processor) closeLeg(ctx context.Context, leg *models.Leg) (*broker.OrderResponse, error) {
	resp, err := p.placeOrder(ctx, broker.OrderRequest{
		SecurityID:      leg.SecurityID,
		Side:            broker.SideSell,
		Quantity:        leg.Quantity,
		OrderType:       p.cfg.OrderType,
		ProductType:     p.cfg.ProductType,
		ExchangeSegment: p.cfg.ExchangeSegment,
		Tag:             uuid.NewString(),
	})
	if err != nil {
		p.notify(ctx, fmt.Sprintf("Failed to close %s %d %s: %v", leg.Type, leg.Strike, leg.Expiry, err))
		return nil, fmt.Errorf("closing %s %d: %w", leg.Type, leg.Strike, err)
	}

	if err := p.store.ClearOpenLeg(); err != nil {
		return nil, fmt.Errorf("clearing closed leg: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"type": leg.Type, "strike": leg.Strike, "order": resp.OrderID,
	}).Info("closed leg")
	p.notify(ctx, fmt.Sprintf("Closed %s %d %s: %s", leg.Type, leg.Strike, leg.Expiry, resp.OrderID))
	return resp, nil
}

func (p *Processor) placeOrder(ctx context.Context, req broker.OrderRequest) (*broker.OrderResponse, error) {
	resp, err := p.broker.PlaceOrder(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.metrics.OrdersTotal.WithLabelValues(string(req.Side), status).Inc()
	return resp, err
}

// notify is best-effort: failures are logged and never propagate.
func (p *Processor) notify(ctx context.Context, message string) {
	nctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.notifier.Notify(nctx, message); err != nil {
		p.logger.Warnf("notification failed: %v", err)
	}
}

func (p *Processor) acquire(ctx context.Context) error {
	if p.cfg.BusyTimeout <= 0 {
		select {
		case p.sem <- struct{}{}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	timer := time.NewTimer(p.cfg.BusyTimeout)
	defer timer.Stop()
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: lock not acquired within %s", ErrBusy, p.cfg.BusyTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Processor) release() {
	<-p.sem
}
