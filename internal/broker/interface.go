// Package broker provides order-placement clients for the signal engine.
// It includes the Dhan HTTP API client, a circuit-breaker wrapper, and a
// paper broker for dry runs.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// Side is the order transaction side.
type Side string

const (
	// SideBuy opens a long position.
	SideBuy Side = "BUY"
	// SideSell closes a long position.
	SideSell Side = "SELL"
)

// OrderRequest describes one market order against a resolved contract.
type OrderRequest struct {
	SecurityID      string
	Side            Side
	Quantity        int
	OrderType       string // e.g. MARKET
	ProductType     string // e.g. INTRADAY
	ExchangeSegment string // e.g. NSE_FNO
	Tag             string // client-side correlation tag
}

// OrderResponse is the broker's acknowledgment of a placed order.
type OrderResponse struct {
	OrderID string `json:"orderId"`
	Status  string `json:"orderStatus"`
}

// Broker defines the interface for placing orders with a brokerage.
type Broker interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error)
}

// APIError represents a broker API error with status code and response body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("broker API error %d: %s", e.Status, e.Body)
}

// CircuitBreakerBroker wraps a Broker with circuit breaker functionality so a
// flapping broker endpoint fails fast instead of holding the signal lock.
type CircuitBreakerBroker struct {
	broker  Broker
	breaker *gobreaker.CircuitBreaker
}

// CircuitBreakerSettings configures circuit breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // max requests when half-open
	Interval     time.Duration // reset counts interval
	Timeout      time.Duration // open circuit duration
	MinRequests  uint32        // min requests before tripping
	FailureRatio float64       // failure ratio threshold
}

// NewCircuitBreakerBroker creates a CircuitBreakerBroker with sensible defaults.
func NewCircuitBreakerBroker(broker Broker, logger *logrus.Logger) *CircuitBreakerBroker {
	return NewCircuitBreakerBrokerWithSettings(broker, logger, CircuitBreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	})
}

// NewCircuitBreakerBrokerWithSettings creates a CircuitBreakerBroker with
// custom settings.
func NewCircuitBreakerBrokerWithSettings(broker Broker, logger *logrus.Logger, settings CircuitBreakerSettings) *CircuitBreakerBroker {
	if logger == nil {
		logger = logrus.New()
	}
	gbSettings := gobreaker.Settings{
		Name:        "BrokerCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warnf("circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &CircuitBreakerBroker{
		broker:  broker,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// PlaceOrder wraps the underlying broker call with the circuit breaker.
func (c *CircuitBreakerBroker) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.broker.PlaceOrder(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	resp, ok := res.(*OrderResponse)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", res)
	}
	return resp, nil
}

// Ensure implementations satisfy Broker at compile time.
var (
	_ Broker = (*DhanAPI)(nil)
	_ Broker = (*CircuitBreakerBroker)(nil)
	_ Broker = (*PaperBroker)(nil)
)
