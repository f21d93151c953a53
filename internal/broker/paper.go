package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// PaperBroker accepts every order without touching a real market. Used in
// paper mode so the full signal path can run with no money at risk.
type PaperBroker struct {
	logger *logrus.Logger

	mu     sync.Mutex
	seq    int
	orders []OrderRequest
}

// NewPaperBroker creates a paper broker.
func NewPaperBroker(logger *logrus.Logger) *PaperBroker {
	if logger == nil {
		logger = logrus.New()
	}
	return &PaperBroker{logger: logger}
}

// PlaceOrder records the order and returns a synthetic reference.
func (p *PaperBroker) PlaceOrder(_ context.Context, req OrderRequest) (*OrderResponse, error) {
	p.mu.Lock()
	p.seq++
	id := fmt.Sprintf("PAPER-%06d", p.seq)
	p.orders = append(p.orders, req)
	p.mu.Unlock()

	p.logger.WithFields(logrus.Fields{
		"order_id":    id,
		"side":        req.Side,
		"security_id": req.SecurityID,
		"quantity":    req.Quantity,
	}).Info("paper order placed")

	return &OrderResponse{OrderID: id, Status: "TRADED"}, nil
}

// Orders returns a copy of every order placed so far.
func (p *PaperBroker) Orders() []OrderRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]OrderRequest(nil), p.orders...)
}
