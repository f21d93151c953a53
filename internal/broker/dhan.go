package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultDhanBaseURL = "https://api.dhan.co/v2"

// DhanAPI is a minimal Dhan HTTP API client covering order placement.
type DhanAPI struct {
	client      *http.Client
	baseURL     string
	accessToken string
	clientID    string
}

// NewDhanAPI creates a Dhan client. baseURL may be empty for the production
// endpoint.
func NewDhanAPI(clientID, accessToken, baseURL string) *DhanAPI {
	if baseURL == "" {
		baseURL = defaultDhanBaseURL
	}
	return &DhanAPI{
		client:      &http.Client{Timeout: 30 * time.Second},
		baseURL:     baseURL,
		accessToken: accessToken,
		clientID:    clientID,
	}
}

// NewDhanAPIWithClient creates a Dhan client with a custom HTTP client.
func NewDhanAPIWithClient(clientID, accessToken, baseURL string, client *http.Client) *DhanAPI {
	api := NewDhanAPI(clientID, accessToken, baseURL)
	if client != nil {
		api.client = client
	}
	return api
}

// dhanOrderRequest mirrors the POST /orders payload.
type dhanOrderRequest struct {
	DhanClientID    string  `json:"dhanClientId"`
	CorrelationID   string  `json:"correlationId,omitempty"`
	TransactionType string  `json:"transactionType"`
	ExchangeSegment string  `json:"exchangeSegment"`
	ProductType     string  `json:"productType"`
	OrderType       string  `json:"orderType"`
	Validity        string  `json:"validity"`
	SecurityID      string  `json:"securityId"`
	Quantity        int     `json:"quantity"`
	Price           float64 `json:"price"`
}

// PlaceOrder submits a market order. Any non-2xx response is surfaced as an
// *APIError.
func (d *DhanAPI) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	payload := dhanOrderRequest{
		DhanClientID:    d.clientID,
		CorrelationID:   req.Tag,
		TransactionType: string(req.Side),
		ExchangeSegment: req.ExchangeSegment,
		ProductType:     req.ProductType,
		OrderType:       req.OrderType,
		Validity:        "DAY",
		SecurityID:      req.SecurityID,
		Quantity:        req.Quantity,
		Price:           0,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding order: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("access-token", d.accessToken)
	httpReq.Header.Set("client-id", d.clientID)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("placing order: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &APIError{Status: resp.StatusCode, Body: "failed to read response body"}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var order OrderResponse
	if err := json.Unmarshal(respBody, &order); err != nil {
		return nil, fmt.Errorf("decoding order response: %w", err)
	}
	if order.OrderID == "" {
		return nil, &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("order response missing orderId: %s", respBody)}
	}
	return &order, nil
}
