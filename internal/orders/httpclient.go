package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPReservationClient talks to the reservation capability over HTTP/JSON.
// A 409 response is a stock denial; any other non-200 is a collaborator
// error. The per-call deadline comes from the request context.
type HTTPReservationClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPReservationClient constructs a client for the given base URL
// (e.g. "http://inventory:3000/v1").
func NewHTTPReservationClient(baseURL string, client *http.Client) *HTTPReservationClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPReservationClient{baseURL: baseURL, client: client}
}

type reserveBody struct {
	ProductID      string `json:"product_id"`
	SKU            string `json:"sku,omitempty"`
	Quantity       int    `json:"quantity"`
	IdempotencyKey string `json:"idempotency_key"`
	OrderID        string `json:"order_id"`
}

type releaseBody struct {
	IdempotencyKey string `json:"idempotency_key"`
	OrderID        string `json:"order_id"`
}

type collaboratorReply struct {
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

func (c *HTTPReservationClient) Reserve(ctx context.Context, req ReserveRequest) (ReserveResult, error) {
	status, reply, err := postJSON(ctx, c.client, c.baseURL+"/inventory/reserve", reserveBody{
		ProductID:      req.ProductID,
		SKU:            req.SKU,
		Quantity:       req.Quantity,
		IdempotencyKey: req.IdempotencyKey,
		OrderID:        req.OrderID,
	})
	if err != nil {
		return ReserveResult{}, err
	}

	switch status {
	case http.StatusOK:
		return ReserveResult{Granted: true}, nil
	case http.StatusConflict:
		return ReserveResult{Granted: false, Reason: replyReason(reply)}, nil
	default:
		return ReserveResult{}, fmt.Errorf("reserve: unexpected status %d", status)
	}
}

func (c *HTTPReservationClient) Release(ctx context.Context, idempotencyKey, orderID string) error {
	status, _, err := postJSON(ctx, c.client, c.baseURL+"/inventory/release", releaseBody{
		IdempotencyKey: idempotencyKey,
		OrderID:        orderID,
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("release: unexpected status %d", status)
	}
	return nil
}

func (c *HTTPReservationClient) Ship(ctx context.Context, idempotencyKey, orderID string) error {
	status, _, err := postJSON(ctx, c.client, c.baseURL+"/inventory/ship", releaseBody{
		IdempotencyKey: idempotencyKey,
		OrderID:        orderID,
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("ship: unexpected status %d", status)
	}
	return nil
}

// HTTPPaymentClient talks to the payment capability over HTTP/JSON. A 402
// response is a decline; any other non-200 is a collaborator error.
type HTTPPaymentClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPPaymentClient constructs a client for the given base URL.
func NewHTTPPaymentClient(baseURL string, client *http.Client) *HTTPPaymentClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPaymentClient{baseURL: baseURL, client: client}
}

type chargeBody struct {
	OrderID        string  `json:"order_id"`
	Amount         float64 `json:"amount"`
	CustomerID     string  `json:"customer_id"`
	IdempotencyKey string  `json:"idempotency_key"`
}

type chargeReply struct {
	PaymentID string `json:"payment_id"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message,omitempty"`
}

func (c *HTTPPaymentClient) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	body, err := json.Marshal(chargeBody{
		OrderID:        req.OrderID,
		Amount:         req.Amount,
		CustomerID:     req.CustomerID,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return ChargeResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments/charge", bytes.NewReader(body))
	if err != nil {
		return ChargeResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return ChargeResult{}, err
	}
	defer resp.Body.Close()

	var reply chargeReply
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&reply)

	switch resp.StatusCode {
	case http.StatusOK:
		return ChargeResult{Approved: true, PaymentID: reply.PaymentID}, nil
	case http.StatusPaymentRequired:
		reason := reply.Reason
		if reason == "" {
			reason = reply.Message
		}
		return ChargeResult{Approved: false, Reason: reason}, nil
	default:
		return ChargeResult{}, fmt.Errorf("charge: unexpected status %d", resp.StatusCode)
	}
}

func postJSON(ctx context.Context, client *http.Client, url string, body any) (int, collaboratorReply, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, collaboratorReply{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, collaboratorReply{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, collaboratorReply{}, err
	}
	defer resp.Body.Close()

	var reply collaboratorReply
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&reply)
	return resp.StatusCode, reply, nil
}

func replyReason(reply collaboratorReply) string {
	if reply.Reason != "" {
		return reply.Reason
	}
	return reply.Message
}
