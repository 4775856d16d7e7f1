package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const ordersPath = "/v1/orders"

// OrderRequest is what the gateway needs to create a payable order.
type OrderRequest struct {
	AmountMinorUnits      int64
	MerchantTransactionID string
	Currency              string
}

type OrderResult struct {
	Success bool
	OrderID string
	Message string
}

// Gateway creates orders on the payment provider. A returned error means the
// provider could not be reached; a reachable provider that refuses the order
// reports it through OrderResult.Success.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
}

// Credentials is a gateway key pair. A pair missing either half is unusable.
type Credentials struct {
	KeyID     string
	KeySecret string
}

func (c Credentials) Complete() bool {
	return strings.TrimSpace(c.KeyID) != "" && strings.TrimSpace(c.KeySecret) != ""
}

type HTTPGateway struct {
	baseURL    string
	keyID      string
	keySecret  string
	resolve    func() Credentials
	httpClient *http.Client
}

func NewHTTPGateway(baseURL string, keyID string, keySecret string, client *http.Client) *HTTPGateway {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPGateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		keyID:      keyID,
		keySecret:  keySecret,
		httpClient: client,
	}
}

// WithCredentials makes every order read its key pair from resolve. The
// constructor keys are used whenever resolve returns an incomplete pair.
func (g *HTTPGateway) WithCredentials(resolve func() Credentials) *HTTPGateway {
	g.resolve = resolve
	return g
}

func (g *HTTPGateway) credentials() Credentials {
	if g.resolve != nil {
		if creds := g.resolve(); creds.Complete() {
			return creds
		}
	}
	return Credentials{KeyID: g.keyID, KeySecret: g.keySecret}
}

type createOrderPayload struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency,omitempty"`
	Receipt  string `json:"receipt"`
}

type createOrderResponse struct {
	ID    string `json:"id"`
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (g *HTTPGateway) CreateOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	body, err := json.Marshal(createOrderPayload{
		Amount:   req.AmountMinorUnits,
		Currency: req.Currency,
		Receipt:  req.MerchantTransactionID,
	})
	if err != nil {
		return OrderResult{}, fmt.Errorf("gateway: encode order: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+ordersPath, bytes.NewReader(body))
	if err != nil {
		return OrderResult{}, fmt.Errorf("gateway: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	creds := g.credentials()
	httpReq.SetBasicAuth(creds.KeyID, creds.KeySecret)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return OrderResult{}, fmt.Errorf("gateway: create order: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return OrderResult{}, fmt.Errorf("gateway: read response: %w", err)
	}

	var decoded createOrderResponse
	_ = json.Unmarshal(raw, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := decoded.Error.Description
		if message == "" {
			message = fmt.Sprintf("order creation failed with HTTP %d", resp.StatusCode)
		}
		return OrderResult{Success: false, Message: message}, nil
	}
	if decoded.ID == "" {
		return OrderResult{Success: false, Message: "gateway returned no order id"}, nil
	}
	return OrderResult{Success: true, OrderID: decoded.ID, Message: "order created"}, nil
}

var errGatewayDown = errors.New("fake gateway unavailable")

// FakeGateway answers orders locally. Order ids are deterministic:
// order_fake_1, order_fake_2, ...
type FakeGateway struct {
	mu       sync.Mutex
	decline  string
	down     bool
	calls    int
	requests []OrderRequest
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{}
}

// Decline makes subsequent orders fail with message; an empty message restores success.
func (f *FakeGateway) Decline(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decline = message
}

// SetUnavailable makes subsequent calls return a transport error.
func (f *FakeGateway) SetUnavailable(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *FakeGateway) CreateOrder(_ context.Context, req OrderRequest) (OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.requests = append(f.requests, req)
	if f.down {
		return OrderResult{}, errGatewayDown
	}
	if f.decline != "" {
		return OrderResult{Success: false, Message: f.decline}, nil
	}
	return OrderResult{Success: true, OrderID: fmt.Sprintf("order_fake_%d", f.calls), Message: "order created"}, nil
}

func (f *FakeGateway) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *FakeGateway) LastRequest() (OrderRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return OrderRequest{}, false
	}
	return f.requests[len(f.requests)-1], true
}
