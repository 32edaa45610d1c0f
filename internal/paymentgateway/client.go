package paymentgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	paymentgatewaytypes "github.com/frahmantamala/salespilot/internal/core/datamodel/paymentgateway"
)

type Config struct {
	APIBase      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	// HTTPClient is used for both the token exchange and API calls when set.
	HTTPClient *http.Client
}

// APIError is a non-2xx answer from the PayPal REST API.
type APIError struct {
	StatusCode int
	Name       string `json:"name"`
	Message    string `json:"message"`
	DebugID    string `json:"debug_id"`
}

func (e *APIError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("paypal api returned status %d: %s: %s", e.StatusCode, e.Name, e.Message)
	}
	return fmt.Sprintf("paypal api returned status %d", e.StatusCode)
}

// PayPalClient talks to the Orders v2 API with a client-credentials token.
type PayPalClient struct {
	apiBase string
	http    *http.Client
	logger  *slog.Logger
}

func NewPayPalClient(config Config, logger *slog.Logger) *PayPalClient {
	apiBase := strings.TrimRight(config.APIBase, "/")

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	cc := clientcredentials.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		TokenURL:     apiBase + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	ctx := context.Background()
	if config.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, config.HTTPClient)
	}
	httpClient := cc.Client(ctx)
	httpClient.Timeout = timeout

	return &PayPalClient{
		apiBase: apiBase,
		http:    httpClient,
		logger:  logger,
	}
}

func (c *PayPalClient) CreateOrder(ctx context.Context, req *paymentgatewaytypes.CreateOrderRequest) (*paymentgatewaytypes.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	order, err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", req)
	if err != nil {
		return nil, err
	}

	c.logger.Info("paypal order created", "order_id", order.ID, "status", order.Status)
	return order, nil
}

func (c *PayPalClient) GetOrder(ctx context.Context, orderID string) (*paymentgatewaytypes.Order, error) {
	return c.do(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(orderID), nil)
}

func (c *PayPalClient) CaptureOrder(ctx context.Context, orderID string) (*paymentgatewaytypes.Order, error) {
	order, err := c.do(ctx, http.MethodPost, "/v2/checkout/orders/"+url.PathEscape(orderID)+"/capture", struct{}{})
	if err != nil {
		return nil, err
	}

	c.logger.Info("paypal order captured", "order_id", order.ID, "status", order.Status)
	return order, nil
}

func (c *PayPalClient) do(ctx context.Context, method, path string, payload interface{}) (*paymentgatewaytypes.Order, error) {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal paypal request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		c.logger.Warn("paypal api error",
			"method", method,
			"path", path,
			"status_code", resp.StatusCode,
			"name", apiErr.Name,
			"debug_id", apiErr.DebugID)
		return nil, apiErr
	}

	var order paymentgatewaytypes.Order
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &order, nil
}
