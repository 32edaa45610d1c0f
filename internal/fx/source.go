package fx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrNoAPIKey = errors.New("exchange rate api key not configured")

// ExchangeRateAPI is a RateSource backed by the exchangerate-api.com v6 pair endpoint.
type ExchangeRateAPI struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewExchangeRateAPI(baseURL, apiKey string, client *http.Client) *ExchangeRateAPI {
	if client == nil {
		client = &http.Client{}
	}
	return &ExchangeRateAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

type pairResponse struct {
	Result         string          `json:"result"`
	ErrorType      string          `json:"error-type"`
	ConversionRate decimal.Decimal `json:"conversion_rate"`
}

func (s *ExchangeRateAPI) Rate(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	if s.apiKey == "" {
		return decimal.Zero, ErrNoAPIKey
	}

	url := fmt.Sprintf("%s/v6/%s/pair/%s/%s", s.baseURL, s.apiKey, base, quote)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("exchange rate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("exchange rate api returned status %d", resp.StatusCode)
	}

	var body pairResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode response: %w", err)
	}
	if body.Result != "success" {
		return decimal.Zero, fmt.Errorf("exchange rate api error: %s", body.ErrorType)
	}

	return body.ConversionRate, nil
}
