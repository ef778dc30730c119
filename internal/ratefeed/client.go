// Package ratefeed fetches fiat exchange rates for ETH from a price feed.
package ratefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/spliteth/pkg/splitbill"
)

// DefaultEndpoint is the coinbase-style exchange-rate feed for ETH.
const DefaultEndpoint = "https://api.coinbase.com/v2/exchange-rates?currency=ETH"

const defaultRequestTimeout = 10 * time.Second

// Client performs one HTTP GET per Rates call. No retries; a failed fetch
// leaves the caller with an empty rate map and currency selection disabled.
type Client struct {
	httpClient *http.Client
	endpoint   string
}

// New builds a Client for the given endpoint. An empty endpoint selects the
// default feed.
func New(endpoint string, httpClient *http.Client) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &Client{httpClient: httpClient, endpoint: endpoint}
}

type ratesEnvelope struct {
	Data struct {
		Currency string            `json:"currency"`
		Rates    map[string]string `json:"rates"`
	} `json:"data"`
}

// Rates fetches the currency-code to rate-per-ETH mapping.
func (client *Client) Rates(ctx context.Context) (map[string]string, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, client.endpoint, nil)
	if err != nil {
		return nil, splitbill.WrapError("rate_feed", "request", "build", err)
	}
	response, err := client.httpClient.Do(request)
	if err != nil {
		return nil, splitbill.WrapError("rate_feed", "request", "send", fmt.Errorf("%w: %v", splitbill.ErrConnection, err))
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, splitbill.WrapError("rate_feed", "response", "status", fmt.Errorf("%w: unexpected status %d", splitbill.ErrConnection, response.StatusCode))
	}
	var envelope ratesEnvelope
	if err := json.NewDecoder(response.Body).Decode(&envelope); err != nil {
		return nil, splitbill.WrapError("rate_feed", "response", "decode", err)
	}
	if envelope.Data.Rates == nil {
		return map[string]string{}, nil
	}
	return envelope.Data.Rates, nil
}
