// Package rates fetches USD-based exchange rates from a public rate API.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultURL returns rates per one US dollar.
const DefaultURL = "https://api.exchangerate-api.com/v4/latest/USD"

// Source provides the latest rate table, keyed by currency code.
type Source interface {
	Latest(ctx context.Context) (map[string]float64, error)
}

// Fetcher queries the rate API over HTTP.
type Fetcher struct {
	url    string
	client *http.Client
}

var _ Source = (*Fetcher)(nil)

// New builds a Fetcher. An empty url means DefaultURL; a nil client gets a
// 10 second timeout.
func New(url string, client *http.Client) *Fetcher {
	if url == "" {
		url = DefaultURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Fetcher{url: url, client: client}
}

type latestResponse struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

func (f *Fetcher) Latest(ctx context.Context) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build rates request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("fetch rates: unexpected status %d", resp.StatusCode)
	}

	var body latestResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}
	if len(body.Rates) == 0 {
		return nil, fmt.Errorf("decode rates: response has no rates")
	}
	return body.Rates, nil
}
