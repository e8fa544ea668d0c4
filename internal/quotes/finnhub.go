package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrNotFound    = errors.New("symbol not found")
	ErrRateLimited = errors.New("quote provider rate limited")
	ErrUnavailable = errors.New("quote provider unavailable")
)

// Quote is the live view of one symbol.
type Quote struct {
	CurrentPrice  float64
	ChangePercent float64
	Company       string
}

const defaultBaseURL = "https://finnhub.io/api/v1"

// Finnhub fetches quotes and company profiles from the Finnhub REST API.
type Finnhub struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        *logrus.Logger
}

func NewFinnhub(apiKey string, log *logrus.Logger) *Finnhub {
	return &Finnhub{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		log:        log,
	}
}

func (c *Finnhub) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	var body struct {
		Current       float64 `json:"c"`
		ChangePercent float64 `json:"dp"`
	}
	if err := c.getJSON(ctx, "/quote", symbol, &body); err != nil {
		return Quote{}, err
	}
	// Finnhub answers unknown symbols with an all-zero quote.
	if body.Current <= 0 {
		return Quote{}, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}

	q := Quote{
		CurrentPrice:  body.Current,
		ChangePercent: body.ChangePercent,
		Company:       symbol,
	}

	var profile struct {
		Name string `json:"name"`
	}
	if err := c.getJSON(ctx, "/stock/profile2", symbol, &profile); err != nil {
		c.log.Warnf("profile lookup for %s failed: %v", symbol, err)
	} else if profile.Name != "" {
		q.Company = profile.Name
	}
	return q, nil
}

func (c *Finnhub) getJSON(ctx context.Context, path, symbol string, out interface{}) error {
	params := url.Values{"symbol": {symbol}, "token": {c.apiKey}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, symbol)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: bad payload: %v", ErrUnavailable, err)
	}
	return nil
}
