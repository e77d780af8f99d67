// Package simmer is the HTTP client for the Simmer SDK trade ledger,
// the authoritative source of per-tag realized P&L.
package simmer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/automaton/internal/ports/secondary"
)

const DefaultURL = "https://simmer.markets"

// Venues the allocator aggregates rewards across.
var Venues = []string{"polymarket", "kalshi"}

type Client struct {
	host       string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a ledger client. An empty host uses the default.
func NewClient(host, apiKey string) (*Client, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		host = DefaultURL
	}
	host = strings.TrimRight(host, "/")

	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("ledger url parse %q: %w", host, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("ledger url must be http(s), got %q", host)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("ledger api key required")
	}

	return &Client{
		host:   host,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 12 * time.Second,
		},
	}, nil
}

type trade struct {
	Source    string  `json:"source"`
	Side      string  `json:"side"`
	Cost      float64 `json:"cost"`
	Amount    float64 `json:"amount"`
	CreatedAt string  `json:"created_at"`
}

type tradesResponse struct {
	Trades []trade `json:"trades"`
}

// ListActivity queries /api/sdk/trades for one venue and returns entries
// inside [since, until). Entries without a usable side, amount, or
// timestamp are dropped rather than failing the fetch.
func (c *Client) ListActivity(ctx context.Context, venue string, since, until time.Time, limit int) ([]secondary.TradeActivity, error) {
	if c == nil {
		return nil, fmt.Errorf("ledger client nil")
	}

	q := url.Values{}
	q.Set("venue", venue)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}

	var out tradesResponse
	if err := c.getJSON(ctx, "/api/sdk/trades?"+q.Encode(), &out); err != nil {
		return nil, err
	}

	activity := make([]secondary.TradeActivity, 0, len(out.Trades))
	for _, t := range out.Trades {
		side := strings.ToLower(t.Side)
		if side != secondary.SideBuy && side != secondary.SideSell {
			continue
		}
		amount := t.Cost
		if amount == 0 {
			amount = t.Amount
		}
		at, err := time.Parse(time.RFC3339, t.CreatedAt)
		if err != nil {
			// A trade without a usable timestamp cannot be windowed and
			// would be recounted every cycle.
			continue
		}
		// The API treats since as inclusive from the caller's watermark;
		// filter client-side as well so replays never double-count. The
		// upper bound excludes trades settling after the cycle started;
		// they belong to the next window.
		if !since.IsZero() && at.Before(since) {
			continue
		}
		if !until.IsZero() && !at.Before(until) {
			continue
		}
		source := t.Source
		if source == "" {
			source = "unknown"
		}
		activity = append(activity, secondary.TradeActivity{
			SourceTag: source,
			Venue:     venue,
			Side:      side,
			AmountUSD: amount,
			At:        at.UTC(),
		})
	}
	return activity, nil
}

type portfolioResponse struct {
	TotalExposure float64 `json:"total_exposure"`
}

// PortfolioExposure returns the current total open exposure in USD.
func (c *Client) PortfolioExposure(ctx context.Context) (float64, error) {
	var out portfolioResponse
	if err := c.getJSON(ctx, "/api/sdk/portfolio", &out); err != nil {
		return 0, err
	}
	return out.TotalExposure, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	endpoint := c.host + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := readBodyLimit(resp.Body, 8<<10)
		return fmt.Errorf("ledger %s: status=%d body=%q", endpoint, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ledger decode: %w", err)
	}
	return nil
}

func readBodyLimit(r io.Reader, limit int64) string {
	if r == nil {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(r, limit))
	return string(b)
}

// Ensure Client implements the interface
var _ secondary.TradeLedger = (*Client)(nil)
