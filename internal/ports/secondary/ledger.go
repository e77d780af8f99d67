package secondary

import (
	"context"
	"time"
)

// Trade sides as reported by the ledger.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// TradeActivity is one ledger entry attributed to a strategy's source tag.
type TradeActivity struct {
	SourceTag string
	Venue     string
	Side      string
	AmountUSD float64
	At        time.Time
}

// TradeLedger defines the secondary port for the external trade ledger.
// It is the only reward source; the allocator never infers P&L from
// local bookkeeping.
type TradeLedger interface {
	// ListActivity returns tagged trade activity on one venue inside the
	// half-open window [since, until), up to limit entries. The upper
	// bound keeps a trade that settles mid-fetch out of the current
	// window, so consecutive windows never overlap.
	ListActivity(ctx context.Context, venue string, since, until time.Time, limit int) ([]TradeActivity, error)

	// PortfolioExposure returns the current total open exposure in USD.
	// Informational only; it never drives tier computation.
	PortfolioExposure(ctx context.Context) (float64, error)
}
