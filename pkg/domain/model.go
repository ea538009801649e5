package domain

import (
	"time"
)

// DefaultExchange labels quotes produced by the market simulator.
const DefaultExchange = "microtrader stock exchange"

// Quote is one priced snapshot of an instrument.
type Quote struct {
	Exchange string  `json:"exchange"`
	Symbol   string  `json:"symbol"`
	Name     string  `json:"name"`
	Bid      float64 `json:"bid"`
	Ask      float64 `json:"ask"`
	Volume   int     `json:"volume"`
	Open     float64 `json:"open"`
	Shares   int     `json:"shares"`
}

// Action is the side of a trade event.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// TradeEvent is emitted once per successful buy or sell.
type TradeEvent struct {
	ID        string    `json:"id"`
	Action    Action    `json:"action"`
	Quote     Quote     `json:"quote"`
	Timestamp time.Time `json:"date"`
	Amount    int       `json:"amount"`
	Owned     int       `json:"owned"`
}

// Portfolio holds the cash and share holdings of one account.
// A missing entry in Shares means zero shares.
type Portfolio struct {
	Cash   float64        `json:"cash"`
	Shares map[string]int `json:"shares"`
}

// NewPortfolio creates an empty portfolio with the given cash.
func NewPortfolio(cash float64) Portfolio {
	return Portfolio{Cash: cash, Shares: make(map[string]int)}
}

// Amount returns the number of shares held for the instrument.
func (p Portfolio) Amount(name string) int {
	return p.Shares[name]
}

// Clone returns a deep copy safe to hand out to callers.
func (p Portfolio) Clone() Portfolio {
	shares := make(map[string]int, len(p.Shares))
	for k, v := range p.Shares {
		shares[k] = v
	}
	return Portfolio{Cash: p.Cash, Shares: shares}
}

// ServiceRecord maps a logical service name to a callable location.
type ServiceRecord struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Location     string            `json:"location"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	RegisteredAt time.Time         `json:"registered_at"`
}

// Root returns the base path advertised by HTTP-style services.
func (r ServiceRecord) Root() string {
	return r.Metadata[MetadataRoot]
}

// Well-known service names and metadata keys.
const (
	ServiceQuotes          = "quotes"
	ServiceMarketData      = "market-data"
	ServicePortfolio       = "portfolio"
	ServicePortfolioEvents = "portfolio-events"
	ServiceAudit           = "audit"

	MetadataRoot = "root"
	MetadataType = "type"
)

// OperationsView is the dashboard answer to a "recent operations" query.
// Degraded is set when the audit service could not be reached.
type OperationsView struct {
	Operations []TradeEvent `json:"operations"`
	Degraded   bool         `json:"degraded"`
	Message    string       `json:"message,omitempty"`
}
