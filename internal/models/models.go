package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	TradeBuy  = "BUY"
	TradeSell = "SELL"
)

// Store-level sentinels shared by every LedgerStore implementation.
var (
	ErrPortfolioNotFound = errors.New("portfolio not found")
	ErrVersionConflict   = errors.New("portfolio version conflict")
)

// Holding is one position inside a portfolio. The exact cost basis is the
// stored value; the average price is derived from it so that closing a
// position returns the invested amount to zero without decimal drift.
type Holding struct {
	Symbol    string          `db:"symbol" json:"symbol"`
	Quantity  int64           `db:"quantity" json:"quantity"`
	CostBasis decimal.Decimal `db:"cost_basis" json:"costBasis"`
}

// AveragePrice is the weighted average purchase price per share.
func (h Holding) AveragePrice() decimal.Decimal {
	if h.Quantity <= 0 {
		return decimal.Zero
	}
	return h.CostBasis.Div(decimal.NewFromInt(h.Quantity))
}

type Portfolio struct {
	UserID        string          `db:"user_id" json:"userId"`
	Balance       decimal.Decimal `db:"balance" json:"balance"`
	TotalInvested decimal.Decimal `db:"total_invested" json:"totalInvested"`
	Version       int64           `db:"version" json:"-"`
	Holdings      []Holding       `json:"holdings"`
}

// Holding returns a pointer into p.Holdings for symbol, or nil.
func (p *Portfolio) Holding(symbol string) *Holding {
	for i := range p.Holdings {
		if p.Holdings[i].Symbol == symbol {
			return &p.Holdings[i]
		}
	}
	return nil
}

func (p *Portfolio) RemoveHolding(symbol string) {
	for i := range p.Holdings {
		if p.Holdings[i].Symbol == symbol {
			p.Holdings = append(p.Holdings[:i], p.Holdings[i+1:]...)
			return
		}
	}
}

func (p *Portfolio) Clone() *Portfolio {
	cp := *p
	cp.Holdings = make([]Holding, len(p.Holdings))
	copy(cp.Holdings, p.Holdings)
	return &cp
}

// Transaction is the immutable record of one accepted trade.
type Transaction struct {
	ID          string          `db:"id" json:"id"`
	UserID      string          `db:"user_id" json:"userId"`
	Symbol      string          `db:"symbol" json:"symbol"`
	Type        string          `db:"type" json:"type"`
	Quantity    int64           `db:"quantity" json:"quantity"`
	Price       decimal.Decimal `db:"price" json:"price"`
	TotalAmount decimal.Decimal `db:"total_amount" json:"totalAmount"`
	Date        time.Time       `db:"date" json:"date"`
}

// EnrichedHolding is a holding merged with a live quote. Metrics are
// float64 because quotes arrive as floats and the derived percentages
// are display values, not ledger state.
type EnrichedHolding struct {
	Symbol                string  `json:"symbol"`
	Name                  string  `json:"name"`
	Quantity              int64   `json:"quantity"`
	AveragePrice          float64 `json:"averagePrice"`
	CurrentPrice          float64 `json:"currentPrice"`
	CurrentValue          float64 `json:"currentValue"`
	UnrealizedGain        float64 `json:"unrealizedGain"`
	UnrealizedGainPercent float64 `json:"unrealizedGainPercent"`
	ChangePercent         float64 `json:"changePercent"`

	// DayChangeValue is this holding's contribution to the portfolio
	// day change, already clamped to a finite value.
	DayChangeValue float64 `json:"dayChangeValue"`
}

type EnrichedPortfolio struct {
	UserID           string            `json:"userId"`
	Balance          float64           `json:"balance"`
	TotalInvested    float64           `json:"totalInvested"`
	Holdings         []EnrichedHolding `json:"holdings"`
	TotalEquity      float64           `json:"totalEquity"`
	TotalValue       float64           `json:"totalValue"`
	DayChange        float64           `json:"dayChange"`
	DayChangePercent float64           `json:"dayChangePercent"`
}

// Analysis is the fixed schema the insight model must produce.
type Analysis struct {
	Summary         string   `json:"summary"`
	RiskLevel       string   `json:"riskLevel"`
	RiskAnalysis    string   `json:"riskAnalysis"`
	Composition     string   `json:"composition"`
	Diversification string   `json:"diversification"`
	Suggestions     []string `json:"suggestions"`
}

func (a *Analysis) Validate() error {
	switch a.RiskLevel {
	case "Low", "Medium", "High":
	default:
		return fmt.Errorf("invalid riskLevel %q", a.RiskLevel)
	}
	if a.Summary == "" {
		return errors.New("missing summary")
	}
	if a.RiskAnalysis == "" {
		return errors.New("missing riskAnalysis")
	}
	if a.Composition == "" {
		return errors.New("missing composition")
	}
	if a.Diversification == "" {
		return errors.New("missing diversification")
	}
	if len(a.Suggestions) == 0 {
		return errors.New("missing suggestions")
	}
	return nil
}
