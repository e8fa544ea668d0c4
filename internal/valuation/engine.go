package valuation

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"papertrade/internal/models"
	"papertrade/internal/quotes"
)

// QuoteProvider supplies the live price view for one symbol.
type QuoteProvider interface {
	GetQuote(ctx context.Context, symbol string) (quotes.Quote, error)
}

const defaultQuoteTimeout = 5 * time.Second

// Engine merges stored holdings with live quotes into per-holding and
// aggregate metrics. Quote failures degrade the affected holding to its
// cost basis; they never fail the whole enrichment.
type Engine struct {
	provider QuoteProvider
	timeout  time.Duration
	log      *logrus.Logger
}

func NewEngine(provider QuoteProvider, log *logrus.Logger) *Engine {
	return &Engine{provider: provider, timeout: defaultQuoteTimeout, log: log}
}

func (e *Engine) Enrich(ctx context.Context, p *models.Portfolio) *models.EnrichedPortfolio {
	balance, _ := p.Balance.Float64()
	invested, _ := p.TotalInvested.Float64()
	out := &models.EnrichedPortfolio{
		UserID:        p.UserID,
		Balance:       balance,
		TotalInvested: invested,
		Holdings:      []models.EnrichedHolding{},
	}
	if len(p.Holdings) == 0 {
		out.TotalValue = balance
		return out
	}

	enriched := make([]models.EnrichedHolding, len(p.Holdings))
	var wg sync.WaitGroup
	for i, h := range p.Holdings {
		wg.Add(1)
		go func(i int, h models.Holding) {
			defer wg.Done()
			enriched[i] = e.enrichHolding(ctx, h)
		}(i, h)
	}
	wg.Wait()

	for _, eh := range enriched {
		out.TotalEquity += eh.CurrentValue
		out.DayChange += eh.DayChangeValue
	}
	out.Holdings = enriched
	out.TotalValue = out.Balance + out.TotalEquity

	// Day change percent is measured against the start-of-day value
	// (current total minus today's move). Forced to 0 when that
	// denominator is zero or the division is not finite.
	if den := out.TotalValue - out.DayChange; den != 0 {
		out.DayChangePercent = finiteOrZero(out.DayChange / den * 100)
	}
	return out
}

func (e *Engine) enrichHolding(ctx context.Context, h models.Holding) models.EnrichedHolding {
	avg, _ := h.AveragePrice().Float64()
	costBasis, _ := h.CostBasis.Float64()
	qty := float64(h.Quantity)

	qctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	q, err := e.provider.GetQuote(qctx, h.Symbol)
	if err != nil {
		e.log.Warnf("quote for %s unavailable, falling back to cost basis: %v", h.Symbol, err)
		return models.EnrichedHolding{
			Symbol:       h.Symbol,
			Name:         h.Symbol,
			Quantity:     h.Quantity,
			AveragePrice: avg,
			CurrentPrice: avg,
			CurrentValue: avg * qty,
		}
	}

	currentValue := q.CurrentPrice * qty
	gain := currentValue - costBasis
	gainPercent := 0.0
	if costBasis != 0 {
		gainPercent = gain / costBasis * 100
	}

	// Today's move per share, reconstructed from the quoted percent
	// change: prev = current / (1 + pct/100).
	prevPrice := q.CurrentPrice / (1 + q.ChangePercent/100)
	dayChange := finiteOrZero((q.CurrentPrice - prevPrice) * qty)

	return models.EnrichedHolding{
		Symbol:                h.Symbol,
		Name:                  q.Company,
		Quantity:              h.Quantity,
		AveragePrice:          avg,
		CurrentPrice:          q.CurrentPrice,
		CurrentValue:          currentValue,
		UnrealizedGain:        gain,
		UnrealizedGainPercent: gainPercent,
		ChangePercent:         q.ChangePercent,
		DayChangeValue:        dayChange,
	}
}

func finiteOrZero(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
