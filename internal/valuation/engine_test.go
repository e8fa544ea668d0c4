package valuation

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"papertrade/internal/models"
	"papertrade/internal/quotes"
)

type stubProvider struct {
	quotes map[string]quotes.Quote
	errs   map[string]error
}

func (s *stubProvider) GetQuote(ctx context.Context, symbol string) (quotes.Quote, error) {
	if err, ok := s.errs[symbol]; ok {
		return quotes.Quote{}, err
	}
	if q, ok := s.quotes[symbol]; ok {
		return q, nil
	}
	return quotes.Quote{}, quotes.ErrNotFound
}

func newTestValuation(p QuoteProvider) *Engine {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewEngine(p, logger)
}

func holding(symbol string, qty int64, avg string) models.Holding {
	price := decimal.RequireFromString(avg)
	return models.Holding{
		Symbol:    symbol,
		Quantity:  qty,
		CostBasis: price.Mul(decimal.NewFromInt(qty)),
	}
}

func TestEnrichEmptyPortfolio(t *testing.T) {
	e := newTestValuation(&stubProvider{})
	p := &models.Portfolio{
		UserID:  "u1",
		Balance: decimal.RequireFromString("1234.50"),
	}

	out := e.Enrich(context.Background(), p)
	require.InDelta(t, 1234.50, out.TotalValue, 1e-9)
	require.Zero(t, out.TotalEquity)
	require.Zero(t, out.DayChange)
	require.Zero(t, out.DayChangePercent)
	require.Empty(t, out.Holdings)
}

func TestEnrichSingleHolding(t *testing.T) {
	provider := &stubProvider{quotes: map[string]quotes.Quote{
		"AAPL": {CurrentPrice: 110, ChangePercent: 10, Company: "Apple Inc"},
	}}
	e := newTestValuation(provider)
	p := &models.Portfolio{
		UserID:   "u1",
		Balance:  decimal.Zero,
		Holdings: []models.Holding{holding("AAPL", 10, "100")},
	}

	out := e.Enrich(context.Background(), p)
	require.Len(t, out.Holdings, 1)
	h := out.Holdings[0]
	require.Equal(t, "Apple Inc", h.Name)
	require.InDelta(t, 1100, h.CurrentValue, 1e-9)
	require.InDelta(t, 100, h.UnrealizedGain, 1e-9)
	require.InDelta(t, 10, h.UnrealizedGainPercent, 1e-9)
	// prevPrice = 110 / 1.10 = 100, so today's move is 10 per share.
	require.InDelta(t, 100, h.DayChangeValue, 1e-9)

	require.InDelta(t, 1100, out.TotalEquity, 1e-9)
	require.InDelta(t, 1100, out.TotalValue, 1e-9)
	require.InDelta(t, 100, out.DayChange, 1e-9)
	// 100 / (1100 - 100) * 100
	require.InDelta(t, 10, out.DayChangePercent, 1e-9)
}

func TestEnrichDegradesPerHolding(t *testing.T) {
	provider := &stubProvider{
		quotes: map[string]quotes.Quote{
			"AAPL": {CurrentPrice: 110, ChangePercent: 10, Company: "Apple Inc"},
		},
		errs: map[string]error{
			"MSFT": fmt.Errorf("%w: boom", quotes.ErrUnavailable),
		},
	}
	e := newTestValuation(provider)
	p := &models.Portfolio{
		UserID:  "u1",
		Balance: decimal.NewFromInt(500),
		Holdings: []models.Holding{
			holding("AAPL", 10, "100"),
			holding("MSFT", 5, "200"),
		},
	}

	out := e.Enrich(context.Background(), p)
	require.Len(t, out.Holdings, 2)

	var msft models.EnrichedHolding
	for _, h := range out.Holdings {
		if h.Symbol == "MSFT" {
			msft = h
		}
	}
	// Degraded holding falls back to its cost basis with zero movement.
	require.Equal(t, "MSFT", msft.Name)
	require.InDelta(t, 200, msft.CurrentPrice, 1e-9)
	require.InDelta(t, 1000, msft.CurrentValue, 1e-9)
	require.Zero(t, msft.UnrealizedGain)
	require.Zero(t, msft.ChangePercent)
	require.Zero(t, msft.DayChangeValue)

	// The healthy holding still contributes normally.
	require.InDelta(t, 2100, out.TotalEquity, 1e-9)
	require.InDelta(t, 2600, out.TotalValue, 1e-9)
	require.InDelta(t, 100, out.DayChange, 1e-9)
}

func TestEnrichZeroQuoteYieldsZeroDayChangePercent(t *testing.T) {
	// A zero-price quote with no cash produces a zero denominator; the
	// percent must clamp to 0 instead of going NaN.
	provider := &stubProvider{quotes: map[string]quotes.Quote{
		"AAPL": {CurrentPrice: 0, ChangePercent: 0, Company: "Apple Inc"},
	}}
	e := newTestValuation(provider)
	p := &models.Portfolio{
		UserID:   "u1",
		Balance:  decimal.Zero,
		Holdings: []models.Holding{holding("AAPL", 1, "100")},
	}

	out := e.Enrich(context.Background(), p)
	require.Zero(t, out.TotalValue)
	require.Zero(t, out.DayChange)
	require.Zero(t, out.DayChangePercent)
}

func TestEnrichTotalWipeoutClampsContribution(t *testing.T) {
	// changePercent of -100 makes the previous-price reconstruction
	// divide by zero; the holding's day contribution clamps to 0.
	provider := &stubProvider{quotes: map[string]quotes.Quote{
		"AAPL": {CurrentPrice: 50, ChangePercent: -100, Company: "Apple Inc"},
	}}
	e := newTestValuation(provider)
	p := &models.Portfolio{
		UserID:   "u1",
		Balance:  decimal.NewFromInt(100),
		Holdings: []models.Holding{holding("AAPL", 2, "100")},
	}

	out := e.Enrich(context.Background(), p)
	require.InDelta(t, 100, out.Holdings[0].CurrentValue, 1e-9)
	require.Zero(t, out.Holdings[0].DayChangeValue)
	require.Zero(t, out.DayChange)
	require.Zero(t, out.DayChangePercent)
}
