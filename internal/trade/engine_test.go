package trade

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"papertrade/internal/database"
	"papertrade/internal/models"
)

func newTestEngine() *Engine {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewEngine(database.NewMemory(), decimal.NewFromInt(100000), logger)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestBuyCreatesHolding(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	txn, err := e.Buy(ctx, "u1", "AAPL", 10, dec("150"))
	require.NoError(t, err)
	require.Equal(t, models.TradeBuy, txn.Type)
	require.True(t, txn.TotalAmount.Equal(dec("1500")), "totalAmount = %s", txn.TotalAmount)

	p, err := e.GetPortfolio(ctx, "u1")
	require.NoError(t, err)
	require.True(t, p.Balance.Equal(dec("98500")), "balance = %s", p.Balance)
	require.True(t, p.TotalInvested.Equal(dec("1500")))
	require.Len(t, p.Holdings, 1)
	require.Equal(t, int64(10), p.Holdings[0].Quantity)
	require.True(t, p.Holdings[0].AveragePrice().Equal(dec("150")))
}

func TestBuyBlendsAveragePrice(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	_, err := e.Buy(ctx, "u1", "AAPL", 10, dec("150"))
	require.NoError(t, err)
	_, err = e.Buy(ctx, "u1", "AAPL", 5, dec("160"))
	require.NoError(t, err)

	p, err := e.GetPortfolio(ctx, "u1")
	require.NoError(t, err)
	require.True(t, p.Balance.Equal(dec("97700")), "balance = %s", p.Balance)
	require.Len(t, p.Holdings, 1)
	h := p.Holdings[0]
	require.Equal(t, int64(15), h.Quantity)
	// (10*150 + 5*160) / 15
	require.Equal(t, "153.33", h.AveragePrice().StringFixed(2))
	require.True(t, h.CostBasis.Equal(dec("2300")))
}

func TestSellClosesPositionExactly(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	_, err := e.Buy(ctx, "u1", "AAPL", 10, dec("150"))
	require.NoError(t, err)
	_, err = e.Buy(ctx, "u1", "AAPL", 5, dec("160"))
	require.NoError(t, err)

	txn, err := e.Sell(ctx, "u1", "AAPL", 15, dec("170"))
	require.NoError(t, err)
	require.True(t, txn.TotalAmount.Equal(dec("2550")))

	p, err := e.GetPortfolio(ctx, "u1")
	require.NoError(t, err)
	require.True(t, p.Balance.Equal(dec("100250")), "balance = %s", p.Balance)
	require.Empty(t, p.Holdings)
	// Full liquidation must bring invested back to zero with no residue,
	// even though the average price was a repeating decimal.
	require.True(t, p.TotalInvested.IsZero(), "totalInvested = %s", p.TotalInvested)
}

func TestSellPartialKeepsAverage(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	_, err := e.Buy(ctx, "u1", "AAPL", 10, dec("100"))
	require.NoError(t, err)
	_, err = e.Sell(ctx, "u1", "AAPL", 4, dec("150"))
	require.NoError(t, err)

	p, err := e.GetPortfolio(ctx, "u1")
	require.NoError(t, err)
	h := p.Holding("AAPL")
	require.NotNil(t, h)
	require.Equal(t, int64(6), h.Quantity)
	// Average price is untouched by sells; invested dropped by 4*100.
	require.True(t, h.AveragePrice().Equal(dec("100")))
	require.True(t, p.TotalInvested.Equal(dec("600")), "totalInvested = %s", p.TotalInvested)
	require.True(t, p.Balance.Equal(dec("99600")), "balance = %s", p.Balance)
}

func TestSellWithoutSharesRejected(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	_, err := e.Sell(ctx, "u1", "MSFT", 1, dec("100"))
	require.ErrorIs(t, err, ErrInsufficientShares)

	// State is untouched besides the lazily provisioned portfolio.
	p, err := e.GetPortfolio(ctx, "u1")
	require.NoError(t, err)
	require.True(t, p.Balance.Equal(dec("100000")))
	require.Empty(t, p.Holdings)

	history, err := e.TransactionHistory(ctx, "u1", 50)
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestSellMoreThanHeldRejected(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	_, err := e.Buy(ctx, "u1", "AAPL", 3, dec("100"))
	require.NoError(t, err)

	_, err = e.Sell(ctx, "u1", "AAPL", 4, dec("100"))
	require.ErrorIs(t, err, ErrInsufficientShares)

	p, err := e.GetPortfolio(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(3), p.Holding("AAPL").Quantity)
	require.True(t, p.Balance.Equal(dec("99700")))
}

func TestBuyInsufficientFunds(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	_, err := e.Buy(ctx, "u1", "AAPL", 1000, dec("200"))
	require.ErrorIs(t, err, ErrInsufficientFunds)

	p, err := e.GetPortfolio(ctx, "u1")
	require.NoError(t, err)
	require.True(t, p.Balance.Equal(dec("100000")))
	require.Empty(t, p.Holdings)

	history, err := e.TransactionHistory(ctx, "u1", 50)
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestTradeValidation(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	_, err := e.Buy(ctx, "u1", "AAPL", 0, dec("10"))
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = e.Buy(ctx, "u1", "AAPL", -5, dec("10"))
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = e.Buy(ctx, "u1", "AAPL", 1, decimal.Zero)
	require.ErrorIs(t, err, ErrInvalidPrice)
	_, err = e.Sell(ctx, "u1", "AAPL", 1, dec("-10"))
	require.ErrorIs(t, err, ErrInvalidPrice)
	_, err = e.Buy(ctx, "u1", "  ", 1, dec("10"))
	require.ErrorIs(t, err, ErrInvalidSymbol)
}

func TestSymbolNormalized(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	_, err := e.Buy(ctx, "u1", " aapl ", 1, dec("10"))
	require.NoError(t, err)
	_, err = e.Buy(ctx, "u1", "AAPL", 1, dec("10"))
	require.NoError(t, err)

	p, err := e.GetPortfolio(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, p.Holdings, 1)
	require.Equal(t, "AAPL", p.Holdings[0].Symbol)
	require.Equal(t, int64(2), p.Holdings[0].Quantity)
}

func TestTransactionHistoryMostRecentFirst(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	_, err := e.Buy(ctx, "u1", "AAPL", 2, dec("100"))
	require.NoError(t, err)
	_, err = e.Sell(ctx, "u1", "AAPL", 1, dec("110"))
	require.NoError(t, err)

	history, err := e.TransactionHistory(ctx, "u1", 50)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, models.TradeSell, history[0].Type)
	require.Equal(t, models.TradeBuy, history[1].Type)
	require.True(t, history[0].TotalAmount.Equal(dec("110")))
}

func TestConcurrentBuysNoLostUpdates(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	const workers = 5
	const buysPerWorker = 4

	var wg sync.WaitGroup
	errs := make(chan error, workers*buysPerWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < buysPerWorker; i++ {
				if _, err := e.Buy(ctx, "u1", "AAPL", 1, dec("10")); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent buy failed: %v", err)
	}

	p, err := e.GetPortfolio(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(workers*buysPerWorker), p.Holding("AAPL").Quantity)
	require.True(t, p.Balance.Equal(dec("99800")), "balance = %s", p.Balance)

	history, err := e.TransactionHistory(ctx, "u1", 100)
	require.NoError(t, err)
	require.Len(t, history, workers*buysPerWorker)
}
