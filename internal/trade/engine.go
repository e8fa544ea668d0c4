package trade

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"papertrade/internal/models"
)

var (
	ErrInvalidSymbol      = errors.New("symbol is required")
	ErrInvalidQuantity    = errors.New("quantity must be a positive integer")
	ErrInvalidPrice       = errors.New("price must be positive")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
)

// casRetries bounds the reload-and-retry loop on version conflicts.
const casRetries = 10

// LedgerStore is the durable record of portfolios and their transactions.
// ApplyTrade must persist the portfolio mutation and the transaction
// append as one atomic unit, and must reject stale versions with
// models.ErrVersionConflict.
type LedgerStore interface {
	LoadPortfolio(ctx context.Context, userID string) (*models.Portfolio, error)
	CreatePortfolio(ctx context.Context, userID string, startingBalance decimal.Decimal) (*models.Portfolio, error)
	ApplyTrade(ctx context.Context, p *models.Portfolio, txn *models.Transaction) error
	ListTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error)
}

// Engine validates and applies buy/sell mutations. Portfolios are
// provisioned lazily with the default starting balance on first access,
// so a missing portfolio is never a caller-visible error.
type Engine struct {
	store           LedgerStore
	startingBalance decimal.Decimal
	log             *logrus.Logger
}

func NewEngine(store LedgerStore, startingBalance decimal.Decimal, log *logrus.Logger) *Engine {
	return &Engine{store: store, startingBalance: startingBalance, log: log}
}

// GetPortfolio loads the user's portfolio, creating a fresh one with the
// default starting balance on first access.
func (e *Engine) GetPortfolio(ctx context.Context, userID string) (*models.Portfolio, error) {
	p, err := e.store.LoadPortfolio(ctx, userID)
	if errors.Is(err, models.ErrPortfolioNotFound) {
		return e.store.CreatePortfolio(ctx, userID, e.startingBalance)
	}
	return p, err
}

func (e *Engine) Buy(ctx context.Context, userID, symbol string, quantity int64, price decimal.Decimal) (*models.Transaction, error) {
	symbol, err := validateTrade(symbol, quantity, price)
	if err != nil {
		return nil, err
	}

	cost := price.Mul(decimal.NewFromInt(quantity))
	for attempt := 0; attempt < casRetries; attempt++ {
		p, err := e.GetPortfolio(ctx, userID)
		if err != nil {
			return nil, err
		}
		if p.Balance.LessThan(cost) {
			return nil, ErrInsufficientFunds
		}

		p.Balance = p.Balance.Sub(cost)
		p.TotalInvested = p.TotalInvested.Add(cost)
		if h := p.Holding(symbol); h != nil {
			h.Quantity += quantity
			h.CostBasis = h.CostBasis.Add(cost)
		} else {
			p.Holdings = append(p.Holdings, models.Holding{
				Symbol:    symbol,
				Quantity:  quantity,
				CostBasis: cost,
			})
		}

		txn := newTransaction(userID, symbol, models.TradeBuy, quantity, price, cost)
		if err := e.store.ApplyTrade(ctx, p, txn); err != nil {
			if errors.Is(err, models.ErrVersionConflict) {
				e.log.Debugf("buy %s/%s: version conflict, retrying", userID, symbol)
				backoff(attempt)
				continue
			}
			return nil, fmt.Errorf("apply buy: %w", err)
		}
		return txn, nil
	}
	return nil, fmt.Errorf("buy %s/%s: gave up after %d version conflicts", userID, symbol, casRetries)
}

func (e *Engine) Sell(ctx context.Context, userID, symbol string, quantity int64, price decimal.Decimal) (*models.Transaction, error) {
	symbol, err := validateTrade(symbol, quantity, price)
	if err != nil {
		return nil, err
	}

	proceeds := price.Mul(decimal.NewFromInt(quantity))
	for attempt := 0; attempt < casRetries; attempt++ {
		p, err := e.GetPortfolio(ctx, userID)
		if err != nil {
			return nil, err
		}
		h := p.Holding(symbol)
		if h == nil || h.Quantity < quantity {
			return nil, ErrInsufficientShares
		}

		// Remove a proportional slice of the cost basis. Selling the
		// whole position takes the full basis, so totalInvested lands
		// back on zero exactly.
		soldBasis := h.CostBasis
		if quantity < h.Quantity {
			soldBasis = h.CostBasis.Mul(decimal.NewFromInt(quantity)).Div(decimal.NewFromInt(h.Quantity))
		}

		p.Balance = p.Balance.Add(proceeds)
		p.TotalInvested = p.TotalInvested.Sub(soldBasis)
		h.Quantity -= quantity
		h.CostBasis = h.CostBasis.Sub(soldBasis)
		if h.Quantity == 0 {
			p.RemoveHolding(symbol)
		}

		txn := newTransaction(userID, symbol, models.TradeSell, quantity, price, proceeds)
		if err := e.store.ApplyTrade(ctx, p, txn); err != nil {
			if errors.Is(err, models.ErrVersionConflict) {
				e.log.Debugf("sell %s/%s: version conflict, retrying", userID, symbol)
				backoff(attempt)
				continue
			}
			return nil, fmt.Errorf("apply sell: %w", err)
		}
		return txn, nil
	}
	return nil, fmt.Errorf("sell %s/%s: gave up after %d version conflicts", userID, symbol, casRetries)
}

func (e *Engine) TransactionHistory(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	return e.store.ListTransactions(ctx, userID, limit)
}

func backoff(attempt int) {
	time.Sleep(time.Duration(attempt+1) * 2 * time.Millisecond)
}

func validateTrade(symbol string, quantity int64, price decimal.Decimal) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", ErrInvalidSymbol
	}
	if quantity <= 0 {
		return "", ErrInvalidQuantity
	}
	if price.Sign() <= 0 {
		return "", ErrInvalidPrice
	}
	return symbol, nil
}

func newTransaction(userID, symbol, tradeType string, quantity int64, price, total decimal.Decimal) *models.Transaction {
	return &models.Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Symbol:      symbol,
		Type:        tradeType,
		Quantity:    quantity,
		Price:       price,
		TotalAmount: total,
		Date:        time.Now().UTC(),
	}
}
