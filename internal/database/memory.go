package database

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"papertrade/internal/models"
)

// MemoryRepo is an in-memory ledger store with the same compare-and-set
// semantics as the Postgres repo. It backs unit tests and keyless local
// runs; everything it hands out is a deep copy.
type MemoryRepo struct {
	mu           sync.Mutex
	portfolios   map[string]*models.Portfolio
	transactions map[string][]models.Transaction
}

func NewMemory() *MemoryRepo {
	return &MemoryRepo{
		portfolios:   map[string]*models.Portfolio{},
		transactions: map[string][]models.Transaction{},
	}
}

func (m *MemoryRepo) LoadPortfolio(ctx context.Context, userID string) (*models.Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.portfolios[userID]
	if !ok {
		return nil, models.ErrPortfolioNotFound
	}
	return p.Clone(), nil
}

func (m *MemoryRepo) CreatePortfolio(ctx context.Context, userID string, startingBalance decimal.Decimal) (*models.Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.portfolios[userID]; ok {
		return p.Clone(), nil
	}
	p := &models.Portfolio{
		UserID:        userID,
		Balance:       startingBalance,
		TotalInvested: decimal.Zero,
		Version:       1,
		Holdings:      []models.Holding{},
	}
	m.portfolios[userID] = p
	return p.Clone(), nil
}

func (m *MemoryRepo) ApplyTrade(ctx context.Context, p *models.Portfolio, txn *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.portfolios[p.UserID]
	if !ok {
		return models.ErrPortfolioNotFound
	}
	if stored.Version != p.Version {
		return models.ErrVersionConflict
	}
	next := p.Clone()
	next.Version++
	m.portfolios[p.UserID] = next
	m.transactions[p.UserID] = append(m.transactions[p.UserID], *txn)
	p.Version++
	return nil
}

func (m *MemoryRepo) ListTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.transactions[userID]
	res := []models.Transaction{}
	for i := len(all) - 1; i >= 0 && len(res) < limit; i-- {
		res = append(res, all[i])
	}
	return res, nil
}
