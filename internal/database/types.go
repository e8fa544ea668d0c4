package database

import (
	"github.com/shopspring/decimal"

	"papertrade/internal/models"
)

type portfolioRow struct {
	UserID        string          `db:"user_id"`
	Balance       decimal.Decimal `db:"balance"`
	TotalInvested decimal.Decimal `db:"total_invested"`
	Version       int64           `db:"version"`
}

func (r portfolioRow) toModel() *models.Portfolio {
	return &models.Portfolio{
		UserID:        r.UserID,
		Balance:       r.Balance,
		TotalInvested: r.TotalInvested,
		Version:       r.Version,
		Holdings:      []models.Holding{},
	}
}

type holdingRow struct {
	Symbol    string          `db:"symbol"`
	Quantity  int64           `db:"quantity"`
	CostBasis decimal.Decimal `db:"cost_basis"`
}

func (r holdingRow) toModel() models.Holding {
	return models.Holding{Symbol: r.Symbol, Quantity: r.Quantity, CostBasis: r.CostBasis}
}
