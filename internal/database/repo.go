package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"papertrade/internal/models"
)

// Repo is the Postgres-backed ledger store. Portfolio writes use an
// optimistic version check so concurrent trades against the same user
// never lose updates; the holding upsert and the transaction append
// commit in the same database transaction as the balance change.
type Repo struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func New(db *sqlx.DB, log *logrus.Logger) *Repo {
	return &Repo{db: db, log: log}
}

func (r *Repo) LoadPortfolio(ctx context.Context, userID string) (*models.Portfolio, error) {
	var row portfolioRow
	err := r.db.GetContext(ctx, &row,
		`SELECT user_id, balance, total_invested, version FROM portfolios WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPortfolioNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load portfolio: %w", err)
	}

	p := row.toModel()
	rows, err := r.db.QueryxContext(ctx,
		`SELECT symbol, quantity, cost_basis FROM holdings WHERE user_id = $1 ORDER BY symbol`, userID)
	if err != nil {
		return nil, fmt.Errorf("load holdings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var h holdingRow
		if err := rows.StructScan(&h); err != nil {
			r.log.Warnf("scan holding failed: %v", err)
			continue
		}
		p.Holdings = append(p.Holdings, h.toModel())
	}
	return p, nil
}

func (r *Repo) CreatePortfolio(ctx context.Context, userID string, startingBalance decimal.Decimal) (*models.Portfolio, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO portfolios (user_id, balance, total_invested, version)
		 VALUES ($1, $2::numeric, 0, 1)
		 ON CONFLICT (user_id) DO NOTHING`, userID, startingBalance.String())
	if err != nil {
		return nil, fmt.Errorf("create portfolio: %w", err)
	}
	// Reload to cover the concurrent-create race: whoever lost the
	// insert still gets the winner's row.
	return r.LoadPortfolio(ctx, userID)
}

// ApplyTrade persists the already-mutated portfolio state together with
// its transaction record. Returns models.ErrVersionConflict when the
// stored version no longer matches p.Version.
func (r *Repo) ApplyTrade(ctx context.Context, p *models.Portfolio, txn *models.Transaction) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin trade tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE portfolios
		 SET balance = $2::numeric, total_invested = $3::numeric, version = version + 1, updated_at = now()
		 WHERE user_id = $1 AND version = $4`,
		p.UserID, p.Balance.String(), p.TotalInvested.String(), p.Version)
	if err != nil {
		return fmt.Errorf("update portfolio: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update portfolio: %w", err)
	}
	if n == 0 {
		return models.ErrVersionConflict
	}

	if h := p.Holding(txn.Symbol); h != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO holdings (user_id, symbol, quantity, cost_basis)
			 VALUES ($1, $2, $3, $4::numeric)
			 ON CONFLICT (user_id, symbol)
			 DO UPDATE SET quantity = EXCLUDED.quantity, cost_basis = EXCLUDED.cost_basis`,
			p.UserID, h.Symbol, h.Quantity, h.CostBasis.String())
	} else {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM holdings WHERE user_id = $1 AND symbol = $2`, p.UserID, txn.Symbol)
	}
	if err != nil {
		return fmt.Errorf("write holding: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO transactions (id, user_id, symbol, type, quantity, price, total_amount, date)
		 VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8)`,
		txn.ID, txn.UserID, txn.Symbol, txn.Type, txn.Quantity,
		txn.Price.String(), txn.TotalAmount.String(), txn.Date)
	if err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit trade: %w", err)
	}
	p.Version++
	return nil
}

func (r *Repo) ListTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT id, user_id, symbol, type, quantity, price, total_amount, date
		 FROM transactions WHERE user_id = $1 ORDER BY date DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	res := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		if err := rows.StructScan(&t); err != nil {
			r.log.Warnf("scan transaction failed: %v", err)
			continue
		}
		res = append(res, t)
	}
	return res, nil
}
