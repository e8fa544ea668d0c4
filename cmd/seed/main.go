// Seeds a demo portfolio so the API has something to show on a fresh
// database. Safe to re-run: buys stack onto the existing positions.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"papertrade/internal/database"
	"papertrade/internal/trade"
)

func main() {
	godotenv.Load()
	dbURL := os.Getenv("POSTGRES_URL")
	if dbURL == "" {
		log.Fatal("POSTGRES_URL is required")
	}

	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer db.Close()

	logger := logrus.New()
	repo := database.New(db, logger)
	engine := trade.NewEngine(repo, decimal.NewFromInt(100000), logger)

	ctx := context.Background()
	userID := "demo-user"

	buys := []struct {
		symbol   string
		quantity int64
		price    string
	}{
		{"AAPL", 10, "150.00"},
		{"MSFT", 5, "310.50"},
		{"NVDA", 3, "480.25"},
	}

	for _, b := range buys {
		price, _ := decimal.NewFromString(b.price)
		txn, err := engine.Buy(ctx, userID, b.symbol, b.quantity, price)
		if err != nil {
			log.Fatalf("seed buy %s failed: %v", b.symbol, err)
		}
		fmt.Printf("bought %d %s @ %s (transaction %s)\n", b.quantity, b.symbol, b.price, txn.ID)
	}

	p, err := engine.GetPortfolio(ctx, userID)
	if err != nil {
		log.Fatalf("load portfolio failed: %v", err)
	}
	fmt.Printf("demo portfolio ready: balance %s, invested %s, %d holdings\n",
		p.Balance.StringFixed(2), p.TotalInvested.StringFixed(2), len(p.Holdings))
}
