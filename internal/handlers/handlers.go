package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"papertrade/internal/analysis"
	"papertrade/internal/models"
	"papertrade/internal/trade"
	"papertrade/internal/valuation"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
	analyzeTimeout      = 60 * time.Second
)

type Handler struct {
	engine    *trade.Engine
	valuation *valuation.Engine
	analysis  *analysis.Service
	log       *logrus.Logger
}

func NewHandler(engine *trade.Engine, val *valuation.Engine, an *analysis.Service, log *logrus.Logger) *Handler {
	return &Handler{engine: engine, valuation: val, analysis: an, log: log}
}

// TradeRequest carries price as a decimal string so amounts survive the
// JSON round trip without float truncation.
type TradeRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	Symbol   string `json:"symbol" binding:"required"`
	Quantity int64  `json:"quantity" binding:"required"`
	Price    string `json:"price" binding:"required"`
}

func (h *Handler) PostBuy(c *gin.Context) {
	h.postTrade(c, h.engine.Buy, "bought")
}

func (h *Handler) PostSell(c *gin.Context) {
	h.postTrade(c, h.engine.Sell, "sold")
}

type tradeFn func(ctx context.Context, userID, symbol string, quantity int64, price decimal.Decimal) (*models.Transaction, error)

func (h *Handler) postTrade(c *gin.Context, apply tradeFn, verb string) {
	var req TradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnf("invalid trade body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		h.log.Warnf("invalid price %q: %v", req.Price, err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid price format"})
		return
	}

	txn, err := apply(c.Request.Context(), req.UserID, req.Symbol, req.Quantity, price)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"success":        true,
			"message":        fmt.Sprintf("Successfully %s %d shares of %s", verb, req.Quantity, txn.Symbol),
			"transaction_id": txn.ID,
		})
	case errors.Is(err, trade.ErrInsufficientFunds):
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "Insufficient funds"})
	case errors.Is(err, trade.ErrInsufficientShares):
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "Insufficient shares"})
	case errors.Is(err, trade.ErrInvalidSymbol),
		errors.Is(err, trade.ErrInvalidQuantity),
		errors.Is(err, trade.ErrInvalidPrice):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
	default:
		h.log.Errorf("trade failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to execute order"})
	}
}

func (h *Handler) GetPortfolio(c *gin.Context) {
	userID := c.Param("userId")
	p, err := h.engine.GetPortfolio(c.Request.Context(), userID)
	if err != nil {
		h.log.Errorf("get portfolio failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, h.valuation.Enrich(c.Request.Context(), p))
}

func (h *Handler) GetTransactions(c *gin.Context) {
	userID := c.Param("userId")
	limit := defaultHistoryLimit
	if v := c.Query("limit"); v != "" {
		if iv, err := strconv.Atoi(v); err == nil && iv > 0 {
			limit = iv
		}
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := h.engine.TransactionHistory(c.Request.Context(), userID, limit)
	if err != nil {
		h.log.Errorf("list transactions failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *Handler) AnalyzePortfolio(c *gin.Context) {
	if h.analysis == nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "Portfolio analysis is not configured"})
		return
	}
	userID := c.Param("userId")

	p, err := h.engine.GetPortfolio(c.Request.Context(), userID)
	if err != nil {
		h.log.Errorf("get portfolio failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "query failed"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), analyzeTimeout)
	defer cancel()
	res, err := h.analysis.Analyze(ctx, p)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true, "analysis": res.Analysis, "cached": res.Cached})
	case errors.Is(err, analysis.ErrEmptyPortfolio):
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "Portfolio not found or empty. Add some stocks to get an analysis."})
	default:
		h.log.Errorf("analyze portfolio failed: %v", err)
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "Failed to generate analysis. Please try again later."})
	}
}
