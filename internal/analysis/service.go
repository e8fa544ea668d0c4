package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"papertrade/internal/models"
)

var (
	ErrEmptyPortfolio = errors.New("portfolio has no holdings")
	ErrInvalidInsight = errors.New("model returned a malformed analysis")
)

const (
	keyPrefix   = "portfolio-analysis"
	analysisTTL = 24 * time.Hour
)

// Generator is the opaque text-generation capability.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Cache is the TTL key-value store memoizing computed analyses. Its
// unavailability must never break the analysis itself.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
}

type Result struct {
	Analysis *models.Analysis
	Cached   bool
}

// Service memoizes AI portfolio analyses under a content-addressed key:
// the same holdings always hit the same cache entry, regardless of the
// order they were stored in.
type Service struct {
	cache Cache
	gen   Generator
	log   *logrus.Logger
}

func NewService(cache Cache, gen Generator, log *logrus.Logger) *Service {
	return &Service{cache: cache, gen: gen, log: log}
}

func (s *Service) Analyze(ctx context.Context, p *models.Portfolio) (*Result, error) {
	if len(p.Holdings) == 0 {
		return nil, ErrEmptyPortfolio
	}

	key := cacheKey(p.UserID, p.Holdings)
	if s.cache != nil {
		raw, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.log.Warnf("analysis cache get failed, treating as miss: %v", err)
		} else if ok {
			var a models.Analysis
			if err := json.Unmarshal([]byte(raw), &a); err == nil && a.Validate() == nil {
				s.log.Debugf("analysis cache hit for %s", p.UserID)
				return &Result{Analysis: &a, Cached: true}, nil
			}
			s.log.Warnf("discarding unreadable cached analysis for %s", p.UserID)
		}
	}

	raw, err := s.gen.Generate(ctx, buildPrompt(p))
	if err != nil {
		return nil, fmt.Errorf("generate analysis: %w", err)
	}

	var a models.Analysis
	if err := json.Unmarshal([]byte(stripFences(raw)), &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInsight, err)
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInsight, err)
	}

	if s.cache != nil {
		buf, _ := json.Marshal(&a)
		if err := s.cache.SetEx(ctx, key, string(buf), analysisTTL); err != nil {
			s.log.Warnf("analysis cache set failed: %v", err)
		}
	}
	return &Result{Analysis: &a, Cached: false}, nil
}

// cacheKey derives a bounded-length key from the canonical holdings
// signature: {symbol, quantity, averagePrice} sorted by symbol, so the
// key is independent of storage order and changes with any position.
func cacheKey(userID string, holdings []models.Holding) string {
	type entry struct {
		S string `json:"s"`
		Q int64  `json:"q"`
		P string `json:"p"`
	}
	entries := make([]entry, 0, len(holdings))
	for _, h := range holdings {
		entries = append(entries, entry{
			S: h.Symbol,
			Q: h.Quantity,
			P: h.AveragePrice().StringFixed(4),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].S < entries[j].S })

	sig, _ := json.Marshal(entries)
	sum := sha256.Sum256(sig)
	return fmt.Sprintf("%s:%s:%s", keyPrefix, userID, hex.EncodeToString(sum[:]))
}

func buildPrompt(p *models.Portfolio) string {
	var lines strings.Builder
	for _, h := range p.Holdings {
		fmt.Fprintf(&lines, "- %s: %d shares @ $%s\n", h.Symbol, h.Quantity, h.AveragePrice().StringFixed(2))
	}

	return fmt.Sprintf(`You are an expert financial advisor and portfolio analyst.
Analyze the following stock portfolio for a retail investor:

%s
Current Cash Balance: $%s
Total Invested: $%s

Please provide a comprehensive analysis in strict JSON format. Do not include any markdown formatting (like `+"```json"+`). Just the raw JSON object.

The JSON structure must be exactly:
{
  "summary": "Brief 1-2 sentence overall summary of the portfolio status.",
  "riskLevel": "Low" | "Medium" | "High",
  "riskAnalysis": "Detailed explanation of the risk level (approx 50 words).",
  "composition": "Analysis of what they own (approx 50 words).",
  "diversification": "Analysis of sector/asset diversification (approx 50 words).",
  "suggestions": ["Suggestion 1", "Suggestion 2", "Suggestion 3"]
}

Keep the tone professional yet encouraging.`,
		lines.String(), p.Balance.StringFixed(2), p.TotalInvested.StringFixed(2))
}

// stripFences removes markdown code-fence wrapping that models add
// despite being told not to.
func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
