// ==============================================================================
// FOREX RATE PROVIDERS - internal/forex/providers.go
// ==============================================================================
package forex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"dotpay/internal/domain"
	"dotpay/pkg/config"
	"dotpay/pkg/logger"

	"github.com/shopspring/decimal"
)

// RateProvider returns how many units of local currency buy one token.
type RateProvider interface {
	Name() string
	GetRate(ctx context.Context, local, token string) (*domain.ExchangeRate, error)
}

// StaticRateProvider serves a fixed, operator-configured rate.
type StaticRateProvider struct {
	rate decimal.Decimal
}

func NewStaticRateProvider(rate decimal.Decimal) *StaticRateProvider {
	return &StaticRateProvider{rate: rate}
}

func (p *StaticRateProvider) Name() string {
	return "Static"
}

func (p *StaticRateProvider) GetRate(ctx context.Context, local, token string) (*domain.ExchangeRate, error) {
	if !p.rate.IsPositive() {
		return nil, fmt.Errorf("static rate not configured")
	}
	return &domain.ExchangeRate{
		LocalCurrency: local,
		TokenSymbol:   token,
		Rate:          p.rate,
		Source:        p.Name(),
		FetchedAt:     time.Now().Unix(),
	}, nil
}

// HTTPRateProvider reads a JSON rates document of the form
// {"base":"USD","rates":{"KES":129.2}} and prices the token at its peg.
type HTTPRateProvider struct {
	url    string
	client *http.Client
}

func NewHTTPRateProvider(url string) *HTTPRateProvider {
	return &HTTPRateProvider{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (p *HTTPRateProvider) Name() string {
	return "HTTP"
}

type ratesDocument struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

func (p *HTTPRateProvider) GetRate(ctx context.Context, local, token string) (*domain.ExchangeRate, error) {
	peg := PegCurrency(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("base", peg)
	q.Set("symbols", local)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rate provider returned status %d", resp.StatusCode)
	}

	var doc ratesDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode rates: %w", err)
	}
	if doc.Base != "" && !strings.EqualFold(doc.Base, peg) {
		return nil, fmt.Errorf("rate provider returned base %s, want %s", doc.Base, peg)
	}
	rate, ok := doc.Rates[strings.ToUpper(local)]
	if !ok || !rate.IsPositive() {
		return nil, fmt.Errorf("invalid %s rate", local)
	}

	return &domain.ExchangeRate{
		LocalCurrency: local,
		TokenSymbol:   token,
		Rate:          rate,
		Source:        p.Name(),
		FetchedAt:     time.Now().Unix(),
	}, nil
}

// PegCurrency is the fiat currency a stable token tracks.
func PegCurrency(token string) string {
	switch strings.ToUpper(token) {
	case "EURC":
		return "EUR"
	default:
		return "USD"
	}
}

// ProvidersFromConfig lists rate sources in priority order: an operator
// override, then the configured HTTP feed, then Google Finance.
func ProvidersFromConfig(cfg config.ForexConfig, log logger.Logger) []RateProvider {
	var providers []RateProvider
	if cfg.StaticRate != "" {
		rate, err := decimal.NewFromString(cfg.StaticRate)
		if err != nil || !rate.IsPositive() {
			log.Warn("Ignoring invalid FOREX_STATIC_RATE", map[string]interface{}{"value": cfg.StaticRate})
		} else {
			providers = append(providers, NewStaticRateProvider(rate))
		}
	}
	if cfg.ProviderURL != "" {
		providers = append(providers, NewHTTPRateProvider(cfg.ProviderURL))
	}
	return append(providers, NewGoogleFinanceProvider())
}
