package forex

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"dotpay/internal/domain"

	"github.com/shopspring/decimal"
)

var googlePricePattern = regexp.MustCompile(`<div class="YMlKec fxKbKc">([0-9.,]+)</div>`)

// GoogleFinanceProvider reads the peg-to-local quote from the Google Finance page.
type GoogleFinanceProvider struct {
	baseURL string
	client  *http.Client
}

func NewGoogleFinanceProvider() *GoogleFinanceProvider {
	return &GoogleFinanceProvider{
		baseURL: "https://www.google.com/finance/quote/",
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (p *GoogleFinanceProvider) Name() string {
	return "GoogleFinance"
}

func (p *GoogleFinanceProvider) GetRate(ctx context.Context, local, token string) (*domain.ExchangeRate, error) {
	url := fmt.Sprintf("%s%s-%s", p.baseURL, PegCurrency(token), strings.ToUpper(local))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	// Google serves a stripped page to non-browser agents.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google finance returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	match := googlePricePattern.FindSubmatch(body)
	if len(match) < 2 {
		return nil, fmt.Errorf("could not find rate in page")
	}
	rate, err := decimal.NewFromString(strings.ReplaceAll(string(match[1]), ",", ""))
	if err != nil || !rate.IsPositive() {
		return nil, fmt.Errorf("invalid rate value %q", match[1])
	}

	return &domain.ExchangeRate{
		LocalCurrency: local,
		TokenSymbol:   token,
		Rate:          rate,
		Source:        p.Name(),
		FetchedAt:     time.Now().Unix(),
	}, nil
}
