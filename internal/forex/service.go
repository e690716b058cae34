// Package forex provides the local-currency-per-token rate used to convert
// amounts entered in local currency.
//
// ==============================================================================
// FOREX SERVICE - internal/forex/service.go
// ==============================================================================
package forex

import (
	"context"
	"strings"
	"sync"
	"time"

	"dotpay/internal/amount"
	"dotpay/internal/domain"
	"dotpay/pkg/errors"
	"dotpay/pkg/logger"

	"github.com/shopspring/decimal"
)

// Service caches the rate in memory, then in the shared cache, and falls back
// to providers in order.
type Service struct {
	cache     RateCache
	providers []RateProvider
	local     string
	token     string
	ttl       time.Duration
	logger    logger.Logger

	mu      sync.RWMutex
	current *domain.ExchangeRate

	stop     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// NewService constructs a rate service. cache may be nil.
func NewService(cache RateCache, providers []RateProvider, local, token string, ttl time.Duration, log logger.Logger) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{
		cache:     cache,
		providers: providers,
		local:     strings.ToUpper(local),
		token:     strings.ToUpper(token),
		ttl:       ttl,
		logger:    log,
		stop:      make(chan struct{}),
		now:       time.Now,
	}
}

func (s *Service) cacheKey() string {
	return "forex:rate:" + s.token + "-" + s.local
}

func (s *Service) valid(rate *domain.ExchangeRate) bool {
	return rate != nil && rate.Rate.IsPositive() && s.now().Unix() < rate.ValidUntil
}

// GetRate returns the current local-per-token rate.
func (s *Service) GetRate(ctx context.Context) (*domain.ExchangeRate, error) {
	s.mu.RLock()
	rate := s.current
	s.mu.RUnlock()
	if s.valid(rate) {
		return rate, nil
	}

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, s.cacheKey())
		if err != nil {
			s.logger.Warn("Shared rate cache unavailable", map[string]interface{}{"error": err.Error()})
		} else if s.valid(cached) {
			s.setCurrent(cached)
			return cached, nil
		}
	}

	return s.refresh(ctx)
}

func (s *Service) refresh(ctx context.Context) (*domain.ExchangeRate, error) {
	for _, provider := range s.providers {
		rate, err := provider.GetRate(ctx, s.local, s.token)
		if err != nil {
			s.logger.Warn("Provider failed", map[string]interface{}{
				"provider": provider.Name(),
				"local":    s.local,
				"token":    s.token,
				"error":    err.Error(),
			})
			continue
		}

		now := s.now()
		rate.FetchedAt = now.Unix()
		rate.ValidUntil = now.Add(s.ttl).Unix()
		s.setCurrent(rate)

		if s.cache != nil {
			if err := s.cache.Set(ctx, s.cacheKey(), rate, s.ttl); err != nil {
				s.logger.Warn("Failed to cache rate", map[string]interface{}{"error": err.Error()})
			}
		}
		return rate, nil
	}

	return nil, errors.ErrRateNotAvailable
}

func (s *Service) setCurrent(rate *domain.ExchangeRate) {
	s.mu.Lock()
	s.current = rate
	s.mu.Unlock()
}

// Start refreshes the rate every interval until Stop is called.
func (s *Service) Start(interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				if _, err := s.refresh(ctx); err != nil {
					s.logger.Error("Failed to update rate", map[string]interface{}{
						"local": s.local,
						"token": s.token,
						"error": err.Error(),
					})
				}
				cancel()
			}
		}
	}()
}

func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Quote is an entered amount expressed in both display currencies.
type Quote struct {
	Spec       domain.AmountSpec    `json:"spec"`
	LocalValue string               `json:"local_value"`
	TokenValue string               `json:"token_value"`
	Rate       *domain.ExchangeRate `json:"rate"`
}

// Quote converts display into base units and back into both currencies.
// Token amounts do not need a rate; a missing rate then leaves LocalValue empty.
func (s *Service) Quote(ctx context.Context, display string, currency domain.DisplayCurrency, decimals int32) (*Quote, error) {
	rate, err := s.GetRate(ctx)
	if err != nil && currency == domain.CurrencyLocal {
		return nil, err
	}
	r := decimal.Zero
	if rate != nil {
		r = rate.Rate
	}

	base, err := amount.ToBaseUnits(display, currency, r, decimals)
	if err != nil {
		return nil, err
	}
	q := &Quote{
		Spec:       domain.AmountSpec{DisplayCurrency: currency, DisplayValue: amount.Sanitize(display), TokenBaseUnits: base},
		TokenValue: amount.ToDisplay(base, domain.CurrencyToken, r, decimals),
		Rate:       rate,
	}
	if rate != nil {
		q.LocalValue = amount.ToDisplay(base, domain.CurrencyLocal, r, decimals)
	}
	return q, nil
}
