package state

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"golang.org/x/sync/singleflight"

	"spendly/internal/core"
	"spendly/internal/log"
	"spendly/internal/prefs"
	"spendly/internal/rates"
)

// DefaultRefreshInterval is how old the cached rate table may get before
// Initialize fetches a new one.
const DefaultRefreshInterval = time.Hour

// RateInfo describes the rate table in use.
type RateInfo struct {
	Rates       map[string]float64 `json:"rates"`
	LastUpdated *time.Time         `json:"lastUpdated"`
	Loading     bool               `json:"loading"`
}

type cachedRates struct {
	Rates       map[string]float64 `json:"rates"`
	LastUpdated time.Time          `json:"lastUpdated"`
}

// Currency tracks the display currency and the USD-based rate table.
type Currency struct {
	status

	prefs   prefs.Store
	source  rates.Source
	logger  *log.Logger
	refresh time.Duration
	now     func() time.Time
	fetch   singleflight.Group

	current     string
	rates       map[string]float64
	lastUpdated time.Time
}

// NewCurrency builds the container. A nil source disables refreshing.
func NewCurrency(store prefs.Store, source rates.Source, refresh time.Duration, logger *log.Logger) *Currency {
	if refresh <= 0 {
		refresh = DefaultRefreshInterval
	}
	return &Currency{
		prefs:   store,
		source:  source,
		logger:  logger.WithComponent(log.ComponentState),
		refresh: refresh,
		now:     time.Now,
		current: core.BaseCurrency,
		rates:   core.DefaultRates(),
	}
}

// Initialize restores the saved currency and rate table, then refreshes the
// table when it is missing or older than the refresh interval. A failed
// refresh keeps the cached table.
func (c *Currency) Initialize(ctx context.Context) {
	if code, ok := c.prefs.Get(prefs.KeyCurrency); ok {
		if _, known := core.LookupCurrency(code); known {
			c.mu.Lock()
			c.current = code
			c.mu.Unlock()
		}
	}
	c.loadCached()

	c.mu.RLock()
	stale := c.lastUpdated.IsZero() || c.now().Sub(c.lastUpdated) > c.refresh
	c.mu.RUnlock()
	if stale {
		_ = c.UpdateRates(ctx)
	}
}

func (c *Currency) loadCached() {
	raw, ok := c.prefs.Get(prefs.KeyExchangeRates)
	if !ok {
		return
	}
	var cached cachedRates
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		c.logger.Warn("Ignoring unreadable cached rates", log.FieldError, err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.merge(cached.Rates)
	c.lastUpdated = cached.LastUpdated
}

// merge copies rates of supported currencies only. Callers hold c.mu.
func (c *Currency) merge(in map[string]float64) {
	for code, rate := range in {
		if _, ok := c.rates[code]; ok && rate > 0 {
			c.rates[code] = rate
		}
	}
}

// UpdateRates fetches the latest table. On failure the current table is
// kept and the error is returned.
func (c *Currency) UpdateRates(ctx context.Context) error {
	if c.source == nil {
		return nil
	}
	_, err, _ := c.fetch.Do("latest", func() (any, error) {
		c.mu.Lock()
		c.loading = true
		c.mu.Unlock()
		defer func() {
			c.mu.Lock()
			c.loading = false
			c.mu.Unlock()
		}()

		latest, err := c.source.Latest(ctx)
		if err != nil {
			c.logger.WarnContext(ctx, "Rate refresh failed, keeping cached rates", log.FieldError, err)
			return nil, err
		}

		c.mu.Lock()
		c.merge(latest)
		c.lastUpdated = c.now()
		snapshot := cachedRates{Rates: maps.Clone(c.rates), LastUpdated: c.lastUpdated}
		c.mu.Unlock()

		raw, err := json.Marshal(snapshot)
		if err != nil {
			return nil, fmt.Errorf("encode rates: %w", err)
		}
		if err := c.prefs.Set(prefs.KeyExchangeRates, string(raw)); err != nil {
			c.logger.WarnContext(ctx, "Failed to cache rates", log.FieldError, err)
		}
		c.logger.DebugContext(ctx, "Exchange rates refreshed", "count", len(latest))
		return nil, nil
	})
	return err
}

// SetCurrency switches the display currency and persists the choice.
func (c *Currency) SetCurrency(code string) error {
	if _, ok := core.LookupCurrency(code); !ok {
		return core.ValidationError(fmt.Sprintf("Moneda no soportada: %s", code))
	}
	c.mu.Lock()
	c.current = code
	c.mu.Unlock()
	return c.prefs.Set(prefs.KeyCurrency, code)
}

func (c *Currency) Current() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// CurrentInfo describes the display currency.
func (c *Currency) CurrentInfo() core.Currency {
	info, ok := core.LookupCurrency(c.Current())
	if !ok {
		return core.Currencies()[0]
	}
	return info
}

// Rate is the display currency's rate per USD.
func (c *Currency) Rate() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if r, ok := c.rates[c.current]; ok && r > 0 {
		return r
	}
	return 1
}

// ConvertAmount converts between two currencies. An empty to means the
// display currency.
func (c *Currency) ConvertAmount(amount float64, from, to string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if to == "" {
		to = c.current
	}
	return core.ConvertAmount(c.rates, amount, from, to)
}

// Format renders amount in code, or in the display currency when code is "".
func (c *Currency) Format(amount float64, code string) string {
	if code == "" {
		code = c.Current()
	}
	return core.FormatAmount(amount, code)
}

// FormatWithConversion converts amount from its own currency to the display
// currency. With showOriginal the source amount follows in parentheses.
func (c *Currency) FormatWithConversion(amount float64, from string, showOriginal bool) string {
	current := c.Current()
	out := core.FormatAmount(c.ConvertAmount(amount, from, current), current)
	if showOriginal && from != current {
		out += " (" + core.FormatAmount(amount, from) + ")"
	}
	return out
}

func (c *Currency) RateInfo() RateInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info := RateInfo{Rates: maps.Clone(c.rates), Loading: c.loading}
	if !c.lastUpdated.IsZero() {
		t := c.lastUpdated
		info.LastUpdated = &t
	}
	return info
}
