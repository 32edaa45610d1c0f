// Package fx converts checkout amounts from USD to INR for gateways that
// settle in rupees.
package fx

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/salespilot/internal"
)

const (
	SourceLive     = "live"
	SourceFallback = "fallback"

	DefaultFallbackRate = 88.44
	DefaultTimeout      = 5 * time.Second

	pairUSDINR = "USD:INR"
)

var ErrInvalidAmount = internal.NewValidationError("amount must be a positive finite number", internal.ErrCodeInvalidAmount)

// RateSource quotes the live price of one unit of base in quote.
type RateSource interface {
	Rate(ctx context.Context, base, quote string) (decimal.Decimal, error)
}

type Conversion struct {
	Rate      decimal.Decimal
	AmountINR decimal.Decimal
	Source    string
}

func (c *Conversion) RateFloat() float64 {
	return c.Rate.InexactFloat64()
}

func (c *Conversion) AmountINRFloat() float64 {
	return c.AmountINR.InexactFloat64()
}

type Options struct {
	FallbackRate float64
	Timeout      time.Duration
	CacheTTL     time.Duration
}

type Converter struct {
	source   RateSource
	cache    RateCache
	fallback decimal.Decimal
	timeout  time.Duration
	ttl      time.Duration
	logger   *slog.Logger
}

// NewConverter builds a converter. source and cache may be nil: without a
// source every conversion uses the fallback rate.
func NewConverter(source RateSource, cache RateCache, opts Options, logger *slog.Logger) *Converter {
	if opts.FallbackRate <= 0 {
		opts.FallbackRate = DefaultFallbackRate
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{
		source:   source,
		cache:    cache,
		fallback: decimal.NewFromFloat(opts.FallbackRate),
		timeout:  opts.Timeout,
		ttl:      opts.CacheTTL,
		logger:   logger,
	}
}

// USDToINR never fails for a positive finite amount. Remote failures fall
// back to the fixed rate.
func (c *Converter) USDToINR(ctx context.Context, amountUSD float64) (*Conversion, error) {
	if math.IsNaN(amountUSD) || math.IsInf(amountUSD, 0) || amountUSD <= 0 {
		return nil, ErrInvalidAmount
	}

	rate, source := c.rate(ctx)
	return &Conversion{
		Rate:      rate,
		AmountINR: rate.Mul(decimal.NewFromFloat(amountUSD)),
		Source:    source,
	}, nil
}

func (c *Converter) rate(ctx context.Context) (decimal.Decimal, string) {
	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, pairUSDINR); ok {
			return cached, SourceLive
		}
	}

	if c.source == nil {
		return c.fallback, SourceFallback
	}

	lookupCtx, cancel := internal.WithTimeout(ctx, c.timeout)
	defer cancel()

	rate, err := c.source.Rate(lookupCtx, "USD", "INR")
	if err == nil && !rate.IsPositive() {
		err = fmt.Errorf("non-positive rate %s", rate.String())
	}
	if err != nil {
		c.logger.Warn("fx lookup failed, using fallback rate",
			"pair", pairUSDINR,
			"fallback_rate", c.fallback.String(),
			"error", err)
		return c.fallback, SourceFallback
	}

	if c.cache != nil {
		c.cache.Set(ctx, pairUSDINR, rate, c.ttl)
	}
	return rate, SourceLive
}
