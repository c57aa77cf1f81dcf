package x402

import (
	"time"

	"github.com/adipundir/aptos-x402/logger"
	"github.com/adipundir/aptos-x402/metrics"
	"github.com/adipundir/aptos-x402/settlement"
)

// Option configures the engine at construction.
type Option func(*X402)

// WithLogger sets the structured logger shared by all components.
func WithLogger(l logger.Logger) Option {
	return func(x *X402) {
		if l != nil {
			x.log = l
		}
	}
}

// WithMetrics sets the telemetry recorder shared by all components.
func WithMetrics(r metrics.Recorder) Option {
	return func(x *X402) {
		if r != nil {
			x.metrics = r
		}
	}
}

// WithTimeout bounds a single Settle call end to end, independent of
// the per-route confirmation timeout.
func WithTimeout(t time.Duration) Option {
	return func(x *X402) {
		if t > 0 {
			x.timeout = t
		}
	}
}

// WithFeePayer enables gas sponsorship for routes marked Sponsored.
func WithFeePayer(fp *settlement.FeePayer) Option {
	return func(x *X402) {
		x.feePayer = fp
	}
}

// WithSettlementCache replaces the default idempotency cache. Pass nil
// to disable caching entirely; the chain's sequence numbering then
// carries double-spend prevention alone.
func WithSettlementCache(cache *settlement.Cache) Option {
	return func(x *X402) {
		x.cache = cache
		x.cacheSet = true
	}
}
