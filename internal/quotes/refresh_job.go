package quotes

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// HeldSymbolLister returns the distinct symbols currently held
type HeldSymbolLister interface {
	HeldSymbols() ([]string, error)
}

// RefreshJob pre-warms the quote cache for every held symbol so
// portfolio valuations mostly hit fresh cache entries.
type RefreshJob struct {
	cache     *Cache
	positions HeldSymbolLister
	timeout   time.Duration
	log       zerolog.Logger
}

// NewRefreshJob creates a new quote refresh job
func NewRefreshJob(cache *Cache, positions HeldSymbolLister, timeout time.Duration, log zerolog.Logger) *RefreshJob {
	return &RefreshJob{
		cache:     cache,
		positions: positions,
		timeout:   timeout,
		log:       log.With().Str("job", "quote_refresh").Logger(),
	}
}

// Name returns the job name
func (j *RefreshJob) Name() string {
	return "quote_refresh"
}

// Run refreshes quotes for all held symbols. Individual failures are
// logged and skipped; the stale entry stays usable.
func (j *RefreshJob) Run() error {
	symbols, err := j.positions.HeldSymbols()
	if err != nil {
		return err
	}

	refreshed := 0
	for _, symbol := range symbols {
		ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
		_, err := j.cache.Refresh(ctx, symbol)
		cancel()

		if err != nil {
			j.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to refresh quote")
			continue
		}
		refreshed++
	}

	j.log.Debug().
		Int("held", len(symbols)).
		Int("refreshed", refreshed).
		Msg("Quote refresh completed")

	return nil
}
