package quotes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/avelldo/papertrader/internal/clients/yahoo"
)

// Source resolves a symbol to its current market quote
type Source interface {
	GetQuote(ctx context.Context, symbol string) (yahoo.Quote, error)
}

type entry struct {
	Quote     yahoo.Quote
	FetchedAt time.Time
}

// Cache is a TTL quote cache in front of the quote source, used by the
// valuation path. The trade executor bypasses it: fill prices are
// always live.
//
// On a fetch failure the cache serves the last known quote if it has
// one, even expired, so a quote outage degrades valuations to stale
// prices instead of unpriced rows.
type Cache struct {
	src Source
	ttl time.Duration
	log zerolog.Logger

	mu      sync.RWMutex
	entries map[string]entry
}

// NewCache creates a quote cache with the given freshness window
func NewCache(src Source, ttl time.Duration, log zerolog.Logger) *Cache {
	return &Cache{
		src:     src,
		ttl:     ttl,
		log:     log.With().Str("component", "quote_cache").Logger(),
		entries: make(map[string]entry),
	}
}

// GetQuote returns a fresh cached quote, or fetches and caches one
func (c *Cache) GetQuote(ctx context.Context, symbol string) (yahoo.Quote, error) {
	c.mu.RLock()
	cached, ok := c.entries[symbol]
	c.mu.RUnlock()

	if ok && time.Since(cached.FetchedAt) < c.ttl {
		return cached.Quote, nil
	}

	quote, err := c.Refresh(ctx, symbol)
	if err != nil {
		if ok {
			c.log.Debug().
				Err(err).
				Str("symbol", symbol).
				Time("fetched_at", cached.FetchedAt).
				Msg("Quote fetch failed, serving stale quote")
			return cached.Quote, nil
		}
		return yahoo.Quote{}, err
	}

	return quote, nil
}

// Refresh fetches a quote from the source and stores it, bypassing TTL
func (c *Cache) Refresh(ctx context.Context, symbol string) (yahoo.Quote, error) {
	quote, err := c.src.GetQuote(ctx, symbol)
	if err != nil {
		return yahoo.Quote{}, err
	}

	c.mu.Lock()
	c.entries[symbol] = entry{Quote: quote, FetchedAt: time.Now()}
	c.mu.Unlock()

	return quote, nil
}

// snapshotEntry is the on-disk form of a cached quote. The price is a
// decimal string, the same representation the ledger uses.
type snapshotEntry struct {
	Symbol    string    `msgpack:"symbol"`
	Price     string    `msgpack:"price"`
	Name      string    `msgpack:"name"`
	FetchedAt time.Time `msgpack:"fetched_at"`
}

// Snapshot persists the cache to disk so a restart during a quote
// outage still has last-known prices to value portfolios with.
func (c *Cache) Snapshot(path string) error {
	c.mu.RLock()
	snapshot := make([]snapshotEntry, 0, len(c.entries))
	for _, e := range c.entries {
		snapshot = append(snapshot, snapshotEntry{
			Symbol:    e.Quote.Symbol,
			Price:     e.Quote.Price.String(),
			Name:      e.Quote.Name,
			FetchedAt: e.FetchedAt,
		})
	}
	c.mu.RUnlock()

	data, err := msgpack.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode quote snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write quote snapshot: %w", err)
	}

	c.log.Info().Int("quotes", len(snapshot)).Str("path", path).Msg("Quote snapshot written")

	return nil
}

// Restore loads a snapshot written by Snapshot. A missing file is not
// an error; entries with unparsable prices are skipped.
func (c *Cache) Restore(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read quote snapshot: %w", err)
	}

	var snapshot []snapshotEntry
	if err := msgpack.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("failed to decode quote snapshot: %w", err)
	}

	restored := 0
	c.mu.Lock()
	for _, s := range snapshot {
		price, err := decimal.NewFromString(s.Price)
		if err != nil {
			continue
		}
		c.entries[s.Symbol] = entry{
			Quote:     yahoo.Quote{Symbol: s.Symbol, Price: price, Name: s.Name},
			FetchedAt: s.FetchedAt,
		}
		restored++
	}
	c.mu.Unlock()

	c.log.Info().Int("quotes", restored).Str("path", path).Msg("Quote snapshot restored")

	return nil
}
