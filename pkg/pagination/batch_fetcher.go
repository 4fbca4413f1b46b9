package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds batcher configuration
type Config struct {
	// BatchSize is the maximum number of IDs per request
	BatchSize int
	// Pause between consecutive batches
	Pause time.Duration
}

// DefaultConfig returns the batching used for values reports
func DefaultConfig() Config {
	return Config{
		BatchSize: 15,
		Pause:     1 * time.Second,
	}
}

// BatchFunc fetches the results for one batch of IDs
type BatchFunc[R any] func(ctx context.Context, batch []string) ([]R, error)

// Batcher issues batched queries sequentially
type Batcher struct {
	config Config
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewBatcher creates a new batcher. Non-positive values fall back to defaults;
// a negative Pause disables pausing.
func NewBatcher(config Config) *Batcher {
	defaults := DefaultConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Pause == 0 {
		config.Pause = defaults.Pause
	}
	if config.Pause < 0 {
		config.Pause = 0
	}

	return &Batcher{
		config: config,
		sleep:  sleepContext,
	}
}

// Config returns the effective configuration
func (b *Batcher) Config() Config {
	return b.config
}

// Partition splits ids into consecutive batches of at most size elements.
func Partition(ids []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}

	batches := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		batches = append(batches, ids[start:end])
	}
	return batches
}

// FetchBatches runs fn over ids in batches, one after another, pausing
// between batches. Batch N+1 starts only after batch N's rows are merged, so
// the result keeps input order. An empty ids slice makes no calls.
//
// On error it returns the rows of the batches completed so far together with
// the error.
func FetchBatches[R any](ctx context.Context, b *Batcher, ids []string, fn BatchFunc[R]) ([]R, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	start := time.Now()
	batches := Partition(ids, b.config.BatchSize)
	results := make([]R, 0, len(ids))

	log.Debug().
		Int("ids", len(ids)).
		Int("batches", len(batches)).
		Int("batch_size", b.config.BatchSize).
		Msg("Starting batched fetch")

	for i, batch := range batches {
		if i > 0 && b.config.Pause > 0 {
			if err := b.sleep(ctx, b.config.Pause); err != nil {
				return results, fmt.Errorf("batch %d/%d (partial data: %d rows): %w", i+1, len(batches), len(results), err)
			}
		}

		rows, err := fn(ctx, batch)
		if err != nil {
			log.Warn().
				Err(err).
				Int("batch", i+1).
				Int("batches", len(batches)).
				Msg("Batch fetch failed - returning partial results")
			return results, fmt.Errorf("batch %d/%d (partial data: %d rows): %w", i+1, len(batches), len(results), err)
		}

		results = append(results, rows...)
	}

	log.Debug().
		Int("batches", len(batches)).
		Int("rows", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Batched fetch complete")

	return results, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
