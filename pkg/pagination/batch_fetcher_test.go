package pagination

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%02d", i)
	}
	return ids
}

// noPause returns a batcher whose pauses are recorded instead of slept.
func noPause(cfg Config) (*Batcher, *[]time.Duration) {
	b := NewBatcher(cfg)
	var pauses []time.Duration
	b.sleep = func(ctx context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return ctx.Err()
	}
	return b, &pauses
}

func echo(ctx context.Context, batch []string) ([]string, error) {
	out := make([]string, len(batch))
	for i, id := range batch {
		out[i] = strings.ToUpper(id)
	}
	return out, nil
}

func TestPartition(t *testing.T) {
	tests := []struct {
		name  string
		ids   int
		size  int
		sizes []int
	}{
		{name: "empty", ids: 0, size: 15, sizes: []int{}},
		{name: "exact", ids: 30, size: 15, sizes: []int{15, 15}},
		{name: "remainder", ids: 37, size: 15, sizes: []int{15, 15, 7}},
		{name: "single", ids: 3, size: 15, sizes: []int{3}},
		{name: "invalid size", ids: 2, size: 0, sizes: []int{1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches := Partition(makeIDs(tt.ids), tt.size)
			sizes := make([]int, len(batches))
			for i, b := range batches {
				sizes[i] = len(b)
			}
			assert.Equal(t, tt.sizes, sizes)
		})
	}
}

func TestNewBatcher_Defaults(t *testing.T) {
	b := NewBatcher(Config{})
	assert.Equal(t, DefaultConfig(), b.Config())

	b = NewBatcher(Config{BatchSize: 5, Pause: -1})
	assert.Equal(t, 5, b.Config().BatchSize)
	assert.Zero(t, b.Config().Pause)
}

func TestFetchBatches_SequentialWithPause(t *testing.T) {
	b, pauses := noPause(DefaultConfig())

	var seen [][]string
	rows, err := FetchBatches(context.Background(), b, makeIDs(37), func(ctx context.Context, batch []string) ([]string, error) {
		seen = append(seen, batch)
		return echo(ctx, batch)
	})
	require.NoError(t, err)

	require.Len(t, seen, 3)
	assert.Len(t, seen[0], 15)
	assert.Len(t, seen[1], 15)
	assert.Len(t, seen[2], 7)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, *pauses, "pause only between batches")
	assert.Len(t, rows, 37)
}

// Batching must not change the merged result: three batches of 15/15/7 equal
// a single batch of 37.
func TestFetchBatches_BatchingIsTransparent(t *testing.T) {
	ids := makeIDs(37)

	batched, _ := noPause(Config{BatchSize: 15})
	single, _ := noPause(Config{BatchSize: 37})

	got, err := FetchBatches(context.Background(), batched, ids, echo)
	require.NoError(t, err)
	want, err := FetchBatches(context.Background(), single, ids, echo)
	require.NoError(t, err)

	assert.Equal(t, want, got)
	assert.Equal(t, "ID-00", got[0])
	assert.Equal(t, "ID-36", got[36])
}

func TestFetchBatches_EmptyMakesNoCalls(t *testing.T) {
	b, _ := noPause(DefaultConfig())

	calls := 0
	rows, err := FetchBatches(context.Background(), b, nil, func(ctx context.Context, batch []string) ([]string, error) {
		calls++
		return nil, nil
	})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Zero(t, calls)
}

func TestFetchBatches_PartialOnError(t *testing.T) {
	b, _ := noPause(DefaultConfig())
	boom := errors.New("boom")

	call := 0
	rows, err := FetchBatches(context.Background(), b, makeIDs(37), func(ctx context.Context, batch []string) ([]string, error) {
		call++
		if call == 2 {
			return nil, boom
		}
		return echo(ctx, batch)
	})

	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "batch 2/3")
	assert.Len(t, rows, 15, "first batch kept")
	assert.Equal(t, 2, call, "no batches after the failure")
}

func TestFetchBatches_ContextCancelledDuringPause(t *testing.T) {
	b := NewBatcher(Config{BatchSize: 1, Pause: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())

	rows, err := FetchBatches(ctx, b, makeIDs(3), func(ctx context.Context, batch []string) ([]string, error) {
		cancel()
		return batch, nil
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"id-00"}, rows)
}
