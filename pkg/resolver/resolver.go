// Package resolver maps metric names ("Placed Order", "Subscribed to List")
// to Klaviyo metric IDs.
//
// A Resolver owns its cache: the first lookup pages through the metrics
// listing once and remembers every metric it saw, so later lookups for any
// name are answered without network I/O. Separate Resolvers (for example one
// per tenant credential) never share entries.
package resolver

import (
	"context"
	"fmt"
	"sync"

	"github.com/Sternrassler/klaviyo-extractor/pkg/api"
	"github.com/Sternrassler/klaviyo-extractor/pkg/pagination"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// MetricsPath is the metrics listing endpoint.
const MetricsPath = "/metrics/"

// Well-known metric names.
const (
	MetricPlacedOrder      = "Placed Order"
	MetricSubscribedToList = "Subscribed to List"
	MetricUnsubscribedList = "Unsubscribed from List"
	MetricOpenedEmail      = "Opened Email"
	MetricClickedEmail     = "Clicked Email"
)

// Descriptor identifies a metric.
type Descriptor struct {
	Name        string `json:"name"`
	ID          string `json:"id"`
	Integration string `json:"integration,omitempty"`
}

// Resolver resolves and caches metric descriptors.
type Resolver struct {
	getter pagination.Getter
	logger zerolog.Logger

	mu     sync.RWMutex
	byName map[string]Descriptor
	loaded bool

	group singleflight.Group
}

// New creates a resolver backed by getter, normally a *client.Client.
func New(getter pagination.Getter, logger zerolog.Logger) *Resolver {
	return &Resolver{
		getter: getter,
		logger: logger.With().Str("component", "resolver").Logger(),
		byName: make(map[string]Descriptor),
	}
}

// Resolve returns the descriptor for name (case-sensitive). A name missing
// from the account yields ok == false and a nil error; the caller decides
// whether that matters.
func (r *Resolver) Resolve(ctx context.Context, name string) (Descriptor, bool, error) {
	if d, ok, loaded := r.lookup(name); loaded {
		return d, ok, nil
	}

	// Concurrent first lookups share one listing walk.
	_, err, shared := r.group.Do("metrics", func() (any, error) {
		return nil, r.load(ctx)
	})
	if err != nil {
		return Descriptor{}, false, fmt.Errorf("resolve metric %q: %w", name, err)
	}
	if shared {
		r.logger.Debug().Str("metric", name).Msg("Joined in-flight metrics listing")
	}

	d, ok, _ := r.lookup(name)
	if !ok {
		r.logger.Debug().Str("metric", name).Msg("Metric not found")
	}
	return d, ok, nil
}

// ResolveAll resolves several names. Missing names are absent from the
// returned map.
func (r *Resolver) ResolveAll(ctx context.Context, names ...string) (map[string]Descriptor, error) {
	found := make(map[string]Descriptor, len(names))
	for _, name := range names {
		d, ok, err := r.Resolve(ctx, name)
		if err != nil {
			return found, err
		}
		if ok {
			found[name] = d
		}
	}
	return found, nil
}

// Loaded reports whether the metrics listing has been fetched.
func (r *Resolver) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

func (r *Resolver) lookup(name string) (Descriptor, bool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byName[name]
	return d, ok, r.loaded
}

// load walks the full metrics listing. A failed walk caches nothing.
func (r *Resolver) load(ctx context.Context) error {
	if r.Loaded() {
		return nil
	}

	metrics, err := pagination.CollectResources[api.MetricAttributes](ctx, r.getter, MetricsPath, nil)
	if err != nil {
		return err
	}

	byName := make(map[string]Descriptor, len(metrics))
	for _, m := range metrics {
		if _, dup := byName[m.Attributes.Name]; dup {
			// Several integrations can report the same metric name; the
			// first one listed wins.
			r.logger.Debug().
				Str("metric", m.Attributes.Name).
				Str("ignored_id", m.ID).
				Msg("Duplicate metric name")
			continue
		}

		d := Descriptor{Name: m.Attributes.Name, ID: m.ID}
		if m.Attributes.Integration != nil {
			d.Integration = m.Attributes.Integration.Name
		}
		byName[d.Name] = d
	}

	r.mu.Lock()
	r.byName = byName
	r.loaded = true
	r.mu.Unlock()

	r.logger.Info().Int("metrics", len(byName)).Msg("Metrics listing cached")
	return nil
}
