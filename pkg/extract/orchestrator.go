package extract

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/klaviyo-extractor/pkg/client"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// State is a stage of an extraction run.
type State int

const (
	StateInit State = iota
	StateResolvingMetrics
	StateExtracting
	StateMerging
	StateDone
	StateAborted
)

var stateNames = [...]string{
	StateInit:             "INIT",
	StateResolvingMetrics: "RESOLVING_METRICS",
	StateExtracting:       "EXTRACTING",
	StateMerging:          "MERGING",
	StateDone:             "DONE",
	StateAborted:          "ABORTED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ProgressEvent reports a state change, or with Category set, a finished
// category.
type ProgressEvent struct {
	RunID    string         `json:"run_id"`
	State    State          `json:"state"`
	Category Category       `json:"category,omitempty"`
	Degraded *DegradeReason `json:"degraded,omitempty"`
	At       time.Time      `json:"at"`
}

// Source produces the per-category results. *Extractor is the production
// implementation.
type Source interface {
	Revenue(ctx context.Context, r DateRange) Result[Revenue]
	Campaigns(ctx context.Context, r DateRange) Result[Campaigns]
	Flows(ctx context.Context, r DateRange) Result[Flows]
	Lists(ctx context.Context, r DateRange) Result[Lists]
	Forms(ctx context.Context, r DateRange) Result[Forms]
	FlowDetails(ctx context.Context, r DateRange, flows Flows) Result[FlowDetails]

	// Metrics names the metrics resolved before extraction starts.
	Metrics() []string
}

// Config holds orchestrator configuration
type Config struct {
	// Workers bounds the extractors running at once.
	Workers int
}

// DefaultConfig returns the default orchestrator configuration
func DefaultConfig() Config {
	return Config{Workers: 5}
}

// Orchestrator runs every extractor and merges the results.
type Orchestrator struct {
	source   Source
	resolver MetricResolver
	config   Config
	logger   zerolog.Logger
	now      func() time.Time

	mu          sync.RWMutex
	subscribers map[chan ProgressEvent]struct{}
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(source Source, res MetricResolver, config Config) *Orchestrator {
	if config.Workers <= 0 {
		config.Workers = DefaultConfig().Workers
	}

	return &Orchestrator{
		source:      source,
		resolver:    res,
		config:      config,
		logger:      log.With().Str("component", "orchestrator").Logger(),
		now:         time.Now,
		subscribers: make(map[chan ProgressEvent]struct{}),
	}
}

// Subscribe returns a channel of progress events and a function that ends
// the subscription and closes the channel. Events are dropped when the
// channel's buffer is full; the run never waits on a subscriber.
func (o *Orchestrator) Subscribe(buffer int) (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, buffer)

	o.mu.Lock()
	o.subscribers[ch] = struct{}{}
	o.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subscribers, ch)
			o.mu.Unlock()
			close(ch)
		})
	}
}

func (o *Orchestrator) emit(e ProgressEvent) {
	e.At = o.now()

	o.mu.RLock()
	defer o.mu.RUnlock()

	for ch := range o.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}

// ExtractAll runs one extraction over r.
//
// It returns an error only for an invalid range or when the credential is
// rejected by the first request (the metrics listing); in that case no
// extractor runs. Every other failure degrades its category and the dataset
// is returned with the remaining categories intact.
func (o *Orchestrator) ExtractAll(ctx context.Context, r DateRange) (Dataset, error) {
	start := time.Now()
	ds := Dataset{RunID: uuid.NewString(), Range: r}
	logger := o.logger.With().Str("run_id", ds.RunID).Logger()

	o.emit(ProgressEvent{RunID: ds.RunID, State: StateInit})
	if err := r.Validate(); err != nil {
		return Dataset{}, err
	}

	logger.Info().
		Time("start", r.Start).
		Time("end", r.End).
		Msg("Starting extraction")

	o.emit(ProgressEvent{RunID: ds.RunID, State: StateResolvingMetrics})
	// The listing doubles as the credential check, so it must reach the API.
	if _, err := o.resolver.ResolveAll(client.BypassCache(ctx), o.source.Metrics()...); err != nil {
		if client.IsAuth(err) {
			logger.Error().Err(err).Msg("Credential rejected - aborting extraction")
			o.emit(ProgressEvent{RunID: ds.RunID, State: StateAborted})
			runDuration.WithLabelValues(outcomeAborted).Observe(time.Since(start).Seconds())
			return Dataset{}, fmt.Errorf("extraction aborted: %w", err)
		}
		logger.Warn().Err(err).Msg("Metric resolution failed - dependent categories will degrade")
	}

	o.emit(ProgressEvent{RunID: ds.RunID, State: StateExtracting})

	var g errgroup.Group
	g.SetLimit(o.config.Workers)
	for _, c := range AllCategories() {
		if !c.Independent() {
			continue
		}
		g.Go(func() error {
			o.run(ctx, c, r, &ds, logger)
			return nil
		})
	}
	_ = g.Wait()

	o.emit(ProgressEvent{RunID: ds.RunID, State: StateMerging})
	ds.Attribution = attribute(ds.Revenue, ds.Campaigns, ds.Flows)
	ds.GeneratedAt = o.now().UTC()

	degraded := ds.Degraded()
	o.emit(ProgressEvent{RunID: ds.RunID, State: StateDone})
	runDuration.WithLabelValues(outcomeDone).Observe(time.Since(start).Seconds())

	logger.Info().
		Int("degraded", len(degraded)).
		Bool("attribution_estimated", ds.Attribution.Estimated).
		Dur("duration", time.Since(start)).
		Msg("Extraction complete")

	return ds, nil
}

// run extracts c into its field of ds. Each category owns a distinct field,
// so concurrent runs do not conflict. Flow deep-dives follow flows.
func (o *Orchestrator) run(ctx context.Context, c Category, r DateRange, ds *Dataset, logger zerolog.Logger) {
	switch c {
	case CategoryRevenue:
		ds.Revenue = guard(logger, c, func() Result[Revenue] { return o.source.Revenue(ctx, r) })
		o.completed(ds.RunID, c, ds.Revenue.Degraded)

	case CategoryCampaigns:
		ds.Campaigns = guard(logger, c, func() Result[Campaigns] { return o.source.Campaigns(ctx, r) })
		o.completed(ds.RunID, c, ds.Campaigns.Degraded)

	case CategoryFlows:
		ds.Flows = guard(logger, c, func() Result[Flows] { return o.source.Flows(ctx, r) })
		o.completed(ds.RunID, c, ds.Flows.Degraded)

		if ds.Flows.OK() {
			ds.FlowDetails = guard(logger, CategoryFlowDetails, func() Result[FlowDetails] {
				return o.source.FlowDetails(ctx, r, ds.Flows.Payload)
			})
		} else {
			ds.FlowDetails = Degrade[FlowDetails](DegradeReason{
				Kind:    ReasonDependency,
				Message: "flows degraded: " + ds.Flows.Degraded.String(),
			})
		}
		o.completed(ds.RunID, CategoryFlowDetails, ds.FlowDetails.Degraded)

	case CategoryLists:
		ds.Lists = guard(logger, c, func() Result[Lists] { return o.source.Lists(ctx, r) })
		o.completed(ds.RunID, c, ds.Lists.Degraded)

	case CategoryForms:
		ds.Forms = guard(logger, c, func() Result[Forms] { return o.source.Forms(ctx, r) })
		o.completed(ds.RunID, c, ds.Forms.Degraded)

	case CategoryFlowDetails:
		// Started by CategoryFlows.
	}
}

func (o *Orchestrator) completed(runID string, c Category, reason *DegradeReason) {
	outcome := outcomeOK
	if reason != nil {
		outcome = outcomeDegraded
	}
	categoryTotal.WithLabelValues(c.String(), outcome).Inc()

	o.emit(ProgressEvent{RunID: runID, State: StateExtracting, Category: c, Degraded: reason})
}

// guard turns a panicking source into a degraded result.
func guard[T any](logger zerolog.Logger, c Category, fn func() Result[T]) (res Result[T]) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error().
				Str("category", c.String()).
				Interface("panic", p).
				Msg("Extractor panicked - category degraded")
			res = Degrade[T](DegradeReason{Kind: ReasonPanic, Message: fmt.Sprint(p)})
		}
	}()
	return fn()
}
