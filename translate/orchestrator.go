// Package translate drives translation runs: it dispatches items to a
// backend under rate and concurrency limits, tracks per-item state, supports
// pause, resume, cancel and retry of failed items, and writes completed
// translations back into JSON documents.
package translate

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/minios-linux/jsonloc/backend"
	"github.com/minios-linux/jsonloc/cache"
	"github.com/minios-linux/jsonloc/ratelimit"
)

// Options configures an Orchestrator.
type Options struct {
	Backend backend.Backend
	// SourceLang may be empty (auto).
	SourceLang string
	TargetLang string
	Strategy   Strategy

	// Limits is used to build a Governor when none is supplied.
	Limits ratelimit.Config
	// Governor may be shared with the backend so that HTTP 429 pauses apply
	// to dispatching.
	Governor *ratelimit.Governor
	// Cache is created per Orchestrator when nil. A supplied cache is never
	// cleared by Reset.
	Cache *cache.Cache

	// RequestDelay is an extra delay between launching requests.
	RequestDelay time.Duration
	// BatchPrompt overrides batch.SystemPrompt.
	BatchPrompt string

	// OnProgress and OnComplete are called from a separate goroutine, in
	// order. Slow callbacks delay later notifications, never dispatching.
	OnProgress func(Progress)
	OnComplete func(Completion)

	Logger  logrus.FieldLogger
	Metrics *Metrics
	Tracer  trace.Tracer
}

// Orchestrator owns the state of translation runs over one item set.
// It is safe for concurrent use; only one run is active at a time.
type Orchestrator struct {
	opts      Options
	gov       *ratelimit.Governor
	cache     *cache.Cache
	ownsCache bool
	completer backend.Completer
	log       logrus.FieldLogger
	tracer    trace.Tracer
	provider  string

	mu       sync.Mutex
	items    []Item
	states   map[string]State
	outcomes map[string]Outcome
	run      *RunContext
	// done holds the IDs finished during the current run.
	done       map[string]bool
	running    bool
	stop       context.CancelFunc
	stopReason error
}

// New validates opts and returns an Orchestrator. Configuration problems are
// programmer errors and are returned here rather than per item.
func New(opts Options) (*Orchestrator, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("translate: backend is required")
	}
	if opts.TargetLang == "" {
		return nil, fmt.Errorf("translate: target language is required")
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyParallel
	}
	if _, err := ParseStrategy(string(opts.Strategy)); err != nil {
		return nil, fmt.Errorf("translate: %w", err)
	}

	o := &Orchestrator{
		opts:     opts,
		gov:      opts.Governor,
		cache:    opts.Cache,
		log:      opts.Logger,
		tracer:   opts.Tracer,
		provider: opts.Backend.Info().ID,
		states:   make(map[string]State),
		outcomes: make(map[string]Outcome),
	}
	if o.gov == nil {
		gov, err := ratelimit.New(opts.Limits)
		if err != nil {
			return nil, fmt.Errorf("translate: %w", err)
		}
		o.gov = gov
	}
	if o.cache == nil {
		o.cache = cache.New()
		o.ownsCache = true
	}
	if o.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.log = l
	}
	if o.tracer == nil {
		o.tracer = noop.NewTracerProvider().Tracer("")
	}
	if opts.Strategy == StrategyBatched {
		c, ok := opts.Backend.(backend.Completer)
		if !ok {
			return nil, fmt.Errorf("translate: %s: %w", o.provider, ErrBatchingUnsupported)
		}
		o.completer = c
	}
	return o, nil
}

// Run translates items and returns one outcome per item, in input order.
// Only invalid input is reported as an error; per-item failures, including
// cancellation, are carried in the outcomes.
func (o *Orchestrator) Run(ctx context.Context, items []Item) ([]Outcome, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}

	if err := o.drive(ctx, items, true); err != nil {
		return nil, err
	}
	return o.Outcomes(), nil
}

// Resume re-runs every item that is pending or failed, typically after
// Pause or Cancel. Completed items are not touched.
func (o *Orchestrator) Resume(ctx context.Context) ([]Outcome, error) {
	return o.rerun(ctx, StatePending, StateFailed)
}

// RetryFailed re-runs only failed items with their original source text.
// New outcomes replace the failed ones.
func (o *Orchestrator) RetryFailed(ctx context.Context) ([]Outcome, error) {
	return o.rerun(ctx, StateFailed)
}

func (o *Orchestrator) rerun(ctx context.Context, states ...State) ([]Outcome, error) {
	o.mu.Lock()
	var subset []Item
	for _, it := range o.items {
		for _, s := range states {
			if o.states[it.ID] == s {
				subset = append(subset, it)
				break
			}
		}
	}
	o.mu.Unlock()

	if len(subset) > 0 {
		if err := o.drive(ctx, subset, false); err != nil {
			return nil, err
		}
	}
	return o.Outcomes(), nil
}

// Cancel stops the active run. Requests already in flight finish; items not
// yet dispatched fail with ErrCancelled.
func (o *Orchestrator) Cancel() { o.halt(ErrCancelled) }

// Pause stops the active run but leaves undispatched items pending so that
// Resume picks them up.
func (o *Orchestrator) Pause() { o.halt(ErrPaused) }

func (o *Orchestrator) halt(reason error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running || o.stopReason != nil {
		return
	}
	o.stopReason = reason
	o.run.Cancelled = true
	o.stop()
	o.log.WithFields(logrus.Fields{"run_id": o.run.ID, "reason": reason}).Info("translation run halted")
}

// Running reports whether a run is active.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// States returns a copy of the per-item states keyed by item ID.
func (o *Orchestrator) States() map[string]State {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]State, len(o.states))
	for k, v := range o.states {
		out[k] = v
	}
	return out
}

// Outcomes returns the latest outcome of every item, in input order. Items
// that have not been processed yet carry a "pending" error.
func (o *Orchestrator) Outcomes() []Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Outcome, len(o.items))
	for i, it := range o.items {
		oc, ok := o.outcomes[it.ID]
		if !ok {
			oc = Outcome{ID: it.ID, Path: it.Path, Error: string(StatePending)}
		}
		out[i] = oc
	}
	return out
}

// Progress returns a snapshot of the current or last run.
func (o *Orchestrator) Progress() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run == nil {
		return Progress{}
	}
	return o.run.progress()
}

// RunContext returns a copy of the current or last run's bookkeeping.
func (o *Orchestrator) RunContext() RunContext {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run == nil {
		return RunContext{}
	}
	return *o.run
}

// CacheStats returns the translation cache counters.
func (o *Orchestrator) CacheStats() cache.Stats { return o.cache.Stats() }

// Reset forgets all outcomes, returns every item to pending and clears the
// cache the Orchestrator created. A cache passed in Options is left alone.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return ErrRunInProgress
	}
	for id := range o.states {
		o.states[id] = StatePending
	}
	o.outcomes = make(map[string]Outcome, len(o.items))
	o.run = nil
	if o.ownsCache {
		o.cache.Clear()
	}
	return nil
}

// drive runs subset to completion or until halted. Undispatched items are
// marked according to the halt reason. With fresh set, subset replaces the
// item set and all previous outcomes are dropped.
func (o *Orchestrator) drive(ctx context.Context, subset []Item, fresh bool) error {
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrRunInProgress
	}
	if fresh {
		o.items = append([]Item(nil), subset...)
		o.states = make(map[string]State, len(subset))
		o.outcomes = make(map[string]Outcome, len(subset))
	}
	rc := &RunContext{ID: uuid.NewString(), StartedAt: time.Now(), Total: len(subset)}
	o.run = rc
	o.done = make(map[string]bool, len(subset))
	o.running = true
	o.stop = stop
	o.stopReason = nil
	for _, it := range subset {
		o.states[it.ID] = StatePending
	}
	o.mu.Unlock()

	log := o.log.WithFields(logrus.Fields{
		"run_id":   rc.ID,
		"provider": o.provider,
		"strategy": o.opts.Strategy,
		"items":    len(subset),
	})
	log.Info("translation run started")

	ctx, span := o.tracer.Start(ctx, "translate.run", trace.WithAttributes(
		attribute.String("run.id", rc.ID),
		attribute.String("provider", o.provider),
		attribute.String("strategy", string(o.opts.Strategy)),
		attribute.Int("items", len(subset)),
	))
	defer span.End()
	o.opts.Metrics.runStarted(o.provider, o.opts.Strategy)

	n := newNotifier(o.opts.OnProgress, o.opts.OnComplete, log)
	d := &dispatch{o: o, ctx: ctx, runCtx: runCtx, notify: n, log: log}

	units := d.plan(subset)
	if o.opts.Strategy == StrategyBatched {
		d.runBatched(units)
	} else {
		d.runIndividual(units)
	}

	o.mu.Lock()
	reason := o.stopReason
	if reason == nil && ctx.Err() != nil {
		reason = ErrCancelled
		rc.Cancelled = true
	}
	var swept []Outcome
	for _, it := range subset {
		if o.done[it.ID] {
			continue
		}
		oc := Outcome{ID: it.ID, Path: it.Path, Error: ErrCancelled.Error()}
		if reason == ErrPaused {
			oc.Error = ErrPaused.Error()
			o.states[it.ID] = StatePending
		} else {
			o.states[it.ID] = StateFailed
		}
		o.outcomes[it.ID] = oc
		swept = append(swept, oc)
	}
	o.running = false
	final := rc.progress()
	o.mu.Unlock()

	if len(swept) > 0 {
		n.push(event{progress: final, completion: &Completion{RunID: rc.ID, Batch: -1, Outcomes: swept}})
	}
	n.close()

	span.SetAttributes(
		attribute.Int("completed", final.Completed),
		attribute.Int("failed", final.Failed),
		attribute.Int("unprocessed", len(swept)),
	)
	log.WithFields(logrus.Fields{
		"completed":   final.Completed,
		"failed":      final.Failed,
		"unprocessed": len(swept),
		"elapsed":     final.Elapsed.Round(time.Millisecond),
	}).Info("translation run finished")
	return nil
}
