package translate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/minios-linux/jsonloc/backend"
	"github.com/minios-linux/jsonloc/batch"
	"github.com/minios-linux/jsonloc/cache"
)

var errEmptyTranslation = errors.New("empty translation")

// unit is one backend string shared by every item with the same cache key.
type unit struct {
	key   string
	text  string
	items []Item
}

// dispatch carries the per-run state of one drive. Backend calls use ctx so
// that in-flight requests survive Cancel; acquire waits and task launching
// use runCtx.
type dispatch struct {
	o      *Orchestrator
	ctx    context.Context
	runCtx context.Context
	notify *notifier
	log    logrus.FieldLogger
}

// plan coalesces items by cache key, keeping first-seen order, so each
// distinct (text, language pair) costs at most one backend call per run.
func (d *dispatch) plan(items []Item) []*unit {
	byKey := make(map[string]*unit, len(items))
	var units []*unit
	for _, it := range items {
		k := cache.Key(it.SourceText, d.o.opts.SourceLang, d.o.opts.TargetLang)
		if u, ok := byKey[k]; ok {
			u.items = append(u.items, it)
			continue
		}
		u := &unit{key: k, text: it.SourceText, items: []Item{it}}
		byKey[k] = u
		units = append(units, u)
	}
	return units
}

func (d *dispatch) halted() bool { return d.runCtx.Err() != nil }

// runParallel calls fn for every task with at most maxConcurrent running at
// once, waiting delay between launches. It stops launching when ctx is done
// and returns after all launched tasks finish.
func runParallel[T any](ctx context.Context, tasks []T, maxConcurrent int, delay time.Duration, fn func(int, T)) {
	g := new(errgroup.Group)
	g.SetLimit(max(maxConcurrent, 1))

launch:
	for i, t := range tasks {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && delay > 0 {
			select {
			case <-ctx.Done():
				break launch
			case <-time.After(delay):
			}
		}
		g.Go(func() error {
			fn(i, t)
			return nil
		})
	}
	_ = g.Wait()
}

// ---------------------------------------------------------------------------
// Parallel-individual strategy
// ---------------------------------------------------------------------------

func (d *dispatch) runIndividual(units []*unit) {
	pending := d.resolveHits(units)
	if len(pending) == 0 {
		return
	}
	limits := d.o.gov.Config()
	runParallel(d.runCtx, pending, limits.MaxConcurrentRequests, d.o.opts.RequestDelay, func(_ int, u *unit) {
		d.translateUnit(u, -1)
	})
}

func (d *dispatch) translateUnit(u *unit, batchIdx int) {
	if d.halted() {
		return
	}
	if text, ok := d.o.cache.GetKey(u.key); ok {
		d.countHits(len(u.items))
		d.finish(outcomesFor(u.items, backend.Ok(text)), batchIdx)
		return
	}

	release, err := d.o.gov.Acquire(d.runCtx)
	if err != nil {
		if !d.halted() {
			d.finish(outcomesFor(u.items, backend.Fail(fmt.Errorf("rate limiter: %w", err))), batchIdx)
		}
		return
	}
	defer release()
	if d.halted() {
		return
	}

	d.begin(u.items)
	res := d.callTranslate(u)
	if res.Success {
		d.o.cache.PutKey(u.key, res.Text)
	}
	d.endRequest()
	d.finish(outcomesFor(u.items, res), batchIdx)
}

func (d *dispatch) callTranslate(u *unit) (res backend.Result) {
	path := u.items[0].Path
	ctx, span := d.o.tracer.Start(d.ctx, "translate.item", trace.WithAttributes(
		attribute.String("path", path),
		attribute.Int("items", len(u.items)),
	))
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.log.WithField("path", path).Errorf("backend panic: %v", r)
			res = backend.Result{Error: fmt.Sprintf("backend panic: %v", r)}
		}
		res = normalize(res)
		if !res.Success {
			span.SetStatus(codes.Error, res.Error)
		}
		span.End()
		d.o.opts.Metrics.backendCall(d.o.provider, "single", res.Success, time.Since(start))
	}()

	return d.o.opts.Backend.Translate(ctx, backend.Request{
		ContextKey: path,
		Text:       u.text,
		SourceLang: d.o.opts.SourceLang,
		TargetLang: d.o.opts.TargetLang,
	})
}

func normalize(res backend.Result) backend.Result {
	switch {
	case res.Success && strings.TrimSpace(res.Text) == "":
		return backend.Fail(errEmptyTranslation)
	case res.Success:
		res.Error = ""
	case res.Error == "":
		res.Error = "translation failed"
	}
	return res
}

// ---------------------------------------------------------------------------
// Batched strategy
// ---------------------------------------------------------------------------

func (d *dispatch) runBatched(units []*unit) {
	pending := d.resolveHits(units)
	if len(pending) == 0 {
		return
	}

	byID := make(map[string]*unit, len(pending))
	entries := make([]batch.Entry, len(pending))
	for i, u := range pending {
		id := strconv.Itoa(i)
		byID[id] = u
		entries[i] = batch.Entry{ID: id, Path: u.items[0].Path, Text: u.text}
	}

	limits := d.o.gov.Config()
	batches := batch.Group(entries, limits.BatchSize())
	d.log.WithField("batches", len(batches)).Debug("dispatching batches")

	runParallel(d.runCtx, batches, limits.MaxConcurrentRequests, d.o.opts.RequestDelay, func(idx int, b []batch.Entry) {
		d.translateBatch(idx, b, byID)
	})
}

func (d *dispatch) translateBatch(idx int, entries []batch.Entry, byID map[string]*unit) {
	if d.halted() {
		return
	}
	units := make([]*unit, len(entries))
	var items []Item
	for i, e := range entries {
		units[i] = byID[e.ID]
		items = append(items, units[i].items...)
	}

	release, err := d.o.gov.Acquire(d.runCtx)
	if err != nil {
		if !d.halted() {
			d.finish(outcomesFor(items, backend.Fail(fmt.Errorf("rate limiter: %w", err))), idx)
		}
		return
	}
	if d.halted() {
		release()
		return
	}

	d.begin(items)
	reply, err := d.callComplete(idx, entries)
	release()
	d.endRequest()

	var (
		resolved []Outcome
		fallback []*unit
	)
	if err != nil {
		d.log.WithFields(logrus.Fields{"batch": idx, "error": err}).Warn("batch request failed, falling back to single requests")
		fallback = units
	} else {
		parsed := batch.ParseResponse(reply, len(entries))
		for i, u := range units {
			if strings.TrimSpace(parsed[i]) == "" {
				fallback = append(fallback, u)
				continue
			}
			d.o.cache.PutKey(u.key, parsed[i])
			resolved = append(resolved, outcomesFor(u.items, backend.Ok(parsed[i]))...)
		}
		if len(fallback) > 0 {
			d.log.WithFields(logrus.Fields{"batch": idx, "unparsed": len(fallback)}).Warn("batch reply incomplete, falling back to single requests")
		}
	}

	if len(resolved) > 0 {
		d.finish(resolved, idx)
	}
	if len(fallback) == 0 {
		return
	}
	d.o.opts.Metrics.batchFallback(d.o.provider, len(fallback))
	for _, u := range fallback {
		d.setState(u.items, StatePending)
	}
	for _, u := range fallback {
		d.translateUnit(u, idx)
	}
}

func (d *dispatch) callComplete(idx int, entries []batch.Entry) (reply string, err error) {
	ctx, span := d.o.tracer.Start(d.ctx, "translate.batch", trace.WithAttributes(
		attribute.Int("batch", idx),
		attribute.Int("entries", len(entries)),
	))
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.log.WithField("batch", idx).Errorf("backend panic: %v", r)
			err = fmt.Errorf("backend panic: %v", r)
		}
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		d.o.opts.Metrics.backendCall(d.o.provider, "batch", err == nil, time.Since(start))
	}()

	prompt := d.o.opts.BatchPrompt
	if prompt == "" {
		prompt = batch.SystemPrompt
	}
	system := backend.ResolvePrompt(prompt, d.o.opts.SourceLang, d.o.opts.TargetLang)
	return d.o.completer.Complete(ctx, system, batch.BuildPrompt(entries, d.o.opts.TargetLang))
}

// ---------------------------------------------------------------------------
// Bookkeeping
// ---------------------------------------------------------------------------

// resolveHits completes every unit already in the cache with a single finish
// and returns the units that still need a backend call. Hits never wait for
// a concurrency slot or the launch delay.
func (d *dispatch) resolveHits(units []*unit) []*unit {
	var (
		hits    []Outcome
		pending []*unit
	)
	for _, u := range units {
		if text, ok := d.o.cache.GetKey(u.key); ok {
			hits = append(hits, outcomesFor(u.items, backend.Ok(text))...)
			continue
		}
		pending = append(pending, u)
	}
	if len(hits) > 0 {
		d.countHits(len(hits))
		d.finish(hits, -1)
	}
	return pending
}

// countHits records n items served from the cache in this run.
func (d *dispatch) countHits(n int) {
	d.o.mu.Lock()
	d.o.run.CacheHits += n
	d.o.mu.Unlock()
	d.o.opts.Metrics.cacheHit(d.o.provider, n)
}

func outcomesFor(items []Item, res backend.Result) []Outcome {
	out := make([]Outcome, len(items))
	for i, it := range items {
		oc := Outcome{ID: it.ID, Path: it.Path, Success: res.Success}
		if res.Success {
			oc.TranslatedText = res.Text
		} else {
			oc.Error = res.Error
		}
		out[i] = oc
	}
	return out
}

// begin marks items in flight and counts one active request.
func (d *dispatch) begin(items []Item) {
	d.o.mu.Lock()
	d.o.run.Active++
	for _, it := range items {
		d.o.states[it.ID] = StateInFlight
	}
	d.o.mu.Unlock()
	d.o.opts.Metrics.inFlight(d.o.provider, 1)
}

func (d *dispatch) endRequest() {
	d.o.mu.Lock()
	d.o.run.Active--
	d.o.mu.Unlock()
	d.o.opts.Metrics.inFlight(d.o.provider, -1)
}

func (d *dispatch) setState(items []Item, s State) {
	d.o.mu.Lock()
	defer d.o.mu.Unlock()
	for _, it := range items {
		d.o.states[it.ID] = s
	}
}

// finish records terminal outcomes and queues progress and completion
// notifications.
func (d *dispatch) finish(outs []Outcome, batchIdx int) {
	d.o.mu.Lock()
	rc := d.o.run
	for _, oc := range outs {
		d.o.outcomes[oc.ID] = oc
		if oc.Success {
			d.o.states[oc.ID] = StateCompleted
		} else {
			d.o.states[oc.ID] = StateFailed
			rc.Failed++
		}
		d.o.done[oc.ID] = true
		rc.Completed++
	}
	p := rc.progress()
	d.o.mu.Unlock()

	for _, oc := range outs {
		d.o.opts.Metrics.item(d.o.provider, oc.Success)
		if !oc.Success {
			d.log.WithFields(logrus.Fields{"item_id": oc.ID, "path": oc.Path, "error": oc.Error}).Warn("translation failed")
		}
	}
	d.notify.push(event{
		progress:   p,
		completion: &Completion{RunID: rc.ID, Batch: batchIdx, Outcomes: outs},
	})
}
