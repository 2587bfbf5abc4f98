package translate

import (
	"context"
	"fmt"
	"time"

	"github.com/minios-linux/jsonloc/jsondoc"
)

// ApplyError reports a translation that could not be written back.
type ApplyError struct {
	Path string `json:"path"`
	Err  error  `json:"-"`
}

func (e ApplyError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }

func (e ApplyError) Unwrap() error { return e.Err }

// Apply writes every successful outcome into a deep copy of original and
// returns the copy. Failed outcomes are skipped and keep their source value.
// A path that cannot be written is reported and does not stop the others.
func Apply(original any, outcomes []Outcome) (any, []ApplyError) {
	doc := jsondoc.Clone(original)
	var errs []ApplyError
	for _, oc := range outcomes {
		if !oc.Success {
			continue
		}
		next, err := jsondoc.SetAtPath(doc, oc.Path, oc.TranslatedText)
		if err != nil {
			errs = append(errs, ApplyError{Path: oc.Path, Err: err})
			continue
		}
		doc = next
	}
	return doc, errs
}

// ItemsFromLeaves turns extracted leaves into items with positional IDs.
func ItemsFromLeaves(leaves []jsondoc.Leaf) []Item {
	items := make([]Item, len(leaves))
	for i, l := range leaves {
		items[i] = Item{ID: fmt.Sprintf("item-%d", i), Path: l.Path, SourceText: l.Value}
	}
	return items
}

// Stats summarises a document translation.
type Stats struct {
	RunID     string        `json:"run_id"`
	Total     int           `json:"total"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Cancelled int           `json:"cancelled"`
	Paused    int           `json:"paused"`
	CacheHits int           `json:"cache_hits"`
	Duration  time.Duration `json:"duration"`
}

// DocumentResult is the translated document together with per-item results.
type DocumentResult struct {
	Document    any
	Outcomes    []Outcome
	ApplyErrors []ApplyError
	Stats       Stats
}

// TranslateDocument extracts the leaves of doc, runs them and applies the
// results. It fails before any work with jsondoc.ErrNoTranslatableLeaves when
// doc has nothing to translate.
func (o *Orchestrator) TranslateDocument(ctx context.Context, doc any) (*DocumentResult, error) {
	leaves := jsondoc.Extract(doc)
	if len(leaves) == 0 {
		return nil, jsondoc.ErrNoTranslatableLeaves
	}
	start := time.Now()
	outcomes, err := o.Run(ctx, ItemsFromLeaves(leaves))
	if err != nil {
		return nil, err
	}
	return o.result(doc, outcomes, time.Since(start)), nil
}

// Rebuild applies the current outcomes to doc, e.g. after RetryFailed.
func (o *Orchestrator) Rebuild(doc any) *DocumentResult {
	return o.result(doc, o.Outcomes(), 0)
}

func (o *Orchestrator) result(doc any, outcomes []Outcome, elapsed time.Duration) *DocumentResult {
	out, applyErrs := Apply(doc, outcomes)
	rc := o.RunContext()
	st := Stats{
		RunID:     rc.ID,
		Total:     len(outcomes),
		CacheHits: rc.CacheHits,
		Duration:  elapsed,
	}
	for _, oc := range outcomes {
		switch {
		case oc.Success:
			st.Completed++
		case oc.Cancelled():
			st.Cancelled++
		case oc.Paused():
			st.Paused++
		default:
			st.Failed++
		}
	}
	return &DocumentResult{Document: out, Outcomes: outcomes, ApplyErrors: applyErrs, Stats: st}
}
