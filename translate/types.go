package translate

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNoItems is returned when a run is started with nothing to translate.
	ErrNoItems = errors.New("no items to translate")
	// ErrDuplicateID is returned when two items share an ID.
	ErrDuplicateID = errors.New("duplicate item ID")
	// ErrInvalidItem is returned for items with an empty ID or blank text.
	ErrInvalidItem = errors.New("invalid item")
	// ErrRunInProgress is returned when a run is started while another is active.
	ErrRunInProgress = errors.New("a translation run is already in progress")
	// ErrBatchingUnsupported is returned by New when the batched strategy is
	// requested for a backend without free-form prompts.
	ErrBatchingUnsupported = errors.New("backend does not support batched prompts")
	// ErrCancelled is the outcome error for items never dispatched because
	// the run was cancelled.
	ErrCancelled = errors.New("cancelled")
	// ErrPaused is the outcome error for items left pending by Pause.
	ErrPaused = errors.New("paused")
)

// Item is one string to translate. Items are immutable; retries reuse the
// original SourceText.
type Item struct {
	ID         string `json:"id"`
	Path       string `json:"path"`
	SourceText string `json:"source_text"`
}

// Outcome is the result of translating one Item. TranslatedText is set iff
// Success; Error is set iff not.
type Outcome struct {
	ID             string `json:"id"`
	Path           string `json:"path"`
	Success        bool   `json:"success"`
	TranslatedText string `json:"translated_text,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Cancelled reports whether the item was never dispatched because the run
// was cancelled.
func (o Outcome) Cancelled() bool {
	return !o.Success && o.Error == ErrCancelled.Error()
}

// Paused reports whether the item was left pending by Pause.
func (o Outcome) Paused() bool {
	return !o.Success && o.Error == ErrPaused.Error()
}

// State is the lifecycle position of an item.
type State string

const (
	StatePending   State = "pending"
	StateInFlight  State = "in_flight"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Strategy selects how items are dispatched to the backend.
type Strategy string

const (
	// StrategyParallel sends every item as its own request.
	StrategyParallel Strategy = "parallel"
	// StrategyBatched packs items into numbered multi-string prompts.
	StrategyBatched Strategy = "batched"
)

// ParseStrategy parses a strategy name. Empty means parallel.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "parallel", "individual":
		return StrategyParallel, nil
	case "batched", "batch":
		return StrategyBatched, nil
	default:
		return "", fmt.Errorf("unknown strategy: %s (supported: parallel, batched)", s)
	}
}

// Progress is emitted after every finished item or batch. Completed counts
// items that reached a terminal state, successful or not.
type Progress struct {
	RunID                     string        `json:"run_id"`
	Completed                 int           `json:"completed"`
	Failed                    int           `json:"failed"`
	Total                     int           `json:"total"`
	Percentage                float64       `json:"percentage"`
	ItemsPerSecond            float64       `json:"items_per_second"`
	EstimatedSecondsRemaining float64       `json:"estimated_seconds_remaining"`
	Active                    int           `json:"active"`
	Elapsed                   time.Duration `json:"elapsed"`
}

// Completion is emitted when an item or a batch finishes. Batch is the
// batch index for the batched strategy and -1 otherwise.
type Completion struct {
	RunID    string    `json:"run_id"`
	Batch    int       `json:"batch"`
	Outcomes []Outcome `json:"outcomes"`
}

// RunContext is the bookkeeping of one drive over a set of items.
type RunContext struct {
	ID        string
	StartedAt time.Time
	Total     int
	Completed int
	Failed    int
	// Active is the number of backend requests currently in flight.
	Active int
	// CacheHits counts items of this run served from the cache.
	CacheHits int
	Cancelled bool
}

func (rc *RunContext) progress() Progress {
	p := Progress{
		RunID:     rc.ID,
		Completed: rc.Completed,
		Failed:    rc.Failed,
		Total:     rc.Total,
		Active:    rc.Active,
		Elapsed:   time.Since(rc.StartedAt),
	}
	if rc.Total > 0 {
		p.Percentage = float64(rc.Completed) / float64(rc.Total) * 100
	}
	if secs := p.Elapsed.Seconds(); secs > 0 {
		p.ItemsPerSecond = float64(rc.Completed) / secs
	}
	if p.ItemsPerSecond > 0 {
		p.EstimatedSecondsRemaining = float64(rc.Total-rc.Completed) / p.ItemsPerSecond
	}
	return p
}

func validateItems(items []Item) error {
	if len(items) == 0 {
		return ErrNoItems
	}
	seen := make(map[string]bool, len(items))
	for i, it := range items {
		if it.ID == "" {
			return fmt.Errorf("%w: item #%d has no ID", ErrInvalidItem, i)
		}
		if strings.TrimSpace(it.SourceText) == "" {
			return fmt.Errorf("%w: item %q has no source text", ErrInvalidItem, it.ID)
		}
		if seen[it.ID] {
			return fmt.Errorf("%w: %q", ErrDuplicateID, it.ID)
		}
		seen[it.ID] = true
	}
	return nil
}
