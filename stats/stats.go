package stats

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type Stage string

const (
	StageWalk   Stage = "walk"
	StageExport Stage = "export"
)

type EventType string

const (
	EventTypeScanned  EventType = "scanned"
	EventTypeDecoded  EventType = "decoded"
	EventTypeEmitted  EventType = "emitted"
	EventTypeSkipped  EventType = "skipped"
	EventTypeEmpty    EventType = "empty"
	EventTypeExported EventType = "exported"
	EventTypeError    EventType = "error"
)

type Event struct {
	Stage Stage
	Type  EventType
	Entry string
	Err   error
}

type Summary struct {
	Scanned   int
	Decoded   int
	Emitted   int
	Skipped   int
	Empty     int
	Exported  int
	Errors    int
	LastError error
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"scanned", s.Scanned,
		"decoded", s.Decoded,
		"emitted", s.Emitted,
		"skipped", s.Skipped,
		"empty", s.Empty,
		"exported", s.Exported,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

type Collector struct {
	mu      sync.Mutex
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{}
}

// Apply records one event. Safe for concurrent use.
func (c *Collector) Apply(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeScanned:
		c.summary.Scanned++
	case EventTypeDecoded:
		c.summary.Decoded++
	case EventTypeEmitted:
		c.summary.Emitted++
	case EventTypeSkipped:
		c.summary.Skipped++
	case EventTypeEmpty:
		c.summary.Empty++
	case EventTypeExported:
		c.summary.Exported++
	case EventTypeError:
		c.summary.Errors++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

// Run consumes events until the channel closes or the context ends.
func (c *Collector) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.Apply(evt)
		}
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}

// PrettyPrintTop prints the top N most frequent items in a map.
func PrettyPrintTop(m map[string]int, limit int) {
	type pair struct {
		Key   string
		Value int
	}

	var pairs []pair
	for k, v := range m {
		pairs = append(pairs, pair{k, v})
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].Value > pairs[j].Value
	})

	for i := 0; i < limit && i < len(pairs); i++ {
		fmt.Printf("%d. %s (%d)\n", i+1, pairs[i].Key, pairs[i].Value)
	}
}
