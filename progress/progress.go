package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/forestmonster/rsmf-browser/stats"
)

// Bar manages a progress bar while units are exported.
type Bar struct {
	pb      *pterm.ProgressbarPrinter
	total   int
	mu      sync.Mutex
	enabled bool
}

// New creates a progress bar if logLevel is "info"; at other levels the bar
// would interleave with log lines, so it stays disabled.
func New(total int, logLevel string) *Bar {
	enabled := logLevel == "info"

	bar := &Bar{
		total:   total,
		enabled: enabled,
	}

	if enabled {
		pb, _ := pterm.DefaultProgressbar.
			WithTotal(total).
			WithTitle("Exporting units").
			Start()
		bar.pb = pb

		pterm.Info.Printf("Units in archive: %d\n", total)
		pterm.Println()
	}

	return bar
}

// Update advances the bar based on the event type.
func (b *Bar) Update(evt stats.Event) {
	if !b.enabled || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch evt.Type {
	case stats.EventTypeScanned:
		b.pb.Increment()

		if evt.Entry != "" {
			display := evt.Entry
			if len(display) > 40 {
				display = display[:37] + "..."
			}
			b.pb.UpdateTitle("Exporting: " + display)
		}
	case stats.EventTypeExported, stats.EventTypeSkipped:
		// The bar already advanced on the scan; per-unit outcomes stay quiet
		// to keep the output clean.
	case stats.EventTypeError:
		if evt.Err != nil {
			pterm.Error.Printf("Error: %v\n", evt.Err)
		}
	}
}

// Stop finalizes the progress bar.
func (b *Bar) Stop() {
	if !b.enabled || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pb.Current < b.total {
		b.pb.Current = b.total
	}

	b.pb.Stop()
	pterm.Success.Println("Export complete!")
}

// Reporter fans one event stream into the progress bar and a stats collector,
// then logs the final summary.
type Reporter struct {
	bar       *Bar
	collector *stats.Collector
	logger    *slog.Logger
	started   time.Time
}

func NewReporter(bar *Bar, logger *slog.Logger) *Reporter {
	return &Reporter{
		bar:       bar,
		collector: stats.NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}
}

// Consume reads events until the channel closes, then stops the bar and
// prints the summary.
func (r *Reporter) Consume(ctx context.Context, events <-chan stats.Event) {
	for {
		select {
		case <-ctx.Done():
			r.finish()
			return
		case evt, ok := <-events:
			if !ok {
				r.finish()
				return
			}
			if r.bar != nil {
				r.bar.Update(evt)
			}
			r.collector.Apply(evt)
		}
	}
}

func (r *Reporter) Summary() stats.Summary {
	return r.collector.Snapshot()
}

func (r *Reporter) finish() {
	if r.bar != nil {
		r.bar.Stop()
	}

	summary := r.collector.Snapshot()
	attrs := append([]any{"duration", time.Since(r.started).String()}, summary.LogAttrs()...)
	if r.logger != nil {
		r.logger.Info("export summary", attrs...)
	}
}
