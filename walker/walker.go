package walker

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/forestmonster/rsmf-browser/model"
	"github.com/forestmonster/rsmf-browser/rsmf"
	"github.com/forestmonster/rsmf-browser/stats"
	"github.com/forestmonster/rsmf-browser/store"
)

// rsmfSuffix marks the outer-archive entries that carry one message each.
const rsmfSuffix = ".rsmf"

// Walker runs one pass over one outer archive: channel discovery once, then
// RSMF units decoded strictly in archive enumeration order, each emitted as
// an event before the next entry is read.
type Walker struct {
	path      string
	logger    *slog.Logger
	collector *stats.Collector
}

func New(path string, logger *slog.Logger) (*Walker, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("archive path is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{
		path:      path,
		logger:    logger,
		collector: stats.NewCollector(),
	}, nil
}

// Stats returns the counters accumulated by the walk so far.
func (w *Walker) Stats() stats.Summary {
	return w.collector.Snapshot()
}

// Walk emits exactly one channels event, then one messages event per
// decoded unit, onto out. The returned Session holds the accumulated result
// and is only valid when err is nil; committing it is the caller's call, so
// a concurrent reader never observes a partial walk.
//
// An unopenable archive is the only walk-fatal failure: it is reported both
// as an error event and as the returned error. Per-entry failures are
// logged, counted and skipped. A canceled context stops the walk at the
// next entry boundary.
func (w *Walker) Walk(ctx context.Context, out chan<- model.Event) (*store.Session, error) {
	reader, err := zip.OpenReader(w.path)
	if err != nil {
		err = fmt.Errorf("open archive: %w", err)
		w.collector.Apply(stats.Event{Stage: stats.StageWalk, Type: stats.EventTypeError, Err: err})
		if emitErr := w.emit(ctx, out, model.Event{Type: model.EventError, Err: err}); emitErr != nil {
			return nil, emitErr
		}
		return nil, err
	}
	defer reader.Close()

	names := make([]string, 0, len(reader.File))
	for _, f := range reader.File {
		names = append(names, f.Name)
	}

	channels, periods := DiscoverChannels(names)
	w.logger.Info("discovered channels", "archive", w.path, "channels", len(channels), "entries", len(names))

	// The channel list always precedes any message event.
	if err := w.emit(ctx, out, model.Event{Type: model.EventChannels, Channels: channels}); err != nil {
		return nil, err
	}

	session := store.NewSession(w.path, channels)

	for _, f := range reader.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !strings.HasSuffix(f.Name, rsmfSuffix) {
			continue
		}
		w.collector.Apply(stats.Event{Stage: stats.StageWalk, Type: stats.EventTypeScanned, Entry: f.Name})

		channel := OwnerOf(f.Name, periods)
		if channel == "" {
			w.logger.Warn("could not determine channel for entry", "entry", f.Name)
			w.collector.Apply(stats.Event{Stage: stats.StageWalk, Type: stats.EventTypeSkipped, Entry: f.Name})
			continue
		}

		raw, err := readEntry(f)
		if err != nil {
			w.logger.Error("entry unreadable, skipping", "entry", f.Name, "err", err)
			w.collector.Apply(stats.Event{Stage: stats.StageWalk, Type: stats.EventTypeError, Entry: f.Name, Err: err})
			continue
		}

		msg := rsmf.Decode(raw, w.logger)
		w.collector.Apply(stats.Event{Stage: stats.StageWalk, Type: stats.EventTypeDecoded, Entry: f.Name})

		if msg.Text == "" && len(msg.Attachments) == 0 {
			w.logger.Debug("unit has no text and no attachments, not emitted", "entry", f.Name)
			w.collector.Apply(stats.Event{Stage: stats.StageWalk, Type: stats.EventTypeEmpty, Entry: f.Name})
			continue
		}

		session.Append(channel, msg)
		if err := w.emit(ctx, out, model.Event{Type: model.EventMessages, Channel: channel, Message: msg}); err != nil {
			return nil, err
		}
		w.collector.Apply(stats.Event{Stage: stats.StageWalk, Type: stats.EventTypeEmitted, Entry: f.Name})
	}

	w.logger.Info("walk completed", w.collector.Snapshot().LogAttrs()...)
	return session, nil
}

// readEntry closes the entry handle before the next entry is opened.
func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (w *Walker) emit(ctx context.Context, out chan<- model.Event, evt model.Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- evt:
		return nil
	}
}
