// Package export re-serializes the raw RSMF units of an archive into mail
// stores. Units are MIME documents already, so they travel unchanged; only
// the envelope (mailbox, sender, date) is derived from their headers and
// their place in the archive.
package export

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/forestmonster/rsmf-browser/rsmf"
	"github.com/forestmonster/rsmf-browser/stats"
	"github.com/forestmonster/rsmf-browser/walker"
)

// Unit is one raw RSMF unit with the envelope data an appender needs.
type Unit struct {
	Entry     string
	Channel   string
	Custodian string
	Date      time.Time
	Raw       []byte
}

// Appender writes units into some mail store. Close must flush; implementations
// are not safe for concurrent use.
type Appender interface {
	Append(ctx context.Context, unit Unit) error
	Close() error
}

type Options struct {
	ArchivePath string
	// Channel restricts the export to one channel id; empty exports all.
	Channel string
}

// CountUnits returns how many units Run would attempt, for progress totals.
func CountUnits(opts Options) (int, error) {
	reader, err := zip.OpenReader(opts.ArchivePath)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer reader.Close()

	names := make([]string, 0, len(reader.File))
	for _, f := range reader.File {
		names = append(names, f.Name)
	}
	_, periods := walker.DiscoverChannels(names)

	count := 0
	for _, f := range reader.File {
		if !strings.HasSuffix(f.Name, ".rsmf") {
			continue
		}
		channel := walker.OwnerOf(f.Name, periods)
		if channel == "" {
			continue
		}
		if opts.Channel != "" && channel != opts.Channel {
			continue
		}
		count++
	}
	return count, nil
}

// Run walks the archive and hands every matching unit to the appender. Entry
// read failures are reported and skipped; an appender failure aborts the run,
// since the store is likely gone.
func Run(ctx context.Context, opts Options, appender Appender, events chan<- stats.Event, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	reader, err := zip.OpenReader(opts.ArchivePath)
	if err != nil {
		err = fmt.Errorf("open archive: %w", err)
		emit(ctx, events, stats.Event{Stage: stats.StageExport, Type: stats.EventTypeError, Err: err})
		return err
	}
	defer reader.Close()

	names := make([]string, 0, len(reader.File))
	for _, f := range reader.File {
		names = append(names, f.Name)
	}
	_, periods := walker.DiscoverChannels(names)

	for _, f := range reader.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !strings.HasSuffix(f.Name, ".rsmf") {
			continue
		}
		emit(ctx, events, stats.Event{Stage: stats.StageExport, Type: stats.EventTypeScanned, Entry: f.Name})

		channel := walker.OwnerOf(f.Name, periods)
		if channel == "" || (opts.Channel != "" && channel != opts.Channel) {
			emit(ctx, events, stats.Event{Stage: stats.StageExport, Type: stats.EventTypeSkipped, Entry: f.Name})
			continue
		}

		raw, err := readEntry(f)
		if err != nil {
			logger.Error("read entry failed", "entry", f.Name, "err", err)
			emit(ctx, events, stats.Event{Stage: stats.StageExport, Type: stats.EventTypeError, Entry: f.Name, Err: err})
			continue
		}

		custodian, date := rsmf.UnitOrigin(raw)
		unit := Unit{
			Entry:     f.Name,
			Channel:   channel,
			Custodian: custodian,
			Date:      date,
			Raw:       raw,
		}
		if err := appender.Append(ctx, unit); err != nil {
			err = fmt.Errorf("append %s: %w", f.Name, err)
			emit(ctx, events, stats.Event{Stage: stats.StageExport, Type: stats.EventTypeError, Entry: f.Name, Err: err})
			return err
		}

		emit(ctx, events, stats.Event{Stage: stats.StageExport, Type: stats.EventTypeExported, Entry: f.Name})
		logger.Debug("unit exported", "entry", f.Name, "channel", channel, "custodian", custodian)
	}
	return nil
}

// emit is nil-tolerant: callers without a subscriber pass nil events.
func emit(ctx context.Context, events chan<- stats.Event, evt stats.Event) {
	if events == nil {
		return
	}
	select {
	case <-ctx.Done():
	case events <- evt:
	}
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
