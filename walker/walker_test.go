package walker

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/forestmonster/rsmf-browser/model"
	"github.com/forestmonster/rsmf-browser/store"
)

type archiveEntry struct {
	name string
	data []byte
}

func writeArchive(t *testing.T, entries []archiveEntry) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "export.zip")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	defer file.Close()

	zw := zip.NewWriter(file)
	for _, entry := range entries {
		w, err := zw.Create(entry.name)
		if err != nil {
			t.Fatalf("create entry %s: %v", entry.name, err)
		}
		if _, err := w.Write(entry.data); err != nil {
			t.Fatalf("write entry %s: %v", entry.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	return path
}

func rsmfUnit(custodian, body string) []byte {
	return []byte(fmt.Sprintf(
		"X-RSMF-Custodian: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		custodian, body))
}

type walkResult struct {
	session *store.Session
	err     error
}

func runWalk(t *testing.T, path string, ctx context.Context) ([]model.Event, walkResult) {
	t.Helper()

	w, err := New(path, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out := make(chan model.Event)
	done := make(chan walkResult, 1)
	go func() {
		session, walkErr := w.Walk(ctx, out)
		done <- walkResult{session, walkErr}
		close(out)
	}()

	var events []model.Event
	for evt := range out {
		events = append(events, evt)
	}
	return events, <-done
}

func TestWalkScenarioSingleChannel(t *testing.T) {
	path := writeArchive(t, []archiveEntry{
		{"Channels - general/a.rsmf", rsmfUnit("alice", "hello")},
		{"Channels - general/b.rsmf", rsmfUnit("bob", "world")},
	})

	events, res := runWalk(t, path, context.Background())
	if res.err != nil {
		t.Fatalf("Walk: %v", res.err)
	}

	if len(events) != 3 {
		t.Fatalf("got %d events, want 3 (channels + two messages)", len(events))
	}
	if events[0].Type != model.EventChannels {
		t.Fatalf("first event = %s, want channels", events[0].Type)
	}
	wantChannels := []model.Channel{{ID: "general", Name: "general"}}
	if len(events[0].Channels) != 1 || events[0].Channels[0] != wantChannels[0] {
		t.Errorf("channels = %v, want %v", events[0].Channels, wantChannels)
	}

	first := events[1]
	if first.Type != model.EventMessages || first.Channel != "general" {
		t.Fatalf("second event = %+v, want messages for general", first)
	}
	if first.Message.Text != "hello" || first.Message.User != "alice" {
		t.Errorf("message = {text: %q, user: %q}, want {hello, alice}", first.Message.Text, first.Message.User)
	}

	if res.session == nil {
		t.Fatal("session is nil")
	}
	msgs := res.session.Messages("general")
	if len(msgs) != 2 {
		t.Fatalf("session holds %d messages, want 2", len(msgs))
	}
	if msgs[0].Text != "hello" || msgs[1].Text != "world" {
		t.Errorf("session order = [%q, %q], want archive order [hello, world]", msgs[0].Text, msgs[1].Text)
	}
}

func TestWalkUnrelatedEntriesOnly(t *testing.T) {
	path := writeArchive(t, []archiveEntry{
		{"readme.txt", []byte("nothing to see")},
	})

	events, res := runWalk(t, path, context.Background())
	if res.err != nil {
		t.Fatalf("Walk: %v", res.err)
	}

	if len(events) != 1 {
		t.Fatalf("got %d events, want only the channels event", len(events))
	}
	if events[0].Type != model.EventChannels || len(events[0].Channels) != 0 {
		t.Errorf("event = %+v, want empty channels list", events[0])
	}
	if res.session.MessageCount() != 0 {
		t.Errorf("session holds %d messages, want 0", res.session.MessageCount())
	}
}

func TestWalkCorruptArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.zip")
	if err := os.WriteFile(path, []byte("this is not a zip central directory"), 0o644); err != nil {
		t.Fatalf("write broken archive: %v", err)
	}

	events, res := runWalk(t, path, context.Background())
	if res.err == nil {
		t.Fatal("Walk succeeded on a corrupt archive")
	}
	if res.session != nil {
		t.Error("session is non-nil after a fatal open failure")
	}

	if len(events) != 1 || events[0].Type != model.EventError {
		t.Fatalf("events = %+v, want exactly one error event", events)
	}
	if events[0].Err == nil {
		t.Error("error event carries no error")
	}
}

func TestWalkUnresolvedOwnershipSkipped(t *testing.T) {
	path := writeArchive(t, []archiveEntry{
		{"Channels - general/a.rsmf", rsmfUnit("alice", "hello")},
		{"loose.rsmf", rsmfUnit("mallory", "orphaned")},
	})

	events, res := runWalk(t, path, context.Background())
	if res.err != nil {
		t.Fatalf("Walk: %v", res.err)
	}

	var messageEvents int
	for _, evt := range events {
		if evt.Type == model.EventMessages {
			messageEvents++
			if evt.Message.User == "mallory" {
				t.Error("orphaned unit was emitted")
			}
		}
	}
	if messageEvents != 1 {
		t.Errorf("got %d message events, want 1", messageEvents)
	}
	if res.session.MessageCount() != 1 {
		t.Errorf("session holds %d messages, want 1", res.session.MessageCount())
	}
}

func TestWalkSkipsEmptyUnits(t *testing.T) {
	path := writeArchive(t, []archiveEntry{
		{"Channels - general/empty.rsmf", rsmfUnit("alice", "")},
		{"Channels - general/full.rsmf", rsmfUnit("alice", "content")},
	})

	events, res := runWalk(t, path, context.Background())
	if res.err != nil {
		t.Fatalf("Walk: %v", res.err)
	}

	var messageEvents int
	for _, evt := range events {
		if evt.Type == model.EventMessages {
			messageEvents++
		}
	}
	if messageEvents != 1 {
		t.Errorf("got %d message events, want 1 (empty unit not emitted)", messageEvents)
	}
	if got := len(res.session.Messages("general")); got != 1 {
		t.Errorf("session holds %d messages, want 1", got)
	}
}

func TestWalkStopsOnCanceledContext(t *testing.T) {
	path := writeArchive(t, []archiveEntry{
		{"Channels - general/a.rsmf", rsmfUnit("alice", "one")},
		{"Channels - general/b.rsmf", rsmfUnit("alice", "two")},
	})

	w, err := New(path, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan model.Event)
	done := make(chan walkResult, 1)
	go func() {
		session, walkErr := w.Walk(ctx, out)
		done <- walkResult{session, walkErr}
		close(out)
	}()

	// Take the channels event, then walk away. With an unbuffered channel
	// the producer cannot emit again; it must stop at its next suspension
	// point.
	<-out
	cancel()
	res := <-done
	for range out {
	}
	if !errors.Is(res.err, context.Canceled) {
		t.Errorf("Walk error = %v, want context.Canceled", res.err)
	}
	if res.session != nil {
		t.Error("session is non-nil after a canceled walk")
	}
}
