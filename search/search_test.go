package search

import (
	"testing"

	"github.com/forestmonster/rsmf-browser/model"
	"github.com/forestmonster/rsmf-browser/store"
)

func fixtureSession() *store.Session {
	session := store.NewSession("/tmp/export.zip", []model.Channel{
		{ID: "general", Name: "general"},
		{ID: "random", Name: "random"},
	})
	session.Append("general", model.Message{Text: "Deploy finished", User: "alice", TS: "1"})
	session.Append("general", model.Message{Text: "deploy failed again", User: "bob", TS: "2"})
	session.Append("random", model.Message{Text: "lunch anyone?", User: "carol", TS: "3"})
	return session
}

func TestRun(t *testing.T) {
	session := fixtureSession()

	tests := []struct {
		name  string
		query Query
		want  int
	}{
		{"case-insensitive match", Query{Pattern: "deploy"}, 2},
		{"regex pattern", Query{Pattern: "fail(ed)?"}, 1},
		{"channel filter", Query{Pattern: "deploy", Channel: "random"}, 0},
		{"channel filter match", Query{Pattern: "lunch", Channel: "random"}, 1},
		{"no match", Query{Pattern: "zebra"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := Run(session, tt.query)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if len(results) != tt.want {
				t.Errorf("got %d results, want %d", len(results), tt.want)
			}
		})
	}
}

func TestRunResultShape(t *testing.T) {
	results, err := Run(fixtureSession(), Query{Pattern: "lunch"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}

	r := results[0]
	if r.Channel != "random" || r.User != "carol" || r.TS != "3" {
		t.Errorf("result = %+v, want channel random, user carol, ts 3", r)
	}
}

func TestRunInvalidPattern(t *testing.T) {
	if _, err := Run(fixtureSession(), Query{Pattern: "("}); err == nil {
		t.Error("expected an error for an invalid pattern")
	}
}

func TestRunNilSession(t *testing.T) {
	results, err := Run(nil, Query{Pattern: "anything"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}
