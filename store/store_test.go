package store

import (
	"testing"

	"github.com/forestmonster/rsmf-browser/model"
)

func TestSessionAppendOrder(t *testing.T) {
	session := NewSession("/tmp/a.zip", []model.Channel{{ID: "general", Name: "general"}})

	session.Append("general", model.Message{Text: "one"})
	session.Append("general", model.Message{Text: "two"})

	msgs := session.Messages("general")
	if len(msgs) != 2 || msgs[0].Text != "one" || msgs[1].Text != "two" {
		t.Errorf("messages = %v, want append order preserved", msgs)
	}
	if session.MessageCount() != 2 {
		t.Errorf("MessageCount = %d, want 2", session.MessageCount())
	}
}

func TestSessionUnknownChannelEmpty(t *testing.T) {
	session := NewSession("/tmp/a.zip", nil)
	if msgs := session.Messages("nope"); len(msgs) != 0 {
		t.Errorf("messages for unknown channel = %v, want none", msgs)
	}
}

func TestStoreCommitReplaces(t *testing.T) {
	st := New()

	if st.Current() != nil {
		t.Fatal("Current is non-nil before the first commit")
	}

	first := NewSession("/tmp/first.zip", nil)
	if previous := st.Commit(first); previous != nil {
		t.Errorf("first Commit returned %v, want nil", previous)
	}
	if st.Current() != first {
		t.Error("Current does not return the committed session")
	}

	second := NewSession("/tmp/second.zip", nil)
	if previous := st.Commit(second); previous != first {
		t.Error("Commit did not return the replaced session")
	}
	if st.Current() != second {
		t.Error("Current does not return the newest session")
	}
}
