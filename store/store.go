package store

import (
	"sync"

	"github.com/forestmonster/rsmf-browser/model"
)

// Session is the accumulated result of one walk: the channel list plus the
// per-channel messages in archive enumeration order, together with the path
// of the archive they came from (needed to re-extract attachments on
// demand). A session is written only by the walker that builds it and is
// read-only once committed, so it carries no lock of its own.
type Session struct {
	archivePath string
	channels    []model.Channel
	messages    map[string][]model.Message
}

func NewSession(archivePath string, channels []model.Channel) *Session {
	messages := make(map[string][]model.Message, len(channels))
	for _, ch := range channels {
		messages[ch.ID] = []model.Message{}
	}
	return &Session{
		archivePath: archivePath,
		channels:    channels,
		messages:    messages,
	}
}

func (s *Session) Append(channel string, msg model.Message) {
	s.messages[channel] = append(s.messages[channel], msg)
}

func (s *Session) ArchivePath() string {
	return s.archivePath
}

func (s *Session) Channels() []model.Channel {
	return s.channels
}

// Messages returns the channel's messages in append order.
func (s *Session) Messages(channel string) []model.Message {
	return s.messages[channel]
}

// MessageCount returns the total number of messages across all channels.
func (s *Session) MessageCount() int {
	total := 0
	for _, msgs := range s.messages {
		total += len(msgs)
	}
	return total
}

// Store holds the currently committed session. Commit replaces it as one
// atomic step; a walk in progress is never observable through Current, so
// readers see either the previous complete result or the new one.
type Store struct {
	mu      sync.RWMutex
	current *Session
}

func New() *Store {
	return &Store{}
}

// Commit installs session as the current one and returns the session it
// replaced (nil on the first commit), so the caller can release resources
// tied to the old archive.
func (st *Store) Commit(session *Session) *Session {
	st.mu.Lock()
	previous := st.current
	st.current = session
	st.mu.Unlock()
	return previous
}

// Current returns the committed session, nil before the first commit.
func (st *Store) Current() *Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.current
}
