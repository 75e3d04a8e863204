package search

import (
	"fmt"
	"regexp"

	"github.com/forestmonster/rsmf-browser/store"
)

// Query describes one search request: a pattern matched case-insensitively
// against message text, optionally restricted to one channel.
type Query struct {
	Pattern string
	Channel string
}

// Result is one match, shaped for the transport.
type Result struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
	User    string `json:"user"`
	TS      any    `json:"ts"`
}

// Run scans the committed session linearly, channel by channel in discovery
// order and messages in archive order. An invalid pattern is the only
// error; a nil session yields no results.
func Run(session *store.Session, q Query) ([]Result, error) {
	re, err := regexp.Compile("(?i)" + q.Pattern)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", q.Pattern, err)
	}

	results := []Result{}
	if session == nil {
		return results, nil
	}

	for _, channel := range session.Channels() {
		if q.Channel != "" && channel.ID != q.Channel {
			continue
		}
		for _, msg := range session.Messages(channel.ID) {
			if !re.MatchString(msg.Text) {
				continue
			}
			results = append(results, Result{
				Channel: channel.ID,
				Text:    msg.Text,
				User:    msg.User,
				TS:      msg.TS,
			})
		}
	}
	return results, nil
}
