package model

import "encoding/json"

// Channel groups RSMF units that share one "Channels - <name>" path segment
// of the outer archive.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Metadata carries the X-RSMF-* headers of one decoded unit. Timestamp is
// the begin date as epoch seconds, nil when the header is absent or does not
// parse as an ISO-8601 timestamp.
type Metadata struct {
	Timestamp  *float64 `json:"timestamp"`
	Custodian  string   `json:"from"`
	EventCount string   `json:"event_count"`
	BeginDate  string   `json:"begin_date"`
	EndDate    string   `json:"end_date"`
	Version    string   `json:"version"`
	Generator  string   `json:"generator"`
}

// Attachment describes one entry of an RSMF unit's embedded archive. ID is
// the full entry name, Display its base filename, Size the uncompressed
// byte count from the archive directory.
type Attachment struct {
	ID      string `json:"id"`
	Display string `json:"display"`
	Size    uint64 `json:"size"`
}

// Message is one decoded RSMF unit. TS is either the derived epoch-seconds
// number, a manifest-supplied value, or the empty string. ThreadTS and
// Reactions appear only when a manifest event supplies them.
type Message struct {
	Text        string            `json:"text"`
	User        string            `json:"user"`
	TS          any               `json:"ts"`
	Metadata    Metadata          `json:"metadata"`
	Attachments []Attachment      `json:"attachments"`
	ThreadTS    *string           `json:"thread_ts,omitempty"`
	Reactions   []json.RawMessage `json:"reactions,omitempty"`
}

// Manifest mirrors the rsmf_manifest.json document found inside a unit's
// embedded archive.
type Manifest struct {
	Events []ManifestEvent `json:"events"`
}

// ManifestEvent is one authoritative event from the manifest. Pointer fields
// distinguish absent keys from empty values, so that only keys actually
// present in the event override MIME-derived data.
type ManifestEvent struct {
	Type        string            `json:"type"`
	Body        *string           `json:"body"`
	Participant *string           `json:"participant"`
	Timestamp   any               `json:"timestamp"`
	Parent      *string           `json:"parent"`
	Reactions   []json.RawMessage `json:"reactions"`
}
