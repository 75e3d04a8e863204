package rsmf

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"

	"github.com/forestmonster/rsmf-browser/model"
)

// ManifestName is the well-known manifest entry inside an RSMF unit's
// embedded archive.
const ManifestName = "rsmf_manifest.json"

const zipContentType = "application/zip"

// Decode parses one RSMF unit: a MIME document whose body carries the
// message text and whose optional application/zip part carries attachments
// plus a manifest overriding the message fields.
//
// Decode never fails: when MIME parsing breaks down the raw bytes are
// returned as a degraded but valid message, so downstream consumers never
// lose a unit they knew existed. Decoding is a pure function of raw.
func Decode(raw []byte, logger *slog.Logger) model.Message {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		if logger != nil {
			logger.Error("rsmf mime parse failed", "err", err)
		}
		return model.Message{
			Text:        normalizeText(string(raw)),
			User:        "Unknown",
			TS:          "",
			Attachments: []model.Attachment{},
		}
	}

	metadata := readMetadata(env)

	msg := model.Message{
		Text:        env.Text,
		User:        metadata.Custodian,
		TS:          "",
		Metadata:    metadata,
		Attachments: []model.Attachment{},
	}
	if metadata.Timestamp != nil {
		msg.TS = *metadata.Timestamp
	}

	if part := findZipPart(env); part != nil {
		applyEmbeddedArchive(&msg, part.Content, logger)
	}

	// Normalization is the final step so manifest-supplied text is covered.
	msg.Text = normalizeText(msg.Text)
	return msg
}

// ExtractAttachment returns the named entry of the unit's embedded archive,
// when both exist. Used by on-demand attachment retrieval; Decode does not
// retain attachment bytes.
func ExtractAttachment(raw []byte, id string) ([]byte, bool) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, false
	}
	part := findZipPart(env)
	if part == nil {
		return nil, false
	}

	zr, err := zip.NewReader(bytes.NewReader(part.Content), int64(len(part.Content)))
	if err != nil {
		return nil, false
	}
	for _, f := range zr.File {
		if f.Name != id {
			continue
		}
		data, err := readZipEntry(f)
		if err != nil {
			return nil, false
		}
		return data, true
	}
	return nil, false
}

// UnitOrigin reads just the custodian and begin date of a unit. Exporters
// need these for mailbox envelopes and nothing else, so the embedded archive
// is left untouched.
func UnitOrigin(raw []byte) (custodian string, date time.Time) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return "Unknown", time.Time{}
	}
	custodian = headerOr(env, "X-RSMF-Custodian", "Unknown")
	if v := env.GetHeader("X-RSMF-BeginDate"); v != "" {
		if t, ok := parseBeginDate(v); ok {
			date = t
		}
	}
	return custodian, date
}

func findZipPart(env *enmime.Envelope) *enmime.Part {
	if env.Root == nil {
		return nil
	}
	part := env.Root.DepthMatchFirst(func(p *enmime.Part) bool {
		return strings.EqualFold(p.ContentType, zipContentType)
	})
	if part == nil || len(part.Content) == 0 {
		return nil
	}
	return part
}

func readMetadata(env *enmime.Envelope) model.Metadata {
	metadata := model.Metadata{
		Custodian:  headerOr(env, "X-RSMF-Custodian", "Unknown"),
		EventCount: headerOr(env, "X-RSMF-EventCount", "0"),
		BeginDate:  env.GetHeader("X-RSMF-BeginDate"),
		EndDate:    env.GetHeader("X-RSMF-EndDate"),
		Version:    env.GetHeader("X-RSMF-Version"),
		Generator:  env.GetHeader("X-RSMF-Generator"),
	}

	if metadata.BeginDate != "" {
		if t, ok := parseBeginDate(metadata.BeginDate); ok {
			ts := float64(t.Unix())
			metadata.Timestamp = &ts
		}
	}
	return metadata
}

func headerOr(env *enmime.Envelope, name, fallback string) string {
	if v := env.GetHeader(name); v != "" {
		return v
	}
	return fallback
}

// parseBeginDate accepts RFC3339 timestamps and zone-less ISO-8601 ones; the
// latter are treated as UTC. An unparsable date is not an error.
func parseBeginDate(value string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// applyEmbeddedArchive enumerates the unit's inner zip from an in-memory
// reader scoped to this call; there is no temp file to leak. Every entry
// except the manifest becomes an attachment. An unreadable inner archive
// leaves the message as decoded so far.
func applyEmbeddedArchive(msg *model.Message, data []byte, logger *slog.Logger) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if logger != nil {
			logger.Warn("rsmf embedded archive unreadable", "err", err)
		}
		return
	}

	var manifestFile *zip.File
	for _, f := range zr.File {
		if f.Name == ManifestName {
			manifestFile = f
			continue
		}
		msg.Attachments = append(msg.Attachments, model.Attachment{
			ID:      f.Name,
			Display: path.Base(f.Name),
			Size:    f.UncompressedSize64,
		})
	}

	if manifestFile == nil {
		return
	}
	manifest, err := readManifest(manifestFile)
	if err != nil {
		if logger != nil {
			logger.Warn("rsmf manifest unreadable, override skipped", "err", err)
		}
		return
	}
	applyManifest(msg, manifest)
}

func readManifest(f *zip.File) (model.Manifest, error) {
	data, err := readZipEntry(f)
	if err != nil {
		return model.Manifest{}, err
	}

	var manifest model.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return model.Manifest{}, err
	}
	return manifest, nil
}

// applyManifest overwrites MIME-derived fields with the first manifest event
// of type "message". Later events are ignored; keys absent from the event
// keep their MIME-derived values.
func applyManifest(msg *model.Message, manifest model.Manifest) {
	if len(manifest.Events) == 0 {
		return
	}
	event := manifest.Events[0]
	if event.Type != "message" {
		return
	}

	if event.Body != nil {
		msg.Text = *event.Body
	}
	if event.Participant != nil {
		msg.User = *event.Participant
	}
	if event.Timestamp != nil {
		msg.TS = event.Timestamp
	}
	msg.ThreadTS = event.Parent
	msg.Reactions = event.Reactions
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// normalizeText strips NUL bytes and folds all line endings to "\n".
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
