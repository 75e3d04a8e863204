package server

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/forestmonster/rsmf-browser/model"
	"github.com/forestmonster/rsmf-browser/rsmf"
	"github.com/forestmonster/rsmf-browser/search"
	"github.com/forestmonster/rsmf-browser/store"
	"github.com/forestmonster/rsmf-browser/walker"
)

// maxUploadBytes caps archive uploads at 2 GiB, matching the size of the
// exports the archive generator produces.
const maxUploadBytes = 2 << 30

type Options struct {
	StaticDir string
	UploadDir string
}

// Server is the HTTP transport over the walk/search/attachment core. It
// owns the session store and the spooled archive files backing it.
type Server struct {
	opts   Options
	store  *store.Store
	logger *slog.Logger
	mux    *http.ServeMux
}

func New(opts Options, logger *slog.Logger) (*Server, error) {
	if strings.TrimSpace(opts.UploadDir) == "" {
		return nil, fmt.Errorf("upload directory is empty")
	}
	if err := os.MkdirAll(opts.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		opts:   opts,
		store:  store.New(),
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /api/upload", s.handleUpload)
	s.mux.HandleFunc("POST /api/search", s.handleSearch)
	s.mux.HandleFunc("GET /data/", s.handleAttachment)
	s.mux.HandleFunc("/", s.handleStatic)
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Store exposes the session store for collaborators and tests.
func (s *Server) Store() *store.Store {
	return s.store
}

// handleUpload accepts one outer archive and streams walk events back as
// NDJSON, one event per line, flushed as they are produced. The session is
// committed only after the walk completes; a client that disconnects
// mid-stream leaves the previously committed session untouched.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "No file part")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		s.writeError(w, http.StatusBadRequest, "No selected file")
		return
	}
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".zip") {
		s.writeError(w, http.StatusBadRequest, "File must be a ZIP file")
		return
	}

	archivePath, err := s.spool(file)
	if err != nil {
		s.logger.Error("spool upload failed", "err", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("upload spooled", "name", header.Filename, "path", archivePath)

	wk, err := walker.New(archivePath, s.logger)
	if err != nil {
		s.removeArchive(archivePath)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events := make(chan model.Event, 32)
	type walkResult struct {
		session *store.Session
		err     error
	}
	done := make(chan walkResult, 1)
	go func() {
		defer close(events)
		session, walkErr := wk.Walk(ctx, events)
		done <- walkResult{session, walkErr}
	}()

	streamBroken := false
	for evt := range events {
		line, err := json.Marshal(evt)
		if err != nil {
			// One undeliverable event must not abort the stream.
			s.logger.Error("event serialization failed, line dropped", "type", evt.Type, "err", err)
			continue
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			s.logger.Warn("stream write failed, aborting walk", "err", err)
			streamBroken = true
			cancel()
			break
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	for range events {
	}

	res := <-done
	if res.err != nil || streamBroken {
		s.removeArchive(archivePath)
		if res.err != nil {
			s.logger.Error("walk failed", "err", res.err)
		}
		return
	}

	previous := s.store.Commit(res.session)
	if previous != nil && previous.ArchivePath() != archivePath {
		s.removeArchive(previous.ArchivePath())
	}
	s.logger.Info("session committed",
		"channels", len(res.session.Channels()), "messages", res.session.MessageCount())
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query   string `json:"query"`
		Channel string `json:"channel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := search.Run(s.store.Current(), search.Query{
		Pattern: req.Query,
		Channel: req.Channel,
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// handleAttachment re-opens the committed session's archive and extracts
// one entry on demand. The id is first looked up as an outer-archive entry;
// attachment ids recorded during decoding are inner-archive names, so the
// units' embedded archives are scanned as a fallback. No attachment bytes
// are retained between requests.
func (s *Server) handleAttachment(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/data/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	session := s.store.Current()
	if session == nil {
		http.Error(w, "No archive loaded", http.StatusNotFound)
		return
	}

	reader, err := zip.OpenReader(session.ArchivePath())
	if err != nil {
		s.logger.Error("open committed archive failed", "path", session.ArchivePath(), "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer reader.Close()

	data, ok := findAttachment(reader, id)
	if !ok {
		s.logger.Warn("attachment not found", "id", id)
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	contentType := mime.TypeByExtension(strings.ToLower(path.Ext(id)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(id)))
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("attachment write failed", "id", id, "err", err)
	}
}

func findAttachment(reader *zip.ReadCloser, id string) ([]byte, bool) {
	for _, f := range reader.File {
		if f.Name != id {
			continue
		}
		data, err := readEntry(f)
		return data, err == nil
	}

	for _, f := range reader.File {
		if !strings.HasSuffix(f.Name, ".rsmf") {
			continue
		}
		raw, err := readEntry(f)
		if err != nil {
			continue
		}
		if data, ok := rsmf.ExtractAttachment(raw, id); ok {
			return data, true
		}
	}
	return nil, false
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// handleStatic serves the single-page app: known files directly, everything
// else falls through to the index.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if s.opts.StaticDir == "" {
		http.NotFound(w, r)
		return
	}

	requested := filepath.Join(s.opts.StaticDir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
	if info, err := os.Stat(requested); err == nil && !info.IsDir() {
		http.ServeFile(w, r, requested)
		return
	}
	http.ServeFile(w, r, filepath.Join(s.opts.StaticDir, "index.html"))
}

// spool copies the upload into a scratch archive file; the walk and
// attachment retrieval need random access, which the request body cannot
// provide.
func (s *Server) spool(file io.Reader) (string, error) {
	tmp, err := os.CreateTemp(s.opts.UploadDir, "archive-*.zip")
	if err != nil {
		return "", fmt.Errorf("create scratch archive: %w", err)
	}
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("spool upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close scratch archive: %w", err)
	}
	return tmp.Name(), nil
}

func (s *Server) removeArchive(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("remove spooled archive failed", "path", path, "err", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("write response failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
