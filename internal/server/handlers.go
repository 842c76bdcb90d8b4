package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/analytics"
	"github.com/hyperjump/ruiji/internal/config"
	"github.com/hyperjump/ruiji/internal/indexer"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/storage"
	rjerr "github.com/hyperjump/ruiji/pkg/errors"
)

func (s *Server) decode(r *http.Request, w http.ResponseWriter, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := gojson.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return rjerr.New(rjerr.CodeServerRequestInvalid, "request body is empty")
		}
		return rjerr.Wrap(err, rjerr.CodeServerRequestInvalid, "invalid request body")
	}
	return nil
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req models.RecommendRequest
	if err := s.decode(r, w, &req); err != nil {
		s.respondError(w, err)
		return
	}
	s.logger.Debug("recommend request", zap.String("prompt", req.Prompt), zap.Int("k", req.K))
	response, err := s.engine.Recommend(r.Context(), req.Prompt, req.K)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleIngestItems(w http.ResponseWriter, r *http.Request) {
	var req models.IngestRequest
	if err := s.decode(r, w, &req); err != nil {
		s.respondError(w, err)
		return
	}
	s.logger.Debug("ingest request", zap.Int("items", len(req.Items)))
	result, err := s.indexer.Ingest(r.Context(), req.Items)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.IngestResponse{
		Status:       "ok",
		Count:        result.Accepted,
		UpsertResult: *result,
	})
}

// handleIngestDataset ingests an uploaded item file: a multipart "file" field, or the raw
// body. The format follows the file name, then the content type; CSV is the default.
func (s *Server) handleIngestDataset(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		src    io.Reader = r.Body
		format           = datasetFormat(mediaType, "")
	)
	if mediaType == "multipart/form-data" {
		file, hdr, err := r.FormFile("file")
		if err != nil {
			s.respondError(w, rjerr.Wrap(err, rjerr.CodeServerRequestInvalid, "multipart upload needs a file field"))
			return
		}
		defer file.Close()
		src, format = file, datasetFormat("", hdr.Filename)
	}

	items, err := indexer.DecodeItems(src, format)
	if err != nil {
		s.respondError(w, rjerr.Wrap(err, rjerr.CodeIngestBatchInvalid, "parse dataset",
			rjerr.Field("format", string(format))))
		return
	}
	if len(items) == 0 {
		s.respondError(w, rjerr.New(rjerr.CodeIngestBatchInvalid, "dataset is empty"))
		return
	}
	s.logger.Debug("dataset upload", zap.String("format", string(format)), zap.Int("items", len(items)))
	result, err := s.indexer.Ingest(r.Context(), items)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.IngestResponse{
		Status:       "indexed",
		Count:        result.Accepted,
		UpsertResult: *result,
	})
}

func datasetFormat(mediaType, filename string) indexer.Format {
	if ext := filepath.Ext(filename); ext != "" {
		if f, err := indexer.ParseFormat(ext); err == nil {
			return f
		}
	}
	switch mediaType {
	case "application/json":
		return indexer.FormatJSON
	case "application/x-ndjson", "application/jsonl":
		return indexer.FormatJSONLines
	default:
		return indexer.FormatCSV
	}
}

func (s *Server) handleAnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := analytics.Summarize(r.Context(), s.manager)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	meta, ok := s.manager.Get(r.Context(), id)
	if !ok {
		s.respondError(w, rjerr.New(rjerr.CodeServerEntityNotFound, "item not found", rjerr.Field("id", id)))
		return
	}
	s.respondJSON(w, http.StatusOK, models.ItemResponse{ID: id, Metadata: meta.Sanitized()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := s.config
	resp := models.StatusResponse{
		Index:  s.manager.Stats(),
		Config: cfg.Summary(),
	}
	if n, err := storage.DiskUsageBytes(cfg.StoragePaths()...); err == nil {
		resp.DiskUsageBytes = n
	} else {
		s.logger.Warn("status: disk usage failed", zap.Error(err))
	}
	if s.watch != nil {
		resp.WatchedDirs = s.watch.Directories()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondJSON(w, http.StatusNotImplemented, map[string]string{"error": "watch not enabled"})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondJSON(w, http.StatusNotImplemented, map[string]string{"error": "watch not enabled"})
		return
	}
	var req watchAddRequest
	if err := s.decode(r, w, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if req.Path == "" {
		s.respondError(w, rjerr.New(rjerr.CodeServerRequestInvalid, "path is required"))
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, rjerr.Wrap(err, rjerr.CodeServerRequestInvalid, "invalid path"))
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, rjerr.New(rjerr.CodeServerEntityNotFound, "directory not found", rjerr.Field("path", abs)))
			return
		}
		s.respondError(w, err)
		return
	}
	if !info.IsDir() {
		s.respondError(w, rjerr.New(rjerr.CodeServerRequestInvalid, "path is not a directory"))
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.respondError(w, err)
		return
	}
	s.saveWatchConfig()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondJSON(w, http.StatusNotImplemented, map[string]string{"error": "watch not enabled"})
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := s.decode(r, w, &body); err == nil {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, rjerr.New(rjerr.CodeServerRequestInvalid, "path is required (query or body)"))
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, rjerr.Wrap(err, rjerr.CodeServerRequestInvalid, "invalid path"))
		return
	}
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.respondError(w, err)
		return
	}
	s.saveWatchConfig()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

// saveWatchConfig writes the current watch directories back to the config file.
func (s *Server) saveWatchConfig() {
	if s.configPath == "" || s.config == nil {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.config.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.config); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = gojson.NewEncoder(w).Encode(data)
}

// respondError writes err with the status its code maps to. Server-side failures are logged.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := rjerr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	body := map[string]string{"error": err.Error()}
	if code := rjerr.CodeOf(err); code != "" {
		body["code"] = string(code)
	}
	s.respondJSON(w, status, body)
}
