package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/snapseek/internal/embedding"
	"github.com/hyperjump/snapseek/internal/models"
	"github.com/hyperjump/snapseek/internal/storage"
	"github.com/hyperjump/snapseek/internal/vector"
	"github.com/hyperjump/snapseek/pkg/utils"
)

// Multipart field names. The camelCase names are accepted for older mobile clients.
const (
	fieldImage      = "image"
	fieldOwnerID    = "owner_id"
	fieldUserID     = "userId"
	fieldSourcePath = "source_path"
	fieldDevicePath = "deviceImagePath"
	fieldMimeType   = "mime_type"
)

func (s *Server) handleIndexImage(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.config.Server.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+(1<<20))
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "image too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(fieldImage)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "no image file uploaded")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read image")
		return
	}
	if int64(len(data)) > maxBytes {
		s.respondError(w, http.StatusRequestEntityTooLarge, "image too large")
		return
	}

	req := &models.IndexRequest{
		OwnerID:    utils.FirstNonEmpty(r.FormValue(fieldOwnerID), r.FormValue(fieldUserID)),
		SourcePath: utils.FirstNonEmpty(r.FormValue(fieldSourcePath), r.FormValue(fieldDevicePath)),
		Image:      data,
		MimeType:   detectMimeType(r.FormValue(fieldMimeType), header.Header.Get("Content-Type"), data),
	}
	s.logger.Debug("index image request",
		zap.String("owner_id", req.OwnerID),
		zap.String("source_path", req.SourcePath),
		zap.Int("bytes", len(data)))

	result, err := s.indexer.IndexPhoto(r.Context(), req)
	if err != nil {
		s.logger.Error("indexing failed", zap.String("source_path", req.SourcePath), zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	if result.AlreadyIndexed {
		s.respondJSON(w, http.StatusOK, map[string]string{
			"status":  "already_indexed",
			"id":      result.ID,
			"message": "Image already indexed.",
		})
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{
		"status":  "indexed",
		"id":      result.ID,
		"message": "Image indexed successfully.",
	})
}

func detectMimeType(explicit, header string, data []byte) string {
	if m := utils.FirstNonEmpty(explicit, header); m != "" && m != "application/octet-stream" {
		return m
	}
	return http.DetectContentType(data)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	response, ok := s.search(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

// legacyResult is the result shape of the /api/images/search route.
type legacyResult struct {
	DeviceImagePath string  `json:"deviceImagePath"`
	Score           float64 `json:"score"`
}

func (s *Server) handleLegacySearch(w http.ResponseWriter, r *http.Request) {
	response, ok := s.search(w, r)
	if !ok {
		return
	}
	out := make([]legacyResult, len(response.Results))
	for i, res := range response.Results {
		out[i] = legacyResult{DeviceImagePath: res.SourcePath, Score: res.Score}
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) (*models.SearchResponse, bool) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	s.logger.Debug("search request", zap.String("query", utils.FirstNonEmpty(query.Query, query.Prompt)), zap.Int("limit", query.Limit))
	response, err := s.engine.Search(r.Context(), &query)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return nil, false
	}
	return response, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "API is running...")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	count, err := s.index.Size(r.Context())
	if err != nil {
		s.logger.Error("status: count images failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	resp := map[string]interface{}{
		"images": count,
	}

	configInfo := map[string]interface{}{
		"storage_backend":      s.config.Storage.Backend,
		"embedding_provider":   s.provider,
		"embedding_dimensions": s.config.Embedding.Dimensions,
		"candidate_pool":       s.config.Search.CandidatePool,
		"result_limit":         s.config.Search.ResultLimit,
		"min_score":            s.config.Search.MinScore,
	}
	if diskBytes, err := storage.DiskUsageBytes(storage.Paths(s.config.Storage)...); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	resp["config"] = configInfo
	s.respondJSON(w, http.StatusOK, resp)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, embedding.ErrUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, vector.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	// Mobile clients read "message".
	s.respondJSON(w, status, map[string]string{"error": message, "message": message})
}
