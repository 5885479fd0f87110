package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hyperjump/snapseek/internal/config"
	"github.com/hyperjump/snapseek/internal/embedding"
	"github.com/hyperjump/snapseek/internal/indexer"
	"github.com/hyperjump/snapseek/internal/models"
	"github.com/hyperjump/snapseek/internal/search"
	"github.com/hyperjump/snapseek/internal/vector"
)

func newTestServer(t *testing.T) (http.Handler, *embedding.MockProvider) {
	return newTestServerWith(t, nil)
}

func newTestServerWith(t *testing.T, configure func(*config.Config)) (http.Handler, *embedding.MockProvider) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Storage.Backend = config.BackendMemory
	cfg.Embedding.Provider = config.ProviderMock
	cfg.Embedding.Dimensions = 4
	config.ApplyDefaults(cfg)
	if configure != nil {
		configure(cfg)
	}

	provider := embedding.NewMockProvider(4)
	vecIdx, err := vector.NewMemoryIndex(4)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = vecIdx.Close() })
	engine := search.NewEngine(provider, vecIdx, cfg.Search)
	idx := indexer.NewIndexer(provider, vecIdx)
	srv := NewServer(engine, idx, vecIdx, cfg, provider.Name(), nil)
	return srv.Handler(), provider
}

func multipartBody(t *testing.T, fields map[string]string, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if image != nil {
		fw, err := mw.CreateFormFile("image", "photo.jpg")
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write(image)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func postIndex(t *testing.T, h http.Handler, path string, fields map[string]string, image []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, fields, image)
	r := httptest.NewRequest(http.MethodPost, path, body)
	r.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func postSearch(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestHandleIndexImage(t *testing.T) {
	h, provider := newTestServer(t)
	fields := map[string]string{"owner_id": "u1", "source_path": "/p/1"}

	w := postIndex(t, h, "/api/v1/images/index", fields, []byte("jpeg-A"))
	if w.Code != http.StatusCreated {
		t.Fatalf("first index: status %d body %s", w.Code, w.Body.String())
	}
	var out map[string]string
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["status"] != "indexed" || out["id"] == "" {
		t.Errorf("unexpected body %v", out)
	}

	w = postIndex(t, h, "/api/v1/images/index", fields, []byte("jpeg-B"))
	if w.Code != http.StatusOK {
		t.Fatalf("re-index: status %d", w.Code)
	}
	_ = json.NewDecoder(w.Body).Decode(&out)
	if out["status"] != "already_indexed" {
		t.Errorf("unexpected body %v", out)
	}
	if provider.Calls() != 1 {
		t.Errorf("provider calls = %d, want 1", provider.Calls())
	}
}

func TestHandleIndexImage_legacyFields(t *testing.T) {
	h, _ := newTestServer(t)
	w := postIndex(t, h, "/api/images/index", map[string]string{"userId": "u1", "deviceImagePath": "file:///DCIM/1.jpg"}, []byte("jpeg"))
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
}

func TestHandleIndexImage_errors(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
		image  []byte
		fail   error
		want   int
	}{
		{"no file", map[string]string{"owner_id": "u1", "source_path": "/p/1"}, nil, nil, http.StatusBadRequest},
		{"no owner", map[string]string{"source_path": "/p/1"}, []byte("x"), nil, http.StatusBadRequest},
		{"no path", map[string]string{"owner_id": "u1"}, []byte("x"), nil, http.StatusBadRequest},
		{"provider down", map[string]string{"owner_id": "u1", "source_path": "/p/1"}, []byte("x"),
			fmt.Errorf("%w: timeout", embedding.ErrUnavailable), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, provider := newTestServer(t)
			provider.FailWith(tt.fail)
			w := postIndex(t, h, "/api/v1/images/index", tt.fields, tt.image)
			if w.Code != tt.want {
				t.Errorf("status %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestHandleIndexImage_sizeLimit(t *testing.T) {
	h, provider := newTestServerWith(t, func(cfg *config.Config) { cfg.Server.MaxUploadBytes = 16 })
	fields := map[string]string{"owner_id": "u1", "source_path": "/p/big"}

	w := postIndex(t, h, "/api/v1/images/index", fields, bytes.Repeat([]byte("x"), 17))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized image: status %d, want 413", w.Code)
	}
	if provider.Calls() != 0 {
		t.Errorf("provider calls = %d, want 0", provider.Calls())
	}

	w = postIndex(t, h, "/api/v1/images/index", fields, bytes.Repeat([]byte("x"), 16))
	if w.Code != http.StatusCreated {
		t.Fatalf("image at the limit: status %d body %s", w.Code, w.Body.String())
	}
}

func TestHandleSearch(t *testing.T) {
	h, provider := newTestServer(t)
	provider.Set("jpeg-A", []float32{1, 0, 0, 0})
	provider.Set("jpeg-B", []float32{0, 1, 0, 0})
	provider.Set("red car", []float32{0.9, 0.1, 0, 0})
	postIndex(t, h, "/api/v1/images/index", map[string]string{"owner_id": "u1", "source_path": "/p/A"}, []byte("jpeg-A"))
	postIndex(t, h, "/api/v1/images/index", map[string]string{"owner_id": "u1", "source_path": "/p/B"}, []byte("jpeg-B"))

	w := postSearch(t, h, "/api/v1/images/search", `{"query":"red car"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
	var resp models.SearchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || resp.Results[0].SourcePath != "/p/A" {
		t.Errorf("unexpected results %+v", resp.Results)
	}

	w = postSearch(t, h, "/api/images/search", `{"prompt":"red car"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("legacy status %d", w.Code)
	}
	var legacy []legacyResult
	if err := json.NewDecoder(w.Body).Decode(&legacy); err != nil {
		t.Fatal(err)
	}
	if len(legacy) != 1 || legacy[0].DeviceImagePath != "/p/A" {
		t.Errorf("unexpected legacy results %+v", legacy)
	}
}

func TestHandleSearch_errors(t *testing.T) {
	h, provider := newTestServer(t)
	if w := postSearch(t, h, "/api/v1/images/search", `not json`); w.Code != http.StatusBadRequest {
		t.Errorf("bad body: status %d", w.Code)
	}
	if w := postSearch(t, h, "/api/v1/images/search", `{"query":"  "}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty query: status %d", w.Code)
	}
	provider.FailWith(embedding.ErrUnavailable)
	if w := postSearch(t, h, "/api/v1/images/search", `{"query":"cat"}`); w.Code != http.StatusBadGateway {
		t.Errorf("provider down: status %d", w.Code)
	}
}

func TestHandleStatusAndHealth(t *testing.T) {
	h, _ := newTestServer(t)
	postIndex(t, h, "/api/v1/images/index", map[string]string{"owner_id": "u1", "source_path": "/p/1"}, []byte("x"))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Images int                    `json:"images"`
		Config map[string]interface{} `json:"config"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Images != 1 || out.Config["storage_backend"] != "memory" {
		t.Errorf("unexpected status %+v", out)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("health: got %d", w.Code)
	}
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.Contains(w.Body.String(), "API is running") {
		t.Errorf("root: got %q", w.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", models.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("x: %w", embedding.ErrUnavailable), http.StatusBadGateway},
		{fmt.Errorf("x: %w", vector.ErrUnavailable), http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
