// Package client talks to a running snapseek server: it uploads photos for
// indexing and runs searches on behalf of one owner.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/snapseek/internal/config"
	"github.com/hyperjump/snapseek/internal/embedding"
	"github.com/hyperjump/snapseek/internal/models"
	"github.com/hyperjump/snapseek/internal/vector"
	"github.com/hyperjump/snapseek/pkg/utils"
)

// Client is an HTTP client for the snapseek API.
type Client struct {
	baseURL      string
	ownerID      string
	maxDimension int
	jpegQuality  int
	http         *http.Client
	logger       *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithLogger sets the logger for the client.
func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New creates a client from cfg.
func New(cfg config.ClientConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	c := &Client{
		baseURL:      strings.TrimRight(cfg.ServerURL, "/"),
		ownerID:      cfg.OwnerID,
		maxDimension: cfg.MaxDimension,
		jpegQuality:  cfg.JPEGQuality,
		http:         &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = utils.OrNop(c.logger)
	return c
}

// OwnerID returns the owner the client searches for by default.
func (c *Client) OwnerID() string {
	return c.ownerID
}

// IndexPhoto reads photo.Path, downsizes it to a JPEG and uploads it with
// photo.Path as the source path.
func (c *Client) IndexPhoto(ctx context.Context, ownerID string, photo models.Photo) (*models.IndexResult, error) {
	raw, err := os.ReadFile(photo.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read photo: %w", err)
	}
	data, err := PrepareImage(raw, c.maxDimension, c.jpegQuality)
	if err != nil {
		return nil, err
	}
	return c.Upload(ctx, &models.IndexRequest{
		OwnerID:    ownerID,
		SourcePath: photo.Path,
		Image:      data,
		MimeType:   "image/jpeg",
	})
}

// Upload sends already prepared image bytes to the index endpoint.
func (c *Client) Upload(ctx context.Context, req *models.IndexRequest) (*models.IndexResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("owner_id", req.OwnerID)
	_ = mw.WriteField("source_path", req.SourcePath)
	if req.MimeType != "" {
		_ = mw.WriteField("mime_type", req.MimeType)
	}
	fw, err := mw.CreateFormFile("image", filepath.Base(req.SourcePath))
	if err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}
	if _, err := fw.Write(req.Image); err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/images/index", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Status string `json:"status"`
		ID     string `json:"id"`
	}
	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		result := &models.IndexResult{AlreadyIndexed: out.Status == "already_indexed", ID: out.ID}
		c.logger.Debug("Photo uploaded",
			zap.String("source_path", req.SourcePath),
			zap.Bool("already_indexed", result.AlreadyIndexed))
		return result, nil
	default:
		return nil, responseError(resp)
	}
}

// Search runs a query for the client's owner and returns the ranked results.
func (c *Client) Search(ctx context.Context, text string) ([]*models.SearchResult, error) {
	resp, err := c.Query(ctx, &models.SearchQuery{Query: text, OwnerID: c.ownerID})
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Query sends q to the search endpoint.
func (c *Client) Query(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/images/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

// Status is the shape of GET /api/v1/status.
type Status struct {
	Images         int                    `json:"images"`
	DiskUsageBytes *int64                 `json:"disk_usage_bytes,omitempty"`
	Config         map[string]interface{} `json:"config,omitempty"`
}

// Status fetches server status.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/status", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}
	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &status, nil
}

// responseError turns a non-2xx response into an error wrapping the matching
// domain sentinel, so callers can use errors.Is across the HTTP boundary.
func responseError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(b))
	if json.Unmarshal(b, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	switch resp.StatusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("server returned %d: %s: %w", resp.StatusCode, msg, models.ErrInvalidInput)
	case http.StatusBadGateway:
		return fmt.Errorf("server returned %d: %s: %w", resp.StatusCode, msg, embedding.ErrUnavailable)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("server returned %d: %s: %w", resp.StatusCode, msg, vector.ErrUnavailable)
	default:
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, msg)
	}
}
