package embedding

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/hyperjump/snapseek/internal/config"
	"github.com/hyperjump/snapseek/pkg/utils"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// maxPredictResponseBytes bounds how much of a predict response is read.
var maxPredictResponseBytes int64 = 8 << 20

// VertexProvider calls the Vertex AI multimodal embedding model over REST.
type VertexProvider struct {
	endpoint   string
	model      string
	dimensions int
	client     *http.Client
	logger     *zap.Logger
}

// VertexOption configures a VertexProvider.
type VertexOption func(*VertexProvider)

// WithHTTPClient sets the HTTP client used for predict calls. The client is
// expected to attach credentials itself; no token source is created.
func WithHTTPClient(c *http.Client) VertexOption {
	return func(p *VertexProvider) {
		p.client = c
	}
}

// WithEndpoint overrides the predict URL.
func WithEndpoint(url string) VertexOption {
	return func(p *VertexProvider) {
		p.endpoint = url
	}
}

// WithVertexLogger sets the logger for the provider.
func WithVertexLogger(l *zap.Logger) VertexOption {
	return func(p *VertexProvider) {
		p.logger = l
	}
}

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters predictParameters `json:"parameters"`
}

type predictInstance struct {
	Text  string        `json:"text,omitempty"`
	Image *predictImage `json:"image,omitempty"`
}

type predictImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType,omitempty"`
}

type predictParameters struct {
	Dimension int `json:"dimension,omitempty"`
}

type predictResponse struct {
	Predictions []struct {
		TextEmbedding  []float32 `json:"textEmbedding"`
		ImageEmbedding []float32 `json:"imageEmbedding"`
	} `json:"predictions"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewVertexProvider creates a provider from cfg. Credentials come from
// cfg.CredentialsFile when set, otherwise from Application Default Credentials.
func NewVertexProvider(ctx context.Context, cfg config.EmbeddingConfig, opts ...VertexOption) (*VertexProvider, error) {
	p := &VertexProvider{
		endpoint:   cfg.Endpoint,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = utils.OrNop(p.logger)

	if p.endpoint == "" {
		if cfg.ProjectID == "" {
			return nil, fmt.Errorf("vertex provider requires a project id")
		}
		p.endpoint = fmt.Sprintf(
			"https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:predict",
			cfg.Location, cfg.ProjectID, cfg.Location, cfg.Model)
	}

	if p.client == nil {
		ts, err := tokenSource(ctx, cfg.CredentialsFile)
		if err != nil {
			return nil, err
		}
		p.client = oauth2.NewClient(context.Background(), ts)
	}
	return p, nil
}

func tokenSource(ctx context.Context, credentialsFile string) (oauth2.TokenSource, error) {
	if credentialsFile != "" {
		data, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, cloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("failed to parse credentials: %w", err)
		}
		return creds.TokenSource, nil
	}
	creds, err := google.FindDefaultCredentials(ctx, cloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("failed to find default credentials: %w", err)
	}
	return creds.TokenSource, nil
}

// EmbedText embeds a text query.
func (p *VertexProvider) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return p.predict(ctx, predictInstance{Text: text})
}

// EmbedImage embeds raw image bytes.
func (p *VertexProvider) EmbedImage(ctx context.Context, data []byte, mimeType string) ([]float32, error) {
	return p.predict(ctx, predictInstance{Image: &predictImage{
		BytesBase64Encoded: base64.StdEncoding.EncodeToString(data),
		MimeType:           mimeType,
	}})
}

func (p *VertexProvider) predict(ctx context.Context, instance predictInstance) ([]float32, error) {
	body, err := json.Marshal(predictRequest{
		Instances:  []predictInstance{instance},
		Parameters: predictParameters{Dimension: p.dimensions},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPredictResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrUnavailable, err)
	}
	if int64(len(raw)) > maxPredictResponseBytes {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", ErrUnavailable, maxPredictResponseBytes)
	}

	var pr predictResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response (body: %s): %v",
			ErrUnavailable, utils.Truncate(string(raw), 200), err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(utils.Truncate(string(raw), 200))
		if pr.Error != nil {
			msg = pr.Error.Message
		}
		p.logger.Warn("Vertex predict failed", zap.Int("status", resp.StatusCode), zap.String("message", msg))
		return nil, fmt.Errorf("%w: API returned status %d: %s", ErrUnavailable, resp.StatusCode, msg)
	}
	if pr.Error != nil {
		return nil, fmt.Errorf("%w: API error: %s", ErrUnavailable, pr.Error.Message)
	}
	if len(pr.Predictions) == 0 {
		return nil, fmt.Errorf("%w: no predictions returned", ErrUnavailable)
	}

	pred := pr.Predictions[0]
	if len(pred.TextEmbedding) > 0 {
		return pred.TextEmbedding, nil
	}
	return pred.ImageEmbedding, nil
}

// Dimensions returns the configured output dimension.
func (p *VertexProvider) Dimensions() int {
	return p.dimensions
}

// Name returns the model name.
func (p *VertexProvider) Name() string {
	return "vertex/" + p.model
}

// Close releases idle connections.
func (p *VertexProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
