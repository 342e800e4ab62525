package fluxruntime

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"
)

// RemoteRenderer delegates rendering to a hosted OpenAI-compatible images
// API. It exists for deployments without a local accelerator (CI, demo
// hosts): same Renderer interface, same error taxonomy, no VRAM.
//
// The hosted API has no adapter fusion, so ApplyAdapter is folded into the
// prompt: the adapter's presence biases the request text, not model weights.
// It is also not deterministic; the determinism law holds only for local
// backends, and deployments choosing this renderer accept that.
type RemoteRenderer struct {
	mu sync.Mutex

	client  *openai.Client
	modelID string

	loaded       bool
	adapterHint  string
	adapterScale float64
}

// RemoteConfig configures the remote render backend.
type RemoteConfig struct {
	// APIKey authenticates against the hosted API
	APIKey string
	// BaseURL overrides the API endpoint (default: OpenAI)
	BaseURL string
	// Model is the hosted image model to request (e.g., "dall-e-3")
	Model string
}

// NewRemoteRenderer creates a remote backend from config.
func NewRemoteRenderer(cfg RemoteConfig) (*RemoteRenderer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("fluxruntime: remote renderer requires an API key")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = "dall-e-3"
	}
	return &RemoteRenderer{
		client:  openai.NewClientWithConfig(clientConfig),
		modelID: model,
	}, nil
}

// ModelID implements Renderer.
func (r *RemoteRenderer) ModelID() string { return r.modelID }

// LoadBase implements Renderer. The remote model is always resident on the
// provider's side; "loading" only flips local bookkeeping.
func (r *RemoteRenderer) LoadBase(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = true
	return nil
}

// UnloadBase implements Renderer.
func (r *RemoteRenderer) UnloadBase() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = false
	r.adapterHint = ""
}

// ApplyAdapter implements Renderer. The artifact is never uploaded; its
// style id stem becomes a prompt bias instead.
func (r *RemoteRenderer) ApplyAdapter(_ context.Context, artifactPath string, weight float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		return ErrModelUnavailable
	}
	hint := strings.TrimSuffix(artifactPath, ".safetensors")
	hint = strings.ReplaceAll(hint, "_", " ")
	r.adapterHint = hint
	r.adapterScale = weight
	return nil
}

// RemoveAdapter implements Renderer.
func (r *RemoteRenderer) RemoveAdapter(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapterHint = ""
	r.adapterScale = 0
	return nil
}

// Render implements Renderer via the hosted images API.
func (r *RemoteRenderer) Render(ctx context.Context, params RenderParams) ([]byte, error) {
	r.mu.Lock()
	loaded := r.loaded
	hint := r.adapterHint
	r.mu.Unlock()

	if !loaded {
		return nil, ErrModelUnavailable
	}
	if err := ValidateParams(params); err != nil {
		return nil, err
	}

	prompt := params.Prompt
	if hint != "" {
		prompt = prompt + ", in the style of " + hint
	}

	req := openai.ImageRequest{
		Prompt:         prompt,
		Model:          r.modelID,
		Size:           remoteSize(params.Width),
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
		N:              1,
	}

	resp, err := r.client.CreateImage(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: remote api: %v", ErrRenderFailed, err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("%w: remote api returned no image data", ErrRenderFailed)
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("%w: decode remote payload: %v", ErrRenderFailed, err)
	}
	return data, nil
}

// remoteSize maps a pixel width to the nearest size the hosted API accepts.
func remoteSize(width int) string {
	switch {
	case width <= 256:
		return openai.CreateImageSize256x256
	case width <= 512:
		return openai.CreateImageSize512x512
	default:
		return openai.CreateImageSize1024x1024
	}
}

var _ Renderer = (*RemoteRenderer)(nil)
var _ Renderer = (*LocalRenderer)(nil)
