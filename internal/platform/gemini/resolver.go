package gemini

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"text/template"
	"time"

	"github.com/phrazzld/genqueue/internal/config"
	"github.com/phrazzld/genqueue/internal/task"
	"google.golang.org/genai"
)

// imageGenerator is the subset of *genai.Models the resolver calls
type imageGenerator interface {
	GenerateImages(
		ctx context.Context,
		model string,
		prompt string,
		config *genai.GenerateImagesConfig,
	) (*genai.GenerateImagesResponse, error)
}

// Retry defaults for transient API errors
const (
	DefaultMaxRetries = 2
	DefaultRetryDelay = 2 * time.Second
)

// promptTemplates turn a task into an Imagen prompt, one per image-family type
var promptTemplates = template.Must(template.New("prompts").Parse(`
{{define "image"}}{{.Prompt}}{{end}}
{{define "upscale"}}A sharp, high resolution rendition of the image at {{.ImageURL}}{{with .Prompt}}. {{.}}{{end}}{{end}}
{{define "face-swap"}}The scene from {{.ImageURL}} with the face replaced{{with .Prompt}}: {{.}}{{end}}{{end}}
{{define "background-removal"}}The main subject of {{.ImageURL}} isolated on a plain transparent background{{end}}
{{define "style-transfer"}}The image at {{.ImageURL}} redrawn in this style: {{.Prompt}}{{end}}
`))

// Resolver produces image artifacts with the Gemini API.
type Resolver struct {
	generator  imageGenerator
	store      ArtifactStore
	model      string
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewResolver creates a Resolver backed by a real Gemini client.
func NewResolver(ctx context.Context, logger *slog.Logger, cfg config.ResolverConfig, store ArtifactStore) (*Resolver, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}

	return newResolver(client.Models, store, cfg.ImageModel, logger)
}

func newResolver(generator imageGenerator, store ArtifactStore, model string, logger *slog.Logger) (*Resolver, error) {
	if model == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: artifact store cannot be nil", ErrInvalidConfig)
	}
	return &Resolver{
		generator:  generator,
		store:      store,
		model:      model,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		logger:     logger.With("component", "gemini_resolver"),
	}, nil
}

// Types lists the task types this resolver can produce.
func Types() []task.Type {
	var out []task.Type
	for _, t := range task.Types {
		if t.ProducesImage() {
			out = append(out, t)
		}
	}
	return out
}

// Resolve generates the artifact for t and stores it.
func (r *Resolver) Resolve(ctx context.Context, t task.Task) (task.Output, error) {
	logger := r.logger.With("task_id", t.ID, "task_type", t.Type)

	prompt, err := buildPrompt(t)
	if err != nil {
		return task.Output{}, err
	}

	img, err := r.generateWithRetry(ctx, logger, prompt)
	if err != nil {
		return task.Output{}, err
	}

	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = "image/png"
	}
	locator, err := r.store.Save(ctx, t.ID+extensionFor(mimeType), img.ImageBytes)
	if err != nil {
		return task.Output{}, fmt.Errorf("failed to store artifact: %w", err)
	}

	logger.InfoContext(ctx, "image generated",
		"model", r.model,
		"bytes", len(img.ImageBytes),
		"result_url", locator)

	return task.Output{
		ResultURL:    locator,
		ThumbnailURL: r.saveThumbnail(ctx, logger, t.ID, img.ImageBytes, locator),
		MIMEType:     mimeType,
	}, nil
}

// saveThumbnail stores a downscaled copy of the artifact. When the image
// cannot be decoded or stored, the full artifact doubles as its thumbnail.
func (r *Resolver) saveThumbnail(ctx context.Context, logger *slog.Logger, id string, data []byte, fallback string) string {
	thumb, err := makeThumbnail(data)
	if err != nil {
		logger.WarnContext(ctx, "thumbnail skipped", "error", err)
		return fallback
	}
	locator, err := r.store.Save(ctx, id+"_thumb.jpg", thumb)
	if err != nil {
		logger.WarnContext(ctx, "failed to store thumbnail", "error", err)
		return fallback
	}
	return locator
}

func buildPrompt(t task.Task) (string, error) {
	if !t.Type.ProducesImage() {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, t.Type)
	}
	var buf bytes.Buffer
	if err := promptTemplates.ExecuteTemplate(&buf, string(t.Type), t.Input); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	if buf.Len() == 0 {
		return "", fmt.Errorf("%w: empty prompt for %s", ErrInvalidResponse, t.Type)
	}
	return buf.String(), nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

// generateWithRetry calls the API, retrying transient errors with
// exponential backoff and jitter. Safety blocks and empty responses are
// returned at once.
func (r *Resolver) generateWithRetry(ctx context.Context, logger *slog.Logger, prompt string) (*genai.Image, error) {
	for attempt := 0; ; attempt++ {
		logger.DebugContext(ctx, "calling gemini",
			"attempt", attempt+1,
			"max_attempts", r.maxRetries+1)

		resp, err := r.generator.GenerateImages(ctx, r.model, prompt, nil)
		if err == nil {
			return firstImage(resp)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		logger.WarnContext(ctx, "gemini call failed", "attempt", attempt+1, "error", err)
		if attempt >= r.maxRetries {
			return nil, fmt.Errorf("%w: exceeded maximum retry attempts (%d): %v",
				ErrTransientFailure, r.maxRetries, err)
		}

		// delay = base * 2^attempt * (0.5 .. 1.0)
		backoff := float64(r.retryDelay) * math.Pow(2, float64(attempt))
		delay := time.Duration(backoff * (0.5 + rand.Float64()*0.5))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func firstImage(resp *genai.GenerateImagesResponse) (*genai.Image, error) {
	if resp == nil || len(resp.GeneratedImages) == 0 {
		return nil, fmt.Errorf("%w: no images generated", ErrInvalidResponse)
	}
	var filtered string
	for _, gi := range resp.GeneratedImages {
		if gi == nil {
			continue
		}
		if gi.Image != nil && len(gi.Image.ImageBytes) > 0 {
			return gi.Image, nil
		}
		if gi.RAIFilteredReason != "" {
			filtered = gi.RAIFilteredReason
		}
	}
	if filtered != "" {
		return nil, fmt.Errorf("%w: %s", ErrContentBlocked, filtered)
	}
	return nil, fmt.Errorf("%w: empty image data", ErrInvalidResponse)
}
