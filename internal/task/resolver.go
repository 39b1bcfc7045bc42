package task

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
)

// Resolver decides the terminal outcome of a task whose running time has
// reached its estimate. A nil error means success with the returned output;
// a non-nil error means the job failed and its message is recorded on the
// task.
type Resolver interface {
	Resolve(ctx context.Context, t Task) (Output, error)
}

// ResolverFunc adapts a function to the Resolver interface
type ResolverFunc func(ctx context.Context, t Task) (Output, error)

// Resolve calls f(ctx, t).
func (f ResolverFunc) Resolve(ctx context.Context, t Task) (Output, error) {
	return f(ctx, t)
}

// Default settings for SimulatedResolver
const (
	DefaultSuccessRate     = 0.9
	DefaultArtifactBaseURL = "https://artifacts.genqueue.local"
)

var simulatedFailures = []string{
	"model backend unavailable",
	"generation timed out",
	"input rejected by content filter",
	"insufficient gpu capacity",
}

// SimulatedResolver succeeds with a fixed probability and fabricates
// artifact locators under a base URL. It stands in for a real backend in
// development and demos.
type SimulatedResolver struct {
	mu          sync.Mutex
	rng         *rand.Rand
	successRate float64
	baseURL     string
}

// SimulatedOption configures a SimulatedResolver
type SimulatedOption func(*SimulatedResolver)

// WithSuccessRate sets the probability in [0,1] that a job succeeds.
func WithSuccessRate(rate float64) SimulatedOption {
	return func(r *SimulatedResolver) {
		r.successRate = min(1, max(0, rate))
	}
}

// WithSeed makes the outcome sequence reproducible.
func WithSeed(seed uint64) SimulatedOption {
	return func(r *SimulatedResolver) {
		r.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithArtifactBaseURL sets the prefix of generated result locators.
func WithArtifactBaseURL(baseURL string) SimulatedOption {
	return func(r *SimulatedResolver) {
		if baseURL != "" {
			r.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// NewSimulatedResolver creates a SimulatedResolver.
func NewSimulatedResolver(opts ...SimulatedOption) *SimulatedResolver {
	r := &SimulatedResolver{
		rng:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		successRate: DefaultSuccessRate,
		baseURL:     DefaultArtifactBaseURL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve draws an outcome for t.
func (r *SimulatedResolver) Resolve(ctx context.Context, t Task) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rng.Float64() >= r.successRate {
		return Output{}, errors.New(simulatedFailures[r.rng.IntN(len(simulatedFailures))])
	}
	return r.outputFor(t), nil
}

func (r *SimulatedResolver) outputFor(t Task) Output {
	base := fmt.Sprintf("%s/%s/%s", r.baseURL, t.Type, t.ID)
	if t.Type.ProducesImage() {
		return Output{
			ResultURL:    base + ".png",
			ThumbnailURL: base + "_thumb.png",
			MIMEType:     "image/png",
		}
	}
	return Output{
		ResultURL:    base + ".mp4",
		ThumbnailURL: base + "_poster.jpg",
		MIMEType:     "video/mp4",
	}
}

// RoutingResolver sends each task to the resolver registered for its type
// and falls back to a default for the rest.
type RoutingResolver struct {
	routes   map[Type]Resolver
	fallback Resolver
}

// NewRoutingResolver creates a RoutingResolver with the given fallback.
func NewRoutingResolver(fallback Resolver) *RoutingResolver {
	return &RoutingResolver{
		routes:   make(map[Type]Resolver),
		fallback: fallback,
	}
}

// Route registers r for the given task types.
func (rr *RoutingResolver) Route(r Resolver, types ...Type) *RoutingResolver {
	for _, typ := range types {
		rr.routes[typ] = r
	}
	return rr
}

// Resolve delegates to the resolver registered for t.Type.
func (rr *RoutingResolver) Resolve(ctx context.Context, t Task) (Output, error) {
	if r, ok := rr.routes[t.Type]; ok {
		return r.Resolve(ctx, t)
	}
	if rr.fallback == nil {
		return Output{}, fmt.Errorf("no resolver for task type %s", t.Type)
	}
	return rr.fallback.Resolve(ctx, t)
}
