package routing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

const (
	colorCacheTTL = 30 * time.Second
	defaultColor  = "blue"
)

type ssmAPI interface {
	GetParameter(context.Context, *ssm.GetParameterInput, ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ColorResolver memoizes the active blue/green color per environment,
// reading it from SSM Parameter Store at
// /compiler-explorer/{environment}/active-color.
type ColorResolver struct {
	client ssmAPI

	mu      sync.Mutex
	cached  map[string]colorEntry
	nowFunc func() time.Time
}

type colorEntry struct {
	color     string
	expiresAt time.Time
}

// NewColorResolver builds a resolver backed by the provided SSM client.
func NewColorResolver(client ssmAPI) *ColorResolver {
	if client == nil {
		panic("routing: ssm client cannot be nil")
	}
	return &ColorResolver{
		client:  client,
		cached:  make(map[string]colorEntry),
		nowFunc: time.Now,
	}
}

// Active returns the active color for environment, consulting the
// 30-second memoized cache first. On SSM failure it returns "blue" without
// caching the failure, per spec.
func (r *ColorResolver) Active(ctx context.Context, environment string) string {
	now := r.nowFunc()

	r.mu.Lock()
	if entry, ok := r.cached[environment]; ok && now.Before(entry.expiresAt) {
		r.mu.Unlock()
		return entry.color
	}
	r.mu.Unlock()

	color, err := r.fetch(ctx, environment)
	if err != nil {
		return defaultColor
	}

	r.mu.Lock()
	r.cached[environment] = colorEntry{color: color, expiresAt: now.Add(colorCacheTTL)}
	r.mu.Unlock()

	return color
}

// ColorParameterPath builds the SSM Parameter Store path backing
// environment's active color, shared by the resolver and routerctl.
func ColorParameterPath(environment string) string {
	return fmt.Sprintf("/compiler-explorer/%s/active-color", environment)
}

func (r *ColorResolver) fetch(ctx context.Context, environment string) (string, error) {
	path := ColorParameterPath(environment)
	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name: aws.String(path),
	})
	if err != nil {
		return "", fmt.Errorf("routing: get parameter %q: %w", path, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("routing: parameter %q has no value", path)
	}
	color := strings.ToLower(strings.TrimSpace(*out.Parameter.Value))
	if color != "blue" && color != "green" {
		return "", fmt.Errorf("routing: parameter %q has unexpected value %q", path, color)
	}
	return color, nil
}

// Reset clears the memoized color cache. Exposed for administrative reset
// and tests.
func (r *ColorResolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = make(map[string]colorEntry)
}
