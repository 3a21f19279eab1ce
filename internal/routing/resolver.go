package routing

import (
	"context"
	"errors"
	"sync"

	"github.com/godbolt/ce-router/internal/metrics"
	"github.com/godbolt/ce-router/pkg/logging"
)

// entryLookuper is the subset of *Store the resolver depends on.
type entryLookuper interface {
	Lookup(ctx context.Context, environment, compilerID string) (*Entry, error)
}

// colorActiver is the subset of *ColorResolver the resolver depends on.
type colorActiver interface {
	Active(ctx context.Context, environment string) string
	Reset()
}

// Resolver is the process-singleton routing table: it looks up where a
// compiler id's requests should go, resolving active-color and caching
// the result indefinitely (cleared only by Reset).
type Resolver struct {
	store  entryLookuper
	color  colorActiver
	logger *logging.Logger
	m      *metrics.Metrics

	environment string

	queueURLBlueByEnv  map[string]string
	queueURLGreenByEnv map[string]string

	mu    sync.RWMutex
	cache map[string]Info
}

// NewResolver builds a Resolver. environment is this process's own
// deployment tier, used when a routing entry and the default colored
// queue fallback both need an environment to key against.
func NewResolver(store entryLookuper, color colorActiver, environment string, queueURLBlueByEnv, queueURLGreenByEnv map[string]string, logger *logging.Logger, m *metrics.Metrics) *Resolver {
	if store == nil {
		panic("routing: store cannot be nil")
	}
	if color == nil {
		panic("routing: color resolver cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{
		store:              store,
		color:              color,
		logger:             logger,
		m:                  m,
		environment:        environment,
		queueURLBlueByEnv:  queueURLBlueByEnv,
		queueURLGreenByEnv: queueURLGreenByEnv,
		cache:              make(map[string]Info),
	}
}

// Lookup resolves routing for compilerID under environment, consulting
// and populating the process-wide cache. An empty environment falls
// back to the resolver's own deployment tier, so callers that never see
// a `{env}` path segment (the production route) behave exactly as
// before.
func (r *Resolver) Lookup(ctx context.Context, environment, compilerID string) Info {
	if environment == "" {
		environment = r.environment
	}
	key := CompositeKey(environment, compilerID)

	r.mu.RLock()
	if cached, ok := r.cache[key]; ok {
		r.mu.RUnlock()
		if r.m != nil {
			r.m.RoutingCacheHit()
		}
		return cached
	}
	r.mu.RUnlock()
	if r.m != nil {
		r.m.RoutingCacheMiss()
	}

	info := r.resolve(ctx, environment, compilerID)

	r.mu.Lock()
	r.cache[key] = info
	r.mu.Unlock()

	return info
}

func (r *Resolver) resolve(ctx context.Context, environment, compilerID string) Info {
	entry, err := r.store.Lookup(ctx, environment, compilerID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.Warn("routing: store lookup failed, falling back to default queue", "compiler_id", compilerID, "error", err)
		}
		info := r.defaultQueueRouting(ctx, environment)
		info.Environment = "unknown"
		return info
	}

	if entry.RoutingType == TypeURL && entry.TargetURL != "" {
		return Info{Type: TypeURL, Target: entry.TargetURL, Environment: entry.Environment}
	}

	if entry.Environment != "" {
		environment = entry.Environment
	}
	color := r.color.Active(ctx, environment)

	if entry.QueueName != "" {
		return Info{
			Type:        TypeQueue,
			Target:      BuildQueueURL(entry.QueueName, color, ""),
			Environment: environment,
		}
	}

	return r.defaultQueueRouting(ctx, environment)
}

func (r *Resolver) defaultQueueRouting(ctx context.Context, environment string) Info {
	color := r.color.Active(ctx, environment)
	defaultURL := r.queueURLBlueByEnv[environment]
	if color == "green" {
		defaultURL = r.queueURLGreenByEnv[environment]
	}
	return Info{
		Type:        TypeQueue,
		Target:      BuildQueueURL("", color, defaultURL),
		Environment: environment,
	}
}

// Reset clears the routing cache and active-color memoization. Exposed
// for the administrative reset endpoint and for tests.
func (r *Resolver) Reset() {
	r.mu.Lock()
	r.cache = make(map[string]Info)
	r.mu.Unlock()
	r.color.Reset()
}
