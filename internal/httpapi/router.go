// Package httpapi exposes the router's HTTP surface: the compile/cmake
// endpoints, the health and admin-reset endpoints, and the chi
// middleware stack shared by all of them.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/godbolt/ce-router/internal/eventbus"
	"github.com/godbolt/ce-router/internal/forwarder"
	"github.com/godbolt/ce-router/internal/httpapi/middleware"
	"github.com/godbolt/ce-router/internal/routing"
	"github.com/godbolt/ce-router/pkg/logging"
)

// resolver is the subset of routing.Resolver the facade depends on.
type resolver interface {
	Lookup(ctx context.Context, environment, compilerID string) routing.Info
	Reset()
}

// submitter is the subset of queueing.Submitter the facade depends on.
type submitter interface {
	Submit(ctx context.Context, queueURL, correlationID, compilerID string, isCMake bool, headers, query map[string]string, rawBody []byte, contentType string) error
}

// correlatorClient is the subset of correlator.Correlator the facade
// depends on.
type correlatorClient interface {
	Subscribe(ctx context.Context, correlationID string) error
	Unsubscribe(ctx context.Context, correlationID string) error
	WaitForResult(ctx context.Context, correlationID string, timeout time.Duration) (map[string]interface{}, error)
}

// forwarderClient is the subset of forwarder.Forwarder the facade
// depends on.
type forwarderClient interface {
	Forward(ctx context.Context, targetURL, path, method string, headers map[string][]string, body []byte) (*forwarder.Response, error)
}

// busStater reports the event-bus connection state for the health
// endpoint.
type busStater interface {
	State() eventbus.State
}

// Config wires all collaborators the router facade needs.
type Config struct {
	Logger              *logging.Logger
	Resolver            resolver
	Submitter           submitter
	Correlator          correlatorClient
	Forwarder           forwarderClient
	BusState            busStater
	Environment         string
	DefaultTimeout      time.Duration
	SubscribeSettleWait time.Duration
	CORSAllowedOrigins  []string
}

// New builds the chi handler for the router facade.
func New(cfg *Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 60 * time.Second
	}
	if cfg.SubscribeSettleWait <= 0 {
		cfg.SubscribeSettleWait = 50 * time.Millisecond
	}

	h := &handler{cfg: cfg}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(middleware.BodyLimit)

	r.Get("/healthcheck", h.healthcheck)
	r.Post("/admin/routing/reset", h.resetRouting)

	r.Post("/api/compiler/{compilerId}/{kind}", h.compile)
	r.Post("/{env}/api/compiler/{compilerId}/{kind}", h.compile)

	return r
}
