package di

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/goliatone/go-resource-sync/binding"
	"github.com/goliatone/go-resource-sync/cache"
	"github.com/goliatone/go-resource-sync/cachekey"
	"github.com/goliatone/go-resource-sync/config"
	"github.com/goliatone/go-resource-sync/metrics"
	"github.com/goliatone/go-resource-sync/resource"
	"github.com/goliatone/go-resource-sync/service"
)

// Container wires the client stack for one API: a single resource client,
// one shared store, and the entity services built on them. Services and
// subscriptions created from the same container share cache entries.
type Container struct {
	config     config.Config
	logger     *zap.Logger
	metrics    metrics.Recorder
	registerer prometheus.Registerer
	transport  http.RoundTripper

	client         *resource.Client
	store          *cache.Store
	agents         *service.Agents
	workflows      *service.Workflows
	emailReceivers *service.EmailReceivers
	invoker        *service.Invoker
}

// Option configures a Container.
type Option func(*Container)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the recorder, taking precedence over metrics.enabled.
func WithMetrics(recorder metrics.Recorder) Option {
	return func(c *Container) { c.metrics = recorder }
}

// WithRegisterer sets where Prometheus collectors are registered when
// metrics.enabled is set. Defaults to prometheus.DefaultRegisterer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Container) { c.registerer = reg }
}

// WithTransport replaces the HTTP transport of the resource client.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Container) { c.transport = rt }
}

// NewContainer validates cfg and builds the client stack.
func NewContainer(cfg *config.Config, opts ...Option) (*Container, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Container{
		config: *cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.metrics == nil {
		recorder, err := c.buildMetrics()
		if err != nil {
			return nil, err
		}
		c.metrics = recorder
	}

	store, err := cache.NewStore(cfg.Cache.ToCache(),
		cache.WithLogger(c.logger.Named("cache")),
		cache.WithMetrics(c.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}
	c.store = store

	clientOpts := []resource.Option{
		resource.WithToken(cfg.API.Token),
		resource.WithTimeout(cfg.API.Timeout),
		resource.WithRateLimit(cfg.API.RateLimit, cfg.API.Burst),
		resource.WithUserAgent(cfg.API.UserAgent),
		resource.WithDebug(cfg.API.Debug),
		resource.WithLogger(c.logger.Named("http")),
		resource.WithMetrics(c.metrics),
	}
	if c.transport != nil {
		clientOpts = append(clientOpts, resource.WithTransport(c.transport))
	}
	c.client = resource.New(cfg.API.BaseURL, clientOpts...)

	svcLogger := service.WithLogger(c.logger.Named("service"))
	c.agents = service.NewAgents(c.client, c.store, svcLogger)
	c.workflows = service.NewWorkflows(c.client, c.store, svcLogger)
	c.emailReceivers = service.NewEmailReceivers(c.client, c.store, svcLogger)
	c.invoker = service.NewInvoker(c.client, svcLogger)

	return c, nil
}

// NewContainerWithDefaults creates a container from config.Default.
func NewContainerWithDefaults(opts ...Option) (*Container, error) {
	return NewContainer(config.Default(), opts...)
}

func (c *Container) buildMetrics() (metrics.Recorder, error) {
	if !c.config.Metrics.Enabled {
		return metrics.Noop{}, nil
	}
	recorder, err := metrics.NewPrometheus(c.registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	return recorder, nil
}

// Config returns a copy of the configuration the container was built with.
func (c *Container) Config() config.Config {
	return c.config
}

func (c *Container) Logger() *zap.Logger {
	return c.logger
}

func (c *Container) Metrics() metrics.Recorder {
	return c.metrics
}

func (c *Container) Client() *resource.Client {
	return c.client
}

// Store returns the shared store.
func (c *Container) Store() *cache.Store {
	return c.store
}

func (c *Container) Agents() *service.Agents {
	return c.agents
}

func (c *Container) Workflows() *service.Workflows {
	return c.workflows
}

func (c *Container) EmailReceivers() *service.EmailReceivers {
	return c.emailReceivers
}

func (c *Container) Invoker() *service.Invoker {
	return c.invoker
}

// Subscribe binds a subscription to the container store.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: Subscribe[entities.Agent](ctx, container, agents.ByIDKey(id), fetch)
func Subscribe[T any](ctx context.Context, c *Container, key cachekey.Optional, fetch binding.Fetcher[T], opts ...binding.Option) *binding.Subscription[T] {
	opts = append([]binding.Option{binding.WithLogger(c.logger.Named("binding"))}, opts...)
	return binding.Subscribe(ctx, c.store, key, fetch, opts...)
}
