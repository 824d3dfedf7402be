package service

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/goliatone/go-resource-sync/entities"
	"github.com/goliatone/go-resource-sync/resource"
	"github.com/goliatone/go-resource-sync/routes"
)

var ErrMissingSlug = errors.New("service: slug is required")

const invokeErrorMessage = "Failed to invoke agent"

// Invoker starts agent and workflow runs. Runs are fire and forget: the call
// returns once the platform accepted the run, with the thread it runs on.
// Nothing is cached.
type Invoker struct {
	client *resource.Client
	logger *zap.Logger
}

func NewInvoker(client *resource.Client, opts ...Option) *Invoker {
	cfg := settings{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Invoker{client: client, logger: cfg.logger}
}

// InvokeAgent sends prompt to the agent slug. An empty thread starts a new one.
func (s *Invoker) InvokeAgent(ctx context.Context, slug, prompt, thread string) (entities.InvokeResponse, error) {
	return s.invoke(ctx, slug, prompt, thread)
}

// InvokeWorkflow starts the workflow slug with prompt as its input.
func (s *Invoker) InvokeWorkflow(ctx context.Context, slug, prompt, thread string) (entities.InvokeResponse, error) {
	return s.invoke(ctx, slug, prompt, thread)
}

func (s *Invoker) invoke(ctx context.Context, slug, prompt, thread string) (entities.InvokeResponse, error) {
	if slug == "" {
		return entities.InvokeResponse{}, resource.NewValidationError(ErrMissingSlug)
	}

	route := routes.Invoke(slug, thread, true)
	resp, err := resource.Fetch[entities.InvokeResponse](ctx, s.client, resource.Request{
		URL:          route.Path,
		Method:       http.MethodPost,
		Query:        route.Query,
		Body:         prompt,
		RawBody:      true,
		ErrorMessage: invokeErrorMessage,
	})
	if err != nil {
		return entities.InvokeResponse{}, err
	}

	s.logger.Debug("run started", zap.String("slug", slug), zap.String("thread", resp.Data.ThreadID))
	return resp.Data, nil
}
