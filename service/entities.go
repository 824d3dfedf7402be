package service

import (
	"context"

	"github.com/goliatone/go-resource-sync/cache"
	"github.com/goliatone/go-resource-sync/cachekey"
	"github.com/goliatone/go-resource-sync/entities"
	"github.com/goliatone/go-resource-sync/resource"
	"github.com/goliatone/go-resource-sync/routes"
)

type (
	Agents    = Service[entities.Agent, entities.AgentManifest, entities.AgentManifest]
	Workflows = Service[entities.Workflow, entities.WorkflowManifest, entities.WorkflowManifest]
)

func NewAgents(client *resource.Client, store *cache.Store, opts ...Option) *Agents {
	return New[entities.Agent, entities.AgentManifest, entities.AgentManifest](client, store, routes.Agents, opts...)
}

func NewWorkflows(client *resource.Client, store *cache.Store, opts ...Option) *Workflows {
	return New[entities.Workflow, entities.WorkflowManifest, entities.WorkflowManifest](client, store, routes.Workflows, opts...)
}

// EmailReceiverFilters narrows the email receiver list. TaskID matches the
// receiver's workflow name; the endpoint has no server-side filter for it.
type EmailReceiverFilters struct {
	TaskID string `json:"taskId"`
}

// TaskFilter keeps the receivers routed to the workflow taskID.
func TaskFilter(taskID string) Filter[entities.EmailReceiver] {
	return Filter[entities.EmailReceiver]{
		Param: "taskId",
		Value: taskID,
		Match: func(r entities.EmailReceiver) bool {
			return r.WorkflowName == taskID
		},
	}
}

// EmailReceivers is the email receiver service.
type EmailReceivers struct {
	*Service[entities.EmailReceiver, entities.EmailReceiverManifest, entities.EmailReceiverManifest]
}

func NewEmailReceivers(client *resource.Client, store *cache.Store, opts ...Option) *EmailReceivers {
	return &EmailReceivers{
		Service: New[entities.EmailReceiver, entities.EmailReceiverManifest, entities.EmailReceiverManifest](
			client, store, routes.EmailReceivers, opts...),
	}
}

// Find lists the receivers matching filters. An empty TaskID returns all.
func (s *EmailReceivers) Find(ctx context.Context, filters EmailReceiverFilters) ([]entities.EmailReceiver, error) {
	items, err := cache.Read(ctx, s.store, s.FindKey(filters), s.ListFetcher(TaskFilter(filters.TaskID)))
	if err != nil {
		return nil, err
	}
	return cloneSlice(items), nil
}

// FindKey is the cache key Find reads. It matches ListKey(TaskFilter(id)).
func (s *EmailReceivers) FindKey(filters EmailReceiverFilters) cachekey.Key {
	return cachekey.FromFilters(s.Resource().Base(), filters)
}
