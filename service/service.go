package service

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/goliatone/go-resource-sync/cache"
	"github.com/goliatone/go-resource-sync/cachekey"
	"github.com/goliatone/go-resource-sync/entities"
	"github.com/goliatone/go-resource-sync/resource"
	"github.com/goliatone/go-resource-sync/routes"
)

// ErrMissingID is returned, wrapped in a validation RequestError, when an
// operation needs an entity id and got none.
var ErrMissingID = errors.New("service: id is required")

// Identifiable is implemented by every entity the API returns.
type Identifiable interface {
	GetID() string
}

type validatable interface {
	Validate() error
}

// Filter narrows a list client-side. Param and Value become part of the
// cache key; a filter with an empty Value is ignored.
type Filter[T any] struct {
	Param string
	Value string
	Match func(T) bool
}

func (f Filter[T]) active() bool {
	return f.Value != "" && f.Match != nil
}

// Option configures a Service.
type Option func(*settings)

type settings struct {
	logger *zap.Logger
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service exposes CRUD for one entity type. T is the entity, C the create
// payload and U the update payload.
//
// Reads go through the store. Successful mutations write the returned entity
// into its by-id entry and invalidate every collection key of the resource,
// so the next list read fetches again. Failed mutations leave the store as
// it was.
type Service[T Identifiable, C any, U any] struct {
	client   *resource.Client
	store    *cache.Store
	resource routes.Resource
	logger   *zap.Logger
	locks    *keyedMutex
}

// New creates a Service for the collection res.
func New[T Identifiable, C any, U any](client *resource.Client, store *cache.Store, res routes.Resource, opts ...Option) *Service[T, C, U] {
	cfg := settings{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Service[T, C, U]{
		client:   client,
		store:    store,
		resource: res,
		logger:   cfg.logger.With(zap.String("resource", res.Base())),
		locks:    newKeyedMutex(),
	}
}

// Resource returns the routes the service talks to.
func (s *Service[T, C, U]) Resource() routes.Resource {
	return s.resource
}

// ListKey returns the cache key of the collection narrowed by filters.
// Without active filters it is the base collection key.
func (s *Service[T, C, U]) ListKey(filters ...Filter[T]) cachekey.Key {
	k := cachekey.New(s.resource.Base())
	for _, f := range filters {
		if f.active() {
			k = k.With(f.Param, f.Value)
		}
	}
	return k
}

// ByIDKey returns the cache key of one entity, or None when id is empty.
func (s *Service[T, C, U]) ByIDKey(id string) cachekey.Optional {
	if id == "" {
		return cachekey.None()
	}
	return cachekey.Some(cachekey.New(s.resource.ByID(id).Path).With("id", id))
}

// List returns the collection, served from the store while fresh. Filters
// are applied to the full collection after it is fetched, preserving order.
func (s *Service[T, C, U]) List(ctx context.Context, filters ...Filter[T]) ([]T, error) {
	items, err := cache.Read(ctx, s.store, s.ListKey(filters...), s.ListFetcher(filters...))
	if err != nil {
		return nil, err
	}
	return cloneSlice(items), nil
}

// ListFetcher returns the fetcher behind ListKey(filters...). Without active
// filters it loads from the API; otherwise it derives the result from the
// base collection entry. It is meant for binding subscriptions.
//
// A filtered fetcher reads ListKey() through the store, so a filtered
// subscription also registers the base collection key and refreshes it when
// it is stale.
func (s *Service[T, C, U]) ListFetcher(filters ...Filter[T]) func(context.Context) ([]T, error) {
	active := activeFilters(filters)
	if len(active) == 0 {
		return s.fetchList
	}
	return func(ctx context.Context) ([]T, error) {
		all, err := cache.Read(ctx, s.store, s.ListKey(), s.fetchList)
		if err != nil {
			return nil, err
		}
		return applyFilters(all, active), nil
	}
}

// GetByID returns one entity, served from the store while fresh. A missing
// entity surfaces as a 404 RequestError.
func (s *Service[T, C, U]) GetByID(ctx context.Context, id string) (T, error) {
	k, ok := s.ByIDKey(id).Get()
	if !ok {
		var zero T
		return zero, resource.NewValidationError(ErrMissingID)
	}
	return cache.Read(ctx, s.store, k, func(ctx context.Context) (T, error) {
		return s.fetchOne(ctx, id)
	})
}

// Create posts payload and caches the created entity under its id.
func (s *Service[T, C, U]) Create(ctx context.Context, payload C) (T, error) {
	var zero T
	if err := validate(payload); err != nil {
		return zero, err
	}

	created, err := s.send(ctx, http.MethodPost, s.resource.Create(), payload)
	if err != nil {
		return zero, err
	}

	s.logger.Debug("entity created", zap.String("id", created.GetID()))
	s.replace(created)
	s.Revalidate()
	return created, nil
}

// Update replaces the entity id with payload. Updates and deletes of the
// same id run one at a time.
func (s *Service[T, C, U]) Update(ctx context.Context, id string, payload U) (T, error) {
	var zero T
	if id == "" {
		return zero, resource.NewValidationError(ErrMissingID)
	}
	if err := validate(payload); err != nil {
		return zero, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	updated, err := s.send(ctx, http.MethodPut, s.resource.Update(id), payload)
	if err != nil {
		return zero, err
	}

	s.logger.Debug("entity updated", zap.String("id", id))
	if updated.GetID() == "" {
		// some endpoints answer PUT without a body
		s.store.Invalidate(s.ByIDKey(id).MustGet())
	} else {
		s.replace(updated)
	}
	s.Revalidate()
	return updated, nil
}

// Delete removes the entity id and drops its by-id entry.
func (s *Service[T, C, U]) Delete(ctx context.Context, id string) error {
	if id == "" {
		return resource.NewValidationError(ErrMissingID)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	if _, err := s.client.Do(ctx, resource.Request{
		URL:    s.resource.Delete(id).Path,
		Method: http.MethodDelete,
	}); err != nil {
		return err
	}

	s.logger.Debug("entity deleted", zap.String("id", id))
	s.store.Remove(s.ByIDKey(id).MustGet())
	s.Revalidate()
	return nil
}

// Revalidate marks every collection key of the resource stale, filtered
// variants included, and returns how many keys were affected. The plain
// collection key is marked before its filtered variants, so a filtered
// read racing with Revalidate cannot derive a fresh-looking result from the
// old collection.
func (s *Service[T, C, U]) Revalidate() int {
	return s.store.InvalidateURL(s.resource.Base())
}

// FetchByID returns a fetcher for the entity id that bypasses the store,
// to pair with ByIDKey when subscribing.
func (s *Service[T, C, U]) FetchByID(id string) func(context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		return s.fetchOne(ctx, id)
	}
}

func (s *Service[T, C, U]) replace(entity T) {
	if k, ok := s.ByIDKey(entity.GetID()).Get(); ok {
		s.store.Set(k, entity)
	}
}

func (s *Service[T, C, U]) fetchList(ctx context.Context) ([]T, error) {
	route := s.resource.List()
	resp, err := resource.Fetch[entities.EntityList[T]](ctx, s.client, resource.Request{
		URL:   route.Path,
		Query: route.Query,
	})
	if err != nil {
		return nil, err
	}
	if resp.Data.Items == nil {
		return []T{}, nil
	}
	return resp.Data.Items, nil
}

func (s *Service[T, C, U]) fetchOne(ctx context.Context, id string) (T, error) {
	resp, err := resource.Fetch[T](ctx, s.client, resource.Request{URL: s.resource.ByID(id).Path})
	if err != nil {
		var zero T
		return zero, err
	}
	return resp.Data, nil
}

func (s *Service[T, C, U]) send(ctx context.Context, method string, route routes.Route, payload any) (T, error) {
	resp, err := resource.Fetch[T](ctx, s.client, resource.Request{
		URL:    route.Path,
		Method: method,
		Query:  route.Query,
		Body:   payload,
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return resp.Data, nil
}

func validate(payload any) error {
	v, ok := payload.(validatable)
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		return resource.NewValidationError(err)
	}
	return nil
}

func activeFilters[T any](filters []Filter[T]) []Filter[T] {
	var out []Filter[T]
	for _, f := range filters {
		if f.active() {
			out = append(out, f)
		}
	}
	return out
}

func applyFilters[T any](items []T, filters []Filter[T]) []T {
	out := make([]T, 0, len(items))
next:
	for _, item := range items {
		for _, f := range filters {
			if !f.Match(item) {
				continue next
			}
		}
		out = append(out, item)
	}
	return out
}

func cloneSlice[T any](in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	return out
}
