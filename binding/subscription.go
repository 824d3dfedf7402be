package binding

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-resource-sync/cache"
	"github.com/goliatone/go-resource-sync/cachekey"
)

var (
	// ErrNoKey is returned by operations on a subscription whose key is None.
	ErrNoKey = errors.New("binding: subscription has no key")
	// ErrClosed is returned by operations on a closed subscription.
	ErrClosed = errors.New("binding: subscription closed")
)

// Fetcher loads the value of the subscribed key.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Snapshot is the state of a subscription at one point in time.
type Snapshot[T any] struct {
	Data      T
	HasData   bool
	Err       error
	Status    cache.Status
	IsLoading bool
	Stale     bool
	UpdatedAt time.Time
}

type options struct {
	fallback          any
	hasFallback       bool
	revalidateOnMount bool
	logger            *zap.Logger
}

// Option configures a Subscription.
type Option func(*options)

// WithFallback seeds the entry with v when it holds no value yet, so the
// subscription starts in the success state. The entry is still revalidated
// in the background unless WithoutRevalidateOnMount is given. A fallback of
// the wrong type is ignored.
func WithFallback(v any) Option {
	return func(o *options) {
		o.fallback = v
		o.hasFallback = true
	}
}

// WithoutRevalidateOnMount skips the initial fetch when the entry already
// holds a usable value, seeded or cached.
func WithoutRevalidateOnMount() Option {
	return func(o *options) { o.revalidateOnMount = false }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Subscription binds consumer state to one store entry.
type Subscription[T any] struct {
	store  *cache.Store
	key    cachekey.Optional
	fetch  cache.FetchFn
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	snap        Snapshot[T]
	version     uint64
	closed      bool
	updates     chan Snapshot[T]
	unsubscribe func()
}

// Subscribe starts following key. The subscription lives until Close is
// called or ctx is done.
func Subscribe[T any](ctx context.Context, store *cache.Store, key cachekey.Optional, fetch Fetcher[T], opts ...Option) *Subscription[T] {
	o := options{revalidateOnMount: true, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := &Subscription[T]{
		store:  store,
		key:    key,
		logger: o.logger,
		ctx:    subCtx,
		cancel: cancel,
		fetch: func(ctx context.Context) (any, error) {
			return fetch(ctx)
		},
		updates:     make(chan Snapshot[T], 1),
		unsubscribe: func() {},
	}

	k, ok := key.Get()
	if !ok {
		s.snap = Snapshot[T]{Status: cache.StatusIdle}
		s.publish()
		go s.closeOnDone()
		return s
	}

	s.unsubscribe = store.Subscribe(k, s.onEvent)
	if o.hasFallback {
		if v, ok := o.fallback.(T); ok {
			store.Seed(k, v)
		} else {
			s.logger.Warn("fallback ignored: type mismatch", zap.String("key", k.String()))
		}
	}

	entry, found := store.Get(k)
	usable := found && entry.Fresh()
	forceFetch := o.hasFallback && o.revalidateOnMount
	needFetch := !usable || forceFetch

	s.mu.Lock()
	if s.version == 0 {
		if found {
			s.snap = snapshotOf[T](entry)
		}
		if !usable {
			s.snap.Status = cache.StatusLoading
			s.snap.IsLoading = true
		}
	}
	s.publish()
	if needFetch {
		s.load(forceFetch)
	}
	s.mu.Unlock()

	go s.closeOnDone()
	return s
}

func (s *Subscription[T]) closeOnDone() {
	<-s.ctx.Done()
	s.Close()
}

// Key returns the subscribed key.
func (s *Subscription[T]) Key() cachekey.Optional {
	return s.key
}

// Snapshot returns the current state.
func (s *Subscription[T]) Snapshot() Snapshot[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Updates delivers the latest snapshot after every change. Only the most
// recent undelivered snapshot is kept. The channel is closed by Close.
func (s *Subscription[T]) Updates() <-chan Snapshot[T] {
	return s.updates
}

// Mutate replaces the entry with a known value without fetching. Every
// subscription on the key observes the new value.
func (s *Subscription[T]) Mutate(value T) error {
	k, err := s.liveKey()
	if err != nil {
		return err
	}
	s.store.Set(k, value)
	return nil
}

// MutateFunc replaces the entry with fn applied to the current value.
func (s *Subscription[T]) MutateFunc(fn func(current T) T) error {
	k, err := s.liveKey()
	if err != nil {
		return err
	}
	var current T
	if entry, ok := s.store.Get(k); ok && entry.HasValue {
		if current, err = cache.Value[T](entry); err != nil {
			return err
		}
	}
	s.store.Set(k, fn(current))
	return nil
}

// Revalidate fetches the entry again and returns the fetched value.
func (s *Subscription[T]) Revalidate(ctx context.Context) (T, error) {
	var zero T
	k, err := s.liveKey()
	if err != nil {
		return zero, err
	}
	entry, err := s.store.Fetch(ctx, k, s.fetch)
	if err != nil {
		return zero, err
	}
	return cache.Value[T](entry)
}

// Close stops the subscription. Later changes of the entry, including
// responses to fetches this subscription started, are not applied to its
// state. Close is idempotent.
func (s *Subscription[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.updates)
	s.mu.Unlock()

	s.unsubscribe()
	s.cancel()
	s.wg.Wait()
}

func (s *Subscription[T]) liveKey() (cachekey.Key, error) {
	k, ok := s.key.Get()
	if !ok {
		return cachekey.Key{}, ErrNoKey
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return cachekey.Key{}, ErrClosed
	}
	return k, nil
}

func (s *Subscription[T]) onEvent(ev cache.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || ev.Version <= s.version {
		return
	}
	s.version = ev.Version

	switch ev.Kind {
	case cache.EventUpdated:
		s.snap = snapshotOf[T](ev.Entry)
	case cache.EventInvalidated:
		s.snap.Stale = true
		s.load(false)
	case cache.EventRemoved:
		s.snap = Snapshot[T]{Status: cache.StatusLoading, IsLoading: true}
		s.load(false)
	}
	s.publish()
}

// load reads the entry in the background. Callers hold s.mu.
func (s *Subscription[T]) load(force bool) {
	k, ok := s.key.Get()
	if !ok || s.closed {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		var err error
		if force {
			_, err = s.store.Fetch(s.ctx, k, s.fetch)
		} else {
			_, err = s.store.Read(s.ctx, k, s.fetch)
		}
		if err != nil && s.ctx.Err() == nil {
			s.logger.Debug("subscription fetch failed", zap.String("key", k.String()), zap.Error(err))
		}
	}()
}

// publish hands the current snapshot to Updates, replacing one that was not
// received yet. Callers hold s.mu.
func (s *Subscription[T]) publish() {
	if s.closed {
		return
	}
	select {
	case <-s.updates:
	default:
	}
	s.updates <- s.snap
}

func snapshotOf[T any](entry cache.Entry) Snapshot[T] {
	snap := Snapshot[T]{
		Err:       entry.Err,
		Status:    entry.Status,
		IsLoading: entry.Status == cache.StatusLoading,
		Stale:     entry.Stale,
		UpdatedAt: entry.UpdatedAt,
	}
	if entry.HasValue {
		v, err := cache.Value[T](entry)
		if err != nil {
			snap.Err = err
			snap.Status = cache.StatusError
			snap.IsLoading = false
			return snap
		}
		snap.Data = v
		snap.HasData = true
	}
	return snap
}
