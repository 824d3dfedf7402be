package cache

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-resource-sync/cachekey"
	"github.com/goliatone/go-resource-sync/internal/cacheinfra"
	"github.com/goliatone/go-resource-sync/metrics"
)

const lockStripes = 64

// FetchFn loads the current value of a key from the source of truth.
type FetchFn func(ctx context.Context) (any, error)

// Backend retains entries. It decides how long entries live; the Store
// decides whether they are fresh.
type Backend interface {
	Get(key string) (Entry, bool)
	Set(key string, entry Entry)
	Delete(key string)
}

// keyState is the per-key bookkeeping. It is kept while the key has an
// entry, listeners or a fetch in flight, and dropped once all three are gone.
// All fields are guarded by the stripe lock of the key.
type keyState struct {
	key cachekey.Key
	// issued is the highest sequence number handed to a fetch or write.
	issued uint64
	// applied is the highest sequence number written to the entry.
	applied uint64
	// barrier is the sequence number of the last invalidation. Results of
	// fetches issued before it are stored but stay stale.
	barrier uint64
	// inflight counts fetches between begin and apply.
	inflight  int
	listeners map[uint64]Listener
}

type fetchResult struct {
	entry   Entry
	err     error
	applied bool
}

// Store is the shared cache for one API client. It is safe for concurrent
// use and meant to be created once and injected into services and bindings.
//
// Every write to a key takes a sequence number from a store-wide counter.
// A fetch result is only written if its number is higher than the last one
// written, so a slow response can never overwrite a newer one.
type Store struct {
	backend    Backend
	registry   *xsync.MapOf[string, *keyState]
	locks      [lockStripes]sync.Mutex
	seq        atomic.Uint64
	version    atomic.Uint64
	listenerID atomic.Uint64
	flight     singleflight.Group
	logger     *zap.Logger
	metrics    metrics.Recorder
	now        func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(recorder metrics.Recorder) Option {
	return func(s *Store) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithClock overrides the time source used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a Store retaining entries in a sturdyc backend.
func NewStore(cfg Config, opts ...Option) (*Store, error) {
	backend, err := cacheinfra.NewSturdycBackend[Entry](cfg.toInternal())
	if err != nil {
		return nil, err
	}
	return NewStoreWithBackend(backend, opts...), nil
}

// NewStoreWithBackend creates a Store on top of a custom backend.
func NewStoreWithBackend(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		registry: xsync.NewMapOf[string, *keyState](),
		logger:   zap.NewNop(),
		metrics:  metrics.Noop{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the retained entry for k.
func (s *Store) Get(k cachekey.Key) (Entry, bool) {
	return s.backend.Get(k.String())
}

// Keys returns every key that currently holds an entry, has listeners or
// has a fetch in flight.
func (s *Store) Keys() []cachekey.Key {
	var keys []cachekey.Key
	s.registry.Range(func(_ string, st *keyState) bool {
		keys = append(keys, st.key)
		return true
	})
	return keys
}

// Subscribe registers l for events on k and returns a function that removes
// it. The returned function is idempotent.
func (s *Store) Subscribe(k cachekey.Key, l Listener) func() {
	id := s.listenerID.Add(1)
	st, mu := s.lock(k)
	if st.listeners == nil {
		st.listeners = make(map[uint64]Listener)
	}
	st.listeners[id] = l
	mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			mu.Lock()
			delete(st.listeners, id)
			s.release(k, st)
			mu.Unlock()
		})
	}
}

// Read serves k from the cache when its entry is fresh and fetches otherwise.
// Concurrent reads of the same key share a single fetch.
func (s *Store) Read(ctx context.Context, k cachekey.Key, fetch FetchFn) (Entry, error) {
	if entry, ok := s.Get(k); ok && entry.Fresh() {
		s.metrics.CacheHit(k.URL)
		return entry, nil
	}
	s.metrics.CacheMiss(k.URL)
	return s.Fetch(ctx, k, fetch)
}

// Fetch loads k from the source of truth regardless of the cached state.
// If a fetch for k is already running the caller joins it. Cancelling ctx
// stops the wait but not the shared fetch, whose result is still written for
// other readers.
func (s *Store) Fetch(ctx context.Context, k cachekey.Key, fetch FetchFn) (Entry, error) {
	id := k.String()

	ch := s.flight.DoChan(id, func() (any, error) {
		seq := s.begin(k)
		value, err := fetch(context.WithoutCancel(ctx))
		entry, applied := s.apply(k, seq, value, err)
		return fetchResult{entry: entry, err: err, applied: applied}, nil
	})

	select {
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	case res := <-ch:
		r := res.Val.(fetchResult)
		return r.entry, r.err
	}
}

// Set replaces the value of k with a known value, without fetching.
// Any fetch of k still in flight is superseded.
func (s *Store) Set(k cachekey.Key, value any) Entry {
	st, mu := s.lock(k)
	seq := s.seq.Add(1)
	st.issued = seq
	st.applied = seq
	entry := Entry{
		Value:     value,
		HasValue:  true,
		Status:    StatusSuccess,
		UpdatedAt: s.now(),
		Seq:       seq,
	}
	s.backend.Set(k.String(), entry)
	ev := s.event(k, EventUpdated, entry)
	listeners := st.snapshotListeners()
	mu.Unlock()

	s.flight.Forget(k.String())
	s.logger.Debug("cache entry set", zap.String("key", k.String()), zap.Uint64("seq", seq))
	notify(listeners, ev)
	return entry
}

// Seed stores value for k only if k holds no value yet. It reports whether
// the value was stored.
func (s *Store) Seed(k cachekey.Key, value any) bool {
	if entry, ok := s.Get(k); ok && entry.HasValue {
		return false
	}

	st, mu := s.lock(k)
	if entry, ok := s.backend.Get(k.String()); ok && entry.HasValue {
		mu.Unlock()
		return false
	}
	seq := s.seq.Add(1)
	st.issued = seq
	st.applied = seq
	entry := Entry{
		Value:     value,
		HasValue:  true,
		Status:    StatusSuccess,
		UpdatedAt: s.now(),
		Seq:       seq,
	}
	s.backend.Set(k.String(), entry)
	ev := s.event(k, EventUpdated, entry)
	listeners := st.snapshotListeners()
	mu.Unlock()

	notify(listeners, ev)
	return true
}

// Invalidate marks k stale. It reports whether k was tracked.
func (s *Store) Invalidate(k cachekey.Key) bool {
	if _, ok := s.registry.Load(k.String()); !ok {
		return false
	}
	s.invalidate(k)
	s.metrics.Invalidated(k.URL, 1)
	return true
}

// InvalidateWhere marks every tracked key matching pred stale and returns how
// many keys matched. Keys are processed by ascending param count, so a key is
// always marked before the keys that narrow it. Listeners receive
// EventInvalidated and are expected to re-fetch if they still need the value.
func (s *Store) InvalidateWhere(pred func(cachekey.Key) bool) int {
	var matched []cachekey.Key
	s.registry.Range(func(_ string, st *keyState) bool {
		if pred(st.key) {
			matched = append(matched, st.key)
		}
		return true
	})

	// plain collection keys first: filtered entries are derived from them and
	// must not be recomputed from a value that is about to turn stale
	sort.Slice(matched, func(i, j int) bool {
		if len(matched[i].Params) != len(matched[j].Params) {
			return len(matched[i].Params) < len(matched[j].Params)
		}
		return matched[i].String() < matched[j].String()
	})
	for _, k := range matched {
		s.invalidate(k)
	}
	return len(matched)
}

// InvalidateURL marks stale every key addressing url, whatever its params.
func (s *Store) InvalidateURL(url string) int {
	n := s.InvalidateWhere(func(k cachekey.Key) bool {
		return k.HasURL(url)
	})
	s.metrics.Invalidated(url, n)
	s.logger.Debug("cache invalidated", zap.String("url", url), zap.Int("keys", n))
	return n
}

// Remove drops the entry for k. Fetches of k already in flight are
// superseded, so a late response can't bring the entry back.
func (s *Store) Remove(k cachekey.Key) {
	st, mu := s.lock(k)
	seq := s.seq.Add(1)
	st.issued = max(st.issued, seq)
	st.applied = seq
	st.barrier = seq
	s.backend.Delete(k.String())
	ev := s.event(k, EventRemoved, Entry{})
	listeners := st.snapshotListeners()
	s.release(k, st)
	mu.Unlock()

	s.flight.Forget(k.String())
	s.logger.Debug("cache entry removed", zap.String("key", k.String()))
	notify(listeners, ev)
}

// Clear removes every tracked entry.
func (s *Store) Clear() {
	for _, k := range s.Keys() {
		s.Remove(k)
	}
}

func (s *Store) invalidate(k cachekey.Key) {
	st, mu := s.lock(k)
	st.barrier = s.seq.Add(1)
	entry, ok := s.backend.Get(k.String())
	if ok {
		entry.Stale = true
		s.backend.Set(k.String(), entry)
	} else if s.release(k, st) {
		mu.Unlock()
		return
	}
	ev := s.event(k, EventInvalidated, entry)
	listeners := st.snapshotListeners()
	mu.Unlock()

	s.flight.Forget(k.String())
	notify(listeners, ev)
}

// begin issues a sequence number for a fetch of k and flags the entry as loading.
func (s *Store) begin(k cachekey.Key) uint64 {
	st, mu := s.lock(k)
	seq := s.seq.Add(1)
	st.issued = seq
	st.inflight++
	entry, _ := s.backend.Get(k.String())
	entry.Status = StatusLoading
	s.backend.Set(k.String(), entry)
	ev := s.event(k, EventUpdated, entry)
	listeners := st.snapshotListeners()
	mu.Unlock()

	notify(listeners, ev)
	return seq
}

// apply writes a fetch result unless a newer write already landed.
func (s *Store) apply(k cachekey.Key, seq uint64, value any, err error) (Entry, bool) {
	st, mu := s.lock(k)
	st.inflight--
	current, found := s.backend.Get(k.String())
	if seq <= st.applied {
		if !found {
			s.release(k, st)
		}
		mu.Unlock()
		s.metrics.FetchDiscarded(k.URL)
		s.logger.Debug("fetch result discarded",
			zap.String("key", k.String()),
			zap.Uint64("seq", seq),
			zap.Uint64("applied", st.applied),
		)
		return current, false
	}

	st.applied = seq
	entry := current
	if err != nil {
		entry.Err = err
		entry.Status = StatusError
	} else {
		entry.Value = value
		entry.HasValue = true
		entry.Err = nil
		entry.Status = StatusSuccess
	}
	entry.Stale = seq < st.barrier
	entry.UpdatedAt = s.now()
	entry.Seq = seq
	if st.issued > seq {
		entry.Status = StatusLoading
	}
	s.backend.Set(k.String(), entry)
	ev := s.event(k, EventUpdated, entry)
	listeners := st.snapshotListeners()
	mu.Unlock()

	s.metrics.FetchApplied(k.URL)
	notify(listeners, ev)
	return entry, true
}

// event stamps ev with the next version. Callers hold the stripe lock of k,
// so versions of one key follow the order its writes happened in.
func (s *Store) event(k cachekey.Key, kind EventKind, entry Entry) Event {
	return Event{Key: k, Kind: kind, Entry: entry, Version: s.version.Add(1)}
}

// lock returns the live state of k with its stripe lock held. A state may be
// released between lookup and locking; in that case the lookup is retried.
func (s *Store) lock(k cachekey.Key) (*keyState, *sync.Mutex) {
	id := k.String()
	mu := &s.locks[k.Hash()%lockStripes]
	for {
		st, _ := s.registry.LoadOrStore(id, &keyState{key: k})
		mu.Lock()
		if cur, ok := s.registry.Load(id); ok && cur == st {
			return st, mu
		}
		mu.Unlock()
	}
}

// release stops tracking k when nothing depends on its state any more: no
// listeners, no fetch in flight and no retained entry. Callers hold the
// stripe lock of k.
func (s *Store) release(k cachekey.Key, st *keyState) bool {
	if len(st.listeners) > 0 || st.inflight > 0 {
		return false
	}
	if _, ok := s.backend.Get(k.String()); ok {
		return false
	}
	s.registry.Delete(k.String())
	return true
}

func (st *keyState) snapshotListeners() []Listener {
	if len(st.listeners) == 0 {
		return nil
	}
	out := make([]Listener, 0, len(st.listeners))
	for _, l := range st.listeners {
		out = append(out, l)
	}
	return out
}

func notify(listeners []Listener, ev Event) {
	for _, l := range listeners {
		l(ev)
	}
}

// Read is the typed form of Store.Read.
func Read[T any](ctx context.Context, s *Store, k cachekey.Key, fetch func(ctx context.Context) (T, error)) (T, error) {
	entry, err := s.Read(ctx, k, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return Value[T](entry)
}

// Fetch is the typed form of Store.Fetch.
func Fetch[T any](ctx context.Context, s *Store, k cachekey.Key, fetch func(ctx context.Context) (T, error)) (T, error) {
	entry, err := s.Fetch(ctx, k, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return Value[T](entry)
}
