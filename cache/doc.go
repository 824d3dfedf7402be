// Package cache implements the shared, keyed response cache used by the
// entity services and the binding layer.
//
// # Overview
//
// A Store holds one Entry per cache key. An entry carries the last known
// value, the last error, a Status and a Stale flag. Reads are served from the
// entry while it is fresh; otherwise the Store fetches from the source of
// truth, sharing one in-flight fetch between concurrent readers of a key:
//
//	store, err := cache.NewStore(cache.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	agents, err := cache.Read(ctx, store, cachekey.New("/agents"),
//		func(ctx context.Context) ([]entities.Agent, error) {
//			return client.ListAgents(ctx)
//		})
//
// # Ordering
//
// Every fetch and every write takes a number from a store-wide sequence. A
// fetch result is written only when its number is higher than the one of the
// last write, so a response that arrives late never replaces a newer value
// and a fetch that completes after Set or Remove is dropped.
//
// Invalidate, InvalidateWhere and InvalidateURL mark entries stale. Results of
// fetches that were already running when the invalidation happened are still
// written, but the entry stays stale so the next read fetches again.
//
// # Events
//
// Subscribe registers a Listener for a key. Listeners receive an Event after
// every change of the entry, outside the store locks. Events carry a Version
// that grows with every change of the key; delivery from concurrent writers
// may interleave, so consumers keep the highest version they have seen.
//
// # Retention
//
// Entries live in a sturdyc backend sized by Config. Eviction only drops the
// retained value; the ordering state of a key is kept by the Store itself.
package cache
