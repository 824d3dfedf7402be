// Package binding keeps consumer state in sync with store entries.
//
// A Subscription follows one cache key. It exposes the latest Snapshot of
// the entry, a channel of snapshot updates, and the two ways to change the
// entry: Mutate writes a known value and Revalidate fetches again. When the
// entry is invalidated, typically by a service after a successful mutation,
// every open subscription on the key fetches again; concurrent subscriptions
// share one fetch.
//
//	sub := binding.Subscribe(ctx, store, receivers.ByIDKey(id),
//		func(ctx context.Context) (entities.EmailReceiver, error) {
//			return receivers.GetByID(ctx, id)
//		})
//	defer sub.Close()
//	for snap := range sub.Updates() {
//		render(snap)
//	}
//
// A subscription on cachekey.None stays idle and never fetches.
package binding
