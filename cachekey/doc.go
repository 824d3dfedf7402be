// Package cachekey defines the structural keys used to address cached
// resources.
//
// A Key is the full resource path plus optional filter params:
//
//	cachekey.New("/email-receivers")                         // collection
//	cachekey.New("/email-receivers").With("taskId", "w1")    // filtered collection
//	cachekey.New("/email-receivers/er1").With("id", "er1")   // single entity
//
// Keys always carry the complete resource path, so two different resources
// never produce the same canonical form. Params are sorted and query-escaped
// when rendered, which keeps String stable across runs and injective.
//
// Retrieval operations that depend on an identifier return an Optional
// instead of a Key. None means "do not fetch" and must be checked before any
// request is issued:
//
//	key, ok := svc.ByIDKey(id).Get()
//	if !ok {
//		return
//	}
package cachekey
