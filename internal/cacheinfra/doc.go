// Package cacheinfra adapts sturdyc into the retention backend used by the
// cache store. It is internal because callers configure it through
// cache.Config.
package cacheinfra
