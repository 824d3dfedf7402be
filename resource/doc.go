// Package resource is the HTTP client every entity service goes through.
//
// A Client wraps resty and applies the cross-cutting concerns of the API in
// one place: bearer auth, a per-request X-Request-ID, optional client-side
// rate limiting, a timeout, debug logging and request metrics. Every failure
// comes back as a *RequestError whose Kind tells transport failures, non-2xx
// responses and rejected payloads apart:
//
//	client := resource.New("https://api.example.com", resource.WithToken(token))
//	resp, err := resource.Fetch[entities.EntityList[entities.Agent]](ctx, client,
//		resource.Request{URL: "/agents"})
//	if resource.IsNotFound(err) {
//		// ...
//	}
package resource
