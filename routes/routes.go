// Package routes is the table of API paths used by the entity services.
package routes

import (
	"net/url"
	"sort"
	"strings"
)

const (
	AgentsPath         = "/agents"
	WorkflowsPath      = "/workflows"
	EmailReceiversPath = "/email-receivers"
	InvokePath         = "/invoke"
)

// Route is a path relative to the API base URL plus its query parameters.
type Route struct {
	Path  string
	Query map[string]string
}

// String renders the route as path?query with parameters sorted by name.
func (r Route) String() string {
	if len(r.Query) == 0 {
		return r.Path
	}
	names := make([]string, 0, len(r.Query))
	for name := range r.Query {
		names = append(names, name)
	}
	sort.Strings(names)

	values := url.Values{}
	for _, name := range names {
		values.Set(name, r.Query[name])
	}
	return r.Path + "?" + values.Encode()
}

// URL joins the route onto baseURL.
func (r Route) URL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + r.String()
}

// Resource is the route set of one REST collection.
type Resource struct {
	base string
}

// NewResource returns the routes for the collection at base.
func NewResource(base string) Resource {
	return Resource{base: "/" + strings.Trim(base, "/")}
}

var (
	Agents         = NewResource(AgentsPath)
	Workflows      = NewResource(WorkflowsPath)
	EmailReceivers = NewResource(EmailReceiversPath)
)

// Base returns the collection path. Cache keys of the collection use it.
func (r Resource) Base() string {
	return r.base
}

func (r Resource) List() Route {
	return Route{Path: r.base}
}

func (r Resource) ByID(id string) Route {
	return Route{Path: r.base + "/" + url.PathEscape(id)}
}

func (r Resource) Create() Route {
	return r.List()
}

func (r Resource) Update(id string) Route {
	return r.ByID(id)
}

func (r Resource) Delete(id string) Route {
	return r.ByID(id)
}

// Invoke returns the route that starts a run of the agent or workflow slug.
// An empty thread starts a new one.
func Invoke(slug, thread string, async bool) Route {
	query := map[string]string{}
	if thread != "" {
		query["thread"] = thread
	}
	if async {
		query["async"] = "true"
	}
	if len(query) == 0 {
		query = nil
	}
	return Route{Path: InvokePath + "/" + url.PathEscape(slug), Query: query}
}
