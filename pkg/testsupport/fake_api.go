package testsupport

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Invocation records one POST /invoke/{slug} call.
type Invocation struct {
	Slug   string
	Thread string
	Async  bool
	Prompt string
}

type collection struct {
	order []string
	items map[string]map[string]any
}

type failure struct {
	status  int
	message string
}

// FakeAPI is an in-memory rendition of the platform REST API for tests.
// Every registered collection supports list, get, create, update and delete;
// ids are assigned with uuid. Lists answer with the {"items": [...]}
// envelope and a missing id answers 404.
type FakeAPI struct {
	server *httptest.Server

	mu          sync.Mutex
	collections map[string]*collection
	hits        map[string]int
	gates       map[string]chan struct{}
	failures    map[string][]failure
	invocations []Invocation
	now         func() time.Time
}

// NewFakeAPI starts a server exposing the given collections, e.g.
// "email-receivers". It is closed when the test ends.
func NewFakeAPI(t testing.TB, collections ...string) *FakeAPI {
	t.Helper()

	api := &FakeAPI{
		collections: make(map[string]*collection),
		hits:        make(map[string]int),
		gates:       make(map[string]chan struct{}),
		failures:    make(map[string][]failure),
		now:         time.Now,
	}
	for _, name := range collections {
		api.collections[strings.Trim(name, "/")] = &collection{items: make(map[string]map[string]any)}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{collection}", api.list)
	mux.HandleFunc("POST /{collection}", api.create)
	mux.HandleFunc("GET /{collection}/{id}", api.get)
	mux.HandleFunc("PUT /{collection}/{id}", api.update)
	mux.HandleFunc("DELETE /{collection}/{id}", api.remove)
	mux.HandleFunc("POST /invoke/{slug}", api.invoke)

	api.server = httptest.NewServer(api.intercept(mux))
	t.Cleanup(api.server.Close)
	return api
}

// URL is the base URL of the server.
func (a *FakeAPI) URL() string {
	return a.server.URL
}

// Hits returns how many requests reached method path, e.g. ("GET", "/agents").
func (a *FakeAPI) Hits(method, path string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hits[method+" "+path]
}

// Hold blocks requests to method path until the returned release function
// is called. Release is idempotent.
func (a *FakeAPI) Hold(method, path string) (release func()) {
	gate := make(chan struct{})
	a.mu.Lock()
	a.gates[method+" "+path] = gate
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			if a.gates[method+" "+path] == gate {
				delete(a.gates, method+" "+path)
			}
			a.mu.Unlock()
			close(gate)
		})
	}
}

// FailNext makes the next request to method path answer status with a JSON
// message instead of reaching the handler.
func (a *FakeAPI) FailNext(method, path string, status int, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := method + " " + path
	a.failures[key] = append(a.failures[key], failure{status: status, message: message})
}

// Invocations returns the recorded invoke calls in arrival order.
func (a *FakeAPI) Invocations() []Invocation {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Invocation(nil), a.invocations...)
}

// Seed stores items in collection. Items are marshalled to JSON objects; an
// item without an id gets one. It returns the stored ids in order.
func (a *FakeAPI) Seed(name string, items ...any) ([]string, error) {
	records := make([]map[string]any, 0, len(items))
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		var record map[string]any
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, fmt.Errorf("seed %s: item is not an object: %w", name, err)
		}
		records = append(records, record)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	coll, ok := a.collections[strings.Trim(name, "/")]
	if !ok {
		return nil, fmt.Errorf("seed: unknown collection %q", name)
	}
	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, coll.put(a.assign(record)))
	}
	return ids, nil
}

// SeedJSON stores the items of a {"items": [...]} document in collection.
func (a *FakeAPI) SeedJSON(name string, data []byte) error {
	var envelope struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("seed %s: %w", name, err)
	}
	items := make([]any, 0, len(envelope.Items))
	for _, item := range envelope.Items {
		items = append(items, item)
	}
	_, err := a.Seed(name, items...)
	return err
}

func (a *FakeAPI) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path

		a.mu.Lock()
		a.hits[key]++
		gate := a.gates[key]
		var fail *failure
		if queued := a.failures[key]; len(queued) > 0 {
			fail = &queued[0]
			a.failures[key] = queued[1:]
		}
		a.mu.Unlock()

		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}
		if fail != nil {
			writeJSON(w, fail.status, map[string]string{"message": fail.message})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *FakeAPI) list(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	coll, ok := a.collections[r.PathValue("collection")]
	var items []map[string]any
	if ok {
		items = coll.all()
	}
	a.mu.Unlock()

	if !ok {
		notFound(w, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *FakeAPI) get(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	record, ok := a.lookup(r.PathValue("collection"), r.PathValue("id"))
	a.mu.Unlock()

	if !ok {
		notFound(w, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (a *FakeAPI) create(w http.ResponseWriter, r *http.Request) {
	record, err := decodeObject(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	delete(record, "id")

	a.mu.Lock()
	coll, ok := a.collections[r.PathValue("collection")]
	if ok {
		coll.put(a.assign(record))
	}
	a.mu.Unlock()

	if !ok {
		notFound(w, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (a *FakeAPI) update(w http.ResponseWriter, r *http.Request) {
	patch, err := decodeObject(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	id := r.PathValue("id")
	a.mu.Lock()
	current, ok := a.lookup(r.PathValue("collection"), id)
	if ok {
		for field, value := range patch {
			current[field] = value
		}
		current["id"] = id
		a.collections[r.PathValue("collection")].put(current)
	}
	a.mu.Unlock()

	if !ok {
		notFound(w, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, current)
}

func (a *FakeAPI) remove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	a.mu.Lock()
	coll, ok := a.collections[r.PathValue("collection")]
	if ok {
		ok = coll.delete(id)
	}
	a.mu.Unlock()

	if !ok {
		notFound(w, r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *FakeAPI) invoke(w http.ResponseWriter, r *http.Request) {
	prompt, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	inv := Invocation{
		Slug:   r.PathValue("slug"),
		Thread: r.URL.Query().Get("thread"),
		Async:  r.URL.Query().Get("async") == "true",
		Prompt: string(prompt),
	}
	thread := inv.Thread
	if thread == "" {
		thread = uuid.NewString()
	}

	a.mu.Lock()
	a.invocations = append(a.invocations, inv)
	a.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"threadID": thread})
}

// assign sets id and created on record when missing. Callers hold a.mu.
func (a *FakeAPI) assign(record map[string]any) map[string]any {
	if id, _ := record["id"].(string); id == "" {
		record["id"] = uuid.NewString()
	}
	if _, ok := record["created"]; !ok {
		record["created"] = a.now().UTC().Format(time.RFC3339)
	}
	return record
}

// lookup returns a copy of the stored record. Callers hold a.mu.
func (a *FakeAPI) lookup(name, id string) (map[string]any, bool) {
	coll, ok := a.collections[name]
	if !ok {
		return nil, false
	}
	record, ok := coll.items[id]
	if !ok {
		return nil, false
	}
	return copyRecord(record), true
}

func (c *collection) put(record map[string]any) string {
	id := record["id"].(string)
	if _, exists := c.items[id]; !exists {
		c.order = append(c.order, id)
	}
	c.items[id] = copyRecord(record)
	return id
}

func (c *collection) delete(id string) bool {
	if _, ok := c.items[id]; !ok {
		return false
	}
	delete(c.items, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

func (c *collection) all() []map[string]any {
	out := make([]map[string]any, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, copyRecord(c.items[id]))
	}
	return out
}

func copyRecord(record map[string]any) map[string]any {
	out := make(map[string]any, len(record))
	for k, v := range record {
		out[k] = v
	}
	return out
}

func decodeObject(body io.Reader) (map[string]any, error) {
	var record map[string]any
	if err := json.NewDecoder(body).Decode(&record); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("invalid JSON body: expected an object")
	}
	return record, nil
}

func notFound(w http.ResponseWriter, path string) {
	writeJSON(w, http.StatusNotFound, map[string]string{"message": path + " not found"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
