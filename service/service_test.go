package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-resource-sync/cache"
	"github.com/goliatone/go-resource-sync/entities"
	"github.com/goliatone/go-resource-sync/pkg/testsupport"
	"github.com/goliatone/go-resource-sync/resource"
)

type harness struct {
	api       *testsupport.FakeAPI
	store     *cache.Store
	client    *resource.Client
	receivers *EmailReceivers
	agents    *Agents
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	api := testsupport.NewFakeAPI(t, "email-receivers", "agents", "workflows")
	store, err := cache.NewStore(cache.DefaultConfig())
	require.NoError(t, err)
	client := resource.New(api.URL(), resource.WithTimeout(5*time.Second))

	return &harness{
		api:       api,
		store:     store,
		client:    client,
		receivers: NewEmailReceivers(client, store),
		agents:    NewAgents(client, store),
	}
}

func (h *harness) seedReceivers(t *testing.T) {
	t.Helper()
	testsupport.SeedFixture(t, h.api, "email-receivers", testsupport.FixturePath("email_receivers.json"))
}

func receiverManifest(name, workflow string) entities.EmailReceiverManifest {
	return entities.EmailReceiverManifest{Name: name, User: "inbox", WorkflowName: workflow}
}

func ids(items []entities.EmailReceiver) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func TestCreateThenGetByID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	manifest := entities.EmailReceiverManifest{
		Name:           "Support",
		Description:    "inbound support mail",
		User:           "support",
		WorkflowName:   "triage",
		AllowedSenders: []string{"ops@example.com"},
	}
	created, err := h.receivers.Create(ctx, manifest)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.NotNil(t, created.Created)
	assert.Equal(t, manifest, created.EmailReceiverManifest)

	got, err := h.receivers.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
	assert.Zero(t, h.api.Hits(http.MethodGet, "/email-receivers/"+created.ID), "created entity should be served from the cache")
}

func TestGetByID_CachesAndReportsNotFound(t *testing.T) {
	h := newHarness(t)
	h.seedReceivers(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		got, err := h.receivers.GetByID(ctx, "er2")
		require.NoError(t, err)
		assert.Equal(t, "Billing", got.Name)
	}
	assert.Equal(t, 1, h.api.Hits(http.MethodGet, "/email-receivers/er2"))

	_, err := h.receivers.GetByID(ctx, "missing")
	require.Error(t, err)
	assert.True(t, resource.IsNotFound(err))

	entry, ok := h.store.Get(h.receivers.ByIDKey("missing").MustGet())
	require.True(t, ok)
	assert.Equal(t, cache.StatusError, entry.Status)
}

func TestByIDKey_NoneWithoutID(t *testing.T) {
	h := newHarness(t)

	assert.True(t, h.receivers.ByIDKey("").IsNone())

	k, ok := h.receivers.ByIDKey("er1").Get()
	require.True(t, ok)
	assert.Equal(t, "/email-receivers/er1", k.URL)
	id, _ := k.Param("id")
	assert.Equal(t, "er1", id)

	_, err := h.receivers.GetByID(context.Background(), "")
	require.Error(t, err)
	assert.True(t, resource.IsValidation(err))
	assert.ErrorIs(t, err, ErrMissingID)
	assert.Zero(t, h.api.Hits(http.MethodGet, "/email-receivers/"))
	assert.Empty(t, h.store.Keys())
}

func TestFind_FiltersByTaskPreservingOrder(t *testing.T) {
	h := newHarness(t)
	h.seedReceivers(t)
	ctx := context.Background()

	all, err := h.receivers.Find(ctx, EmailReceiverFilters{})
	require.NoError(t, err)
	assert.Equal(t, []string{"er1", "er2", "er3", "er4", "er5"}, ids(all))

	triage, err := h.receivers.Find(ctx, EmailReceiverFilters{TaskID: "triage"})
	require.NoError(t, err)
	assert.Equal(t, []string{"er1", "er3", "er5"}, ids(triage))
	for _, r := range triage {
		assert.Equal(t, "triage", r.WorkflowName)
	}

	none, err := h.receivers.Find(ctx, EmailReceiverFilters{TaskID: "unknown"})
	require.NoError(t, err)
	assert.Empty(t, none)

	assert.Equal(t, 1, h.api.Hits(http.MethodGet, "/email-receivers"), "filters apply to the one unfiltered fetch")

	filtered, ok := h.store.Get(h.receivers.FindKey(EmailReceiverFilters{TaskID: "triage"}))
	require.True(t, ok)
	assert.True(t, filtered.Fresh())
}

func TestFind_KeysDoNotCollide(t *testing.T) {
	h := newHarness(t)

	base := h.receivers.FindKey(EmailReceiverFilters{})
	triage := h.receivers.FindKey(EmailReceiverFilters{TaskID: "triage"})
	agents := h.agents.ListKey()

	assert.Equal(t, "/email-receivers", base.String())
	assert.Equal(t, "/email-receivers::taskId=triage", triage.String())
	assert.False(t, base.Equal(triage))
	assert.NotEqual(t, base.String(), agents.String())

	// Find and List share entries
	assert.True(t, base.Equal(h.receivers.ListKey()))
	assert.True(t, triage.Equal(h.receivers.ListKey(TaskFilter("triage"))))
}

func TestList_ReturnsCopies(t *testing.T) {
	h := newHarness(t)
	h.seedReceivers(t)
	ctx := context.Background()

	first, err := h.receivers.List(ctx)
	require.NoError(t, err)
	first[0].Name = "mutated"

	second, err := h.receivers.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Support", second[0].Name)
}

func TestCreate_InvalidatesCollection(t *testing.T) {
	h := newHarness(t)
	h.seedReceivers(t)
	ctx := context.Background()

	before, err := h.receivers.List(ctx)
	require.NoError(t, err)
	_, err = h.receivers.Find(ctx, EmailReceiverFilters{TaskID: "triage"})
	require.NoError(t, err)
	require.Equal(t, 1, h.api.Hits(http.MethodGet, "/email-receivers"))

	created, err := h.receivers.Create(ctx, receiverManifest("New", "triage"))
	require.NoError(t, err)

	entry, _ := h.store.Get(h.receivers.ListKey())
	assert.True(t, entry.Stale, "collection must be stale after create")

	after, err := h.receivers.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, h.api.Hits(http.MethodGet, "/email-receivers"), "next list must fetch again")
	assert.Len(t, after, len(before)+1)
	assert.Contains(t, ids(after), created.ID)

	triage, err := h.receivers.Find(ctx, EmailReceiverFilters{TaskID: "triage"})
	require.NoError(t, err)
	assert.Equal(t, []string{"er1", "er3", "er5", created.ID}, ids(triage))
}

func TestUpdate_ReflectedInList(t *testing.T) {
	h := newHarness(t)
	h.seedReceivers(t)
	ctx := context.Background()

	_, err := h.receivers.List(ctx)
	require.NoError(t, err)

	patch := receiverManifest("Support (EU)", "triage")
	patch.User = "support"
	updated, err := h.receivers.Update(ctx, "er1", patch)
	require.NoError(t, err)
	assert.Equal(t, "Support (EU)", updated.Name)

	list, err := h.receivers.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Support (EU)", list[0].Name)

	got, err := h.receivers.GetByID(ctx, "er1")
	require.NoError(t, err)
	assert.Equal(t, "Support (EU)", got.Name)
	assert.Zero(t, h.api.Hits(http.MethodGet, "/email-receivers/er1"))
}

func TestUpdate_FailureLeavesCacheUntouched(t *testing.T) {
	h := newHarness(t)
	h.seedReceivers(t)
	ctx := context.Background()

	_, err := h.receivers.GetByID(ctx, "er1")
	require.NoError(t, err)
	_, err = h.receivers.List(ctx)
	require.NoError(t, err)

	h.api.FailNext(http.MethodPut, "/email-receivers/er1", http.StatusInternalServerError, "db down")
	_, err = h.receivers.Update(ctx, "er1", receiverManifest("Renamed", "triage"))
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, resource.StatusCode(err))

	byID, _ := h.store.Get(h.receivers.ByIDKey("er1").MustGet())
	assert.True(t, byID.Fresh())
	list, _ := h.store.Get(h.receivers.ListKey())
	assert.True(t, list.Fresh())

	got, err := h.receivers.GetByID(ctx, "er1")
	require.NoError(t, err)
	assert.Equal(t, "Support", got.Name)
}

func TestCreate_ValidationFailsBeforeRequest(t *testing.T) {
	h := newHarness(t)

	_, err := h.receivers.Create(context.Background(), entities.EmailReceiverManifest{Name: "No workflow"})
	require.Error(t, err)
	assert.True(t, resource.IsValidation(err))
	assert.Zero(t, h.api.Hits(http.MethodPost, "/email-receivers"))
}

func TestCreate_BackendValidationError(t *testing.T) {
	h := newHarness(t)
	h.api.FailNext(http.MethodPost, "/email-receivers", http.StatusUnprocessableEntity, "user already taken")

	_, err := h.receivers.Create(context.Background(), receiverManifest("Dup", "triage"))
	require.Error(t, err)
	assert.True(t, resource.IsValidation(err))
	reqErr, ok := resource.AsRequestError(err)
	require.True(t, ok)
	assert.Equal(t, "user already taken", reqErr.Message)
}

func TestDelete_MissingIDLeavesListCached(t *testing.T) {
	h := newHarness(t)
	h.seedReceivers(t)
	ctx := context.Background()

	before, err := h.receivers.List(ctx)
	require.NoError(t, err)

	err = h.receivers.Delete(ctx, "missing")
	require.Error(t, err)
	assert.True(t, resource.IsNotFound(err))
	reqErr, ok := resource.AsRequestError(err)
	require.True(t, ok)
	assert.Equal(t, resource.KindHTTPStatus, reqErr.Kind)

	entry, _ := h.store.Get(h.receivers.ListKey())
	assert.True(t, entry.Fresh(), "failed delete must not invalidate the list")

	after, err := h.receivers.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, h.api.Hits(http.MethodGet, "/email-receivers"))
}

func TestDelete_EvictsEntity(t *testing.T) {
	h := newHarness(t)
	h.seedReceivers(t)
	ctx := context.Background()

	_, err := h.receivers.GetByID(ctx, "er2")
	require.NoError(t, err)
	_, err = h.receivers.List(ctx)
	require.NoError(t, err)

	require.NoError(t, h.receivers.Delete(ctx, "er2"))

	_, ok := h.store.Get(h.receivers.ByIDKey("er2").MustGet())
	assert.False(t, ok)

	list, err := h.receivers.List(ctx)
	require.NoError(t, err)
	assert.NotContains(t, ids(list), "er2")

	_, err = h.receivers.GetByID(ctx, "er2")
	assert.True(t, resource.IsNotFound(err))
}

func TestRevalidate_CoversFilteredKeys(t *testing.T) {
	h := newHarness(t)
	h.seedReceivers(t)
	ctx := context.Background()

	_, err := h.receivers.Find(ctx, EmailReceiverFilters{TaskID: "triage"})
	require.NoError(t, err)
	_, err = h.receivers.Find(ctx, EmailReceiverFilters{TaskID: "leads"})
	require.NoError(t, err)

	assert.Equal(t, 3, h.receivers.Revalidate())
	assert.Zero(t, h.agents.Revalidate())
}

func TestMutationDuringListFetch_EventuallyConsistent(t *testing.T) {
	h := newHarness(t)
	h.seedReceivers(t)
	ctx := context.Background()

	release := h.api.Hold(http.MethodGet, "/email-receivers")
	defer release()

	type result struct {
		items []entities.EmailReceiver
		err   error
	}
	inflight := make(chan result, 1)
	go func() {
		items, err := h.receivers.List(ctx)
		inflight <- result{items, err}
	}()
	require.Eventually(t, func() bool {
		return h.api.Hits(http.MethodGet, "/email-receivers") == 1
	}, 2*time.Second, 5*time.Millisecond)

	created, err := h.receivers.Create(ctx, receiverManifest("Late", "triage"))
	require.NoError(t, err)
	release()

	first := <-inflight
	require.NoError(t, first.err)

	settled, err := h.receivers.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids(settled), created.ID)
}

func TestUpdate_SameIDIsSerialized(t *testing.T) {
	h := newHarness(t)
	h.seedReceivers(t)
	ctx := context.Background()

	release := h.api.Hold(http.MethodPut, "/email-receivers/er1")
	defer release()

	var wg sync.WaitGroup
	update := func(name string) {
		defer wg.Done()
		m := receiverManifest(name, "triage")
		m.User = "support"
		_, err := h.receivers.Update(ctx, "er1", m)
		assert.NoError(t, err)
	}

	wg.Add(1)
	go update("first")
	require.Eventually(t, func() bool {
		return h.api.Hits(http.MethodPut, "/email-receivers/er1") == 1
	}, 2*time.Second, 5*time.Millisecond)

	wg.Add(1)
	go update("second")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, h.api.Hits(http.MethodPut, "/email-receivers/er1"), "second update must wait for the first")

	release()
	wg.Wait()
	assert.Equal(t, 2, h.api.Hits(http.MethodPut, "/email-receivers/er1"))
	assert.Zero(t, h.receivers.locks.size())
}

func TestAgentsService(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.agents.Create(ctx, entities.AgentManifest{Name: "Helper", Prompt: "Be nice."})
	require.NoError(t, err)

	agents, err := h.agents.List(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, created.ID, agents[0].ID)
	assert.Equal(t, "Be nice.", agents[0].Prompt)

	_, err = h.agents.Create(ctx, entities.AgentManifest{})
	assert.True(t, resource.IsValidation(err))
}

func TestFetchers(t *testing.T) {
	h := newHarness(t)
	h.seedReceivers(t)
	ctx := context.Background()

	all, err := h.receivers.ListFetcher()(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.Empty(t, h.store.Keys(), "unfiltered fetcher bypasses the store")

	triage, err := h.receivers.ListFetcher(TaskFilter("triage"))(ctx)
	require.NoError(t, err)
	assert.Len(t, triage, 3)
	_, cached := h.store.Get(h.receivers.ListKey())
	assert.True(t, cached, "filtered fetcher reads the base collection through the store")
	assert.Equal(t, 2, h.api.Hits(http.MethodGet, "/email-receivers"))

	one, err := h.receivers.FetchByID("er2")(ctx)
	require.NoError(t, err)
	assert.Equal(t, "invoices", one.WorkflowName)
	_, cached = h.store.Get(h.receivers.ByIDKey("er2").MustGet())
	assert.False(t, cached)
}

// slowStaleBackend is a map backend that stalls whenever a filtered entry is
// marked stale, widening the window in which readers can interleave with an
// ongoing invalidation.
type slowStaleBackend struct {
	mu      sync.Mutex
	entries map[string]cache.Entry
}

func (b *slowStaleBackend) Get(key string) (cache.Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	return e, ok
}

func (b *slowStaleBackend) Set(key string, entry cache.Entry) {
	b.mu.Lock()
	b.entries[key] = entry
	b.mu.Unlock()
	if entry.Stale && strings.Contains(key, "taskId=") {
		time.Sleep(20 * time.Millisecond)
	}
}

func (b *slowStaleBackend) Delete(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
}

func TestCreate_FilteredListConvergesDuringConcurrentReads(t *testing.T) {
	for round := 0; round < 5; round++ {
		api := testsupport.NewFakeAPI(t, "email-receivers")
		store := cache.NewStoreWithBackend(&slowStaleBackend{entries: map[string]cache.Entry{}})
		client := resource.New(api.URL(), resource.WithTimeout(5*time.Second))
		receivers := NewEmailReceivers(client, store)
		ctx := context.Background()

		for i := 0; i < 9; i++ {
			_, err := receivers.List(ctx, TaskFilter(fmt.Sprintf("wf%d", i)))
			require.NoError(t, err)
		}

		stop := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				_, _ = receivers.List(ctx, TaskFilter("wf7"))
			}
		}()

		created, err := receivers.Create(ctx, receiverManifest("support", "wf7"))
		require.NoError(t, err)
		close(stop)
		wg.Wait()

		all, err := receivers.List(ctx)
		require.NoError(t, err)
		filtered, err := receivers.List(ctx, TaskFilter("wf7"))
		require.NoError(t, err)

		assert.Equal(t, []string{created.ID}, ids(all), "round %d", round)
		assert.Equal(t, []string{created.ID}, ids(filtered), "round %d: filtered list must reflect the create", round)
	}
}
