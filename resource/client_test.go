package resource

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMetrics struct {
	requests atomic.Int32
	lastCode atomic.Int32
}

func (m *recordingMetrics) CacheHit(string)         {}
func (m *recordingMetrics) CacheMiss(string)        {}
func (m *recordingMetrics) FetchApplied(string)     {}
func (m *recordingMetrics) FetchDiscarded(string)   {}
func (m *recordingMetrics) Invalidated(string, int) {}
func (m *recordingMetrics) Request(_ string, status int, _ time.Duration) {
	m.requests.Add(1)
	m.lastCode.Store(int32(status))
}

type item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func TestFetch_DecodesJSONAndSetsHeaders(t *testing.T) {
	var gotAuth, gotRequestID, gotQuery, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		gotQuery = r.URL.Query().Get("filter")
		gotMethod = r.Method
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"1","name":"alpha"}`)
	}))
	defer srv.Close()

	recorder := &recordingMetrics{}
	client := New(srv.URL, WithToken("secret"), WithMetrics(recorder))

	resp, err := Fetch[item](context.Background(), client, Request{
		URL:   "/agents/1",
		Query: map[string]string{"filter": "x"},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, item{ID: "1", Name: "alpha"}, resp.Data)
	assert.Equal(t, http.MethodGet, gotMethod)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.NotEmpty(t, gotRequestID)
	assert.Equal(t, "x", gotQuery)
	assert.Equal(t, int32(1), recorder.requests.Load())
	assert.Equal(t, int32(http.StatusOK), recorder.lastCode.Load())
}

func TestDo_SendsJSONBody(t *testing.T) {
	var gotBody, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := New(srv.URL)
	resp, err := client.Do(context.Background(), Request{
		URL:    "/agents",
		Method: http.MethodPost,
		Body:   item{Name: "beta"},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.JSONEq(t, `{"id":"","name":"beta"}`, gotBody)
	assert.Contains(t, gotType, "application/json")
}

func TestDo_RawBody(t *testing.T) {
	var gotBody, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotType = r.Header.Get("Content-Type")
	}))
	defer srv.Close()

	client := New(srv.URL)
	_, err := client.Do(context.Background(), Request{
		URL:     "/invoke/agent",
		Method:  http.MethodPost,
		Body:    "summarize the inbox",
		RawBody: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "summarize the inbox", gotBody)
	assert.Contains(t, gotType, "text/plain")
}

func TestDo_StatusErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		override    string
		wantKind    Kind
		wantMessage string
	}{
		{
			name:        "not found with json message",
			status:      http.StatusNotFound,
			body:        `{"message":"agent not found"}`,
			wantKind:    KindHTTPStatus,
			wantMessage: "agent not found",
		},
		{
			name:        "validation with detail",
			status:      http.StatusUnprocessableEntity,
			body:        `{"detail":"name is required"}`,
			wantKind:    KindValidation,
			wantMessage: "name is required",
		},
		{
			name:        "bad request plain text",
			status:      http.StatusBadRequest,
			body:        "bad payload",
			wantKind:    KindValidation,
			wantMessage: "bad payload",
		},
		{
			name:        "empty body falls back to status text",
			status:      http.StatusInternalServerError,
			wantKind:    KindHTTPStatus,
			wantMessage: http.StatusText(http.StatusInternalServerError),
		},
		{
			name:        "message override",
			status:      http.StatusInternalServerError,
			body:        `{"error":"boom"}`,
			override:    "Failed to invoke agent",
			wantKind:    KindHTTPStatus,
			wantMessage: "Failed to invoke agent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			client := New(srv.URL)
			_, err := client.Do(context.Background(), Request{URL: "/x", ErrorMessage: tt.override})
			require.Error(t, err)

			reqErr, ok := AsRequestError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantKind, reqErr.Kind)
			assert.Equal(t, tt.status, reqErr.StatusCode)
			assert.Equal(t, tt.wantMessage, reqErr.Message)
			assert.Equal(t, http.MethodGet, reqErr.Method)
			assert.Equal(t, tt.status, StatusCode(err))
			assert.Equal(t, tt.status == http.StatusNotFound, IsNotFound(err))
			assert.Equal(t, tt.wantKind == KindValidation, IsValidation(err))
		})
	}
}

func TestDo_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := New(url, WithTimeout(time.Second))
	_, err := client.Do(context.Background(), Request{URL: "/agents"})
	require.Error(t, err)

	assert.True(t, IsNetwork(err))
	assert.Zero(t, StatusCode(err))
}

func TestDo_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := New(srv.URL)
	_, err := client.Do(ctx, Request{URL: "/agents"})
	require.Error(t, err)

	assert.True(t, IsNetwork(err))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestFetch_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "not json")
	}))
	defer srv.Close()

	_, err := Fetch[item](context.Background(), New(srv.URL), Request{URL: "/agents/1"})
	reqErr, ok := AsRequestError(err)
	require.True(t, ok)
	assert.Equal(t, KindDecode, reqErr.Kind)
	assert.Equal(t, http.StatusOK, reqErr.StatusCode)
}

func TestFetch_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	resp, err := Fetch[item](context.Background(), New(srv.URL), Request{URL: "/agents/1", Method: http.MethodDelete})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.Status)
	assert.Equal(t, item{}, resp.Data)
}

func TestDo_RateLimit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	client := New(srv.URL, WithRateLimit(1, 1))
	_, err := client.Do(context.Background(), Request{URL: "/a"})
	require.NoError(t, err)

	// the single token is spent; the next request must wait longer than the deadline
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Do(ctx, Request{URL: "/b"})
	require.Error(t, err)

	assert.True(t, IsNetwork(err))
	assert.Equal(t, int32(1), hits.Load())
}

func TestNewValidationError(t *testing.T) {
	cause := errors.New("name: cannot be blank.")
	err := NewValidationError(cause)

	assert.True(t, IsValidation(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "name: cannot be blank.", err.Error())
}
