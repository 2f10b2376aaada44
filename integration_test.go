// integration_test.go contains an end-to-end test suite for the relay API,
// running the real router against in-memory storage and a stub AI provider.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// testAPIKey is the static API key used to authenticate test requests.
const testAPIKey = "test-integration-key"

// stubProvider records the last prompt and returns a canned completion.
type stubProvider struct {
	lastPrompt string
	reply      string
	err        error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Complete(_ context.Context, prompt string) (string, error) {
	s.lastPrompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

// newTestServer builds the full router on in-memory storage.
func newTestServer(t *testing.T, provider Provider) (*httptest.Server, *CollectionStore) {
	t.Helper()
	store := NewCollectionStore(NewMemoryKV())
	logger := log.New(io.Discard, "", 0)
	handler := NewHandler(store, provider, logger, false)
	srv := httptest.NewServer(newRouter(handler, testAPIKey))
	t.Cleanup(srv.Close)
	return srv, store
}

// authTransport injects the API key header into outgoing requests.
type authTransport struct {
	key  string
	base http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set(apiKeyHeader, t.key)
	return t.base.RoundTrip(req)
}

func newTestClient(key string) *http.Client {
	return &http.Client{Transport: &authTransport{key: key, base: http.DefaultTransport}}
}

func doJSON(t *testing.T, client *http.Client, method, url, body string) (int, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func TestAuthGate(t *testing.T) {
	srv, store := newTestServer(t, &stubProvider{reply: "{}"})

	t.Run("missing key is rejected with the fixed body", func(t *testing.T) {
		status, body := doJSON(t, http.DefaultClient, http.MethodGet, srv.URL+"/api/alarms", "")
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.JSONEq(t, `{"error":"Unauthorized"}`, string(body))
	})

	t.Run("wrong key performs no mutation", func(t *testing.T) {
		bad := newTestClient("wrong-key")
		status, _ := doJSON(t, bad, http.MethodPost, srv.URL+"/api/alarms", `{"label":"x"}`)
		assert.Equal(t, http.StatusUnauthorized, status)

		items, err := store.List(context.Background(), "alarms")
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("parse is gated too", func(t *testing.T) {
		status, _ := doJSON(t, http.DefaultClient, http.MethodPost, srv.URL+"/api/parse", `{"text":"hi"}`)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("matching key proceeds", func(t *testing.T) {
		status, _ := doJSON(t, newTestClient(testAPIKey), http.MethodGet, srv.URL+"/api/alarms", "")
		assert.Equal(t, http.StatusOK, status)
	})
}

func TestCollectionCRUD(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	client := newTestClient(testAPIKey)

	t.Run("create then get round trips", func(t *testing.T) {
		status, body := doJSON(t, client, http.MethodPost, srv.URL+"/api/alarms", `{"label":"x"}`)
		require.Equal(t, http.StatusCreated, status)

		id := gjson.GetBytes(body, "id").String()
		require.NotEmpty(t, id)
		createdAt := gjson.GetBytes(body, "createdAt").String()
		_, err := time.Parse(time.RFC3339, createdAt)
		require.NoError(t, err, "createdAt not RFC 3339: %s", createdAt)
		assert.Equal(t, "x", gjson.GetBytes(body, "label").String())

		status, got := doJSON(t, client, http.MethodGet, srv.URL+"/api/alarms/"+id, "")
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "x", gjson.GetBytes(got, "label").String())
		assert.Equal(t, id, gjson.GetBytes(got, "id").String())
	})

	t.Run("caller-supplied id is kept", func(t *testing.T) {
		status, body := doJSON(t, client, http.MethodPost, srv.URL+"/api/meetings", `{"id":"m-42","title":"standup"}`)
		require.Equal(t, http.StatusCreated, status)
		assert.Equal(t, "m-42", gjson.GetBytes(body, "id").String())

		status, _ = doJSON(t, client, http.MethodGet, srv.URL+"/api/meetings/m-42", "")
		assert.Equal(t, http.StatusOK, status)
	})

	t.Run("unknown id is 404 with the fixed body", func(t *testing.T) {
		status, body := doJSON(t, client, http.MethodGet, srv.URL+"/api/alarms/nope", "")
		assert.Equal(t, http.StatusNotFound, status)
		assert.JSONEq(t, `{"error":"Not found"}`, string(body))
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		status, _ := doJSON(t, client, http.MethodPost, srv.URL+"/api/moods", `{"id":"mood-1","mood":"calm"}`)
		require.Equal(t, http.StatusCreated, status)

		status, body := doJSON(t, client, http.MethodDelete, srv.URL+"/api/moods/mood-1", "")
		require.Equal(t, http.StatusOK, status)
		assert.JSONEq(t, `{"deleted":true}`, string(body))

		// deleting again acknowledges identically and changes nothing
		status, body = doJSON(t, client, http.MethodDelete, srv.URL+"/api/moods/mood-1", "")
		require.Equal(t, http.StatusOK, status)
		assert.JSONEq(t, `{"deleted":true}`, string(body))

		status, list := doJSON(t, client, http.MethodGet, srv.URL+"/api/moods", "")
		require.Equal(t, http.StatusOK, status)
		assert.JSONEq(t, "[]", string(list))
	})

	t.Run("never-written collection lists as empty array", func(t *testing.T) {
		status, body := doJSON(t, client, http.MethodGet, srv.URL+"/api/profiles", "")
		require.Equal(t, http.StatusOK, status)
		assert.JSONEq(t, "[]", string(body))
	})

	t.Run("list returns items in insertion order", func(t *testing.T) {
		for _, label := range []string{"one", "two", "three"} {
			status, _ := doJSON(t, client, http.MethodPost, srv.URL+"/api/inbox", `{"source":"`+label+`"}`)
			require.Equal(t, http.StatusCreated, status)
		}
		status, body := doJSON(t, client, http.MethodGet, srv.URL+"/api/inbox", "")
		require.Equal(t, http.StatusOK, status)
		sources := gjson.GetBytes(body, "#.source").Array()
		require.Len(t, sources, 3)
		assert.Equal(t, "one", sources[0].String())
		assert.Equal(t, "three", sources[2].String())
	})

	t.Run("unsupported method is 405", func(t *testing.T) {
		status, _ := doJSON(t, client, http.MethodPut, srv.URL+"/api/alarms/abc", `{}`)
		assert.Equal(t, http.StatusMethodNotAllowed, status)
	})
}

func TestParseEndpoint(t *testing.T) {
	t.Run("missing text is a 400", func(t *testing.T) {
		srv, _ := newTestServer(t, &stubProvider{reply: "{}"})
		client := newTestClient(testAPIKey)
		status, body := doJSON(t, client, http.MethodPost, srv.URL+"/api/parse", `{"mode":"alarm"}`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.JSONEq(t, `{"error":"No text provided"}`, string(body))
	})

	t.Run("mood parse returns the provider object verbatim", func(t *testing.T) {
		stub := &stubProvider{reply: `{"mood":"great","level":0.9,"trigger":"running","suggestion":"keep it up"}`}
		srv, _ := newTestServer(t, stub)
		client := newTestClient(testAPIKey)

		status, body := doJSON(t, client, http.MethodPost, srv.URL+"/api/parse",
			`{"text":"I feel great after my run","mode":"mood"}`)
		require.Equal(t, http.StatusOK, status)
		for _, key := range []string{"mood", "level", "trigger", "suggestion"} {
			assert.True(t, gjson.GetBytes(body, key).Exists(), "missing key %s", key)
		}
		assert.Contains(t, stub.lastPrompt, promptSchemas["mood"])
		assert.Contains(t, stub.lastPrompt, `Voice input: "I feel great after my run"`)
	})

	t.Run("unknown mode hands the provider the alarm schema", func(t *testing.T) {
		stub := &stubProvider{reply: `{"label":"x"}`}
		srv, _ := newTestServer(t, stub)
		client := newTestClient(testAPIKey)

		status, _ := doJSON(t, client, http.MethodPost, srv.URL+"/api/parse", `{"text":"beep","mode":"bogus"}`)
		require.Equal(t, http.StatusOK, status)
		assert.Contains(t, stub.lastPrompt, promptSchemas["alarm"])
	})

	t.Run("fenced provider output is repaired before decoding", func(t *testing.T) {
		stub := &stubProvider{reply: "```json\n{\"label\":\"run\"}\n```"}
		srv, _ := newTestServer(t, stub)
		client := newTestClient(testAPIKey)

		status, body := doJSON(t, client, http.MethodPost, srv.URL+"/api/parse", `{"text":"beep"}`)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "run", gjson.GetBytes(body, "label").String())
	})

	t.Run("unparseable provider output is a 500", func(t *testing.T) {
		stub := &stubProvider{reply: "sorry, I cannot do that"}
		srv, _ := newTestServer(t, stub)
		client := newTestClient(testAPIKey)

		status, body := doJSON(t, client, http.MethodPost, srv.URL+"/api/parse", `{"text":"beep"}`)
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.NotEmpty(t, gjson.GetBytes(body, "error").String())
	})

	t.Run("no provider configured is a 500 per request", func(t *testing.T) {
		srv, _ := newTestServer(t, nil)
		client := newTestClient(testAPIKey)

		status, body := doJSON(t, client, http.MethodPost, srv.URL+"/api/parse", `{"text":"beep"}`)
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.JSONEq(t, `{"error":"no AI provider available"}`, string(body))
	})
}

func TestIndexAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	t.Run("metadata is served without auth", func(t *testing.T) {
		status, body := doJSON(t, http.DefaultClient, http.MethodGet, srv.URL+"/", "")
		require.Equal(t, http.StatusOK, status)

		var info ServiceInfo
		require.NoError(t, json.Unmarshal(body, &info))
		assert.Equal(t, serviceName, info.Name)
		assert.Equal(t, serviceVersion, info.Version)
		assert.False(t, info.Redis)
		assert.Contains(t, info.Endpoints, "/api/parse")
		assert.Contains(t, info.Endpoints, "/api/schedule")
	})

	t.Run("unknown path is a 404", func(t *testing.T) {
		status, _ := doJSON(t, http.DefaultClient, http.MethodGet, srv.URL+"/nope", "")
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("metrics endpoint scrapes", func(t *testing.T) {
		status, _ := doJSON(t, http.DefaultClient, http.MethodGet, srv.URL+"/metrics", "")
		assert.Equal(t, http.StatusOK, status)
	})
}
