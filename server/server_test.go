package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minios-linux/jsonloc/backend"
	"github.com/minios-linux/jsonloc/config"
	"github.com/minios-linux/jsonloc/translate"
)

type upperBackend struct{}

func (upperBackend) Translate(_ context.Context, req backend.Request) backend.Result {
	return backend.Ok(strings.ToUpper(req.Text))
}

func (upperBackend) ValidateConfig() error { return nil }

func (upperBackend) Info() backend.ProviderInfo { return backend.ProviderInfo{ID: "upper"} }

type countingBackend struct {
	upperBackend
	calls atomic.Int32
}

func (b *countingBackend) Translate(ctx context.Context, req backend.Request) backend.Result {
	b.calls.Add(1)
	return b.upperBackend.Translate(ctx, req)
}

type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func newTestServer(t *testing.T, b backend.Backend) *Server {
	t.Helper()
	settings, err := config.Resolve(config.Overrides{Provider: "noop"}, nil, nil, nil)
	require.NoError(t, err)
	s, err := New(Options{Settings: settings, Backend: b})
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec, env := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", env.Status)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestProviders(t *testing.T) {
	s := newTestServer(t, nil)
	rec, env := do(t, s, http.MethodGet, "/v1/providers", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var provs []providerEntry
	require.NoError(t, json.Unmarshal(env.Data, &provs))
	ids := make([]string, len(provs))
	for i, p := range provs {
		ids[i] = p.ID
	}
	assert.Contains(t, ids, backend.ProviderOpenAI)
	assert.Contains(t, ids, backend.ProviderNoop)
}

func TestExtract(t *testing.T) {
	s := newTestServer(t, nil)
	rec, env := do(t, s, http.MethodPost, "/v1/extract", `{"document":{"a":{"b":"x"},"l":["y",1]}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var data struct {
		Leaves []struct {
			Path  string `json:"path"`
			Value string `json:"value"`
		} `json:"leaves"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Len(t, data.Leaves, 2)
	assert.Equal(t, "a.b", data.Leaves[0].Path)
	assert.Equal(t, "l[0]", data.Leaves[1].Path)
}

func TestTranslate_NoopKeepsDocument(t *testing.T) {
	s := newTestServer(t, nil)
	const doc = `{"z":"Zebra","a":{"k":"Key","n":2}}`
	rec, env := do(t, s, http.MethodPost, "/v1/translate", `{"document":`+doc+`,"target_lang":"de","source_lang":"en"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp translateResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.JSONEq(t, doc, string(resp.Document))
	assert.Equal(t, `{"z":"Zebra","a":{"k":"Key","n":2}}`, string(resp.Document))
	assert.Len(t, resp.Outcomes, 2)
	assert.Equal(t, 2, resp.Stats.Completed)
	assert.Empty(t, resp.ApplyErrors)
}

func TestTranslate_WritesTranslations(t *testing.T) {
	s := newTestServer(t, upperBackend{})
	rec, env := do(t, s, http.MethodPost, "/v1/translate",
		`{"document":{"menu":{"file":"File","items":["Open","Close"]}},"target_lang":"de"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp translateResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, `{"menu":{"file":"FILE","items":["OPEN","CLOSE"]}}`, string(resp.Document))
	for _, oc := range resp.Outcomes {
		assert.True(t, oc.Success)
	}

	// Metrics are exposed after a run.
	mrec := httptest.NewRecorder()
	s.Handler().ServeHTTP(mrec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, mrec.Code)
	assert.Contains(t, mrec.Body.String(), `jsonloc_items_total{provider="upper",status="success"} 3`)
}

func TestTranslate_RequestsDoNotShareCache(t *testing.T) {
	b := &countingBackend{}
	s := newTestServer(t, b)
	body := `{"document":{"a":"Hello","b":"Hello"},"target_lang":"de"}`

	for i := 0; i < 2; i++ {
		rec, env := do(t, s, http.MethodPost, "/v1/translate", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp translateResponse
		require.NoError(t, json.Unmarshal(env.Data, &resp))
		assert.Equal(t, 2, resp.Stats.Completed)
		assert.Zero(t, resp.Stats.CacheHits)
	}
	assert.Equal(t, int32(2), b.calls.Load())
}

func TestMetrics_ExposeDispatchWindow(t *testing.T) {
	s := newTestServer(t, upperBackend{})
	rec, _ := do(t, s, http.MethodPost, "/v1/translate", `{"document":{"a":"x","b":"y"},"target_lang":"de"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	mrec := httptest.NewRecorder()
	s.Handler().ServeHTTP(mrec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := mrec.Body.String()
	assert.Contains(t, body, `jsonloc_dispatches_last_minute{provider="upper"} 2`)
	assert.Contains(t, body, `jsonloc_dispatch_throughput{provider="upper"}`)
	assert.Contains(t, body, `jsonloc_governor_in_flight{provider="upper"} 0`)
}

func TestTranslate_BadRequests(t *testing.T) {
	s := newTestServer(t, upperBackend{})
	cases := map[string]string{
		"empty body":       ``,
		"invalid json":     `{"document":`,
		"trailing content": `{"document":{"a":"b"},"target_lang":"de"} x`,
		"missing target":   `{"document":{"a":"b"}}`,
		"unknown field":    `{"document":{"a":"b"},"target_lang":"de","extra":1}`,
		"bad strategy":     `{"document":{"a":"b"},"target_lang":"de","strategy":"sideways"}`,
		"no leaves":        `{"document":{"a":1,"b":"  "},"target_lang":"de"}`,
		"batching":         `{"document":{"a":"b"},"target_lang":"de","strategy":"batched"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec, env := do(t, s, http.MethodPost, "/v1/translate", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, "fail", env.Status)
			assert.NotEmpty(t, env.Message)
		})
	}
}

func TestTranslate_NoopBatched(t *testing.T) {
	s := newTestServer(t, nil)
	rec, env := do(t, s, http.MethodPost, "/v1/translate",
		`{"document":["One","Two","One"],"target_lang":"fr","strategy":"batched"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp translateResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, `["One","Two","One"]`, string(resp.Document))
	require.Len(t, resp.Outcomes, 3)
	assert.Equal(t, translate.Outcome{ID: "item-2", Path: "[2]", Success: true, TranslatedText: "One"}, resp.Outcomes[2])
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, nil)
	rec, env := do(t, s, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "fail", env.Status)
}
