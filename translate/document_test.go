package translate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minios-linux/jsonloc/backend"
	"github.com/minios-linux/jsonloc/cache"
	"github.com/minios-linux/jsonloc/jsondoc"
	"github.com/minios-linux/jsonloc/ratelimit"
)

const menuDoc = `{"menu":{"file":"File","items":["Open","Close"]},"count":3,"empty":""}`

func parse(t *testing.T, s string) any {
	t.Helper()
	doc, err := jsondoc.Parse([]byte(s))
	require.NoError(t, err)
	return doc
}

func marshal(t *testing.T, doc any) string {
	t.Helper()
	b, err := jsondoc.Marshal(doc, "")
	require.NoError(t, err)
	return string(b)
}

func TestApply_WritesSuccessesOnly(t *testing.T) {
	doc := parse(t, menuDoc)
	out, errs := Apply(doc, []Outcome{
		{ID: "1", Path: "menu.file", Success: true, TranslatedText: "Datei"},
		{ID: "2", Path: "menu.items[0]", Success: true, TranslatedText: "Öffnen"},
		{ID: "3", Path: "menu.items[1]", Error: "HTTP 500"},
	})
	assert.Empty(t, errs)
	assert.Equal(t,
		`{"menu":{"file":"Datei","items":["Öffnen","Close"]},"count":3,"empty":""}`,
		marshal(t, out))
	// The input is untouched.
	assert.Equal(t, menuDoc, marshal(t, doc))
}

func TestApply_IsIdempotent(t *testing.T) {
	outcomes := []Outcome{{ID: "1", Path: "menu.file", Success: true, TranslatedText: "Datei"}}
	once, _ := Apply(parse(t, menuDoc), outcomes)
	twice, _ := Apply(once, outcomes)
	assert.Equal(t, marshal(t, once), marshal(t, twice))
}

func TestApply_ConflictDoesNotStopOthers(t *testing.T) {
	doc := parse(t, menuDoc)
	out, errs := Apply(doc, []Outcome{
		{ID: "1", Path: "menu.file.deep", Success: true, TranslatedText: "x"},
		{ID: "2", Path: "count[2]", Success: true, TranslatedText: "y"},
		{ID: "3", Path: "menu.items[1]", Success: true, TranslatedText: "Schließen"},
	})
	require.Len(t, errs, 2)
	assert.Equal(t, "menu.file.deep", errs[0].Path)
	assert.True(t, errors.Is(errs[0], jsondoc.ErrPathConflict))
	assert.Contains(t, marshal(t, out), `"Schließen"`)
	assert.Contains(t, marshal(t, out), `"file":"File"`)
}

func TestApply_CreatesMissingPaths(t *testing.T) {
	out, errs := Apply(parse(t, `{}`), []Outcome{
		{ID: "1", Path: "a.b[1]", Success: true, TranslatedText: "z"},
	})
	assert.Empty(t, errs)
	assert.Equal(t, `{"a":{"b":[null,"z"]}}`, marshal(t, out))
}

func TestItemsFromLeaves(t *testing.T) {
	items := ItemsFromLeaves(jsondoc.Extract(parse(t, menuDoc)))
	assert.Equal(t, []Item{
		{ID: "item-0", Path: "menu.file", SourceText: "File"},
		{ID: "item-1", Path: "menu.items[0]", SourceText: "Open"},
		{ID: "item-2", Path: "menu.items[1]", SourceText: "Close"},
	}, items)
}

func TestTranslateDocument_NoopReproducesInput(t *testing.T) {
	const src = `{"b":"Beta","a":{"x.y":"dotted","[0]":"bracket","":"empty key"},"list":[["deep"]],"n":1.50}`
	o := newOrch(t, Options{Backend: backend.NewNoop()})

	res, err := o.TranslateDocument(context.Background(), parse(t, src))
	require.NoError(t, err)
	assert.Empty(t, res.ApplyErrors)
	assert.Equal(t, src, marshal(t, res.Document))
	assert.Equal(t, 5, res.Stats.Total)
	assert.Equal(t, 5, res.Stats.Completed)
	assert.NotEmpty(t, res.Stats.RunID)
}

func TestTranslateDocument_UpperCase(t *testing.T) {
	f := newFake()
	f.fn = func(_ context.Context, req backend.Request) backend.Result {
		if req.Text == "Close" {
			return backend.Fail(errors.New("refused"))
		}
		return backend.Ok(strings.ToUpper(req.Text))
	}
	o := newOrch(t, Options{Backend: f})

	res, err := o.TranslateDocument(context.Background(), parse(t, menuDoc))
	require.NoError(t, err)
	assert.Equal(t,
		`{"menu":{"file":"FILE","items":["OPEN","Close"]},"count":3,"empty":""}`,
		marshal(t, res.Document))
	assert.Equal(t, 1, res.Stats.Failed)
	assert.Equal(t, 2, res.Stats.Completed)

	f.fn = nil
	_, err = o.RetryFailed(context.Background())
	require.NoError(t, err)
	rebuilt := o.Rebuild(parse(t, menuDoc))
	assert.Equal(t,
		`{"menu":{"file":"FILE","items":["OPEN","de:Close"]},"count":3,"empty":""}`,
		marshal(t, rebuilt.Document))
	assert.Zero(t, rebuilt.Stats.Failed)
}

func TestTranslateDocument_NoLeaves(t *testing.T) {
	f := newFake()
	o := newOrch(t, Options{Backend: f})
	_, err := o.TranslateDocument(context.Background(), parse(t, `{"n":1,"s":"  ","l":[]}`))
	assert.ErrorIs(t, err, jsondoc.ErrNoTranslatableLeaves)
	assert.Empty(t, f.calls)
}

func TestTranslateDocument_CacheHitsAreThisRunOnly(t *testing.T) {
	f := newFake()
	c := cache.New()
	ctx := context.Background()

	res, err := newOrch(t, Options{Backend: f, Cache: c}).TranslateDocument(ctx, parse(t, `{"a":"Hello"}`))
	require.NoError(t, err)
	assert.Zero(t, res.Stats.CacheHits)

	res, err = newOrch(t, Options{Backend: f, Cache: c}).TranslateDocument(ctx, parse(t, `{"a":"Hello"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.CacheHits)

	res, err = newOrch(t, Options{Backend: f, Cache: c}).TranslateDocument(ctx, parse(t, `{"b":"World"}`))
	require.NoError(t, err)
	assert.Zero(t, res.Stats.CacheHits)
	assert.Equal(t, int64(1), c.Stats().Hits)
}

func TestTranslateDocument_PausedIsNotFailed(t *testing.T) {
	f, started, release := blockingFake()
	o := newOrch(t, Options{Backend: f, Limits: ratelimit.Config{RequestsPerMinute: 60000, MaxConcurrentRequests: 1}})

	doc := parse(t, `{"x":"a","y":"b","z":"c"}`)
	done := make(chan *DocumentResult)
	go func() {
		res, _ := o.TranslateDocument(context.Background(), doc)
		done <- res
	}()

	<-started
	o.Pause()
	close(release)
	res := <-done
	require.NotNil(t, res)

	assert.Equal(t, `{"x":"de:a","y":"b","z":"c"}`, marshal(t, res.Document))
	assert.Equal(t, 1, res.Stats.Completed)
	assert.Equal(t, 2, res.Stats.Paused)
	assert.Zero(t, res.Stats.Failed)
	assert.Zero(t, res.Stats.Cancelled)
}
