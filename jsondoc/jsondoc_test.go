package jsondoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, s string) any {
	t.Helper()
	doc, err := Parse([]byte(s))
	require.NoError(t, err)
	return doc
}

func mustMarshal(t *testing.T, doc any) string {
	t.Helper()
	out, err := Marshal(doc, "")
	require.NoError(t, err)
	return string(out)
}

func TestParseMarshal_PreservesOrderAndNumbers(t *testing.T) {
	in := `{"z":"last?","a":{"y":1.50,"x":[true,null,"<b>"]},"m":-0}`
	doc := mustParse(t, in)
	assert.Equal(t, in, mustMarshal(t, doc))

	obj := doc.(*Object)
	assert.Equal(t, []string{"z", "a", "m"}, obj.Keys())
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{``, `{"broken":`, `{"a":1} {"b":2}`, `[1,]`} {
		_, err := Parse([]byte(in))
		assert.ErrorIs(t, err, ErrInvalidJSON, "input %q", in)
	}
}

func TestMarshal_Indent(t *testing.T) {
	doc := mustParse(t, `{"a":["x"]}`)
	out, err := Marshal(doc, "  ")
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": [\n    \"x\"\n  ]\n}\n", string(out))
}

func TestExtract_ExampleDocument(t *testing.T) {
	doc := mustParse(t, `{"a": "Hello", "b": {"c": "World"}, "d": ["x", ""]}`)
	leaves := Extract(doc)
	assert.Equal(t, []Leaf{
		{Path: "a", Value: "Hello"},
		{Path: "b.c", Value: "World"},
		{Path: "d[0]", Value: "x"},
	}, leaves)
}

func TestExtract_SkipsBlankAndNonStrings(t *testing.T) {
	doc := mustParse(t, `{"a":"  ","b":3,"c":false,"d":null,"e":"\t\n","f":"ok"}`)
	assert.Equal(t, []Leaf{{Path: "f", Value: "ok"}}, Extract(doc))
}

func TestExtract_MixedNesting(t *testing.T) {
	doc := mustParse(t, `[{"t":"one","list":["a",{"deep":"b"}]},[["c"]]]`)
	var paths []string
	for _, l := range Extract(doc) {
		paths = append(paths, l.Path)
	}
	assert.Equal(t, []string{"[0].t", "[0].list[0]", "[0].list[1].deep", "[1][0][0]"}, paths)
}

func TestExtract_PlainMapIsSorted(t *testing.T) {
	doc := map[string]any{"b": "2", "a": "1"}
	assert.Equal(t, []Leaf{{Path: "a", Value: "1"}, {Path: "b", Value: "2"}}, Extract(doc))
}

func TestLoad_NoLeaves(t *testing.T) {
	_, _, err := Load([]byte(`{"a":"","b":[1,2]}`))
	assert.ErrorIs(t, err, ErrNoTranslatableLeaves)
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		path string
		want []Segment
	}{
		{"", []Segment{{Key: ""}}},
		{"a", []Segment{{Key: "a"}}},
		{"a.b", []Segment{{Key: "a"}, {Key: "b"}}},
		{"items[2]", []Segment{{Key: "items"}, {Index: 2, IsIndex: true}}},
		{"[0].t", []Segment{{Index: 0, IsIndex: true}, {Key: "t"}}},
		{"a[1][3]", []Segment{{Key: "a"}, {Index: 1, IsIndex: true}, {Index: 3, IsIndex: true}}},
		{`v1\.2.x`, []Segment{{Key: "v1.2"}, {Key: "x"}}},
		{`k\[0\]`, []Segment{{Key: "k[0]"}}},
		{".x", []Segment{{Key: ""}, {Key: "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := ParsePath(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.path, FormatPath(got))
		})
	}
}

func TestParsePath_Invalid(t *testing.T) {
	for _, p := range []string{"a[", "a[x]", "a[-1]", "a[0]b", "a]", `a\`, "a[]"} {
		_, err := ParsePath(p)
		assert.ErrorIs(t, err, ErrInvalidPath, "path %q", p)
	}
}

func TestSetAtPath_CreatesContainers(t *testing.T) {
	var doc any
	doc, err := SetAtPath(doc, "a.b[2].c", "v")
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"b":[null,null,{"c":"v"}]}}`, mustMarshal(t, doc))

	doc, err = SetAtPath(doc, "a.b[0]", "first")
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"b":["first",null,{"c":"v"}]}}`, mustMarshal(t, doc))
}

func TestSetAtPath_TerminalIndexVsKey(t *testing.T) {
	doc := mustParse(t, `{"items":["a","b"],"obj":{"k":"x"}}`)
	doc, err := SetAtPath(doc, "items[1]", "B")
	require.NoError(t, err)
	doc, err = SetAtPath(doc, "obj.k", "X")
	require.NoError(t, err)
	assert.Equal(t, `{"items":["a","B"],"obj":{"k":"X"}}`, mustMarshal(t, doc))
}

func TestSetAtPath_Conflict(t *testing.T) {
	doc := mustParse(t, `{"a":"text","b":[1]}`)
	_, err := SetAtPath(doc, "a.b", "x")
	assert.ErrorIs(t, err, ErrPathConflict)
	_, err = SetAtPath(doc, "b.x", "x")
	assert.ErrorIs(t, err, ErrPathConflict)
	_, err = SetAtPath(doc, "a[0]", "x")
	assert.ErrorIs(t, err, ErrPathConflict)
}

func TestSetAtPath_RootString(t *testing.T) {
	doc, err := SetAtPath("Hello", "", "Hola")
	require.NoError(t, err)
	assert.Equal(t, "Hola", doc)
}

func TestRoundTrip(t *testing.T) {
	docs := []string{
		`{"a": "Hello", "b": {"c": "World"}, "d": ["x", ""]}`,
		`[{"t":"one","list":["a",{"deep":"b"}]},[["c"]],3]`,
		`{"v1.2":{"[x]":"dots","back\\slash":"bs"},"":{"":"empty keys"},"e":{"":["under empty"]}}`,
		`{"":["root empty key array"]}`,
		`"just a string"`,
	}
	for _, in := range docs {
		doc := mustParse(t, in)
		want := mustMarshal(t, doc)

		clone := Clone(doc)
		for _, l := range Extract(doc) {
			var err error
			clone, err = SetAtPath(clone, l.Path, l.Value)
			require.NoError(t, err, "path %q", l.Path)
		}
		assert.Equal(t, want, mustMarshal(t, clone), "input %s", in)
	}
}

func TestClone_IsDeep(t *testing.T) {
	doc := mustParse(t, `{"a":{"b":["x"]}}`)
	clone := Clone(doc)
	_, err := SetAtPath(clone, "a.b[0]", "changed")
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"b":["x"]}}`, mustMarshal(t, doc))
}
