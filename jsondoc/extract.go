package jsondoc

import (
	"strconv"
	"strings"
)

// Leaf is a translatable string found in a document.
type Leaf struct {
	Path  string `json:"path"`
	Value string `json:"value"`
}

// Extract walks doc and returns every string leaf with non-blank content, in
// document order. Objects are visited in key order (sorted for plain maps),
// arrays by index. Blank strings, non-string scalars and nulls are skipped.
func Extract(doc any) []Leaf {
	var out []Leaf
	walk(doc, "", true, &out)
	return out
}

func walk(node any, path string, root bool, out *[]Leaf) {
	switch t := node.(type) {
	case string:
		if strings.TrimSpace(t) != "" {
			*out = append(*out, Leaf{Path: path, Value: t})
		}
	case *Object:
		for _, k := range t.keys {
			walk(t.values[k], childKey(path, root, k), false, out)
		}
	case map[string]any:
		for _, k := range sortedKeys(t) {
			walk(t[k], childKey(path, root, k), false, out)
		}
	case []any:
		for i, v := range t {
			walk(v, path+"["+strconv.Itoa(i)+"]", false, out)
		}
	}
}

func childKey(parent string, root bool, key string) string {
	if root {
		return escapeKey(key)
	}
	return parent + "." + escapeKey(key)
}

// Load parses data and extracts its leaves. It fails with ErrInvalidJSON for
// malformed input and ErrNoTranslatableLeaves when nothing can be translated.
func Load(data []byte) (any, []Leaf, error) {
	doc, err := Parse(data)
	if err != nil {
		return nil, nil, err
	}
	leaves := Extract(doc)
	if len(leaves) == 0 {
		return nil, nil, ErrNoTranslatableLeaves
	}
	return doc, leaves, nil
}
