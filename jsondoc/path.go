package jsondoc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidPath is returned for paths that do not follow the
	// key.key[index] grammar.
	ErrInvalidPath = errors.New("invalid path")
	// ErrPathConflict is returned when a path walks through a value of the
	// wrong kind, e.g. an index segment against an object.
	ErrPathConflict = errors.New("path conflicts with document structure")
)

// Segment is one step of a path: either an object key or an array index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

func (s Segment) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return escapeKey(s.Key)
}

// FormatPath renders segments as a path string. Keys are joined with '.',
// indices are written as [n], and '.', '[', ']' and '\' inside keys are
// backslash-escaped.
func FormatPath(segs []Segment) string {
	var b strings.Builder
	for i, s := range segs {
		if !s.IsIndex && i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s.String())
	}
	return b.String()
}

// ParsePath splits a path into segments. The empty path is a single empty
// key; SetAtPath treats it as the document root when the root is a scalar.
func ParsePath(path string) ([]Segment, error) {
	var (
		segs []Segment
		key  strings.Builder
		// inKey is true while a key segment is open (possibly empty).
		inKey = true
	)
	closeKey := func() {
		if inKey {
			segs = append(segs, Segment{Key: key.String()})
			key.Reset()
			inKey = false
		}
	}

	for i := 0; i < len(path); i++ {
		c := path[i]
		switch c {
		case '\\':
			if i+1 >= len(path) {
				return nil, fmt.Errorf("%w: %q: trailing escape", ErrInvalidPath, path)
			}
			if !inKey {
				return nil, fmt.Errorf("%w: %q: unexpected character at %d", ErrInvalidPath, path, i)
			}
			i++
			key.WriteByte(path[i])
		case '.':
			closeKey()
			inKey = true
		case '[':
			// A leading '[' means the root is an array, not an empty key.
			if i == 0 {
				inKey = false
			}
			closeKey()
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("%w: %q: unterminated index", ErrInvalidPath, path)
			}
			digits := path[i+1 : i+end]
			n, err := strconv.Atoi(digits)
			if err != nil || n < 0 || digits == "" || digits[0] == '+' || digits[0] == '-' {
				return nil, fmt.Errorf("%w: %q: bad index %q", ErrInvalidPath, path, digits)
			}
			segs = append(segs, Segment{Index: n, IsIndex: true})
			i += end
		case ']':
			return nil, fmt.Errorf("%w: %q: unexpected ']' at %d", ErrInvalidPath, path, i)
		default:
			if !inKey {
				return nil, fmt.Errorf("%w: %q: expected '.' or '[' at %d", ErrInvalidPath, path, i)
			}
			key.WriteByte(c)
		}
	}
	closeKey()
	return segs, nil
}

// SetAtPath writes value at path inside doc and returns the (possibly new)
// root. Missing containers are created: objects for key segments, arrays for
// index segments, with arrays padded by nulls. doc is modified in place, so
// callers that need the original intact must pass a Clone.
func SetAtPath(doc any, path string, value any) (any, error) {
	segs, err := ParsePath(path)
	if err != nil {
		return doc, err
	}
	if path == "" && !isContainer(doc) {
		return value, nil
	}
	// "[0]" under an object root is the empty key holding an array.
	if segs[0].IsIndex && isObject(doc) {
		segs = append([]Segment{{Key: ""}}, segs...)
	}
	root, err := setSegments(doc, segs, 0, value)
	if err != nil {
		return doc, fmt.Errorf("set %q: %w", path, err)
	}
	return root, nil
}

func setSegments(node any, segs []Segment, depth int, value any) (any, error) {
	seg := segs[depth]
	last := depth == len(segs)-1

	if seg.IsIndex {
		var arr []any
		switch t := node.(type) {
		case nil:
			arr = []any{}
		case []any:
			arr = t
		default:
			return nil, fmt.Errorf("%w: segment %d %s expects an array, found %s",
				ErrPathConflict, depth, seg, kindOf(node))
		}
		for len(arr) <= seg.Index {
			arr = append(arr, nil)
		}
		if last {
			arr[seg.Index] = value
			return arr, nil
		}
		child, err := setSegments(arr[seg.Index], segs, depth+1, value)
		if err != nil {
			return nil, err
		}
		arr[seg.Index] = child
		return arr, nil
	}

	switch t := node.(type) {
	case nil:
		obj := NewObject()
		return obj, setInObject(obj.Get, obj.Set, segs, depth, value)
	case *Object:
		return t, setInObject(t.Get, t.Set, segs, depth, value)
	case map[string]any:
		get := func(k string) (any, bool) { v, ok := t[k]; return v, ok }
		set := func(k string, v any) { t[k] = v }
		return t, setInObject(get, set, segs, depth, value)
	default:
		return nil, fmt.Errorf("%w: segment %d %q expects an object, found %s",
			ErrPathConflict, depth, seg.Key, kindOf(node))
	}
}

func setInObject(get func(string) (any, bool), set func(string, any), segs []Segment, depth int, value any) error {
	key := segs[depth].Key
	if depth == len(segs)-1 {
		set(key, value)
		return nil
	}
	cur, _ := get(key)
	child, err := setSegments(cur, segs, depth+1, value)
	if err != nil {
		return err
	}
	set(key, child)
	return nil
}

func isContainer(v any) bool {
	switch v.(type) {
	case *Object, map[string]any, []any:
		return true
	}
	return false
}

func isObject(v any) bool {
	switch v.(type) {
	case *Object, map[string]any:
		return true
	}
	return false
}

func kindOf(v any) string {
	switch v.(type) {
	case *Object, map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case nil:
		return "null"
	case bool:
		return "boolean"
	default:
		return "number"
	}
}

func escapeKey(k string) string {
	if !strings.ContainsAny(k, `.[]\`) {
		return k
	}
	var b strings.Builder
	for i := 0; i < len(k); i++ {
		switch k[i] {
		case '.', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteByte(k[i])
	}
	return b.String()
}
