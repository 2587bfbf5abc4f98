package server

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	//go:embed translate_request.schema.json
	translateSchemaJSON string
	//go:embed extract_request.schema.json
	extractSchemaJSON string
)

var errEmptyBody = errors.New("request body is empty")

// schemaSet compiles the request schemas once.
type schemaSet struct {
	once      sync.Once
	translate *jsonschema.Schema
	extract   *jsonschema.Schema
	err       error
}

func (s *schemaSet) load() error {
	s.once.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		resources := map[string]string{
			"translate_request.schema.json": translateSchemaJSON,
			"extract_request.schema.json":   extractSchemaJSON,
		}
		for name, src := range resources {
			if err := compiler.AddResource(name, strings.NewReader(src)); err != nil {
				s.err = fmt.Errorf("add schema resource %s: %w", name, err)
				return
			}
		}
		if s.translate, s.err = compiler.Compile("translate_request.schema.json"); s.err != nil {
			s.err = fmt.Errorf("compile translate schema: %w", s.err)
			return
		}
		if s.extract, s.err = compiler.Compile("extract_request.schema.json"); s.err != nil {
			s.err = fmt.Errorf("compile extract schema: %w", s.err)
		}
	})
	return s.err
}

// validate checks raw against schema and decodes it into dst.
func validate(schema *jsonschema.Schema, raw []byte, dst any) error {
	value, err := decodeStrictJSON(raw)
	if err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("unmarshal body: %w", err)
	}
	return nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errEmptyBody
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("body contains trailing content")
	}
	return value, nil
}
