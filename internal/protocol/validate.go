package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var inboundSchemas = map[string]string{
	TypeHello:    "hello.schema.json",
	TypeAct:      "act.schema.json",
	TypeSave:     "save.schema.json",
	TypeDescribe: "describe.schema.json",
}

var (
	compileOnce sync.Once
	compiled    map[string]*jsonschema.Schema
	compileErr  error
)

func schemas() (map[string]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		out := make(map[string]*jsonschema.Schema, len(inboundSchemas))
		for typ, name := range inboundSchemas {
			raw, err := schemaFS.ReadFile("schemas/" + name)
			if err != nil {
				compileErr = err
				return
			}
			url := "mem://schemas/" + name
			if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
				compileErr = fmt.Errorf("%s: %w", name, err)
				return
			}
			s, err := c.Compile(url)
			if err != nil {
				compileErr = fmt.Errorf("%s: %w", name, err)
				return
			}
			out[typ] = s
		}
		compiled = out
	})
	return compiled, compileErr
}

// SchemaSource returns the embedded JSON schema for an inbound message type.
func SchemaSource(typ string) ([]byte, bool) {
	name, ok := inboundSchemas[typ]
	if !ok {
		return nil, false
	}
	raw, err := schemaFS.ReadFile("schemas/" + name)
	return raw, err == nil
}

// ValidateInbound checks a client message against the schema for its type
// and returns its routing header. Unknown types and schema violations are
// both reported as errors.
func ValidateInbound(b []byte) (BaseMessage, error) {
	base, err := DecodeBase(b)
	if err != nil {
		return base, fmt.Errorf("bad json: %w", err)
	}
	all, err := schemas()
	if err != nil {
		return base, err
	}
	s, ok := all[base.Type]
	if !ok {
		return base, fmt.Errorf("unknown message type %q", base.Type)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return base, fmt.Errorf("bad json: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return base, err
	}
	return base, nil
}
