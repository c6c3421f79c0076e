package engine

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
)

// OutputKind tags which variant an Output holds.
type OutputKind string

const (
	StructuredOutput OutputKind = "structured"
	RawOutput        OutputKind = "raw"
)

// RawOutputKey wraps generated text that could not be parsed.
const RawOutputKey = "raw_output"

// Output is the result of one agent step: either a parsed JSON object or the
// raw generated text.
type Output struct {
	Kind       OutputKind
	Structured map[string]interface{}
	Raw        string
}

// ParseOutput parses generated text as a JSON object. The whole trimmed text
// is tried first, then the outermost {...} span embedded in it. Anything else
// degrades to a Raw output; parsing never fails.
func ParseOutput(text string) Output {
	trimmed := strings.TrimSpace(text)
	if obj, ok := decodeObject(trimmed); ok {
		return Output{Kind: StructuredOutput, Structured: obj}
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		if obj, ok := decodeObject(trimmed[start : end+1]); ok {
			return Output{Kind: StructuredOutput, Structured: obj}
		}
	}
	return Output{Kind: RawOutput, Raw: text}
}

func decodeObject(s string) (map[string]interface{}, bool) {
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var obj map[string]interface{}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return nil, false
	}
	// the object must be the whole input
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}
	return obj, true
}

// IsStructured reports whether the output holds a parsed object.
func (o Output) IsStructured() bool {
	return o.Kind == StructuredOutput
}

// String returns the canonical serialisation stored in a run's output map:
// compact JSON with sorted keys. Raw text is wrapped under RawOutputKey.
func (o Output) String() string {
	var v interface{} = o.Structured
	if o.Kind != StructuredOutput {
		v = map[string]string{RawOutputKey: o.Raw}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return o.Raw
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
