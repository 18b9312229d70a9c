package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/mcuadros/go-defaults"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// PresencePlaceholder in an expected document matches any actual value.
const PresencePlaceholder = "<<PRESENCE>>"

type JSONAssertOptions struct {
	IgnoreExtraKeys          bool     `default:"true"`
	AllowPresencePlaceholder bool     `default:"true"`
	IgnoredFields            []string `default:""`
}

type JSONOption func(*JSONAssertOptions)

func WithIgnoreExtraKeys(v bool) JSONOption {
	return func(o *JSONAssertOptions) { o.IgnoreExtraKeys = v }
}

func WithAllowPresencePlaceholder(v bool) JSONOption {
	return func(o *JSONAssertOptions) { o.AllowPresencePlaceholder = v }
}

// WithIgnoredFields drops the named keys at every depth of both documents.
func WithIgnoredFields(fields ...string) JSONOption {
	return func(o *JSONAssertOptions) { o.IgnoredFields = fields }
}

// JSONAsserter compares JSON documents structurally.
type JSONAsserter struct {
	t    TestingT
	opts JSONAssertOptions
}

func NewJSONAsserter(t TestingT, opts ...JSONOption) *JSONAsserter {
	ja := &JSONAsserter{t: t}
	defaults.SetDefaults(&ja.opts)
	for _, opt := range opts {
		opt(&ja.opts)
	}
	return ja
}

func (ja *JSONAsserter) Assert(actualJSON, expectedJSON string) bool {
	ja.t.Helper()
	if d := ja.Diff(actualJSON, expectedJSON); d != "" {
		ja.t.Errorf("JSON mismatch:\n%s", d)
		return false
	}
	return true
}

// Diff returns an ASCII diff of the two documents, or "" when they match.
func (ja *JSONAsserter) Diff(actualJSON, expectedJSON string) string {
	var expected, actual any
	if err := json.Unmarshal([]byte(expectedJSON), &expected); err != nil {
		return fmt.Sprintf("invalid expected JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(actualJSON), &actual); err != nil {
		return fmt.Sprintf("invalid actual JSON: %v", err)
	}

	// gojsondiff compares objects only
	if _, ok := expected.([]any); ok {
		expected = map[string]any{"items": expected}
		actual = map[string]any{"items": actual}
	}

	walkPair(expected, actual, func(exp, act map[string]any) {
		for _, f := range ja.opts.IgnoredFields {
			delete(exp, f)
			delete(act, f)
		}
		for k, v := range exp {
			if s, ok := v.(string); ok && s == PresencePlaceholder && ja.opts.AllowPresencePlaceholder {
				if av, present := act[k]; present {
					exp[k] = av
				}
			}
		}
		if ja.opts.IgnoreExtraKeys {
			for k := range act {
				if _, ok := exp[k]; !ok {
					delete(act, k)
				}
			}
		}
	})

	expBytes, _ := json.Marshal(expected)
	actBytes, _ := json.Marshal(actual)
	diff, err := gojsondiff.New().Compare(expBytes, actBytes)
	if err != nil {
		return fmt.Sprintf("JSON comparison failed: %v", err)
	}
	if !diff.Modified() {
		return ""
	}
	out, _ := formatter.NewAsciiFormatter(expected, formatter.AsciiFormatterConfig{ShowArrayIndex: true}).Format(diff)
	return out
}

// walkPair visits every pair of objects found at the same path in both trees.
func walkPair(expected, actual any, visit func(exp, act map[string]any)) {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return
		}
		visit(exp, act)
		for k := range exp {
			walkPair(exp[k], act[k], visit)
		}
	case []any:
		act, ok := actual.([]any)
		if !ok {
			return
		}
		for i := range exp {
			if i < len(act) {
				walkPair(exp[i], act[i], visit)
			}
		}
	}
}

// MustJSON marshals v or panics.
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
