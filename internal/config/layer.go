// Package config resolves layered configuration sources into the effective,
// validated rule configuration for one run.
//
// Sources are ordered from least to most specific (defaults, user files,
// command-line overrides). Maps merge key by key; scalars and sequences are
// replaced wholesale by the last layer that sets them. Every leaf remembers
// which layer set it so diagnostics can name the offending source.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Layer is one configuration source.
type Layer struct {
	Name string
	// Defaults marks a layer whose values are built-in defaults rather than
	// explicit settings. Activation flags from such a layer yield to the
	// all-rules-inactive switch.
	Defaults bool
	Values   map[string]any
}

// ParseLayer decodes YAML data into a Layer.
func ParseLayer(name string, data []byte) (Layer, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Layer{}, fmt.Errorf("config: parse %s: %w", name, err)
	}
	if raw == nil {
		return Layer{Name: name, Values: map[string]any{}}, nil
	}
	m, ok := normalize(raw).(map[string]any)
	if !ok {
		return Layer{}, fmt.Errorf("config: parse %s: top level must be a mapping", name)
	}
	return Layer{Name: name, Values: m}, nil
}

// LoadLayer reads a YAML file into a Layer named after its path.
func LoadLayer(path string) (Layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Layer{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return ParseLayer(path, data)
}

// OverrideLayer builds a Layer from dotted assignments such as
// "rules.magic-number.active=false". Values are parsed as YAML scalars or
// flow collections, so "3" is an int and "[a, b]" a list.
func OverrideLayer(name string, assignments []string) (Layer, error) {
	values := map[string]any{}
	for _, a := range assignments {
		key, raw, ok := strings.Cut(a, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return Layer{}, fmt.Errorf("config: override %q: want key=value", a)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return Layer{}, fmt.Errorf("config: override %q: %w", a, err)
		}
		if v == nil {
			v = ""
		}
		if err := setPath(values, strings.Split(key, "."), normalize(v)); err != nil {
			return Layer{}, fmt.Errorf("config: override %q: %w", a, err)
		}
	}
	return Layer{Name: name, Values: values}, nil
}

func setPath(m map[string]any, path []string, v any) error {
	for i, p := range path[:len(path)-1] {
		next, ok := m[p]
		if !ok {
			child := map[string]any{}
			m[p] = child
			m = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("%s is not a mapping", strings.Join(path[:i+1], "."))
		}
		m = child
	}
	m[path[len(path)-1]] = v
	return nil
}

// normalize converts YAML-decoded values into map[string]any / []any trees.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	default:
		return v
	}
}

// Tree is the deep merge of all layers plus per-leaf provenance.
type Tree struct {
	values map[string]any
	prov   map[string]origin
	layers []string
}

type origin struct {
	layer    string
	defaults bool
}

// Merge folds layers from least to most specific.
func Merge(layers ...Layer) *Tree {
	t := &Tree{values: map[string]any{}, prov: map[string]origin{}}
	for _, l := range layers {
		t.layers = append(t.layers, l.Name)
		t.mergeMap(t.values, normalize(l.Values).(map[string]any), "", origin{layer: l.Name, defaults: l.Defaults})
	}
	return t
}

func (t *Tree) mergeMap(dst, src map[string]any, prefix string, o origin) {
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		key := joinKey(prefix, k)
		sv := src[k]
		sm, srcIsMap := sv.(map[string]any)
		dm, dstIsMap := dst[k].(map[string]any)
		if srcIsMap && dstIsMap {
			t.mergeMap(dm, sm, key, o)
			continue
		}
		t.forget(key)
		if srcIsMap {
			fresh := map[string]any{}
			dst[k] = fresh
			t.mergeMap(fresh, sm, key, o)
			if len(sm) == 0 {
				t.prov[key] = o
			}
			continue
		}
		dst[k] = sv
		t.prov[key] = o
	}
}

// forget drops provenance for key and everything below it.
func (t *Tree) forget(key string) {
	delete(t.prov, key)
	prefix := key + "."
	for k := range t.prov {
		if strings.HasPrefix(k, prefix) {
			delete(t.prov, k)
		}
	}
}

func joinKey(prefix, k string) string {
	if prefix == "" {
		return k
	}
	return prefix + "." + k
}

// Get returns the merged value at path.
func (t *Tree) Get(path ...string) (any, bool) {
	var cur any = t.values
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Provenance returns the name of the layer that set the leaf at the dotted
// key, or "" when the key is unset.
func (t *Tree) Provenance(key string) string {
	return t.prov[key].layer
}

// explicit reports whether the leaf at key was set by a non-default layer.
func (t *Tree) explicit(key string) bool {
	o, ok := t.prov[key]
	return ok && !o.defaults
}

// Layers returns the layer names in merge order.
func (t *Tree) Layers() []string {
	return append([]string(nil), t.layers...)
}

// YAML renders the merged tree. Map keys are emitted in sorted order, so
// the output is stable for identical input.
func (t *Tree) YAML() ([]byte, error) {
	return yaml.Marshal(t.values)
}
