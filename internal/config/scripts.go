package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/jward/understory/internal/rules"
)

// ScriptSpec declares a rule implemented as a Risor script.
type ScriptSpec struct {
	ID          string                     `yaml:"id"`
	RuleSet     string                     `yaml:"rule_set"`
	Description string                     `yaml:"description"`
	Severity    string                     `yaml:"severity"`
	Active      *bool                      `yaml:"active"`
	Kinds       []string                   `yaml:"kinds"`
	Languages   []string                   `yaml:"languages"`
	Source      string                     `yaml:"source"`
	File        string                     `yaml:"file"`
	Params      map[string]ScriptParamSpec `yaml:"params"`

	// Index and Layer locate the entry in the scripts section.
	Index int    `yaml:"-"`
	Layer string `yaml:"-"`
}

// ScriptParamSpec declares one parameter of a script rule.
type ScriptParamSpec struct {
	Type    rules.ParamType `yaml:"type"`
	Default any             `yaml:"default"`
	Doc     string          `yaml:"doc"`
}

// ParamSpecs returns the declared parameters sorted by name.
func (s ScriptSpec) ParamSpecs() []rules.ParamSpec {
	names := make([]string, 0, len(s.Params))
	for n := range s.Params {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]rules.ParamSpec, 0, len(names))
	for _, n := range names {
		p := s.Params[n]
		out = append(out, rules.ParamSpec{Name: n, Type: p.Type, Default: normalize(p.Default), Doc: p.Doc})
	}
	return out
}

// Error reports a problem with the entry as a configuration error.
func (s ScriptSpec) Error(msg string) *Error {
	return &Error{Key: fmt.Sprintf("%s[%d]", sectionScripts, s.Index), Rule: s.ID, Layer: s.Layer, Msg: msg}
}

// Body returns the script source, reading File relative to baseDir when
// Source is empty.
func (s ScriptSpec) Body(baseDir string) (string, error) {
	if s.Source != "" {
		return s.Source, nil
	}
	if s.File == "" {
		return "", fmt.Errorf("script %s: neither source nor file set", s.ID)
	}
	path := s.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("script %s: %w", s.ID, err)
	}
	return string(data), nil
}

// Scripts decodes the scripts section. Entries that fail to decode or lack
// an id are reported and skipped.
func (t *Tree) Scripts() ([]ScriptSpec, []*Error) {
	raw, ok := t.Get(sectionScripts)
	if !ok {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, []*Error{{Key: sectionScripts, Layer: t.Provenance(sectionScripts), Msg: "expected a list"}}
	}
	var (
		out  []ScriptSpec
		errs []*Error
		seen = map[string]bool{}
	)
	for i, entry := range list {
		key := fmt.Sprintf("%s[%d]", sectionScripts, i)
		data, err := yaml.Marshal(entry)
		if err != nil {
			errs = append(errs, &Error{Key: key, Layer: t.Provenance(sectionScripts), Msg: err.Error()})
			continue
		}
		var spec ScriptSpec
		if err := yaml.Unmarshal(data, &spec); err != nil {
			errs = append(errs, &Error{Key: key, Layer: t.Provenance(sectionScripts), Msg: err.Error()})
			continue
		}
		switch {
		case spec.ID == "":
			errs = append(errs, &Error{Key: key, Layer: t.Provenance(sectionScripts), Msg: "missing id"})
			continue
		case seen[spec.ID]:
			errs = append(errs, &Error{Key: key, Rule: spec.ID, Layer: t.Provenance(sectionScripts), Msg: "duplicate script id"})
			continue
		}
		seen[spec.ID] = true
		spec.Index, spec.Layer = i, t.Provenance(sectionScripts)
		out = append(out, spec)
	}
	return out, errs
}
