package suppress

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/jward/understory/internal/finding"
)

const baselineVersion = 1

// Baseline holds the two signature sets carried between runs. Each maps a
// signature to the rule ID that produced it.
type Baseline struct {
	Acknowledged map[string]string
	Suppressed   map[string]string
}

// NewBaseline returns an empty Baseline.
func NewBaseline() *Baseline {
	return &Baseline{Acknowledged: map[string]string{}, Suppressed: map[string]string{}}
}

// IsAcknowledged reports whether sig was acknowledged in an earlier run.
func (b *Baseline) IsAcknowledged(sig string) bool {
	if b == nil {
		return false
	}
	_, ok := b.Acknowledged[sig]
	return ok
}

// IsSuppressed reports whether sig is permanently suppressed.
func (b *Baseline) IsSuppressed(sig string) bool {
	if b == nil {
		return false
	}
	_, ok := b.Suppressed[sig]
	return ok
}

// Len returns the total number of entries.
func (b *Baseline) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Acknowledged) + len(b.Suppressed)
}

// FromFindings builds a baseline acknowledging every rule finding.
// Tooling diagnostics and inline-suppressed findings are not recorded.
// Permanently suppressed entries of prev carry over unchanged.
func FromFindings(findings []finding.Finding, prev *Baseline) *Baseline {
	b := NewBaseline()
	if prev != nil {
		for sig, rule := range prev.Suppressed {
			b.Suppressed[sig] = rule
		}
	}
	for _, f := range findings {
		if f.Kind == finding.KindTooling || f.Suppressed || b.IsSuppressed(f.Signature) {
			continue
		}
		b.Acknowledged[f.Signature] = f.RuleID
	}
	return b
}

// baselineFile is the on-disk shape: signatures grouped by rule ID, each
// list sorted, so the file diffs cleanly between runs.
type baselineFile struct {
	Version      int                 `yaml:"version"`
	Acknowledged map[string][]string `yaml:"acknowledged,omitempty"`
	Suppressed   map[string][]string `yaml:"suppressed,omitempty"`
}

func group(m map[string]string) map[string][]string {
	if len(m) == 0 {
		return nil
	}
	out := map[string][]string{}
	for sig, rule := range m {
		out[rule] = append(out[rule], sig)
	}
	for _, sigs := range out {
		sort.Strings(sigs)
	}
	return out
}

func ungroup(m map[string][]string) map[string]string {
	out := map[string]string{}
	for rule, sigs := range m {
		for _, sig := range sigs {
			out[sig] = rule
		}
	}
	return out
}

// Encode renders b in its persisted form.
func (b *Baseline) Encode() ([]byte, error) {
	return yaml.Marshal(baselineFile{
		Version:      baselineVersion,
		Acknowledged: group(b.Acknowledged),
		Suppressed:   group(b.Suppressed),
	})
}

// ParseBaseline decodes a persisted baseline.
func ParseBaseline(data []byte) (*Baseline, error) {
	var f baselineFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse baseline: %w", err)
	}
	if f.Version > baselineVersion {
		return nil, fmt.Errorf("parse baseline: unsupported version %d", f.Version)
	}
	return &Baseline{Acknowledged: ungroup(f.Acknowledged), Suppressed: ungroup(f.Suppressed)}, nil
}

// LoadBaseline reads the baseline at path. A missing file yields an empty
// baseline and an error satisfying errors.Is(err, fs.ErrNotExist).
func LoadBaseline(path string) (*Baseline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewBaseline(), fmt.Errorf("load baseline: %w", err)
		}
		return nil, fmt.Errorf("load baseline: %w", err)
	}
	return ParseBaseline(data)
}

// Save writes b to path, replacing any existing file atomically.
func (b *Baseline) Save(path string) error {
	data, err := b.Encode()
	if err != nil {
		return fmt.Errorf("save baseline: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".baseline-*")
	if err != nil {
		return fmt.Errorf("save baseline: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save baseline: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save baseline: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save baseline: %w", err)
	}
	return nil
}
