package understory

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/jward/understory/internal/config"
	"github.com/jward/understory/internal/rules"
	"github.com/jward/understory/internal/rules/builtin"
	"github.com/jward/understory/internal/script"
	"github.com/jward/understory/internal/store"
	"github.com/jward/understory/internal/suppress"
	"github.com/jward/understory/internal/traverse"
)

// Engine holds everything fixed for a run configuration: the effective
// configuration, the rule instances and the baseline. It is read-only
// after New returns, so Run may be called from several goroutines.
type Engine struct {
	logger   hclog.Logger
	root     string
	sources  []layerSource
	extra    []*rules.Descriptor
	builtins bool
	workers  int
	dbPath   string

	baseline        *suppress.Baseline
	baselinePath    string
	defaultBaseline string

	registry  *rules.Registry
	effective *config.Effective
	dispatch  *traverse.Dispatcher
	warnings  []error
	store     *store.Store
}

// layerSource is a configuration layer given directly or by file path.
type layerSource struct {
	path  string
	layer config.Layer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l hclog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithRoot sets the project root used by Check for discovery and by script
// rules for resolving script files. Defaults to ".".
func WithRoot(dir string) Option {
	return func(e *Engine) {
		e.root = dir
	}
}

// WithConfigFiles adds YAML configuration files as layers. Layers given by
// WithConfigFiles and WithConfigLayers stack in option order, later ones
// taking precedence, all above the built-in defaults.
func WithConfigFiles(paths ...string) Option {
	return func(e *Engine) {
		for _, p := range paths {
			e.sources = append(e.sources, layerSource{path: p})
		}
	}
}

// WithConfigLayers adds already-parsed configuration layers.
func WithConfigLayers(layers ...config.Layer) Option {
	return func(e *Engine) {
		for _, l := range layers {
			e.sources = append(e.sources, layerSource{layer: l})
		}
	}
}

// WithRules registers additional rule descriptors alongside the built-in
// rules.
func WithRules(descs ...*rules.Descriptor) Option {
	return func(e *Engine) {
		e.extra = append(e.extra, descs...)
	}
}

// WithoutBuiltins leaves the built-in rules out of the registry.
func WithoutBuiltins() Option {
	return func(e *Engine) {
		e.builtins = false
	}
}

// WithWorkers sets the worker pool size, overriding engine.workers. Zero
// means one worker per CPU.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithBaseline uses b instead of loading a baseline file.
func WithBaseline(b *suppress.Baseline) Option {
	return func(e *Engine) {
		e.baseline = b
	}
}

// WithBaselinePath loads the baseline from path, overriding engine.baseline.
// A missing file is treated as an empty baseline.
func WithBaselinePath(path string) Option {
	return func(e *Engine) {
		e.baselinePath = path
	}
}

// WithDefaultBaselinePath names the baseline file used when neither
// WithBaselinePath nor engine.baseline sets one. A missing file is an empty
// baseline and is not reported.
func WithDefaultBaselinePath(path string) Option {
	return func(e *Engine) {
		e.defaultBaseline = path
	}
}

// WithStore records every completed run in the SQLite database at dbPath.
func WithStore(dbPath string) Option {
	return func(e *Engine) {
		e.dbPath = dbPath
	}
}

// New resolves configuration, instantiates rules and loads the baseline.
//
// Configuration problems, rules that fail to build, and script rules that
// fail to load or reuse another rule's ID are logged and available from
// Warnings. They do not fail New unless engine.strict is set, in which case
// configuration and script problems do.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		root:     ".",
		builtins: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = hclog.NewNullLogger()
	}

	layers := make([]config.Layer, 0, len(e.sources)+1)
	for _, src := range e.sources {
		if src.path == "" {
			layers = append(layers, src.layer)
			continue
		}
		l, err := config.LoadLayer(src.path)
		if err != nil {
			return nil, fmt.Errorf("understory: %w", err)
		}
		layers = append(layers, l)
	}

	descs, serrs := e.descriptors(layers)
	registry, err := rules.NewRegistry(descs...)
	if err != nil {
		return nil, fmt.Errorf("understory: %w", err)
	}
	e.registry = registry
	all := registry.Descriptors()

	tree := config.Merge(append([]config.Layer{config.DefaultLayer(all)}, layers...)...)
	eff, cerrs, err := config.Resolve(tree, all, serrs...)
	for _, ce := range cerrs {
		e.warn("configuration error", ce, "key", ce.Key, "layer", ce.Layer)
	}
	if err != nil {
		return nil, fmt.Errorf("understory: resolve configuration: %w", err)
	}
	e.effective = eff

	insts, ierrs := rules.Instantiate(eff, all)
	for _, ie := range ierrs {
		e.warn("rule disabled", ie)
	}
	e.dispatch = traverse.NewDispatcher(insts)

	if err := e.loadBaseline(); err != nil {
		return nil, err
	}

	if e.dbPath != "" {
		s, err := store.NewStore(e.dbPath)
		if err != nil {
			return nil, fmt.Errorf("understory: create store: %w", err)
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, fmt.Errorf("understory: migrate: %w", err)
		}
		e.store = s
	}

	e.logger.Debug("engine ready",
		"rules", len(all), "active", len(insts), "node_kinds", e.dispatch.Kinds(),
		"config_hash", eff.Hash())
	return e, nil
}

// descriptors gathers built-in, supplied and script rule descriptors. Script
// entries that are malformed, fail to load, or reuse the ID of a built-in or
// supplied rule are left out and returned as configuration errors.
func (e *Engine) descriptors(layers []config.Layer) ([]*rules.Descriptor, []*config.Error) {
	var descs []*rules.Descriptor
	if e.builtins {
		descs = append(descs, builtin.All()...)
	}
	descs = append(descs, e.extra...)
	taken := make(map[string]bool, len(descs))
	for _, d := range descs {
		taken[d.ID] = true
	}

	specs, errs := config.Merge(layers...).Scripts()
	kept := specs[:0]
	for _, spec := range specs {
		if taken[spec.ID] {
			errs = append(errs, spec.Error(fmt.Sprintf("rule ID %q is already registered", spec.ID)))
			continue
		}
		kept = append(kept, spec)
	}
	scripted, lerrs := script.Descriptors(kept, e.root, e.logger.Named("script"))
	return append(descs, scripted...), append(errs, lerrs...)
}

func (e *Engine) loadBaseline() error {
	if e.baseline != nil {
		return nil
	}
	path := e.BaselinePath()
	if path == "" {
		e.baseline = suppress.NewBaseline()
		return nil
	}
	b, err := suppress.LoadBaseline(path)
	if errors.Is(err, fs.ErrNotExist) {
		if path == e.defaultBaseline {
			e.logger.Debug("no baseline", "path", path)
		} else {
			e.logger.Warn("baseline not found, starting empty", "path", path)
		}
		e.baseline = b
		return nil
	}
	if err != nil {
		return fmt.Errorf("understory: %w", err)
	}
	e.logger.Debug("baseline loaded", "path", path, "signatures", b.Len())
	e.baseline = b
	return nil
}

// BaselinePath returns the baseline file in use: the WithBaselinePath path,
// else engine.baseline resolved against the root, else the default path.
// It is empty when none is set.
func (e *Engine) BaselinePath() string {
	if e.baselinePath != "" {
		return e.baselinePath
	}
	if p := e.effective.Engine.Baseline; p != "" {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(e.root, p)
	}
	return e.defaultBaseline
}

func (e *Engine) warn(msg string, err error, kv ...any) {
	e.warnings = append(e.warnings, err)
	e.logger.Warn(msg, append([]any{"error", err}, kv...)...)
}

// Close releases the run-history database, if any.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// Warnings returns the non-fatal problems found while building the engine:
// configuration errors, rules that failed to build, and script rules that
// failed to load.
func (e *Engine) Warnings() []error {
	return append([]error(nil), e.warnings...)
}

// Effective returns the resolved configuration.
func (e *Engine) Effective() *config.Effective {
	return e.effective
}

// Store returns the run-history database, or nil without WithStore.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Baseline returns the baseline in use.
func (e *Engine) Baseline() *suppress.Baseline {
	return e.baseline
}

// RuleInfo describes a registered rule and its effective state.
type RuleInfo struct {
	Descriptor *rules.Descriptor
	Active     bool
	Severity   Severity
	Scoped     bool
	// ActiveFrom names the configuration layer that set the activation.
	ActiveFrom string
}

// Rules lists every registered rule in ID order.
func (e *Engine) Rules() []RuleInfo {
	descs := e.registry.Descriptors()
	out := make([]RuleInfo, 0, len(descs))
	for _, d := range descs {
		out = append(out, RuleInfo{
			Descriptor: d,
			Active:     e.effective.Enabled(d.ID),
			Severity:   e.effective.SeverityFor(d.ID),
			Scoped:     e.effective.Scoped(d.ID),
			ActiveFrom: e.effective.Provenance("rules." + d.ID + ".active"),
		})
	}
	return out
}

// WriteBaseline persists the signatures of res's reportable findings as
// the acknowledged set, keeping the current baseline's permanently
// suppressed entries. path defaults to BaselinePath.
func (e *Engine) WriteBaseline(res *AnalysisResult, path string) (*suppress.Baseline, error) {
	if path == "" {
		path = e.BaselinePath()
	}
	if path == "" {
		return nil, fmt.Errorf("understory: write baseline: no baseline path configured")
	}
	b := suppress.FromFindings(res.All(), e.baseline)
	if err := b.Save(path); err != nil {
		return nil, fmt.Errorf("understory: %w", err)
	}
	e.logger.Info("baseline written", "path", path, "signatures", b.Len())
	return b, nil
}

// record stores a completed run in the history database.
func (e *Engine) record(res *AnalysisResult) {
	if e.store == nil {
		return
	}
	run := &store.Run{
		StartedAt:  res.StartedAt,
		Duration:   res.Duration,
		ConfigHash: res.ConfigHash,
		Root:       e.root,
		Files:      res.Stats.Files,
		Findings:   res.Stats.Findings,
		New:        res.Stats.New,
		Suppressed: res.Stats.Suppressed,
		Baselined:  res.Stats.Baselined,
		Tooling:    res.Stats.Tooling,
	}
	if _, err := e.store.RecordRun(run, res.All()); err != nil {
		e.logger.Error("record run", "error", err)
		return
	}
	prev, err := e.store.GetMetadata(store.MetaConfigHash)
	if err == nil && prev != "" && prev != res.ConfigHash {
		e.logger.Info("configuration changed since last recorded run", "previous", prev, "current", res.ConfigHash)
	}
	if err := e.store.SetMetadata(store.MetaConfigHash, res.ConfigHash); err != nil {
		e.logger.Error("record config hash", "error", err)
	}
}

func elapsed(start time.Time) time.Duration {
	return time.Since(start).Round(time.Millisecond)
}
