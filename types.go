package understory

import (
	"github.com/jward/understory/internal/config"
	"github.com/jward/understory/internal/finding"
	"github.com/jward/understory/internal/frontend"
	"github.com/jward/understory/internal/rules"
	"github.com/jward/understory/internal/store"
	"github.com/jward/understory/internal/suppress"
)

// Public aliases for internal types that appear in the Engine API.

type Finding = finding.Finding
type Severity = finding.Severity
type SourceUnit = frontend.SourceUnit
type Descriptor = rules.Descriptor
type ParamSpec = rules.ParamSpec
type ConfigLayer = config.Layer
type ConfigError = config.Error
type Baseline = suppress.Baseline
type Run = store.Run
