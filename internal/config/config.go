// Package config implements the engine configuration flag set of
// SPEC_FULL.md §6, generalizing the functional-options pattern of the
// teacher's options.go (jcorbin-gothird) from a handful of VM-construction
// switches to the full flag table, plus a pl-feature.c-style (see
// original_source) get/set registry with per-flag read-only enforcement.
package config

import "fmt"

// UnknownPolicy selects behavior on a call to an undefined predicate
// (SPEC_FULL.md §4.2 Failure semantics / §6 `unknown`).
type UnknownPolicy uint8

const (
	UnknownError UnknownPolicy = iota
	UnknownWarningFail
	UnknownFail
	UnknownAutoload
)

// DoubleQuotes selects how double-quoted text is represented (§6
// `double_quotes`).
type DoubleQuotes uint8

const (
	DoubleQuotesCodes DoubleQuotes = iota
	DoubleQuotesChars
	DoubleQuotesAtom
	DoubleQuotesString
)

// Config holds one engine's (or the process-wide default's) full flag set.
type Config struct {
	ISO                  bool
	Optimise             bool
	Debug                bool
	Unknown              UnknownPolicy
	CharacterEscapes     bool
	DoubleQuotes         DoubleQuotes
	OccursCheck          string // "false" | "true" | "error"
	Encoding             string
	GC                   bool
	TraceGC              bool
	LastCallOptimisation bool
	AGCMargin            int
	MaxThreads           int
	DynamicStacks        bool
	FloatFormat          string
	ToplevelVarSize      int
	BackquotedString     bool
	Readline             bool
}

// Default returns the engine's built-in defaults, matching the source
// engine's conservative-but-usable starting point.
func Default() Config {
	return Config{
		Optimise:             true,
		Unknown:              UnknownError,
		CharacterEscapes:     true,
		DoubleQuotes:         DoubleQuotesString,
		OccursCheck:          "false",
		Encoding:             "utf8",
		GC:                   true,
		LastCallOptimisation: true,
		AGCMargin:            10000,
		MaxThreads:           100000,
		DynamicStacks:        true,
		FloatFormat:          "%15g",
		ToplevelVarSize:      64,
		BackquotedString:     false,
	}
}

// Option applies one configuration change, following the teacher's
// VMOption/apply pattern (options.go).
type Option interface{ apply(*Config) }

type optionFunc func(*Config)

func (f optionFunc) apply(c *Config) { f(c) }

func WithISO(v bool) Option                     { return optionFunc(func(c *Config) { c.ISO = v }) }
func WithOptimise(v bool) Option                { return optionFunc(func(c *Config) { c.Optimise = v }) }
func WithDebug(v bool) Option                   { return optionFunc(func(c *Config) { c.Debug = v }) }
func WithUnknown(v UnknownPolicy) Option        { return optionFunc(func(c *Config) { c.Unknown = v }) }
func WithCharacterEscapes(v bool) Option        { return optionFunc(func(c *Config) { c.CharacterEscapes = v }) }
func WithDoubleQuotes(v DoubleQuotes) Option     { return optionFunc(func(c *Config) { c.DoubleQuotes = v }) }
func WithOccursCheck(v string) Option           { return optionFunc(func(c *Config) { c.OccursCheck = v }) }
func WithEncoding(v string) Option              { return optionFunc(func(c *Config) { c.Encoding = v }) }
func WithGC(v bool) Option                      { return optionFunc(func(c *Config) { c.GC = v }) }
func WithTraceGC(v bool) Option                 { return optionFunc(func(c *Config) { c.TraceGC = v }) }
func WithLastCallOptimisation(v bool) Option    { return optionFunc(func(c *Config) { c.LastCallOptimisation = v }) }
func WithAGCMargin(v int) Option                { return optionFunc(func(c *Config) { c.AGCMargin = v }) }
func WithMaxThreads(v int) Option               { return optionFunc(func(c *Config) { c.MaxThreads = v }) }
func WithDynamicStacks(v bool) Option           { return optionFunc(func(c *Config) { c.DynamicStacks = v }) }
func WithFloatFormat(v string) Option           { return optionFunc(func(c *Config) { c.FloatFormat = v }) }
func WithToplevelVarSize(v int) Option          { return optionFunc(func(c *Config) { c.ToplevelVarSize = v }) }
func WithBackquotedString(v bool) Option        { return optionFunc(func(c *Config) { c.BackquotedString = v }) }
func WithReadline(v bool) Option                { return optionFunc(func(c *Config) { c.Readline = v }) }

// New builds a Config from Default() plus opts, exactly as the teacher's
// VMOptions(...).apply(&vm) composes options onto defaultOptions.
func New(opts ...Option) Config {
	c := Default()
	for _, opt := range opts {
		if opt != nil {
			opt.apply(&c)
		}
	}
	return c
}

// readOnly names the flags that may be read but never written after
// engine creation, matching SPEC_FULL.md §6's "(read-only vs. writable
// marked per item)".
var readOnly = map[string]bool{
	"max_threads": true,
	"encoding":    true,
}

// PermissionError is raised attempting to write a read-only flag
// (SPEC_FULL.md §7 Permission errors).
type PermissionError struct{ Flag string }

func (e PermissionError) Error() string {
	return fmt.Sprintf("permission error: modify flag %q", e.Flag)
}

// Registry is a live, introspectable flag table -- the
// set_prolog_flag/current_prolog_flag analogue from pl-feature.c
// (original_source), layered on top of a Config value so callers get both
// typed Go field access and the dynamic get/set interface SPEC_FULL.md's
// "Supplemented features" section calls for.
type Registry struct {
	cfg *Config
}

// NewRegistry wraps cfg for dynamic flag access.
func NewRegistry(cfg *Config) *Registry { return &Registry{cfg: cfg} }

// Get returns the current value of a named flag as an interface{}.
func (r *Registry) Get(name string) (interface{}, bool) {
	switch name {
	case "iso":
		return r.cfg.ISO, true
	case "optimise":
		return r.cfg.Optimise, true
	case "debug":
		return r.cfg.Debug, true
	case "unknown":
		return r.cfg.Unknown, true
	case "character_escapes":
		return r.cfg.CharacterEscapes, true
	case "double_quotes":
		return r.cfg.DoubleQuotes, true
	case "occurs_check":
		return r.cfg.OccursCheck, true
	case "encoding":
		return r.cfg.Encoding, true
	case "gc":
		return r.cfg.GC, true
	case "trace_gc":
		return r.cfg.TraceGC, true
	case "last_call_optimisation":
		return r.cfg.LastCallOptimisation, true
	case "agc_margin":
		return r.cfg.AGCMargin, true
	case "max_threads":
		return r.cfg.MaxThreads, true
	case "dynamic_stacks":
		return r.cfg.DynamicStacks, true
	case "float_format":
		return r.cfg.FloatFormat, true
	case "toplevel_var_size":
		return r.cfg.ToplevelVarSize, true
	case "backquoted_string":
		return r.cfg.BackquotedString, true
	case "readline":
		return r.cfg.Readline, true
	default:
		return nil, false
	}
}

// Set writes a named flag, returning PermissionError for a read-only
// flag and a plain error for an unknown name or type mismatch.
func (r *Registry) Set(name string, value interface{}) error {
	if readOnly[name] {
		return PermissionError{Flag: name}
	}
	switch name {
	case "iso":
		return setBool(&r.cfg.ISO, value)
	case "optimise":
		return setBool(&r.cfg.Optimise, value)
	case "debug":
		return setBool(&r.cfg.Debug, value)
	case "character_escapes":
		return setBool(&r.cfg.CharacterEscapes, value)
	case "gc":
		return setBool(&r.cfg.GC, value)
	case "trace_gc":
		return setBool(&r.cfg.TraceGC, value)
	case "last_call_optimisation":
		return setBool(&r.cfg.LastCallOptimisation, value)
	case "dynamic_stacks":
		return setBool(&r.cfg.DynamicStacks, value)
	case "backquoted_string":
		return setBool(&r.cfg.BackquotedString, value)
	case "readline":
		return setBool(&r.cfg.Readline, value)
	case "agc_margin":
		return setInt(&r.cfg.AGCMargin, value)
	case "toplevel_var_size":
		return setInt(&r.cfg.ToplevelVarSize, value)
	case "float_format":
		return setString(&r.cfg.FloatFormat, value)
	case "occurs_check":
		return setString(&r.cfg.OccursCheck, value)
	default:
		return fmt.Errorf("domain error: unknown flag %q", name)
	}
}

func setBool(dst *bool, value interface{}) error {
	v, ok := value.(bool)
	if !ok {
		return fmt.Errorf("type error: expected bool, got %T", value)
	}
	*dst = v
	return nil
}

func setInt(dst *int, value interface{}) error {
	v, ok := value.(int)
	if !ok {
		return fmt.Errorf("type error: expected int, got %T", value)
	}
	*dst = v
	return nil
}

func setString(dst *string, value interface{}) error {
	v, ok := value.(string)
	if !ok {
		return fmt.Errorf("type error: expected string, got %T", value)
	}
	*dst = v
	return nil
}
