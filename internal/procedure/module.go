package procedure

import "sync"

// OperatorType mirrors the classic Prolog operator classes, recorded per
// module in its operator table (the reader itself is out of scope per
// spec.md §1). The compiler (internal/compiler) does not consult them: it
// recognizes control constructs such as `;`/2 and `->`/2 by name and arity.
type OperatorType uint8

const (
	OpXFX OperatorType = iota
	OpXFY
	OpYFX
	OpFY
	OpFX
	OpXF
	OpYF
)

// Operator is one entry in a module's operator table.
type Operator struct {
	Name     string
	Priority int
	Type     OperatorType
}

// Module is SPEC_FULL.md C2's "Module -- {name, public/export table,
// operator table, import-from list, flags}". Supplemented from
// original_source/pl-feature.c's table-driven flag/feature registration
// (see SPEC_FULL.md "Supplemented features" §1): a Module also owns the
// subset of the engine-wide flag table that is module-local (flags that
// pl-feature.c lets a module override, like double_quotes).
type Module struct {
	Name string

	mu        sync.RWMutex
	exports   map[string]bool // functor display name -> exported
	operators map[string]Operator
	imports   []*Module
	flags     map[string]interface{}
}

// NewModule creates an empty module.
func NewModule(name string) *Module {
	return &Module{
		Name:      name,
		exports:   make(map[string]bool),
		operators: make(map[string]Operator),
		flags:     make(map[string]interface{}),
	}
}

// Export marks functorDisplay (e.g. "append/3") as publicly visible from
// other modules.
func (m *Module) Export(functorDisplay string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exports[functorDisplay] = true
}

// Exported reports whether functorDisplay was exported.
func (m *Module) Exported(functorDisplay string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.exports[functorDisplay]
}

// Import adds src to m's import-from list, so predicate resolution
// (SPEC_FULL.md C5 "Resolve procedure (with module lookup)") can fall
// through to src's exported predicates when m itself lacks a definition.
func (m *Module) Import(src *Module) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.imports = append(m.imports, src)
}

// Imports returns the modules m imports from, in declaration order.
func (m *Module) Imports() []*Module {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Module, len(m.imports))
	copy(out, m.imports)
	return out
}

// DefineOperator installs or overrides an operator declaration.
func (m *Module) DefineOperator(op Operator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operators[op.Name] = op
}

// Operator looks up an operator declaration by name.
func (m *Module) Operator(name string) (Operator, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	op, ok := m.operators[name]
	return op, ok
}

// SetFlag sets a module-local flag override (e.g. "double_quotes").
func (m *Module) SetFlag(name string, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[name] = value
}

// Flag returns a module-local flag override, if any.
func (m *Module) Flag(name string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.flags[name]
	return v, ok
}
