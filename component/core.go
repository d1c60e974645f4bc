package component

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/wippyai/componentize-mbt/errors"
)

// coreFunc is a function signature seen in a core module.
type coreFunc struct {
	module  string // import module, empty for exports
	name    string
	params  []api.ValueType
	results []api.ValueType
}

// coreModule summarizes what component assembly needs from a core module.
type coreModule struct {
	imports  []coreFunc
	modules  []string // distinct import modules in first-use order
	exports  map[string]coreFunc
	memories map[string]bool
}

func (m *coreModule) export(name string) (coreFunc, bool) {
	f, ok := m.exports[name]
	return f, ok
}

// inspectCore compiles core with wazero, which validates it, and records
// its function imports and exports.
func inspectCore(ctx context.Context, core []byte) (*coreModule, error) {
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	defer r.Close(ctx)

	cm, err := r.CompileModule(ctx, core)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseValidate, errors.KindInvalidData, err, "compile core module")
	}
	defer cm.Close(ctx)

	if mems := cm.ImportedMemories(); len(mems) > 0 {
		mod, name, _ := mems[0].Import()
		return nil, errors.Unsupported(errors.PhaseValidate, []string{mod, name}, "imported memory")
	}

	m := &coreModule{
		exports:  make(map[string]coreFunc),
		memories: make(map[string]bool),
	}
	seen := make(map[string]bool)
	for _, def := range cm.ImportedFunctions() {
		mod, name, _ := def.Import()
		m.imports = append(m.imports, coreFunc{
			module:  mod,
			name:    name,
			params:  def.ParamTypes(),
			results: def.ResultTypes(),
		})
		if !seen[mod] {
			seen[mod] = true
			m.modules = append(m.modules, mod)
		}
	}
	for name, def := range cm.ExportedFunctions() {
		m.exports[name] = coreFunc{name: name, params: def.ParamTypes(), results: def.ResultTypes()}
	}
	for name := range cm.ExportedMemories() {
		m.memories[name] = true
	}
	return m, nil
}
