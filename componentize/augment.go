package componentize

import (
	"github.com/wippyai/componentize-mbt/bindgen"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"
)

// Augment makes w export the initializer function. It returns true when a
// synthetic export was added and false when one already existed, so
// calling it again is a no-op.
func Augment(w *wit.World) bool {
	for _, item := range w.Exports.All() {
		if fn, ok := item.(*wit.Function); ok && fn.Name == InitExport {
			return false
		}
	}
	w.Exports.Set(InitExport, &wit.Function{
		Name: InitExport,
		Kind: &wit.Freestanding{},
	})
	Logger().Debug("added initializer export", zap.String("world", w.Name))
	return true
}

// SymbolMap maps MoonBit function names to the core export each one must
// be published under.
type SymbolMap map[string]bindgen.Symbol

// ResolveSymbols runs the binding generator without output and returns
// the symbols it assigned. Generation errors abort the run.
func ResolveSymbols(res *wit.Resolve, w *wit.World) (SymbolMap, error) {
	g := bindgen.New()
	if err := g.Generate(res, w, nil); err != nil {
		return nil, err
	}
	return SymbolMap(g.ExportedSymbols()), nil
}
