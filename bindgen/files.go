package bindgen

import (
	"os"
	"path/filepath"

	"github.com/wippyai/componentize-mbt/errors"
)

// Files collects generated files in the order they were produced.
type Files struct {
	names    []string
	contents map[string][]byte
}

// Push adds or replaces a file.
func (f *Files) Push(name string, contents []byte) {
	if f.contents == nil {
		f.contents = make(map[string][]byte)
	}
	if _, ok := f.contents[name]; !ok {
		f.names = append(f.names, name)
	}
	f.contents[name] = contents
}

// Names returns the file names in generation order.
func (f *Files) Names() []string { return f.names }

func (f *Files) Get(name string) ([]byte, bool) {
	b, ok := f.contents[name]
	return b, ok
}

// WriteTo writes every file below dir, creating directories as needed, and
// returns the written paths.
func (f *Files) WriteTo(dir string) ([]string, error) {
	var written []string
	for _, name := range f.names {
		dst := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return written, errors.Wrap(errors.PhaseBindgen, errors.KindInvalidInput, err, "create "+filepath.Dir(dst))
		}
		if err := os.WriteFile(dst, f.contents[name], 0o644); err != nil {
			return written, errors.Wrap(errors.PhaseBindgen, errors.KindInvalidInput, err, "write "+dst)
		}
		written = append(written, dst)
	}
	return written, nil
}
