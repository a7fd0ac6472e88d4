package imports_test

import (
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const root = "../.."

// importsByDir maps each package directory (relative to the module root) to
// the import paths used by its non-test files.
func importsByDir(t *testing.T) map[string][]string {
	t.Helper()
	out := make(map[string][]string)
	fset := token.NewFileSet()

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") || name == "internaltests") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, filepath.Dir(path))
		for _, imp := range f.Imports {
			p, _ := strconv.Unquote(imp.Path.Value)
			out[filepath.ToSlash(rel)] = append(out[filepath.ToSlash(rel)], p)
		}
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestNoFrameworkImports(t *testing.T) {
	for dir, imports := range importsByDir(t) {
		for _, p := range imports {
			assert.False(t, strings.HasPrefix(p, "github.com/leeforge/framework"),
				"%s imports %s", dir, p)
		}
	}
}

func TestDomainPackagesStayOffTransport(t *testing.T) {
	all := importsByDir(t)
	for _, dir := range []string{"crop", "imagestore"} {
		imports, ok := all[dir]
		require.True(t, ok, "package %s not found", dir)
		for _, p := range imports {
			assert.NotEqual(t, "net/http", p, "%s must not depend on net/http", dir)
			assert.False(t, strings.HasPrefix(p, "github.com/leeforge/mapcrop/http"),
				"%s imports %s", dir, p)
			assert.False(t, strings.HasPrefix(p, "github.com/go-chi/"),
				"%s imports %s", dir, p)
		}
	}
}
