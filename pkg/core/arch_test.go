package core_test

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const modulePath = "github.com/leapstack-labs/qcops"

// importsOf returns the imports of every non-test Go file in dir, keyed by
// file name.
func importsOf(t *testing.T, dir string) map[string][]string {
	t.Helper()
	fset := token.NewFileSet()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", dir, err)
	}

	out := map[string][]string{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".go") || strings.HasSuffix(entry.Name(), "_test.go") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			t.Errorf("Failed to parse %s: %v", path, err)
			continue
		}
		for _, imp := range f.Imports {
			out[entry.Name()] = append(out[entry.Name()], strings.Trim(imp.Path.Value, `"`))
		}
	}
	return out
}

// TestCoreImportsOnlyStdlib verifies pkg/core depends on nothing but the
// standard library.
func TestCoreImportsOnlyStdlib(t *testing.T) {
	for file, imports := range importsOf(t, ".") {
		for _, imp := range imports {
			// stdlib paths have no dot in their first element
			if strings.Contains(strings.SplitN(imp, "/", 2)[0], ".") {
				t.Errorf("%s imports forbidden package: %s", file, imp)
			}
		}
	}
}

// TestDomainPackagesStayBelowPresentation verifies the computation packages
// never import the CLI, the terminal UI or the web UI.
func TestDomainPackagesStayBelowPresentation(t *testing.T) {
	domain := []string{"dag", "lineage", "cqa", "synth", "dataset", "analytics"}
	forbidden := []string{
		modulePath + "/internal/cli",
		modulePath + "/internal/tui",
		modulePath + "/internal/ui",
	}

	for _, pkg := range domain {
		dir := filepath.Join("..", "..", "internal", pkg)
		for file, imports := range importsOf(t, dir) {
			for _, imp := range imports {
				for _, f := range forbidden {
					if imp == f || strings.HasPrefix(imp, f+"/") {
						t.Errorf("internal/%s/%s imports %s (domain packages must not depend on presentation)", pkg, file, imp)
					}
				}
			}
		}
	}
}
