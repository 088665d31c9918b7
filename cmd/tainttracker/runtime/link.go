// Package runtime resolves how instrumented code links against the
// tracer facade.
//
// Generated instrumentation imports the facade package by path. When
// the tool runs against code inside this repository (development mode)
// the path is derived from the enclosing go.mod so a renamed or forked
// module keeps working; everywhere else the released module path is
// used.
package runtime

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/mod/modfile"
)

// DefaultFacadePath is the released import path of the tracer facade.
const DefaultFacadePath = "github.com/kolkov/tainttracker/taint"

// FacadePath returns the import path instrumented files should use for
// the facade, resolved for code rooted at dir.
//
// When dir sits inside a module whose go.mod declares a module path
// ending in "tainttracker" (this repository or a fork), the facade path
// is derived from that module path. Any other module gets the released
// path.
func FacadePath(dir string) string {
	modPath, err := enclosingModulePath(dir)
	if err != nil {
		return DefaultFacadePath
	}
	if strings.HasSuffix(modPath, "tainttracker") {
		return modPath + "/taint"
	}
	return DefaultFacadePath
}

// enclosingModulePath walks up from dir to the nearest go.mod and
// returns its declared module path.
func enclosingModulePath(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrap(err, "could not resolve directory")
	}

	for {
		modPath := filepath.Join(abs, "go.mod")
		if data, err := os.ReadFile(modPath); err == nil {
			mf, err := modfile.Parse(modPath, data, nil)
			if err != nil {
				return "", errors.Wrapf(err, "could not parse %s", modPath)
			}
			if mf.Module == nil {
				return "", errors.Errorf("%s has no module directive", modPath)
			}
			return mf.Module.Mod.Path, nil
		}

		parent := filepath.Dir(abs)
		if parent == abs {
			return "", errors.New("no go.mod found")
		}
		abs = parent
	}
}

// InitSnippet returns the lifecycle calls the tool suggests adding to
// main when it does not insert them itself.
func InitSnippet() string {
	return "taint.Init()\ndefer taint.Fini()"
}
