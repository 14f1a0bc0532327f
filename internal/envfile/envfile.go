// Package envfile reads the .env files of the managed projects and finds
// the environment variables their code expects.
package envfile

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// Language selects the usage patterns searched for.
type Language string

const (
	Python Language = "python"
	Node   Language = "node"
)

// Var is an environment variable referenced from source code.
type Var struct {
	Name string
	File string // relative to the project root
	Line int
}

// Status compares the variables a project references with those its env
// files define.
type Status struct {
	Referenced []Var
	Defined    map[string]bool
	Missing    []Var
}

var patterns = map[Language]*regexp.Regexp{
	// process.env.VAR or process.env['VAR']
	Node: regexp.MustCompile(`process\.env\.([A-Z][A-Z0-9_]*)|process\.env\[['"]([A-Z][A-Z0-9_]*)['"]\]`),
	// os.environ['VAR'], os.environ.get('VAR'), os.getenv('VAR')
	Python: regexp.MustCompile(`os\.environ(?:\.get\()?\[?['"]([A-Z][A-Z0-9_]*)['"]|os\.getenv\(['"]([A-Z][A-Z0-9_]*)['"]`),
}

var extensions = map[Language][]string{
	Node:   {".js", ".ts", ".jsx", ".tsx", ".mjs", ".cjs"},
	Python: {".py"},
}

var skipDirs = map[string]bool{
	"node_modules": true,
	".next":        true,
	".venv":        true,
	"venv":         true,
	"__pycache__":  true,
	".git":         true,
	"dist":         true,
	"build":        true,
}

// Provided by the OS or by the controller itself.
var ignored = map[string]bool{
	"PATH":     true,
	"HOME":     true,
	"USER":     true,
	"NODE_ENV": true,
	"PORT":     true,
	"HOST":     true,
	"DEBUG":    true,
	"CI":       true,
}

// Files lists the env files of a project, later files overriding earlier
// ones.
var Files = []string{".env", ".env.local"}

var exampleFiles = []string{".env.example", ".env.sample", ".env.template"}

// Read parses the env file at path. A missing file yields an empty map.
func Read(path string) (map[string]string, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return vars, nil
}

// Load merges the env files of the project in dir. Unreadable files are
// skipped.
func Load(dir string) map[string]string {
	merged := make(map[string]string)
	for _, name := range Files {
		vars, err := Read(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		for k, v := range vars {
			merged[k] = v
		}
	}
	return merged
}

// Defines reports whether the env files in dir set key.
func Defines(dir, key string) bool {
	_, ok := Load(dir)[key]
	return ok
}

// Scan walks the project in dir for references to environment variables,
// one entry per variable at its first use.
func Scan(dir string, lang Language) ([]Var, error) {
	re, ok := patterns[lang]
	if !ok {
		return nil, nil
	}
	exts := extensions[lang]

	seen := make(map[string]bool)
	var vars []Var
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !hasExt(path, exts) {
			return nil
		}
		found, err := scanFile(path, re)
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(dir, path)
		for _, v := range found {
			if seen[v.Name] || ignored[v.Name] {
				continue
			}
			seen[v.Name] = true
			v.File = rel
			vars = append(vars, v)
		}
		return nil
	})
	sort.Slice(vars, func(i, j int) bool { return vars[i].Name < vars[j].Name })
	return vars, err
}

func hasExt(path string, exts []string) bool {
	ext := filepath.Ext(path)
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func scanFile(path string, re *regexp.Regexp) ([]Var, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var vars []Var
	scanner := bufio.NewScanner(file)
	n := 0
	for scanner.Scan() {
		n++
		for _, m := range re.FindAllStringSubmatch(scanner.Text(), -1) {
			for _, name := range m[1:] {
				if name != "" {
					vars = append(vars, Var{Name: name, Line: n})
				}
			}
		}
	}
	return vars, scanner.Err()
}

// Check scans the project and reports referenced variables that neither
// its env files nor an example file with a value define. extra lists
// variables supplied by the controller.
func Check(dir string, lang Language, extra ...string) (Status, error) {
	st := Status{Defined: make(map[string]bool)}

	refs, err := Scan(dir, lang)
	if err != nil {
		return st, err
	}
	st.Referenced = refs

	for k := range Load(dir) {
		st.Defined[k] = true
	}
	for _, name := range exampleFiles {
		vars, _ := Read(filepath.Join(dir, name))
		for k, v := range vars {
			if isDefault(v) {
				st.Defined[k] = true
			}
		}
	}
	for _, k := range extra {
		st.Defined[k] = true
	}

	for _, v := range refs {
		if !st.Defined[v.Name] {
			st.Missing = append(st.Missing, v)
		}
	}
	return st, nil
}

// isDefault reports whether an example value is usable as is. Empty values
// and placeholders such as "KEY= # fill me in" are not.
func isDefault(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && !strings.HasPrefix(v, "#")
}
