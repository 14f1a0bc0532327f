package provisioner

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// PackageManager represents a detected package manager
type PackageManager string

const (
	NPM  PackageManager = "npm"
	PNPM PackageManager = "pnpm"
	Yarn PackageManager = "yarn"
	Bun  PackageManager = "bun"
)

// lockFiles maps lock files to their package manager, in priority order.
var lockFiles = []struct {
	file    string
	manager PackageManager
}{
	{"pnpm-lock.yaml", PNPM},
	{"bun.lockb", Bun},
	{"bun.lock", Bun},
	{"yarn.lock", Yarn},
	{"package-lock.json", NPM},
}

// DetectPackageManager checks for lock files in the project root and returns
// the package manager that owns them. Defaults to npm.
func DetectPackageManager(projectPath string) PackageManager {
	for _, lf := range lockFiles {
		if _, err := os.Stat(filepath.Join(projectPath, lf.file)); err == nil {
			return lf.manager
		}
	}
	return NPM
}

// ParsePackageManager maps a config value to a manager. Empty or "auto"
// returns ok=false so the caller falls back to detection.
func ParsePackageManager(s string) (PackageManager, bool) {
	switch PackageManager(strings.ToLower(strings.TrimSpace(s))) {
	case NPM:
		return NPM, true
	case PNPM:
		return PNPM, true
	case Yarn:
		return Yarn, true
	case Bun:
		return Bun, true
	default:
		return "", false
	}
}

// Executable returns the binary to invoke for the manager. On Windows npm
// and friends are .cmd shims that exec cannot find by bare name.
func (m PackageManager) Executable() string {
	if runtime.GOOS == "windows" && m != Bun {
		return string(m) + ".cmd"
	}
	return string(m)
}

// InstallArgs returns the arguments for installing dependencies.
// npm needs --legacy-peer-deps for projects with loose peer ranges.
func (m PackageManager) InstallArgs() []string {
	if m == NPM {
		return []string{"install", "--legacy-peer-deps"}
	}
	return []string{"install"}
}

// ScriptArgs returns the arguments for running a package.json script.
func (m PackageManager) ScriptArgs(script string) []string {
	return []string{"run", script}
}

// PythonInterpreter resolves the interpreter for a Python project: the
// project's virtualenv first (Windows layout, then POSIX), then python3 or
// python on PATH.
func PythonInterpreter(projectPath string) string {
	candidates := []string{
		filepath.Join(projectPath, ".venv", "Scripts", "python.exe"),
		filepath.Join(projectPath, ".venv", "bin", "python"),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	for _, name := range []string{"python3", "python"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return "python3"
}

// CheckTool runs "<tool> --version" and reports whether it works.
func CheckTool(tool string) (bool, string) {
	cmd := exec.Command(tool, "--version")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return false, ""
	}
	return true, strings.TrimSpace(string(output))
}

// InstallHint returns a hint for installing a missing package manager.
func InstallHint(m PackageManager) string {
	switch m {
	case PNPM:
		return "pnpm is required. Install it with: npm install -g pnpm"
	case Yarn:
		return "yarn is required. Install it with: npm install -g yarn"
	case Bun:
		return "bun is required. Install it from https://bun.sh"
	default:
		return "npm is required. Install Node.js from https://nodejs.org"
	}
}
