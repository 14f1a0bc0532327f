package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harshul/devpanel/internal/config"
	"github.com/harshul/devpanel/internal/envfile"
	"github.com/harshul/devpanel/internal/ports"
	"github.com/harshul/devpanel/internal/provisioner"
)

// RuntimeStatus represents the status of a runtime check
type RuntimeStatus struct {
	Name      string
	Installed bool
	Version   string
	Path      string
}

// DependencyStatus represents the status of project dependencies
type DependencyStatus struct {
	Manager        string // pip, npm, pnpm, ...
	ConfigFile     string // requirements.txt, package.json
	Installed      bool   // Are dependencies installed?
	InstallCommand string
	ManagerHint    string // Hint for installing a missing package manager
}

// PortStatus reports whether a service port is free.
type PortStatus struct {
	Port   int
	Free   bool
	Holder string // process name and PID when known
}

// ServiceDiagnosis holds the checks for one managed service.
type ServiceDiagnosis struct {
	Name         string
	Dir          string
	DirExists    bool
	Runtime      RuntimeStatus
	Dependencies DependencyStatus
	Port         PortStatus
	Built        bool // build marker present; always true without a build step
	MissingEnv   []envfile.Var
}

// Diagnosis contains the full health check results
type Diagnosis struct {
	Services []ServiceDiagnosis
	Healthy  bool
	Issues   []string
	Warnings []string
}

// Hooks for tests.
var (
	checkTool     = provisioner.CheckTool
	isPortFree    = ports.IsPortAvailable
	lookupHolder  = defaultLookupHolder
	lookupTimeout = 3 * time.Second
)

func defaultLookupHolder(port int) string {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	l, found, err := ports.NewScanner().Lookup(ctx, port)
	if err != nil || !found {
		return ""
	}
	if l.Name == "" {
		return fmt.Sprintf("pid %d", l.PID)
	}
	return fmt.Sprintf("%s (pid %d)", l.Name, l.PID)
}

// Diagnose checks both projects described by cfg. A busy port is a warning,
// since the server may simply be running already.
func Diagnose(cfg config.Config) Diagnosis {
	d := Diagnosis{Healthy: true}

	api := checkAPI(cfg)
	web := checkWeb(cfg)
	d.Services = []ServiceDiagnosis{api, web}

	for _, s := range d.Services {
		if !s.DirExists {
			d.Healthy = false
			d.Issues = append(d.Issues, fmt.Sprintf("%s: directory %s not found", s.Name, s.Dir))
			continue
		}
		if !s.Runtime.Installed {
			d.Healthy = false
			d.Issues = append(d.Issues, fmt.Sprintf("%s: %s runtime is not installed", s.Name, s.Runtime.Name))
		}
		if s.Dependencies.ManagerHint != "" {
			d.Healthy = false
			d.Issues = append(d.Issues, fmt.Sprintf("%s: %s", s.Name, s.Dependencies.ManagerHint))
		}
		if s.Dependencies.ConfigFile == "" {
			d.Warnings = append(d.Warnings, fmt.Sprintf("%s: no dependency manifest found", s.Name))
		} else if !s.Dependencies.Installed {
			d.Warnings = append(d.Warnings, fmt.Sprintf("%s: dependencies not installed yet (%s)", s.Name, s.Dependencies.InstallCommand))
		}
		if !s.Port.Free {
			msg := fmt.Sprintf("%s: port %d is in use", s.Name, s.Port.Port)
			if s.Port.Holder != "" {
				msg += " by " + s.Port.Holder
			}
			d.Warnings = append(d.Warnings, msg)
		}
		if len(s.MissingEnv) > 0 {
			names := make([]string, len(s.MissingEnv))
			for i, v := range s.MissingEnv {
				names[i] = v.Name
			}
			d.Warnings = append(d.Warnings, fmt.Sprintf("%s: environment variables not set in .env: %s", s.Name, strings.Join(names, ", ")))
		}
		if !s.Built {
			d.Warnings = append(d.Warnings, fmt.Sprintf("%s: no production build yet, first start will build", s.Name))
		}
	}
	return d
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func checkPort(port int) PortStatus {
	st := PortStatus{Port: port, Free: isPortFree(port)}
	if !st.Free {
		st.Holder = lookupHolder(port)
	}
	return st
}

func checkAPI(cfg config.Config) ServiceDiagnosis {
	s := ServiceDiagnosis{
		Name:      config.API,
		Dir:       cfg.APIDir,
		DirExists: dirExists(cfg.APIDir),
		Port:      checkPort(cfg.APIPort),
		Built:     true,
	}
	if !s.DirExists {
		return s
	}

	py := cfg.PythonCommand()
	s.Runtime = RuntimeStatus{Name: "Python", Path: py}
	s.Runtime.Installed, s.Runtime.Version = checkTool(py)

	s.Dependencies = DependencyStatus{Manager: "pip"}
	if fileExists(filepath.Join(cfg.APIDir, "requirements.txt")) {
		s.Dependencies.ConfigFile = "requirements.txt"
		s.Dependencies.InstallCommand = py + " -m pip install -r requirements.txt"
		// a project venv is the best signal we have that pip has run
		s.Dependencies.Installed = fileExists(filepath.Join(cfg.APIDir, ".venv"))
	}
	s.MissingEnv = missingEnv(cfg.APIDir, envfile.Python)
	return s
}

func checkWeb(cfg config.Config) ServiceDiagnosis {
	s := ServiceDiagnosis{
		Name:      config.Web,
		Dir:       cfg.WebDir,
		DirExists: dirExists(cfg.WebDir),
		Port:      checkPort(cfg.WebPort),
	}
	if !s.DirExists {
		s.Built = true
		return s
	}

	s.Runtime = RuntimeStatus{Name: "Node.js", Path: "node"}
	s.Runtime.Installed, s.Runtime.Version = checkTool("node")

	pm := cfg.PackageManager()
	s.Dependencies = DependencyStatus{Manager: string(pm)}
	if ok, _ := checkTool(pm.Executable()); !ok {
		s.Dependencies.ManagerHint = provisioner.InstallHint(pm)
	}
	if fileExists(filepath.Join(cfg.WebDir, "package.json")) {
		s.Dependencies.ConfigFile = "package.json"
		s.Dependencies.Installed = dirExists(filepath.Join(cfg.WebDir, "node_modules"))
		s.Dependencies.InstallCommand = pm.Executable()
		for _, a := range pm.InstallArgs() {
			s.Dependencies.InstallCommand += " " + a
		}
	}

	for _, svc := range cfg.Services() {
		if svc.Name == config.Web {
			s.Built = svc.BuildMarker == "" || fileExists(filepath.Join(cfg.WebDir, svc.BuildMarker))
		}
	}
	s.MissingEnv = missingEnv(cfg.WebDir, envfile.Node, config.APIURLVar)
	return s
}

// missingEnv lists variables the project code reads but nothing defines.
// extra names variables the controller sets itself.
func missingEnv(dir string, lang envfile.Language, extra ...string) []envfile.Var {
	st, err := envfile.Check(dir, lang, extra...)
	if err != nil {
		return nil
	}
	return st.Missing
}
