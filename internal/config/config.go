package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/harshul/devpanel/internal/envfile"
	"github.com/harshul/devpanel/internal/lifecycle"
	"github.com/harshul/devpanel/internal/provisioner"
)

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "devpanel.yaml"

// EnvPrefix prefixes the environment overrides, e.g. DEVPANEL_API_PORT.
const EnvPrefix = "DEVPANEL"

// Service names.
const (
	API = "api"
	Web = "web"
)

// APIURLVar tells the web app where the API is. It is baked in at build
// time, so it is passed to the build as well as to the server.
const APIURLVar = "NEXT_PUBLIC_API_URL"

// webBuildMarker exists once a production build has been made.
var webBuildMarker = filepath.Join(".next", "BUILD_ID")

// Config holds the controller settings.
type Config struct {
	APIDir  string `mapstructure:"api_dir" yaml:"api_dir"`
	WebDir  string `mapstructure:"web_dir" yaml:"web_dir"`
	APIPort int    `mapstructure:"api_port" yaml:"api_port"`
	WebPort int    `mapstructure:"web_port" yaml:"web_port"`

	// Python overrides the interpreter; empty resolves the project venv.
	Python string `mapstructure:"python" yaml:"python,omitempty"`
	// NPM picks the package manager for the web app: npm, pnpm, yarn, bun
	// or auto (lock file detection).
	NPM string `mapstructure:"npm" yaml:"npm,omitempty"`

	LogFile string `mapstructure:"log_file" yaml:"log_file,omitempty"`
	// LogDir receives one rotated output log per server; empty keeps output
	// in memory only.
	LogDir string `mapstructure:"log_dir" yaml:"log_dir,omitempty"`
	Debug  bool   `mapstructure:"debug" yaml:"debug,omitempty"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		APIDir:  "api",
		WebDir:  "web",
		APIPort: 8000,
		WebPort: 3000,
		NPM:     "auto",
	}
}

// Load reads path (optional) and applies DEVPANEL_* environment overrides on
// top of the defaults. Relative directories are resolved against the
// directory holding the config file.
func Load(path string) (Config, error) {
	def := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api_dir", def.APIDir)
	v.SetDefault("web_dir", def.WebDir)
	v.SetDefault("api_port", def.APIPort)
	v.SetDefault("web_port", def.WebPort)
	v.SetDefault("python", def.Python)
	v.SetDefault("npm", def.NPM)
	v.SetDefault("log_file", def.LogFile)
	v.SetDefault("log_dir", def.LogDir)
	v.SetDefault("debug", def.Debug)

	base, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("reading %s: %w", path, err)
			}
			if abs, err := filepath.Abs(filepath.Dir(path)); err == nil {
				base = abs
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	cfg.APIDir = resolve(base, cfg.APIDir)
	cfg.WebDir = resolve(base, cfg.WebDir)
	if cfg.LogFile != "" {
		cfg.LogFile = resolve(base, cfg.LogFile)
	}
	if cfg.LogDir != "" {
		cfg.LogDir = resolve(base, cfg.LogDir)
	}
	return cfg, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Save writes cfg as YAML.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks ports and that both project directories exist.
func (c Config) Validate() error {
	var errs []error
	for name, port := range map[string]int{"api_port": c.APIPort, "web_port": c.WebPort} {
		if port <= 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("%s: invalid port %d", name, port))
		}
	}
	if c.APIPort == c.WebPort {
		errs = append(errs, fmt.Errorf("api_port and web_port are both %d", c.APIPort))
	}
	for name, dir := range map[string]string{"api_dir": c.APIDir, "web_dir": c.WebDir} {
		info, err := os.Stat(dir)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %s not found", name, dir))
			continue
		}
		if !info.IsDir() {
			errs = append(errs, fmt.Errorf("%s: %s is not a directory", name, dir))
		}
	}
	return errors.Join(errs...)
}

// PythonCommand is the interpreter used for the API service.
func (c Config) PythonCommand() string {
	if c.Python != "" {
		return c.Python
	}
	return provisioner.PythonInterpreter(c.APIDir)
}

// PackageManager is the manager used for the web service.
func (c Config) PackageManager() provisioner.PackageManager {
	if m, ok := provisioner.ParsePackageManager(c.NPM); ok {
		return m
	}
	return provisioner.DetectPackageManager(c.WebDir)
}

// Services builds the two managed services.
func (c Config) Services() []*lifecycle.Service {
	py := c.PythonCommand()
	api := &lifecycle.Service{
		Name:    API,
		Dir:     c.APIDir,
		Port:    c.APIPort,
		Install: lifecycle.Command{Name: py, Args: []string{"-m", "pip", "install", "-r", "requirements.txt"}},
		Run: lifecycle.Command{
			Name: py,
			Args: []string{"-m", "uvicorn", "main:app", "--port", strconv.Itoa(c.APIPort)},
		},
	}

	var webEnv []string
	if !envfile.Defines(c.WebDir, APIURLVar) {
		webEnv = append(webEnv, APIURLVar+"="+api.URL())
	}

	pm := c.PackageManager()
	bin := pm.Executable()
	build := lifecycle.Command{Name: bin, Args: pm.ScriptArgs("build"), Env: webEnv}
	web := &lifecycle.Service{
		Name:        Web,
		Dir:         c.WebDir,
		Port:        c.WebPort,
		Install:     lifecycle.Command{Name: bin, Args: pm.InstallArgs()},
		Build:       &build,
		BuildMarker: webBuildMarker,
		Run: lifecycle.Command{
			Name: bin,
			Args: pm.ScriptArgs("start"),
			Env:  append([]string{"PORT=" + strconv.Itoa(c.WebPort)}, webEnv...),
		},
	}
	return []*lifecycle.Service{api, web}
}
