package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harshul/devpanel/internal/provisioner"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIPort != 8000 {
		t.Errorf("expected api_port 8000, got %d", cfg.APIPort)
	}
	if cfg.WebPort != 3000 {
		t.Errorf("expected web_port 3000, got %d", cfg.WebPort)
	}
	if !filepath.IsAbs(cfg.APIDir) || filepath.Base(cfg.APIDir) != "api" {
		t.Errorf("expected absolute api dir, got %s", cfg.APIDir)
	}
}

func TestSaveThenLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFile)

	want := Default()
	want.APIDir = "backend"
	want.WebPort = 3100
	want.Debug = true
	if err := Save(path, want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.APIDir != filepath.Join(dir, "backend") {
		t.Errorf("expected api dir resolved against the config file, got %s", got.APIDir)
	}
	if got.WebPort != 3100 {
		t.Errorf("expected web_port 3100, got %d", got.WebPort)
	}
	if !got.Debug {
		t.Error("expected debug to be true")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFile)
	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DEVPANEL_API_PORT", "9000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIPort != 9000 {
		t.Errorf("expected api_port 9000 from env, got %d", cfg.APIPort)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	if err := os.WriteFile(path, []byte("api_port: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	api := filepath.Join(dir, "api")
	if err := os.Mkdir(api, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	cfg.APIDir = api
	cfg.WebDir = filepath.Join(dir, "web")

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing web dir")
	}
	if !strings.Contains(err.Error(), "web_dir") {
		t.Errorf("expected web_dir in error, got %v", err)
	}

	if err := os.Mkdir(cfg.WebDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}

	cfg.WebPort = cfg.APIPort
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for clashing ports")
	}
}

func TestServices(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.APIDir = filepath.Join(dir, "api")
	cfg.WebDir = filepath.Join(dir, "web")
	cfg.Python = "python-test"
	cfg.NPM = "npm"
	cfg.WebPort = 3100

	services := cfg.Services()
	if len(services) != 2 {
		t.Fatalf("expected 2 services, got %d", len(services))
	}
	api, web := services[0], services[1]

	if api.Name != API || api.Port != 8000 {
		t.Errorf("expected api on 8000, got %s on %d", api.Name, api.Port)
	}
	if got := api.Install.String(); got != "python-test -m pip install -r requirements.txt" {
		t.Errorf("unexpected api install command: %s", got)
	}
	if got := api.Run.String(); got != "python-test -m uvicorn main:app --port 8000" {
		t.Errorf("unexpected api run command: %s", got)
	}
	if api.Build != nil {
		t.Error("expected no build step for api")
	}

	if web.Build == nil {
		t.Fatal("expected a build step for web")
	}
	if web.BuildMarker != filepath.Join(".next", "BUILD_ID") {
		t.Errorf("unexpected build marker: %s", web.BuildMarker)
	}
	bin := provisioner.NPM.Executable()
	if got := web.Install.String(); got != bin+" install --legacy-peer-deps" {
		t.Errorf("unexpected web install command: %s", got)
	}
	if got := web.Run.String(); got != bin+" run start" {
		t.Errorf("unexpected web run command: %s", got)
	}
	wantEnv := []string{"PORT=3100", "NEXT_PUBLIC_API_URL=http://localhost:8000"}
	if len(web.Run.Env) != 2 || web.Run.Env[0] != wantEnv[0] || web.Run.Env[1] != wantEnv[1] {
		t.Errorf("expected %v in web env, got %v", wantEnv, web.Run.Env)
	}
	if len(web.Build.Env) != 1 || web.Build.Env[0] != wantEnv[1] {
		t.Errorf("expected api url in build env, got %v", web.Build.Env)
	}
}

func TestServicesKeepsAPIURLFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env.local"), []byte("NEXT_PUBLIC_API_URL=https://api.example.test\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := Default()
	cfg.WebDir = dir
	cfg.NPM = "npm"

	web := cfg.Services()[1]
	if len(web.Run.Env) != 1 {
		t.Errorf("expected only PORT in web env, got %v", web.Run.Env)
	}
	if len(web.Build.Env) != 0 {
		t.Errorf("expected empty build env, got %v", web.Build.Env)
	}
}

func TestPackageManagerDetection(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "yarn.lock"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := Default()
	cfg.WebDir = dir

	if got := cfg.PackageManager(); got != provisioner.Yarn {
		t.Errorf("expected yarn, got %s", got)
	}
	cfg.NPM = "pnpm"
	if got := cfg.PackageManager(); got != provisioner.PNPM {
		t.Errorf("expected pnpm override, got %s", got)
	}
}
