package envfile

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	writeFile(t, path, "# comment\n\nexport A=1\nB = \"two words\"\nC='x=y'\nD=plain # note\n")

	vars, err := Read(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tests := map[string]string{"A": "1", "B": "two words", "C": "x=y", "D": "plain"}
	for k, want := range tests {
		if vars[k] != want {
			t.Errorf("%s: expected %q, got %q", k, want, vars[k])
		}
	}
	if len(vars) != 4 {
		t.Errorf("expected 4 vars, got %v", vars)
	}
}

func TestReadMissingFile(t *testing.T) {
	vars, err := Read(filepath.Join(t.TempDir(), ".env"))
	if err != nil || len(vars) != 0 {
		t.Errorf("expected empty map for missing file, got %v, %v", vars, err)
	}
}

func TestLoadLocalOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".env"), "URL=a\nONLY=1\n")
	writeFile(t, filepath.Join(dir, ".env.local"), "URL=b\n")

	vars := Load(dir)
	if vars["URL"] != "b" || vars["ONLY"] != "1" {
		t.Errorf("expected .env.local to override .env, got %v", vars)
	}
	if !Defines(dir, "ONLY") || Defines(dir, "OTHER") {
		t.Error("unexpected Defines result")
	}
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "actions", "contas.ts"),
		"const r = await fetch(`${process.env.NEXT_PUBLIC_API_URL}/contas/`)\nconst k = process.env['API_KEY']\nprocess.env.PORT\n")
	writeFile(t, filepath.Join(dir, "node_modules", "lib", "index.js"), "process.env.IGNORED_DEP\n")
	writeFile(t, filepath.Join(dir, "main.py"), "os.getenv('PY_ONLY')\n")

	vars, err := Scan(dir, Node)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vars) != 2 {
		t.Fatalf("expected 2 vars, got %v", vars)
	}
	if vars[0].Name != "API_KEY" || vars[1].Name != "NEXT_PUBLIC_API_URL" {
		t.Errorf("unexpected vars %v", vars)
	}
	if vars[1].File != filepath.Join("actions", "contas.ts") || vars[1].Line != 1 {
		t.Errorf("unexpected location %s:%d", vars[1].File, vars[1].Line)
	}
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "main.py"),
		"a = os.environ['DB_URL']\nb = os.environ.get('SECRET')\nc = os.getenv(\"FROM_EXAMPLE\")\nd = os.getenv('EXTRA')\n")
	writeFile(t, filepath.Join(dir, ".env"), "DB_URL=sqlite://\n")
	writeFile(t, filepath.Join(dir, ".env.example"), "FROM_EXAMPLE=1\nSECRET=\n")

	st, err := Check(dir, Python, "EXTRA")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.Referenced) != 4 {
		t.Errorf("expected 4 referenced vars, got %v", st.Referenced)
	}
	if len(st.Missing) != 1 || st.Missing[0].Name != "SECRET" {
		t.Errorf("expected only SECRET missing, got %v", st.Missing)
	}
}

func TestCheckIgnoresPlaceholderDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "main.py"), "KEY = os.getenv('SECRET_KEY')\nURL = os.getenv('DB_URL')\n")
	writeFile(t, filepath.Join(dir, ".env.example"), "SECRET_KEY= # fill me in\nDB_URL=sqlite:// # local default\n")

	st, err := Check(dir, Python)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.Missing) != 1 || st.Missing[0].Name != "SECRET_KEY" {
		t.Errorf("expected SECRET_KEY missing, got %v", st.Missing)
	}
}
