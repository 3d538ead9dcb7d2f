package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("config (-want +got):\n%s", diff)
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := `extensions: [php, .module]
exclude:
  - "tests/**"
  - "**/*.tpl.php"
skip_dirs: [cache]
max_file_size: 2048
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := &Config{
		Extensions:  []string{".php", ".module"},
		Exclude:     []string{"tests/**", "**/*.tpl.php"},
		SkipDirs:    []string{"cache"},
		MaxFileSize: 2048,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config (-want +got):\n%s", diff)
	}
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"bad yaml":    "exclude: [",
		"bad pattern": "exclude: [\"src/[\"]",
		"negative":    "max_file_size: -1",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if err := Parse([]byte(data), Default()); err == nil {
				t.Errorf("Parse(%q) succeeded, want error", data)
			}
		})
	}
}

func TestExcluded(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Exclude = []string{"tests/**", "**/*.tpl.php"}

	tests := []struct {
		path string
		want bool
	}{
		{"tests/Unit/FooTest.php", true},
		{"src/views/page.tpl.php", true},
		{"src/Foo.php", false},
		{filepath.Join("tests", "a.php"), true},
	}
	for _, tt := range tests {
		if got := cfg.Excluded(tt.path); got != tt.want {
			t.Errorf("Excluded(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
