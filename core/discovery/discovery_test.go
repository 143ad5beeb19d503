package discovery

import (
	"os"
	"path/filepath"
	"testing"
)

// ---------------------------------------------------------------------------
// Classify tests
// ---------------------------------------------------------------------------

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path string
		want Kind
	}{
		{"app/models/user.rb", Ruby},
		{"lib/tasks/db.rake", Ruby},
		{"Gemfile", Ruby},
		{"config.ru", Ruby},
		{"app/views/users/show.html.erb", Template},
		{"app/views/users/index.html.haml", Template},
		{"app/views/layouts/app.slim", Template},
		{"config/database.yml", Config},
		{"config/vigil.yaml", Config},
		{"README.md", Other},
		{"app/assets/images/logo.png", Other},
	}

	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			if got := Classify(tc.path); got != tc.want {
				t.Errorf("Classify(%q) = %q, want %q", tc.path, got, tc.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Ignore pattern tests
// ---------------------------------------------------------------------------

func TestIsIgnored(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		path     string
		patterns []string
		want     bool
	}{
		{"git always ignored", ".git/config", nil, true},
		{"no patterns", "app/models/user.rb", nil, false},
		{"wildcard", "log/development.log", []string{"*.log"}, true},
		{"bare name matches any segment", "app/cache/", []string{"cache"}, true},
		{"dir pattern on dir", "vendor/", []string{"vendor/"}, true},
		{"nested dir pattern", "engines/foo/vendor/", []string{"vendor/"}, true},
		{"dir pattern on file", "vendor", []string{"vendor/"}, false},
		{"anchored matches root", "public/assets/", []string{"/public/assets/"}, true},
		{"anchored skips nested", "engines/public/assets/", []string{"/public/assets/"}, false},
		{"inner slash anchors", "config/secrets.yml", []string{"config/*.yml"}, true},
		{"negation", "app/keep.log", []string{"*.log", "!keep.log"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsIgnored(tc.path, tc.patterns); got != tc.want {
				t.Errorf("IsIgnored(%q, %v) = %v, want %v", tc.path, tc.patterns, got, tc.want)
			}
		})
	}
}

func TestLoadIgnoreFile_NoFile(t *testing.T) {
	t.Parallel()

	patterns, err := LoadIgnoreFile(filepath.Join(t.TempDir(), IgnoreFileName))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(patterns) != 0 {
		t.Fatalf("expected no patterns, got %v", patterns)
	}
}

func TestLoadIgnoreFile_ParsesPatterns(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), IgnoreFileName)
	content := "# comment\n\n*.bak\n  spec/fixtures/  \n!keep.bak\n"
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	patterns, err := LoadIgnoreFile(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"*.bak", "spec/fixtures/", "!keep.bak"}
	if len(patterns) != len(want) {
		t.Fatalf("got %v, want %v", patterns, want)
	}
	for i := range want {
		if patterns[i] != want[i] {
			t.Errorf("pattern %d = %q, want %q", i, patterns[i], want[i])
		}
	}
}

// ---------------------------------------------------------------------------
// Walker tests
// ---------------------------------------------------------------------------

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func createRailsTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "Gemfile", "source 'https://rubygems.org'\n")
	writeFile(t, root, "app/models/user.rb", "class User; end\n")
	writeFile(t, root, "app/controllers/users_controller.rb", "class UsersController; end\n")
	writeFile(t, root, "app/views/users/show.html.erb", "<%= @user.name %>\n")
	writeFile(t, root, "config/database.yml", "development: {}\n")
	writeFile(t, root, "README.md", "# app\n")
	writeFile(t, root, "vendor/bundle/gems/rack/lib/rack.rb", "module Rack; end\n")
	writeFile(t, root, "tmp/cache/x.rb", "x\n")
	writeFile(t, root, "public/assets/app.js", "x\n")
	writeFile(t, root, ".git/HEAD", "ref: refs/heads/main\n")
	return root
}

func TestWalker_DiscoversApplicationFiles(t *testing.T) {
	t.Parallel()
	root := createRailsTree(t)

	w, err := NewWalker(root)
	if err != nil {
		t.Fatalf("NewWalker: %v", err)
	}
	files, err := w.Walk()
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}

	want := []struct {
		path string
		kind Kind
	}{
		{"Gemfile", Ruby},
		{"app/controllers/users_controller.rb", Ruby},
		{"app/models/user.rb", Ruby},
		{"app/views/users/show.html.erb", Template},
		{"config/database.yml", Config},
	}
	if len(files) != len(want) {
		t.Fatalf("got %d files %+v, want %d", len(files), files, len(want))
	}
	for i, w := range want {
		if files[i].Path != w.path || files[i].Kind != w.kind {
			t.Errorf("file %d = %s (%s), want %s (%s)", i, files[i].Path, files[i].Kind, w.path, w.kind)
		}
		if !filepath.IsAbs(files[i].AbsPath) {
			t.Errorf("AbsPath %q is not absolute", files[i].AbsPath)
		}
		if files[i].Size == 0 {
			t.Errorf("expected non-zero size for %s", files[i].Path)
		}
	}
}

func TestWalker_ExtraPatternsAndIgnoreFile(t *testing.T) {
	t.Parallel()
	root := createRailsTree(t)
	writeFile(t, root, IgnoreFileName, "app/controllers/\n")

	w, err := NewWalker(root, "*.yml")
	if err != nil {
		t.Fatalf("NewWalker: %v", err)
	}
	files, err := w.Walk()
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	for _, f := range files {
		if f.Path == "app/controllers/users_controller.rb" || f.Path == "config/database.yml" {
			t.Errorf("expected %s to be skipped", f.Path)
		}
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 files, got %+v", files)
	}
}

func TestWalker_NegationReincludesDefault(t *testing.T) {
	t.Parallel()
	root := createRailsTree(t)

	w, err := NewWalker(root, "!vendor/")
	if err != nil {
		t.Fatalf("NewWalker: %v", err)
	}
	files, err := w.Walk()
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	found := false
	for _, f := range files {
		if f.Path == "vendor/bundle/gems/rack/lib/rack.rb" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected vendor file to be re-included")
	}
}

func TestWalker_NonexistentRoot(t *testing.T) {
	t.Parallel()

	w, err := NewWalker("/nonexistent/path/for/vigil")
	if err != nil {
		t.Fatalf("NewWalker: %v", err)
	}
	if _, err := w.Walk(); err == nil {
		t.Fatal("expected error for nonexistent root")
	}
}
