// Package discovery finds the files of a Rails application that the rule
// engine should inspect.
//
// It recursively walks the application directory, classifies files by kind
// (Ruby source, view template, configuration), and returns a sorted
// inventory. Build output, dependencies and ignored paths are skipped.
package discovery

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// Kind identifies the category of a discovered file.
type Kind string

const (
	// Ruby is Ruby source: models, controllers, libraries, rake tasks.
	Ruby Kind = "ruby"
	// Template is a view template (ERB, Haml, Slim).
	Template Kind = "template"
	// Config is YAML configuration.
	Config Kind = "config"
	// Other is anything the scanner does not inspect.
	Other Kind = "other"
)

// File is a single discovered file in the application tree.
type File struct {
	// Path is the file path relative to the walker root, slash separated.
	Path string
	// AbsPath is the absolute file path.
	AbsPath string
	Kind    Kind
	Size    int64
}

var rubyNames = map[string]bool{
	"Gemfile":   true,
	"Rakefile":  true,
	"config.ru": true,
}

var kindByExt = map[string]Kind{
	".rb":   Ruby,
	".rake": Ruby,
	".erb":  Template,
	".haml": Template,
	".slim": Template,
	".yml":  Config,
	".yaml": Config,
}

// Classify returns the Kind of the file at path.
func Classify(path string) Kind {
	name := filepath.Base(path)
	if rubyNames[name] {
		return Ruby
	}
	if k, ok := kindByExt[strings.ToLower(filepath.Ext(name))]; ok {
		return k
	}
	return Other
}

// DefaultSkipPatterns are directories that never hold application code.
var DefaultSkipPatterns = []string{
	"vendor/",
	"tmp/",
	"log/",
	"node_modules/",
	"coverage/",
	"/public/assets/",
}

// Walker recursively discovers and classifies files under Root.
type Walker struct {
	// Root is the directory to walk.
	Root string
	// IgnorePatterns holds gitignore-style patterns for skipping files.
	IgnorePatterns []string
}

// NewWalker creates a Walker rooted at root. The default skip patterns,
// patterns from root/.vigilignore and the extra patterns are combined in that
// order, so later negations can re-include a default.
func NewWalker(root string, extra ...string) (*Walker, error) {
	patterns := append([]string(nil), DefaultSkipPatterns...)
	fromFile, err := LoadIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	patterns = append(patterns, fromFile...)
	patterns = append(patterns, extra...)
	return &Walker{Root: root, IgnorePatterns: patterns}, nil
}

// Walk traverses Root, classifies each regular file, and returns the
// collected files sorted by relative path. Files of kind Other are omitted.
func (w *Walker) Walk() ([]File, error) {
	absRoot, err := filepath.Abs(w.Root)
	if err != nil {
		return nil, err
	}

	var files []File
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if IsIgnored(rel+"/", w.IgnorePatterns) {
				return filepath.SkipDir
			}
			return nil
		}
		if IsIgnored(rel, w.IgnorePatterns) || !d.Type().IsRegular() {
			return nil
		}

		kind := Classify(rel)
		if kind == Other {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, File{
			Path:    rel,
			AbsPath: path,
			Kind:    kind,
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	return files, nil
}
