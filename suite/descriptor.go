// Package suite loads JavaScript test suite descriptions and renders
// the runner pages served to browsers.
//
// A suite description is a YAML file naming the suite and listing its
// lib, src, spec and fixture dependencies. Loading resolves every
// declared path into an ordered dependency manifest; the result is pure
// data and never changes after Load returns.
package suite

import (
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigError reports an invalid suite description. It aborts the whole
// invocation before any server is started.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "suite: " + e.Msg }

func configErrf(format string, args ...any) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// Category classifies a dependency file. The category decides where the
// file is injected in the runner page and whether it gets instrumented
// for coverage (src only).
type Category string

const (
	CategoryLib     Category = "lib"
	CategorySrc     Category = "src"
	CategorySpec    Category = "spec"
	CategoryFixture Category = "fixture"
)

// DependencyFile is one entry of the resolved manifest.
type DependencyFile struct {
	Category Category

	// RelPath is slash-separated and relative to the description root.
	RelPath string

	// PageVisible reports whether the runner page loads this file.
	// Fixtures are never page visible; other files default to true
	// unless matched by exclude_from_page, with include_in_page
	// overriding the exclusion.
	PageVisible bool
}

// Description is a resolved, immutable suite description.
type Description struct {
	Name        string
	RootDir     string
	TestRunner  string
	PrependPath string

	// Files holds the manifest in load order: declaration order of the
	// YAML lists, lexical order within expanded directories.
	Files []DependencyFile
}

// SupportedRunners lists the in-page test runners this tool knows how
// to drive.
var SupportedRunners = []string{"jasmine"}

// rawDescription mirrors the YAML document.
type rawDescription struct {
	TestSuiteName   string     `yaml:"test_suite_name"`
	TestRunner      string     `yaml:"test_runner"`
	PrependPath     string     `yaml:"prepend_path"`
	LibPaths        stringList `yaml:"lib_paths"`
	SrcPaths        stringList `yaml:"src_paths"`
	SpecPaths       stringList `yaml:"spec_paths"`
	FixturePaths    stringList `yaml:"fixture_paths"`
	ExcludeFromPage stringList `yaml:"exclude_from_page"`
	IncludeInPage   stringList `yaml:"include_in_page"`
}

// stringList accepts either a YAML sequence or a single scalar, which
// is promoted to a one-element list.
type stringList []string

func (l *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*l = stringList{s}
		return nil
	case yaml.SequenceNode:
		var ss []string
		if err := node.Decode(&ss); err != nil {
			return err
		}
		*l = stringList(ss)
		return nil
	default:
		return fmt.Errorf("expected string or list of strings at line %d", node.Line)
	}
}

// Load reads the suite description at descPath. Declared paths are
// resolved relative to the description file's directory.
func Load(descPath string) (*Description, error) {
	data, err := os.ReadFile(descPath)
	if err != nil {
		return nil, configErrf("read description %s: %v", descPath, err)
	}

	rootDir, err := filepath.Abs(filepath.Dir(descPath))
	if err != nil {
		return nil, configErrf("resolve root of %s: %v", descPath, err)
	}

	return Parse(data, rootDir)
}

// Parse builds a Description from raw YAML with paths resolved against
// rootDir. Split from Load so tests can feed documents directly.
func Parse(data []byte, rootDir string) (*Description, error) {
	var raw rawDescription
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, configErrf("parse description: %v", err)
	}

	if err := validateName(raw.TestSuiteName); err != nil {
		return nil, err
	}
	if err := validateRunner(raw.TestRunner); err != nil {
		return nil, err
	}
	info, err := os.Stat(rootDir)
	if err != nil || !info.IsDir() {
		return nil, configErrf("%q is not a valid suite root directory", rootDir)
	}
	if len(raw.SrcPaths) == 0 {
		return nil, configErrf("suite %q declares no src_paths", raw.TestSuiteName)
	}
	if len(raw.SpecPaths) == 0 {
		return nil, configErrf("suite %q declares no spec_paths", raw.TestSuiteName)
	}

	d := &Description{
		Name:        raw.TestSuiteName,
		RootDir:     rootDir,
		TestRunner:  raw.TestRunner,
		PrependPath: raw.PrependPath,
	}

	for _, group := range []struct {
		category Category
		declared []string
	}{
		{CategoryLib, raw.LibPaths},
		{CategorySrc, raw.SrcPaths},
		{CategorySpec, raw.SpecPaths},
		{CategoryFixture, raw.FixturePaths},
	} {
		files, err := expandPaths(rootDir, group.category, group.declared)
		if err != nil {
			return nil, err
		}
		d.Files = append(d.Files, files...)
	}

	applyPageVisibility(d.Files, raw.ExcludeFromPage, raw.IncludeInPage)
	return d, nil
}

func validateName(name string) error {
	if name == "" {
		return configErrf("missing required key 'test_suite_name'")
	}
	if url.PathEscape(name) != name || strings.ContainsAny(name, "/%") {
		return configErrf("suite name %q is not URL-safe", name)
	}
	return nil
}

func validateRunner(runner string) error {
	if runner == "" {
		return configErrf("missing required key 'test_runner'")
	}
	for _, supported := range SupportedRunners {
		if runner == supported {
			return nil
		}
	}
	return configErrf("%q is not a supported test runner", runner)
}

// expandPaths resolves one declared path list into manifest entries.
// A file becomes a single entry; a directory is walked recursively and
// contributes every matching file in case-insensitive lexical order.
func expandPaths(rootDir string, category Category, declared []string) ([]DependencyFile, error) {
	var files []DependencyFile

	for _, p := range declared {
		if err := checkRelPath(p); err != nil {
			return nil, err
		}

		full := filepath.Join(rootDir, filepath.FromSlash(p))
		info, err := os.Stat(full)
		if err != nil {
			return nil, configErrf("%s path %q not found under %s", category, p, rootDir)
		}

		if !info.IsDir() {
			files = append(files, DependencyFile{
				Category:    category,
				RelPath:     path.Clean(p),
				PageVisible: category != CategoryFixture,
			})
			continue
		}

		expanded, err := walkDir(rootDir, full, category)
		if err != nil {
			return nil, err
		}
		files = append(files, expanded...)
	}

	return files, nil
}

// walkDir collects the matching files under dir. Sorting happens on the
// collected relative paths, not on filesystem iteration order, so the
// manifest is stable across platforms.
func walkDir(rootDir, dir string, category Category) ([]DependencyFile, error) {
	var rels []string

	err := filepath.WalkDir(dir, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		// Fixtures may be any file type; everything else must be JavaScript.
		if category != CategoryFixture && !strings.EqualFold(filepath.Ext(p), ".js") {
			return nil
		}
		rel, err := filepath.Rel(rootDir, p)
		if err != nil {
			return err
		}
		rels = append(rels, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, configErrf("walk %s directory %q: %v", category, dir, err)
	}

	sort.Slice(rels, func(i, j int) bool {
		return strings.ToLower(rels[i]) < strings.ToLower(rels[j])
	})

	files := make([]DependencyFile, len(rels))
	for i, rel := range rels {
		files[i] = DependencyFile{
			Category:    category,
			RelPath:     rel,
			PageVisible: category != CategoryFixture,
		}
	}
	return files, nil
}

// checkRelPath rejects absolute paths and any up-level reference, so no
// manifest entry can escape the description root.
func checkRelPath(p string) error {
	if p == "" {
		return configErrf("empty dependency path")
	}
	if path.IsAbs(p) || filepath.IsAbs(p) {
		return configErrf("dependency path %q must be relative", p)
	}
	for _, part := range strings.Split(filepath.ToSlash(p), "/") {
		if part == ".." {
			return configErrf("dependency path %q contains an up-level reference", p)
		}
	}
	return nil
}

// applyPageVisibility computes PageVisible for every non-fixture entry.
// include_in_page strictly overrides exclude_from_page, never the
// reverse.
func applyPageVisibility(files []DependencyFile, exclude, include []string) {
	for i := range files {
		if files[i].Category == CategoryFixture {
			continue
		}
		if matchAny(exclude, files[i].RelPath) {
			files[i].PageVisible = false
		}
		if matchAny(include, files[i].RelPath) {
			files[i].PageVisible = true
		}
	}
}

// matchAny matches rel against glob patterns. Patterns without a slash
// also match against the base name, so "*.min.js" excludes minified
// files anywhere in the tree.
func matchAny(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if ok, err := path.Match(pattern, rel); err == nil && ok {
			return true
		}
		if !strings.Contains(pattern, "/") {
			if ok, err := path.Match(pattern, path.Base(rel)); err == nil && ok {
				return true
			}
		}
	}
	return false
}

// PathsByCategory returns the relative paths of every manifest entry in
// the given category, in manifest order.
func (d *Description) PathsByCategory(category Category) []string {
	var out []string
	for _, f := range d.Files {
		if f.Category == category {
			out = append(out, f.RelPath)
		}
	}
	return out
}

// Lookup returns the absolute filesystem path for a manifest entry, or
// ok=false if rel is not part of the manifest. Only manifest entries
// are ever served.
func (d *Description) Lookup(rel string) (full string, category Category, ok bool) {
	rel = path.Clean(rel)
	for _, f := range d.Files {
		if f.RelPath == rel {
			return filepath.Join(d.RootDir, filepath.FromSlash(rel)), f.Category, true
		}
	}
	return "", "", false
}
