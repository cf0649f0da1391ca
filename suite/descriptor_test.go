package suite

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// writeTree creates files under a temp root. Paths are slash-separated
// relative paths; contents are irrelevant to resolution.
func writeTree(t *testing.T, paths ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, p := range paths {
		full := filepath.Join(root, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("// "+p+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func parse(t *testing.T, root, doc string) (*Description, error) {
	t.Helper()
	return Parse([]byte(doc), root)
}

func mustParse(t *testing.T, root, doc string) *Description {
	t.Helper()
	d, err := parse(t, root, doc)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

const minimalDoc = `
test_suite_name: adder
test_runner: jasmine
src_paths:
    - src
spec_paths:
    - spec
`

func TestParseMinimal(t *testing.T) {
	root := writeTree(t, "src/adder.js", "spec/adder_spec.js")
	d := mustParse(t, root, minimalDoc)

	if d.Name != "adder" {
		t.Errorf("Name: got %q, want %q", d.Name, "adder")
	}
	if d.TestRunner != "jasmine" {
		t.Errorf("TestRunner: got %q, want %q", d.TestRunner, "jasmine")
	}
	want := []DependencyFile{
		{Category: CategorySrc, RelPath: "src/adder.js", PageVisible: true},
		{Category: CategorySpec, RelPath: "spec/adder_spec.js", PageVisible: true},
	}
	if !reflect.DeepEqual(d.Files, want) {
		t.Errorf("Files: got %+v, want %+v", d.Files, want)
	}
}

func TestManifestOrder(t *testing.T) {
	// Declaration order for declared entries, case-insensitive lexical
	// order within expanded directories, independent of filesystem
	// iteration order.
	root := writeTree(t,
		"lib/Zeta.js", "lib/alpha.js", "lib/sub/beta.js",
		"single.js",
		"src/b.js", "src/a.js",
		"spec/spec.js",
	)
	d := mustParse(t, root, `
test_suite_name: ordered
test_runner: jasmine
lib_paths:
    - single.js
    - lib
src_paths:
    - src
spec_paths:
    - spec
`)

	got := d.PathsByCategory(CategoryLib)
	want := []string{"single.js", "lib/alpha.js", "lib/sub/beta.js", "lib/Zeta.js"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("lib order: got %v, want %v", got, want)
	}

	gotSrc := d.PathsByCategory(CategorySrc)
	wantSrc := []string{"src/a.js", "src/b.js"}
	if !reflect.DeepEqual(gotSrc, wantSrc) {
		t.Errorf("src order: got %v, want %v", gotSrc, wantSrc)
	}
}

func TestScalarPromotedToList(t *testing.T) {
	root := writeTree(t, "src/a.js", "spec/s.js")
	d := mustParse(t, root, `
test_suite_name: scalar
test_runner: jasmine
src_paths: src
spec_paths: spec
`)
	if got := d.PathsByCategory(CategorySrc); len(got) != 1 {
		t.Errorf("src paths: got %v, want one entry", got)
	}
}

func TestPageVisibility(t *testing.T) {
	root := writeTree(t, "src/keep.js", "src/skip.min.js", "src/need.min.js", "spec/s.js")
	d := mustParse(t, root, `
test_suite_name: vis
test_runner: jasmine
src_paths:
    - src
spec_paths:
    - spec
exclude_from_page:
    - "*.min.js"
include_in_page:
    - src/need.min.js
`)

	visible := map[string]bool{}
	for _, f := range d.Files {
		visible[f.RelPath] = f.PageVisible
	}
	if !visible["src/keep.js"] {
		t.Error("keep.js should be page visible")
	}
	if visible["src/skip.min.js"] {
		t.Error("skip.min.js should be excluded from the page")
	}
	// Matched by both patterns: include always wins.
	if !visible["src/need.min.js"] {
		t.Error("need.min.js should be included despite matching the exclude pattern")
	}
}

func TestPagePatternMatching(t *testing.T) {
	// Patterns without a slash also match the base name, so "*.min.js"
	// excludes minified files at any depth. Patterns with a slash match
	// the full relative path only.
	root := writeTree(t, "src/app.js", "src/vendor/deep.min.js", "spec/s.js")

	d := mustParse(t, root, `
test_suite_name: base
test_runner: jasmine
src_paths:
    - src
spec_paths:
    - spec
exclude_from_page:
    - "*.min.js"
`)
	for _, f := range d.Files {
		if f.RelPath == "src/vendor/deep.min.js" && f.PageVisible {
			t.Error("slash-less pattern should match the base name at any depth")
		}
	}

	d = mustParse(t, root, `
test_suite_name: full
test_runner: jasmine
src_paths:
    - src
spec_paths:
    - spec
exclude_from_page:
    - "vendor/*.min.js"
`)
	for _, f := range d.Files {
		if f.RelPath == "src/vendor/deep.min.js" && !f.PageVisible {
			t.Error("slashed pattern must match the full relative path, not a suffix")
		}
	}
}

func TestFixturesNeverPageVisible(t *testing.T) {
	root := writeTree(t, "src/a.js", "spec/s.js", "fixtures/data.json")
	d := mustParse(t, root, `
test_suite_name: fix
test_runner: jasmine
src_paths:
    - src
spec_paths:
    - spec
fixture_paths:
    - fixtures
`)
	for _, f := range d.Files {
		if f.Category == CategoryFixture && f.PageVisible {
			t.Errorf("fixture %s should not be page visible", f.RelPath)
		}
	}
	if got := d.PathsByCategory(CategoryFixture); len(got) != 1 || got[0] != "fixtures/data.json" {
		t.Errorf("fixture paths: got %v", got)
	}
}

func TestUpLevelReferenceRejected(t *testing.T) {
	root := writeTree(t, "src/a.js", "spec/s.js")
	_, err := parse(t, root, `
test_suite_name: escape
test_runner: jasmine
src_paths:
    - ../outside
spec_paths:
    - spec
`)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("got %v, want ConfigError", err)
	}
}

func TestInvalidDescriptions(t *testing.T) {
	root := writeTree(t, "src/a.js", "spec/s.js")
	cases := []struct {
		name string
		doc  string
	}{
		{"missing name", "test_runner: jasmine\nsrc_paths: src\nspec_paths: spec\n"},
		{"unsafe name", "test_suite_name: a/b\ntest_runner: jasmine\nsrc_paths: src\nspec_paths: spec\n"},
		{"unsupported runner", "test_suite_name: x\ntest_runner: mocha\nsrc_paths: src\nspec_paths: spec\n"},
		{"missing src", "test_suite_name: x\ntest_runner: jasmine\nspec_paths: spec\n"},
		{"missing spec", "test_suite_name: x\ntest_runner: jasmine\nsrc_paths: src\n"},
		{"absolute path", "test_suite_name: x\ntest_runner: jasmine\nsrc_paths: /etc\nspec_paths: spec\n"},
		{"nonexistent path", "test_suite_name: x\ntest_runner: jasmine\nsrc_paths: missing\nspec_paths: spec\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parse(t, root, tc.doc)
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("got %v, want ConfigError", err)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	root := writeTree(t, "src/a.js", "spec/s.js", "not-listed.js")
	d := mustParse(t, root, minimalDoc)

	if _, _, ok := d.Lookup("src/adder.js"); ok {
		t.Error("lookup of unlisted path should fail")
	}

	d = mustParse(t, root, `
test_suite_name: lk
test_runner: jasmine
src_paths:
    - src
spec_paths:
    - spec
`)
	full, category, ok := d.Lookup("src/a.js")
	if !ok {
		t.Fatal("expected lookup to succeed")
	}
	if category != CategorySrc {
		t.Errorf("category: got %q, want %q", category, CategorySrc)
	}
	if want := filepath.Join(root, "src", "a.js"); full != want {
		t.Errorf("full path: got %q, want %q", full, want)
	}
	if _, _, ok := d.Lookup("not-listed.js"); ok {
		t.Error("unlisted file must not resolve")
	}
}
