package coverage

import (
	"reflect"
	"testing"
)

func TestMergePointwiseMaximum(t *testing.T) {
	d := NewData()
	d.Merge("s", map[string][]int{"a.js": {1, 0, NotExecutable}})
	d.Merge("s", map[string][]int{"a.js": {0, 2, NotExecutable}})

	got := d.Files()["a.js"]
	want := []int{1, 2, NotExecutable}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMergeCoveredNeverReverts(t *testing.T) {
	// A line seen covered by any browser stays covered even when a
	// later submission reports it unexecuted.
	d := NewData()
	d.Merge("s", map[string][]int{"a.js": {3}})
	d.Merge("s", map[string][]int{"a.js": {0}})

	if got := d.Files()["a.js"][0]; got != 3 {
		t.Errorf("hits: got %d, want 3", got)
	}
}

func TestMergeCommutative(t *testing.T) {
	x := map[string][]int{"a.js": {1, NotExecutable, 0}}
	y := map[string][]int{"a.js": {0, 2}, "b.js": {1}}

	d1 := NewData()
	d1.Merge("s", x)
	d1.Merge("s", y)

	d2 := NewData()
	d2.Merge("s", y)
	d2.Merge("s", x)

	if !reflect.DeepEqual(d1.Files(), d2.Files()) {
		t.Errorf("merge order changed the result: %v vs %v", d1.Files(), d2.Files())
	}
}

func TestMergeIdempotent(t *testing.T) {
	frag := map[string][]int{"a.js": {1, 0, NotExecutable, 5}}

	d := NewData()
	d.Merge("s", frag)
	once := d.Files()
	d.Merge("s", frag)
	twice := d.Files()

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("replaying a submission changed the totals: %v vs %v", once, twice)
	}
}

func TestMergeGrowsWithUnknownLines(t *testing.T) {
	d := NewData()
	d.Merge("s", map[string][]int{"a.js": {1}})
	d.Merge("s", map[string][]int{"a.js": {0, NotExecutable, 2}})

	got := d.Files()["a.js"]
	want := []int{1, NotExecutable, 2}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestHasSuite(t *testing.T) {
	d := NewData()
	if d.HasSuite("s") {
		t.Error("no submission yet")
	}
	d.Merge("s", nil)
	if !d.HasSuite("s") {
		t.Error("submission not recorded")
	}
}

func TestAddExpectedSrc(t *testing.T) {
	d := NewData()
	d.AddExpectedSrc("src/untested.js")

	files := d.Files()
	if _, ok := files["src/untested.js"]; !ok {
		t.Error("expected src missing from report data")
	}

	// A later submission for the same path is not shadowed.
	d.Merge("s", map[string][]int{"src/untested.js": {1}})
	if got := d.Files()["src/untested.js"]; len(got) != 1 || got[0] != 1 {
		t.Errorf("got %v, want [1]", got)
	}
}

func TestParseSubmission(t *testing.T) {
	body := []byte(`{
		"/suite/s/include/src/a.js": {"lineData": [null, 1, null, 0, 2]},
		"/suite/s/include/src/empty.js": {"lineData": []}
	}`)

	frag, err := ParseSubmission(body)
	if err != nil {
		t.Fatal(err)
	}
	want := []int{1, NotExecutable, 0, 2}
	if got := frag["/suite/s/include/src/a.js"]; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got := frag["/suite/s/include/src/empty.js"]; got != nil {
		t.Errorf("empty lineData: got %v, want nil", got)
	}
}

func TestParseSubmissionMalformed(t *testing.T) {
	if _, err := ParseSubmission([]byte(`[1,2]`)); err == nil {
		t.Fatal("expected error for non-object submission")
	}
}
