package coverage

import (
	"bytes"
	"encoding/xml"
	"strings"
	"testing"
)

func reportData() *Data {
	d := NewData()
	d.AddExpectedSrc("src/untouched.js")
	d.Merge("s", map[string][]int{
		"src/a.js":   {1, 0, NotExecutable, 2},
		"other/b.js": {0, 0},
	})
	return d
}

func TestWriteXML(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXML(&buf, reportData()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	var doc struct {
		XMLName  xml.Name `xml:"coverage"`
		LineRate string   `xml:"line-rate,attr"`
		Packages []struct {
			Name    string `xml:"name,attr"`
			Classes []struct {
				Filename string `xml:"filename,attr"`
				LineRate string `xml:"line-rate,attr"`
				Lines    []struct {
					Number int `xml:"number,attr"`
					Hits   int `xml:"hits,attr"`
				} `xml:"lines>line"`
			} `xml:"classes>class"`
		} `xml:"packages>package"`
	}
	if err := xml.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("report is not valid XML: %v\n%s", err, out)
	}

	// 5 executable lines, 2 covered.
	if doc.LineRate != "0.4000" {
		t.Errorf("line-rate: got %q, want %q", doc.LineRate, "0.4000")
	}
	if len(doc.Packages) != 2 {
		t.Fatalf("packages: got %d, want 2 (one per directory)", len(doc.Packages))
	}
	if doc.Packages[0].Name != "other" || doc.Packages[1].Name != "src" {
		t.Errorf("package order: got %q, %q", doc.Packages[0].Name, doc.Packages[1].Name)
	}

	var aLines int
	for _, pkg := range doc.Packages {
		for _, class := range pkg.Classes {
			if class.Filename == "src/a.js" {
				aLines = len(class.Lines)
				for _, l := range class.Lines {
					if l.Number == 3 {
						t.Error("non-executable line 3 should not appear")
					}
				}
			}
		}
	}
	if aLines != 3 {
		t.Errorf("src/a.js lines: got %d, want 3", aLines)
	}
	if !strings.Contains(out, "src/untouched.js") {
		t.Error("expected-but-unreported src missing from the report")
	}
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, reportData()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	if !strings.Contains(out, "40.0") {
		t.Errorf("total percent missing: %s", out)
	}
	for _, want := range []string{"src/a.js", "other/b.js", "src/untouched.js"} {
		if !strings.Contains(out, want) {
			t.Errorf("file %s missing from report", want)
		}
	}
	if !strings.Contains(out, `class="covered"`) || !strings.Contains(out, `class="uncovered"`) {
		t.Error("line classes missing from report")
	}
}
