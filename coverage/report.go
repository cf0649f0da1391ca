package coverage

import (
	"encoding/xml"
	"fmt"
	"html/template"
	"io"
	"path"
	"sort"
)

// fileSummary is the per-file view shared by both report writers.
type fileSummary struct {
	Path    string
	Lines   []int
	Covered int
	Total   int
}

func (f fileSummary) Rate() float64 {
	if f.Total == 0 {
		return 0
	}
	return float64(f.Covered) / float64(f.Total)
}

func summarize(files map[string][]int) []fileSummary {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := make([]fileSummary, 0, len(paths))
	for _, p := range paths {
		s := fileSummary{Path: p, Lines: files[p]}
		for _, hits := range s.Lines {
			if hits == NotExecutable {
				continue
			}
			s.Total++
			if hits > 0 {
				s.Covered++
			}
		}
		out = append(out, s)
	}
	return out
}

// Cobertura-style XML document.
type coberturaCoverage struct {
	XMLName  xml.Name           `xml:"coverage"`
	LineRate string             `xml:"line-rate,attr"`
	Packages []coberturaPackage `xml:"packages>package"`
}

type coberturaPackage struct {
	Name     string           `xml:"name,attr"`
	LineRate string           `xml:"line-rate,attr"`
	Classes  []coberturaClass `xml:"classes>class"`
}

type coberturaClass struct {
	Name     string          `xml:"name,attr"`
	Filename string          `xml:"filename,attr"`
	LineRate string          `xml:"line-rate,attr"`
	Lines    []coberturaLine `xml:"lines>line"`
}

type coberturaLine struct {
	Number int `xml:"number,attr"`
	Hits   int `xml:"hits,attr"`
}

// WriteXML writes a Cobertura-style coverage report for the merged map.
// Files are grouped into one package per directory.
func WriteXML(w io.Writer, data *Data) error {
	summaries := summarize(data.Files())

	byDir := make(map[string][]fileSummary)
	var dirs []string
	for _, s := range summaries {
		dir := path.Dir(s.Path)
		if _, ok := byDir[dir]; !ok {
			dirs = append(dirs, dir)
		}
		byDir[dir] = append(byDir[dir], s)
	}
	sort.Strings(dirs)

	doc := coberturaCoverage{}
	totalCovered, totalLines := 0, 0

	for _, dir := range dirs {
		pkg := coberturaPackage{Name: dir}
		pkgCovered, pkgLines := 0, 0
		for _, s := range byDir[dir] {
			class := coberturaClass{
				Name:     path.Base(s.Path),
				Filename: s.Path,
				LineRate: rateAttr(s.Covered, s.Total),
			}
			for i, hits := range s.Lines {
				if hits == NotExecutable {
					continue
				}
				class.Lines = append(class.Lines, coberturaLine{Number: i + 1, Hits: hits})
			}
			pkg.Classes = append(pkg.Classes, class)
			pkgCovered += s.Covered
			pkgLines += s.Total
		}
		pkg.LineRate = rateAttr(pkgCovered, pkgLines)
		doc.Packages = append(doc.Packages, pkg)
		totalCovered += pkgCovered
		totalLines += pkgLines
	}
	doc.LineRate = rateAttr(totalCovered, totalLines)

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("coverage: write xml report: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("coverage: write xml report: %w", err)
	}
	return nil
}

func rateAttr(covered, total int) string {
	if total == 0 {
		return "0.0"
	}
	return fmt.Sprintf("%.4f", float64(covered)/float64(total))
}

var htmlTmpl = template.Must(template.New("coverage").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>JavaScript coverage</title>
<style>
body{font-family:monospace;margin:2rem}
table{border-collapse:collapse}
td,th{border:1px solid #ccc;padding:2px 8px;text-align:left}
.covered{background:#cfc}
.uncovered{background:#fcc}
</style></head><body>
<h1>JavaScript coverage: {{printf "%.1f" .TotalPercent}}%</h1>
<table>
<tr><th>File</th><th>Covered</th><th>Lines</th><th>%</th></tr>
{{range .Files}}<tr><td>{{.Path}}</td><td>{{.Covered}}</td><td>{{.Total}}</td><td>{{printf "%.1f" .Percent}}</td></tr>
{{end}}
</table>
{{range .Files}}
<h2>{{.Path}}</h2>
<table>
{{range .Rows}}<tr class="{{.Class}}"><td>{{.Number}}</td><td>{{.Hits}}</td></tr>
{{end}}
</table>
{{end}}
</body></html>
`))

type htmlRow struct {
	Number int
	Hits   int
	Class  string
}

type htmlFile struct {
	Path    string
	Covered int
	Total   int
	Percent float64
	Rows    []htmlRow
}

// WriteHTML writes a per-file line coverage report.
func WriteHTML(w io.Writer, data *Data) error {
	summaries := summarize(data.Files())

	view := struct {
		TotalPercent float64
		Files        []htmlFile
	}{}

	totalCovered, totalLines := 0, 0
	for _, s := range summaries {
		f := htmlFile{Path: s.Path, Covered: s.Covered, Total: s.Total, Percent: s.Rate() * 100}
		for i, hits := range s.Lines {
			if hits == NotExecutable {
				continue
			}
			class := "uncovered"
			if hits > 0 {
				class = "covered"
			}
			f.Rows = append(f.Rows, htmlRow{Number: i + 1, Hits: hits, Class: class})
		}
		view.Files = append(view.Files, f)
		totalCovered += s.Covered
		totalLines += s.Total
	}
	if totalLines > 0 {
		view.TotalPercent = 100 * float64(totalCovered) / float64(totalLines)
	}

	if err := htmlTmpl.Execute(w, view); err != nil {
		return fmt.Errorf("coverage: write html report: %w", err)
	}
	return nil
}
