package suite

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

// ResultsDivID is the CSS ID of the element that receives the encoded
// test results. The browser driver polls this element's data-status
// attribute for the completion marker.
const ResultsDivID = "js_test_tool_results"

// StatusComplete is the data-status value the in-page reporter sets
// once every result has been recorded.
const StatusComplete = "complete"

// RunnerAssets holds the in-page reporter scripts served under /runner/.
//
//go:embed runner/*.js
var RunnerAssets embed.FS

// Renderer generates runner pages for suite descriptions.
//
// The zero value renders the JSON-reporting page used for automated
// runs. DevMode selects the live-HTML reporter variant instead: results
// stay in the page for a human, and no completion payload is produced.
type Renderer struct {
	DevMode bool
}

// reporterScripts maps a test runner name to its reporter asset,
// per rendering mode.
var reporterScripts = map[string]map[bool]string{
	"jasmine": {
		false: "/runner/jasmine_json_reporter.js",
		true:  "/runner/jasmine_html_reporter.js",
	},
}

var pageTmpl = template.Must(template.New("runner").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Name}} &mdash; JavaScript test suite</title>
</head>
<body>
<div id="{{.DivID}}" data-status="running"></div>
<script type="text/javascript">
// Per-run session context. In-page code reports results and uncaught
// errors through this object instead of a shared global namespace.
window.jsTestTool = (function () {
    "use strict";
    var results = [];
    function esc(value) {
        return encodeURIComponent(String(value === undefined ? "" : value));
    }
    return {
        suiteName: "{{.Name}}",
        recordResult: function (group, name, status, detail) {
            results.push({
                testGroup: esc(group),
                testName: esc(name),
                testStatus: esc(status),
                testDetail: esc(detail)
            });
        },
        finalize: function () {
            var div = document.getElementById("{{.DivID}}");
            div.textContent = JSON.stringify(results);
            div.setAttribute("data-status", "{{.Done}}");
            if (window.jscoverage_report) {
                window.jscoverage_report("{{.Name}}");
            }
        }
    };
}());
window.onerror = function (message) {
    window.jsTestTool.recordResult("", "uncaught exception", "error", message);
    return false;
};
</script>
{{range .LibPaths}}<script type="text/javascript" src="/suite/{{$.Name}}/include/{{.}}"></script>
{{end}}
{{range .SrcPaths}}<script type="text/javascript" src="/suite/{{$.Name}}/include/{{.}}"></script>
{{end}}
{{range .SpecPaths}}<script type="text/javascript" src="/suite/{{$.Name}}/include/{{.}}"></script>
{{end}}
<script type="text/javascript" src="{{.ReporterScript}}"></script>
</body>
</html>
`))

type pageContext struct {
	Name           string
	DivID          string
	Done           string
	LibPaths       []string
	SrcPaths       []string
	SpecPaths      []string
	ReporterScript string
}

// RenderPage renders the runner page for desc. Only page-visible
// dependencies are injected, lib files before src files before spec
// files, so test code can reference globals defined earlier. Fixture
// files are reachable under /include/ but never injected.
func (r *Renderer) RenderPage(desc *Description) ([]byte, error) {
	scripts, ok := reporterScripts[desc.TestRunner]
	if !ok {
		return nil, fmt.Errorf("suite: no runner page template for %q", desc.TestRunner)
	}

	ctx := pageContext{
		Name:           desc.Name,
		DivID:          ResultsDivID,
		Done:           StatusComplete,
		ReporterScript: scripts[r.DevMode],
	}
	for _, f := range desc.Files {
		if !f.PageVisible {
			continue
		}
		switch f.Category {
		case CategoryLib:
			ctx.LibPaths = append(ctx.LibPaths, f.RelPath)
		case CategorySrc:
			ctx.SrcPaths = append(ctx.SrcPaths, f.RelPath)
		case CategorySpec:
			ctx.SpecPaths = append(ctx.SpecPaths, f.RelPath)
		}
	}

	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, ctx); err != nil {
		return nil, fmt.Errorf("suite: render page for %q: %w", desc.Name, err)
	}
	return buf.Bytes(), nil
}
