package report

import (
	"bytes"
	"fmt"
	"html/template"
	"path/filepath"
	"time"

	"scribe/internal/fileutil"
	"scribe/internal/runstate"
	"scribe/internal/stats"
	"scribe/internal/steps"
)

// FileName is the report written into the run directory.
const FileName = "report.html"

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Scribe run {{.Summary.RunID}}</title>
<style>
body { font-family: sans-serif; margin: 2rem; color: #222; }
table { border-collapse: collapse; margin: 1rem 0; }
th, td { border: 1px solid #ccc; padding: 0.4rem 0.7rem; text-align: left; vertical-align: top; }
th { background: #f0f0f0; }
.status-completed { color: #1a7f37; }
.status-failed { color: #b42318; }
.status-skipped { color: #777; }
.muted { color: #777; font-size: 0.9em; }
.description { max-width: 48rem; }
</style>
</head>
<body>
<h1>Scribe run report</h1>
<p class="muted">Run {{.Summary.RunID}} &middot; status {{.Summary.Status}} &middot; generated {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}</p>

<h2>Summary</h2>
<table>
<tr><th>Total items</th><td>{{.Summary.Total}}</td></tr>
<tr><th>Completed</th><td>{{.Summary.Completed}}</td></tr>
<tr><th>Failed</th><td>{{.Summary.Failed}}</td></tr>
<tr><th>Skipped</th><td>{{.Summary.Skipped}}</td></tr>
{{- if .Summary.Remaining}}
<tr><th>Remaining</th><td>{{.Summary.Remaining}}</td></tr>
{{- end}}
<tr><th>Elapsed</th><td>{{.Summary.Elapsed}}</td></tr>
{{- if .Summary.ItemsPerSecond}}
<tr><th>Throughput</th><td>{{printf "%.2f" .Summary.ItemsPerSecond}} items/s</td></tr>
{{- end}}
</table>

{{- if .Summary.Producers}}
<h2>Producers</h2>
<table>
<tr><th>Producer</th><th>Results</th><th>Cached</th><th>Avg duration</th></tr>
{{- range .Summary.Producers}}
<tr><td>{{.Producer}}</td><td>{{.Results}}</td><td>{{.Cached}}</td><td>{{.AvgDuration}}</td></tr>
{{- end}}
</table>
{{- end}}

{{- if .Warnings}}
<h2>Classification warnings</h2>
<ul>
{{- range .Warnings}}
<li class="muted">{{.}}</li>
{{- end}}
</ul>
{{- end}}

<h2>Items</h2>
<table>
<tr><th>Source</th><th>Status</th><th>Descriptions</th></tr>
{{- range .Items}}
<tr>
<td>{{.Source}}</td>
<td class="status-{{.Status}}">{{.Status}}{{if .Error}}<br><span class="muted">{{.Error}}</span>{{end}}</td>
<td class="description">
{{- range .Descriptions}}
<p>{{.Text}}<br><span class="muted">{{.Producer}}{{if .Cached}} (cached){{end}}</span></p>
{{- end}}
</td>
</tr>
{{- end}}
</table>
</body>
</html>
`

var page = template.Must(template.New("report").Parse(pageTemplate))

type description struct {
	Text     string
	Producer string
	Cached   bool
}

type itemView struct {
	Source       string
	Status       runstate.ItemStatus
	Error        string
	Descriptions []description
}

type pageData struct {
	Summary     stats.Summary
	Warnings    []string
	Items       []itemView
	GeneratedAt time.Time
}

// Render produces the HTML report for a snapshot.
func Render(manifest runstate.RunManifest, items []runstate.ItemRecord) ([]byte, error) {
	data := pageData{
		Summary:     stats.Compute(manifest, items, time.Now().UTC()),
		Warnings:    manifest.Warnings,
		Items:       make([]itemView, 0, len(items)),
		GeneratedAt: time.Now().UTC(),
	}
	for i := range items {
		item := &items[i]
		view := itemView{
			Source: item.SourcePath,
			Status: item.Status,
		}
		if item.Status == runstate.ItemFailed && item.LastError != nil {
			view.Error = item.LastError.Message
		}
		for _, entry := range item.ResultsFor(steps.Describe) {
			view.Descriptions = append(view.Descriptions, description{
				Text:     entry.Payload,
				Producer: entry.Producer,
				Cached:   entry.Cached,
			})
		}
		data.Items = append(data.Items, view)
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

// Write renders the report into the run directory and returns its path. The
// write is atomic so a browser refresh mid-rewrite never sees a torn page.
func Write(runDir string, manifest runstate.RunManifest, items []runstate.ItemRecord) (string, error) {
	html, err := Render(manifest, items)
	if err != nil {
		return "", err
	}
	path := filepath.Join(runDir, FileName)
	if err := fileutil.WriteFileAtomic(path, html, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
