package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var reportTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	templateContent, err := templateFS.ReadFile("templates/report.html")
	if err != nil {
		// Fallback to built-in template if file not found
		reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for comparison report rendering
type TemplateData struct {
	WorkflowID  string
	FromVersion int
	FromName    string
	ToVersion   int
	ToName      string
	GeneratedAt time.Time
	Summary     string
	Added       []TemplateChange
	Removed     []TemplateChange
	Modified    []TemplateChange
}

// TemplateChange holds one change row for the report
type TemplateChange struct {
	Description string
	Detail      string
}

// RenderReportHTML renders the comparison report template with provided data
func RenderReportHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>Version Comparison</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .change { background: #f5f5f5; padding: 0.5rem 1rem; margin: 0.5rem 0; border-left: 3px solid #333; }
    .added { border-left-color: #2a7; }
    .removed { border-left-color: #c33; }
    .modified { border-left-color: #e90; }
  </style>
</head>
<body>
  <h1>Version Comparison</h1>
  <div class="meta">v{{.FromVersion}} ({{.FromName}}) to v{{.ToVersion}} ({{.ToName}}) | {{.GeneratedAt.Format "Jan 2, 2006"}}</div>
  <p>{{.Summary}}</p>
  {{if .Added}}<h2>Added</h2>{{range .Added}}<div class="change added">{{.Description}}</div>{{end}}{{end}}
  {{if .Removed}}<h2>Removed</h2>{{range .Removed}}<div class="change removed">{{.Description}}</div>{{end}}{{end}}
  {{if .Modified}}<h2>Modified</h2>{{range .Modified}}<div class="change modified">{{.Description}}{{if .Detail}} <em>{{.Detail}}</em>{{end}}</div>{{end}}{{end}}
</body>
</html>`
