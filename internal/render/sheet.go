package render

import (
	"html/template"
	"io"
	"time"

	"variazioni/internal/model"
)

// Row is one rendered variation line on the day sheet.
type Row struct {
	Time     string
	AllDay   bool
	Summary  string
	Location string
}

// SheetData feeds the day-sheet template.
type SheetData struct {
	Date        string
	Mode        string
	Value       string
	Rows        []Row
	GeneratedAt string
}

// BuildSheet converts an already filtered and ordered event list into
// template data. The caller runs the identity pipeline first; this layer
// only presents.
func BuildSheet(events []model.Event, date, mode, value string) SheetData {
	rows := make([]Row, 0, len(events))
	for _, ev := range events {
		row := Row{
			Summary:  ev.Summary,
			Location: ev.Location,
		}
		if ev.Start.Kind == model.StampTimed {
			row.Time = ev.Start.At.Format("15:04")
		} else {
			row.AllDay = true
		}
		rows = append(rows, row)
	}
	return SheetData{
		Date:        date,
		Mode:        mode,
		Value:       value,
		Rows:        rows,
		GeneratedAt: time.Now().Format(time.RFC3339),
	}
}

// sheetTmpl is the printable day sheet. The root element exposes
// data-ready="true" once rendered so the screenshot capture knows when to
// shoot.
var sheetTmpl = template.Must(template.New("sheet").Parse(`<!DOCTYPE html>
<html lang="it">
<head>
<meta charset="utf-8">
<title>Variazioni {{.Date}}</title>
<style>
body { font-family: sans-serif; margin: 2rem; }
h1 { font-size: 1.4rem; }
.meta { color: #555; margin-bottom: 1rem; }
table { border-collapse: collapse; width: 100%; }
td { padding: .4rem .6rem; border-bottom: 1px solid #ddd; vertical-align: top; }
td.time { white-space: nowrap; font-weight: bold; width: 8rem; }
.empty { color: #777; font-style: italic; }
</style>
</head>
<body data-ready="true">
<h1>Variazioni orario {{.Date}}</h1>
<div class="meta">{{if .Value}}{{.Mode}}: {{.Value}}{{else}}tutte le classi{{end}} · generato {{.GeneratedAt}}</div>
{{if .Rows}}
<table>
{{range .Rows}}<tr>
<td class="time">{{if .AllDay}}tutto il giorno{{else}}{{.Time}}{{end}}</td>
<td>{{.Summary}}{{if .Location}} ({{.Location}}){{end}}</td>
</tr>
{{end}}</table>
{{else}}
<p class="empty">Nessuna variazione per questa giornata.</p>
{{end}}
</body>
</html>
`))

// RenderSheet writes the day-sheet HTML for the given data.
func RenderSheet(w io.Writer, data SheetData) error {
	return sheetTmpl.Execute(w, data)
}
