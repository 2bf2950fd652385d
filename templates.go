package main

// FieldData feeds the "field" and "preview" templates.
type FieldData struct {
	Rows  int
	Step  int64
	Cells []Cell
}

func newFieldData(cells []Cell, step int64) FieldData {
	rows := 0
	for _, c := range cells {
		if c.Row+1 > rows {
			rows = c.Row + 1
		}
	}
	return FieldData{
		Rows:  rows,
		Step:  step,
		Cells: cells,
	}
}

const templatesSource = `
{{ define "cell-id" }}cell-{{ .ID }}{{ end }}

{{ define "cell" }}
<div id="{{ template "cell-id" . }}" class="cell {{ if .Enabled }}enabled{{ else }}disabled{{ end }}{{ if .Selected }} selected{{ end }}"
	hx-post="ui/cell/{{ .ID }}" hx-trigger="click" hx-swap="outerHTML"></div>
{{ end }}

{{ define "field" }}
<div id="game" class="game-grid" style="grid-auto-flow: column; grid-template-rows: repeat({{ .Rows }}, 1fr)">
{{ range .Cells }}
	{{ template "cell" . }}
{{ end }}
</div>
{{ end }}

{{ define "preview" }}
<div class="preview-grid" data-step="{{ .Step }}" style="grid-auto-flow: column; grid-template-rows: repeat({{ .Rows }}, 1fr)">
{{ range .Cells }}<span class="{{ if .Enabled }}enabled{{ else }}disabled{{ end }}"></span>{{ end }}
</div>
{{ end }}

{{ define "page" }}<!DOCTYPE html>
<html>
<head>
	<meta charset="utf-8">
	<title>Toggle Grid</title>
	<script src="https://unpkg.com/htmx.org@1.9.10"></script>
	<script src="https://unpkg.com/htmx.org@1.9.10/dist/ext/sse.js"></script>
	<style>
		.game-grid, .preview-grid { display: grid; gap: 2px; width: fit-content; }
		.cell { width: 24px; height: 24px; cursor: pointer; }
		.preview-grid span { width: 6px; height: 6px; }
		.enabled { background: #222; }
		.disabled { background: #ddd; }
		.selected { outline: 2px solid #e33; }
	</style>
</head>
<body>
	<div id="game" hx-get="ui/field" hx-trigger="load" hx-swap="outerHTML"></div>
	<button id="saveButton" hx-post="ui/save" hx-target="#game" hx-swap="outerHTML">Save</button>
	<button id="resetButton" hx-post="ui/reset" hx-target="#game" hx-swap="outerHTML">Reset</button>
	<div hx-ext="sse" sse-connect="game/events" sse-swap="grid"></div>
</body>
</html>
{{ end }}
`
