package render

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates builds the self-contained document for a request.
type Templates struct {
	byType map[TemplateType]*template.Template
}

type documentData struct {
	Script string
	Info   string
	Count  int
}

// DefaultTemplates returns the embedded p5 and svg templates.
func DefaultTemplates() *Templates {
	t, err := parseTemplates(map[TemplateType]string{
		TemplateP5:  "templates/p5.html",
		TemplateSVG: "templates/svg.html",
	})
	if err != nil {
		panic(fmt.Sprintf("render: embedded templates: %v", err))
	}
	return t
}

// NewTemplates builds Templates from in-memory sources. Each source sees
// .Script (raw), .Info (token info JSON), and .Count.
func NewTemplates(sources map[TemplateType]string) (*Templates, error) {
	t := &Templates{byType: make(map[TemplateType]*template.Template, len(sources))}
	for typ, src := range sources {
		parsed, err := template.New(typ.String()).Option("missingkey=error").Parse(src)
		if err != nil {
			return nil, fmt.Errorf("render: parse %s template: %w", typ, err)
		}
		t.byType[typ] = parsed
	}
	return t, nil
}

func parseTemplates(files map[TemplateType]string) (*Templates, error) {
	sources := make(map[TemplateType]string, len(files))
	for typ, name := range files {
		data, err := templateFS.ReadFile(name)
		if err != nil {
			return nil, err
		}
		sources[typ] = string(data)
	}
	return NewTemplates(sources)
}

// Build injects the script, the token info, and the count into the
// template selected by the request.
func (t *Templates) Build(req Request) (string, error) {
	tmpl, ok := t.byType[req.Template]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, req.Template)
	}

	info, err := json.Marshal(req.Token)
	if err != nil {
		return "", fmt.Errorf("render: encode token info: %w", err)
	}

	var b strings.Builder
	err = tmpl.Execute(&b, documentData{
		Script: req.Script,
		Info:   string(info),
		Count:  req.Count,
	})
	if err != nil {
		return "", fmt.Errorf("render: build %s document: %w", req.Template, err)
	}
	return b.String(), nil
}
