package portal

import (
	_ "embed"
	"html/template"
	"io"
)

//go:embed view.gohtml
var viewHTML string

var viewTmpl = template.Must(template.New("portal").Parse(viewHTML))

// RenderHTML writes v as a standalone HTML page.
func RenderHTML(w io.Writer, v View) error {
	return viewTmpl.Execute(w, v)
}
