package template

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"sunbeam/internal/core"
	"sunbeam/pkg/logging"
)

// Renderer renders configuration file templates from a template directory
// against a render context. Templates are standard Go text templates with
// the sprig function map available; the context namespaces are addressed as
// top-level fields, e.g. {{ .amqp.transport_url }}.
type Renderer struct {
	templateDir string
}

// NewRenderer creates a renderer reading templates from templateDir.
func NewRenderer(templateDir string) *Renderer {
	return &Renderer{templateDir: templateDir}
}

// Render loads and renders the named template. The template name is a file
// name relative to the template directory.
func (r *Renderer) Render(templateName string, ctx core.RenderContext) ([]byte, error) {
	path := filepath.Join(r.templateDir, templateName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", path, err)
	}

	tmpl, err := template.New(templateName).
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=zero").
		Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", templateName, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]map[string]interface{}(ctx)); err != nil {
		return nil, fmt.Errorf("failed to render template %s: %w", templateName, err)
	}

	logging.Debug("Template", "Rendered %s (%d bytes)", templateName, buf.Len())
	return buf.Bytes(), nil
}

// TemplateFor returns the template name for a container config file: the
// declared template when set, otherwise the file's basename with a ".tpl"
// suffix.
func TemplateFor(config core.ContainerConfigFile) string {
	if config.Template != "" {
		return config.Template
	}
	return filepath.Base(config.Path) + ".tpl"
}
