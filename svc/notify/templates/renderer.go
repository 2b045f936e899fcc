// Package templates renders notification content from html/template
// sources embedded in the binary. Each template id defines "<id>.subject"
// and "<id>.html", and optionally "<id>.text". Unknown ids fall back to
// "default".
package templates

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html"
	"html/template"
	"io"
	"io/fs"
	"strings"

	"github.com/a-h/templ"

	emailtpl "github.com/dmitrymomot/courier/pkg/email/templates"
	"github.com/dmitrymomot/courier/svc/notify"
)

// DefaultTemplateID is used when a notification type names no known template.
const DefaultTemplateID = "default"

//go:embed html/*.html
var sources embed.FS

// Renderer implements notify.Renderer.
type Renderer struct {
	tpl *template.Template
}

// Option configures a Renderer.
type Option func(*options)

type options struct {
	overrides []override
}

type override struct {
	fsys     fs.FS
	patterns []string
}

// WithOverrides parses extra template files after the embedded ones, so a
// deployment can add ids or redefine the built-in ones.
func WithOverrides(fsys fs.FS, patterns ...string) Option {
	return func(o *options) {
		o.overrides = append(o.overrides, override{fsys: fsys, patterns: patterns})
	}
}

// New parses the embedded templates and any overrides.
func New(opts ...Option) (*Renderer, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	tpl, err := template.New("notify").ParseFS(sources, "html/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse embedded templates: %w", err)
	}
	for _, ov := range o.overrides {
		if tpl, err = tpl.ParseFS(ov.fsys, ov.patterns...); err != nil {
			return nil, fmt.Errorf("parse template overrides: %w", err)
		}
	}
	return &Renderer{tpl: tpl}, nil
}

// Has reports whether templateID is defined.
func (r *Renderer) Has(templateID string) bool {
	return r.tpl.Lookup(templateID+".html") != nil
}

func (r *Renderer) Render(ctx context.Context, templateID string, data map[string]any) (notify.Rendered, error) {
	if templateID == "" || !r.Has(templateID) {
		templateID = DefaultTemplateID
	}

	subject, err := r.execute(templateID+".subject", data)
	if err != nil {
		return notify.Rendered{}, err
	}
	// Subject and text are plain strings; undo the HTML escaping.
	subject = html.UnescapeString(strings.Join(strings.Fields(subject), " "))

	body, err := emailtpl.Render(ctx, r.page(subject, templateID+".html", data))
	if err != nil {
		return notify.Rendered{}, fmt.Errorf("render %s: %w", templateID, err)
	}

	var text string
	if r.tpl.Lookup(templateID+".text") != nil {
		if text, err = r.execute(templateID+".text", data); err != nil {
			return notify.Rendered{}, err
		}
		text = html.UnescapeString(strings.TrimSpace(text))
	}

	return notify.Rendered{Subject: subject, Body: body, Text: text}, nil
}

// ActionResult renders the page shown after a signed action link is opened.
func (r *Renderer) ActionResult(title, message string) templ.Component {
	return r.page(title, "action_result", map[string]string{"Title": title, "Message": message})
}

// page wraps the named content template in the shared layout.
func (r *Renderer) page(title, name string, data any) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		content, err := r.execute(name, data)
		if err != nil {
			return err
		}
		var footer string
		if m, ok := data.(map[string]any); ok {
			if footer, err = r.execute("footer", m); err != nil {
				return err
			}
		}
		return r.tpl.ExecuteTemplate(w, "layout", map[string]any{
			"Title":   title,
			"Content": template.HTML(content),
			"Footer":  template.HTML(footer),
		})
	})
}

func (r *Renderer) execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.tpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("execute %s: %w", name, err)
	}
	return buf.String(), nil
}

var _ notify.Renderer = (*Renderer)(nil)
