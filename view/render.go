package view

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/mbolis/dcforms/model"
)

// Markup is a rendered popup. CSS is already scoped to the popup's element id.
type Markup struct {
	ID   int           `json:"id"`
	HTML template.HTML `json:"html"`
	CSS  string        `json:"css"`
}

type popupData struct {
	ID             int
	Type           model.PopupType
	Name           string
	Position       string
	Content        Content
	Steps          []stepView
	MediaImage     string
	AutoClose      bool
	AutoCloseDelay int
	NoContent      string
}

const layouts = `
{{define "close"}}<button type="button" class="dcf-popup-close" data-action="close" aria-label="Close">&times;</button>{{end}}

{{define "steps"}}<div class="dcf-steps">
{{- range .Steps}}
<div class="dcf-step" data-step-id="{{.ID}}" data-step-index="{{.Index}}" style="display:{{if .Visible}}block{{else}}none{{end}}">
{{- if .Title}}<h3 class="dcf-step-title">{{.Title}}</h3>{{end}}
{{- range .Blocks}}{{block_html .}}{{end -}}
</div>
{{- end}}
</div>{{end}}

{{define "content"}}
{{- if eq .Content.Kind 1}}{{template "steps" .}}
{{- else if eq .Content.Kind 2}}<div class="dcf-popup-body">{{.Content.HTML}}</div>
{{- else if eq .Content.Kind 3}}<div class="dcf-popup-body">{{form_placeholder .Content.FormID}}</div>
{{- else}}<div class="dcf-popup-body dcf-no-content"><p>{{.NoContent}}</p></div>
{{- end}}{{end}}

{{define "open"}}<div id="dcf-popup-{{.ID}}" class="dcf-popup dcf-popup-{{.Type}}{{if .Position}} dcf-position-{{.Position}}{{end}}" data-popup-id="{{.ID}}" data-popup-type="{{.Type}}"{{if .AutoClose}} data-auto-close="{{.AutoCloseDelay}}"{{end}} style="display:none">{{end}}

{{define "modal"}}{{template "open" .}}
<div class="dcf-popup-overlay" data-action="close"></div>
<div class="dcf-popup-content" role="dialog" aria-modal="true" aria-label="{{.Name}}">
{{template "close"}}
{{template "content" .}}
</div>
</div>{{end}}

{{define "sidebar"}}{{template "open" .}}
<aside class="dcf-popup-content" role="dialog" aria-label="{{.Name}}">
{{template "close"}}
{{template "content" .}}
</aside>
</div>{{end}}

{{define "bar"}}{{template "open" .}}
<div class="dcf-popup-content dcf-bar-inner" role="region" aria-label="{{.Name}}">
{{template "content" .}}
{{template "close"}}
</div>
</div>{{end}}

{{define "multi-step"}}{{template "open" .}}
<div class="dcf-popup-overlay" data-action="close"></div>
<div class="dcf-popup-content" role="dialog" aria-modal="true" aria-label="{{.Name}}">
{{template "close"}}
{{- if gt (len .Steps) 1}}
<ol class="dcf-progress">{{range .Steps}}<li data-step-id="{{.ID}}"{{if .Visible}} class="dcf-current"{{end}}>{{.Index | inc}}</li>{{end}}</ol>
{{- end}}
{{template "content" .}}
</div>
</div>{{end}}

{{define "split-screen"}}{{template "open" .}}
<div class="dcf-popup-overlay" data-action="close"></div>
<div class="dcf-popup-content" role="dialog" aria-modal="true" aria-label="{{.Name}}">
{{template "close"}}
<div class="dcf-split">
<div class="dcf-split-media"{{if .MediaImage}} data-image="{{.MediaImage}}"{{end}}></div>
<div class="dcf-split-body">{{template "content" .}}</div>
</div>
</div>
</div>{{end}}
`

var templates = template.Must(template.New("popup").Funcs(template.FuncMap{
	"block_html":       RenderBlock,
	"form_placeholder": FormPlaceholder,
	"inc":              func(i int) int { return i + 1 },
}).Parse(layouts))

type renderer func(buf *bytes.Buffer, data popupData) error

func templateRenderer(name string) renderer {
	return func(buf *bytes.Buffer, data popupData) error {
		return templates.ExecuteTemplate(buf, name, data)
	}
}

var renderers = map[model.PopupType]renderer{
	model.PopupModal:       templateRenderer("modal"),
	model.PopupSidebar:     templateRenderer("sidebar"),
	model.PopupBar:         templateRenderer("bar"),
	model.PopupMultiStep:   templateRenderer("multi-step"),
	model.PopupSplitScreen: templateRenderer("split-screen"),
}

// Render builds the markup and stylesheet of p. Only multi-step and split-screen
// popups show the step container; the other types render the first step only.
func Render(p model.Popup) (Markup, error) {
	r, ok := renderers[p.Type]
	if !ok {
		return Markup{}, fmt.Errorf("unknown popup type %q", p.Type)
	}

	data := popupData{
		ID:             p.ID,
		Type:           p.Type,
		Name:           p.Name,
		Position:       p.Design.Position,
		Content:        ResolveContent(p.Config),
		MediaImage:     safeImage(p.Design.BackgroundImage),
		AutoClose:      p.Config.AutoClose && p.Config.AutoCloseDelay > 0,
		AutoCloseDelay: p.Config.AutoCloseDelay,
		NoContent:      NoContentMessage,
	}
	if data.Content.Kind == ContentSteps {
		steps := data.Content.Steps
		if !p.Type.HasSteps() {
			steps = steps[:1]
		}
		data.Steps = stepViews(steps, "")
	}

	var buf bytes.Buffer
	if err := r(&buf, data); err != nil {
		return Markup{}, err
	}
	return Markup{ID: p.ID, HTML: template.HTML(buf.String()), CSS: ScopedCSS(p)}, nil
}

// Fallback is shown when a popup cannot be rendered.
func Fallback(p model.Popup) Markup {
	return Markup{
		ID: p.ID,
		HTML: template.HTML(fmt.Sprintf(
			`<div id="dcf-popup-%d" class="dcf-popup dcf-popup-modal" data-popup-id="%d" style="display:none"><div class="dcf-popup-content"><div class="dcf-popup-body dcf-no-content"><p>%s</p></div></div></div>`,
			p.ID, p.ID, NoContentMessage,
		)),
	}
}

func safeImage(src string) string {
	if src == "" {
		return ""
	}
	if u := safeURL(src); u != "#" {
		return u
	}
	return ""
}
