package view

import (
	"fmt"
	"html"
	"html/template"
	"regexp"
	"strconv"
	"strings"

	"github.com/mbolis/dcforms/model"
)

type ContentKind int

const (
	ContentEmpty ContentKind = iota
	ContentSteps
	ContentHTML
	ContentForm
)

const NoContentMessage = "No content available."

// Content is what a popup body resolves to. Forms are never rendered inline: they
// become placeholders the client hydrates with dcf_get_form_html.
type Content struct {
	Kind   ContentKind
	Steps  []model.PopupStep
	HTML   template.HTML
	FormID int
	// Every form referenced by the content, in order of appearance.
	FormIDs []int
}

var reFormShortcode = regexp.MustCompile(`\[dcf_form\s+id\s*=\s*["']?(\d+)["']?\s*\]`)

// ResolveContent picks the first of: editor steps or blocks, the raw content string,
// the bound form id. Nothing at all yields ContentEmpty.
func ResolveContent(c model.PopupContent) Content {
	switch {
	case len(c.Steps) > 0:
		out := Content{Kind: ContentSteps, Steps: c.Steps}
		for _, s := range c.Steps {
			out.FormIDs = appendBlockForms(out.FormIDs, s.Blocks)
		}
		return out

	case len(c.Blocks) > 0:
		return Content{
			Kind:    ContentSteps,
			Steps:   []model.PopupStep{{ID: "step-1", Blocks: c.Blocks}},
			FormIDs: appendBlockForms(nil, c.Blocks),
		}

	case strings.TrimSpace(c.Content) != "":
		var ids []int
		body := reFormShortcode.ReplaceAllStringFunc(c.Content, func(m string) string {
			id, _ := strconv.Atoi(reFormShortcode.FindStringSubmatch(m)[1])
			ids = append(ids, id)
			return string(FormPlaceholder(id))
		})
		return Content{Kind: ContentHTML, HTML: template.HTML(body), FormIDs: ids}

	case c.FormID > 0:
		return Content{Kind: ContentForm, FormID: c.FormID, FormIDs: []int{c.FormID}}
	}
	return Content{Kind: ContentEmpty}
}

func appendBlockForms(ids []int, blocks []model.Block) []int {
	for _, b := range blocks {
		if b.Type == "form" && b.FormID > 0 {
			ids = append(ids, b.FormID)
		}
	}
	return ids
}

// FormPlaceholder is replaced client-side by the rendered form.
func FormPlaceholder(formID int) template.HTML {
	return template.HTML(fmt.Sprintf(
		`<div class="dcf-form-placeholder" data-form-id="%d"><span class="dcf-loading">Loading form...</span></div>`,
		formID,
	))
}

func safeURL(u string) string {
	u = strings.TrimSpace(u)
	lower := strings.ToLower(u)
	for _, prefix := range []string{"https://", "http://", "/", "#", "mailto:", "tel:"} {
		if strings.HasPrefix(lower, prefix) {
			return u
		}
	}
	return "#"
}

func blockStyle(style map[string]string) string {
	if len(style) == 0 {
		return ""
	}
	m := map[string]string{}
	for k, v := range style {
		set(m, Kebab(k), v)
	}
	return ` style="` + html.EscapeString(StyleString(m)) + `"`
}

// RenderBlock renders one editor block. Unknown block types render nothing.
func RenderBlock(b model.Block) template.HTML {
	style := blockStyle(b.Style)
	text := html.EscapeString(b.Content)

	switch b.Type {
	case "heading":
		level := b.Level
		if level < 1 || level > 6 {
			level = 2
		}
		return template.HTML(fmt.Sprintf(`<h%d class="dcf-block dcf-heading"%s>%s</h%d>`, level, style, text, level))
	case "text":
		return template.HTML(`<p class="dcf-block dcf-text"` + style + `>` + strings.ReplaceAll(text, "\n", "<br>") + `</p>`)
	case "html":
		// Authored by administrators in the visual editor.
		return template.HTML(`<div class="dcf-block dcf-html"` + style + `>` + b.Content + `</div>`)
	case "image":
		if b.URL == "" {
			return ""
		}
		return template.HTML(`<img class="dcf-block dcf-image" src="` + html.EscapeString(safeURL(b.URL)) + `" alt="` + text + `"` + style + `>`)
	case "button":
		action := b.Action
		switch action {
		case "next", "prev", "close", "link":
		default:
			action = "close"
		}
		attrs := ` data-action="` + action + `"`
		if action == "link" {
			attrs += ` data-url="` + html.EscapeString(safeURL(b.URL)) + `"`
		}
		return template.HTML(`<button type="button" class="dcf-block dcf-button"` + attrs + style + `>` + text + `</button>`)
	case "form":
		if b.FormID <= 0 {
			return ""
		}
		return FormPlaceholder(b.FormID)
	case "spacer":
		h := "20px"
		if v := cssValue(b.Style["height"]); v != "" {
			h = v
		}
		return template.HTML(`<div class="dcf-block dcf-spacer" style="height: ` + html.EscapeString(h) + `;"></div>`)
	}
	return ""
}

type stepView struct {
	ID      string
	Title   string
	Index   int
	Blocks  []model.Block
	Visible bool
}

// StepID is the id a step renders with: its own, or step-N for steps saved without one.
func StepID(s model.PopupStep, i int) string {
	if s.ID != "" {
		return s.ID
	}
	return "step-" + strconv.Itoa(i+1)
}

// StepVisibility reports, by index, whether each step is displayed. Exactly one step
// is visible: the first whose id is active, the first step otherwise.
func StepVisibility(steps []model.PopupStep, active string) []bool {
	vis := make([]bool, len(steps))
	if len(steps) == 0 {
		return vis
	}
	shown := 0
	for i, s := range steps {
		if active != "" && StepID(s, i) == active {
			shown = i
			break
		}
	}
	vis[shown] = true
	return vis
}

func stepViews(steps []model.PopupStep, active string) []stepView {
	vis := StepVisibility(steps, active)
	out := make([]stepView, len(steps))
	for i, s := range steps {
		out[i] = stepView{ID: StepID(s, i), Title: s.Title, Index: i, Blocks: s.Blocks, Visible: vis[i]}
	}
	return out
}
