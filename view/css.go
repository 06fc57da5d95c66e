package view

import (
	"fmt"
	"strings"

	"github.com/mbolis/dcforms/model"
)

// Field style variants.
const (
	FieldClassic   = "classic"
	FieldUnderline = "underline"
	FieldFloating  = "floating"
)

// Layout variants.
const (
	LayoutSingle    = "single"
	LayoutTwoColumn = "two_column"
	LayoutInline    = "inline"
)

const mobileBreakpoint = "768px"

var defaultWidths = map[model.PopupType]string{
	model.PopupModal:       "500px",
	model.PopupSidebar:     "380px",
	model.PopupBar:         "100%",
	model.PopupMultiStep:   "560px",
	model.PopupSplitScreen: "820px",
}

func baseStyles(t model.PopupType) map[string]string {
	base := map[string]string{
		"box-sizing": "border-box",
		"max-width":  "100vw",
	}
	if w, ok := defaultWidths[t]; ok {
		base["width"] = w
	}
	if t == model.PopupSidebar {
		base["height"] = "100%"
		base["overflow-y"] = "auto"
	}
	return base
}

type cssWriter struct {
	b     strings.Builder
	scope string
}

// rule prefixes every selector in the comma-separated list with the popup scope.
func (w *cssWriter) rule(selectors string, styles map[string]string) {
	if len(styles) == 0 {
		return
	}
	parts := strings.Split(selectors, ",")
	for i, p := range parts {
		parts[i] = w.scope + " " + strings.TrimSpace(p)
	}
	fmt.Fprintf(&w.b, "%s { %s }\n", strings.Join(parts, ", "), StyleString(styles))
}

func (w *cssWriter) raw(s string) {
	w.b.WriteString(s)
}

func nonEmpty(kv ...string) map[string]string {
	m := map[string]string{}
	for i := 0; i+1 < len(kv); i += 2 {
		set(m, kv[i], kv[i+1])
	}
	return m
}

// ScopedCSS returns the stylesheet of one popup. Every rule is scoped to
// #dcf-popup-<id> so several popups can share a page.
func ScopedCSS(p model.Popup) string {
	d := p.Design
	w := &cssWriter{scope: fmt.Sprintf("#dcf-popup-%d", p.ID)}

	w.rule(".dcf-popup-content", BuildPopupStyles(d, baseStyles(p.Type)))
	w.rule(".dcf-popup-overlay", nonEmpty("background-color", d.OverlayColor))
	w.rule("h1, h2, h3, h4, h5, h6", nonEmpty("font-size", d.HeadingFontSize, "color", d.TextColor, "font-family", d.FontFamily))
	w.rule(".dcf-button, .dcf-form button[type=submit]", nonEmpty(
		"background-color", d.ButtonColor,
		"color", d.ButtonTextColor,
		"border-radius", d.ButtonRadius,
	))

	switch p.Type {
	case model.PopupSidebar:
		side := "right"
		if d.Position == "left" {
			side = "left"
		}
		w.rule(".dcf-popup-content", map[string]string{"position": "fixed", "top": "0", side: "0"})
	case model.PopupBar:
		edge := "bottom"
		if d.Position == "top" {
			edge = "top"
		}
		w.rule(".dcf-popup-content", map[string]string{"position": "fixed", "left": "0", edge: "0"})
	case model.PopupSplitScreen:
		w.rule(".dcf-split", map[string]string{"display": "flex"})
		w.rule(".dcf-split-media, .dcf-split-body", map[string]string{"flex": "1 1 50%"})
		w.rule(".dcf-split-media", nonEmpty("background-image", imageURL(d.BackgroundImage), "background-size", "cover", "background-position", "center"))
	}

	writeFieldStyle(w, d)
	writeLayout(w, d)

	w.raw("@media (max-width: " + mobileBreakpoint + ") {\n")
	mobileWidth := d.MobileWidth
	if mobileWidth == "" {
		mobileWidth = "95%"
	}
	if p.Type == model.PopupSidebar {
		mobileWidth = "100%"
	}
	w.rule(".dcf-popup-content", map[string]string{"width": mobileWidth})
	w.rule(".dcf-fields", map[string]string{"grid-template-columns": "1fr", "flex-direction": "column"})
	if p.Type == model.PopupSplitScreen {
		w.rule(".dcf-split", map[string]string{"flex-direction": "column"})
		w.rule(".dcf-split-media", map[string]string{"min-height": "160px"})
	}
	w.raw("}\n")

	return w.b.String()
}

func imageURL(src string) string {
	if src == "" {
		return ""
	}
	return "url('" + strings.ReplaceAll(src, "'", "%27") + "')"
}

func writeFieldStyle(w *cssWriter, d model.Design) {
	inputs := ".dcf-field input, .dcf-field select, .dcf-field textarea"
	switch d.FieldStyle {
	case FieldUnderline:
		w.rule(inputs, map[string]string{
			"border":        "none",
			"border-bottom": "2px solid currentColor",
			"border-radius": "0",
			"background":    "transparent",
			"padding":       "8px 0",
		})
	case FieldFloating:
		w.rule(".dcf-field", map[string]string{"position": "relative"})
		w.rule(inputs, map[string]string{
			"border":        "1px solid #ccc",
			"border-radius": "4px",
			"padding":       "18px 12px 6px",
		})
		w.rule(".dcf-field label", map[string]string{
			"position":       "absolute",
			"top":            "14px",
			"left":           "12px",
			"pointer-events": "none",
			"transition":     "all 0.15s ease",
		})
		w.rule(".dcf-field:focus-within label, .dcf-field.dcf-filled label", map[string]string{
			"top":       "4px",
			"font-size": "11px",
		})
	default:
		w.rule(inputs, map[string]string{
			"border":        "1px solid #ccc",
			"border-radius": "4px",
			"padding":       "8px 12px",
		})
	}
	w.rule(inputs, map[string]string{"width": "100%", "box-sizing": "border-box"})
}

func fieldSelector(name string) string {
	name = strings.Map(func(r rune) rune {
		if r == '_' || r == '-' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, name)
	return `.dcf-field[data-field="` + name + `"]`
}

func writeLayout(w *cssWriter, d model.Design) {
	full := []string{".dcf-field-full", ".dcf-field-textarea"}
	for _, name := range d.FullWidthFields {
		full = append(full, fieldSelector(name))
	}

	switch d.Layout {
	case LayoutTwoColumn:
		w.rule(".dcf-fields", map[string]string{
			"display":               "grid",
			"grid-template-columns": "1fr 1fr",
			"gap":                   "12px",
		})
		w.rule(strings.Join(append(full, ".dcf-submit"), ", "), map[string]string{"grid-column": "1 / -1"})
	case LayoutInline:
		w.rule(".dcf-fields", map[string]string{
			"display":     "flex",
			"flex-wrap":   "wrap",
			"gap":         "8px",
			"align-items": "flex-end",
		})
		w.rule(".dcf-field", map[string]string{"flex": "1 1 180px"})
		w.rule(strings.Join(full, ", "), map[string]string{"flex-basis": "100%"})
	default:
		w.rule(".dcf-fields", map[string]string{"display": "block"})
		w.rule(".dcf-field", map[string]string{"margin-bottom": "12px"})
	}
}
