// Package view renders popups and forms to HTML and scoped CSS. Rendering is a pure
// function of the popup configuration, so everything here is testable without a DOM.
package view

import (
	"sort"
	"strings"
	"unicode"

	"github.com/mbolis/dcforms/model"
)

// Kebab converts a camelCase CSS property name to its kebab-case form. A leading
// capital marks a vendor prefix: WebkitTransform becomes -webkit-transform, and
// msTransform becomes -ms-transform.
func Kebab(name string) string {
	if len(name) > 2 && strings.HasPrefix(name, "ms") && unicode.IsUpper(rune(name[2])) {
		name = "M" + name[1:]
	}
	var b strings.Builder
	for _, r := range name {
		if unicode.IsUpper(r) {
			b.WriteByte('-')
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Camel is the inverse of Kebab.
func Camel(prop string) string {
	var b strings.Builder
	up := false
	for _, r := range prop {
		switch {
		case r == '-':
			up = true
		case up:
			b.WriteRune(unicode.ToUpper(r))
			up = false
		default:
			b.WriteRune(r)
		}
	}
	s := b.String()
	if strings.HasPrefix(prop, "-ms-") {
		s = "m" + s[1:]
	}
	return s
}

// cssValue drops characters that could end a declaration or a rule.
func cssValue(v string) string {
	v = strings.Map(func(r rune) rune {
		switch r {
		case ';', '{', '}', '<', '>', '\n', '\r':
			return -1
		}
		return r
	}, v)
	return strings.TrimSpace(v)
}

func set(styles map[string]string, prop, value string) {
	if value = cssValue(value); value != "" {
		styles[prop] = value
	}
}

// BuildPopupStyles merges base with the properties derived from the design and then
// with the raw overrides in d.Style, which win. Keys are kebab-case CSS properties.
func BuildPopupStyles(d model.Design, base map[string]string) map[string]string {
	styles := make(map[string]string, len(base)+len(d.Style)+8)
	for k, v := range base {
		set(styles, k, v)
	}

	switch d.BackgroundType {
	case "gradient":
		if d.GradientStart != "" && d.GradientEnd != "" {
			dir := d.GradientDirection
			if dir == "" {
				dir = "to bottom"
			}
			set(styles, "background", "linear-gradient("+dir+", "+d.GradientStart+", "+d.GradientEnd+")")
		}
	case "image":
		if d.BackgroundImage != "" {
			set(styles, "background-image", "url('"+strings.ReplaceAll(d.BackgroundImage, "'", "%27")+"')")
			set(styles, "background-size", "cover")
			set(styles, "background-position", "center")
		}
	default:
		set(styles, "background-color", d.BackgroundColor)
	}

	set(styles, "color", d.TextColor)
	set(styles, "font-family", d.FontFamily)
	set(styles, "font-size", d.FontSize)
	set(styles, "width", d.Width)
	set(styles, "padding", d.Padding)
	set(styles, "border-radius", d.BorderRadius)

	for k, v := range d.Style {
		set(styles, Kebab(k), v)
	}
	return styles
}

// StyleString serializes styles as declarations sorted by property.
func StyleString(styles map[string]string) string {
	keys := make([]string, 0, len(styles))
	for k := range styles {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(styles[k])
		b.WriteByte(';')
	}
	return b.String()
}

// ParseStyle reads a declaration list back into a property map.
func ParseStyle(css string) map[string]string {
	styles := map[string]string{}
	for _, decl := range strings.Split(css, ";") {
		prop, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		value = strings.TrimSpace(value)
		if prop != "" && value != "" {
			styles[prop] = value
		}
	}
	return styles
}
