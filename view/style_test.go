package view

import (
	"testing"

	"github.com/mbolis/dcforms/model"
	"github.com/stretchr/testify/assert"
)

func TestKebabCamel(t *testing.T) {
	cases := map[string]string{
		"backgroundColor":  "background-color",
		"color":            "color",
		"borderTopWidth":   "border-top-width",
		"WebkitTransform":  "-webkit-transform",
		"msTransform":      "-ms-transform",
		"msFlexAlign":      "-ms-flex-align",
		"gridTemplateArea": "grid-template-area",
	}
	for camel, kebab := range cases {
		assert.Equal(t, kebab, Kebab(camel), camel)
		assert.Equal(t, camel, Camel(kebab), kebab)
	}
}

func TestBuildPopupStylesRoundTrip(t *testing.T) {
	d := model.Design{
		BackgroundColor: "#fff",
		TextColor:       "#333",
		FontSize:        "16px",
		Width:           "600px",
		BorderRadius:    "8px",
		Style: map[string]string{
			"boxShadow": "0 2px 8px rgba(0,0,0,.2)",
			"width":     "640px",
		},
	}
	styles := BuildPopupStyles(d, map[string]string{"box-sizing": "border-box"})

	assert.Equal(t, "640px", styles["width"], "raw overrides win")
	assert.Equal(t, "#fff", styles["background-color"])
	assert.Equal(t, "border-box", styles["box-sizing"])
	assert.Equal(t, styles, ParseStyle(StyleString(styles)))
}

func TestBuildPopupStylesBackgrounds(t *testing.T) {
	g := BuildPopupStyles(model.Design{BackgroundType: "gradient", GradientStart: "#000", GradientEnd: "#fff", BackgroundColor: "red"}, nil)
	assert.Equal(t, "linear-gradient(to bottom, #000, #fff)", g["background"])
	assert.NotContains(t, g, "background-color")

	img := BuildPopupStyles(model.Design{BackgroundType: "image", BackgroundImage: "https://cdn.example.com/a.jpg"}, nil)
	assert.Equal(t, "url('https://cdn.example.com/a.jpg')", img["background-image"])
	assert.Equal(t, "cover", img["background-size"])
}

func TestStyleValuesCannotEscapeDeclaration(t *testing.T) {
	styles := BuildPopupStyles(model.Design{TextColor: "red; } body { display:none"}, nil)
	assert.Equal(t, "red  body  display:none", styles["color"])
	assert.Len(t, ParseStyle(StyleString(styles)), 1)
}

func TestStyleString(t *testing.T) {
	assert.Equal(t, "a: 1; b: 2;", StyleString(map[string]string{"b": "2", "a": "1"}))
	assert.Equal(t, "", StyleString(nil))
	assert.Equal(t, map[string]string{"color": "red", "background-image": "url('https://x/y.png')"},
		ParseStyle("Color: red; background-image: url('https://x/y.png'); ;junk"))
}
