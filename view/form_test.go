package view

import (
	"strings"
	"testing"

	"github.com/mbolis/dcforms/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptions(t *testing.T) {
	assert.Equal(t, []option{{"a", "a"}, {"b", "B"}}, parseOptions("a\nb|B\n\n"))
	assert.Equal(t, []option{{"x", "x"}, {"y", "y"}}, parseOptions("x, y"))
	assert.Equal(t, []option{{"1", "One"}, {"two", "two"}, {"3", "3"}}, parseOptions([]any{
		map[string]any{"value": "1", "label": "One"},
		"two",
		3,
	}))
	assert.Nil(t, parseOptions(nil))
}

func TestRenderForm(t *testing.T) {
	f := model.Form{ID: 8, Type: "contact", Title: "Contact <us>", Fields: []model.FormField{
		{Type: "text", Name: "name", Label: "Name", Required: true},
		{Type: "email", Name: "email", Label: "Email"},
		{Type: "textarea", Name: "message", Label: "Message", FullWidth: true},
		{Type: "select", Name: "store", Label: "Store", Options: "north|North\nsouth|South"},
		{Type: "radio", Name: "contact_by", Options: []any{"email", "phone"}},
		{Type: "checkbox", Name: "consent", Label: "I agree", Required: true},
		{Type: "hidden", Name: "source", Placeholder: "popup"},
		{Type: "text", Label: "nameless"},
	}}

	out, err := RenderForm(f)
	require.NoError(t, err)
	html := string(out)

	assert.Contains(t, html, `data-form-id="8"`)
	assert.Contains(t, html, `<input type="hidden" name="form_id" value="8">`)
	assert.Contains(t, html, "Contact &lt;us&gt;")
	assert.Contains(t, html, `class="dcf-field dcf-field-text dcf-required" data-field="name"`)
	assert.Contains(t, html, `class="dcf-field dcf-field-textarea dcf-field-full" data-field="message"`)
	assert.Contains(t, html, `<option value="south">South</option>`)
	assert.Contains(t, html, `<input type="radio" name="contact_by" value="phone">`)
	assert.Contains(t, html, `name="consent" value="1" required`)
	assert.Contains(t, html, `<input type="hidden" name="source" value="popup">`)
	assert.Contains(t, html, `data-error-for="email"`)
	assert.NotContains(t, html, "nameless")
	assert.NotContains(t, html, "data-step=")
}

func TestRenderMultiStepForm(t *testing.T) {
	out, err := RenderForm(model.Form{ID: 2, Type: "multi_step", Fields: []model.FormField{
		{Type: "email", Name: "email", Label: "Work email"},
		{Type: "text", Name: "promo_code", Label: "Promo code"},
	}})
	require.NoError(t, err)
	html := string(out)

	for _, step := range []string{"personal_info", "service_selection", "address_info", "pickup_scheduling", "payment", "complete"} {
		assert.Contains(t, html, `data-step="`+step+`"`)
	}
	assert.Equal(t, 1, strings.Count(html, `name="email"`), "standard fields are not duplicated")
	assert.Contains(t, html, `name="promo_code"`)
	assert.Equal(t, 5, strings.Count(html, `style="display:none"`)-strings.Count(html, `class="dcf-redirect" style="display:none"`))
}
