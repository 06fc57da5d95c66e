package view

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/mbolis/dcforms/model"
)

type option struct {
	Value string
	Label string
}

// parseOptions accepts the shapes the form builder stores: a newline or comma
// separated string, a list of strings, or a list of {value, label} objects.
func parseOptions(raw any) []option {
	var out []option
	add := func(value, label string) {
		value, label = strings.TrimSpace(value), strings.TrimSpace(label)
		if value == "" && label == "" {
			return
		}
		if label == "" {
			label = value
		}
		if value == "" {
			value = label
		}
		out = append(out, option{value, label})
	}

	switch v := raw.(type) {
	case string:
		sep := "\n"
		if !strings.Contains(v, "\n") {
			sep = ","
		}
		for _, s := range strings.Split(v, sep) {
			if value, label, ok := strings.Cut(s, "|"); ok {
				add(value, label)
			} else {
				add(s, s)
			}
		}
	case []string:
		for _, s := range v {
			add(s, s)
		}
	case []any:
		for _, item := range v {
			switch o := item.(type) {
			case string:
				add(o, o)
			case map[string]any:
				value, _ := o["value"].(string)
				label, _ := o["label"].(string)
				add(value, label)
			default:
				if item != nil {
					s := fmt.Sprint(item)
					add(s, s)
				}
			}
		}
	}
	return out
}

type fieldView struct {
	model.FormField
	Options []option
}

func (f fieldView) Classes() string {
	c := "dcf-field dcf-field-" + f.Type
	if f.FullWidth {
		c += " dcf-field-full"
	}
	if f.Required {
		c += " dcf-required"
	}
	return c
}

func (f fieldView) InputType() string {
	switch f.Type {
	case "email", "tel", "number", "date", "url", "hidden":
		return f.Type
	case "phone":
		return "tel"
	}
	return "text"
}

type formData struct {
	model.Form
	Fields []fieldView
}

const formLayouts = `
{{define "field"}}
{{- if eq .Type "hidden"}}<input type="hidden" name="{{.Name}}" value="{{.Placeholder}}">
{{- else}}<div class="{{.Classes}}" data-field="{{.Name}}">
{{- if and .Label (ne .Type "checkbox")}}<label for="dcf-{{.Name}}">{{.Label}}{{if .Required}} <span class="dcf-required-mark">*</span>{{end}}</label>{{end}}
{{- if eq .Type "textarea"}}<textarea id="dcf-{{.Name}}" name="{{.Name}}"{{if .Placeholder}} placeholder="{{.Placeholder}}"{{end}}{{if .Required}} required{{end}}></textarea>
{{- else if eq .Type "select"}}<select id="dcf-{{.Name}}" name="{{.Name}}"{{if .Required}} required{{end}}><option value="">{{if .Placeholder}}{{.Placeholder}}{{else}}Select...{{end}}</option>{{range .Options}}<option value="{{.Value}}">{{.Label}}</option>{{end}}</select>
{{- else if eq .Type "radio"}}<div class="dcf-options">{{$f := .}}{{range .Options}}<label class="dcf-option"><input type="radio" name="{{$f.Name}}" value="{{.Value}}"{{if $f.Required}} required{{end}}> {{.Label}}</label>{{end}}</div>
{{- else if eq .Type "checkbox"}}{{if .Options}}<div class="dcf-options">{{$f := .}}{{range .Options}}<label class="dcf-option"><input type="checkbox" name="{{$f.Name}}[]" value="{{.Value}}"> {{.Label}}</label>{{end}}</div>{{else}}<label class="dcf-option"><input type="checkbox" id="dcf-{{.Name}}" name="{{.Name}}" value="1"{{if .Required}} required{{end}}> {{.Label}}</label>{{end}}
{{- else}}<input type="{{.InputType}}" id="dcf-{{.Name}}" name="{{.Name}}"{{if .Placeholder}} placeholder="{{.Placeholder}}"{{end}}{{if .Required}} required{{end}}>
{{- end}}
<div class="dcf-field-error" data-error-for="{{.Name}}"></div>
</div>{{end}}{{end}}

{{define "simple"}}<form class="dcf-form dcf-form-{{.Type}}" data-form-id="{{.ID}}" novalidate>
<input type="hidden" name="form_id" value="{{.ID}}">
{{- if .Title}}<h3 class="dcf-form-title">{{.Title}}</h3>{{end}}
{{- if .Description}}<p class="dcf-form-description">{{.Description}}</p>{{end}}
<div class="dcf-fields">
{{- range .Fields}}{{template "field" .}}{{end}}
</div>
<div class="dcf-form-error" role="alert"></div>
<div class="dcf-submit"><button type="submit" class="dcf-button">Submit</button></div>
</form>{{end}}

{{define "nav"}}<div class="dcf-submit"><button type="submit" class="dcf-button" data-action="next">{{.}}</button></div>{{end}}

{{define "multi_step"}}<form class="dcf-form dcf-form-multi_step" data-form-id="{{.ID}}" novalidate>
<input type="hidden" name="form_id" value="{{.ID}}">
<div class="dcf-form-error" role="alert"></div>

<div class="dcf-form-step" data-step="personal_info">
{{- if .Title}}<h3 class="dcf-form-title">{{.Title}}</h3>{{end}}
<div class="dcf-fields">
<div class="dcf-field dcf-field-text dcf-required" data-field="first_name"><label for="dcf-first_name">First name <span class="dcf-required-mark">*</span></label><input type="text" id="dcf-first_name" name="first_name" required><div class="dcf-field-error" data-error-for="first_name"></div></div>
<div class="dcf-field dcf-field-text dcf-required" data-field="last_name"><label for="dcf-last_name">Last name <span class="dcf-required-mark">*</span></label><input type="text" id="dcf-last_name" name="last_name" required><div class="dcf-field-error" data-error-for="last_name"></div></div>
<div class="dcf-field dcf-field-email dcf-required" data-field="email"><label for="dcf-email">Email <span class="dcf-required-mark">*</span></label><input type="email" id="dcf-email" name="email" required><div class="dcf-field-error" data-error-for="email"></div></div>
<div class="dcf-field dcf-field-tel dcf-required" data-field="phone"><label for="dcf-phone">Phone <span class="dcf-required-mark">*</span></label><input type="tel" id="dcf-phone" name="phone" required><div class="dcf-field-error" data-error-for="phone"></div></div>
{{- range .Fields}}{{template "field" .}}{{end}}
</div>
{{template "nav" "Continue"}}
</div>

<div class="dcf-form-step" data-step="service_selection" style="display:none">
<div class="dcf-field dcf-field-radio dcf-field-full" data-field="service_type"><div class="dcf-options">
<label class="dcf-option"><input type="radio" name="service_type" value="pickup_delivery"> Pickup &amp; delivery</label>
<label class="dcf-option"><input type="radio" name="service_type" value="retail_store"> Drop off at a store</label>
<label class="dcf-option"><input type="radio" name="service_type" value="not_sure"> Not sure yet</label>
</div><div class="dcf-field-error" data-error-for="service_type"></div></div>
{{template "nav" "Continue"}}
</div>

<div class="dcf-form-step" data-step="address_info" style="display:none">
<div class="dcf-fields">
<div class="dcf-field dcf-field-text dcf-field-full dcf-required" data-field="street"><label for="dcf-street">Street address <span class="dcf-required-mark">*</span></label><input type="text" id="dcf-street" name="street" required><div class="dcf-field-error" data-error-for="street"></div></div>
<div class="dcf-field dcf-field-text dcf-field-full" data-field="street2"><label for="dcf-street2">Apartment, suite</label><input type="text" id="dcf-street2" name="street2"><div class="dcf-field-error" data-error-for="street2"></div></div>
<div class="dcf-field dcf-field-text dcf-required" data-field="city"><label for="dcf-city">City <span class="dcf-required-mark">*</span></label><input type="text" id="dcf-city" name="city" required><div class="dcf-field-error" data-error-for="city"></div></div>
<div class="dcf-field dcf-field-text dcf-required" data-field="state"><label for="dcf-state">State <span class="dcf-required-mark">*</span></label><input type="text" id="dcf-state" name="state" required><div class="dcf-field-error" data-error-for="state"></div></div>
<div class="dcf-field dcf-field-text dcf-required" data-field="zip_code"><label for="dcf-zip_code">ZIP code <span class="dcf-required-mark">*</span></label><input type="text" id="dcf-zip_code" name="zip_code" inputmode="numeric" required><div class="dcf-field-error" data-error-for="zip_code"></div></div>
</div>
{{template "nav" "Continue"}}
</div>

<div class="dcf-form-step" data-step="pickup_scheduling" style="display:none">
<div class="dcf-pickup-dates" data-field="date_id"></div>
<div class="dcf-field-error" data-error-for="date_id"></div>
<div class="dcf-time-slots" data-field="time_slot_id"></div>
<div class="dcf-field-error" data-error-for="time_slot_id"></div>
<div class="dcf-submit"><button type="button" class="dcf-button" data-action="schedule" disabled>Schedule pickup</button></div>
</div>

<div class="dcf-form-step" data-step="payment" style="display:none">
<div class="dcf-fields">
<div class="dcf-field dcf-field-text dcf-field-full dcf-required" data-field="card_number"><label for="dcf-card_number">Card number <span class="dcf-required-mark">*</span></label><input type="text" id="dcf-card_number" name="card_number" inputmode="numeric" autocomplete="cc-number" required><div class="dcf-field-error" data-error-for="card_number"></div></div>
<div class="dcf-field dcf-field-text dcf-required" data-field="exp_month"><label for="dcf-exp_month">Month <span class="dcf-required-mark">*</span></label><input type="text" id="dcf-exp_month" name="exp_month" autocomplete="cc-exp-month" required><div class="dcf-field-error" data-error-for="exp_month"></div></div>
<div class="dcf-field dcf-field-text dcf-required" data-field="exp_year"><label for="dcf-exp_year">Year <span class="dcf-required-mark">*</span></label><input type="text" id="dcf-exp_year" name="exp_year" autocomplete="cc-exp-year" required><div class="dcf-field-error" data-error-for="exp_year"></div></div>
<div class="dcf-field dcf-field-text dcf-required" data-field="cvv"><label for="dcf-cvv">Security code <span class="dcf-required-mark">*</span></label><input type="text" id="dcf-cvv" name="cvv" autocomplete="cc-csc" required><div class="dcf-field-error" data-error-for="cvv"></div></div>
<div class="dcf-field dcf-field-text" data-field="billing_zip"><label for="dcf-billing_zip">Billing ZIP</label><input type="text" id="dcf-billing_zip" name="billing_zip"><div class="dcf-field-error" data-error-for="billing_zip"></div></div>
</div>
{{template "nav" "Pay"}}
</div>

<div class="dcf-form-step" data-step="complete" style="display:none">
<div class="dcf-complete-message"></div>
<div class="dcf-redirect" style="display:none">Redirecting in <span class="dcf-countdown"></span>s. <a href="#" data-action="cancel-redirect">Stay here</a></div>
</div>
</form>{{end}}
`

var formTemplates = template.Must(template.New("form").Parse(formLayouts))

// RenderForm renders the HTML the client swaps in for a form placeholder.
// multi_step forms render one container per signup step, identified by data-step;
// their configured fields are appended to the personal info step.
func RenderForm(f model.Form) (template.HTML, error) {
	data := formData{Form: f}
	for _, fld := range f.Fields {
		if fld.Name == "" {
			continue
		}
		data.Fields = append(data.Fields, fieldView{FormField: fld, Options: parseOptions(fld.Options)})
	}

	name := "simple"
	if f.Type == "multi_step" {
		name = "multi_step"
		data.Fields = withoutStandard(data.Fields)
	}

	var buf bytes.Buffer
	if err := formTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

var standardFields = map[string]bool{
	"first_name": true, "last_name": true, "email": true, "phone": true,
	"service_type": true, "street": true, "street2": true, "city": true, "state": true, "zip_code": true,
	"card_number": true, "exp_month": true, "exp_year": true, "cvv": true, "billing_zip": true,
}

func withoutStandard(fields []fieldView) []fieldView {
	out := fields[:0:0]
	for _, f := range fields {
		if !standardFields[f.Name] {
			out = append(out, f)
		}
	}
	return out
}
